package httpserver

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	apihttp "github.com/interviewmate/copilot/api/http"
	"github.com/interviewmate/copilot/internal/answer"
	"github.com/interviewmate/copilot/internal/question"
)

// Options carry the route dependencies.
type Options struct {
	AuthToken string
	Detector  *question.Detector
	Generator *answer.Generator
	WS        http.Handler
}

// Server bundles the HTTP router and dependencies.
type Server struct {
	Router http.Handler
}

// NewServer constructs the router with all interview routes mounted. The
// websocket handler does its own token check, so it is mounted unwrapped.
func NewServer(opts Options) *Server {
	e := New()

	h := apihttp.NewHandlers(opts.Detector, opts.Generator)
	h.Register(e, authMiddleware(opts.AuthToken))

	if opts.WS != nil {
		e.GET("/ws/interview", echo.WrapHandler(opts.WS))
	}

	return &Server{Router: e}
}

func authMiddleware(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !authOK(c.Request(), token) {
				return c.String(http.StatusUnauthorized, "unauthorized")
			}
			return next(c)
		}
	}
}

// authOK accepts ?password=, X-Auth-Token, or a Bearer token. An empty
// expected token disables auth.
func authOK(r *http.Request, expected string) bool {
	if expected == "" {
		return true
	}
	if r == nil {
		return false
	}
	if q := r.URL.Query().Get("password"); q != "" && q == expected {
		return true
	}
	if x := r.Header.Get("X-Auth-Token"); x != "" && x == expected {
		return true
	}
	ah := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(ah), "bearer ") {
		if strings.TrimSpace(ah[len("Bearer "):]) == expected {
			return true
		}
	}
	return false
}
