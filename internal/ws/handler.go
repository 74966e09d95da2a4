// Package ws terminates the duplex interview websocket: binary audio frames
// in, JSON event envelopes out. One connection owns one session.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/interviewmate/copilot/internal/session"
	"github.com/interviewmate/copilot/wire"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// Allow any origin for demo use; restrict in production
		return true
	},
}

// SessionFactory builds a wired session for one accepted connection.
type SessionFactory func(userID string) *session.Session

// Handler upgrades HTTP requests and pumps frames between the connection
// and its session.
type Handler struct {
	authToken  string
	registry   *session.Registry
	newSession SessionFactory
}

func NewHandler(authToken string, registry *session.Registry, factory SessionFactory) *Handler {
	return &Handler{authToken: authToken, registry: registry, newSession: factory}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !authOK(r, h.authToken) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	sess := h.newSession(r.URL.Query().Get("user_id"))
	sess.Start(context.Background())
	if h.registry != nil {
		h.registry.Add(sess)
		defer h.registry.Remove(sess.ID)
	}
	defer sess.Close()

	wr := &connWriter{conn: conn}
	go pumpEvents(wr, sess)
	h.readLoop(conn, wr, sess)
}

// connWriter serializes writes; gorilla allows one concurrent writer per conn.
type connWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *connWriter) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

// pumpEvents forwards session envelopes to the client until the session or
// the connection dies.
func pumpEvents(wr *connWriter, sess *session.Session) {
	for {
		select {
		case env := <-sess.Events():
			if err := wr.writeJSON(env); err != nil {
				log.Printf("[%s] ws write: %v", sess.ID, err)
				_ = wr.conn.Close()
				return
			}
		case <-sess.Done():
			return
		}
	}
}

func (h *Handler) readLoop(conn *websocket.Conn, wr *connWriter, sess *session.Session) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[%s] ws read: %v", sess.ID, err)
			}
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			chunk, derr := wire.DecodeFrame(data)
			if derr != nil {
				log.Printf("[%s] bad audio frame: %v", sess.ID, derr)
				writeError(wr, "malformed audio frame")
				continue
			}
			if err := sess.IngestAudio(chunk); err != nil {
				return
			}
		case websocket.TextMessage:
			h.dispatch(wr, sess, data)
		}
	}
}

// dispatch routes one client envelope to the session operation it names.
// Protocol mistakes are answered with an error envelope and the connection
// stays open.
func (h *Handler) dispatch(wr *connWriter, sess *session.Session, data []byte) {
	var env wire.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		writeError(wr, "malformed envelope")
		return
	}

	switch env.Type {
	case wire.TypeContext:
		var p wire.ContextPayload
		if err := env.Decode(&p); err != nil {
			writeError(wr, "malformed context payload")
			return
		}
		sess.SetContext(p)
	case wire.TypeConfig:
		var p wire.ConfigPayload
		if err := env.Decode(&p); err != nil {
			writeError(wr, "malformed config payload")
			return
		}
		sess.Configure(p)
	case wire.TypeFinalize:
		sess.Finalize()
	case wire.TypeRequestAnswer:
		var p wire.RequestAnswerPayload
		if err := env.Decode(&p); err != nil {
			writeError(wr, "malformed request_answer payload")
			return
		}
		sess.RequestAnswer(p.Question, p.QuestionType)
	case wire.TypeClear:
		sess.Clear()
	default:
		writeError(wr, fmt.Sprintf("unknown message type %q", env.Type))
	}
}

func writeError(wr *connWriter, message string) {
	env, err := wire.NewEnvelope(wire.TypeError, wire.ErrorPayload{
		Code:    wire.ErrCodeBadRequest,
		Message: message,
	})
	if err != nil {
		return
	}
	if werr := wr.writeJSON(env); werr != nil {
		log.Printf("ws write error envelope: %v", werr)
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
