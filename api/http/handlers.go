// Package http exposes the interview pipeline over plain REST for
// non-realtime consumers. The websocket endpoint is mounted separately.
package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/interviewmate/copilot/internal/answer"
	"github.com/interviewmate/copilot/internal/question"
	"github.com/interviewmate/copilot/wire"
)

// generateTimeout caps one REST answer generation.
const generateTimeout = 20 * time.Second

type Handlers struct {
	Detector  *question.Detector
	Generator *answer.Generator
}

func NewHandlers(detector *question.Detector, generator *answer.Generator) Handlers {
	return Handlers{Detector: detector, Generator: generator}
}

// Register mounts the REST routes. The middleware guards the /api group
// only; health stays open for probes.
func (h Handlers) Register(e *echo.Echo, mw ...echo.MiddlewareFunc) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	g := e.Group("/api/interview", mw...)
	g.POST("/detect-question", h.detectQuestion)
	g.POST("/generate-answer", h.generateAnswer)
}

type detectQuestionRequest struct {
	Transcript string `json:"transcript"`
	// Transcription is an accepted alias kept for older clients.
	Transcription string `json:"transcription"`
}

type detectQuestionResponse struct {
	IsQuestion   bool   `json:"is_question"`
	Question     string `json:"question,omitempty"`
	QuestionType string `json:"question_type,omitempty"`
}

func (h Handlers) detectQuestion(c echo.Context) error {
	var req detectQuestionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	text := req.Transcript
	if text == "" {
		text = req.Transcription
	}
	if strings.TrimSpace(text) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "transcript is required"})
	}

	ev, ok := h.Detector.Detect(text)
	if !ok {
		return c.JSON(http.StatusOK, detectQuestionResponse{IsQuestion: false})
	}
	return c.JSON(http.StatusOK, detectQuestionResponse{
		IsQuestion:   true,
		Question:     ev.Question,
		QuestionType: ev.Type,
	})
}

type generateAnswerRequest struct {
	Question     string              `json:"question"`
	QuestionType string              `json:"question_type"`
	Context      wire.ContextPayload `json:"context"`
}

type generateAnswerResponse struct {
	Answer       string   `json:"answer"`
	QuestionType string   `json:"question_type"`
	Grounded     bool     `json:"grounded"`
	GroundedOn   []string `json:"grounded_on,omitempty"`
}

func (h Handlers) generateAnswer(c echo.Context) error {
	var req generateAnswerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Question) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "question is required"})
	}

	questionType := req.QuestionType
	if questionType == "" {
		if ev, ok := h.Detector.Detect(req.Question); ok {
			questionType = ev.Type
		} else {
			questionType = question.TypeGeneral
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), generateTimeout)
	defer cancel()
	rec, err := h.Generator.Generate(ctx, req.Question, questionType, req.Context)
	if err != nil {
		c.Echo().Logger.Errorf("generate answer: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "answer generation failed"})
	}

	return c.JSON(http.StatusOK, generateAnswerResponse{
		Answer:       rec.Answer,
		QuestionType: rec.QuestionType,
		Grounded:     rec.Grounded,
		GroundedOn:   rec.GroundedOn,
	})
}
