package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/interviewmate/copilot/internal/answer"
	"github.com/interviewmate/copilot/internal/llm"
	"github.com/interviewmate/copilot/internal/question"
)

type fakeProvider struct {
	out string
	err error
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Generate(_ context.Context, _ llm.Request) (string, error) {
	return f.out, f.err
}

func newTestServer(authToken string, provider llm.Provider) *Server {
	return NewServer(Options{
		AuthToken: authToken,
		Detector:  question.NewDetector(),
		Generator: answer.NewGenerator(provider),
	})
}

func TestServerHealthz(t *testing.T) {
	srv := newTestServer("", &fakeProvider{out: "x"})
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestDetectQuestionEndpoint(t *testing.T) {
	srv := newTestServer("", &fakeProvider{out: "x"})

	body := `{"transcript": "Tell me about a time you led a project."}`
	r := httptest.NewRequest(http.MethodPost, "/api/interview/detect-question", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		IsQuestion   bool   `json:"is_question"`
		Question     string `json:"question"`
		QuestionType string `json:"question_type"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.IsQuestion || resp.QuestionType != question.TypeBehavioral {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestDetectQuestionAcceptsTranscriptionAlias(t *testing.T) {
	srv := newTestServer("", &fakeProvider{out: "x"})

	body := `{"transcription": "How would you handle a production outage?"}`
	r := httptest.NewRequest(http.MethodPost, "/api/interview/detect-question", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		IsQuestion bool `json:"is_question"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.IsQuestion {
		t.Fatalf("expected question, got %s", w.Body.String())
	}
}

func TestDetectQuestionRejectsEmpty(t *testing.T) {
	srv := newTestServer("", &fakeProvider{out: "x"})

	r := httptest.NewRequest(http.MethodPost, "/api/interview/detect-question", strings.NewReader(`{"transcript": "  "}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestDetectQuestionNonQuestion(t *testing.T) {
	srv := newTestServer("", &fakeProvider{out: "x"})

	r := httptest.NewRequest(http.MethodPost, "/api/interview/detect-question", strings.NewReader(`{"transcript": "Okay great, thanks."}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		IsQuestion bool `json:"is_question"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.IsQuestion {
		t.Fatalf("expected non-question, got %s", w.Body.String())
	}
}

func TestGenerateAnswerEndpoint(t *testing.T) {
	srv := newTestServer("", &fakeProvider{out: "A grounded suggestion."})

	body := `{
		"question": "Tell me about a time you resolved a conflict with a teammate.",
		"context": {
			"resume_text": "",
			"star_stories": [{"id": "s1", "title": "Conflict with a teammate", "tags": ["conflict"]}],
			"talking_points": []
		}
	}`
	r := httptest.NewRequest(http.MethodPost, "/api/interview/generate-answer", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Answer       string   `json:"answer"`
		QuestionType string   `json:"question_type"`
		Grounded     bool     `json:"grounded"`
		GroundedOn   []string `json:"grounded_on"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != "A grounded suggestion." || resp.QuestionType != question.TypeBehavioral {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !resp.Grounded || len(resp.GroundedOn) != 1 || resp.GroundedOn[0] != "s1" {
		t.Fatalf("expected grounding on s1, got %+v", resp)
	}
}

func TestGenerateAnswerRequiresQuestion(t *testing.T) {
	srv := newTestServer("", &fakeProvider{out: "x"})

	r := httptest.NewRequest(http.MethodPost, "/api/interview/generate-answer", strings.NewReader(`{"question": ""}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGenerateAnswerProviderFailure(t *testing.T) {
	srv := newTestServer("", &fakeProvider{err: errors.New("model overloaded")})

	body := `{"question": "Why do you want to work here?"}`
	r := httptest.NewRequest(http.MethodPost, "/api/interview/generate-answer", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, r)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestAPIAuth(t *testing.T) {
	srv := newTestServer("secret", &fakeProvider{out: "x"})

	// No token provided
	r := httptest.NewRequest(http.MethodPost, "/api/interview/detect-question", strings.NewReader(`{"transcript": "What is a goroutine?"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	// Token via header
	r2 := httptest.NewRequest(http.MethodPost, "/api/interview/detect-question", strings.NewReader(`{"transcript": "What is a goroutine?"}`))
	r2.Header.Set("Content-Type", "application/json")
	r2.Header.Set("X-Auth-Token", "secret")
	w2 := httptest.NewRecorder()
	srv.Router.ServeHTTP(w2, r2)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w2.Code)
	}

	// Health stays open
	r3 := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w3 := httptest.NewRecorder()
	srv.Router.ServeHTTP(w3, r3)
	if w3.Code != http.StatusOK {
		t.Fatalf("expected open healthz, got %d", w3.Code)
	}
}

func TestAuthOK(t *testing.T) {
	// Missing expected -> accept
	if !authOK(nil, "") {
		t.Fatalf("expected true when expected empty")
	}
	r := httptest.NewRequest(http.MethodGet, "/?password=secret", nil)
	if !authOK(r, "secret") {
		t.Fatalf("expected true with query password")
	}
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("X-Auth-Token", "tok")
	if !authOK(r2, "tok") {
		t.Fatalf("expected true with X-Auth-Token")
	}
	r3 := httptest.NewRequest(http.MethodGet, "/", nil)
	r3.Header.Set("Authorization", "Bearer abc")
	if !authOK(r3, "abc") {
		t.Fatalf("expected true with Authorization bearer")
	}
}

func TestAuthOK_BearerCaseInsensitivePrefix(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "bearer abc")
	if !authOK(r, "abc") {
		t.Fatalf("expected true with lowercase bearer prefix")
	}
}

func TestAuthOK_NegativeCases(t *testing.T) {
	// Wrong query token
	r1 := httptest.NewRequest(http.MethodGet, "/?password=wrong", nil)
	if authOK(r1, "secret") {
		t.Fatalf("expected false with wrong query token")
	}
	// Wrong X-Auth-Token header
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("X-Auth-Token", "nope")
	if authOK(r2, "secret") {
		t.Fatalf("expected false with wrong X-Auth-Token")
	}
	// Wrong Bearer token
	r3 := httptest.NewRequest(http.MethodGet, "/", nil)
	r3.Header.Set("Authorization", "Bearer nope")
	if authOK(r3, "secret") {
		t.Fatalf("expected false with wrong bearer token")
	}
}
