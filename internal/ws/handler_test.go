package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/interviewmate/copilot/internal/answer"
	"github.com/interviewmate/copilot/internal/llm"
	"github.com/interviewmate/copilot/internal/question"
	"github.com/interviewmate/copilot/internal/recognizer"
	"github.com/interviewmate/copilot/internal/session"
	"github.com/interviewmate/copilot/wire"
)

type fakeStream struct {
	mu      sync.Mutex
	sent    int
	results chan recognizer.Result
}

func newFakeStream() *fakeStream {
	return &fakeStream{results: make(chan recognizer.Result, 16)}
}

func (f *fakeStream) SendPCM16LE(_ []byte) error {
	f.mu.Lock()
	f.sent++
	f.mu.Unlock()
	return nil
}

func (f *fakeStream) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

func (f *fakeStream) Results() <-chan recognizer.Result { return f.results }
func (f *fakeStream) Finalize() error                   { return nil }
func (f *fakeStream) Close() error                      { return nil }

type fakeRecognizer struct{ stream *fakeStream }

func (f *fakeRecognizer) OpenStream(_ context.Context, _ recognizer.StreamConfig) (recognizer.Stream, error) {
	return f.stream, nil
}

type fakeLLM struct{ out string }

func (f *fakeLLM) Name() string { return "fake" }
func (f *fakeLLM) Generate(_ context.Context, _ llm.Request) (string, error) {
	return f.out, nil
}

func newTestServer(t *testing.T, authToken string, stream *fakeStream) (*httptest.Server, string) {
	t.Helper()
	factory := func(userID string) *session.Session {
		return session.New(session.Options{
			UserID:     userID,
			Recognizer: &fakeRecognizer{stream: stream},
			Detector:   question.NewDetector(),
			Generator:  answer.NewGenerator(&fakeLLM{out: "a suggested answer"}),
		})
	}
	h := NewHandler(authToken, session.NewRegistry(), factory)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wire.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	var env wire.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

// awaitType skips envelopes until one of the wanted type arrives. Arrival of
// an error envelope of another type fails the test.
func awaitType(t *testing.T, conn *websocket.Conn, typ string) wire.Envelope {
	t.Helper()
	for i := 0; i < 20; i++ {
		env := readEnvelope(t, conn)
		if env.Type == typ {
			return env
		}
		if env.Type == wire.TypeError {
			var p wire.ErrorPayload
			_ = env.Decode(&p)
			t.Fatalf("unexpected error while waiting for %s: %s %s", typ, p.Code, p.Message)
		}
	}
	t.Fatalf("no %s envelope after 20 messages", typ)
	return wire.Envelope{}
}

func awaitStatus(t *testing.T, conn *websocket.Conn, state string) {
	t.Helper()
	for i := 0; i < 20; i++ {
		env := awaitType(t, conn, wire.TypeStatus)
		var p wire.StatusPayload
		if err := env.Decode(&p); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if p.State == state {
			return
		}
	}
	t.Fatalf("no status %s after 20 messages", state)
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	env, err := wire.NewEnvelope(typ, payload)
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("write envelope: %v", err)
	}
}

func TestHandlerRejectsMissingToken(t *testing.T) {
	_, wsURL := newTestServer(t, "secret", newFakeStream())

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestHandlerSessionRoundTrip(t *testing.T) {
	stream := newFakeStream()
	_, wsURL := newTestServer(t, "secret", stream)

	conn := dialWS(t, wsURL+"?password=secret&user_id=u1")
	awaitStatus(t, conn, wire.StatusReady)

	sendEnvelope(t, conn, wire.TypeContext, wire.ContextPayload{
		StarStories: []wire.StarStory{{ID: "s1", Title: "Conflict with a teammate", Tags: []string{"conflict"}}},
	})
	awaitStatus(t, conn, wire.StatusContextAck)

	frame := wire.EncodeFrame(wire.AudioChunk{
		Encoding:   wire.EncodingPCM16,
		SampleRate: 16000,
		Sequence:   1,
		CapturedAt: time.Now(),
		Payload:    make([]byte, 64),
	})
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for stream.sentCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("audio never reached the recognizer")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stream.results <- recognizer.Result{
		Text:    "Tell me about a time you resolved a conflict with a teammate.",
		IsFinal: true,
	}
	env := awaitType(t, conn, wire.TypeTranscription)
	var tr wire.TranscriptionPayload
	if err := env.Decode(&tr); err != nil {
		t.Fatalf("decode transcription: %v", err)
	}
	if !tr.IsFinal {
		t.Fatalf("expected final transcription, got %+v", tr)
	}

	sendEnvelope(t, conn, wire.TypeFinalize, nil)
	env = awaitType(t, conn, wire.TypeQuestionDetected)
	var q wire.QuestionDetectedPayload
	if err := env.Decode(&q); err != nil {
		t.Fatalf("decode question: %v", err)
	}
	if q.QuestionType != question.TypeBehavioral {
		t.Fatalf("unexpected question type %s", q.QuestionType)
	}

	env = awaitType(t, conn, wire.TypeAnswer)
	var a wire.AnswerPayload
	if err := env.Decode(&a); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if !a.Grounded || len(a.GroundedOn) != 1 || a.GroundedOn[0] != "s1" {
		t.Fatalf("expected answer grounded on s1, got %+v", a)
	}

	sendEnvelope(t, conn, wire.TypeClear, nil)
	awaitStatus(t, conn, wire.StatusCleared)
}

func TestHandlerUnknownEnvelopeType(t *testing.T) {
	_, wsURL := newTestServer(t, "", newFakeStream())

	conn := dialWS(t, wsURL)
	awaitStatus(t, conn, wire.StatusReady)

	sendEnvelope(t, conn, "bogus", nil)
	env := readEnvelope(t, conn)
	if env.Type != wire.TypeError {
		t.Fatalf("expected error envelope, got %s", env.Type)
	}
	var p wire.ErrorPayload
	if err := env.Decode(&p); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if p.Code != wire.ErrCodeBadRequest {
		t.Fatalf("expected bad_request, got %s", p.Code)
	}

	// The connection survives a protocol mistake.
	sendEnvelope(t, conn, wire.TypeFinalize, nil)
	awaitStatus(t, conn, wire.StatusDetecting)
	awaitStatus(t, conn, wire.StatusNoQuestion)
}

func TestHandlerMalformedTextFrame(t *testing.T) {
	_, wsURL := newTestServer(t, "", newFakeStream())

	conn := dialWS(t, wsURL)
	awaitStatus(t, conn, wire.StatusReady)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not-json")); err != nil {
		t.Fatalf("write text: %v", err)
	}
	env := readEnvelope(t, conn)
	if env.Type != wire.TypeError {
		t.Fatalf("expected error envelope, got %s", env.Type)
	}
}

func TestHandlerMalformedBinaryFrame(t *testing.T) {
	_, wsURL := newTestServer(t, "", newFakeStream())

	conn := dialWS(t, wsURL)
	awaitStatus(t, conn, wire.StatusReady)

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	env := readEnvelope(t, conn)
	if env.Type != wire.TypeError {
		t.Fatalf("expected error envelope, got %s", env.Type)
	}
}

func TestAuthOK(t *testing.T) {
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
	r3.Header.Set("Authorization", "bearer abc")
	if !authOK(r3, "abc") {
		t.Fatalf("expected true with lowercase bearer prefix")
	}
}

func TestAuthOK_NegativeCases(t *testing.T) {
	r1 := httptest.NewRequest(http.MethodGet, "/?password=wrong", nil)
	if authOK(r1, "secret") {
		t.Fatalf("expected false with wrong query token")
	}
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("X-Auth-Token", "nope")
	if authOK(r2, "secret") {
		t.Fatalf("expected false with wrong X-Auth-Token")
	}
	r3 := httptest.NewRequest(http.MethodGet, "/", nil)
	r3.Header.Set("Authorization", "Bearer nope")
	if authOK(r3, "secret") {
		t.Fatalf("expected false with wrong bearer token")
	}
}
