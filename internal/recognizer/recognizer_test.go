package recognizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
)

type fakeConn struct {
	writes    int32
	finalizes int32
	stops     int32
	writeErr  error
}

func (f *fakeConn) WriteBinary(data []byte) error {
	atomic.AddInt32(&f.writes, 1)
	return f.writeErr
}

func (f *fakeConn) Finalize() error {
	atomic.AddInt32(&f.finalizes, 1)
	return nil
}

func (f *fakeConn) Stop() {
	atomic.AddInt32(&f.stops, 1)
}

func TestStreamSkipsEmptyAudio(t *testing.T) {
	conn := &fakeConn{}
	s := &deepgramStream{conn: conn, results: make(chan Result, 1)}

	if err := s.SendPCM16LE(nil); err != nil {
		t.Fatalf("expected nil error for empty audio, got %v", err)
	}
	if got := atomic.LoadInt32(&conn.writes); got != 0 {
		t.Fatalf("expected no writes for empty audio, got %d", got)
	}

	if err := s.SendPCM16LE([]byte{0x01, 0x02}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := atomic.LoadInt32(&conn.writes); got != 1 {
		t.Fatalf("expected 1 write, got %d", got)
	}
}

func TestStreamWrapsWriteError(t *testing.T) {
	cause := errors.New("socket closed")
	s := &deepgramStream{conn: &fakeConn{writeErr: cause}, results: make(chan Result, 1)}

	err := s.SendPCM16LE([]byte{0x00, 0x00})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestStreamCloseStopsOnce(t *testing.T) {
	conn := &fakeConn{}
	s := &deepgramStream{conn: conn, results: make(chan Result, 1)}

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if got := atomic.LoadInt32(&conn.stops); got != 1 {
		t.Fatalf("expected 1 stop, got %d", got)
	}
}

func TestStreamFinalize(t *testing.T) {
	conn := &fakeConn{}
	s := &deepgramStream{conn: conn, results: make(chan Result, 1)}

	if err := s.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if got := atomic.LoadInt32(&conn.finalizes); got != 1 {
		t.Fatalf("expected 1 finalize, got %d", got)
	}
}

func messageWith(t *testing.T, text string, isFinal bool) *msginterfaces.MessageResponse {
	t.Helper()
	raw := fmt.Sprintf(`{"type":"Results","is_final":%v,"channel":{"alternatives":[{"transcript":%q}]}}`, isFinal, text)
	var mr msginterfaces.MessageResponse
	if err := json.Unmarshal([]byte(raw), &mr); err != nil {
		t.Fatalf("build message: %v", err)
	}
	return &mr
}

func TestCallbackForwardsTranscripts(t *testing.T) {
	results := make(chan Result, 4)
	cb := &listenCallback{results: results}

	if err := cb.Message(&msginterfaces.MessageResponse{}); err != nil {
		t.Fatalf("empty message: %v", err)
	}
	if err := cb.Message(messageWith(t, "   ", true)); err != nil {
		t.Fatalf("blank message: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results for blank transcripts, got %d", len(results))
	}

	if err := cb.Message(messageWith(t, "tell me about", false)); err != nil {
		t.Fatalf("interim message: %v", err)
	}
	if err := cb.Message(messageWith(t, "Tell me about a time.", true)); err != nil {
		t.Fatalf("final message: %v", err)
	}

	r := <-results
	if r.Text != "tell me about" || r.IsFinal {
		t.Fatalf("unexpected first result: %+v", r)
	}
	r = <-results
	if r.Text != "Tell me about a time." || !r.IsFinal {
		t.Fatalf("unexpected second result: %+v", r)
	}
}

func TestCallbackDropsWhenBacklogFull(t *testing.T) {
	results := make(chan Result, 1)
	cb := &listenCallback{results: results}

	if err := cb.Message(messageWith(t, "one", true)); err != nil {
		t.Fatalf("first message: %v", err)
	}
	// Channel is full now; this must not block.
	if err := cb.Message(messageWith(t, "two", true)); err != nil {
		t.Fatalf("second message: %v", err)
	}

	r := <-results
	if r.Text != "one" {
		t.Fatalf("expected retained result %q, got %q", "one", r.Text)
	}
	if len(results) != 0 {
		t.Fatalf("expected overflow result to be dropped")
	}
}
