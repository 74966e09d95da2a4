package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestAssemblyAITurnMapping(t *testing.T) {
	s := &assemblyAIStream{
		results: make(chan Result, 4),
		stopCh:  make(chan struct{}),
	}

	s.handleMessage([]byte(`{"type":"Turn","transcript":"tell me about","end_of_turn":false}`))
	s.handleMessage([]byte(`{"type":"Turn","transcript":"tell me about yourself","end_of_turn":true}`))
	s.handleMessage([]byte(`{"type":"Turn","transcript":"","end_of_turn":true}`))
	s.handleMessage([]byte(`not json`))

	r := <-s.results
	if r.Text != "tell me about" || r.IsFinal {
		t.Fatalf("expected interim turn, got %+v", r)
	}
	r = <-s.results
	if r.Text != "tell me about yourself" || !r.IsFinal {
		t.Fatalf("expected final turn, got %+v", r)
	}
	select {
	case r = <-s.results:
		t.Fatalf("unexpected extra result %+v", r)
	default:
	}
}

func TestAssemblyAISendAfterClose(t *testing.T) {
	s := &assemblyAIStream{
		results: make(chan Result, 1),
		audio:   make(chan []byte, 1),
		stopCh:  make(chan struct{}),
	}
	close(s.stopCh)
	if err := s.SendPCM16LE([]byte{1, 2}); err == nil {
		t.Fatalf("expected error sending on closed stream")
	}
}

func TestAssemblyAIOpenStreamRequiresKey(t *testing.T) {
	c := NewAssemblyAIClient("")
	if _, err := c.OpenStream(context.Background(), StreamConfig{}); err == nil {
		t.Fatalf("expected error without API key")
	}
}

func TestAssemblyAIStreamRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotAudio := make(chan []byte, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "aai-key" {
			t.Errorf("expected Authorization aai-key, got %q", got)
		}
		if got := r.URL.Query().Get("sample_rate"); got != "16000" {
			t.Errorf("expected sample_rate 16000, got %q", got)
		}
		if got := r.URL.Query().Get("encoding"); got != "pcm_s16le" {
			t.Errorf("expected encoding pcm_s16le, got %q", got)
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		_ = conn.WriteJSON(map[string]any{"type": "Begin", "id": "sess-1", "expires_at": time.Now().Unix()})
		_ = conn.WriteJSON(map[string]any{"type": "Turn", "transcript": "what is a goroutine", "end_of_turn": false})

		for {
			kind, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			switch kind {
			case websocket.BinaryMessage:
				select {
				case gotAudio <- payload:
				default:
				}
			case websocket.TextMessage:
				var msg struct {
					Type string `json:"type"`
				}
				if err := json.Unmarshal(payload, &msg); err != nil {
					continue
				}
				switch msg.Type {
				case "ForceEndpoint":
					_ = conn.WriteJSON(map[string]any{"type": "Turn", "transcript": "what is a goroutine", "end_of_turn": true})
				case "Terminate":
					return
				}
			}
		}
	}))
	defer srv.Close()

	client := NewAssemblyAIClient("aai-key")
	client.baseURL = "ws" + strings.TrimPrefix(srv.URL, "http")

	stream, err := client.OpenStream(context.Background(), StreamConfig{SampleRate: 16000})
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer stream.Close()

	r := mustResult(t, stream)
	if r.Text != "what is a goroutine" || r.IsFinal {
		t.Fatalf("expected interim result, got %+v", r)
	}

	pcm := []byte{0x01, 0x00, 0x02, 0x00}
	if err := stream.SendPCM16LE(pcm); err != nil {
		t.Fatalf("send pcm: %v", err)
	}
	select {
	case got := <-gotAudio:
		if !bytes.Equal(got, pcm) {
			t.Fatalf("expected audio %v, got %v", pcm, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for audio at server")
	}

	if err := stream.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	r = mustResult(t, stream)
	if r.Text != "what is a goroutine" || !r.IsFinal {
		t.Fatalf("expected final result, got %+v", r)
	}
}

func mustResult(t *testing.T, stream Stream) Result {
	t.Helper()
	select {
	case r, ok := <-stream.Results():
		if !ok {
			t.Fatalf("results channel closed")
		}
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for result")
	}
	return Result{}
}
