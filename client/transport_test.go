package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/interviewmate/copilot/wire"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	env, err := wire.NewEnvelope(typ, payload)
	if err != nil {
		t.Errorf("new envelope: %v", err)
		return
	}
	raw, _ := json.Marshal(env)
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Errorf("write envelope: %v", err)
	}
}

func nextEvent(t *testing.T, tr *Transport) Event {
	t.Helper()
	select {
	case ev, ok := <-tr.Events():
		if !ok {
			t.Fatalf("event channel closed early")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return nil
}

func TestTransportRoundTrip(t *testing.T) {
	gotContext := make(chan wire.ContextPayload, 1)
	gotAudio := make(chan wire.AudioChunk, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		sendEnvelope(t, conn, wire.TypeStatus, wire.StatusPayload{State: wire.StatusReady, SessionID: "sess-1"})

		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			switch messageType {
			case websocket.TextMessage:
				var env wire.Envelope
				if err := json.Unmarshal(data, &env); err != nil {
					t.Errorf("bad envelope: %v", err)
					return
				}
				if env.Type == wire.TypeContext {
					var p wire.ContextPayload
					_ = env.Decode(&p)
					gotContext <- p
					sendEnvelope(t, conn, wire.TypeStatus, wire.StatusPayload{State: wire.StatusContextAck})
				}
			case websocket.BinaryMessage:
				chunk, err := wire.DecodeFrame(data)
				if err != nil {
					t.Errorf("decode frame: %v", err)
					return
				}
				gotAudio <- chunk
			}
		}
	}))
	defer srv.Close()

	tr := NewTransport(TransportConfig{URL: wsURL(srv), DisableReconnect: true})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.Close()

	if !tr.IsConnected() {
		t.Fatalf("expected transport to report connected")
	}

	ev := nextEvent(t, tr)
	st, ok := ev.(StatusEvent)
	if !ok || st.State != wire.StatusReady || st.SessionID != "sess-1" {
		t.Fatalf("expected ready status, got %#v", ev)
	}

	if err := tr.SendContext(wire.ContextPayload{UserID: "u1", ResumeText: "resume"}); err != nil {
		t.Fatalf("send context: %v", err)
	}
	select {
	case p := <-gotContext:
		if p.UserID != "u1" || p.ResumeText != "resume" {
			t.Fatalf("unexpected context payload: %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server never received context")
	}

	ev = nextEvent(t, tr)
	st, ok = ev.(StatusEvent)
	if !ok || st.State != wire.StatusContextAck {
		t.Fatalf("expected context_ack, got %#v", ev)
	}

	if err := tr.SendAudio(wire.AudioChunk{
		Encoding:   wire.EncodingPCM16,
		SampleRate: 16000,
		Sequence:   7,
		CapturedAt: time.Now(),
		Payload:    []byte{1, 2, 3, 4},
	}); err != nil {
		t.Fatalf("send audio: %v", err)
	}
	select {
	case chunk := <-gotAudio:
		if chunk.Sequence != 7 || chunk.SampleRate != 16000 {
			t.Fatalf("unexpected chunk: %+v", chunk)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server never received audio frame")
	}
}

func TestTransportReconnectsWithBackoff(t *testing.T) {
	var conns int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := atomic.AddInt32(&conns, 1)
		if n == 1 {
			// Drop the first connection immediately.
			conn.Close()
			return
		}
		defer conn.Close()
		sendEnvelope(t, conn, wire.TypeStatus, wire.StatusPayload{State: wire.StatusReady, SessionID: "sess-2"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	tr := NewTransport(TransportConfig{
		URL:          wsURL(srv),
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 50 * time.Millisecond,
	})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.Close()

	ev := nextEvent(t, tr)
	if _, ok := ev.(DisconnectedEvent); !ok {
		t.Fatalf("expected DisconnectedEvent first, got %#v", ev)
	}

	ev = nextEvent(t, tr)
	rc, ok := ev.(ReconnectedEvent)
	if !ok {
		t.Fatalf("expected ReconnectedEvent, got %#v", ev)
	}
	if rc.Attempts < 1 {
		t.Fatalf("expected at least one attempt, got %d", rc.Attempts)
	}

	ev = nextEvent(t, tr)
	st, ok := ev.(StatusEvent)
	if !ok || st.SessionID != "sess-2" {
		t.Fatalf("expected ready from second connection, got %#v", ev)
	}

	if atomic.LoadInt32(&conns) < 2 {
		t.Fatalf("expected a second connection, got %d", atomic.LoadInt32(&conns))
	}
}

func TestTransportSendWhileDisconnected(t *testing.T) {
	tr := NewTransport(TransportConfig{URL: "ws://127.0.0.1:0/ws", DisableReconnect: true})
	if err := tr.Finalize(); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := tr.SendAudio(wire.AudioChunk{Encoding: wire.EncodingPCM16}); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestTransportCloseStopsEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	tr := NewTransport(TransportConfig{URL: wsURL(srv), DisableReconnect: true})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case _, ok := <-tr.Events():
		if ok {
			t.Fatalf("expected no events after close")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("event channel did not close")
	}

	if tr.IsConnected() {
		t.Fatalf("expected disconnected after close")
	}
}
