package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/interviewmate/copilot/wire"
)

// ErrNotConnected reports a send attempted while the transport is down.
var ErrNotConnected = errors.New("client: transport not connected")

// Reconnect backoff bounds.
const (
	DefaultReconnectMin = 1 * time.Second
	DefaultReconnectMax = 30 * time.Second
)

// TransportConfig tunes the session transport.
type TransportConfig struct {
	// URL is the websocket endpoint, e.g. ws://host/ws/interview.
	URL string
	// Header carries auth/identity headers for the dial.
	Header http.Header
	// ReconnectMin/ReconnectMax bound the exponential backoff. Zero values
	// take the defaults.
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	// DisableReconnect turns automatic reconnection off; the transport then
	// only emits DisconnectedEvent and stays down.
	DisableReconnect bool
}

// Transport is the duplex session channel: binary audio frames out, JSON
// envelopes both ways. One Transport serves one session at a time.
type Transport struct {
	cfg    TransportConfig
	dialer *websocket.Dialer

	mu   sync.Mutex // guards conn swaps and all writes
	conn *websocket.Conn

	events    chan Event
	connected atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewTransport builds a transport for the given endpoint. Connect dials it.
func NewTransport(cfg TransportConfig) *Transport {
	if cfg.ReconnectMin == 0 {
		cfg.ReconnectMin = DefaultReconnectMin
	}
	if cfg.ReconnectMax == 0 {
		cfg.ReconnectMax = DefaultReconnectMax
	}
	return &Transport{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   64 * 1024,
			WriteBufferSize:  64 * 1024,
		},
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
}

// Events delivers inbound events in arrival order. Closed when the transport
// shuts down for good.
func (t *Transport) Events() <-chan Event { return t.events }

// IsConnected reflects live connection status.
func (t *Transport) IsConnected() bool { return t.connected.Load() }

// Connect establishes the duplex channel and starts the read loop.
func (t *Transport) Connect(ctx context.Context) error {
	if t.closed.Load() {
		return errors.New("client: transport closed")
	}
	conn, resp, err := t.dialer.DialContext(ctx, t.cfg.URL, t.cfg.Header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("client: dial %s: %w (status %d)", t.cfg.URL, err, resp.StatusCode)
		}
		return fmt.Errorf("client: dial %s: %w", t.cfg.URL, err)
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	t.connected.Store(true)
	go t.readLoop()
	return nil
}

// Close shuts the transport down. No reconnection is attempted afterwards.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		t.connected.Store(false)
		close(t.done)
		t.mu.Lock()
		if t.conn != nil {
			err = t.conn.Close()
		} else {
			// Read loop never started; nothing else will close events.
			close(t.events)
		}
		t.mu.Unlock()
	})
	return err
}

// SendAudio transmits one chunk as a binary frame. Emission order is
// preserved; the server detects sequence gaps and never requests
// retransmission.
func (t *Transport) SendAudio(chunk wire.AudioChunk) error {
	return t.write(websocket.BinaryMessage, wire.EncodeFrame(chunk))
}

// SendContext transmits the candidate context. Required once per session
// activation and again after any reconnect.
func (t *Transport) SendContext(payload wire.ContextPayload) error {
	return t.sendEnvelope(wire.TypeContext, payload)
}

// SendConfig announces the audio format before the first binary frame.
func (t *Transport) SendConfig(payload wire.ConfigPayload) error {
	return t.sendEnvelope(wire.TypeConfig, payload)
}

// Finalize forces a question boundary at the current transcript state.
func (t *Transport) Finalize() error {
	return t.sendEnvelope(wire.TypeFinalize, nil)
}

// RequestAnswer asks for (re)generation for an explicit question text,
// bypassing boundary detection.
func (t *Transport) RequestAnswer(question, questionType string) error {
	return t.sendEnvelope(wire.TypeRequestAnswer, wire.RequestAnswerPayload{
		Question:     question,
		QuestionType: questionType,
	})
}

// Clear resets server-side transcript state, answer history, and stored
// context without closing the channel.
func (t *Transport) Clear() error {
	return t.sendEnvelope(wire.TypeClear, nil)
}

func (t *Transport) sendEnvelope(typ string, payload any) error {
	env, err := wire.NewEnvelope(typ, payload)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("client: marshal %s envelope: %w", typ, err)
	}
	return t.write(websocket.TextMessage, raw)
}

func (t *Transport) write(messageType int, data []byte) error {
	if !t.connected.Load() {
		return ErrNotConnected
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return ErrNotConnected
	}
	return t.conn.WriteMessage(messageType, data)
}

// readLoop owns the connection lifecycle: it decodes inbound envelopes into
// events and runs the backoff reconnect when the connection drops.
func (t *Transport) readLoop() {
	defer close(t.events)
	for {
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()
		if conn == nil {
			return
		}

		messageType, data, err := conn.ReadMessage()
		if err != nil {
			t.connected.Store(false)
			if t.closed.Load() {
				return
			}
			t.emit(DisconnectedEvent{Err: err})
			if t.cfg.DisableReconnect {
				return
			}
			if !t.reconnect() {
				return
			}
			continue
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env wire.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("transport: bad envelope: %v", err)
			continue
		}
		ev, err := decodeEvent(env)
		if err != nil {
			log.Printf("transport: %v", err)
			continue
		}
		if ev != nil {
			t.emit(ev)
		}
	}
}

// reconnect retries the dial with capped exponential backoff. Returns false
// once the transport is closed.
func (t *Transport) reconnect() bool {
	delay := t.cfg.ReconnectMin
	for attempt := 1; ; attempt++ {
		select {
		case <-t.done:
			return false
		case <-time.After(delay):
		}

		conn, _, err := t.dialer.Dial(t.cfg.URL, t.cfg.Header)
		if err == nil {
			t.mu.Lock()
			t.conn = conn
			t.mu.Unlock()
			t.connected.Store(true)
			t.emit(ReconnectedEvent{Attempts: attempt})
			return true
		}
		log.Printf("transport: reconnect attempt %d failed: %v", attempt, err)

		delay *= 2
		if delay > t.cfg.ReconnectMax {
			delay = t.cfg.ReconnectMax
		}
	}
}

// emit delivers in order, blocking until the consumer takes the event or the
// transport closes. Event order is part of the protocol contract, so events
// are never dropped.
func (t *Transport) emit(ev Event) {
	select {
	case t.events <- ev:
	case <-t.done:
	}
}

func decodeEvent(env wire.Envelope) (Event, error) {
	switch env.Type {
	case wire.TypeTranscription:
		var p wire.TranscriptionPayload
		if err := env.Decode(&p); err != nil {
			return nil, err
		}
		return TranscriptionEvent{p}, nil
	case wire.TypeQuestionDetected:
		var p wire.QuestionDetectedPayload
		if err := env.Decode(&p); err != nil {
			return nil, err
		}
		return QuestionEvent{p}, nil
	case wire.TypeAnswer:
		var p wire.AnswerPayload
		if err := env.Decode(&p); err != nil {
			return nil, err
		}
		return AnswerEvent{p}, nil
	case wire.TypeError:
		var p wire.ErrorPayload
		if err := env.Decode(&p); err != nil {
			return nil, err
		}
		return ErrorEvent{p}, nil
	case wire.TypeStatus:
		var p wire.StatusPayload
		if err := env.Decode(&p); err != nil {
			return nil, err
		}
		return StatusEvent{p}, nil
	default:
		return nil, fmt.Errorf("unknown envelope type %q", env.Type)
	}
}
