package recognizer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// AssemblyAIClient opens live transcription streams against the AssemblyAI
// v3 realtime API. It serves as the recognizer when Deepgram is not
// configured.
type AssemblyAIClient struct {
	apiKey  string
	baseURL string // overrides the production endpoint in tests
}

func NewAssemblyAIClient(apiKey string) *AssemblyAIClient {
	return &AssemblyAIClient{apiKey: apiKey}
}

func (a *AssemblyAIClient) OpenStream(ctx context.Context, cfg StreamConfig) (Stream, error) {
	if a.apiKey == "" {
		return nil, fmt.Errorf("assemblyai: API key missing")
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	// The v3 realtime API transcribes English only; cfg.Language is ignored.
	params := url.Values{}
	params.Set("sample_rate", strconv.Itoa(sampleRate))
	params.Set("format_turns", "false")
	params.Set("encoding", "pcm_s16le")

	base := a.baseURL
	if base == "" {
		base = "wss://streaming.assemblyai.com/v3/ws"
	}
	wsURL := fmt.Sprintf("%s?%s", base, params.Encode())

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, http.Header{"Authorization": {a.apiKey}})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("assemblyai: connect: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("assemblyai: connect: %w", err)
	}

	s := &assemblyAIStream{
		conn:    conn,
		results: make(chan Result, 256),
		audio:   make(chan []byte, 1000),
		stopCh:  make(chan struct{}),
	}
	go s.readLoop()
	go s.sendLoop()
	return s, nil
}

// assemblyAIStream speaks the v3 realtime message protocol: binary frames
// carry PCM upstream, JSON Turn messages carry transcripts downstream. Turn
// transcripts grow within an utterance and end_of_turn marks the commit.
type assemblyAIStream struct {
	conn    *websocket.Conn
	results chan Result
	audio   chan []byte
	stopCh  chan struct{}

	// gorilla/websocket allows one concurrent writer.
	writeMu   sync.Mutex
	closeOnce sync.Once
}

type aaiBeginMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type aaiTurnMessage struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
	EndOfTurn  bool   `json:"end_of_turn"`
}

type aaiTerminationMessage struct {
	Type                   string  `json:"type"`
	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`
}

type aaiErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func (s *assemblyAIStream) SendPCM16LE(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	select {
	case <-s.stopCh:
		return fmt.Errorf("assemblyai: stream closed")
	default:
	}
	select {
	case s.audio <- pcm:
	default:
		log.Printf("assemblyai: audio backlog full, dropping %d bytes", len(pcm))
	}
	return nil
}

func (s *assemblyAIStream) Results() <-chan Result {
	return s.results
}

// Finalize forces an immediate end of turn so the pending transcript
// arrives as a final result.
func (s *assemblyAIStream) Finalize() error {
	if err := s.writeJSON(map[string]string{"type": "ForceEndpoint"}); err != nil {
		return fmt.Errorf("assemblyai: finalize: %w", err)
	}
	return nil
}

func (s *assemblyAIStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		_ = s.writeJSON(map[string]string{"type": "Terminate"})
		_ = s.conn.Close()
	})
	return nil
}

func (s *assemblyAIStream) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *assemblyAIStream) sendLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		case pcm := <-s.audio:
			s.writeMu.Lock()
			err := s.conn.WriteMessage(websocket.BinaryMessage, pcm)
			s.writeMu.Unlock()
			if err != nil {
				log.Printf("assemblyai: write audio: %v", err)
				return
			}
		}
	}
}

func (s *assemblyAIStream) readLoop() {
	defer close(s.results)
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopCh:
			default:
				log.Printf("assemblyai: read: %v", err)
			}
			return
		}
		s.handleMessage(message)
	}
}

func (s *assemblyAIStream) handleMessage(message []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &head); err != nil {
		log.Printf("assemblyai: decode message: %v", err)
		return
	}

	switch head.Type {
	case "Begin":
		var msg aaiBeginMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("assemblyai: decode Begin: %v", err)
			return
		}
		log.Printf("assemblyai: session %s open, expires %s",
			msg.ID, time.Unix(msg.ExpiresAt, 0).Format(time.RFC3339))
	case "Turn":
		var msg aaiTurnMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("assemblyai: decode Turn: %v", err)
			return
		}
		if msg.Transcript == "" {
			return
		}
		select {
		case s.results <- Result{Text: msg.Transcript, IsFinal: msg.EndOfTurn}:
		default:
			log.Printf("assemblyai: results backlog full, dropping %d chars (final=%v)",
				len(msg.Transcript), msg.EndOfTurn)
		}
	case "Termination":
		var msg aaiTerminationMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("assemblyai: decode Termination: %v", err)
			return
		}
		log.Printf("assemblyai: session terminated after %.2fs of audio", msg.AudioDurationSeconds)
	case "Error":
		var msg aaiErrorMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("assemblyai: decode Error: %v", err)
			return
		}
		log.Printf("assemblyai: server error: %s", msg.Error)
	default:
		log.Printf("assemblyai: unknown message type %q", head.Type)
	}
}
