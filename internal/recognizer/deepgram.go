package recognizer

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/listen"
)

// DeepgramClient opens live transcription streams against Deepgram.
type DeepgramClient struct {
	apiKey string
	model  string
}

func NewDeepgramClient(apiKey, model string) *DeepgramClient {
	if model == "" {
		model = "nova-2"
	}
	return &DeepgramClient{apiKey: apiKey, model: model}
}

// liveConn is the slice of the Deepgram websocket client a stream uses.
type liveConn interface {
	WriteBinary(data []byte) error
	Finalize() error
	Stop()
}

func (d *DeepgramClient) OpenStream(ctx context.Context, cfg StreamConfig) (Stream, error) {
	if d.apiKey == "" {
		return nil, fmt.Errorf("deepgram: API key missing")
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	language := cfg.Language
	if language == "" {
		language = "en-US"
	}

	tOptions := &clientinterfaces.LiveTranscriptionOptions{
		Model:          d.model,
		Language:       language,
		Encoding:       "linear16",
		SampleRate:     sampleRate,
		Channels:       1,
		InterimResults: true,
		Punctuate:      true,
		SmartFormat:    true,
		VadEvents:      true,
		UtteranceEndMs: "1000",
	}

	results := make(chan Result, 256)
	cb := &listenCallback{results: results}

	dg, err := listen.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, tOptions, cb)
	if err != nil {
		return nil, fmt.Errorf("deepgram: create ws client: %w", err)
	}
	if ok := dg.Connect(); !ok {
		return nil, fmt.Errorf("deepgram: connect failed")
	}

	return &deepgramStream{conn: dg, results: results}, nil
}

type deepgramStream struct {
	conn     liveConn
	results  chan Result
	stopOnce sync.Once
}

func (s *deepgramStream) SendPCM16LE(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	if err := s.conn.WriteBinary(pcm); err != nil {
		return fmt.Errorf("deepgram: write audio: %w", err)
	}
	return nil
}

func (s *deepgramStream) Results() <-chan Result {
	return s.results
}

func (s *deepgramStream) Finalize() error {
	if err := s.conn.Finalize(); err != nil {
		return fmt.Errorf("deepgram: finalize: %w", err)
	}
	return nil
}

func (s *deepgramStream) Close() error {
	s.stopOnce.Do(func() { s.conn.Stop() })
	return nil
}

type listenCallback struct {
	results chan<- Result
}

func (c *listenCallback) Open(*msginterfaces.OpenResponse) error {
	log.Printf("deepgram: connection open")
	return nil
}

func (c *listenCallback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	text := strings.TrimSpace(mr.Channel.Alternatives[0].Transcript)
	if text == "" {
		return nil
	}
	select {
	case c.results <- Result{Text: text, IsFinal: mr.IsFinal}:
	default:
		log.Printf("deepgram: results backlog full, dropping %d chars (final=%v)", len(text), mr.IsFinal)
	}
	return nil
}

func (c *listenCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }

func (c *listenCallback) SpeechStarted(*msginterfaces.SpeechStartedResponse) error { return nil }

func (c *listenCallback) UtteranceEnd(*msginterfaces.UtteranceEndResponse) error {
	log.Printf("deepgram: utterance end")
	return nil
}

func (c *listenCallback) Close(*msginterfaces.CloseResponse) error {
	log.Printf("deepgram: connection closed")
	return nil
}

func (c *listenCallback) Error(er *msginterfaces.ErrorResponse) error {
	log.Printf("deepgram: error: %s %s", er.Type, er.Description)
	return nil
}

func (c *listenCallback) UnhandledEvent([]byte) error { return nil }
