// Package recognizer is the speech recognition boundary: sessions feed PCM
// in and consume incremental results. The recognizer itself is an external
// service; only its stream contract lives here.
package recognizer

import "context"

// Result is one incremental recognition update. Interim results may be
// revised by later ones; a final result is confirmed text.
type Result struct {
	Text    string
	IsFinal bool
}

// Stream is one live recognition connection, scoped to a single session.
type Stream interface {
	// SendPCM16LE forwards mono little-endian int16 audio. Chunks must be
	// sent in capture order.
	SendPCM16LE(pcm []byte) error
	// Results delivers recognition updates in recognition order.
	Results() <-chan Result
	// Finalize flushes the recognizer so buffered audio surfaces as a final
	// result promptly.
	Finalize() error
	// Close tears the stream down. No results are delivered afterwards.
	Close() error
}

// Service opens recognition streams.
type Service interface {
	OpenStream(ctx context.Context, cfg StreamConfig) (Stream, error)
}

// StreamConfig carries the per-session audio format.
type StreamConfig struct {
	SampleRate int
	Language   string
}
