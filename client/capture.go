package client

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hraban/opus"

	"github.com/interviewmate/copilot/wire"
)

// Capture defaults. The silence threshold is an RMS amplitude over int16
// samples; sustained quiet at or below it for SilenceDuration raises one
// SilenceDetected signal.
const (
	DefaultSampleRate       = 16000
	DefaultChunkMillis      = 1000
	DefaultSilenceThreshold = 250.0
	DefaultSilenceDuration  = 800 * time.Millisecond

	opusFrameMillis = 20
)

// CaptureConfig tunes the capture engine. Zero values take the defaults.
type CaptureConfig struct {
	SampleRate       int
	ChunkMillis      int
	SilenceThreshold float64
	SilenceDuration  time.Duration
	// Encoding selects the outgoing chunk payload: wire.EncodingPCM16
	// (default) or wire.EncodingOpus.
	Encoding uint8
	// Realtime paces reads to the chunk cadence. Needed for file sources
	// that would otherwise be consumed instantly; live sources pace
	// themselves.
	Realtime bool
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.ChunkMillis == 0 {
		c.ChunkMillis = DefaultChunkMillis
	}
	if c.SilenceThreshold == 0 {
		c.SilenceThreshold = DefaultSilenceThreshold
	}
	if c.SilenceDuration == 0 {
		c.SilenceDuration = DefaultSilenceDuration
	}
	if c.Encoding == 0 {
		c.Encoding = wire.EncodingPCM16
	}
	return c
}

// CaptureEngine owns the input device, chunks PCM at a fixed cadence, tags
// chunks with monotonic sequence numbers, computes a per-chunk RMS level,
// and raises one-shot silence signals.
type CaptureEngine struct {
	dev Device
	cfg CaptureConfig

	chunks  chan wire.AudioChunk
	silence chan struct{}

	levelBits atomic.Uint64 // float64 bits of the last chunk RMS
	seq       atomic.Uint64
	paused    atomic.Bool

	enc *opus.Encoder

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewCaptureEngine wires a device to a config. Start acquires the device.
func NewCaptureEngine(dev Device, cfg CaptureConfig) *CaptureEngine {
	return &CaptureEngine{
		dev:     dev,
		cfg:     cfg.withDefaults(),
		chunks:  make(chan wire.AudioChunk, 16),
		silence: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Chunks delivers emitted audio chunks in sequence order. Closed after Stop
// once the final partial chunk has been flushed.
func (e *CaptureEngine) Chunks() <-chan wire.AudioChunk { return e.chunks }

// Silence signals sustained quiet, at most once per quiet interval; the
// detector re-arms only after the level crosses back above the threshold.
func (e *CaptureEngine) Silence() <-chan struct{} { return e.silence }

// Level returns the RMS amplitude of the most recent chunk.
func (e *CaptureEngine) Level() float64 {
	return math.Float64frombits(e.levelBits.Load())
}

// Pause suspends chunk emission and silence evaluation without releasing the
// device. Audio read while paused is discarded.
func (e *CaptureEngine) Pause() { e.paused.Store(true) }

// Resume continues chunk emission.
func (e *CaptureEngine) Resume() { e.paused.Store(false) }

// Start acquires the device and begins emitting chunks. A device failure
// wraps ErrDeviceUnavailable.
func (e *CaptureEngine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return errors.New("client: capture already started")
	}
	if err := e.dev.Open(); err != nil {
		if !errors.Is(err, ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		return err
	}
	if e.cfg.Encoding == wire.EncodingOpus {
		enc, err := opus.NewEncoder(e.cfg.SampleRate, 1, opus.AppVoIP)
		if err != nil {
			_ = e.dev.Close()
			return fmt.Errorf("client: opus encoder: %w", err)
		}
		e.enc = enc
	}
	e.started = true
	go e.run()
	return nil
}

// Stop releases the device and flushes any buffered partial chunk. The
// Chunks channel is closed once the flush completes.
func (e *CaptureEngine) Stop() {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()
	close(e.stopCh)
	_ = e.dev.Close()
	<-e.done
}

func (e *CaptureEngine) run() {
	defer close(e.done)
	defer close(e.chunks)

	chunkBytes := e.cfg.SampleRate * e.cfg.ChunkMillis / 1000 * 2
	buf := make([]byte, chunkBytes)

	var ticker *time.Ticker
	if e.cfg.Realtime {
		ticker = time.NewTicker(time.Duration(e.cfg.ChunkMillis) * time.Millisecond)
		defer ticker.Stop()
	}

	quiet := time.Duration(0)
	armed := true

	for {
		n, err := io.ReadFull(e.dev, buf)
		if n > 0 && !e.paused.Load() {
			e.emit(buf[:n&^1], &quiet, &armed)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !e.isStopping() {
				log.Printf("capture: device read error: %v", err)
			}
			return
		}
		if ticker != nil {
			select {
			case <-ticker.C:
			case <-e.stopCh:
				return
			}
		} else {
			select {
			case <-e.stopCh:
				return
			default:
			}
		}
	}
}

func (e *CaptureEngine) isStopping() bool {
	select {
	case <-e.stopCh:
		return true
	default:
		return false
	}
}

// emit computes the level, evaluates silence, encodes if configured, and
// hands the chunk to the transport side. Ownership of the payload transfers
// with the chunk.
func (e *CaptureEngine) emit(pcm []byte, quiet *time.Duration, armed *bool) {
	rms := rmsLevel(pcm)
	e.levelBits.Store(math.Float64bits(rms))

	chunkDur := time.Duration(len(pcm)/2) * time.Second / time.Duration(e.cfg.SampleRate)
	if rms < e.cfg.SilenceThreshold {
		*quiet += chunkDur
		if *armed && *quiet >= e.cfg.SilenceDuration {
			select {
			case e.silence <- struct{}{}:
			default:
			}
			*armed = false
			*quiet = 0
		}
	} else {
		*quiet = 0
		*armed = true
	}

	payload := make([]byte, len(pcm))
	copy(payload, pcm)
	if e.enc != nil {
		encoded, err := e.encodeOpus(payload)
		if err != nil {
			log.Printf("capture: opus encode error: %v", err)
			return
		}
		payload = encoded
	}

	chunk := wire.AudioChunk{
		Encoding:   e.cfg.Encoding,
		SampleRate: uint32(e.cfg.SampleRate),
		Sequence:   e.seq.Add(1),
		CapturedAt: time.Now(),
		Payload:    payload,
	}
	select {
	case e.chunks <- chunk:
	case <-e.stopCh:
	}
}

// encodeOpus packs the PCM chunk into a length-prefixed Opus packet stream,
// zero-padding the tail to a full 20ms frame.
func (e *CaptureEngine) encodeOpus(pcm []byte) ([]byte, error) {
	frameSamples := e.cfg.SampleRate / 1000 * opusFrameMillis
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}

	var stream []byte
	pktBuf := make([]byte, 4000)
	for off := 0; off < len(samples); off += frameSamples {
		frame := samples[off:min(off+frameSamples, len(samples))]
		if len(frame) < frameSamples {
			padded := make([]int16, frameSamples)
			copy(padded, frame)
			frame = padded
		}
		n, err := e.enc.Encode(frame, pktBuf)
		if err != nil {
			return nil, err
		}
		stream = wire.AppendPacket(stream, pktBuf[:n])
	}
	return stream, nil
}

// rmsLevel computes the RMS amplitude of little-endian int16 samples.
func rmsLevel(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}
	var sumSquares float64
	count := 0
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i:])))
		sumSquares += s * s
		count++
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sumSquares / float64(count))
}
