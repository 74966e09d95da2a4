// Package session owns the per-connection server state: ordered audio
// ingest, transcript accumulation, question boundaries, and answer history.
// Sessions are isolated from each other; within a session audio is processed
// in arrival order.
package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hraban/opus"

	"github.com/interviewmate/copilot/internal/answer"
	"github.com/interviewmate/copilot/internal/question"
	"github.com/interviewmate/copilot/internal/recognizer"
	"github.com/interviewmate/copilot/wire"
)

const (
	// ingestBuffer absorbs chunk bursts while a boundary decision runs.
	ingestBuffer = 1000
	eventBuffer  = 64
	genBuffer    = 8

	defaultGenTimeout = 20 * time.Second

	defaultSampleRate = 16000
	defaultLanguage   = "en-US"

	// opus frames decode to at most 120 ms of samples.
	opusMaxFrameSamples = 1920
)

// ProfileFetcher looks up stored interview context for a user. The lookup
// is owned by an external profile service.
type ProfileFetcher interface {
	Fetch(ctx context.Context, userID string) (wire.ContextPayload, error)
}

// Config is the session's audio format, set once before audio flows.
type Config struct {
	SampleRate int
	Encoding   uint8
	Language   string
}

type genJob struct {
	eventID      string
	question     string
	questionType string
	regenerated  bool
}

// Options wires a session. Recognizer, Detector and Generator are required;
// Profiles and Sink are optional.
type Options struct {
	UserID     string
	Recognizer recognizer.Service
	Detector   *question.Detector
	Generator  *answer.Generator
	Profiles   ProfileFetcher
	Sink       Sink
	Config     Config
	GenTimeout time.Duration
}

// Session is one live copilot connection.
type Session struct {
	ID     string
	UserID string

	recognizer recognizer.Service
	detector   *question.Detector
	generator  *answer.Generator
	profiles   ProfileFetcher
	sink       Sink
	genTimeout time.Duration

	acc     *Accumulator
	context *ContextStore

	ctx    context.Context
	cancel context.CancelFunc

	events  chan wire.Envelope
	ingest  chan wire.AudioChunk
	genJobs chan genJob

	mu           sync.Mutex
	cfg          Config
	stream       recognizer.Stream
	streamFailed bool
	history      []answer.Record

	// ingest goroutine state
	dec     *opus.Decoder
	lastSeq uint64
	gaps    int

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New(opts Options) *Session {
	cfg := opts.Config
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.Encoding == 0 {
		cfg.Encoding = wire.EncodingPCM16
	}
	if cfg.Language == "" {
		cfg.Language = defaultLanguage
	}
	timeout := opts.GenTimeout
	if timeout <= 0 {
		timeout = defaultGenTimeout
	}

	return &Session{
		ID:         uuid.NewString(),
		UserID:     opts.UserID,
		recognizer: opts.Recognizer,
		detector:   opts.Detector,
		generator:  opts.Generator,
		profiles:   opts.Profiles,
		sink:       opts.Sink,
		genTimeout: timeout,
		acc:        NewAccumulator(),
		context:    NewContextStore(),
		events:     make(chan wire.Envelope, eventBuffer),
		ingest:     make(chan wire.AudioChunk, ingestBuffer),
		genJobs:    make(chan genJob, genBuffer),
		cfg:        cfg,
	}
}

// Start launches the session goroutines and announces readiness. Must be
// called exactly once before any other method.
func (s *Session) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go s.ingestLoop()
	go s.generationWorker()

	if s.sink != nil {
		s.sink.SessionStarted(s.ID, s.UserID)
	}
	log.Printf("[%s] session started (user=%s)", s.ID, s.UserID)
	s.emitStatus(wire.StatusReady, "")
}

// Events is the ordered stream of envelopes for the client. It is never
// closed; consumers stop on Done.
func (s *Session) Events() <-chan wire.Envelope { return s.events }

// Done is closed when the session shuts down.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Close cancels in-flight work and releases the recognizer stream. An
// answer still generating when Close is called is never delivered.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.cancel == nil {
			return
		}
		s.cancel()
		s.mu.Lock()
		stream := s.stream
		s.mu.Unlock()
		if stream != nil {
			_ = stream.Close()
		}
		s.wg.Wait()
		if s.sink != nil {
			s.sink.SessionEnded(s.ID, s.Records())
		}
		log.Printf("[%s] session closed (gaps=%d)", s.ID, s.gaps)
	})
}

// IngestAudio queues one audio chunk for in-order processing.
func (s *Session) IngestAudio(chunk wire.AudioChunk) error {
	select {
	case s.ingest <- chunk:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// SetContext swaps the session context. An empty payload with a user id
// falls back to the stored profile when a fetcher is wired.
func (s *Session) SetContext(payload wire.ContextPayload) {
	if payload.Empty() && payload.UserID != "" && s.profiles != nil {
		fetched, err := s.profiles.Fetch(s.ctx, payload.UserID)
		if err != nil {
			log.Printf("[%s] profile fetch for %s failed: %v", s.ID, payload.UserID, err)
		} else {
			fetched.UserID = payload.UserID
			payload = fetched
		}
	}

	s.context.Set(payload)
	log.Printf("[%s] context updated: %d stories, %d points, %d q&a pairs",
		s.ID, len(payload.StarStories), len(payload.TalkingPoints), len(payload.QAPairs))
	s.emitStatus(wire.StatusContextAck, fmt.Sprintf("%d stories, %d talking points, %d qa pairs",
		len(payload.StarStories), len(payload.TalkingPoints), len(payload.QAPairs)))
}

// Configure sets the audio format. Changes after the recognizer stream is
// open apply only to a future stream and are logged.
func (s *Session) Configure(payload wire.ConfigPayload) {
	enc, ok := encodingFromString(payload.Encoding)
	if !ok {
		s.emitError(wire.ErrCodeBadRequest, fmt.Sprintf("unknown encoding %q", payload.Encoding))
		return
	}

	s.mu.Lock()
	if payload.SampleRate > 0 {
		s.cfg.SampleRate = payload.SampleRate
	}
	if payload.Language != "" {
		s.cfg.Language = payload.Language
	}
	s.cfg.Encoding = enc
	cfg := s.cfg
	streamOpen := s.stream != nil
	s.mu.Unlock()

	if streamOpen {
		log.Printf("[%s] config changed after audio start; applies to next stream", s.ID)
	}
	s.emitStatus(wire.StatusConfigAck, fmt.Sprintf("%s @ %d Hz", encodingName(cfg.Encoding), cfg.SampleRate))
}

// Finalize forces a question boundary at the current transcript state.
// The decision is one-shot: at most one question event per call.
func (s *Session) Finalize() {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream != nil {
		if err := stream.Finalize(); err != nil {
			log.Printf("[%s] recognizer finalize: %v", s.ID, err)
		}
	}

	s.emitStatus(wire.StatusDetecting, "")
	snapshot := s.acc.Freeze()

	if snapshot != "" && s.sink != nil {
		s.sink.TranscriptFinalized(s.ID, snapshot)
	}

	ev, ok := s.detector.Detect(snapshot)
	if !ok {
		log.Printf("[%s] boundary without question (%d chars)", s.ID, len(snapshot))
		s.emitStatus(wire.StatusNoQuestion, "")
		return
	}

	eventID := uuid.NewString()
	log.Printf("[%s] question detected (%s): %q", s.ID, ev.Type, ev.Question)
	if s.sink != nil {
		s.sink.QuestionDetected(s.ID, eventID, ev)
	}
	s.emit(wire.TypeQuestionDetected, wire.QuestionDetectedPayload{
		EventID:      eventID,
		Question:     ev.Question,
		QuestionType: ev.Type,
		Transcript:   ev.Transcript,
	})
	s.enqueue(genJob{
		eventID:      eventID,
		question:     ev.Question,
		questionType: ev.Type,
	})
}

// RequestAnswer regenerates an answer for the given question text without
// touching the transcript state.
func (s *Session) RequestAnswer(questionText, questionType string) {
	questionText = strings.TrimSpace(questionText)
	if questionText == "" {
		s.emitError(wire.ErrCodeBadRequest, "request_answer requires a question")
		return
	}
	if questionType == "" {
		if ev, ok := s.detector.Detect(questionText); ok {
			questionType = ev.Type
		} else {
			questionType = question.TypeGeneral
		}
	}
	s.enqueue(genJob{
		eventID:      uuid.NewString(),
		question:     questionText,
		questionType: questionType,
		regenerated:  true,
	})
}

// Clear resets transcript state, answer history view, and stored context,
// leaving the connection up.
func (s *Session) Clear() {
	s.acc.Reset()
	s.context.Clear()
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
	log.Printf("[%s] session cleared", s.ID)
	s.emitStatus(wire.StatusCleared, "")
}

// Records returns the answer history, newest first.
func (s *Session) Records() []answer.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]answer.Record, len(s.history))
	copy(out, s.history)
	return out
}

// Context returns the current context snapshot.
func (s *Session) Context() wire.ContextPayload {
	return s.context.Snapshot()
}

func (s *Session) enqueue(job genJob) {
	select {
	case s.genJobs <- job:
	case <-s.ctx.Done():
	}
}

func (s *Session) ingestLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case chunk := <-s.ingest:
			s.handleChunk(chunk)
		}
	}
}

func (s *Session) handleChunk(chunk wire.AudioChunk) {
	stream := s.ensureStream()
	if stream == nil {
		return
	}

	if s.lastSeq != 0 && chunk.Sequence != s.lastSeq+1 {
		s.gaps++
		log.Printf("[%s] audio gap: seq %d after %d", s.ID, chunk.Sequence, s.lastSeq)
	}
	if chunk.Sequence > s.lastSeq {
		s.lastSeq = chunk.Sequence
	}

	pcm := chunk.Payload
	if chunk.Encoding == wire.EncodingOpus {
		decoded, err := s.decodeOpus(chunk.Payload)
		if err != nil {
			log.Printf("[%s] opus decode: %v", s.ID, err)
			return
		}
		pcm = decoded
	}

	if err := stream.SendPCM16LE(pcm); err != nil {
		log.Printf("[%s] recognizer send: %v", s.ID, err)
	}
}

// ensureStream lazily opens the recognizer stream with the config in force
// at first audio. A failed open is surfaced once; later chunks are dropped.
func (s *Session) ensureStream() recognizer.Stream {
	s.mu.Lock()
	if s.stream != nil {
		stream := s.stream
		s.mu.Unlock()
		return stream
	}
	if s.streamFailed {
		s.mu.Unlock()
		return nil
	}
	cfg := s.cfg
	s.mu.Unlock()

	stream, err := s.recognizer.OpenStream(s.ctx, recognizer.StreamConfig{
		SampleRate: cfg.SampleRate,
		Language:   cfg.Language,
	})
	if err != nil {
		s.mu.Lock()
		s.streamFailed = true
		s.mu.Unlock()
		log.Printf("[%s] recognizer unavailable: %v", s.ID, err)
		s.emitError(wire.ErrCodeRecognizerUnavailable, "speech recognizer unavailable")
		return nil
	}

	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()

	s.wg.Add(1)
	go s.resultsLoop(stream)
	return stream
}

func (s *Session) resultsLoop(stream recognizer.Stream) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case r, ok := <-stream.Results():
			if !ok {
				return
			}
			if r.IsFinal {
				accumulated := s.acc.Commit(r.Text)
				s.emit(wire.TypeTranscription, wire.TranscriptionPayload{
					Text:            r.Text,
					AccumulatedText: accumulated,
					IsFinal:         true,
				})
			} else {
				s.acc.Update(r.Text)
				_, accumulated := s.acc.Snapshot()
				s.emit(wire.TypeTranscription, wire.TranscriptionPayload{
					Text:            r.Text,
					AccumulatedText: accumulated,
					IsFinal:         false,
				})
			}
		}
	}
}

func (s *Session) generationWorker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case job := <-s.genJobs:
			s.runGeneration(job)
		}
	}
}

func (s *Session) runGeneration(job genJob) {
	genCtx, cancel := context.WithTimeout(s.ctx, s.genTimeout)
	defer cancel()

	rec, err := s.generator.Generate(genCtx, job.question, job.questionType, s.context.Snapshot())
	if err != nil {
		if s.ctx.Err() != nil {
			// Session went away mid-flight; nothing to deliver.
			return
		}
		log.Printf("[%s] generation failed: %v", s.ID, err)
		if errors.Is(err, context.DeadlineExceeded) || genCtx.Err() == context.DeadlineExceeded {
			s.emitError(wire.ErrCodeGenerationTimeout, "answer generation timed out")
		} else {
			s.emitError(wire.ErrCodeGenerationFailure, "answer generation failed")
		}
		return
	}

	s.mu.Lock()
	s.history = append([]answer.Record{rec}, s.history...)
	s.mu.Unlock()

	if s.sink != nil {
		s.sink.AnswerGenerated(s.ID, rec, job.regenerated)
	}
	s.emit(wire.TypeAnswer, wire.AnswerPayload{
		RecordID:     rec.ID,
		EventID:      job.eventID,
		Question:     rec.Question,
		QuestionType: rec.QuestionType,
		Answer:       rec.Answer,
		Grounded:     rec.Grounded,
		GroundedOn:   rec.GroundedOn,
		Regenerated:  job.regenerated,
		CreatedAt:    rec.CreatedAt,
	})
}

func (s *Session) decodeOpus(payload []byte) ([]byte, error) {
	if s.dec == nil {
		s.mu.Lock()
		rate := s.cfg.SampleRate
		s.mu.Unlock()
		dec, err := opus.NewDecoder(rate, 1)
		if err != nil {
			return nil, fmt.Errorf("create decoder: %w", err)
		}
		s.dec = dec
	}

	samples := make([]int16, opusMaxFrameSamples)
	out := make([]byte, 0, len(payload)*8)
	rest := payload
	for {
		var pkt []byte
		var err error
		pkt, rest, err = wire.NextPacket(rest)
		if err != nil {
			return nil, err
		}
		if pkt == nil {
			break
		}
		n, err := s.dec.Decode(pkt, samples)
		if err != nil {
			return nil, err
		}
		start := len(out)
		out = append(out, make([]byte, n*2)...)
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint16(out[start+i*2:], uint16(samples[i]))
		}
	}
	return out, nil
}

func (s *Session) emit(typ string, payload any) {
	env, err := wire.NewEnvelope(typ, payload)
	if err != nil {
		log.Printf("[%s] encode %s event: %v", s.ID, typ, err)
		return
	}
	select {
	case s.events <- env:
	case <-s.ctx.Done():
	}
}

func (s *Session) emitStatus(state, detail string) {
	s.emit(wire.TypeStatus, wire.StatusPayload{State: state, SessionID: s.ID, Detail: detail})
}

func (s *Session) emitError(code, message string) {
	s.emit(wire.TypeError, wire.ErrorPayload{Code: code, Message: message})
}

func encodingFromString(enc string) (uint8, bool) {
	switch strings.ToLower(strings.TrimSpace(enc)) {
	case "", "pcm_s16le", "pcm16", "linear16":
		return wire.EncodingPCM16, true
	case "opus":
		return wire.EncodingOpus, true
	}
	return 0, false
}

func encodingName(enc uint8) string {
	if enc == wire.EncodingOpus {
		return "opus"
	}
	return "pcm_s16le"
}
