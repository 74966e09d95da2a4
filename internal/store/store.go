// Package store persists session history rows in Postgres. The server runs
// fine without it; a nil store simply records nothing.
package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/interviewmate/copilot/internal/answer"
	"github.com/interviewmate/copilot/internal/question"
)

// writeTimeout caps one sink write so a slow database never stalls a session.
const writeTimeout = 5 * time.Second

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS interview_sessions (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		ended_at TIMESTAMPTZ,
		answer_count INT NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS session_messages (
		id BIGSERIAL PRIMARY KEY,
		session_id UUID NOT NULL REFERENCES interview_sessions (id),
		kind TEXT NOT NULL CHECK (kind IN ('transcript', 'question', 'answer')),
		event_id TEXT NOT NULL DEFAULT '',
		question_type TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		grounded BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *Store) CreateSession(ctx context.Context, sessionID, userID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO interview_sessions (id, user_id) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		sessionID, userID)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) CompleteSession(ctx context.Context, sessionID string, answerCount int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE interview_sessions SET ended_at = now(), answer_count = $2 WHERE id = $1`,
		sessionID, answerCount)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, sessionID, kind, eventID, questionType, content string, grounded bool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_messages (session_id, kind, event_id, question_type, content, grounded)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		sessionID, kind, eventID, questionType, content, grounded)
	if err != nil {
		return fmt.Errorf("insert %s message: %w", kind, err)
	}
	return nil
}

// Recorder adapts the store to the session sink. Write failures are logged
// and never surfaced to the session.
type Recorder struct {
	store *Store
}

func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

func (r *Recorder) SessionStarted(sessionID, userID string) {
	r.write("create session", func(ctx context.Context) error {
		return r.store.CreateSession(ctx, sessionID, userID)
	})
}

func (r *Recorder) TranscriptFinalized(sessionID, transcript string) {
	r.write("record transcript", func(ctx context.Context) error {
		return r.store.AppendMessage(ctx, sessionID, "transcript", "", "", transcript, false)
	})
}

func (r *Recorder) QuestionDetected(sessionID, eventID string, ev question.Event) {
	r.write("record question", func(ctx context.Context) error {
		return r.store.AppendMessage(ctx, sessionID, "question", eventID, ev.Type, ev.Question, false)
	})
}

func (r *Recorder) AnswerGenerated(sessionID string, rec answer.Record, _ bool) {
	r.write("record answer", func(ctx context.Context) error {
		return r.store.AppendMessage(ctx, sessionID, "answer", rec.ID, rec.QuestionType, rec.Answer, rec.Grounded)
	})
}

func (r *Recorder) SessionEnded(sessionID string, history []answer.Record) {
	r.write("complete session", func(ctx context.Context) error {
		return r.store.CompleteSession(ctx, sessionID, len(history))
	})
}

func (r *Recorder) write(what string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Printf("store: %s: %v", what, err)
	}
}
