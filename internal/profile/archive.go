package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/supabase-community/supabase-go"

	"github.com/interviewmate/copilot/internal/answer"
	"github.com/interviewmate/copilot/internal/question"
)

// Archive uploads a JSON record of each finished session to Supabase
// storage. Text only; audio never leaves the process.
type Archive struct {
	client *supabase.Client
	bucket string

	mu       sync.Mutex
	sessions map[string]*sessionLog
}

type sessionLog struct {
	userID     string
	transcript []string
}

type archiveDoc struct {
	SessionID  string          `json:"session_id"`
	UserID     string          `json:"user_id,omitempty"`
	EndedAt    time.Time       `json:"ended_at"`
	Transcript []string        `json:"transcript"`
	Answers    []answer.Record `json:"answers"`
}

func NewArchive(projectURL, serviceKey, bucket string) (*Archive, error) {
	client, err := supabase.NewClient(projectURL, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Archive{
		client:   client,
		bucket:   bucket,
		sessions: make(map[string]*sessionLog),
	}, nil
}

func (a *Archive) SessionStarted(sessionID, userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[sessionID] = &sessionLog{userID: userID}
}

func (a *Archive) TranscriptFinalized(sessionID, transcript string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry := a.sessions[sessionID]
	if entry == nil {
		entry = &sessionLog{}
		a.sessions[sessionID] = entry
	}
	entry.transcript = append(entry.transcript, transcript)
}

// QuestionDetected is part of the session sink; detected questions reach the
// archive through the answer history instead.
func (a *Archive) QuestionDetected(string, string, question.Event) {}

// AnswerGenerated is part of the session sink; the full history arrives with
// SessionEnded.
func (a *Archive) AnswerGenerated(string, answer.Record, bool) {}

func (a *Archive) SessionEnded(sessionID string, history []answer.Record) {
	a.mu.Lock()
	entry := a.sessions[sessionID]
	delete(a.sessions, sessionID)
	a.mu.Unlock()

	doc := archiveDoc{
		SessionID: sessionID,
		EndedAt:   time.Now().UTC(),
		Answers:   history,
	}
	if entry != nil {
		doc.UserID = entry.userID
		doc.Transcript = entry.transcript
	}

	// Upload off the session teardown path; the storage client has no
	// context plumbing to bound it with.
	go a.upload(sessionID, doc)
}

func (a *Archive) upload(sessionID string, doc archiveDoc) {
	data, err := json.Marshal(doc)
	if err != nil {
		log.Printf("archive: marshal session %s: %v", sessionID, err)
		return
	}
	key := fmt.Sprintf("sessions/%s.json", sessionID)
	if _, err := a.client.Storage.UploadFile(a.bucket, key, bytes.NewReader(data)); err != nil {
		log.Printf("archive: upload session %s: %v", sessionID, err)
	}
}
