// Package profile loads stored candidate context from Supabase and archives
// finished sessions to storage. Both pieces are optional server wiring.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/interviewmate/copilot/wire"
)

// Service fetches interview profiles over PostgREST with the service role
// key. It satisfies the session's profile fetcher.
type Service struct {
	HTTPClient *http.Client
	baseURL    string
	serviceKey string
}

func NewService(projectURL, serviceKey string) *Service {
	return &Service{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(projectURL, "/"),
		serviceKey: serviceKey,
	}
}

type profileRow struct {
	UserID        string           `json:"user_id"`
	ResumeText    string           `json:"resume_text"`
	StarStories   []wire.StarStory `json:"star_stories"`
	TalkingPoints []string         `json:"talking_points"`
	QAPairs       []wire.QAPair    `json:"qa_pairs"`
}

func (s *Service) Fetch(ctx context.Context, userID string) (wire.ContextPayload, error) {
	if strings.TrimSpace(userID) == "" {
		return wire.ContextPayload{}, errors.New("profile: user id required")
	}

	endpoint := fmt.Sprintf("%s/rest/v1/interview_profiles?user_id=eq.%s&select=*&limit=1",
		s.baseURL, url.QueryEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return wire.ContextPayload{}, fmt.Errorf("profile: build request: %w", err)
	}
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return wire.ContextPayload{}, fmt.Errorf("profile: fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return wire.ContextPayload{}, fmt.Errorf("profile: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return wire.ContextPayload{}, fmt.Errorf("profile fetch error: status=%d body=%s", resp.StatusCode, string(body))
	}

	var rows []profileRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return wire.ContextPayload{}, fmt.Errorf("profile: decode response: %w", err)
	}
	if len(rows) == 0 {
		return wire.ContextPayload{}, fmt.Errorf("profile: no profile for user %s", userID)
	}

	row := rows[0]
	return wire.ContextPayload{
		UserID:        userID,
		ResumeText:    row.ResumeText,
		StarStories:   row.StarStories,
		TalkingPoints: row.TalkingPoints,
		QAPairs:       row.QAPairs,
	}, nil
}
