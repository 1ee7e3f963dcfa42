package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPSource calls a spreadsheet web app (Apps Script style) that exposes
// lookup and score update actions.
type HTTPSource struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPSource constructs an HTTP-backed source.
func NewHTTPSource(endpoint, token string, timeout time.Duration) (*HTTPSource, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("sheets endpoint required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid sheets endpoint: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type lookupResponse struct {
	Found bool `json:"found"`
	Data  *struct {
		Email            string `json:"email"`
		FullName         string `json:"fullName"`
		TestType         string `json:"testType"`
		RegistrationDate string `json:"registrationDate"`
		AccessStatus     string `json:"accessStatus"`
	} `json:"data"`
	Error string `json:"error"`
}

type updateRequest struct {
	Action      string  `json:"action"`
	Token       string  `json:"token,omitempty"`
	Email       string  `json:"email"`
	AttemptType string  `json:"attemptType"`
	Score       float64 `json:"score"`
}

type updateResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Lookup fetches the registration row for email.
func (s *HTTPSource) Lookup(ctx context.Context, email string) (*Record, error) {
	query := url.Values{}
	query.Set("action", "lookup")
	query.Set("email", normalizeEmail(email))
	if s.token != "" {
		query.Set("token", s.token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build lookup request: %w", err)
	}
	var payload lookupResponse
	if err := s.do(req, &payload); err != nil {
		return nil, fmt.Errorf("sheet lookup: %w", err)
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("sheet lookup: %s", payload.Error)
	}
	if !payload.Found || payload.Data == nil {
		return nil, nil
	}
	return &Record{
		Email:            normalizeEmail(payload.Data.Email),
		FullName:         payload.Data.FullName,
		TestType:         payload.Data.TestType,
		RegistrationDate: parseDate(payload.Data.RegistrationDate),
		AccessStatus:     payload.Data.AccessStatus,
	}, nil
}

// PushScore writes a score into the row for email.
func (s *HTTPSource) PushScore(ctx context.Context, email, kind string, score float64) error {
	body, err := json.Marshal(updateRequest{
		Action:      "updateScore",
		Token:       s.token,
		Email:       normalizeEmail(email),
		AttemptType: kind,
		Score:       score,
	})
	if err != nil {
		return fmt.Errorf("encode score update: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build score update: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var payload updateResponse
	if err := s.do(req, &payload); err != nil {
		return fmt.Errorf("sheet score update: %w", err)
	}
	if !payload.Success {
		if payload.Error == "" {
			payload.Error = "rejected"
		}
		if isNotFound(payload.Error) {
			return fmt.Errorf("sheet score update: %s: %w", payload.Error, ErrEmailNotFound)
		}
		return fmt.Errorf("sheet score update: %s", payload.Error)
	}
	return nil
}

// isNotFound recognizes the web app's "no row for this email" rejection.
func isNotFound(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "not found")
}

func (s *HTTPSource) do(req *http.Request, dest interface{}) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
