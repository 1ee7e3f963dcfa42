package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iels-id/learner-api/internal/models"
	"github.com/iels-id/learner-api/internal/repository"
	"github.com/iels-id/learner-api/pkg/jobs"
	"github.com/iels-id/learner-api/pkg/sheets"
)

type fakeRegistrationStore struct {
	mu        sync.Mutex
	rows      map[string]*models.Registration
	findErr   error
	upsertErr error
	attachErr error
	// linkedBy simulates another request linking the row first.
	linkedBy  string
	panicOn   bool
	lookups   []string
	attached  map[string]string
}

func newFakeRegistrationStore() *fakeRegistrationStore {
	return &fakeRegistrationStore{rows: map[string]*models.Registration{}, attached: map[string]string{}}
}

func (f *fakeRegistrationStore) FindActiveByEmail(ctx context.Context, email string) (*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn {
		panic("driver exploded")
	}
	f.lookups = append(f.lookups, email)
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, reg := range f.rows {
		if reg.Email == email && reg.IsActive() {
			clone := *reg
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeRegistrationStore) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if reg, ok := f.rows[id]; ok {
		clone := *reg
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeRegistrationStore) AttachUser(ctx context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attachErr != nil {
		return f.attachErr
	}
	reg, ok := f.rows[id]
	if ok && f.linkedBy != "" && reg.UserID == nil {
		winner := f.linkedBy
		reg.UserID = &winner
	}
	if !ok || reg.UserID != nil {
		return sql.ErrNoRows
	}
	reg.UserID = &userID
	f.attached[id] = userID
	return nil
}

func (f *fakeRegistrationStore) Upsert(ctx context.Context, reg *models.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for id, existing := range f.rows {
		if existing.Email == reg.Email {
			userID := existing.UserID
			*existing = *reg
			existing.ID = id
			if userID != nil {
				existing.UserID = userID
			}
			*reg = *existing
			return nil
		}
	}
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	clone := *reg
	f.rows[reg.ID] = &clone
	return nil
}

type fakeSource struct {
	mu      sync.Mutex
	records map[string]*sheets.Record
	err     error
	lookups []string
	pushes  []pushCall
	pushErr error
}

type pushCall struct {
	Email string
	Kind  string
	Score float64
}

func (f *fakeSource) Lookup(ctx context.Context, email string) (*sheets.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, email)
	if f.err != nil {
		return nil, f.err
	}
	return f.records[email], nil
}

func (f *fakeSource) PushScore(ctx context.Context, email, kind string, score float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, pushCall{Email: email, Kind: kind, Score: score})
	return f.pushErr
}

type fakeAttemptStore struct {
	mu          sync.Mutex
	attempts    map[string]*models.Attempt
	emails      map[string]string
	listErr     error
	completeErr error
	outbox      []models.ScoreSync
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{attempts: map[string]*models.Attempt{}, emails: map[string]string{}}
}

func (f *fakeAttemptStore) add(attempt models.Attempt, email string) {
	f.attempts[attempt.ID] = &attempt
	f.emails[attempt.RegistrationID] = email
}

func (f *fakeAttemptStore) ListByRegistration(ctx context.Context, registrationID string) ([]models.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Attempt
	for _, a := range f.attempts {
		if a.RegistrationID == registrationID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeAttemptStore) CreateIfAbsent(ctx context.Context, attempt *models.Attempt) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.attempts {
		if existing.RegistrationID == attempt.RegistrationID && existing.AttemptType == attempt.AttemptType {
			*attempt = *existing
			return false, nil
		}
	}
	attempt.ID = uuid.NewString()
	attempt.CreatedAt = attempt.StartedAt
	clone := *attempt
	f.attempts[attempt.ID] = &clone
	return true, nil
}

func (f *fakeAttemptStore) FindWithRegistration(ctx context.Context, id string) (*models.AttemptWithRegistration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.AttemptWithRegistration{Attempt: *a, RegistrationEmail: f.emails[a.RegistrationID], RegistrationFullName: "Learner"}, nil
}

func (f *fakeAttemptStore) CompleteWithOutbox(ctx context.Context, id string, params models.CompleteAttemptParams, outbox *models.ScoreSync) (*models.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	a, ok := f.attempts[id]
	if !ok || a.Status != models.AttemptStatusInProgress {
		return nil, repository.ErrAttemptNotInProgress
	}
	a.Status = models.AttemptStatusCompleted
	a.ListeningScore = floatPtr(params.Scores.Listening)
	a.ReadingScore = floatPtr(params.Scores.Reading)
	a.WritingScore = floatPtr(params.Scores.Writing)
	a.SpeakingScore = floatPtr(params.Scores.Speaking)
	a.OverallScore = floatPtr(params.OverallScore)
	completed := params.CompletedAt
	a.CompletedAt = &completed
	a.MentorFeedback = params.Feedback.MentorFeedback
	a.Strengths = params.Feedback.Strengths
	if outbox != nil {
		outbox.ID = uuid.NewString()
		outbox.Status = models.ScoreSyncStatusPending
		f.outbox = append(f.outbox, *outbox)
	}
	clone := *a
	return &clone, nil
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (f *fakeQueue) TryEnqueue(job jobs.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func floatPtr(v float64) *float64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }
