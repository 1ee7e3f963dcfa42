package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iels-id/learner-api/internal/dto"
	"github.com/iels-id/learner-api/internal/models"
	"github.com/iels-id/learner-api/internal/repository"
	appErrors "github.com/iels-id/learner-api/pkg/errors"
	"github.com/iels-id/learner-api/pkg/jobs"
	"github.com/iels-id/learner-api/pkg/observability"
	"github.com/iels-id/learner-api/pkg/sheets"
)

// ScoreSyncJobType tags queue jobs that push a score to the spreadsheet.
const ScoreSyncJobType = "score_sync"

type registrationStore interface {
	FindActiveByEmail(ctx context.Context, email string) (*models.Registration, error)
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	AttachUser(ctx context.Context, id, userID string) error
	Upsert(ctx context.Context, reg *models.Registration) error
}

type attemptStore interface {
	ListByRegistration(ctx context.Context, registrationID string) ([]models.Attempt, error)
	CreateIfAbsent(ctx context.Context, attempt *models.Attempt) (bool, error)
	FindWithRegistration(ctx context.Context, id string) (*models.AttemptWithRegistration, error)
	CompleteWithOutbox(ctx context.Context, id string, params models.CompleteAttemptParams, outbox *models.ScoreSync) (*models.Attempt, error)
}

type registrationLookup interface {
	Lookup(ctx context.Context, email string) (*sheets.Record, error)
}

type jobDispatcher interface {
	TryEnqueue(job jobs.Job) error
}

// ErrorReporter forwards unexpected failures to the error tracker.
type ErrorReporter func(err error, tags map[string]string)

// RegistrationSyncService reconciles test eligibility and attempts between the
// database and the registration spreadsheet.
type RegistrationSyncService struct {
	registrations registrationStore
	attempts      attemptStore
	source        registrationLookup
	queue         jobDispatcher
	metrics       *MetricsService
	validator     *validator.Validate
	logger        *zap.Logger
	report        ErrorReporter
	now           func() time.Time
}

// NewRegistrationSyncService constructs the service.
func NewRegistrationSyncService(registrations registrationStore, attempts attemptStore, source registrationLookup, queue jobDispatcher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *RegistrationSyncService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationSyncService{
		registrations: registrations,
		attempts:      attempts,
		source:        source,
		queue:         queue,
		metrics:       metrics,
		validator:     validate,
		logger:        logger,
		report:        observability.CaptureErr,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithErrorReporter replaces the error tracker hook.
func (s *RegistrationSyncService) WithErrorReporter(report ErrorReporter) *RegistrationSyncService {
	if report != nil {
		s.report = report
	}
	return s
}

// VerifyAccess returns the active registration for email, materializing it from
// the spreadsheet when the database does not know it yet. It returns nil when the
// person may not take a test, and also when anything goes wrong on the way.
func (s *RegistrationSyncService) VerifyAccess(ctx context.Context, email, userID string) (reg *models.Registration) {
	email = models.NormalizeEmail(email)
	defer func() {
		if r := recover(); r != nil {
			s.failClosed(email, fmt.Errorf("panic during access verification: %v", r))
			reg = nil
		}
	}()

	if email == "" {
		s.metrics.RecordRegistrationLookup(LookupOutcomeDenied)
		return nil
	}

	reg, outcome, err := s.verify(ctx, email, userID)
	if err != nil {
		s.failClosed(email, err)
		return nil
	}
	s.metrics.RecordRegistrationLookup(outcome)
	return reg
}

func (s *RegistrationSyncService) verify(ctx context.Context, email, userID string) (*models.Registration, string, error) {
	stored, err := s.registrations.FindActiveByEmail(ctx, email)
	switch {
	case err == nil:
		s.attachUser(ctx, stored, userID)
		return stored, LookupOutcomeCache, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, LookupOutcomeError, fmt.Errorf("find registration: %w", err)
	}

	record, err := s.source.Lookup(ctx, email)
	if err != nil {
		return nil, LookupOutcomeError, fmt.Errorf("lookup registration sheet: %w", err)
	}
	if record == nil || !record.Active() {
		return nil, LookupOutcomeDenied, nil
	}

	now := s.now()
	reg := &models.Registration{
		Email:            email,
		FullName:         strings.TrimSpace(record.FullName),
		TestType:         models.ParseTestType(record.TestType),
		RegistrationDate: record.RegistrationDate,
		AccessStatus:     models.AccessStatusActive,
		LastSyncedAt:     &now,
		CreatedAt:        now,
	}
	if userID != "" {
		reg.UserID = &userID
	}

	if err := s.registrations.Upsert(ctx, reg); err != nil {
		s.logger.Warn("caching registration failed, serving unsaved copy", zap.String("email", email), zap.Error(err))
		s.report(err, map[string]string{"operation": "registration_upsert"})
		reg.ID = models.SyntheticRegistrationPrefix + uuid.NewString()
		return reg, LookupOutcomeFallback, nil
	}
	return reg, LookupOutcomeSheet, nil
}

func (s *RegistrationSyncService) attachUser(ctx context.Context, reg *models.Registration, userID string) {
	if userID == "" || reg.UserID != nil {
		return
	}
	err := s.registrations.AttachUser(ctx, reg.ID, userID)
	switch {
	case err == nil:
		reg.UserID = &userID
	case errors.Is(err, sql.ErrNoRows):
		// linked concurrently; report whoever won
		if current, findErr := s.registrations.FindByID(ctx, reg.ID); findErr == nil {
			reg.UserID = current.UserID
		}
	default:
		s.logger.Warn("linking user to registration failed", zap.String("registration_id", reg.ID), zap.Error(err))
	}
}

func (s *RegistrationSyncService) failClosed(email string, err error) {
	s.metrics.RecordRegistrationLookup(LookupOutcomeError)
	s.logger.Error("access verification failed", zap.String("email", email), zap.Error(err))
	s.report(err, map[string]string{"operation": "verify_access"})
}

// AuthorizeRegistration checks that the registration belongs to email.
// Unsaved registrations carry no data and are always allowed.
func (s *RegistrationSyncService) AuthorizeRegistration(ctx context.Context, registrationID, email string) error {
	if strings.HasPrefix(registrationID, models.SyntheticRegistrationPrefix) {
		return nil
	}
	if _, err := uuid.Parse(registrationID); err != nil {
		return appErrors.Clone(appErrors.ErrNotFound, "registration not found")
	}
	reg, err := s.registrations.FindByID(ctx, registrationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	if reg.Email != models.NormalizeEmail(email) {
		return appErrors.Clone(appErrors.ErrForbidden, "registration belongs to another account")
	}
	return nil
}

// AuthorizeAttempt checks that the attempt's registration belongs to email.
func (s *RegistrationSyncService) AuthorizeAttempt(ctx context.Context, attemptID, email string) error {
	_, err := s.loadOwnedAttempt(ctx, attemptID, email)
	return err
}

func (s *RegistrationSyncService) loadOwnedAttempt(ctx context.Context, attemptID, email string) (*models.AttemptWithRegistration, error) {
	if _, err := uuid.Parse(attemptID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "attempt not found")
	}
	attempt, err := s.attempts.FindWithRegistration(ctx, attemptID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attempt not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attempt")
	}
	if email != "" && attempt.RegistrationEmail != models.NormalizeEmail(email) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "attempt belongs to another account")
	}
	return attempt, nil
}

// GetAttempts returns the newest attempt of each kind for a registration.
func (s *RegistrationSyncService) GetAttempts(ctx context.Context, registrationID string) (*models.AttemptSet, error) {
	set := &models.AttemptSet{}
	if strings.HasPrefix(registrationID, models.SyntheticRegistrationPrefix) {
		return set, nil
	}
	attempts, err := s.attempts.ListByRegistration(ctx, registrationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attempts")
	}
	for i := range attempts {
		attempt := attempts[i]
		switch attempt.AttemptType {
		case models.AttemptKindPreTest:
			if set.PreTest == nil {
				set.PreTest = &attempt
			}
		case models.AttemptKindPostTest:
			if set.PostTest == nil {
				set.PostTest = &attempt
			}
		}
	}
	return set, nil
}

// CreateAttempt starts an attempt, or returns the existing one for the same
// registration and kind untouched.
func (s *RegistrationSyncService) CreateAttempt(ctx context.Context, req dto.CreateAttemptRequest) (*models.Attempt, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attempt payload")
	}
	if strings.HasPrefix(req.RegistrationID, models.SyntheticRegistrationPrefix) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "registration is not saved yet, retry access verification")
	}

	attempt := &models.Attempt{
		RegistrationID: req.RegistrationID,
		TestType:       strings.TrimSpace(req.TestType),
		AttemptType:    req.AttemptType,
		StartedAt:      s.now(),
		Status:         models.AttemptStatusInProgress,
	}
	created, err := s.attempts.CreateIfAbsent(ctx, attempt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create attempt")
	}
	if created {
		s.logger.Info("attempt started", zap.String("attempt_id", attempt.ID), zap.String("attempt_type", string(attempt.AttemptType)))
	}
	return attempt, nil
}

// SubmitScore completes an attempt and schedules the spreadsheet write-back.
// A failing write-back never fails the submission.
func (s *RegistrationSyncService) SubmitScore(ctx context.Context, req dto.SubmitScoreRequest) (*models.Attempt, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid score payload")
	}

	current, err := s.loadOwnedAttempt(ctx, req.AttemptID, "")
	if err != nil {
		return nil, err
	}
	if current.IsCompleted() {
		return nil, appErrors.ErrAttemptCompleted
	}

	// An override changes only the scoring rule; the stored test type stays.
	scoringType := strings.TrimSpace(req.TestType)
	if scoringType == "" {
		scoringType = current.TestType
	}
	overall := ComputeOverallScore(scoringType, req.Scores)

	outbox := &models.ScoreSync{
		AttemptID:   current.ID,
		Email:       current.RegistrationEmail,
		AttemptKind: externalAttemptKind(current.AttemptType),
		Score:       overall,
	}
	updated, err := s.attempts.CompleteWithOutbox(ctx, current.ID, models.CompleteAttemptParams{
		Scores:       req.Scores,
		OverallScore: overall,
		Feedback:     req.Feedback,
		CompletedAt:  s.now(),
	}, outbox)
	if err != nil {
		if errors.Is(err, repository.ErrAttemptNotInProgress) {
			return nil, appErrors.ErrAttemptCompleted
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save scores")
	}

	if s.queue != nil {
		if err := s.queue.TryEnqueue(jobs.Job{ID: outbox.ID, Type: ScoreSyncJobType}); err != nil {
			s.logger.Warn("score sync not queued, reconciler will retry", zap.String("outbox_id", outbox.ID), zap.Error(err))
		}
	}
	return updated, nil
}

func externalAttemptKind(kind models.AttemptKind) string {
	if kind == models.AttemptKindPostTest {
		return sheets.KindPostTest
	}
	return sheets.KindPreTest
}
