package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/iels-id/learner-api/internal/models"
)

const attemptColumns = `id, registration_id, test_type, attempt_type, started_at, completed_at, status,
        listening_score, reading_score, writing_score, speaking_score, overall_score,
        mentor_feedback, strengths, weaknesses, recommendations, created_at`

// ErrAttemptNotInProgress is returned when completing an attempt that was already completed.
var ErrAttemptNotInProgress = errors.New("attempt not in progress")

// AttemptRepository manages persistence for test attempts.
type AttemptRepository struct {
	db *sqlx.DB
}

// NewAttemptRepository constructs an AttemptRepository.
func NewAttemptRepository(db *sqlx.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// ListByRegistration returns every attempt of a registration, newest first.
func (r *AttemptRepository) ListByRegistration(ctx context.Context, registrationID string) ([]models.Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM test_attempts WHERE registration_id = $1 ORDER BY created_at DESC`
	var attempts []models.Attempt
	if err := r.db.SelectContext(ctx, &attempts, query, registrationID); err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return attempts, nil
}

// FindByRegistrationAndKind loads the attempt for a (registration, kind) pair.
func (r *AttemptRepository) FindByRegistrationAndKind(ctx context.Context, registrationID string, kind models.AttemptKind) (*models.Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM test_attempts WHERE registration_id = $1 AND attempt_type = $2`
	var attempt models.Attempt
	if err := r.db.GetContext(ctx, &attempt, query, registrationID, kind); err != nil {
		return nil, err
	}
	return &attempt, nil
}

// CreateIfAbsent inserts attempt unless one already exists for its
// (registration, kind) pair; in both cases attempt holds the stored row afterwards.
func (r *AttemptRepository) CreateIfAbsent(ctx context.Context, attempt *models.Attempt) (bool, error) {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if attempt.StartedAt.IsZero() {
		attempt.StartedAt = now
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = now
	}
	if attempt.Status == "" {
		attempt.Status = models.AttemptStatusInProgress
	}
	query := `INSERT INTO test_attempts (id, registration_id, test_type, attempt_type, started_at, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (registration_id, attempt_type) DO NOTHING
        RETURNING ` + attemptColumns
	var stored models.Attempt
	err := r.db.GetContext(ctx, &stored, query,
		attempt.ID, attempt.RegistrationID, attempt.TestType, attempt.AttemptType,
		attempt.StartedAt, attempt.Status, attempt.CreatedAt,
	)
	if err == nil {
		*attempt = stored
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("create attempt: %w", err)
	}
	existing, err := r.FindByRegistrationAndKind(ctx, attempt.RegistrationID, attempt.AttemptType)
	if err != nil {
		return false, fmt.Errorf("load existing attempt: %w", err)
	}
	*attempt = *existing
	return false, nil
}

// FindWithRegistration loads an attempt joined with its registration identity.
func (r *AttemptRepository) FindWithRegistration(ctx context.Context, id string) (*models.AttemptWithRegistration, error) {
	const query = `SELECT a.id, a.registration_id, a.test_type, a.attempt_type, a.started_at, a.completed_at, a.status,
        a.listening_score, a.reading_score, a.writing_score, a.speaking_score, a.overall_score,
        a.mentor_feedback, a.strengths, a.weaknesses, a.recommendations, a.created_at,
        r.email AS registration_email, r.full_name AS registration_full_name
        FROM test_attempts a
        JOIN test_registrations r ON r.id = a.registration_id
        WHERE a.id = $1`
	var row models.AttemptWithRegistration
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	return &row, nil
}

// CompleteWithOutbox stores the scores of an in-progress attempt and records the
// pending spreadsheet push in the same transaction.
func (r *AttemptRepository) CompleteWithOutbox(ctx context.Context, id string, params models.CompleteAttemptParams, outbox *models.ScoreSync) (*models.Attempt, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin complete attempt: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `UPDATE test_attempts SET
            listening_score = $2, reading_score = $3, writing_score = $4, speaking_score = $5,
            overall_score = $6, completed_at = $7, status = $8,
            mentor_feedback = $9, strengths = $10, weaknesses = $11, recommendations = $12
        WHERE id = $1 AND status = $13
        RETURNING ` + attemptColumns
	var updated models.Attempt
	if err := tx.GetContext(ctx, &updated, query,
		id,
		params.Scores.Listening, params.Scores.Reading, params.Scores.Writing, params.Scores.Speaking,
		params.OverallScore, params.CompletedAt, models.AttemptStatusCompleted,
		params.Feedback.MentorFeedback, stringArray(params.Feedback.Strengths),
		stringArray(params.Feedback.Weaknesses), stringArray(params.Feedback.Recommendations),
		models.AttemptStatusInProgress,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAttemptNotInProgress
		}
		return nil, fmt.Errorf("complete attempt: %w", err)
	}

	if outbox != nil {
		if err := insertScoreSync(ctx, tx, outbox); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit complete attempt: %w", err)
	}
	return &updated, nil
}

func stringArray(values []string) pq.StringArray {
	if values == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(values)
}
