package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/iels-id/learner-api/internal/models"
)

const scoreSyncColumns = `id, attempt_id, email, attempt_kind, score, status, attempts, last_error, created_at, updated_at, synced_at`

// ScoreSyncRepository manages the score push outbox.
type ScoreSyncRepository struct {
	db *sqlx.DB
}

// NewScoreSyncRepository constructs a ScoreSyncRepository.
func NewScoreSyncRepository(db *sqlx.DB) *ScoreSyncRepository {
	return &ScoreSyncRepository{db: db}
}

func insertScoreSync(ctx context.Context, ext sqlx.ExtContext, row *models.ScoreSync) error {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	if row.Status == "" {
		row.Status = models.ScoreSyncStatusPending
	}
	const query = `INSERT INTO score_sync_outbox (id, attempt_id, email, attempt_kind, score, status, attempts, created_at, updated_at)
        VALUES (:id, :attempt_id, :email, :attempt_kind, :score, :status, :attempts, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, ext, query, row); err != nil {
		return fmt.Errorf("insert score sync: %w", err)
	}
	return nil
}

// GetByID loads an outbox row.
func (r *ScoreSyncRepository) GetByID(ctx context.Context, id string) (*models.ScoreSync, error) {
	query := `SELECT ` + scoreSyncColumns + ` FROM score_sync_outbox WHERE id = $1`
	var row models.ScoreSync
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	return &row, nil
}

// MarkSynced records a successful push.
func (r *ScoreSyncRepository) MarkSynced(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE score_sync_outbox SET status = $2, attempts = attempts + 1, last_error = NULL, synced_at = $3, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ScoreSyncStatusSynced, at); err != nil {
		return fmt.Errorf("mark score sync synced: %w", err)
	}
	return nil
}

// RecordFailure bumps the attempt counter, stores the error and moves the row to status.
func (r *ScoreSyncRepository) RecordFailure(ctx context.Context, id, message string, status models.ScoreSyncStatus) error {
	const query = `UPDATE score_sync_outbox SET status = $2, attempts = attempts + 1, last_error = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, message, time.Now().UTC()); err != nil {
		return fmt.Errorf("record score sync failure: %w", err)
	}
	return nil
}

// ListDue returns pending or failed rows untouched since cutoff with fewer than
// maxAttempts pushes behind them, oldest first.
func (r *ScoreSyncRepository) ListDue(ctx context.Context, cutoff time.Time, maxAttempts, limit int) ([]models.ScoreSync, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + scoreSyncColumns + ` FROM score_sync_outbox
        WHERE status IN ($1, $2) AND updated_at <= $3 AND attempts < $4
        ORDER BY created_at ASC LIMIT ` + fmt.Sprintf("%d", limit)
	var rows []models.ScoreSync
	if err := r.db.SelectContext(ctx, &rows, query, models.ScoreSyncStatusPending, models.ScoreSyncStatusFailed, cutoff, maxAttempts); err != nil {
		return nil, fmt.Errorf("list due score syncs: %w", err)
	}
	return rows, nil
}
