package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/iels-id/learner-api/internal/models"
)

const registrationColumns = `id, user_id, email, full_name, test_type, registration_date, access_status, last_synced_at, created_at`

// RegistrationRepository manages persistence for test registrations.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// FindActiveByEmail returns the active registration for an already normalized email.
// sql.ErrNoRows is returned untouched when none exists.
func (r *RegistrationRepository) FindActiveByEmail(ctx context.Context, email string) (*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM test_registrations WHERE email = $1 AND access_status = $2 LIMIT 1`
	var reg models.Registration
	if err := r.db.GetContext(ctx, &reg, query, email, models.AccessStatusActive); err != nil {
		return nil, err
	}
	return &reg, nil
}

// FindByID fetches a registration by id.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM test_registrations WHERE id = $1`
	var reg models.Registration
	if err := r.db.GetContext(ctx, &reg, query, id); err != nil {
		return nil, err
	}
	return &reg, nil
}

// AttachUser links a user to a registration that has none yet. It returns
// sql.ErrNoRows when the row is missing or already linked.
func (r *RegistrationRepository) AttachUser(ctx context.Context, id, userID string) error {
	const query = `UPDATE test_registrations SET user_id = $2 WHERE id = $1 AND user_id IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("attach user to registration: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check attached registration rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Upsert inserts the registration or refreshes the row sharing its email, and
// loads the stored row back into reg. An existing user link is never replaced.
func (r *RegistrationRepository) Upsert(ctx context.Context, reg *models.Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO test_registrations (` + registrationColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (email) DO UPDATE SET
            full_name = EXCLUDED.full_name,
            test_type = EXCLUDED.test_type,
            registration_date = EXCLUDED.registration_date,
            access_status = EXCLUDED.access_status,
            last_synced_at = EXCLUDED.last_synced_at,
            user_id = COALESCE(test_registrations.user_id, EXCLUDED.user_id)
        RETURNING ` + registrationColumns
	var stored models.Registration
	if err := r.db.GetContext(ctx, &stored, query,
		reg.ID, reg.UserID, reg.Email, reg.FullName, reg.TestType, reg.RegistrationDate,
		reg.AccessStatus, reg.LastSyncedAt, reg.CreatedAt,
	); err != nil {
		return fmt.Errorf("upsert registration: %w", err)
	}
	*reg = stored
	return nil
}
