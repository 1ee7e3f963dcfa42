package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/iels-id/learner-api/internal/models"
)

const certificateColumns = `id, attempt_id, certificate_number, verification_code, is_valid, certificate_url, issued_at`

const certificateDetailSelect = `SELECT c.id, c.attempt_id, c.certificate_number, c.verification_code, c.is_valid, c.certificate_url, c.issued_at,
        r.full_name AS holder_name, r.email AS holder_email, a.test_type, a.attempt_type, a.overall_score, a.completed_at
        FROM test_certificates c
        JOIN test_attempts a ON a.id = c.attempt_id
        JOIN test_registrations r ON r.id = a.registration_id`

// CertificateRepository manages persistence for issued certificates.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs a CertificateRepository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// FindValidByAttempt returns the valid certificate of an attempt.
func (r *CertificateRepository) FindValidByAttempt(ctx context.Context, attemptID string) (*models.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM test_certificates WHERE attempt_id = $1 AND is_valid = TRUE LIMIT 1`
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, attemptID); err != nil {
		return nil, err
	}
	return &cert, nil
}

// Insert stores cert unless it collides with a unique index (valid certificate
// per attempt, certificate number, verification code). It reports whether the
// row was written.
func (r *CertificateRepository) Insert(ctx context.Context, cert *models.Certificate) (bool, error) {
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	query := `INSERT INTO test_certificates (` + certificateColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT DO NOTHING
        RETURNING ` + certificateColumns
	var stored models.Certificate
	err := r.db.GetContext(ctx, &stored, query,
		cert.ID, cert.AttemptID, cert.CertificateNumber, cert.VerificationCode,
		cert.IsValid, cert.CertificateURL, cert.IssuedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("insert certificate: %w", err)
	}
	*cert = stored
	return true, nil
}

// FindDetailByCode looks a certificate up by its verification code.
func (r *CertificateRepository) FindDetailByCode(ctx context.Context, code string) (*models.CertificateDetail, error) {
	var detail models.CertificateDetail
	if err := r.db.GetContext(ctx, &detail, certificateDetailSelect+` WHERE c.verification_code = $1`, code); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindDetailByID looks a certificate up by id.
func (r *CertificateRepository) FindDetailByID(ctx context.Context, id string) (*models.CertificateDetail, error) {
	var detail models.CertificateDetail
	if err := r.db.GetContext(ctx, &detail, certificateDetailSelect+` WHERE c.id = $1`, id); err != nil {
		return nil, err
	}
	return &detail, nil
}
