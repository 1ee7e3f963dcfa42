package dto

import (
	"time"

	"github.com/iels-id/learner-api/internal/models"
)

// CreateAttemptRequest starts (or resumes) an attempt for a registration.
type CreateAttemptRequest struct {
	RegistrationID string             `json:"-" validate:"required"`
	TestType       string             `json:"test_type" validate:"required,max=32"`
	AttemptType    models.AttemptKind `json:"attempt_type" validate:"required,oneof=pre-test post-test"`
}

// SubmitScoreRequest completes an attempt with its section scores.
type SubmitScoreRequest struct {
	AttemptID string               `json:"-" validate:"required"`
	Scores    models.SectionScores `json:"scores"`
	// TestType overrides the attempt's own test type when scoring.
	TestType string                 `json:"test_type" validate:"omitempty,max=32"`
	Feedback models.AttemptFeedback `json:"feedback"`
}

// RegistrationResponse is the access verification payload.
type RegistrationResponse struct {
	models.Registration
	Synthetic bool `json:"synthetic"`
}

// NewRegistrationResponse wraps a registration for the API.
func NewRegistrationResponse(reg *models.Registration) RegistrationResponse {
	return RegistrationResponse{Registration: *reg, Synthetic: reg.IsSynthetic()}
}

// CertificateVerification is the public view of an issued certificate.
type CertificateVerification struct {
	CertificateNumber string             `json:"certificate_number"`
	VerificationCode  string             `json:"verification_code"`
	Valid             bool               `json:"valid"`
	HolderName        string             `json:"holder_name"`
	TestType          string             `json:"test_type"`
	AttemptType       models.AttemptKind `json:"attempt_type"`
	OverallScore      *float64           `json:"overall_score,omitempty"`
	CompletedAt       *time.Time         `json:"completed_at,omitempty"`
	IssuedAt          time.Time          `json:"issued_at"`
}

// CertificateDownloadResponse carries a signed link to the rendered PDF.
type CertificateDownloadResponse struct {
	CertificateID string    `json:"certificate_id"`
	DownloadURL   string    `json:"download_url"`
	ExpiresAt     time.Time `json:"expires_at"`
}
