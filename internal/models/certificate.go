package models

import "time"

// Certificate is proof of a completed attempt.
type Certificate struct {
	ID                string    `db:"id" json:"id"`
	AttemptID         string    `db:"attempt_id" json:"attempt_id"`
	CertificateNumber string    `db:"certificate_number" json:"certificate_number"`
	VerificationCode  string    `db:"verification_code" json:"verification_code"`
	IsValid           bool      `db:"is_valid" json:"is_valid"`
	CertificateURL    string    `db:"certificate_url" json:"certificate_url"`
	IssuedAt          time.Time `db:"issued_at" json:"issued_at"`
}

// CertificateDetail joins a certificate with the attempt and holder it certifies.
type CertificateDetail struct {
	Certificate
	HolderName   string      `db:"holder_name" json:"holder_name"`
	HolderEmail  string      `db:"holder_email" json:"-"`
	TestType     string      `db:"test_type" json:"test_type"`
	AttemptType  AttemptKind `db:"attempt_type" json:"attempt_type"`
	OverallScore *float64    `db:"overall_score" json:"overall_score,omitempty"`
	CompletedAt  *time.Time  `db:"completed_at" json:"completed_at,omitempty"`
}
