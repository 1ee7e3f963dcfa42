package models

import (
	"strings"
	"time"
)

// TestType enumerates the tests a learner can register for.
type TestType string

const (
	TestTypeIELTS TestType = "ielts"
	TestTypeTOEFL TestType = "toefl"
	TestTypeTOEIC TestType = "toeic"
	TestTypeSAT   TestType = "sat"
)

// ParseTestType maps free text onto a known test type, defaulting to IELTS.
func ParseTestType(raw string) TestType {
	switch TestType(strings.ToLower(strings.TrimSpace(raw))) {
	case TestTypeTOEFL:
		return TestTypeTOEFL
	case TestTypeTOEIC:
		return TestTypeTOEIC
	case TestTypeSAT:
		return TestTypeSAT
	default:
		return TestTypeIELTS
	}
}

// AccessStatus is the eligibility state of a registration.
type AccessStatus string

const (
	AccessStatusActive  AccessStatus = "active"
	AccessStatusExpired AccessStatus = "expired"
)

// SyntheticRegistrationPrefix marks registrations that were never persisted.
const SyntheticRegistrationPrefix = "temp-"

// Registration records a person's eligibility to take a test.
type Registration struct {
	ID               string       `db:"id" json:"id"`
	UserID           *string      `db:"user_id" json:"user_id,omitempty"`
	Email            string       `db:"email" json:"email"`
	FullName         string       `db:"full_name" json:"full_name"`
	TestType         TestType     `db:"test_type" json:"test_type"`
	RegistrationDate *time.Time   `db:"registration_date" json:"registration_date,omitempty"`
	AccessStatus     AccessStatus `db:"access_status" json:"access_status"`
	LastSyncedAt     *time.Time   `db:"last_synced_at" json:"last_synced_at,omitempty"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
}

// IsActive reports whether the registration grants access.
func (r *Registration) IsActive() bool {
	return r != nil && r.AccessStatus == AccessStatusActive
}

// IsSynthetic reports whether the registration only exists in memory.
func (r *Registration) IsSynthetic() bool {
	return r != nil && strings.HasPrefix(r.ID, SyntheticRegistrationPrefix)
}

// NormalizeEmail trims and lower-cases an email for lookups and writes.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
