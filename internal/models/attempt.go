package models

import (
	"time"

	"github.com/lib/pq"
)

// AttemptKind distinguishes the placement test from the final test.
type AttemptKind string

const (
	AttemptKindPreTest  AttemptKind = "pre-test"
	AttemptKindPostTest AttemptKind = "post-test"
)

// AttemptStatus captures attempt lifecycle.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusCompleted  AttemptStatus = "completed"
)

// Attempt is one take of a test by a registered person.
type Attempt struct {
	ID              string         `db:"id" json:"id"`
	RegistrationID  string         `db:"registration_id" json:"registration_id"`
	TestType        string         `db:"test_type" json:"test_type"`
	AttemptType     AttemptKind    `db:"attempt_type" json:"attempt_type"`
	StartedAt       time.Time      `db:"started_at" json:"started_at"`
	CompletedAt     *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	Status          AttemptStatus  `db:"status" json:"status"`
	ListeningScore  *float64       `db:"listening_score" json:"listening_score,omitempty"`
	ReadingScore    *float64       `db:"reading_score" json:"reading_score,omitempty"`
	WritingScore    *float64       `db:"writing_score" json:"writing_score,omitempty"`
	SpeakingScore   *float64       `db:"speaking_score" json:"speaking_score,omitempty"`
	OverallScore    *float64       `db:"overall_score" json:"overall_score,omitempty"`
	MentorFeedback  *string        `db:"mentor_feedback" json:"mentor_feedback,omitempty"`
	Strengths       pq.StringArray `db:"strengths" json:"strengths"`
	Weaknesses      pq.StringArray `db:"weaknesses" json:"weaknesses"`
	Recommendations pq.StringArray `db:"recommendations" json:"recommendations"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// IsCompleted reports whether scores were submitted.
func (a *Attempt) IsCompleted() bool {
	return a != nil && a.Status == AttemptStatusCompleted
}

// AttemptWithRegistration is the typed join of an attempt and the owning
// registration's identity fields.
type AttemptWithRegistration struct {
	Attempt
	RegistrationEmail    string `db:"registration_email" json:"registration_email"`
	RegistrationFullName string `db:"registration_full_name" json:"registration_full_name"`
}

// AttemptSet holds at most one attempt per kind.
type AttemptSet struct {
	PreTest  *Attempt `json:"pre_test,omitempty"`
	PostTest *Attempt `json:"post_test,omitempty"`
}

// SectionScores are the four section results submitted for an attempt. Each is
// capped so that a TOEFL sum of all four still fits NUMERIC(6,2).
type SectionScores struct {
	Listening float64 `json:"listening" validate:"gte=0,lte=999"`
	Reading   float64 `json:"reading" validate:"gte=0,lte=999"`
	Writing   float64 `json:"writing" validate:"gte=0,lte=999"`
	Speaking  float64 `json:"speaking" validate:"gte=0,lte=999"`
}

// AttemptFeedback is optional mentor commentary stored verbatim.
type AttemptFeedback struct {
	MentorFeedback  *string  `json:"mentor_feedback,omitempty"`
	Strengths       []string `json:"strengths,omitempty"`
	Weaknesses      []string `json:"weaknesses,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// CompleteAttemptParams carries the values written when an attempt completes.
// The stored test type is never changed by completion.
type CompleteAttemptParams struct {
	Scores       SectionScores
	OverallScore float64
	Feedback     AttemptFeedback
	CompletedAt  time.Time
}
