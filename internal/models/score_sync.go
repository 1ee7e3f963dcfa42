package models

import "time"

// ScoreSyncStatus tracks delivery of a score to the external spreadsheet.
type ScoreSyncStatus string

const (
	ScoreSyncStatusPending ScoreSyncStatus = "pending"
	ScoreSyncStatusSynced  ScoreSyncStatus = "synced"
	ScoreSyncStatusFailed  ScoreSyncStatus = "failed"
	// ScoreSyncStatusRejected rows were refused by the spreadsheet for good and are never replayed.
	ScoreSyncStatusRejected ScoreSyncStatus = "rejected"
)

// ScoreSync is an outbox row: a score push still owed to the spreadsheet.
type ScoreSync struct {
	ID          string          `db:"id" json:"id"`
	AttemptID   string          `db:"attempt_id" json:"attempt_id"`
	Email       string          `db:"email" json:"email"`
	AttemptKind string          `db:"attempt_kind" json:"attempt_kind"`
	Score       float64         `db:"score" json:"score"`
	Status      ScoreSyncStatus `db:"status" json:"status"`
	Attempts    int             `db:"attempts" json:"attempts"`
	LastError   *string         `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
	SyncedAt    *time.Time      `db:"synced_at" json:"synced_at,omitempty"`
}
