package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iels-id/learner-api/internal/models"
)

var attemptRowColumns = []string{"id", "registration_id", "test_type", "attempt_type", "started_at", "completed_at", "status",
	"listening_score", "reading_score", "writing_score", "speaking_score", "overall_score",
	"mentor_feedback", "strengths", "weaknesses", "recommendations", "created_at"}

func attemptRow(rows *sqlmock.Rows, id string, kind models.AttemptKind, status models.AttemptStatus, started time.Time) *sqlmock.Rows {
	return rows.AddRow(id, "reg-1", "ielts", string(kind), started, nil, string(status),
		nil, nil, nil, nil, nil, nil, "{}", "{}", "{}", started)
}

func TestAttemptRepositoryListByRegistration(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAttemptRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows(attemptRowColumns)
	attemptRow(rows, "a-2", models.AttemptKindPostTest, models.AttemptStatusInProgress, now)
	attemptRow(rows, "a-1", models.AttemptKindPreTest, models.AttemptStatusCompleted, now.Add(-time.Hour))
	mock.ExpectQuery("SELECT .* FROM test_attempts WHERE registration_id = \\$1 ORDER BY created_at DESC").
		WithArgs("reg-1").
		WillReturnRows(rows)

	attempts, err := repo.ListByRegistration(context.Background(), "reg-1")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, "a-2", attempts[0].ID)
	assert.Empty(t, attempts[0].Strengths)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptRepositoryCreateIfAbsentInserts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAttemptRepository(db)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO test_attempts .* ON CONFLICT \\(registration_id, attempt_type\\) DO NOTHING").
		WithArgs(sqlmock.AnyArg(), "reg-1", "ielts", models.AttemptKindPreTest, sqlmock.AnyArg(), models.AttemptStatusInProgress, sqlmock.AnyArg()).
		WillReturnRows(attemptRow(sqlmock.NewRows(attemptRowColumns), "new-id", models.AttemptKindPreTest, models.AttemptStatusInProgress, now))

	attempt := &models.Attempt{RegistrationID: "reg-1", TestType: "ielts", AttemptType: models.AttemptKindPreTest}
	created, err := repo.CreateIfAbsent(context.Background(), attempt)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "new-id", attempt.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptRepositoryCreateIfAbsentReturnsExisting(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAttemptRepository(db)
	started := time.Now().Add(-48 * time.Hour)

	mock.ExpectQuery("INSERT INTO test_attempts").
		WillReturnRows(sqlmock.NewRows(attemptRowColumns))
	mock.ExpectQuery("SELECT .* FROM test_attempts WHERE registration_id = \\$1 AND attempt_type = \\$2").
		WithArgs("reg-1", models.AttemptKindPreTest).
		WillReturnRows(attemptRow(sqlmock.NewRows(attemptRowColumns), "old-id", models.AttemptKindPreTest, models.AttemptStatusCompleted, started))

	attempt := &models.Attempt{RegistrationID: "reg-1", TestType: "ielts", AttemptType: models.AttemptKindPreTest}
	created, err := repo.CreateIfAbsent(context.Background(), attempt)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "old-id", attempt.ID)
	assert.Equal(t, models.AttemptStatusCompleted, attempt.Status)
	assert.True(t, attempt.StartedAt.Equal(started))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptRepositoryFindWithRegistration(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAttemptRepository(db)
	now := time.Now()

	columns := append(append([]string{}, attemptRowColumns...), "registration_email", "registration_full_name")
	mock.ExpectQuery("FROM test_attempts a\\s+JOIN test_registrations r ON r.id = a.registration_id").
		WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("a-1", "reg-1", "toefl", "post-test", now, nil, "in_progress",
			nil, nil, nil, nil, nil, nil, "{}", "{}", "{}", now, "a@x.com", "Ayu"))

	row, err := repo.FindWithRegistration(context.Background(), "a-1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", row.RegistrationEmail)
	assert.Equal(t, models.AttemptKindPostTest, row.AttemptType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptRepositoryCompleteWithOutbox(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAttemptRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE test_attempts SET\s+listening_score = \$2`).
		WithArgs("a-1", 6.0, 7.0, 6.5, 7.0, 6.5, now, models.AttemptStatusCompleted,
			nil, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), models.AttemptStatusInProgress).
		WillReturnRows(sqlmock.NewRows(attemptRowColumns).AddRow("a-1", "reg-1", "ielts", "pre-test", now, now, "completed",
			6.0, 7.0, 6.5, 7.0, 6.5, nil, "{Grammar}", "{}", "{}", now))
	mock.ExpectExec("INSERT INTO score_sync_outbox").
		WithArgs(sqlmock.AnyArg(), "a-1", "a@x.com", "pretest", 6.5, models.ScoreSyncStatusPending, 0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outbox := &models.ScoreSync{AttemptID: "a-1", Email: "a@x.com", AttemptKind: "pretest", Score: 6.5}
	updated, err := repo.CompleteWithOutbox(context.Background(), "a-1", models.CompleteAttemptParams{
		Scores:       models.SectionScores{Listening: 6, Reading: 7, Writing: 6.5, Speaking: 7},
		OverallScore: 6.5,
		Feedback:     models.AttemptFeedback{Strengths: []string{"Grammar"}},
		CompletedAt:  now,
	}, outbox)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptStatusCompleted, updated.Status)
	require.NotNil(t, updated.OverallScore)
	assert.Equal(t, 6.5, *updated.OverallScore)
	assert.Equal(t, []string{"Grammar"}, []string(updated.Strengths))
	assert.NotEmpty(t, outbox.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptRepositoryCompleteWithOutboxAlreadyCompleted(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAttemptRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE test_attempts SET").WillReturnRows(sqlmock.NewRows(attemptRowColumns))
	mock.ExpectRollback()

	_, err := repo.CompleteWithOutbox(context.Background(), "a-1", models.CompleteAttemptParams{}, &models.ScoreSync{})
	assert.True(t, errors.Is(err, ErrAttemptNotInProgress))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptRepositoryCompleteWithOutboxRollsBackOnOutboxFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAttemptRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE test_attempts SET").
		WillReturnRows(attemptRow(sqlmock.NewRows(attemptRowColumns), "a-1", models.AttemptKindPreTest, models.AttemptStatusCompleted, now))
	mock.ExpectExec("INSERT INTO score_sync_outbox").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := repo.CompleteWithOutbox(context.Background(), "a-1", models.CompleteAttemptParams{}, &models.ScoreSync{AttemptID: "a-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert score sync")
	assert.NoError(t, mock.ExpectationsWereMet())
}
