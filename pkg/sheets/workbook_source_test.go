package sheets

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newTestWorkbook(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registrations.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Registrations"))
	rows := [][]interface{}{
		{"Email", "Full_Name", "Test_Type", "Registration_Date", "Access_Status", "Pretest_Score", "Posttest_Score"},
		{"jane@example.com", "Jane Learner", "ielts", "2026-01-15", "active"},
		{"OLD@example.com", "Old Learner", "toefl", "2025-01-15", "expired"},
	}
	for i, row := range rows {
		ref, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Registrations", ref, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
	return path
}

func TestWorkbookSourceLookup(t *testing.T) {
	src, err := NewWorkbookSource(newTestWorkbook(t), "Registrations")
	require.NoError(t, err)

	rec, err := src.Lookup(context.Background(), " JANE@example.com")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "jane@example.com", rec.Email)
	assert.Equal(t, "Jane Learner", rec.FullName)
	assert.True(t, rec.Active())

	expired, err := src.Lookup(context.Background(), "old@example.com")
	require.NoError(t, err)
	require.NotNil(t, expired)
	assert.False(t, expired.Active())

	missing, err := src.Lookup(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestWorkbookSourcePushScore(t *testing.T) {
	path := newTestWorkbook(t)
	src, err := NewWorkbookSource(path, "Registrations")
	require.NoError(t, err)

	require.NoError(t, src.PushScore(context.Background(), "jane@example.com", KindPreTest, 6.5))
	require.NoError(t, src.PushScore(context.Background(), "jane@example.com", KindPostTest, 7))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	pre, err := f.GetCellValue("Registrations", "F2")
	require.NoError(t, err)
	post, err := f.GetCellValue("Registrations", "G2")
	require.NoError(t, err)
	assert.Equal(t, "6.5", pre)
	assert.Equal(t, "7", post)
}

func TestWorkbookSourcePushScoreUnknownEmail(t *testing.T) {
	src, err := NewWorkbookSource(newTestWorkbook(t), "Registrations")
	require.NoError(t, err)

	err = src.PushScore(context.Background(), "nobody@example.com", KindPreTest, 5)
	assert.ErrorIs(t, err, ErrEmailNotFound)
	assert.ErrorIs(t, err, ErrPermanent)

	err = src.PushScore(context.Background(), "jane@example.com", "midterm", 5)
	assert.ErrorIs(t, err, ErrPermanent)
}
