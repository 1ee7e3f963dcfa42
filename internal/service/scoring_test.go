package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iels-id/learner-api/internal/models"
)

func TestComputeOverallScore(t *testing.T) {
	cases := []struct {
		name     string
		testType string
		scores   models.SectionScores
		want     float64
	}{
		{"ielts rounds to half band", "ielts", models.SectionScores{Listening: 6, Reading: 7, Writing: 6.5, Speaking: 7}, 6.5},
		{"ielts rounds up at quarter", "IELTS", models.SectionScores{Listening: 6, Reading: 6, Writing: 6, Speaking: 7}, 6.5},
		{"toefl sums sections", "toefl", models.SectionScores{Listening: 20, Reading: 22, Writing: 18, Speaking: 21}, 81},
		{"toeic ignores writing and speaking", "toeic", models.SectionScores{Listening: 400, Reading: 350, Writing: 150, Speaking: 160}, 750},
		{"type matching ignores case and spaces", "  ToEfL ", models.SectionScores{Listening: 1, Reading: 2, Writing: 3, Speaking: 4}, 10},
		{"unknown types score like ielts", "sat", models.SectionScores{Listening: 5, Reading: 5, Writing: 5, Speaking: 6}, 5.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ComputeOverallScore(tc.testType, tc.scores))
		})
	}
}
