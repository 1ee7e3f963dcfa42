package service

import (
	"math"
	"strings"

	"github.com/iels-id/learner-api/internal/models"
)

// ComputeOverallScore derives the overall band or total for a test type.
// TOEFL sums all four sections, TOEIC sums listening and reading, and
// everything else is scored like IELTS: the mean rounded to the nearest half band.
func ComputeOverallScore(testType string, scores models.SectionScores) float64 {
	switch strings.ToLower(strings.TrimSpace(testType)) {
	case string(models.TestTypeTOEFL):
		return scores.Listening + scores.Reading + scores.Writing + scores.Speaking
	case string(models.TestTypeTOEIC):
		return scores.Listening + scores.Reading
	default:
		mean := (scores.Listening + scores.Reading + scores.Writing + scores.Speaking) / 4
		return math.Round(mean*2) / 2
	}
}
