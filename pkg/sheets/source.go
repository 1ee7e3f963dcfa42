// Package sheets talks to the human-edited registration spreadsheet that acts
// as the source of truth for test eligibility.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iels-id/learner-api/pkg/config"
)

// Attempt kinds in the spreadsheet's own vocabulary.
const (
	KindPreTest  = "pretest"
	KindPostTest = "posttest"
)

// ErrPermanent marks push failures that no retry can fix.
var ErrPermanent = errors.New("permanent sheet error")

// ErrEmailNotFound is returned by PushScore when the sheet has no row for the email.
var ErrEmailNotFound = fmt.Errorf("%w: email not found in registration sheet", ErrPermanent)

// Record is one registration row as the spreadsheet reports it.
type Record struct {
	Email            string     `json:"email"`
	FullName         string     `json:"fullName"`
	TestType         string     `json:"testType"`
	RegistrationDate *time.Time `json:"-"`
	AccessStatus     string     `json:"accessStatus"`
}

// Active reports whether the row grants access.
func (r *Record) Active() bool {
	return r != nil && strings.EqualFold(strings.TrimSpace(r.AccessStatus), "active")
}

// Source looks up registrations and receives score write-backs.
// Lookup returns (nil, nil) when the email is not listed.
type Source interface {
	Lookup(ctx context.Context, email string) (*Record, error)
	PushScore(ctx context.Context, email, kind string, score float64) error
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"1/2/2006",
	"01-02-06",
	"2/1/2006 15:04:05",
}

// parseDate accepts the formats spreadsheets commonly emit; unknown formats yield nil.
func parseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// New builds the source selected by cfg.Driver.
func New(cfg config.SheetsConfig) (Source, error) {
	switch cfg.Driver {
	case config.SheetsDriverHTTP, "":
		return NewHTTPSource(cfg.URL, cfg.Token, cfg.Timeout)
	case config.SheetsDriverXLSX:
		return NewWorkbookSource(cfg.WorkbookPath, cfg.SheetName)
	default:
		return nil, fmt.Errorf("unknown sheets driver %q", cfg.Driver)
	}
}
