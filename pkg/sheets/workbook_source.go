package sheets

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
)

// Workbook column headers, matched case-insensitively on the first row.
const (
	ColumnEmail            = "email"
	ColumnFullName         = "full_name"
	ColumnTestType         = "test_type"
	ColumnRegistrationDate = "registration_date"
	ColumnAccessStatus     = "access_status"
	ColumnPreTestScore     = "pretest_score"
	ColumnPostTestScore    = "posttest_score"
)

// WorkbookSource serves registrations from a local .xlsx workbook. The file is
// re-read on every lookup so edits made by staff are picked up immediately.
type WorkbookSource struct {
	path  string
	sheet string
	mu    sync.Mutex
}

// NewWorkbookSource constructs a workbook-backed source.
func NewWorkbookSource(path, sheet string) (*WorkbookSource, error) {
	if path == "" {
		return nil, fmt.Errorf("workbook path required")
	}
	if sheet == "" {
		sheet = "Registrations"
	}
	return &WorkbookSource{path: path, sheet: sheet}, nil
}

// Lookup finds the first row whose email matches.
func (s *WorkbookSource) Lookup(ctx context.Context, email string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close() //nolint:errcheck

	rows, columns, err := s.readRows(f)
	if err != nil {
		return nil, err
	}
	rowIdx := findRow(rows, columns, normalizeEmail(email))
	if rowIdx < 0 {
		return nil, nil
	}
	row := rows[rowIdx]
	return &Record{
		Email:            normalizeEmail(cell(row, columns, ColumnEmail)),
		FullName:         strings.TrimSpace(cell(row, columns, ColumnFullName)),
		TestType:         strings.TrimSpace(cell(row, columns, ColumnTestType)),
		RegistrationDate: parseDate(cell(row, columns, ColumnRegistrationDate)),
		AccessStatus:     strings.TrimSpace(cell(row, columns, ColumnAccessStatus)),
	}, nil
}

// PushScore writes score into the pre- or post-test column of the row for email.
func (s *WorkbookSource) PushScore(ctx context.Context, email, kind string, score float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var column string
	switch kind {
	case KindPreTest:
		column = ColumnPreTestScore
	case KindPostTest:
		column = ColumnPostTestScore
	default:
		return fmt.Errorf("%w: unknown attempt kind %q", ErrPermanent, kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close() //nolint:errcheck

	rows, columns, err := s.readRows(f)
	if err != nil {
		return err
	}
	colIdx, ok := columns[column]
	if !ok {
		return fmt.Errorf("workbook missing %s column", column)
	}
	rowIdx := findRow(rows, columns, normalizeEmail(email))
	if rowIdx < 0 {
		return ErrEmailNotFound
	}

	ref, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
	if err != nil {
		return fmt.Errorf("resolve score cell: %w", err)
	}
	if err := f.SetCellFloat(s.sheet, ref, score, -1, 64); err != nil {
		return fmt.Errorf("write score cell %s: %w", ref, err)
	}
	if err := f.Save(); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func (s *WorkbookSource) readRows(f *excelize.File) ([][]string, map[string]int, error) {
	rows, err := f.GetRows(s.sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %s: %w", s.sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("sheet %s has no header row", s.sheet)
	}
	columns := make(map[string]int, len(rows[0]))
	for i, header := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(header))
		if key != "" {
			columns[key] = i
		}
	}
	if _, ok := columns[ColumnEmail]; !ok {
		return nil, nil, fmt.Errorf("sheet %s missing %s column", s.sheet, ColumnEmail)
	}
	return rows, columns, nil
}

// findRow returns the index into rows (header is 0) or -1.
func findRow(rows [][]string, columns map[string]int, email string) int {
	for i := 1; i < len(rows); i++ {
		if normalizeEmail(cell(rows[i], columns, ColumnEmail)) == email {
			return i
		}
	}
	return -1
}

func cell(row []string, columns map[string]int, name string) string {
	idx, ok := columns[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}
