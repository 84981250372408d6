package memory

import (
	"context"
	"fmt"
	"sync"

	"cassa/internal/sheets"
)

// Store keeps exported reports in memory, keyed by group and month.
// A later export of the same month replaces the earlier one.
type Store struct {
	mu      sync.Mutex
	reports map[string]sheets.MonthReport
	writes  int
}

var _ sheets.MonthWriter = (*Store)(nil)

func New() *Store {
	return &Store{reports: map[string]sheets.MonthReport{}}
}

func key(groupID string, year, month int) string {
	return fmt.Sprintf("%s:%04d-%02d", groupID, year, month)
}

// WriteMonth stores the report and returns a synthetic reference.
func (s *Store) WriteMonth(ctx context.Context, r sheets.MonthReport) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	k := key(r.Summary.GroupID, r.Summary.Year, r.Summary.Month)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[k] = r
	s.writes++
	return "mem:" + k, nil
}

// Report returns the last report written for the group and month.
func (s *Store) Report(groupID string, year, month int) (sheets.MonthReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[key(groupID, year, month)]
	return r, ok
}

// Writes counts WriteMonth calls.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
