package memory

import (
	"context"
	"sync"

	"finboard/internal/core"
	ports "finboard/internal/sheets"
)

// Store keeps activity rows in memory. The worker falls back to it when no
// spreadsheet is configured.
type Store struct {
	mu     sync.Mutex
	rows   [][]string
	events []core.ActivityEvent
	// Fail, when set, is returned by AppendActivity.
	Fail error
}

var _ ports.ActivityWriter = (*Store)(nil)

func New() *Store {
	return &Store{rows: [][]string{append([]string(nil), ports.Header...)}}
}

func (s *Store) AppendActivity(_ context.Context, ev core.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	s.rows = append(s.rows, ports.Row(ev))
	s.events = append(s.events, ev)
	return nil
}

// Rows returns a copy of the sheet, header included.
func (s *Store) Rows() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.rows))
	for i, r := range s.rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

// Events returns the appended events in order.
func (s *Store) Events() []core.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.ActivityEvent(nil), s.events...)
}
