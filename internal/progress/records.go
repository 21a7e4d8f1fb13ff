// Package progress records per-identity lesson completion and gates it
// behind an optional minimum dwell time.
package progress

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

var (
	ErrNotAuthenticated = errors.New("progress: not authenticated")
	ErrInvalidInput     = errors.New("progress: invalid input")
)

// Record is one row of the completion side-table, keyed by (identity, lesson).
type Record struct {
	Completed   bool      `json:"completed"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
}

// Summary is derived course progress. It is never persisted: recomputing it
// from the side-table is the single source of truth.
type Summary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Percent   int `json:"percent"`
}

// Percent computes round(100×completed/total) with half rounding up.
// total=0 is defined as 0%, not a division error.
func Percent(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}

// Store is the server-side side-table.
type Store interface {
	SetCompleted(ctx context.Context, identityID, lessonID string, at time.Time) error
	ClearCompleted(ctx context.Context, identityID, lessonID string) error
	IsCompleted(ctx context.Context, identityID, lessonID string) (bool, error)
	// CompletedSet returns which of the given lessons the identity completed.
	CompletedSet(ctx context.Context, identityID string, lessonIDs []string) (map[string]bool, error)
}

type recordKey struct {
	identityID string
	lessonID   string
}

// InMemoryStore implements Store for tests and the reference server.
type InMemoryStore struct {
	mu   sync.RWMutex
	rows map[recordKey]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rows: make(map[recordKey]Record)}
}

func (s *InMemoryStore) SetCompleted(ctx context.Context, identityID, lessonID string, at time.Time) error {
	if identityID == "" || lessonID == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	s.rows[recordKey{identityID, lessonID}] = Record{Completed: true, CompletedAt: at.UTC()}
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) ClearCompleted(ctx context.Context, identityID, lessonID string) error {
	if identityID == "" || lessonID == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	delete(s.rows, recordKey{identityID, lessonID})
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) IsCompleted(ctx context.Context, identityID, lessonID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows[recordKey{identityID, lessonID}].Completed, nil
}

func (s *InMemoryStore) CompletedSet(ctx context.Context, identityID string, lessonIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(lessonIDs))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range lessonIDs {
		if s.rows[recordKey{identityID, id}].Completed {
			out[id] = true
		}
	}
	return out, nil
}

var _ Store = (*InMemoryStore)(nil)
