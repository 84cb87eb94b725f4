// Package memory provides an in-memory usage.Store for testing and
// lightweight deployments. Records are lost when the process restarts.
// A size cap evicts the oldest records first.
package memory

import (
	"container/list"
	"context"
	"sync"

	"github.com/rhuss/relais/pkg/usage"
)

// Store is an in-memory usage ledger with a size cap.
type Store struct {
	mu      sync.RWMutex
	records *list.List // front = newest, back = oldest
	maxSize int        // 0 = unlimited
}

// Ensure Store implements usage.Store at compile time.
var _ usage.Store = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. If maxSize > 0, the oldest record is evicted when the
// limit is reached.
func New(maxSize int) *Store {
	return &Store{
		records: list.New(),
		maxSize: maxSize,
	}
}

// Save appends a record, evicting the oldest when at capacity.
func (s *Store) Save(_ context.Context, rec usage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxSize > 0 && s.records.Len() >= s.maxSize {
		if back := s.records.Back(); back != nil {
			s.records.Remove(back)
		}
	}

	s.records.PushFront(rec)
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(_ context.Context, limit int) ([]usage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	out := make([]usage.Record, 0, limit)
	for e := s.records.Front(); e != nil && len(out) < limit; e = e.Next() {
		out = append(out, e.Value.(usage.Record))
	}

	return out, nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
