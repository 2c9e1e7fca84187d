// Package storage provides audit entry storage backends.
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"pilothouse-hq/ganymede/pkg/audit"
)

// MemoryStorage keeps audit entries in memory. Suitable for tests and for
// deployments where a separate component owns durable audit retention.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries []*audit.Entry
}

// NewMemoryStorage creates an empty in-memory audit store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Store appends entries.
func (s *MemoryStorage) Store(ctx context.Context, entries []*audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		copied := *e
		s.entries = append(s.entries, &copied)
	}
	return nil
}

// Query returns matching entries, newest first.
func (s *MemoryStorage) Query(ctx context.Context, query *audit.Query) ([]*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*audit.Entry
	for _, e := range s.entries {
		if matches(e, query) {
			copied := *e
			results = append(results, &copied)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Timestamp.After(results[j].Timestamp)
	})

	start := query.Offset
	if start > len(results) {
		return nil, nil
	}
	results = results[start:]
	if query.Limit > 0 && query.Limit < len(results) {
		results = results[:query.Limit]
	}
	return results, nil
}

// Count returns the number of matching entries.
func (s *MemoryStorage) Count(ctx context.Context, query *audit.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, e := range s.entries {
		if matches(e, query) {
			count++
		}
	}
	return count, nil
}

// Stats aggregates action-level decisions matching the filters.
func (s *MemoryStorage) Stats(ctx context.Context, query *audit.Query) (*audit.Stats, error) {
	q := *query
	q.Kind = audit.KindAction
	q.Limit = 0
	q.Offset = 0

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &audit.Stats{}
	for _, e := range s.entries {
		if !matches(e, &q) {
			continue
		}
		stats.Total++
		switch e.Decision {
		case audit.DecisionAllowed:
			stats.Allowed++
		case audit.DecisionBlocked:
			stats.Blocked++
		case audit.DecisionWarned:
			stats.Warned++
		}
	}
	return stats, nil
}

// DeleteBefore removes entries older than cutoff.
func (s *MemoryStorage) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	var deleted int64
	for _, e := range s.entries {
		if e.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return deleted, nil
}

// Close is a no-op.
func (s *MemoryStorage) Close() error {
	return nil
}

// matches applies every query filter to one entry.
func matches(e *audit.Entry, q *audit.Query) bool {
	if q == nil {
		return true
	}
	if q.StartTime != nil && e.Timestamp.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && e.Timestamp.After(*q.EndTime) {
		return false
	}
	if q.AlgoKey != "" && e.AlgoKey != q.AlgoKey {
		return false
	}
	if q.PolicyID != "" && e.PolicyID != q.PolicyID {
		return false
	}
	if q.ActionID != "" && e.ActionID != q.ActionID {
		return false
	}
	if q.Decision != "" && e.Decision != q.Decision {
		return false
	}
	if q.Kind != "" && e.Kind != q.Kind {
		return false
	}
	return true
}
