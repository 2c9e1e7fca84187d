// Package storage persists limit tracker state so consumed quota survives
// restarts.
package storage

import (
	"context"
	"sync"

	"pilothouse-hq/ganymede/pkg/limits"
)

// Backend persists and restores tracker state. Implementations must be
// safe for concurrent use.
type Backend interface {
	// Save replaces the persisted state with the given snapshot.
	Save(ctx context.Context, state *limits.TrackerState) error

	// Load returns the persisted state, or an empty state if none exists.
	Load(ctx context.Context) (*limits.TrackerState, error)

	// Close releases backend resources.
	Close() error
}

// MemoryBackend keeps state in memory. Intended for tests and for running
// without persistence.
type MemoryBackend struct {
	mu    sync.Mutex
	state *limits.TrackerState
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Save replaces the stored state.
func (b *MemoryBackend) Save(ctx context.Context, state *limits.TrackerState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = state
	return nil
}

// Load returns the stored state.
func (b *MemoryBackend) Load(ctx context.Context) (*limits.TrackerState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == nil {
		return &limits.TrackerState{}, nil
	}
	return b.state, nil
}

// Close is a no-op.
func (b *MemoryBackend) Close() error {
	return nil
}
