package storage

import (
	"context"
	"log/slog"
	"time"

	"pilothouse-hq/ganymede/pkg/limits"
)

// Persister periodically snapshots a tracker into a backend, and restores
// it on startup.
type Persister struct {
	tracker  *limits.Tracker
	backend  Backend
	interval time.Duration
	logger   *slog.Logger
}

// NewPersister creates a persister. Interval defaults to one minute.
func NewPersister(tracker *limits.Tracker, backend Backend, interval time.Duration, logger *slog.Logger) *Persister {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default().With("component", "limits.persister")
	}
	return &Persister{
		tracker:  tracker,
		backend:  backend,
		interval: interval,
		logger:   logger,
	}
}

// Restore loads persisted state into the tracker.
func (p *Persister) Restore(ctx context.Context) error {
	state, err := p.backend.Load(ctx)
	if err != nil {
		return err
	}
	p.tracker.Restore(state)
	return nil
}

// Run saves the tracker state every interval until the context is
// cancelled, then performs a final save.
func (p *Persister) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := p.save(context.Background()); err != nil {
				p.logger.Error("final limit state save failed", "error", err)
			}
			return
		case <-ticker.C:
			if err := p.save(ctx); err != nil {
				p.logger.Error("limit state save failed", "error", err)
			}
		}
	}
}

func (p *Persister) save(ctx context.Context) error {
	return p.backend.Save(ctx, p.tracker.Export())
}
