package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionConfig controls automatic pruning of old audit entries.
type RetentionConfig struct {
	// RetentionDays is how long entries are kept. Zero disables pruning.
	RetentionDays int `yaml:"retention_days" json:"retention_days"`

	// PruneSchedule is a standard cron expression for when pruning runs,
	// e.g. "0 3 * * *" for daily at 3 AM. Empty disables the scheduler.
	PruneSchedule string `yaml:"prune_schedule" json:"prune_schedule"`
}

// Pruner deletes audit entries older than the retention window on a cron
// schedule.
type Pruner struct {
	storage Storage
	config  RetentionConfig
	cron    *cron.Cron
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewPruner creates a retention pruner over the given storage.
func NewPruner(storage Storage, config RetentionConfig, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default().With("component", "audit.retention")
	}
	return &Pruner{
		storage: storage,
		config:  config,
		cron:    cron.New(),
		logger:  logger,
	}
}

// Prune deletes entries older than the retention window once.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if p.config.RetentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -p.config.RetentionDays)
	deleted, err := p.storage.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit pruning failed: %w", err)
	}

	if deleted > 0 {
		p.logger.Info("audit entries pruned",
			"deleted", deleted,
			"cutoff", cutoff,
		)
	}
	return deleted, nil
}

// Start schedules pruning per the configured cron expression. It returns
// immediately; pruning runs in the cron scheduler's goroutine until the
// context is cancelled.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.config.PruneSchedule == "" || p.config.RetentionDays <= 0 {
		p.logger.Info("audit retention not configured, skipping scheduler")
		return nil
	}
	if p.running {
		return fmt.Errorf("retention pruner already running")
	}

	if _, err := cron.ParseStandard(p.config.PruneSchedule); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", p.config.PruneSchedule, err)
	}

	_, err := p.cron.AddFunc(p.config.PruneSchedule, func() {
		if _, err := p.Prune(ctx); err != nil {
			p.logger.Error("scheduled audit pruning failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule audit pruning: %w", err)
	}

	p.cron.Start()
	p.running = true

	p.logger.Info("audit retention scheduler started",
		"schedule", p.config.PruneSchedule,
		"retention_days", p.config.RetentionDays,
	)

	go func() {
		<-ctx.Done()
		p.Stop()
	}()

	return nil
}

// Stop halts the scheduler. Safe to call multiple times.
func (p *Pruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.cron.Stop()
	p.running = false
	p.logger.Info("audit retention scheduler stopped")
}
