package store

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a policy directory and reloads the store when files
// change. Change bursts (editor saves, git checkouts) are debounced so a
// multi-file update produces a single snapshot swap.
type Watcher struct {
	store    *Store
	dir      string
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher creates a watcher for the given policy directory.
func NewWatcher(s *Store, dir string, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default().With("component", "policy.watcher")
	}
	return &Watcher{store: s, dir: dir, debounce: debounce, logger: logger}
}

// Watch blocks, reloading the store on relevant file changes, until the
// context is cancelled. A failed reload keeps the previous snapshot and
// is logged, never fatal.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.logger.Info("policy watcher started", "dir", w.dir, "debounce_ms", w.debounce.Milliseconds())

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("policy watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			// Restart the debounce window on every relevant event.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerCh = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-timerCh:
			timer = nil
			timerCh = nil
			if err := LoadIntoStore(w.store, w.dir); err != nil {
				w.logger.Error("policy reload failed, keeping previous snapshot", "error", err)
				continue
			}
			snap := w.store.Snapshot()
			w.logger.Info("policies reloaded",
				"policy_count", snap.Len(),
				"version", snap.Version,
			)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// relevant filters events down to YAML file writes, creates, removes, and
// renames.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := filepath.Ext(name)
	if ext != ".yaml" && ext != ".yml" {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0
}
