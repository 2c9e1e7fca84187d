package store

import (
	"context"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestWatcherRelevance(t *testing.T) {
	w := NewWatcher(newTestStore(), t.TempDir(), 0, discardLogger())

	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"yaml write", fsnotify.Event{Name: "/policies/a.yaml", Op: fsnotify.Write}, true},
		{"yml create", fsnotify.Event{Name: "/policies/b.yml", Op: fsnotify.Create}, true},
		{"yaml remove", fsnotify.Event{Name: "/policies/a.yaml", Op: fsnotify.Remove}, true},
		{"dotfile", fsnotify.Event{Name: "/policies/.a.yaml.swp", Op: fsnotify.Write}, false},
		{"other extension", fsnotify.Event{Name: "/policies/notes.txt", Op: fsnotify.Write}, false},
		{"chmod only", fsnotify.Event{Name: "/policies/a.yaml", Op: fsnotify.Chmod}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := w.relevant(tc.event); got != tc.want {
				t.Errorf("relevant(%v) = %v, want %v", tc.event, got, tc.want)
			}
		})
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "a.yaml", singleWithID("a"))

	s := newTestStore()
	if err := LoadIntoStore(s, dir); err != nil {
		t.Fatalf("LoadIntoStore: %v", err)
	}

	w := NewWatcher(s, dir, 20*time.Millisecond, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(50 * time.Millisecond)
	writePolicyFile(t, dir, "b.yaml", singleWithID("b"))

	deadline := time.After(3 * time.Second)
	for {
		if _, ok := s.Get("b"); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("watcher did not reload after file change")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch: %v", err)
	}
}

func TestWatcherKeepsSnapshotOnBadReload(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "a.yaml", singleWithID("a"))

	s := newTestStore()
	if err := LoadIntoStore(s, dir); err != nil {
		t.Fatalf("LoadIntoStore: %v", err)
	}

	w := NewWatcher(s, dir, 20*time.Millisecond, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx)

	time.Sleep(50 * time.Millisecond)
	writePolicyFile(t, dir, "broken.yaml", "id: broken\nname: broken\nscope: nowhere\nmode: enforce\n")
	time.Sleep(200 * time.Millisecond)

	if _, ok := s.Get("a"); !ok {
		t.Error("failed reload lost the previous snapshot")
	}
	if _, ok := s.Get("broken"); ok {
		t.Error("invalid policy entered the store")
	}
}
