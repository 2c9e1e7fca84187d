package ratelimit

import (
	"sync"
	"testing"
	"time"
)

var now = time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)

func TestReserveUpToLimit(t *testing.T) {
	c := NewCounters()
	window := time.Hour

	for i := 0; i < 3; i++ {
		res, ok, prior := c.Reserve("p1", "global", window, 3, now, false)
		if !ok {
			t.Fatalf("reservation %d denied", i+1)
		}
		if prior != i {
			t.Errorf("prior = %d, want %d", prior, i)
		}
		res.Commit()
	}

	_, ok, prior := c.Reserve("p1", "global", window, 3, now, false)
	if ok {
		t.Fatal("fourth reservation should be denied at limit 3")
	}
	if prior != 3 {
		t.Errorf("prior = %d, want 3", prior)
	}
	if n := c.Count("p1", "global", window, now); n != 3 {
		t.Errorf("Count = %d, want 3 after denied reserve", n)
	}
}

func TestCancelReturnsSlot(t *testing.T) {
	c := NewCounters()
	window := time.Hour

	res, ok, _ := c.Reserve("p1", "global", window, 1, now, false)
	if !ok {
		t.Fatal("reservation denied")
	}
	res.Cancel()

	if _, ok, _ := c.Reserve("p1", "global", window, 1, now, false); !ok {
		t.Fatal("slot not returned after cancel")
	}
}

func TestCommitThenCancelIsNoop(t *testing.T) {
	c := NewCounters()
	window := time.Hour

	res, _, _ := c.Reserve("p1", "global", window, 5, now, false)
	res.Commit()
	res.Cancel()
	res.Cancel()

	if n := c.Count("p1", "global", window, now); n != 1 {
		t.Errorf("Count = %d, want 1 after commit then cancel", n)
	}
}

func TestCheckOnlyConsumesNothing(t *testing.T) {
	c := NewCounters()
	window := time.Hour

	for i := 0; i < 5; i++ {
		res, ok, _ := c.Reserve("p1", "global", window, 2, now, true)
		if !ok {
			t.Fatalf("checkOnly %d denied below limit", i)
		}
		if res != nil {
			t.Fatal("checkOnly must not return a reservation")
		}
	}
	if n := c.Count("p1", "global", window, now); n != 0 {
		t.Errorf("Count = %d, want 0 after checkOnly calls", n)
	}
}

func TestWindowsAreIndependent(t *testing.T) {
	c := NewCounters()
	window := time.Hour

	res, _, _ := c.Reserve("p1", "global", window, 1, now, false)
	res.Commit()

	nextWindow := now.Add(time.Hour)
	if _, ok, _ := c.Reserve("p1", "global", window, 1, nextWindow, false); !ok {
		t.Fatal("new window should start with a fresh count")
	}
}

func TestScopesAreIndependent(t *testing.T) {
	c := NewCounters()
	window := time.Hour

	res, _, _ := c.Reserve("p1", "algo_a", window, 1, now, false)
	res.Commit()

	if _, ok, _ := c.Reserve("p1", "algo_b", window, 1, now, false); !ok {
		t.Fatal("scopes must count independently")
	}
}

func TestConcurrentLastSlotRace(t *testing.T) {
	c := NewCounters()
	window := time.Hour

	const workers = 20
	var wg sync.WaitGroup
	granted := make(chan *Reservation, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res, ok, _ := c.Reserve("p1", "global", window, 1, now, false); ok {
				granted <- res
			}
		}()
	}
	wg.Wait()
	close(granted)

	var n int
	for res := range granted {
		res.Commit()
		n++
	}
	if n != 1 {
		t.Fatalf("%d reservations granted for 1 slot", n)
	}
}

func TestExportRestore(t *testing.T) {
	c := NewCounters()
	window := time.Hour

	for i := 0; i < 2; i++ {
		res, _, _ := c.Reserve("p1", "global", window, 10, now, false)
		res.Commit()
	}

	restored := NewCounters()
	restored.Restore(c.Export())

	if n := restored.Count("p1", "global", window, now); n != 2 {
		t.Errorf("restored Count = %d, want 2", n)
	}
}
