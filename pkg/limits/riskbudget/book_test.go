package riskbudget

import (
	"sync"
	"testing"
	"time"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestReserveWithinBudget(t *testing.T) {
	b := NewBook(time.UTC)

	res, ok, spent := b.Reserve("p1", now, 4, 10, false)
	if !ok || spent != 0 {
		t.Fatalf("ok = %v spent = %v, want accepted with zero prior spend", ok, spent)
	}
	res.Commit()

	if got := b.Spent("p1", now); got != 4 {
		t.Errorf("Spent = %v, want 4", got)
	}
}

func TestReserveOverBudget(t *testing.T) {
	b := NewBook(time.UTC)

	res, _, _ := b.Reserve("p1", now, 8, 10, false)
	res.Commit()

	_, ok, spent := b.Reserve("p1", now, 3, 10, false)
	if ok {
		t.Fatal("charge exceeding budget should be denied")
	}
	if spent != 8 {
		t.Errorf("spent = %v, want 8", spent)
	}
	if got := b.Spent("p1", now); got != 8 {
		t.Errorf("Spent = %v, denied charge must consume nothing", got)
	}
}

func TestCancelRefunds(t *testing.T) {
	b := NewBook(time.UTC)

	res, _, _ := b.Reserve("p1", now, 6, 10, false)
	res.Cancel()
	res.Cancel()

	if got := b.Spent("p1", now); got != 0 {
		t.Errorf("Spent = %v, want 0 after cancel", got)
	}
}

func TestCheckOnlyConsumesNothing(t *testing.T) {
	b := NewBook(time.UTC)

	res, ok, _ := b.Reserve("p1", now, 6, 10, true)
	if !ok {
		t.Fatal("checkOnly denied within budget")
	}
	if res != nil {
		t.Fatal("checkOnly must not return a reservation")
	}
	if got := b.Spent("p1", now); got != 0 {
		t.Errorf("Spent = %v, want 0", got)
	}
}

func TestDayRollover(t *testing.T) {
	b := NewBook(time.UTC)

	res, _, _ := b.Reserve("p1", now, 10, 10, false)
	res.Commit()

	tomorrow := now.AddDate(0, 0, 1)
	if _, ok, _ := b.Reserve("p1", tomorrow, 10, 10, false); !ok {
		t.Fatal("budget should reset on the next day")
	}
}

func TestDayRolloverInLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	b := NewBook(tokyo)

	// 16:00 UTC on March 10 is already March 11 in Tokyo.
	utcEvening := time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC)
	if got, want := b.DayKey(utcEvening), "2026-03-11"; got != want {
		t.Errorf("DayKey = %q, want %q", got, want)
	}
}

func TestConcurrentReservations(t *testing.T) {
	b := NewBook(time.UTC)

	const workers = 20
	var wg sync.WaitGroup
	granted := make(chan *Reservation, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Budget 10, cost 1: exactly 10 can win.
			if res, ok, _ := b.Reserve("p1", now, 1, 10, false); ok {
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
	if n != 10 {
		t.Fatalf("%d charges granted for budget 10 at cost 1", n)
	}
}

func TestExportRestore(t *testing.T) {
	b := NewBook(time.UTC)

	res, _, _ := b.Reserve("p1", now, 7, 10, false)
	res.Commit()

	restored := NewBook(time.UTC)
	restored.Restore(b.Export())

	if got := restored.Spent("p1", now); got != 7 {
		t.Errorf("restored Spent = %v, want 7", got)
	}
}
