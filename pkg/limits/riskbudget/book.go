// Package riskbudget implements daily cumulative risk accounting. Each
// policy has one budget per calendar day in the store's timezone; the day
// key rolls over at local midnight.
package riskbudget

import (
	"sync"
	"time"
)

// dayFormat is the budget day key layout.
const dayFormat = "2006-01-02"

type key struct {
	policyID string
	day      string
}

// account is one policy-day budget.
type account struct {
	mu    sync.Mutex
	spent float64
}

// Book tracks daily risk spend per policy.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Book struct {
	mu       sync.Mutex
	location *time.Location
	accounts map[key]*account
}

// NewBook creates an empty book. Days roll over at midnight in loc.
func NewBook(loc *time.Location) *Book {
	if loc == nil {
		loc = time.UTC
	}
	return &Book{
		location: loc,
		accounts: make(map[key]*account),
	}
}

// Reservation is a tentative budget charge. Exactly one of Commit or
// Cancel should be called; both are idempotent and safe on nil.
type Reservation struct {
	a        *account
	cost     float64
	mu       sync.Mutex
	resolved bool
}

// Commit keeps the charge.
func (r *Reservation) Commit() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = true
}

// Cancel refunds the charge.
func (r *Reservation) Cancel() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		return
	}
	r.resolved = true

	r.a.mu.Lock()
	r.a.spent -= r.cost
	if r.a.spent < 0 {
		r.a.spent = 0
	}
	r.a.mu.Unlock()
}

// DayKey returns the budget day containing t.
func (b *Book) DayKey(t time.Time) string {
	return t.In(b.location).Format(dayFormat)
}

// Reserve attempts to charge cost against the policy's budget for the day
// containing now. It returns the reservation (nil when checkOnly), whether
// the budget could absorb the charge, and the spend before this call. An
// over-budget charge consumes nothing.
func (b *Book) Reserve(policyID string, now time.Time, cost, budget float64, checkOnly bool) (*Reservation, bool, float64) {
	acct := b.account(key{policyID, b.DayKey(now)}, now)

	acct.mu.Lock()
	defer acct.mu.Unlock()

	spent := acct.spent
	if spent+cost > budget {
		return nil, false, spent
	}
	if checkOnly {
		return nil, true, spent
	}

	acct.spent += cost
	return &Reservation{a: acct, cost: cost}, true, spent
}

// Spent returns the committed and reserved spend for the day containing
// now.
func (b *Book) Spent(policyID string, now time.Time) float64 {
	b.mu.Lock()
	acct, ok := b.accounts[key{policyID, b.DayKey(now)}]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.spent
}

// account returns (creating if needed) the account for k, dropping days
// before yesterday.
func (b *Book) account(k key, now time.Time) *account {
	b.mu.Lock()
	defer b.mu.Unlock()

	yesterday := b.DayKey(now.AddDate(0, 0, -1))
	for old := range b.accounts {
		if old.day < yesterday {
			delete(b.accounts, old)
		}
	}

	acct, ok := b.accounts[k]
	if !ok {
		acct = &account{}
		b.accounts[k] = acct
	}
	return acct
}

// State is one account's persisted form.
type State struct {
	PolicyID string  `json:"policy_id"`
	Day      string  `json:"day"`
	Spent    float64 `json:"spent"`
}

// Export captures every live account.
func (b *Book) Export() []State {
	b.mu.Lock()
	defer b.mu.Unlock()

	states := make([]State, 0, len(b.accounts))
	for k, acct := range b.accounts {
		acct.mu.Lock()
		spent := acct.spent
		acct.mu.Unlock()
		if spent == 0 {
			continue
		}
		states = append(states, State{PolicyID: k.policyID, Day: k.day, Spent: spent})
	}
	return states
}

// Restore replaces live state with the given accounts. Used once at
// startup, before evaluation traffic begins.
func (b *Book) Restore(states []State) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.accounts = make(map[key]*account, len(states))
	for _, s := range states {
		b.accounts[key{s.PolicyID, s.Day}] = &account{spent: s.Spent}
	}
}
