package limits

import (
	"fmt"
	"log/slog"
	"time"

	"pilothouse-hq/ganymede/pkg/limits/ratelimit"
	"pilothouse-hq/ganymede/pkg/limits/riskbudget"
	"pilothouse-hq/ganymede/pkg/policy"
)

// Outcome is the result of checking one policy's limits for one action.
type Outcome struct {
	// Blocked is true when any limit was exceeded.
	Blocked bool

	// Reasons lists each exceeded limit, in declaration order.
	Reasons []string
}

// Reservation aggregates the tentative quota charges made while checking
// one policy. Commit keeps the charges; Cancel refunds them. Both are
// idempotent.
type Reservation struct {
	rates   []*ratelimit.Reservation
	budgets []*riskbudget.Reservation
}

// Commit finalizes all charges.
func (r *Reservation) Commit() {
	if r == nil {
		return
	}
	for _, res := range r.rates {
		res.Commit()
	}
	for _, res := range r.budgets {
		res.Commit()
	}
}

// Cancel refunds all charges not yet committed.
func (r *Reservation) Cancel() {
	if r == nil {
		return
	}
	for _, res := range r.rates {
		res.Cancel()
	}
	for _, res := range r.budgets {
		res.Cancel()
	}
}

// Tracker owns all rate counters and risk budgets. It is safe for
// concurrent use; counter mutations are atomic per (policy, scope key,
// window), so two actions competing for the last slot in a window cannot
// both succeed.
type Tracker struct {
	rates   *ratelimit.Counters
	budgets *riskbudget.Book
	logger  *slog.Logger
}

// NewTracker creates a tracker whose daily budget boundaries follow loc
// (nil means UTC).
func NewTracker(loc *time.Location, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default().With("component", "limits")
	}
	return &Tracker{
		rates:   ratelimit.NewCounters(),
		budgets: riskbudget.NewBook(loc),
		logger:  logger,
	}
}

// CheckAndReserve evaluates every limit sub-rule on the policy for one
// action. When checkOnly is false it tentatively reserves rate slots and
// budget charges as it goes; on any exceeded limit it refunds its own
// partial reservations and reports blocked.
//
// The returned reservation is nil when checkOnly is set or the outcome is
// blocked.
func (t *Tracker) CheckAndReserve(p *policy.Compiled, scopeKey string, now time.Time, riskCost float64, checkOnly bool) (*Outcome, *Reservation) {
	outcome := &Outcome{}
	reservation := &Reservation{}

	for _, limit := range p.Policy.Limits {
		switch limit.Type {
		case policy.LimitTypeRate:
			window := time.Duration(limit.WindowMinutes) * time.Minute
			res, ok, current := t.rates.Reserve(p.Policy.ID, scopeKey, window, limit.Limit, now, checkOnly)
			if !ok {
				outcome.Blocked = true
				outcome.Reasons = append(outcome.Reasons, fmt.Sprintf(
					"rate limit exceeded: %d of %d actions already taken in %dm window for scope %q",
					current, limit.Limit, limit.WindowMinutes, scopeKey))
				continue
			}
			if res != nil {
				reservation.rates = append(reservation.rates, res)
			}

		case policy.LimitTypeRisk:
			if limit.MaxRiskPerAction > 0 && riskCost > limit.MaxRiskPerAction {
				outcome.Blocked = true
				outcome.Reasons = append(outcome.Reasons, fmt.Sprintf(
					"risk score %.2f exceeds max_risk_per_action %.2f",
					riskCost, limit.MaxRiskPerAction))
				continue
			}
			if limit.DailyRiskBudget > 0 {
				res, ok, spent := t.budgets.Reserve(p.Policy.ID, now, riskCost, limit.DailyRiskBudget, checkOnly)
				if !ok {
					outcome.Blocked = true
					outcome.Reasons = append(outcome.Reasons, fmt.Sprintf(
						"daily risk budget exhausted: %.2f of %.2f spent, action costs %.2f",
						spent, limit.DailyRiskBudget, riskCost))
					continue
				}
				if res != nil {
					reservation.budgets = append(reservation.budgets, res)
				}
			}
		}
	}

	if outcome.Blocked {
		reservation.Cancel()
		return outcome, nil
	}
	if checkOnly {
		return outcome, nil
	}
	return outcome, reservation
}

// RateCount returns the current count for a policy's window containing
// now. Intended for introspection and tests.
func (t *Tracker) RateCount(policyID, scopeKey string, window time.Duration, now time.Time) int {
	return t.rates.Count(policyID, scopeKey, window, now)
}

// RiskSpent returns the risk charged against the policy's budget today.
func (t *Tracker) RiskSpent(policyID string, now time.Time) float64 {
	return t.budgets.Spent(policyID, now)
}

// Export captures all live counter and budget state for persistence.
func (t *Tracker) Export() *TrackerState {
	return &TrackerState{
		Rates:   t.rates.Export(),
		Budgets: t.budgets.Export(),
	}
}

// Restore loads previously exported state, overwriting matching keys.
func (t *Tracker) Restore(state *TrackerState) {
	if state == nil {
		return
	}
	t.rates.Restore(state.Rates)
	t.budgets.Restore(state.Budgets)
	t.logger.Info("limit state restored",
		"rate_counters", len(state.Rates),
		"budget_accounts", len(state.Budgets),
	)
}

// TrackerState is the serializable snapshot of all counters and budgets.
type TrackerState struct {
	Rates   []ratelimit.State  `json:"rates"`
	Budgets []riskbudget.State `json:"budgets"`
}
