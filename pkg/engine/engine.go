package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pilothouse-hq/ganymede/pkg/audit"
	"pilothouse-hq/ganymede/pkg/limits"
	"pilothouse-hq/ganymede/pkg/policy"
	"pilothouse-hq/ganymede/pkg/policy/store"
)

// DefaultDedupTTL is how long a decision is replayed for a repeated
// idempotency key.
const DefaultDedupTTL = 5 * time.Minute

// Engine evaluates actions against the current policy snapshot.
//
// # Thread Safety
//
// Evaluate is safe for concurrent use. Each call reads one immutable
// snapshot; limit accounting is the only shared mutable state and is
// synchronized inside the tracker.
type Engine struct {
	store  *store.Store
	limits *limits.Tracker
	dedup  *dedupCache
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithDedupTTL sets how long decisions are replayed for repeated
// idempotency keys.
func WithDedupTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.dedup = newDedupCache(ttl) }
}

// New creates an engine over the given policy store and limit tracker.
func New(st *store.Store, tracker *limits.Tracker, opts ...Option) *Engine {
	e := &Engine{
		store:  st,
		limits: tracker,
		dedup:  newDedupCache(DefaultDedupTTL),
		logger: slog.Default().With("component", "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate decides whether an action may execute. The call is pure with
// respect to external systems: it performs no I/O, and the audit entries
// it produces are returned on the result for the caller to persist.
//
// The action and context are read-only; rewritten field values are
// returned in Result.Data.
func (e *Engine) Evaluate(action *Action, evalCtx *Context, opts Options) (*Result, error) {
	if action == nil {
		return nil, fmt.Errorf("engine: nil action")
	}
	if action.ID == "" || action.AlgoKey == "" {
		return nil, fmt.Errorf("engine: action requires id and algo_key")
	}
	if evalCtx == nil {
		evalCtx = &Context{}
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	if opts.Bypass {
		return e.bypass(action, now), nil
	}

	if !opts.Preview {
		if cached := e.dedup.get(action.IdempotencyKey, now); cached != nil {
			replay := *cached
			replay.Deduped = true
			replay.Entries = nil
			return &replay, nil
		}
	}

	snap := e.store.Snapshot()
	result := e.evaluate(action, evalCtx, snap, now, opts.Preview)

	if !opts.Preview {
		e.dedup.put(action.IdempotencyKey, result, now)
	}

	if result.Decision == audit.DecisionBlocked {
		e.logger.Info("action blocked",
			"action_id", action.ID,
			"algo_key", action.AlgoKey,
			"enforced", result.Enforced,
			"reasons", result.Reasons)
	}

	return result, nil
}

// evaluate runs the full pipeline against one snapshot.
func (e *Engine) evaluate(action *Action, evalCtx *Context, snap *store.Snapshot, now time.Time, preview bool) *Result {
	result := &Result{
		ActionID:         action.ID,
		Decision:         audit.DecisionAllowed,
		Data:             cloneData(action.Data),
		MutationsApplied: make(map[string]audit.FieldChange),
		SnapshotVersion:  snap.Version,
		Timestamp:        now,
	}

	modeEffective := "monitor"
	if preview {
		modeEffective = "preview"
	}

	var reservations []*limits.Reservation

	for _, p := range snap.Policies() {
		if !p.Policy.Enabled {
			continue
		}
		if !scopeMatches(p.Policy, action, evalCtx) || !inRollout(p.Policy, action) {
			continue
		}
		ctx := rclContext(action, evalCtx, result.Data)

		pr := PolicyResult{
			PolicyID: p.Policy.ID,
			Decision: audit.DecisionAllowed,
			Mode:     string(p.Policy.Mode),
		}

		if open, reason := gatesOpen(p, ctx, now); !open {
			pr.Skipped = true
			pr.Reasons = []string{reason}
			result.Policies = append(result.Policies, pr)
			continue
		}

		if !preview && p.Policy.Mode == policy.ModeEnforce {
			modeEffective = "enforce"
		}

		guards := evaluateGuards(p, ctx)
		pr.Reasons = append(pr.Reasons, guards.reasons...)
		warned := len(guards.warnings) > 0

		blocked := guards.blocked
		if !blocked {
			// Monitor policies and previews check limits without
			// consuming capacity.
			checkOnly := preview || p.Policy.Mode == policy.ModeMonitor
			scopeKey := limitScopeKey(p.Policy, action, evalCtx)
			outcome, reservation := e.limits.CheckAndReserve(p, scopeKey, now, action.RiskScore, checkOnly)
			if outcome.Blocked {
				blocked = true
				pr.Reasons = append(pr.Reasons, outcome.Reasons...)
			} else if reservation != nil {
				reservations = append(reservations, reservation)
			}
		}

		if !blocked && len(p.Mutations) > 0 {
			var changes map[string]audit.FieldChange
			var warnings []string
			if p.Policy.Mode == policy.ModeEnforce {
				changes, warnings = applyMutations(p, result.Data, action, evalCtx)
				for field, change := range changes {
					mergeChange(result.MutationsApplied, field, change)
				}
			} else {
				// Record what would have changed without touching the
				// returned data.
				shadow := cloneData(result.Data)
				changes, warnings = applyMutations(p, shadow, action, evalCtx)
			}
			pr.MutationsApplied = changes
			pr.Reasons = append(pr.Reasons, warnings...)
			if len(warnings) > 0 {
				warned = true
			}
		}

		switch {
		case blocked:
			pr.Decision = audit.DecisionBlocked
		case warned:
			pr.Decision = audit.DecisionWarned
		}
		result.Policies = append(result.Policies, pr)
	}

	e.aggregate(result, modeEffective)

	// Reserved capacity is consumed only when the action will actually
	// execute.
	if result.Enforced {
		for _, r := range reservations {
			r.Cancel()
		}
	} else {
		for _, r := range reservations {
			r.Commit()
		}
	}

	result.Entries = e.auditEntries(action, result, now)
	return result
}

// aggregate folds per-policy verdicts into the action-level decision.
// Deny overrides allow: any blocking policy, monitor included, makes the
// decision blocked. Only enforce-mode blocks set Enforced.
func (e *Engine) aggregate(result *Result, modeEffective string) {
	for i := range result.Policies {
		pr := &result.Policies[i]
		if pr.Skipped {
			continue
		}
		result.Reasons = append(result.Reasons, pr.Reasons...)
		switch pr.Decision {
		case audit.DecisionBlocked:
			result.Decision = audit.DecisionBlocked
			if pr.Mode == string(policy.ModeEnforce) {
				result.Enforced = true
			}
		case audit.DecisionWarned:
			if result.Decision == audit.DecisionAllowed {
				result.Decision = audit.DecisionWarned
			}
		}
	}
	if modeEffective == "preview" {
		result.Enforced = false
	}
	result.ModeEffective = modeEffective
}

// auditEntries builds one policy-level entry per applicable policy plus
// the action-level entry.
func (e *Engine) auditEntries(action *Action, result *Result, now time.Time) []*audit.Entry {
	entries := make([]*audit.Entry, 0, len(result.Policies)+1)
	for i := range result.Policies {
		pr := &result.Policies[i]
		if pr.Skipped {
			continue
		}
		entries = append(entries, &audit.Entry{
			ID:               uuid.NewString(),
			Kind:             audit.KindPolicy,
			PolicyID:         pr.PolicyID,
			ActionID:         action.ID,
			AlgoKey:          action.AlgoKey,
			Decision:         pr.Decision,
			Reasons:          pr.Reasons,
			MutationsApplied: pr.MutationsApplied,
			RiskCost:         action.RiskScore,
			ModeEffective:    result.ModeEffective,
			SnapshotVersion:  result.SnapshotVersion,
			Timestamp:        now,
		})
	}
	entries = append(entries, &audit.Entry{
		ID:               uuid.NewString(),
		Kind:             audit.KindAction,
		ActionID:         action.ID,
		AlgoKey:          action.AlgoKey,
		Decision:         result.Decision,
		Reasons:          result.Reasons,
		MutationsApplied: result.MutationsApplied,
		RiskCost:         action.RiskScore,
		ModeEffective:    result.ModeEffective,
		SnapshotVersion:  result.SnapshotVersion,
		Timestamp:        now,
	})
	return entries
}

// bypass allows an action without evaluation, leaving an override entry
// so the skip itself is auditable.
func (e *Engine) bypass(action *Action, now time.Time) *Result {
	snap := e.store.Snapshot()
	result := &Result{
		ActionID:        action.ID,
		Decision:        audit.DecisionAllowed,
		ModeEffective:   "override",
		Reasons:         []string{"policy evaluation bypassed by operator override"},
		Data:            cloneData(action.Data),
		SnapshotVersion: snap.Version,
		Timestamp:       now,
	}
	result.Entries = []*audit.Entry{{
		ID:              uuid.NewString(),
		Kind:            audit.KindOverride,
		ActionID:        action.ID,
		AlgoKey:         action.AlgoKey,
		Decision:        audit.DecisionAllowed,
		Reasons:         result.Reasons,
		RiskCost:        action.RiskScore,
		ModeEffective:   "override",
		SnapshotVersion: snap.Version,
		Timestamp:       now,
	}}
	e.logger.Warn("policy evaluation bypassed",
		"action_id", action.ID,
		"algo_key", action.AlgoKey)
	return result
}

// mergeChange folds a later rewrite of the same field into the aggregate
// change set, keeping the earliest old value.
func mergeChange(changes map[string]audit.FieldChange, field string, change audit.FieldChange) {
	if prior, ok := changes[field]; ok {
		changes[field] = audit.FieldChange{Old: prior.Old, New: change.New}
		return
	}
	changes[field] = change
}

// cloneData shallow-copies action data. Values are scalars in practice;
// nested structures are shared and must not be mutated.
func cloneData(data map[string]any) map[string]any {
	clone := make(map[string]any, len(data))
	for k, v := range data {
		clone[k] = v
	}
	return clone
}
