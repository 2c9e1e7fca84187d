package engine

import (
	"time"

	"pilothouse-hq/ganymede/pkg/audit"
	"pilothouse-hq/ganymede/pkg/rcl"
)

// Action is a proposed change submitted by an autonomous algorithm.
// The engine consumes an action exactly once per Evaluate call and never
// mutates it: rewritten data is returned on the Result.
type Action struct {
	// ID uniquely identifies this action instance.
	ID string `json:"id"`

	// Type names the kind of change, e.g. "reweight", "budget_shift",
	// "pause_destination".
	Type string `json:"type"`

	// AlgoKey identifies the submitting algorithm.
	AlgoKey string `json:"algo_key"`

	// IdempotencyKey deduplicates logical actions: re-submission with the
	// same key within the dedup window returns the prior decision without
	// re-charging limits.
	IdempotencyKey string `json:"idempotency_key"`

	// Data holds the action's field values, e.g. weight, previous_weight,
	// budget_delta. Numeric fields are float64.
	Data map[string]any `json:"data"`

	// RiskScore is the caller-supplied estimate of potential harm, >= 0.
	RiskScore float64 `json:"risk_score"`
}

// Context is the ambient state supplied with each evaluation. Read-only
// for the duration of the call.
type Context struct {
	// Metrics maps metric names to current values, e.g. "cvr_1h".
	Metrics map[string]float64 `json:"metrics"`

	// SegmentData maps traffic dimensions to values, e.g. device=mobile.
	SegmentData map[string]string `json:"segment_data"`
}

// rclContext builds the expression evaluation context for an action. The
// data section references the working copy, so mutations applied earlier
// in the pipeline are visible to later conditions.
func rclContext(action *Action, evalCtx *Context, data map[string]any) *rcl.Context {
	ctx := rcl.NewContext()

	metrics := make(map[string]any, len(evalCtx.Metrics))
	for k, v := range evalCtx.Metrics {
		metrics[k] = v
	}
	ctx.Set("metrics", metrics)

	segment := make(map[string]any, len(evalCtx.SegmentData))
	for k, v := range evalCtx.SegmentData {
		segment[k] = v
	}
	ctx.Set("segment", segment)

	ctx.Set("data", data)
	ctx.Set("action", map[string]any{
		"id":         action.ID,
		"type":       action.Type,
		"algo_key":   action.AlgoKey,
		"risk_score": action.RiskScore,
	})

	return ctx
}

// PolicyResult is one policy's verdict for one action.
type PolicyResult struct {
	// PolicyID identifies the policy.
	PolicyID string `json:"policy_id"`

	// Decision is this policy's verdict.
	Decision audit.Decision `json:"decision"`

	// Skipped is true when a closed gate excluded the policy.
	Skipped bool `json:"skipped,omitempty"`

	// Mode is the policy's configured mode.
	Mode string `json:"mode"`

	// Reasons lists this policy's guard failures, limit rejections, and
	// warnings.
	Reasons []string `json:"reasons,omitempty"`

	// MutationsApplied maps rewritten fields to old and new values. For
	// monitor-mode policies these are the changes that would have been
	// applied.
	MutationsApplied map[string]audit.FieldChange `json:"mutations_applied,omitempty"`
}

// Result is the overall decision for one action.
type Result struct {
	// ActionID identifies the evaluated action.
	ActionID string `json:"action_id"`

	// Decision aggregates every applicable policy, deny-overrides-allow.
	Decision audit.Decision `json:"decision"`

	// Enforced is true when the decision is blocked and at least one
	// blocking policy is in enforce mode: the caller must not execute
	// the action. A monitor-only block is advisory.
	Enforced bool `json:"enforced"`

	// ModeEffective is "preview", "enforce" (some applicable policy
	// enforces), or "monitor".
	ModeEffective string `json:"mode_effective"`

	// Reasons aggregates every policy's reasons, in evaluation order.
	Reasons []string `json:"reasons,omitempty"`

	// Data is the action's data after enforce-mode mutations. Callers
	// executing the action must use this, not the submitted data.
	Data map[string]any `json:"data"`

	// MutationsApplied aggregates enforce-mode field rewrites.
	MutationsApplied map[string]audit.FieldChange `json:"mutations_applied,omitempty"`

	// Policies holds each applicable policy's verdict.
	Policies []PolicyResult `json:"policies,omitempty"`

	// Entries are the audit records this evaluation produced. The caller
	// owns persistence.
	Entries []*audit.Entry `json:"-"`

	// SnapshotVersion identifies the policy snapshot evaluated against.
	SnapshotVersion string `json:"snapshot_version"`

	// Deduped is true when the result was replayed from the idempotency
	// cache rather than recomputed.
	Deduped bool `json:"deduped,omitempty"`

	// Timestamp is when the decision was computed.
	Timestamp time.Time `json:"timestamp"`
}

// Options modify a single Evaluate call.
type Options struct {
	// Preview computes the decision without consuming rate limit slots
	// or risk budget, regardless of policy mode, and bypasses the
	// idempotency cache. Used by the dry-run API.
	Preview bool

	// Bypass skips evaluation entirely. The action is allowed and an
	// override audit entry is emitted for traceability.
	Bypass bool

	// Now overrides the evaluation time. Zero means time.Now(). Gates,
	// rate windows, and budget days all derive from this instant.
	Now time.Time
}
