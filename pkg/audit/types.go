// Package audit defines the immutable evaluation records the engine emits
// and the storage interface for retaining and querying them.
//
// The engine never writes records itself: every Evaluate call returns the
// entries it produced and the orchestrating layer decides persistence and
// batching, keeping the evaluation core side-effect free.
package audit

import (
	"context"
	"time"
)

// Decision is the outcome of evaluating an action.
type Decision string

const (
	// DecisionAllowed means the action may execute as (possibly mutated).
	DecisionAllowed Decision = "allowed"

	// DecisionBlocked means the action must not execute (enforce mode)
	// or would have been blocked (monitor mode).
	DecisionBlocked Decision = "blocked"

	// DecisionWarned means the action may execute but soft guards fired.
	DecisionWarned Decision = "warned"
)

// Kind distinguishes the record types one evaluation can emit.
type Kind string

const (
	// KindPolicy records one policy's verdict for one action.
	KindPolicy Kind = "policy"

	// KindAction records the overall decision for one action.
	KindAction Kind = "action"

	// KindOverride records a caller-requested evaluation bypass.
	KindOverride Kind = "override"
)

// FieldChange records one mutation applied to an action data field.
type FieldChange struct {
	Old float64 `json:"old"`
	New float64 `json:"new"`
}

// Entry is a single immutable audit record. Created once, never mutated.
type Entry struct {
	// ID is a UUID assigned at creation.
	ID string `json:"id"`

	// Kind is policy, action, or override.
	Kind Kind `json:"kind"`

	// PolicyID identifies the policy for KindPolicy entries; empty for
	// action-level entries.
	PolicyID string `json:"policy_id,omitempty"`

	// ActionID and AlgoKey identify the evaluated action.
	ActionID string `json:"action_id"`
	AlgoKey  string `json:"algo_key"`

	// Decision is the verdict this entry records.
	Decision Decision `json:"decision"`

	// Reasons lists guard failures, limit rejections, and warnings, in
	// evaluation order.
	Reasons []string `json:"reasons,omitempty"`

	// MutationsApplied maps each rewritten field to its old and new
	// values.
	MutationsApplied map[string]FieldChange `json:"mutations_applied,omitempty"`

	// RiskCost is the risk score charged (or that would have been
	// charged) for the action.
	RiskCost float64 `json:"risk_cost"`

	// ModeEffective is the mode the decision was computed under:
	// "enforce", "monitor", or "preview".
	ModeEffective string `json:"mode_effective"`

	// SnapshotVersion identifies the policy snapshot evaluated against.
	SnapshotVersion string `json:"snapshot_version,omitempty"`

	// Timestamp is when the entry was created.
	Timestamp time.Time `json:"timestamp"`
}

// Query filters stored entries.
type Query struct {
	// Time range, inclusive.
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// Filters. Zero values mean no filter.
	AlgoKey  string   `json:"algo_key,omitempty"`
	PolicyID string   `json:"policy_id,omitempty"`
	ActionID string   `json:"action_id,omitempty"`
	Decision Decision `json:"decision,omitempty"`
	Kind     Kind     `json:"kind,omitempty"`

	// Pagination.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Stats aggregates decisions over a query's matching entries.
type Stats struct {
	Total   int64 `json:"total"`
	Allowed int64 `json:"allowed"`
	Blocked int64 `json:"blocked"`
	Warned  int64 `json:"warned"`
}

// Storage is the interface audit backends implement. Implementations must
// be safe for concurrent use.
type Storage interface {
	// Store persists entries. Entries are immutable once stored.
	Store(ctx context.Context, entries []*Entry) error

	// Query returns entries matching the filters, newest first.
	Query(ctx context.Context, query *Query) ([]*Entry, error)

	// Count returns the number of entries matching the filters.
	Count(ctx context.Context, query *Query) (int64, error)

	// Stats aggregates action-level decisions matching the filters.
	Stats(ctx context.Context, query *Query) (*Stats, error)

	// DeleteBefore removes entries older than the cutoff, returning how
	// many were deleted. Used by retention pruning.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases backend resources.
	Close() error
}
