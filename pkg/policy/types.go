package policy

import (
	"fmt"
)

// Scope determines which actions a policy applies to.
type Scope string

const (
	// ScopeGlobal matches every action.
	ScopeGlobal Scope = "global"

	// ScopeAlgorithm matches actions whose algo_key equals the selector's.
	ScopeAlgorithm Scope = "algorithm"

	// ScopeSegment matches actions whose segment data contains every
	// selector key with an equal value.
	ScopeSegment Scope = "segment"
)

// Mode determines whether a policy's decisions bind the caller.
type Mode string

const (
	// ModeMonitor computes decisions for visibility only. Rate counters
	// and risk budgets are never charged and callers execute the action
	// unmodified regardless of the outcome.
	ModeMonitor Mode = "monitor"

	// ModeEnforce makes decisions binding: blocked actions must not
	// execute and quota reservations are committed.
	ModeEnforce Mode = "enforce"
)

// Authority is the ordered privilege ranking for policy management.
// Higher levels subsume lower ones.
type Authority int

const (
	AuthorityViewer Authority = iota
	AuthorityOperator
	AuthorityAdmin
	AuthorityDGAI
)

var authorityNames = map[Authority]string{
	AuthorityViewer:   "viewer",
	AuthorityOperator: "operator",
	AuthorityAdmin:    "admin",
	AuthorityDGAI:     "dg_ai",
}

var authorityValues = map[string]Authority{
	"viewer":   AuthorityViewer,
	"operator": AuthorityOperator,
	"admin":    AuthorityAdmin,
	"dg_ai":    AuthorityDGAI,
}

// String returns the canonical lowercase name of the authority level.
func (a Authority) String() string {
	if name, ok := authorityNames[a]; ok {
		return name
	}
	return fmt.Sprintf("authority(%d)", int(a))
}

// AtLeast reports whether a meets or exceeds the required level.
func (a Authority) AtLeast(required Authority) bool {
	return a >= required
}

// ParseAuthority converts an authority name to its ranked value.
func ParseAuthority(name string) (Authority, error) {
	if a, ok := authorityValues[name]; ok {
		return a, nil
	}
	return AuthorityViewer, fmt.Errorf("unknown authority level %q", name)
}

// MarshalText implements encoding.TextMarshaler so Authority serializes as
// its name in both YAML and JSON.
func (a Authority) MarshalText() ([]byte, error) {
	name, ok := authorityNames[a]
	if !ok {
		return nil, fmt.Errorf("unknown authority level %d", int(a))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Authority) UnmarshalText(text []byte) error {
	parsed, err := ParseAuthority(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// GuardSeverity distinguishes blocking guards from advisory ones.
type GuardSeverity string

const (
	// SeverityHard blocks the action when the guard condition is false.
	SeverityHard GuardSeverity = "hard"

	// SeveritySoft only annotates the decision with a warning.
	SeveritySoft GuardSeverity = "soft"
)

// Guard is a condition the action must satisfy. The condition expression
// evaluates against the action's metrics, segment data, and data fields;
// when it evaluates false the guard fails.
type Guard struct {
	// Condition is the RCL expression, e.g. "metrics.cvr_1h >= 0.02".
	Condition string `yaml:"condition" json:"condition"`

	// Message is appended to the decision reasons when the guard fails.
	Message string `yaml:"message" json:"message"`

	// Severity is "hard" (blocks) or "soft" (warns). Defaults to hard.
	Severity GuardSeverity `yaml:"severity,omitempty" json:"severity,omitempty"`
}

// IsHard reports whether a failing guard blocks the action.
func (g *Guard) IsHard() bool {
	return g.Severity == "" || g.Severity == SeverityHard
}

// LimitType discriminates limit sub-rules.
type LimitType string

const (
	// LimitTypeRate caps matching actions per fixed time window.
	LimitTypeRate LimitType = "rate"

	// LimitTypeRisk caps per-action risk and the cumulative daily
	// risk budget.
	LimitTypeRisk LimitType = "risk"
)

// Limit caps how often or how riskily matching actions may execute.
type Limit struct {
	// Type is "rate" or "risk".
	Type LimitType `yaml:"type" json:"type"`

	// Limit is the maximum number of actions per window (rate limits).
	Limit int `yaml:"limit,omitempty" json:"limit,omitempty"`

	// WindowMinutes is the fixed window length in minutes (rate limits).
	WindowMinutes int `yaml:"window_minutes,omitempty" json:"window_minutes,omitempty"`

	// MaxRiskPerAction blocks any single action whose risk score exceeds
	// it (risk limits). Zero means no per-action cap.
	MaxRiskPerAction float64 `yaml:"max_risk_per_action,omitempty" json:"max_risk_per_action,omitempty"`

	// DailyRiskBudget is the cumulative risk the policy permits per day
	// (risk limits). Zero means no daily budget.
	DailyRiskBudget float64 `yaml:"daily_risk_budget,omitempty" json:"daily_risk_budget,omitempty"`
}

// GateType discriminates gate sub-rules.
type GateType string

const (
	// GateTypeTime opens the policy on a cron schedule in a timezone.
	GateTypeTime GateType = "time"

	// GateTypeCondition opens the policy while a condition holds.
	GateTypeCondition GateType = "condition"
)

// Gate controls whether the policy is currently active. A policy with
// multiple gates requires all of them open: gates narrow applicability,
// they never widen it.
type Gate struct {
	// Type is "time" or "condition".
	Type GateType `yaml:"type" json:"type"`

	// Schedule is a standard 5-field cron expression (time gates).
	Schedule string `yaml:"schedule,omitempty" json:"schedule,omitempty"`

	// Timezone is the IANA timezone the schedule is interpreted in
	// (time gates). Defaults to UTC.
	Timezone string `yaml:"timezone,omitempty" json:"timezone,omitempty"`

	// OpenMinutes is how long the policy stays open after each schedule
	// trigger (time gates). Defaults to 60.
	OpenMinutes int `yaml:"open_minutes,omitempty" json:"open_minutes,omitempty"`

	// Condition is the RCL expression (condition gates).
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// MutationOp discriminates mutation sub-rules.
type MutationOp string

const (
	// MutationClamp constrains a field into [min_value, max_value].
	MutationClamp MutationOp = "clamp"

	// MutationSet overwrites a field with an absolute value.
	MutationSet MutationOp = "set"

	// MutationMultiply scales a field by a factor.
	MutationMultiply MutationOp = "multiply"

	// MutationLimitDelta caps the percentage change between a field and
	// its "previous_<field>" companion.
	MutationLimitDelta MutationOp = "limit_delta"
)

// Mutation rewrites action data fields before execution. Mutations apply
// in declaration order; a field rewritten by one mutation is visible to
// the next.
type Mutation struct {
	// Op is the rewrite operation.
	Op MutationOp `yaml:"op" json:"op"`

	// Field names the data field to rewrite (clamp, set, multiply).
	Field string `yaml:"field,omitempty" json:"field,omitempty"`

	// Fields names the data fields whose deltas are capped (limit_delta).
	Fields []string `yaml:"fields,omitempty" json:"fields,omitempty"`

	// Trigger is an optional RCL condition; when set, the mutation only
	// applies while the condition holds.
	Trigger string `yaml:"trigger,omitempty" json:"trigger,omitempty"`

	// MinValue and MaxValue bound clamp operations. Either may be omitted
	// for a one-sided clamp.
	MinValue *float64 `yaml:"min_value,omitempty" json:"min_value,omitempty"`
	MaxValue *float64 `yaml:"max_value,omitempty" json:"max_value,omitempty"`

	// Value is the absolute value for set, or the factor for multiply.
	Value float64 `yaml:"value,omitempty" json:"value,omitempty"`

	// MaxDeltaPercent caps the absolute percentage change per field for
	// limit_delta, e.g. 25 allows at most a 25% move from the previous
	// value.
	MaxDeltaPercent float64 `yaml:"max_delta_percent,omitempty" json:"max_delta_percent,omitempty"`
}

// Policy is a single governance rule. The zero value is not valid; use
// Validate (or Compile, which validates) before admitting a policy.
type Policy struct {
	// ID uniquely identifies the policy. Immutable after creation.
	ID string `yaml:"id" json:"id"`

	// Name is a short human-readable label.
	Name string `yaml:"name" json:"name"`

	// Description explains what the policy protects.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Scope is global, algorithm, or segment.
	Scope Scope `yaml:"scope" json:"scope"`

	// Selector maps field names to required values for algorithm and
	// segment scopes. Must be empty for global scope.
	Selector map[string]string `yaml:"selector,omitempty" json:"selector,omitempty"`

	// Mode is monitor (advisory) or enforce (binding).
	Mode Mode `yaml:"mode" json:"mode"`

	// Enabled policies participate in evaluation; disabled ones are
	// retained but skipped.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// AuthorityRequired is the minimum privilege needed to create or
	// modify this policy.
	AuthorityRequired Authority `yaml:"authority_required" json:"authority_required"`

	// RolloutPercent subjects only a deterministic fraction of matching
	// actions to the policy, for staged deployment. Range [0,100];
	// nil means 100.
	RolloutPercent *int `yaml:"rollout_percent,omitempty" json:"rollout_percent,omitempty"`

	Guards    []Guard    `yaml:"guards,omitempty" json:"guards,omitempty"`
	Limits    []Limit    `yaml:"limits,omitempty" json:"limits,omitempty"`
	Gates     []Gate     `yaml:"gates,omitempty" json:"gates,omitempty"`
	Mutations []Mutation `yaml:"mutations,omitempty" json:"mutations,omitempty"`
}

// Rollout returns the effective rollout percentage, defaulting to 100.
func (p *Policy) Rollout() int {
	if p.RolloutPercent == nil {
		return 100
	}
	return *p.RolloutPercent
}

// Clone returns a deep copy of the policy. Snapshots hand out clones so
// the store's copy is never mutated through a returned reference.
func (p *Policy) Clone() *Policy {
	clone := *p

	if p.Selector != nil {
		clone.Selector = make(map[string]string, len(p.Selector))
		for k, v := range p.Selector {
			clone.Selector[k] = v
		}
	}
	if p.RolloutPercent != nil {
		v := *p.RolloutPercent
		clone.RolloutPercent = &v
	}

	clone.Guards = append([]Guard(nil), p.Guards...)
	clone.Limits = append([]Limit(nil), p.Limits...)
	clone.Gates = append([]Gate(nil), p.Gates...)

	clone.Mutations = make([]Mutation, len(p.Mutations))
	for i, m := range p.Mutations {
		mc := m
		if m.MinValue != nil {
			v := *m.MinValue
			mc.MinValue = &v
		}
		if m.MaxValue != nil {
			v := *m.MaxValue
			mc.MaxValue = &v
		}
		mc.Fields = append([]string(nil), m.Fields...)
		clone.Mutations[i] = mc
	}

	return &clone
}
