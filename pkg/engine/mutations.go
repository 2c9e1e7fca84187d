package engine

import (
	"fmt"
	"math"

	"pilothouse-hq/ganymede/pkg/audit"
	"pilothouse-hq/ganymede/pkg/policy"
)

// applyMutations runs a policy's mutations against the working data copy,
// in declaration order. Triggered mutations re-evaluate their condition
// against the current data, so a rewrite by an earlier mutation is visible
// to a later trigger.
//
// A change is recorded only when the new value differs from the old. Any
// warning (missing field, non-numeric field, trigger error) is returned
// alongside; mutation problems never block an action on their own.
func applyMutations(p *policy.Compiled, data map[string]any, action *Action, evalCtx *Context) (map[string]audit.FieldChange, []string) {
	changes := make(map[string]audit.FieldChange)
	var warnings []string

	for i := range p.Mutations {
		m := &p.Mutations[i]

		if m.Trigger != nil {
			ctx := rclContext(action, evalCtx, data)
			on, err := m.Trigger.Evaluate(ctx)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("mutation trigger error, skipping: %v", err))
				continue
			}
			if !on {
				continue
			}
		}

		switch m.Op {
		case policy.MutationClamp:
			mutateField(m.Field, data, changes, &warnings, func(v float64) float64 {
				if m.MinValue != nil && v < *m.MinValue {
					v = *m.MinValue
				}
				if m.MaxValue != nil && v > *m.MaxValue {
					v = *m.MaxValue
				}
				return v
			})

		case policy.MutationSet:
			mutateField(m.Field, data, changes, &warnings, func(float64) float64 {
				return m.Value
			})

		case policy.MutationMultiply:
			mutateField(m.Field, data, changes, &warnings, func(v float64) float64 {
				return v * m.Value
			})

		case policy.MutationLimitDelta:
			for _, field := range m.Fields {
				limitDelta(field, m.MaxDeltaPercent, data, changes, &warnings)
			}
		}
	}

	return changes, warnings
}

// mutateField applies fn to a numeric data field, recording the change
// when the value moved.
func mutateField(field string, data map[string]any, changes map[string]audit.FieldChange, warnings *[]string, fn func(float64) float64) {
	old, ok := numericField(data, field)
	if !ok {
		*warnings = append(*warnings, fmt.Sprintf("mutation skipped: field %q is missing or not numeric", field))
		return
	}
	next := fn(old)
	if next == old {
		return
	}
	data[field] = next
	recordChange(changes, field, old, next)
}

// limitDelta caps the percentage move of field relative to its
// previous_<field> companion. A missing companion leaves the field alone.
func limitDelta(field string, maxPct float64, data map[string]any, changes map[string]audit.FieldChange, warnings *[]string) {
	cur, ok := numericField(data, field)
	if !ok {
		*warnings = append(*warnings, fmt.Sprintf("limit_delta skipped: field %q is missing or not numeric", field))
		return
	}
	prev, ok := numericField(data, "previous_"+field)
	if !ok {
		*warnings = append(*warnings, fmt.Sprintf("limit_delta skipped: field %q has no previous value", field))
		return
	}
	if prev == 0 {
		// No baseline to compute a percentage from.
		return
	}

	maxDelta := math.Abs(prev) * maxPct / 100
	delta := cur - prev
	if math.Abs(delta) <= maxDelta {
		return
	}

	next := prev + math.Copysign(maxDelta, delta)
	data[field] = next
	recordChange(changes, field, cur, next)
}

// recordChange merges a field rewrite into the change set, preserving the
// original old value when the field was already rewritten by an earlier
// mutation.
func recordChange(changes map[string]audit.FieldChange, field string, old, next float64) {
	if prior, ok := changes[field]; ok {
		changes[field] = audit.FieldChange{Old: prior.Old, New: next}
		return
	}
	changes[field] = audit.FieldChange{Old: old, New: next}
}

// numericField extracts a float64 from action data, accepting the numeric
// types JSON and YAML decoding produce.
func numericField(data map[string]any, field string) (float64, bool) {
	v, ok := data[field]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
