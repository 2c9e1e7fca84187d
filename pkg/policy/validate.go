package policy

import "fmt"

// Validate checks the policy against its schema invariants. It returns a
// *ValidationError listing every violation, or nil if the policy is valid.
//
// Validation covers structure only; condition syntax is checked by Compile,
// which also runs Validate.
func (p *Policy) Validate() error {
	var problems []string

	if p.ID == "" {
		problems = append(problems, "id is required")
	}
	if p.Name == "" {
		problems = append(problems, "name is required")
	}

	switch p.Scope {
	case ScopeGlobal:
		if len(p.Selector) > 0 {
			problems = append(problems, "global scope must not have a selector")
		}
	case ScopeAlgorithm:
		if p.Selector["algo_key"] == "" {
			problems = append(problems, "algorithm scope requires selector.algo_key")
		}
	case ScopeSegment:
		if len(p.Selector) == 0 {
			problems = append(problems, "segment scope requires a non-empty selector")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown scope %q", p.Scope))
	}

	switch p.Mode {
	case ModeMonitor, ModeEnforce:
	default:
		problems = append(problems, fmt.Sprintf("unknown mode %q", p.Mode))
	}

	if _, ok := authorityNames[p.AuthorityRequired]; !ok {
		problems = append(problems, fmt.Sprintf("unknown authority level %d", int(p.AuthorityRequired)))
	}

	if p.RolloutPercent != nil && (*p.RolloutPercent < 0 || *p.RolloutPercent > 100) {
		problems = append(problems, fmt.Sprintf("rollout_percent %d out of range [0,100]", *p.RolloutPercent))
	}

	for i, g := range p.Guards {
		if g.Condition == "" {
			problems = append(problems, fmt.Sprintf("guards[%d]: condition is required", i))
		}
		if g.Message == "" {
			problems = append(problems, fmt.Sprintf("guards[%d]: message is required", i))
		}
		switch g.Severity {
		case "", SeverityHard, SeveritySoft:
		default:
			problems = append(problems, fmt.Sprintf("guards[%d]: unknown severity %q", i, g.Severity))
		}
	}

	for i, l := range p.Limits {
		switch l.Type {
		case LimitTypeRate:
			if l.Limit <= 0 {
				problems = append(problems, fmt.Sprintf("limits[%d]: rate limit must be positive", i))
			}
			if l.WindowMinutes <= 0 {
				problems = append(problems, fmt.Sprintf("limits[%d]: window_minutes must be positive", i))
			}
		case LimitTypeRisk:
			if l.MaxRiskPerAction < 0 {
				problems = append(problems, fmt.Sprintf("limits[%d]: max_risk_per_action must not be negative", i))
			}
			if l.DailyRiskBudget < 0 {
				problems = append(problems, fmt.Sprintf("limits[%d]: daily_risk_budget must not be negative", i))
			}
			if l.MaxRiskPerAction == 0 && l.DailyRiskBudget == 0 {
				problems = append(problems, fmt.Sprintf("limits[%d]: risk limit needs max_risk_per_action or daily_risk_budget", i))
			}
		default:
			problems = append(problems, fmt.Sprintf("limits[%d]: unknown type %q", i, l.Type))
		}
	}

	for i, g := range p.Gates {
		switch g.Type {
		case GateTypeTime:
			if g.Schedule == "" {
				problems = append(problems, fmt.Sprintf("gates[%d]: time gate requires a schedule", i))
			}
			if g.OpenMinutes < 0 {
				problems = append(problems, fmt.Sprintf("gates[%d]: open_minutes must not be negative", i))
			}
		case GateTypeCondition:
			if g.Condition == "" {
				problems = append(problems, fmt.Sprintf("gates[%d]: condition gate requires a condition", i))
			}
		default:
			problems = append(problems, fmt.Sprintf("gates[%d]: unknown type %q", i, g.Type))
		}
	}

	for i, m := range p.Mutations {
		switch m.Op {
		case MutationClamp:
			if m.Field == "" {
				problems = append(problems, fmt.Sprintf("mutations[%d]: clamp requires a field", i))
			}
			if m.MinValue == nil && m.MaxValue == nil {
				problems = append(problems, fmt.Sprintf("mutations[%d]: clamp requires min_value or max_value", i))
			}
			if m.MinValue != nil && m.MaxValue != nil && *m.MinValue > *m.MaxValue {
				problems = append(problems, fmt.Sprintf("mutations[%d]: min_value exceeds max_value", i))
			}
		case MutationSet:
			if m.Field == "" {
				problems = append(problems, fmt.Sprintf("mutations[%d]: set requires a field", i))
			}
		case MutationMultiply:
			if m.Field == "" {
				problems = append(problems, fmt.Sprintf("mutations[%d]: multiply requires a field", i))
			}
		case MutationLimitDelta:
			if len(m.Fields) == 0 {
				problems = append(problems, fmt.Sprintf("mutations[%d]: limit_delta requires fields", i))
			}
			if m.MaxDeltaPercent <= 0 {
				problems = append(problems, fmt.Sprintf("mutations[%d]: max_delta_percent must be positive", i))
			}
		default:
			problems = append(problems, fmt.Sprintf("mutations[%d]: unknown op %q", i, m.Op))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{PolicyID: p.ID, Problems: problems}
	}
	return nil
}
