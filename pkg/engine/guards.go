package engine

import (
	"fmt"

	"pilothouse-hq/ganymede/pkg/policy"
	"pilothouse-hq/ganymede/pkg/rcl"
)

// guardOutcome is the combined result of evaluating every guard on a
// policy. Every hard guard is evaluated even after the first failure so
// the decision reports the complete set of violations.
type guardOutcome struct {
	// blocked is true when at least one hard guard failed.
	blocked bool

	// reasons holds one message per failed guard, hard and soft, in
	// declaration order.
	reasons []string

	// warnings holds soft guard messages only.
	warnings []string
}

// evaluateGuards runs every guard condition against the context. A guard
// whose condition evaluates false has failed. Evaluation errors fail
// closed: an erroring hard guard blocks, an erroring soft guard warns.
func evaluateGuards(p *policy.Compiled, ctx *rcl.Context) guardOutcome {
	var out guardOutcome
	for i := range p.Guards {
		g := &p.Guards[i]
		ok, err := g.Expr.Evaluate(ctx)
		if err != nil {
			msg := fmt.Sprintf("guard condition error: %v", err)
			if g.IsHard() {
				out.blocked = true
				out.reasons = append(out.reasons, msg)
			} else {
				out.reasons = append(out.reasons, msg)
				out.warnings = append(out.warnings, msg)
			}
			continue
		}
		if ok {
			continue
		}
		msg := g.Message
		if msg == "" {
			msg = fmt.Sprintf("guard condition failed: %s", g.Expr.Source())
		}
		if g.IsHard() {
			out.blocked = true
			out.reasons = append(out.reasons, msg)
		} else {
			out.reasons = append(out.reasons, msg)
			out.warnings = append(out.warnings, msg)
		}
	}
	return out
}
