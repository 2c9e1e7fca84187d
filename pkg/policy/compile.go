package policy

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"pilothouse-hq/ganymede/pkg/rcl"
)

// Compiled is a policy whose condition expressions have been parsed into
// RCL ASTs and whose time gate schedules have been parsed into cron
// schedules. Compilation happens once, at store admission; evaluation
// never re-parses.
//
// Compiled policies are immutable and safe for concurrent evaluation.
type Compiled struct {
	// Policy is the underlying policy definition.
	Policy *Policy

	// Guards pairs each guard with its compiled condition.
	Guards []CompiledGuard

	// Gates pairs each gate with its compiled schedule or condition.
	Gates []CompiledGate

	// Mutations pairs each mutation with its compiled trigger, if any.
	Mutations []CompiledMutation
}

// CompiledGuard is a guard with its parsed condition.
type CompiledGuard struct {
	Guard
	Expr *rcl.Expr
}

// CompiledGate is a gate with its parsed schedule or condition.
type CompiledGate struct {
	Gate

	// Cron and Location are set for time gates.
	Cron     cron.Schedule
	Location *time.Location

	// Expr is set for condition gates.
	Expr *rcl.Expr
}

// OpenWindow is how long the gate stays open after each schedule trigger.
func (g *CompiledGate) OpenWindow() time.Duration {
	minutes := g.OpenMinutes
	if minutes == 0 {
		minutes = 60
	}
	return time.Duration(minutes) * time.Minute
}

// CompiledMutation is a mutation with its parsed trigger condition.
// Trigger is nil when the mutation is unconditional.
type CompiledMutation struct {
	Mutation
	Trigger *rcl.Expr
}

// Compile validates the policy and parses every condition and schedule it
// carries. It returns a *ValidationError when the policy is structurally
// invalid or any expression fails to parse.
func Compile(p *Policy) (*Compiled, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var problems []string
	compiled := &Compiled{Policy: p}

	for i, g := range p.Guards {
		expr, err := rcl.Compile(g.Condition)
		if err != nil {
			problems = append(problems, fmt.Sprintf("guards[%d]: %v", i, err))
			continue
		}
		compiled.Guards = append(compiled.Guards, CompiledGuard{Guard: g, Expr: expr})
	}

	for i, g := range p.Gates {
		cg := CompiledGate{Gate: g}
		switch g.Type {
		case GateTypeTime:
			schedule, err := cron.ParseStandard(g.Schedule)
			if err != nil {
				problems = append(problems, fmt.Sprintf("gates[%d]: invalid schedule %q: %v", i, g.Schedule, err))
				continue
			}
			cg.Cron = schedule

			tz := g.Timezone
			if tz == "" {
				tz = "UTC"
			}
			loc, err := time.LoadLocation(tz)
			if err != nil {
				problems = append(problems, fmt.Sprintf("gates[%d]: unknown timezone %q", i, tz))
				continue
			}
			cg.Location = loc

		case GateTypeCondition:
			expr, err := rcl.Compile(g.Condition)
			if err != nil {
				problems = append(problems, fmt.Sprintf("gates[%d]: %v", i, err))
				continue
			}
			cg.Expr = expr
		}
		compiled.Gates = append(compiled.Gates, cg)
	}

	for i, m := range p.Mutations {
		cm := CompiledMutation{Mutation: m}
		if m.Trigger != "" {
			expr, err := rcl.Compile(m.Trigger)
			if err != nil {
				problems = append(problems, fmt.Sprintf("mutations[%d]: trigger: %v", i, err))
				continue
			}
			cm.Trigger = expr
		}
		compiled.Mutations = append(compiled.Mutations, cm)
	}

	if len(problems) > 0 {
		return nil, &ValidationError{PolicyID: p.ID, Problems: problems}
	}
	return compiled, nil
}
