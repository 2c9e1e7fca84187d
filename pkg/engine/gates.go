package engine

import (
	"fmt"
	"time"

	"pilothouse-hq/ganymede/pkg/policy"
	"pilothouse-hq/ganymede/pkg/rcl"
)

// gatesOpen reports whether every gate on the policy is open at the given
// instant. A policy with no gates is always active. When a gate is closed
// the returned reason names it; the policy is then skipped for this action.
//
// Gate evaluation fails closed: an evaluation error counts as a closed
// gate, with the error in the reason.
func gatesOpen(p *policy.Compiled, ctx *rcl.Context, now time.Time) (bool, string) {
	for i := range p.Gates {
		g := &p.Gates[i]
		switch g.Type {
		case policy.GateTypeTime:
			if !timeGateOpen(g, now) {
				return false, fmt.Sprintf("time gate closed (schedule %q)", g.Schedule)
			}
		case policy.GateTypeCondition:
			open, err := g.Expr.Evaluate(ctx)
			if err != nil {
				return false, fmt.Sprintf("condition gate error, treating as closed: %v", err)
			}
			if !open {
				return false, fmt.Sprintf("condition gate closed: %s", g.Expr.Source())
			}
		}
	}
	return true, ""
}

// timeGateOpen reports whether a time gate's schedule has triggered within
// its open window. The check runs in the gate's configured timezone.
func timeGateOpen(g *policy.CompiledGate, now time.Time) bool {
	local := now.In(g.Location)
	// The gate is open iff the most recent trigger is no older than the
	// open window, i.e. a trigger exists in (local-window, local].
	next := g.Cron.Next(local.Add(-g.OpenWindow()))
	return !next.After(local)
}
