// Package rcl implements the Runtime Condition Language, the restricted
// expression language used by policy guards, gates, and mutation triggers.
//
// RCL is deliberately small. An expression consists of dotted identifier
// lookups into the evaluation context ("metrics.cvr_1h"), numeric, string,
// and boolean literals, arithmetic (+, -, *, /), comparisons
// (>=, <=, >, <, ==, !=), and the boolean combinators and, or, not.
// There are no function calls, no loops, and no assignment: conditions are
// authored by non-engineers and must never execute arbitrary logic or have
// side effects.
//
// Expressions are compiled once with Compile and evaluated many times with
// Evaluate. Compilation produces an immutable AST; evaluation is pure and
// safe for concurrent use.
//
// # Missing identifiers
//
// An identifier that is not present in the context resolves to an undefined
// sentinel. Any comparison against undefined is false, so a guard written
// against a metric that is absent fails closed rather than raising. A bare
// identifier used in boolean position is a presence test: it is true when
// the identifier is defined (and, for booleans, true).
//
// # Example
//
//	expr, err := rcl.Compile("metrics.cvr_1h >= 0.02 and segment.device == \"mobile\"")
//	if err != nil {
//	    return err
//	}
//
//	ctx := rcl.NewContext()
//	ctx.Set("metrics", map[string]any{"cvr_1h": 0.031})
//	ctx.Set("segment", map[string]any{"device": "mobile"})
//
//	ok, err := expr.Evaluate(ctx)
package rcl
