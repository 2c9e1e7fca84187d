// Package engine implements the runtime control policy evaluation
// pipeline: the governance layer every autonomous algorithm action passes
// through before execution.
//
// For one action the engine resolves the applicable policies from the
// current store snapshot (scope, selector, rollout), then runs, in order,
// gates, guards, limits, and mutations:
//
//   - A closed gate skips the policy for this action.
//   - A failing hard guard blocks the action; soft guard failures warn.
//   - An exceeded rate limit or risk budget blocks the action.
//   - Mutations rewrite data fields on a working copy of the action.
//
// Policies evaluate in deterministic order (required authority descending,
// ID ascending) and every applicable policy is evaluated even after a
// block, so the decision carries the complete set of reasons:
// deny-overrides-allow, aggregate everything.
//
// The engine performs no I/O. Audit entries are returned to the caller,
// who owns persistence; only committed rate counter and risk budget state
// survives the call, and only when the final decision allows the action
// under an enforce-mode policy.
package engine
