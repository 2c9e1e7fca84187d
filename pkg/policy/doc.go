// Package policy defines the runtime control policy model: the governance
// rules that decide whether an autonomous action may proceed, must be
// blocked, or must be rewritten before execution.
//
// A Policy combines four primitive rule kinds:
//
//   - Gates control whether the policy is currently active (time schedules
//     or context conditions).
//   - Guards are conditions the action must satisfy; hard guards block,
//     soft guards only warn.
//   - Limits cap how often and how riskily matching actions may execute
//     (rate windows, per-action risk, daily risk budgets).
//   - Mutations rewrite action data fields (clamp, set, multiply,
//     delta caps) before the action executes.
//
// Policies are plain data with YAML and JSON tags so the same model serves
// file-based authoring and the management API. Before a policy enters the
// store it is compiled: conditions are parsed into RCL ASTs and time gate
// schedules into cron schedules, exactly once, so evaluation never re-parses.
package policy
