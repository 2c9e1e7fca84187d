// Package limits implements the limit tracker: fixed-window rate counters
// and daily risk budgets charged per policy and scope key.
//
// The Tracker is the engine's single entry point. For each applicable
// policy it checks every limit sub-rule and tentatively reserves quota;
// the engine commits the reservations only when the action's final
// decision is allowed and the policy's effective mode is enforce, and
// cancels them otherwise. Monitor-mode and preview evaluations check
// without reserving, so they never consume quota.
//
// Counter state lives in memory, fine-grained locked per key (see the
// ratelimit and riskbudget subpackages), and can be persisted across
// restarts through the storage subpackage.
package limits
