// Ganymede is a runtime control policy engine for autonomous traffic
// algorithms.
//
// It intercepts every action an autopilot algorithm proposes and decides
// whether the action may execute, providing:
//   - Declarative guardrail policies (gates, guards, limits, mutations)
//   - Monitor and enforce rollout modes with staged percentages
//   - Rate and risk budget accounting with two-phase reservation
//   - A complete, queryable audit trail of every decision
//
// Usage:
//
//	# Start the server with default configuration
//	ganymede run
//
//	# Start with a custom configuration file
//	ganymede run --config /path/to/config.yaml
//
//	# Validate policy files without starting the server
//	ganymede validate --dir policies/
//
//	# Dry-run an action against the current policies
//	ganymede preview --dir policies/ --action action.json
//
//	# Show version information
//	ganymede version
package main

func main() {
	Execute()
}
