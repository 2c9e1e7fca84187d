// Package store provides the versioned, in-process policy store.
//
// The store keeps its policies in an immutable Snapshot behind an atomic
// pointer. Reads never lock: evaluators take the current snapshot once per
// evaluation and see a consistent whole-store view for its duration. Writes
// serialize on a mutex, build a complete new snapshot, and swap the pointer,
// so in-flight evaluations never observe a partially updated policy set.
//
// Policies are compiled (conditions parsed, schedules resolved) before they
// enter a snapshot, and every write checks the caller's authority against
// the policy's required level.
//
// The store can also be fed from a directory of YAML policy files via
// Loader, with hot reload through Watcher.
package store
