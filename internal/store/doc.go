// Package store provides SQLite-backed persistence for automation rules and
// the records that rule actions mutate (tasks, tags and contact tags).
//
// Rules are tenant scoped. A rule owns exactly one trigger row and an ordered
// set of action rows; both cascade when the rule is deleted. Editing a rule
// is a wholesale replace: the trigger and all actions are deleted and
// recreated inside one transaction. There is no partial patch.
//
// # Concurrency
//
//   - Tag creation is an atomic insert-if-absent-else-fetch keyed by
//     (tenant_id, name), so concurrent rules tagging the same new name
//     converge on one row.
//   - Attaching a tag is a set union: a second attach is a no-op.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce cascades
//
// The PostgreSQL backend in store/postgres implements the same Backend
// contract for multi-instance deployments.
package store
