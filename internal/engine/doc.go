// Package engine matches trigger events against tenant rules and runs the
// matched rules' actions.
//
// Processing one event:
//  1. Emit validates the event and computes its fingerprint.
//  2. The matcher loads the tenant's active rules for the trigger type and
//     keeps those whose conditions equal the event data.
//  3. Each matched rule runs independently with its own ExecutionContext.
//  4. Actions inside a rule run strictly in ascending order. Every dispatch
//     is bounded by a timeout and a failure boundary, so one failing action
//     never stops the next.
//
// Emit never returns an error and never panics out: every outcome is
// captured in the returned Summary and logged. Rule states exist only as
// control flow and are not persisted.
package engine
