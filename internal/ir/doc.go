// Package ir defines the domain types of the automation engine: rules,
// triggers, actions, trigger events and the execution context.
//
// All other internal packages import ir; ir imports nothing internal.
//
// Key constraints:
//   - Payload values use the sealed Value model. There is no float kind.
//   - Action configs are a tagged union (ActionConfig). Generic maps are
//     only used at the storage and wire edges.
//   - Canonical JSON (RFC 8785) is used for golden traces and content keys.
package ir
