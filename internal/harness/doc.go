// Package harness runs rule scenarios against the real engine.
//
// A scenario loads CUE rules into a fresh in-memory store, emits a list of
// trigger events and then checks what the actions did.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: welcome_email
//	description: "New contacts receive a welcome email"
//	tenant: T1
//	rules:
//	  - rules/welcome.cue
//	source: |
//	  rule: inline: {...}
//	events:
//	  - type: CONTACT_CREATED
//	    data: { contactId: C1, contactEmail: a@b.com }
//	    expect:
//	      matched: 1
//	      failed: 0
//	assertions:
//	  - type: sent
//	    channel: email
//	    to: a@b.com
//	  - type: contact_tags
//	    contact: C1
//	    tags: [lead]
//
// Rule paths are relative to the scenario file. Rules without a tenant are
// assigned the scenario tenant; rule IDs are derived from tenant and key so
// the trace names rules by key.
//
// # Assertion Types
//
//   - sent: a message was sent (channel, to, subject are subset-matched)
//   - sent_count: exactly Count messages were sent
//   - action_order: action types ran in the given relative order
//   - action_count: an action type ran exactly Count times
//   - task_exists: a task with Title (and Contact, if set) exists
//   - contact_tags: the contact carries exactly Tags
//
// # Deterministic Testing
//
// The store uses a step clock and sequential IDs, the engine sequential run
// IDs and the messenger sequential message IDs. Identical scenarios yield
// byte-identical traces, which RunWithGolden compares against
// testdata/golden.
package harness
