// Package core provides the foundational domain types shared by the decision
// runtime. It defines:
//
//   - DecisionInput and its validation (ParseInput)
//   - Status, the decision lifecycle outcome
//   - DecisionContext, the per-decision result-capturing wrapper
//   - Summary, the immutable snapshot returned to callers and carried by events
//   - Event and the lifecycle topic names published on the bus
//   - Presence and Router, the optional pipeline capabilities with their
//     explicit absent variants
//
// Implementation concerns (bus delivery, persistence, dispatch) live in their
// own packages and depend on core, never the other way around.
package core
