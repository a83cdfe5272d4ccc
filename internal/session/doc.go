// Package session implements the durable session engine: a single-writer,
// durable log of repositories, sessions, and messages, exposed through
// three coexisting read views (snapshot, delta, live subscription) and a
// pluggable side-effect sink.
//
// # Design Principles
//
//   - The Durable Log (internal/store) is the only source of truth.
//   - Snapshot, Delta, and Live Hub are all derived, read-only projections.
//   - No side-effect is emitted unless the corresponding commit succeeded.
//   - Recovery (Open against an existing log) emits zero side-effects and
//     zero live notifications.
package session
