// Package bootstrap runs the container startup sequence. It is split by step:
//
//   - readiness.go: Gate, a bounded GET poll against a dependent service.
//   - reconcile.go: Reconciler, pulls required models missing from the runtime.
//   - registration.go: RegistrationGate, replaces a placeholder server key.
//   - handoff*.go: Handoff, replaces the current process with the server command.
//   - sequence.go: Sequence, wires the steps together around the runtime process.
//   - events.go / errors.go / metrics.go: lifecycle events, typed errors, counters.
//
// Every step either completes or aborts the sequence. Registration failure is
// the only non-fatal outcome.
package bootstrap
