// Package api contains the core building blocks of the agenda scheduling
// core. It defines the contracts shared by both execution backends and by
// the step loop that drives individual tasks.
//
// Most users interact with the higher-level agenda package, which re-exports
// selected types and helpers from this package. The api package is intended
// for advanced use cases, custom integrations, or contributors extending the
// core itself.
//
// # Concepts
//
// The api package centers around a small set of concepts:
//
//   - Task descriptors and workflow handles
//   - The Scheduler contract
//   - Step-loop contracts
//   - Observability
//
// # Tasks and Handles
//
// A TaskDescriptor describes one unit of work: a caller-assigned TaskID
// (the idempotency key), the Target program to run, an opaque Payload, and
// a ReusePolicy governing resubmission. Descriptors are immutable once
// submitted.
//
// Starting a task yields a WorkflowHandle, the only durable reference
// needed to poll progress later. Progress itself (TaskProgress) is
// transient and recomputed on every poll.
//
// # The Scheduler Contract
//
// Scheduler unifies task submission and progress polling across two
// interchangeable backends: an in-process one for development and a
// durable one that delegates to an external workflow engine. The
// WorkflowClient interface is the boundary to that external system.
//
// # Step-Loop Contracts
//
// A task turn is driven by a StepFunc that returns a StepOutcome: either a
// requested Action, a human-input request, or done. Suspension for human
// input is an explicit, inspectable return value rather than a thrown
// signal. ActionExecutor, RefreshFunc, GateFunc and Reducer are the
// caller-supplied collaborators the loop composes around each action.
//
// # Observability
//
// The Observer interface reports task, step and action lifecycle events.
// Ready-made implementations cover structured logging (log/slog), basic
// in-memory metrics, and fan-out composition.
//
// See the agenda package documentation for end-to-end usage.
package api
