// Package agenda provides a lightweight, embeddable task runtime for
// agent-style programs in Go.
//
// Agenda is designed for backend services that run long, multi-step tasks
// on behalf of users: submit a task once, poll its progress from anywhere,
// pause for human input without burning resources, and survive tool
// failures without crashing the task. It runs fully in Go and works the
// same whether tasks execute on in-process workers or on an external
// durable workflow engine.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Scheduler
//  2. StepLoop
//  3. InterruptCoordinator
//  4. InstanceCache
//  5. CheckpointStore
//
// # Scheduler
//
// A Scheduler accepts TaskDescriptors and answers progress queries. The
// descriptor's TaskID is an idempotency key: submitting the same id twice
// under the reject-duplicate policy yields ErrDuplicateTask instead of a
// second concurrent execution, and polling an unknown task reports the
// UNKNOWN state rather than an error.
//
// Two interchangeable implementations exist:
//
//   - LocalScheduler runs registered TaskRunners on in-process worker
//     goroutines fed by an in-memory queue (development, tests)
//   - DurableScheduler forwards tasks to an external durable workflow
//     engine through a WorkflowClient (production)
//
// Callers pick a backend once at startup, via LoadConfig or directly.
//
// # StepLoop
//
// A StepLoop drives one turn of an agent task: call the step function,
// then either execute the action it proposes, suspend for human input,
// or finish. Action execution is resilient: every attempt runs under its
// own timeout, the first failure triggers a credential refresh and one
// retry, and a second failure replaces the action's result with a
// fallback message so the turn still completes. An optional approval
// gate may cancel or rewrite any action before it runs.
//
// StepLoop implements TaskRunner, so it plugs straight into
// LocalScheduler.Register.
//
// # InterruptCoordinator
//
// When a step needs a human decision, the InterruptCoordinator validates
// the request payload, persists a resumption checkpoint best-effort, and
// emits exactly one HumanInputRequest with a stable interaction id. The
// task then suspends; resubmitting it with the answer resumes from the
// checkpoint.
//
// # InstanceCache
//
// InstanceCache is a bounded LRU cache with reference counting: entries
// acquired as in use are never evicted, so the bound is soft while all
// entries are busy. It is meant for caching live per-task resources such
// as sessions or sandboxes.
//
// # CheckpointStore
//
// Checkpoints are keyed by session and exchange and can live in memory,
// SQLite, Redis, or MongoDB. Take reads a checkpoint exactly once,
// deleting it in the same operation, which keeps resumption idempotent.
//
// For usage, see the package examples.
package agenda
