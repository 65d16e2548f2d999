package api

import (
	"context"
	"errors"
)

var (
	// ErrDuplicateTask is returned by StartTask when the descriptor's
	// TaskID is already tracked and its reuse policy forbids resubmission.
	ErrDuplicateTask = errors.New("task id already submitted")

	// ErrUnknownTarget is returned by the local backend when no program
	// is registered for the descriptor's Target.
	ErrUnknownTarget = errors.New("unknown task target")
)

// DefaultProgressQuery is the query name used by GetProgress when the
// caller passes an empty queryName.
const DefaultProgressQuery = "get_progress"

// Scheduler submits tasks to an execution backend and answers progress
// queries about them. Implementations are safe for concurrent use.
//
// Two interchangeable implementations exist: a local one that runs tasks
// on in-process workers (development), and a durable one that delegates
// to an external workflow engine (production). The contract is identical
// either way; callers select a backend once at startup.
type Scheduler interface {
	// StartTask submits the described task and returns a handle for
	// later progress queries. TaskID is an idempotency key: submitting
	// the same id twice under ReuseRejectDuplicate yields
	// ErrDuplicateTask, never a second concurrent execution.
	StartTask(ctx context.Context, desc TaskDescriptor) (WorkflowHandle, error)

	// GetProgress queries the backend for the task's current progress.
	// queryName selects the backend query; empty means
	// DefaultProgressQuery. An unknown workflow id yields
	// UnknownProgress() and a nil error.
	GetProgress(ctx context.Context, workflowID, runID, queryName string) (TaskProgress, error)

	// GetProgressForTask resolves the handle recorded for taskID and
	// delegates to GetProgress. Unknown task ids yield UnknownProgress().
	GetProgressForTask(ctx context.Context, taskID string) (TaskProgress, error)

	// GetProgressForActor resolves the handle of the actor's most recent
	// submission and delegates to GetProgress. Unknown actors yield
	// UnknownProgress().
	GetProgressForActor(ctx context.Context, actorID string) (TaskProgress, error)
}

// StartWorkflowRequest is the start call forwarded to an external durable
// workflow engine. The engine owns durability and at-least-once execution;
// the scheduler only translates descriptors into this shape.
type StartWorkflowRequest struct {
	WorkflowType string
	WorkflowID   string
	Queue        string
	Input        map[string]any
	Memo         map[string]any
	Reuse        ReusePolicy
}

// WorkflowClient is the boundary to an external durable-execution system.
type WorkflowClient interface {
	// StartWorkflow starts (or, depending on Reuse, joins) a workflow
	// execution and returns its handle.
	StartWorkflow(ctx context.Context, req StartWorkflowRequest) (WorkflowHandle, error)

	// QueryWorkflow runs a synchronous named query against a workflow
	// execution.
	QueryWorkflow(ctx context.Context, workflowID, runID, queryName string) (TaskProgress, error)
}

// ProgressFunc receives progress snapshots from a running task. The local
// backend feeds these into its in-memory progress map; a durable workflow
// would serve them from its query handler.
type ProgressFunc func(TaskProgress)

// TaskRunner executes one task to the end of its current turn. The step
// loop is the canonical implementation; the local backend invokes a
// registered runner per descriptor Target on a background worker, passing
// the handle it assigned at submission.
type TaskRunner interface {
	RunTask(ctx context.Context, desc TaskDescriptor, handle WorkflowHandle, report ProgressFunc) error
}

// TaskRunnerFunc adapts a plain function to the TaskRunner interface.
type TaskRunnerFunc func(ctx context.Context, desc TaskDescriptor, handle WorkflowHandle, report ProgressFunc) error

func (f TaskRunnerFunc) RunTask(ctx context.Context, desc TaskDescriptor, handle WorkflowHandle, report ProgressFunc) error {
	return f(ctx, desc, handle, report)
}
