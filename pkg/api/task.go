package api

// TaskState represents the lifecycle state of a submitted task as seen
// through progress polling.
type TaskState string

const (
	// StateUnknown means the task is not tracked (never submitted, or not
	// yet visible). Polling an unknown task is a normal outcome, not an error.
	StateUnknown TaskState = "UNKNOWN"

	StateRunning   TaskState = "RUNNING"
	StateBlocked   TaskState = "BLOCKED"
	StateCompleted TaskState = "COMPLETED"
	StateFailed    TaskState = "FAILED"
)

// Terminal reports whether s is a final state.
func (s TaskState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// ReusePolicy controls what happens when a task is submitted with a TaskID
// that has already been used.
type ReusePolicy string

const (
	// ReuseAllowDuplicate starts a new execution regardless of any
	// previous submission with the same TaskID.
	ReuseAllowDuplicate ReusePolicy = "allow-duplicate"

	// ReuseRejectDuplicate rejects the submission if a handle for the
	// same TaskID is already tracked.
	ReuseRejectDuplicate ReusePolicy = "reject-duplicate"

	// ReuseAllowIfCompleted starts a new execution only if the previous
	// one for the same TaskID has reached a terminal state.
	ReuseAllowIfCompleted ReusePolicy = "allow-if-completed"
)

// TaskDescriptor describes one unit of work to submit. It is treated as
// immutable once submitted: schedulers receive it by value and never
// modify it.
//
// TaskID is caller-assigned and acts as the idempotency key at the
// scheduler level (see ReusePolicy). Target names the registered program
// (local backend) or workflow type (durable backend) to run.
type TaskDescriptor struct {
	TaskID string
	Actor  string
	Target string
	Queue  string

	// Payload is the opaque input handed to the task program.
	Payload map[string]any

	// Memo is opaque metadata attached to the execution but not
	// interpreted by it.
	Memo map[string]any

	Reuse ReusePolicy
}

// WorkflowHandle is the durable reference returned by a backend on task
// start. WorkflowID plus (optionally) RunID is everything needed to query
// progress later. An empty RunID means "latest run".
type WorkflowHandle struct {
	WorkflowID string
	RunID      string
}

// TaskProgress is a transient snapshot of a task's progress. It is
// recomputed on every poll; the executing backend is the source of truth.
type TaskProgress struct {
	State   TaskState
	Percent float64
	Message string
}

// UnknownProgress is the progress reported for tasks that are not tracked.
func UnknownProgress() TaskProgress {
	return TaskProgress{State: StateUnknown, Percent: 0}
}

// HumanInputRequest is the signal emitted when a task pauses for external
// input. InteractionID is stable for the pause it describes, so the caller
// can echo it back together with the human's answer on resume.
type HumanInputRequest struct {
	InteractionID string
	Prompt        string

	// InputSchema describes the expected answer (choices, free text, …).
	// Empty fields are stripped before emission.
	InputSchema map[string]any

	// Extras carries the session id, exchange id, checkpoint id and the
	// raw validated payload, for audit and resumption.
	Extras map[string]any
}
