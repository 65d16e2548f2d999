package api

import "context"

// Action is a tool invocation requested by the step function. Name selects
// the tool; an empty Name marks the request as malformed, which the loop
// treats as non-retriable.
type Action struct {
	ID   string
	Name string
	Args map[string]any
}

// StepOutcome is the tagged result of one reasoning step. At most one of
// Action and InputRequest is set:
//
//   - Action != nil: the loop should gate and execute the action, fold its
//     result back into state, and reason again.
//   - InputRequest != nil: the task needs human input; the loop hands the
//     request to the interrupt coordinator and suspends the turn.
//   - both nil: the turn is done, State is the final state.
//
// Suspension is an ordinary return value here, not an error: callers can
// inspect it, log it, and test it like any other state.
type StepOutcome struct {
	State any

	Action *Action

	// InputRequest is the raw human-interaction payload, validated by
	// the interrupt coordinator (stage, title, question, choices, …).
	InputRequest map[string]any

	// Checkpoint is the resumable snapshot persisted alongside an
	// InputRequest. Its content is owned by the step function; the core
	// never interprets it.
	Checkpoint map[string]any
}

// StepFunc produces the next reasoning step for a task. It receives the
// current state and returns the outcome driving the loop's decide phase.
type StepFunc func(ctx context.Context, state any) (StepOutcome, error)

// ActionExecutor runs one requested action. The loop enforces a hard
// per-call timeout around every invocation; executors should honor ctx.
type ActionExecutor func(ctx context.Context, action Action) (any, error)

// RefreshFunc refreshes credentials or connections after an action
// failure, before the single retry.
type RefreshFunc func(ctx context.Context) error

// GateDecision is the verdict of an approval gate.
type GateDecision struct {
	// Proceed is false when the human (or policy) cancelled the action.
	Proceed bool

	// Action is the action to execute, possibly modified by the caller.
	Action Action
}

// GateFunc decides whether an action may execute. Gates that need human
// approval typically delegate to the interrupt coordinator and block
// until an answer arrives or a policy decides.
type GateFunc func(ctx context.Context, action Action) (GateDecision, error)

// Reducer folds an action result back into the task state. On action
// failure the loop calls it with execErr set and result holding the
// user-facing fallback message; the reducer decides how that appears in
// the conversation.
type Reducer func(state any, action Action, result any, execErr error) any
