package loop

import (
	"context"

	"github.com/petrijr/agenda/pkg/api"
)

var _ api.TaskRunner = (*Loop)(nil)

// RunTask adapts the loop to the TaskRunner contract used by the local
// backend. The descriptor's TaskID doubles as the session id keying any
// checkpoint the turn persists, so a resubmission of the same logical
// task (carrying the human's answer) finds its checkpoint again.
func (l *Loop) RunTask(ctx context.Context, desc api.TaskDescriptor, handle api.WorkflowHandle, report api.ProgressFunc) error {
	state := initialState(desc)

	result, err := l.RunTurn(ctx, handle, desc.TaskID, state, report)
	if err != nil {
		if report != nil {
			report(api.TaskProgress{State: api.StateFailed, Message: err.Error()})
		}
		return err
	}

	if report != nil {
		switch result.Status {
		case TurnAwaitingInput:
			report(api.TaskProgress{
				State:   api.StateBlocked,
				Percent: 50,
				Message: "awaiting human input",
			})
		default:
			msg := "done"
			if result.Degraded {
				msg = "done (degraded: an action result was replaced by a fallback)"
			}
			report(api.TaskProgress{State: api.StateCompleted, Percent: 100, Message: msg})
		}
	}
	return nil
}

// initialState seeds the turn state from the descriptor payload. The
// payload is copied so the descriptor stays immutable even though the
// reducer mutates the state map.
func initialState(desc api.TaskDescriptor) map[string]any {
	state := make(map[string]any, len(desc.Payload)+1)
	for k, v := range desc.Payload {
		state[k] = v
	}
	return state
}
