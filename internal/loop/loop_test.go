package loop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/agenda/pkg/api"
)

var testHandle = api.WorkflowHandle{WorkflowID: "local-task-1", RunID: "run-1"}

// scriptedStep returns outcomes in order, then "done" forever.
func scriptedStep(outcomes ...api.StepOutcome) api.StepFunc {
	i := 0
	return func(ctx context.Context, state any) (api.StepOutcome, error) {
		if i >= len(outcomes) {
			return api.StepOutcome{State: state}, nil
		}
		out := outcomes[i]
		i++
		return out, nil
	}
}

func askAction(name string) api.StepOutcome {
	return api.StepOutcome{Action: &api.Action{ID: "a-" + name, Name: name}}
}

func TestRunTurn_NoActionIsDone(t *testing.T) {
	l := New(Config{
		Step:    scriptedStep(),
		Execute: func(ctx context.Context, a api.Action) (any, error) { return nil, nil },
	})

	res, err := l.RunTurn(context.Background(), testHandle, "sess", map[string]any{}, nil)
	require.NoError(t, err)
	assert.Equal(t, TurnDone, res.Status)
	assert.False(t, res.Degraded)
}

func TestRunTurn_ExecutesActionsSequentially(t *testing.T) {
	var order []string
	l := New(Config{
		Step: scriptedStep(askAction("search"), askAction("summarize")),
		Execute: func(ctx context.Context, a api.Action) (any, error) {
			order = append(order, a.Name)
			return a.Name + "-result", nil
		},
	})

	res, err := l.RunTurn(context.Background(), testHandle, "sess", map[string]any{}, nil)
	require.NoError(t, err)
	assert.Equal(t, TurnDone, res.Status)
	assert.Equal(t, []string{"search", "summarize"}, order)

	state := res.State.(map[string]any)
	obs := state["observations"].([]any)
	require.Len(t, obs, 2)
	assert.Equal(t, "search-result", obs[0].(map[string]any)["result"])
}

func TestRunTurn_RetryOnceAfterRefresh(t *testing.T) {
	var attempts, refreshes atomic.Int64
	l := New(Config{
		Step: scriptedStep(askAction("flaky")),
		Execute: func(ctx context.Context, a api.Action) (any, error) {
			if attempts.Add(1) == 1 {
				return nil, errors.New("credential expired")
			}
			return "ok", nil
		},
		Refresh: func(ctx context.Context) error {
			refreshes.Add(1)
			return nil
		},
	})

	res, err := l.RunTurn(context.Background(), testHandle, "sess", map[string]any{}, nil)
	require.NoError(t, err)
	assert.Equal(t, TurnDone, res.Status)
	assert.False(t, res.Degraded)
	assert.Equal(t, int64(2), attempts.Load())
	assert.Equal(t, int64(1), refreshes.Load(), "refresh runs exactly once per failed action")

	state := res.State.(map[string]any)
	obs := state["observations"].([]any)
	require.Len(t, obs, 1)
	assert.Equal(t, "ok", obs[0].(map[string]any)["result"])
}

func TestRunTurn_DoubleFailureFallsBack(t *testing.T) {
	var attempts atomic.Int64
	l := New(Config{
		Step: scriptedStep(askAction("broken"), askAction("never-reached")),
		Execute: func(ctx context.Context, a api.Action) (any, error) {
			attempts.Add(1)
			return nil, errors.New("connection closed")
		},
		Refresh:         func(ctx context.Context) error { return nil },
		FallbackMessage: "tool unavailable",
	})

	res, err := l.RunTurn(context.Background(), testHandle, "sess", map[string]any{}, nil)
	require.NoError(t, err, "a tool failure must not escape the loop")
	assert.Equal(t, TurnDone, res.Status)
	assert.True(t, res.Degraded)
	assert.Equal(t, int64(2), attempts.Load(), "exactly one retry")

	state := res.State.(map[string]any)
	obs := state["observations"].([]any)
	require.Len(t, obs, 1, "the turn ends after the fallback; later actions never run")
	assert.Equal(t, "tool unavailable", obs[0].(map[string]any)["result"])
}

func TestRunTurn_RefreshFailureStillRetries(t *testing.T) {
	var attempts atomic.Int64
	l := New(Config{
		Step: scriptedStep(askAction("flaky")),
		Execute: func(ctx context.Context, a api.Action) (any, error) {
			if attempts.Add(1) == 1 {
				return nil, errors.New("timeout")
			}
			return "ok", nil
		},
		Refresh: func(ctx context.Context) error { return errors.New("refresh broken") },
	})

	res, err := l.RunTurn(context.Background(), testHandle, "sess", map[string]any{}, nil)
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, int64(2), attempts.Load())
}

func TestRunTurn_MalformedActionSkipsRetry(t *testing.T) {
	var attempts, refreshes atomic.Int64
	l := New(Config{
		Step: scriptedStep(api.StepOutcome{Action: &api.Action{ID: "a-1"}}), // no name
		Execute: func(ctx context.Context, a api.Action) (any, error) {
			attempts.Add(1)
			return "never", nil
		},
		Refresh: func(ctx context.Context) error {
			refreshes.Add(1)
			return nil
		},
	})

	res, err := l.RunTurn(context.Background(), testHandle, "sess", map[string]any{}, nil)
	require.NoError(t, err)
	assert.Equal(t, TurnDone, res.Status)
	assert.True(t, res.Degraded)
	assert.Zero(t, attempts.Load(), "malformed actions are never executed")
	assert.Zero(t, refreshes.Load(), "malformed actions skip the refresh")
}

func TestRunTurn_TimeoutBoundsEachAttempt(t *testing.T) {
	var attempts atomic.Int64
	l := New(Config{
		Step: scriptedStep(askAction("slow")),
		Execute: func(ctx context.Context, a api.Action) (any, error) {
			attempts.Add(1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return "too late", nil
			}
		},
		PerCallTimeout: 30 * time.Millisecond,
	})

	start := time.Now()
	res, err := l.RunTurn(context.Background(), testHandle, "sess", map[string]any{}, nil)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, int64(2), attempts.Load())
	// Attempt plus retry: bounded by roughly twice the ceiling, far
	// below the executor's nominal 5s.
	assert.Less(t, elapsed, 2*time.Second)
}

func TestRunTurn_GateCancelContinuesReasoning(t *testing.T) {
	var executed []string
	l := New(Config{
		Step: scriptedStep(askAction("delete-everything"), askAction("harmless")),
		Execute: func(ctx context.Context, a api.Action) (any, error) {
			executed = append(executed, a.Name)
			return "ok", nil
		},
		Gate: func(ctx context.Context, a api.Action) (api.GateDecision, error) {
			if a.Name == "delete-everything" {
				return api.GateDecision{Proceed: false}, nil
			}
			return api.GateDecision{Proceed: true, Action: a}, nil
		},
	})

	res, err := l.RunTurn(context.Background(), testHandle, "sess", map[string]any{}, nil)
	require.NoError(t, err)
	assert.Equal(t, TurnDone, res.Status)
	assert.Equal(t, []string{"harmless"}, executed)

	state := res.State.(map[string]any)
	obs := state["observations"].([]any)
	require.Len(t, obs, 2)
	assert.Equal(t, "action cancelled by approval gate", obs[0].(map[string]any)["result"])
}

func TestRunTurn_GateMayModifyAction(t *testing.T) {
	var got api.Action
	l := New(Config{
		Step: scriptedStep(askAction("send-mail")),
		Execute: func(ctx context.Context, a api.Action) (any, error) {
			got = a
			return "ok", nil
		},
		Gate: func(ctx context.Context, a api.Action) (api.GateDecision, error) {
			a.Args = map[string]any{"dry_run": true}
			return api.GateDecision{Proceed: true, Action: a}, nil
		},
	})

	_, err := l.RunTurn(context.Background(), testHandle, "sess", map[string]any{}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"dry_run": true}, got.Args)
}

type recordingInterrupter struct {
	sessionID  string
	exchangeID string
	payload    map[string]any
	checkpoint map[string]any
	calls      int
	err        error
}

func (r *recordingInterrupter) Handle(ctx context.Context, sessionID, exchangeID string, payload, checkpoint map[string]any) error {
	r.calls++
	r.sessionID, r.exchangeID = sessionID, exchangeID
	r.payload, r.checkpoint = payload, checkpoint
	return r.err
}

func TestRunTurn_NeedsInputSuspends(t *testing.T) {
	intr := &recordingInterrupter{}
	checkpoint := map[string]any{"exchange_id": "ex-7", "checkpoint_id": "cp-7"}
	l := New(Config{
		Step: scriptedStep(api.StepOutcome{
			InputRequest: map[string]any{"question": "Proceed?"},
			Checkpoint:   checkpoint,
		}),
		Execute:     func(ctx context.Context, a api.Action) (any, error) { return nil, nil },
		Interrupter: intr,
	})

	res, err := l.RunTurn(context.Background(), testHandle, "sess-1", map[string]any{}, nil)
	require.NoError(t, err)
	assert.Equal(t, TurnAwaitingInput, res.Status)
	assert.Equal(t, 1, intr.calls)
	assert.Equal(t, "sess-1", intr.sessionID)
	assert.Equal(t, "ex-7", intr.exchangeID, "checkpoint-embedded exchange id is reused")
	assert.Equal(t, checkpoint, intr.checkpoint)
}

func TestRunTurn_NeedsInputWithoutInterrupterFails(t *testing.T) {
	l := New(Config{
		Step: scriptedStep(api.StepOutcome{
			InputRequest: map[string]any{"question": "Proceed?"},
		}),
		Execute: func(ctx context.Context, a api.Action) (any, error) { return nil, nil },
	})

	_, err := l.RunTurn(context.Background(), testHandle, "sess", map[string]any{}, nil)
	require.Error(t, err)
}

func TestRunTurn_StepErrorPropagates(t *testing.T) {
	boom := errors.New("model unreachable")
	l := New(Config{
		Step: func(ctx context.Context, state any) (api.StepOutcome, error) {
			return api.StepOutcome{}, boom
		},
		Execute: func(ctx context.Context, a api.Action) (any, error) { return nil, nil },
	})

	_, err := l.RunTurn(context.Background(), testHandle, "sess", map[string]any{}, nil)
	require.ErrorIs(t, err, boom)
}

func TestRunTurn_TurnBudget(t *testing.T) {
	l := New(Config{
		Step: func(ctx context.Context, state any) (api.StepOutcome, error) {
			return askAction("again"), nil
		},
		Execute:  func(ctx context.Context, a api.Action) (any, error) { return "ok", nil },
		MaxTurns: 3,
	})

	_, err := l.RunTurn(context.Background(), testHandle, "sess", map[string]any{}, nil)
	require.ErrorIs(t, err, ErrTurnBudgetExceeded)
}

func TestRunTask_ReportsProgress(t *testing.T) {
	var reports []api.TaskProgress
	l := New(Config{
		Step:    scriptedStep(askAction("search")),
		Execute: func(ctx context.Context, a api.Action) (any, error) { return "ok", nil },
	})

	desc := api.TaskDescriptor{TaskID: "task-1", Target: "research", Payload: map[string]any{"q": "go"}}
	err := l.RunTask(context.Background(), desc, testHandle, func(p api.TaskProgress) {
		reports = append(reports, p)
	})
	require.NoError(t, err)
	require.NotEmpty(t, reports)

	final := reports[len(reports)-1]
	assert.Equal(t, api.StateCompleted, final.State)
	assert.Equal(t, float64(100), final.Percent)

	assert.Equal(t, api.StateRunning, reports[0].State)
}

func TestRunTask_BlockedOnHumanInput(t *testing.T) {
	var reports []api.TaskProgress
	l := New(Config{
		Step: scriptedStep(api.StepOutcome{
			InputRequest: map[string]any{"question": "Proceed?"},
		}),
		Execute:     func(ctx context.Context, a api.Action) (any, error) { return nil, nil },
		Interrupter: &recordingInterrupter{},
	})

	desc := api.TaskDescriptor{TaskID: "task-1", Target: "research"}
	err := l.RunTask(context.Background(), desc, testHandle, func(p api.TaskProgress) {
		reports = append(reports, p)
	})
	require.NoError(t, err)

	final := reports[len(reports)-1]
	assert.Equal(t, api.StateBlocked, final.State)
}

func TestRunTask_DescriptorPayloadNotMutated(t *testing.T) {
	payload := map[string]any{"q": "go"}
	l := New(Config{
		Step:    scriptedStep(askAction("search")),
		Execute: func(ctx context.Context, a api.Action) (any, error) { return "ok", nil },
	})

	desc := api.TaskDescriptor{TaskID: "task-1", Payload: payload}
	require.NoError(t, l.RunTask(context.Background(), desc, testHandle, nil))

	assert.Equal(t, map[string]any{"q": "go"}, payload, "descriptor payload must stay immutable")
}
