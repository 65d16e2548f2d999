// Package loop implements the resilient step-execution loop that drives
// one task turn: reason, decide, gate, act.
//
// The loop owns no domain logic. Reasoning is a caller-supplied StepFunc,
// actions run through a caller-supplied ActionExecutor under a hard
// per-call timeout, and failures degrade to a user-facing fallback
// message instead of crashing the task.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/agenda/pkg/api"
)

const (
	// DefaultPerCallTimeout is the hard ceiling on a single action
	// attempt. The retry gets a fresh ceiling, so one action can hold
	// the loop for at most twice this value.
	DefaultPerCallTimeout = 30 * time.Second

	// DefaultMaxTurns bounds reason/act iterations within one turn.
	DefaultMaxTurns = 32

	// DefaultFallbackMessage is injected into the conversation when an
	// action fails both attempts.
	DefaultFallbackMessage = "I couldn't complete that action right now, so I'm answering without its result."
)

// ErrTurnBudgetExceeded is returned when a turn runs more reasoning
// steps than Config.MaxTurns allows.
var ErrTurnBudgetExceeded = errors.New("turn exceeded its reasoning step budget")

// Interrupter receives human-input requests surfaced by the loop.
// *interrupt.Coordinator satisfies it.
type Interrupter interface {
	Handle(ctx context.Context, sessionID, exchangeID string, payload, checkpoint map[string]any) error
}

// TurnStatus describes how a turn ended.
type TurnStatus string

const (
	// TurnDone means the turn ran to completion; the result may still
	// be degraded by an action fallback.
	TurnDone TurnStatus = "done"

	// TurnAwaitingInput means the turn suspended for human input; the
	// task resumes via a new submission carrying the answer.
	TurnAwaitingInput TurnStatus = "awaiting-input"
)

// TurnResult is the outcome of one RunTurn call.
type TurnResult struct {
	Status TurnStatus
	State  any

	// Degraded is true when an action failed and the fallback message
	// was injected in place of its result.
	Degraded bool
}

// Config describes how to construct a Loop.
type Config struct {
	// Step produces the next reasoning step. Required.
	Step api.StepFunc

	// Execute runs requested actions. Required.
	Execute api.ActionExecutor

	// Gate decides whether an action may run. Nil allows everything.
	Gate api.GateFunc

	// Refresh renews credentials/connections between the first failed
	// attempt and the retry. Nil skips straight to the retry.
	Refresh api.RefreshFunc

	// Reduce folds action results back into state. Nil uses a reducer
	// that appends results to an "observations" list on map states.
	Reduce api.Reducer

	// Interrupter handles needs-input outcomes. Nil makes a needs-input
	// outcome a turn error, since nothing could deliver the question.
	Interrupter Interrupter

	// Observer receives step/action lifecycle events.
	Observer api.Observer

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// PerCallTimeout is the hard per-attempt ceiling on Execute.
	// Zero means DefaultPerCallTimeout.
	PerCallTimeout time.Duration

	// MaxTurns bounds reasoning steps per turn. Zero means
	// DefaultMaxTurns; negative means unbounded.
	MaxTurns int

	// FallbackMessage overrides DefaultFallbackMessage.
	FallbackMessage string
}

// Loop runs task turns. It is safe for concurrent use: all per-turn
// state lives on the stack of RunTurn.
type Loop struct {
	cfg      Config
	observer api.Observer
	logger   *slog.Logger
}

// New creates a Loop from cfg. It panics when Step or Execute is nil.
func New(cfg Config) *Loop {
	if cfg.Step == nil {
		panic("loop: Config.Step must not be nil")
	}
	if cfg.Execute == nil {
		panic("loop: Config.Execute must not be nil")
	}
	if cfg.PerCallTimeout == 0 {
		cfg.PerCallTimeout = DefaultPerCallTimeout
	}
	if cfg.MaxTurns == 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.FallbackMessage == "" {
		cfg.FallbackMessage = DefaultFallbackMessage
	}
	if cfg.Reduce == nil {
		cfg.Reduce = defaultReduce
	}
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		cfg:      cfg,
		observer: obs,
		logger:   logger.With(slog.String("component", "steploop")),
	}
}

// RunTurn drives one turn for the task identified by handle, starting
// from state. sessionID keys any checkpoint the turn persists; report,
// if non-nil, receives a progress snapshot per reasoning step.
func (l *Loop) RunTurn(ctx context.Context, handle api.WorkflowHandle, sessionID string, state any, report api.ProgressFunc) (TurnResult, error) {
	for turn := 0; l.cfg.MaxTurns < 0 || turn < l.cfg.MaxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return TurnResult{State: state}, err
		}

		l.observer.OnStepStart(ctx, handle, turn)
		if report != nil {
			report(api.TaskProgress{
				State:   api.StateRunning,
				Percent: stepPercent(turn, l.cfg.MaxTurns),
				Message: fmt.Sprintf("reasoning step %d", turn),
			})
		}

		outcome, err := l.cfg.Step(ctx, state)
		if err != nil {
			return TurnResult{State: state}, fmt.Errorf("step function: %w", err)
		}
		if outcome.State != nil {
			state = outcome.State
		}

		if outcome.InputRequest != nil {
			return l.suspend(ctx, handle, sessionID, state, outcome)
		}

		if outcome.Action == nil {
			return TurnResult{Status: TurnDone, State: state}, nil
		}

		action := *outcome.Action
		if l.cfg.Gate != nil {
			decision, gerr := l.cfg.Gate(ctx, action)
			if gerr != nil {
				return TurnResult{State: state}, fmt.Errorf("gate %q: %w", action.Name, gerr)
			}
			if !decision.Proceed {
				state = l.cfg.Reduce(state, action, "action cancelled by approval gate", nil)
				continue
			}
			action = decision.Action
		}

		result, degraded := l.act(ctx, handle, action)
		if degraded {
			// A tool failure degrades the answer; it never crashes the
			// task. Inject the fallback and end the turn normally.
			state = l.cfg.Reduce(state, action, l.cfg.FallbackMessage, result.err)
			return TurnResult{Status: TurnDone, State: state, Degraded: true}, nil
		}
		state = l.cfg.Reduce(state, action, result.value, nil)
	}

	return TurnResult{State: state}, ErrTurnBudgetExceeded
}

type actResult struct {
	value any
	err   error
}

// act executes one action with the refresh-and-retry-once policy. The
// returned bool is true when both attempts failed (or the request was
// malformed) and the caller must fall back.
func (l *Loop) act(ctx context.Context, handle api.WorkflowHandle, action api.Action) (actResult, bool) {
	start := time.Now()

	// A malformed request skips the refresh/retry entirely.
	if action.Name == "" {
		err := errors.New("malformed action: empty name")
		l.observer.OnActionCompleted(ctx, handle, action, err, time.Since(start))
		return actResult{err: err}, true
	}

	l.observer.OnActionStart(ctx, handle, action)

	value, err := l.attempt(ctx, action)
	if err == nil {
		l.observer.OnActionCompleted(ctx, handle, action, nil, time.Since(start))
		return actResult{value: value}, false
	}

	l.logger.WarnContext(ctx, "action_attempt_failed",
		slog.String("action", action.Name),
		slog.Any("error", err),
	)

	if l.cfg.Refresh != nil {
		if rerr := l.cfg.Refresh(ctx); rerr != nil {
			// The retry may still succeed on the old credentials.
			l.logger.WarnContext(ctx, "refresh_failed", slog.Any("error", rerr))
		}
	}

	value, retryErr := l.attempt(ctx, action)
	if retryErr == nil {
		l.observer.OnActionCompleted(ctx, handle, action, nil, time.Since(start))
		return actResult{value: value}, false
	}

	l.observer.OnActionCompleted(ctx, handle, action, retryErr, time.Since(start))
	return actResult{err: retryErr}, true
}

// attempt runs Execute once under the per-call ceiling.
func (l *Loop) attempt(ctx context.Context, action api.Action) (any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, l.cfg.PerCallTimeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := l.cfg.Execute(attemptCtx, action)
		done <- outcome{value: v, err: err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-attemptCtx.Done():
		// The executor goroutine is abandoned; it holds a cancelled
		// context and its eventual result goes to the buffered channel.
		return nil, attemptCtx.Err()
	}
}

// suspend hands a needs-input outcome to the interrupt coordinator.
func (l *Loop) suspend(ctx context.Context, handle api.WorkflowHandle, sessionID string, state any, outcome api.StepOutcome) (TurnResult, error) {
	if l.cfg.Interrupter == nil {
		return TurnResult{State: state}, errors.New("step requested human input but no interrupter is configured")
	}

	exchangeID := exchangeID(outcome.Checkpoint)
	if err := l.cfg.Interrupter.Handle(ctx, sessionID, exchangeID, outcome.InputRequest, outcome.Checkpoint); err != nil {
		return TurnResult{State: state}, fmt.Errorf("interrupt: %w", err)
	}
	return TurnResult{Status: TurnAwaitingInput, State: state}, nil
}

// exchangeID prefers a checkpoint-embedded exchange id so a re-run of
// the same pause keys the same checkpoint slot; otherwise a fresh id.
func exchangeID(checkpoint map[string]any) string {
	if checkpoint != nil {
		if id, ok := checkpoint["exchange_id"].(string); ok && id != "" {
			return id
		}
	}
	return uuid.NewString()
}

// stepPercent maps a turn index onto a coarse progress percentage. A
// turn's true length is unknowable up front, so this only promises
// monotonic growth capped below completion.
func stepPercent(turn, maxTurns int) float64 {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	pct := 100 * float64(turn) / float64(maxTurns)
	if pct > 95 {
		pct = 95
	}
	return pct
}

// defaultReduce appends action results to an "observations" list when
// the state is a string-keyed map, and leaves other states untouched.
func defaultReduce(state any, action api.Action, result any, execErr error) any {
	m, ok := state.(map[string]any)
	if !ok {
		return state
	}
	obs, _ := m["observations"].([]any)
	m["observations"] = append(obs, map[string]any{
		"action": action.Name,
		"result": result,
	})
	return m
}
