package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the schedulers and the step loop for
// logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be
// done asynchronously so as not to delay task execution.
type Observer interface {
	// OnTaskStart is called once when a task is accepted by StartTask,
	// before any step runs.
	OnTaskStart(ctx context.Context, desc TaskDescriptor, handle WorkflowHandle)

	// OnTaskCompleted is called when a task reaches StateCompleted.
	OnTaskCompleted(ctx context.Context, handle WorkflowHandle)

	// OnTaskFailed is called when a task transitions to StateFailed.
	OnTaskFailed(ctx context.Context, handle WorkflowHandle, err error)

	// OnStepStart is called before invoking the step function.
	// turn counts reasoning steps within one task execution, 0-based.
	OnStepStart(ctx context.Context, handle WorkflowHandle, turn int)

	// OnActionStart is called before executing an action, after it
	// passed the gate.
	OnActionStart(ctx context.Context, handle WorkflowHandle, action Action)

	// OnActionCompleted is called after an action attempt chain finished,
	// for both successes and failures (err != nil means the action
	// degraded to the fallback message).
	OnActionCompleted(ctx context.Context, handle WorkflowHandle, action Action, err error, duration time.Duration)

	// OnHumanInputRequested is called when the interrupt coordinator
	// emits a pause signal for the task.
	OnHumanInputRequested(ctx context.Context, handle WorkflowHandle, req HumanInputRequest)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnTaskStart(ctx context.Context, desc TaskDescriptor, handle WorkflowHandle) {}
func (NoopObserver) OnTaskCompleted(ctx context.Context, handle WorkflowHandle)                  {}
func (NoopObserver) OnTaskFailed(ctx context.Context, handle WorkflowHandle, err error)          {}
func (NoopObserver) OnStepStart(ctx context.Context, handle WorkflowHandle, turn int)            {}
func (NoopObserver) OnActionStart(ctx context.Context, handle WorkflowHandle, action Action)     {}
func (NoopObserver) OnActionCompleted(ctx context.Context, handle WorkflowHandle, action Action, err error, d time.Duration) {
}
func (NoopObserver) OnHumanInputRequested(ctx context.Context, handle WorkflowHandle, req HumanInputRequest) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnTaskStart(ctx context.Context, desc TaskDescriptor, handle WorkflowHandle) {
	for _, o := range c.observers {
		o.OnTaskStart(ctx, desc, handle)
	}
}

func (c *CompositeObserver) OnTaskCompleted(ctx context.Context, handle WorkflowHandle) {
	for _, o := range c.observers {
		o.OnTaskCompleted(ctx, handle)
	}
}

func (c *CompositeObserver) OnTaskFailed(ctx context.Context, handle WorkflowHandle, err error) {
	for _, o := range c.observers {
		o.OnTaskFailed(ctx, handle, err)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, handle WorkflowHandle, turn int) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, handle, turn)
	}
}

func (c *CompositeObserver) OnActionStart(ctx context.Context, handle WorkflowHandle, action Action) {
	for _, o := range c.observers {
		o.OnActionStart(ctx, handle, action)
	}
}

func (c *CompositeObserver) OnActionCompleted(ctx context.Context, handle WorkflowHandle, action Action, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnActionCompleted(ctx, handle, action, err, d)
	}
}

func (c *CompositeObserver) OnHumanInputRequested(ctx context.Context, handle WorkflowHandle, req HumanInputRequest) {
	for _, o := range c.observers {
		o.OnHumanInputRequested(ctx, handle, req)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs task / step / action
// lifecycle events using the provided slog.Logger. If logger is nil,
// slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnTaskStart(ctx context.Context, desc TaskDescriptor, handle WorkflowHandle) {
	o.Logger.InfoContext(ctx, "task_start",
		slog.String("task_id", desc.TaskID),
		slog.String("target", desc.Target),
		slog.String("workflow_id", handle.WorkflowID),
		slog.String("run_id", handle.RunID),
	)
}

func (o *LoggingObserver) OnTaskCompleted(ctx context.Context, handle WorkflowHandle) {
	o.Logger.InfoContext(ctx, "task_completed",
		slog.String("workflow_id", handle.WorkflowID),
	)
}

func (o *LoggingObserver) OnTaskFailed(ctx context.Context, handle WorkflowHandle, err error) {
	o.Logger.ErrorContext(ctx, "task_failed",
		slog.String("workflow_id", handle.WorkflowID),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, handle WorkflowHandle, turn int) {
	o.Logger.DebugContext(ctx, "step_start",
		slog.String("workflow_id", handle.WorkflowID),
		slog.Int("turn", turn),
	)
}

func (o *LoggingObserver) OnActionStart(ctx context.Context, handle WorkflowHandle, action Action) {
	o.Logger.DebugContext(ctx, "action_start",
		slog.String("workflow_id", handle.WorkflowID),
		slog.String("action", action.Name),
		slog.String("action_id", action.ID),
	)
}

func (o *LoggingObserver) OnActionCompleted(ctx context.Context, handle WorkflowHandle, action Action, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelWarn
	}
	o.Logger.Log(ctx, level, "action_completed",
		slog.String("workflow_id", handle.WorkflowID),
		slog.String("action", action.Name),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnHumanInputRequested(ctx context.Context, handle WorkflowHandle, req HumanInputRequest) {
	o.Logger.InfoContext(ctx, "human_input_requested",
		slog.String("workflow_id", handle.WorkflowID),
		slog.String("interaction_id", req.InteractionID),
	)
}

// BasicMetrics collects simple counters and aggregate action durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	tasksStarted    atomic.Int64
	tasksCompleted  atomic.Int64
	tasksFailed     atomic.Int64
	inputsRequested atomic.Int64

	actionsCompleted    atomic.Int64
	actionsDegraded     atomic.Int64
	totalActionDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	TasksStarted    int64
	TasksCompleted  int64
	TasksFailed     int64
	PendingTasks    int64
	InputsRequested int64

	ActionsCompleted  int64
	ActionsDegraded   int64
	AvgActionDuration time.Duration
}

func (m *BasicMetrics) OnTaskStart(ctx context.Context, desc TaskDescriptor, handle WorkflowHandle) {
	m.tasksStarted.Add(1)
}

func (m *BasicMetrics) OnTaskCompleted(ctx context.Context, handle WorkflowHandle) {
	m.tasksCompleted.Add(1)
}

func (m *BasicMetrics) OnTaskFailed(ctx context.Context, handle WorkflowHandle, err error) {
	m.tasksFailed.Add(1)
}

func (m *BasicMetrics) OnHumanInputRequested(ctx context.Context, handle WorkflowHandle, req HumanInputRequest) {
	m.inputsRequested.Add(1)
}

func (m *BasicMetrics) OnActionCompleted(ctx context.Context, handle WorkflowHandle, action Action, err error, d time.Duration) {
	if err != nil {
		m.actionsDegraded.Add(1)
		return
	}
	m.actionsCompleted.Add(1)
	m.totalActionDuration.Add(d.Nanoseconds())
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.tasksStarted.Load()
	completed := m.tasksCompleted.Load()
	failed := m.tasksFailed.Load()
	actions := m.actionsCompleted.Load()
	totalNs := m.totalActionDuration.Load()

	var avg time.Duration
	if actions > 0 {
		avg = time.Duration(totalNs / actions)
	}

	return BasicMetricsSnapshot{
		TasksStarted:      started,
		TasksCompleted:    completed,
		TasksFailed:       failed,
		PendingTasks:      started - completed - failed,
		InputsRequested:   m.inputsRequested.Load(),
		ActionsCompleted:  actions,
		ActionsDegraded:   m.actionsDegraded.Load(),
		AvgActionDuration: avg,
	}
}
