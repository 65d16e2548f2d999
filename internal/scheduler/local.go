package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/agenda/internal/taskqueue"
	"github.com/petrijr/agenda/pkg/api"
)

// LocalConfig configures a LocalScheduler.
type LocalConfig struct {
	// QueueCapacity bounds the in-memory submission queue. Values <= 0
	// use the queue's default.
	QueueCapacity int

	// Observer receives task lifecycle events. Nil means NoopObserver.
	Observer api.Observer

	// Logger is used for worker-loop diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// LocalScheduler runs tasks on in-process worker goroutines fed by an
// in-memory queue. It exists for development, tests, and single-process
// deployments; DurableScheduler is the production counterpart with the
// same Scheduler contract.
type LocalScheduler struct {
	queue    taskqueue.Queue
	reg      *registry
	observer api.Observer
	logger   *slog.Logger

	mu       sync.Mutex
	runners  map[string]api.TaskRunner
	progress map[string]api.TaskProgress

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
}

var _ api.Scheduler = (*LocalScheduler)(nil)

// NewLocal constructs a LocalScheduler. Call Register to attach a
// TaskRunner per target, then StartWorkers before submitting tasks.
func NewLocal(cfg LocalConfig) *LocalScheduler {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalScheduler{
		queue:    taskqueue.NewInMemoryQueue(cfg.QueueCapacity),
		reg:      newRegistry(),
		observer: obs,
		logger:   logger.With(slog.String("component", "local-scheduler")),
		runners:  make(map[string]api.TaskRunner),
		progress: make(map[string]api.TaskProgress),
	}
}

// Register attaches the runner executed for descriptors naming target.
// Registering the same target twice replaces the previous runner.
func (s *LocalScheduler) Register(target string, r api.TaskRunner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runners[target] = r
}

// StartTask validates the descriptor against the registered targets and
// the reuse policy, assigns a handle, and enqueues the task for the
// worker pool. The returned handle is valid for progress queries
// immediately, before any worker picks the task up.
func (s *LocalScheduler) StartTask(ctx context.Context, desc api.TaskDescriptor) (api.WorkflowHandle, error) {
	if desc.TaskID == "" {
		desc.TaskID = uuid.NewString()
	}

	s.mu.Lock()
	if _, ok := s.runners[desc.Target]; !ok {
		s.mu.Unlock()
		return api.WorkflowHandle{}, fmt.Errorf("%w: %q", api.ErrUnknownTarget, desc.Target)
	}
	if err := s.checkReuseLocked(desc); err != nil {
		s.mu.Unlock()
		return api.WorkflowHandle{}, err
	}

	handle := api.WorkflowHandle{
		WorkflowID: "local-" + desc.TaskID,
		RunID:      uuid.NewString(),
	}
	prevTask, hadTask := s.reg.taskHandle(desc.TaskID)
	prevActor, hadActor := s.reg.actorHandle(desc.Actor)
	prevProg, hadProg := s.progress[handle.WorkflowID]
	s.progress[handle.WorkflowID] = api.TaskProgress{State: api.StateRunning, Message: "queued"}
	s.reg.record(desc, handle)
	s.mu.Unlock()

	if err := s.queue.Enqueue(ctx, taskqueue.Task{
		ID:         desc.TaskID,
		Handle:     handle,
		Desc:       desc,
		EnqueuedAt: time.Now(),
	}); err != nil {
		// Nothing ran; untrack the id so the caller can resubmit.
		s.mu.Lock()
		if hadProg {
			s.progress[handle.WorkflowID] = prevProg
		} else {
			delete(s.progress, handle.WorkflowID)
		}
		s.reg.rollback(desc, prevTask, hadTask, prevActor, hadActor)
		s.mu.Unlock()
		return api.WorkflowHandle{}, fmt.Errorf("enqueue task %q: %w", desc.TaskID, err)
	}

	s.observer.OnTaskStart(ctx, desc, handle)
	return handle, nil
}

// checkReuseLocked enforces the descriptor's reuse policy against the
// tracked handle for its task id. The empty policy defaults to
// reject-duplicate so accidental resubmissions never fork an execution.
func (s *LocalScheduler) checkReuseLocked(desc api.TaskDescriptor) error {
	prev, tracked := s.reg.taskHandle(desc.TaskID)
	if !tracked {
		return nil
	}

	switch desc.Reuse {
	case api.ReuseAllowDuplicate:
		return nil
	case api.ReuseAllowIfCompleted:
		if p, ok := s.progress[prev.WorkflowID]; ok && p.State.Terminal() {
			return nil
		}
		return fmt.Errorf("%w: %q still running", api.ErrDuplicateTask, desc.TaskID)
	default:
		return fmt.Errorf("%w: %q", api.ErrDuplicateTask, desc.TaskID)
	}
}

// GetProgress reads the worker-maintained progress snapshot. Unknown
// workflow ids report UnknownProgress with a nil error; only the default
// progress query is supported locally.
func (s *LocalScheduler) GetProgress(ctx context.Context, workflowID, runID, queryName string) (api.TaskProgress, error) {
	if queryName != "" && queryName != api.DefaultProgressQuery {
		return api.UnknownProgress(), fmt.Errorf("local backend does not support query %q", queryName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[workflowID]
	if !ok {
		return api.UnknownProgress(), nil
	}
	return p, nil
}

// GetProgressForTask resolves the handle recorded for taskID.
func (s *LocalScheduler) GetProgressForTask(ctx context.Context, taskID string) (api.TaskProgress, error) {
	h, ok := s.reg.taskHandle(taskID)
	if !ok {
		return api.UnknownProgress(), nil
	}
	return s.GetProgress(ctx, h.WorkflowID, h.RunID, api.DefaultProgressQuery)
}

// GetProgressForActor resolves the actor's most recent submission.
func (s *LocalScheduler) GetProgressForActor(ctx context.Context, actorID string) (api.TaskProgress, error) {
	h, ok := s.reg.actorHandle(actorID)
	if !ok {
		return api.UnknownProgress(), nil
	}
	return s.GetProgress(ctx, h.WorkflowID, h.RunID, api.DefaultProgressQuery)
}

// StartWorkers starts concurrency worker goroutines that drain the queue
// until Stop is called. Calling it again without Stop is an error.
func (s *LocalScheduler) StartWorkers(ctx context.Context, concurrency int) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.running {
		return errors.New("local scheduler workers already started")
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer s.wg.Done()
			s.workerLoop(ctx)
		}()
	}
	return nil
}

// Stop cancels the worker goroutines and waits for them to exit. Tasks
// still queued stay queued; a later StartWorkers resumes draining.
func (s *LocalScheduler) Stop() {
	s.lifecycle.Lock()
	if !s.running {
		s.lifecycle.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.lifecycle.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *LocalScheduler) workerLoop(ctx context.Context) {
	for {
		t, err := s.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			s.logger.ErrorContext(ctx, "dequeue failed", slog.Any("error", err))
			continue
		}
		s.runOne(ctx, *t)
	}
}

// runOne executes a single dequeued task. A task error never kills the
// worker loop; it is recorded as FAILED progress and logged.
func (s *LocalScheduler) runOne(ctx context.Context, t taskqueue.Task) {
	s.mu.Lock()
	runner, ok := s.runners[t.Desc.Target]
	s.mu.Unlock()
	if !ok {
		// The target was registered at submission time; losing it means
		// a Register race we surface as a task failure.
		err := fmt.Errorf("%w: %q", api.ErrUnknownTarget, t.Desc.Target)
		s.setProgress(t.Handle, api.TaskProgress{State: api.StateFailed, Message: err.Error()})
		s.observer.OnTaskFailed(ctx, t.Handle, err)
		return
	}

	report := func(p api.TaskProgress) {
		s.setProgress(t.Handle, p)
	}

	if err := runner.RunTask(ctx, t.Desc, t.Handle, report); err != nil {
		s.setProgress(t.Handle, api.TaskProgress{State: api.StateFailed, Message: err.Error()})
		s.observer.OnTaskFailed(ctx, t.Handle, err)
		s.logger.ErrorContext(ctx, "task failed",
			slog.String("task_id", t.Desc.TaskID),
			slog.String("workflow_id", t.Handle.WorkflowID),
			slog.Any("error", err))
		return
	}

	// Runners that never report (or stopped mid-run) still need a
	// consistent terminal snapshot, unless the run suspended as BLOCKED.
	s.mu.Lock()
	p := s.progress[t.Handle.WorkflowID]
	if p.State != api.StateBlocked && !p.State.Terminal() {
		p = api.TaskProgress{State: api.StateCompleted, Percent: 100, Message: "done"}
		s.progress[t.Handle.WorkflowID] = p
	}
	s.mu.Unlock()

	// A suspended task has not completed; the resumed run reports the
	// completion when it finishes.
	switch p.State {
	case api.StateBlocked:
	case api.StateFailed:
		s.observer.OnTaskFailed(ctx, t.Handle, errors.New(p.Message))
	default:
		s.observer.OnTaskCompleted(ctx, t.Handle)
	}
}

func (s *LocalScheduler) setProgress(h api.WorkflowHandle, p api.TaskProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[h.WorkflowID] = p
}
