package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/petrijr/agenda/pkg/api"
)

// Dialer opens a connection to an external durable workflow engine. It
// is called lazily on first use so constructing a DurableScheduler never
// blocks on the network.
type Dialer func(ctx context.Context) (api.WorkflowClient, error)

// DurableConfig configures a DurableScheduler.
type DurableConfig struct {
	// Dial opens the workflow client. Required.
	Dial Dialer

	// Observer receives task lifecycle events. Nil means NoopObserver.
	Observer api.Observer

	// Logger is used for connection diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// DurableScheduler delegates execution to an external durable workflow
// engine through a WorkflowClient. The engine owns retries, durability
// and at-least-once execution; this scheduler only translates
// descriptors into start requests and progress polls into queries.
type DurableScheduler struct {
	dial     Dialer
	reg      *registry
	observer api.Observer
	logger   *slog.Logger

	mu     sync.Mutex
	client api.WorkflowClient
}

var _ api.Scheduler = (*DurableScheduler)(nil)

// NewDurable constructs a DurableScheduler. It panics if cfg.Dial is
// nil, since nothing could ever be submitted.
func NewDurable(cfg DurableConfig) *DurableScheduler {
	if cfg.Dial == nil {
		panic("scheduler: DurableConfig.Dial is required")
	}
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DurableScheduler{
		dial:     cfg.Dial,
		reg:      newRegistry(),
		observer: obs,
		logger:   logger.With(slog.String("component", "durable-scheduler")),
	}
}

// connect returns the cached client, dialing on first use. A failed dial
// is not cached; the next call retries.
func (s *DurableScheduler) connect(ctx context.Context) (api.WorkflowClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	c, err := s.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial workflow engine: %w", err)
	}
	s.client = c
	s.logger.InfoContext(ctx, "connected to workflow engine")
	return c, nil
}

// StartTask forwards the descriptor to the workflow engine. The reuse
// policy travels inside the start request; the engine is the authority
// on duplicate detection, so a duplicate surfaces as the engine's error.
func (s *DurableScheduler) StartTask(ctx context.Context, desc api.TaskDescriptor) (api.WorkflowHandle, error) {
	if desc.Target == "" {
		return api.WorkflowHandle{}, errors.New("task descriptor has no target workflow type")
	}
	client, err := s.connect(ctx)
	if err != nil {
		return api.WorkflowHandle{}, err
	}

	handle, err := client.StartWorkflow(ctx, api.StartWorkflowRequest{
		WorkflowType: desc.Target,
		WorkflowID:   desc.TaskID,
		Queue:        desc.Queue,
		Input:        desc.Payload,
		Memo:         desc.Memo,
		Reuse:        desc.Reuse,
	})
	if err != nil {
		return api.WorkflowHandle{}, fmt.Errorf("start workflow %q: %w", desc.Target, err)
	}

	s.reg.record(desc, handle)
	s.observer.OnTaskStart(ctx, desc, handle)
	return handle, nil
}

// GetProgress runs the named query against the workflow execution.
// Client errors surface to the caller; the engine decides what an
// unknown workflow id means.
func (s *DurableScheduler) GetProgress(ctx context.Context, workflowID, runID, queryName string) (api.TaskProgress, error) {
	if queryName == "" {
		queryName = api.DefaultProgressQuery
	}
	client, err := s.connect(ctx)
	if err != nil {
		return api.UnknownProgress(), err
	}
	p, err := client.QueryWorkflow(ctx, workflowID, runID, queryName)
	if err != nil {
		return api.UnknownProgress(), fmt.Errorf("query workflow %q: %w", workflowID, err)
	}
	return p, nil
}

// GetProgressForTask resolves the handle recorded for taskID. Task ids
// this scheduler never submitted report UnknownProgress, nil error,
// without touching the engine.
func (s *DurableScheduler) GetProgressForTask(ctx context.Context, taskID string) (api.TaskProgress, error) {
	h, ok := s.reg.taskHandle(taskID)
	if !ok {
		return api.UnknownProgress(), nil
	}
	return s.GetProgress(ctx, h.WorkflowID, h.RunID, api.DefaultProgressQuery)
}

// GetProgressForActor resolves the actor's most recent submission.
func (s *DurableScheduler) GetProgressForActor(ctx context.Context, actorID string) (api.TaskProgress, error) {
	h, ok := s.reg.actorHandle(actorID)
	if !ok {
		return api.UnknownProgress(), nil
	}
	return s.GetProgress(ctx, h.WorkflowID, h.RunID, api.DefaultProgressQuery)
}
