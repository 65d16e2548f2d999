package agenda

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/agenda/internal/cache"
	"github.com/petrijr/agenda/internal/checkpoint"
	"github.com/petrijr/agenda/internal/interrupt"
	"github.com/petrijr/agenda/internal/loop"
	"github.com/petrijr/agenda/internal/scheduler"
	"github.com/petrijr/agenda/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Scheduler            = api.Scheduler
	WorkflowClient       = api.WorkflowClient
	StartWorkflowRequest = api.StartWorkflowRequest
	TaskDescriptor       = api.TaskDescriptor
	TaskProgress         = api.TaskProgress
	TaskState            = api.TaskState
	TaskRunner           = api.TaskRunner
	TaskRunnerFunc       = api.TaskRunnerFunc
	ProgressFunc         = api.ProgressFunc
	ReusePolicy          = api.ReusePolicy
	WorkflowHandle       = api.WorkflowHandle
	HumanInputRequest    = api.HumanInputRequest

	Action         = api.Action
	StepOutcome    = api.StepOutcome
	StepFunc       = api.StepFunc
	ActionExecutor = api.ActionExecutor
	RefreshFunc    = api.RefreshFunc
	GateDecision   = api.GateDecision
	GateFunc       = api.GateFunc
	Reducer        = api.Reducer

	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export task states and reuse policies for convenience.

const (
	StateUnknown   = api.StateUnknown
	StateRunning   = api.StateRunning
	StateBlocked   = api.StateBlocked
	StateCompleted = api.StateCompleted
	StateFailed    = api.StateFailed

	ReuseAllowDuplicate   = api.ReuseAllowDuplicate
	ReuseRejectDuplicate  = api.ReuseRejectDuplicate
	ReuseAllowIfCompleted = api.ReuseAllowIfCompleted

	DefaultProgressQuery = api.DefaultProgressQuery
)

// Re-export sentinel errors.

var (
	ErrDuplicateTask       = api.ErrDuplicateTask
	ErrUnknownTarget       = api.ErrUnknownTarget
	ErrCheckpointNotFound  = checkpoint.ErrNotFound
	ErrTurnBudgetExceeded  = loop.ErrTurnBudgetExceeded
	IsInputValidationError = interrupt.IsValidationError
)

// Scheduler constructors
// These wrap the internal/scheduler package so external callers
// never need to import internal packages.

// LocalScheduler runs tasks on in-process workers.
type LocalScheduler = scheduler.LocalScheduler

// DurableScheduler delegates execution to an external workflow engine.
type DurableScheduler = scheduler.DurableScheduler

// LocalSchedulerConfig configures NewLocalScheduler.
type LocalSchedulerConfig = scheduler.LocalConfig

// DurableSchedulerConfig configures NewDurableScheduler.
type DurableSchedulerConfig = scheduler.DurableConfig

// Dialer lazily opens a connection to a durable workflow engine.
type Dialer = scheduler.Dialer

// NewLocalScheduler returns a Scheduler backed by in-process workers and
// an in-memory queue. Register task runners, then call StartWorkers.
func NewLocalScheduler(cfg LocalSchedulerConfig) *LocalScheduler {
	return scheduler.NewLocal(cfg)
}

// NewDurableScheduler returns a Scheduler that forwards tasks to an
// external durable workflow engine reached through dial.
func NewDurableScheduler(cfg DurableSchedulerConfig) *DurableScheduler {
	return scheduler.NewDurable(cfg)
}

// Step loop

// StepLoop drives the reason, decide, gate, act cycle for one task turn.
type StepLoop = loop.Loop

// StepLoopConfig configures NewStepLoop.
type StepLoopConfig = loop.Config

// TurnResult is the outcome of one StepLoop turn.
type TurnResult = loop.TurnResult

// TurnStatus describes how a turn ended.
type TurnStatus = loop.TurnStatus

const (
	TurnDone          = loop.TurnDone
	TurnAwaitingInput = loop.TurnAwaitingInput

	// DefaultPerCallTimeout bounds each action execution attempt.
	DefaultPerCallTimeout = loop.DefaultPerCallTimeout
	// DefaultMaxTurns bounds the reasoning steps of a single turn.
	DefaultMaxTurns = loop.DefaultMaxTurns
	// DefaultFallbackMessage replaces the result of an action that
	// failed both attempts.
	DefaultFallbackMessage = loop.DefaultFallbackMessage
)

// NewStepLoop constructs a StepLoop. It implements TaskRunner, so it
// plugs straight into LocalScheduler.Register.
func NewStepLoop(cfg StepLoopConfig) *StepLoop {
	return loop.New(cfg)
}

// Interrupt coordination

// InterruptCoordinator validates and emits human-input requests.
type InterruptCoordinator = interrupt.Coordinator

// InterruptConfig configures NewInterruptCoordinator.
type InterruptConfig = interrupt.Config

// NewInterruptCoordinator constructs an InterruptCoordinator.
func NewInterruptCoordinator(cfg InterruptConfig) *InterruptCoordinator {
	return interrupt.NewCoordinator(cfg)
}

// Instance cache

// InstanceCache is a bounded LRU cache whose entries are protected from
// eviction while reference-counted as in use.
type InstanceCache[K comparable, V any] = cache.Cache[K, V]

// CacheStats is a point-in-time snapshot of an InstanceCache.
type CacheStats = cache.Stats

// NewInstanceCache returns an InstanceCache holding at most maxSize idle
// entries.
func NewInstanceCache[K comparable, V any](maxSize int) *InstanceCache[K, V] {
	return cache.New[K, V](maxSize)
}

// Checkpoint stores
// One constructor per backend, mirroring the scheduler split: in-memory
// for development, a database for production.

// CheckpointStore persists suspended-turn checkpoints keyed by session
// and exchange.
type CheckpointStore = checkpoint.Store

// NewInMemoryCheckpointStore returns a CheckpointStore backed by a map.
func NewInMemoryCheckpointStore() CheckpointStore {
	return checkpoint.NewInMemoryStore()
}

// NewSQLiteCheckpointStore returns a CheckpointStore that persists
// checkpoints in a SQLite database, creating its schema if needed.
func NewSQLiteCheckpointStore(db *sql.DB) (CheckpointStore, error) {
	return checkpoint.NewSQLiteStore(db)
}

// NewRedisCheckpointStore returns a CheckpointStore backed by Redis.
// ttl == 0 means checkpoints never expire.
func NewRedisCheckpointStore(client *redis.Client, keyPrefix string, ttl time.Duration) CheckpointStore {
	return checkpoint.NewRedisStore(client, keyPrefix, ttl)
}

// NewMongoCheckpointStore returns a CheckpointStore backed by MongoDB.
func NewMongoCheckpointStore(client *mongo.Client, dbName, collName string) CheckpointStore {
	return checkpoint.NewMongoStore(client, dbName, collName)
}

// PersistToStore adapts a CheckpointStore into the persist hook an
// InterruptCoordinator takes.
func PersistToStore(store CheckpointStore) interrupt.PersistFunc {
	return func(ctx context.Context, sessionID, exchangeID string, cp map[string]any) error {
		return store.Save(ctx, sessionID, exchangeID, cp)
	}
}

// Convenience helpers that just forward to the underlying Scheduler.

// StartTask submits a task through any Scheduler backend.
func StartTask(ctx context.Context, s Scheduler, desc TaskDescriptor) (WorkflowHandle, error) {
	return s.StartTask(ctx, desc)
}

// GetProgress polls a task's progress through any Scheduler backend.
func GetProgress(ctx context.Context, s Scheduler, workflowID, runID string) (TaskProgress, error) {
	return s.GetProgress(ctx, workflowID, runID, DefaultProgressQuery)
}

// EmitToObserver adapts an Observer into the emit hook an
// InterruptCoordinator takes, using handle for attribution.
func EmitToObserver(obs Observer, handle WorkflowHandle) interrupt.EmitFunc {
	return func(ctx context.Context, req HumanInputRequest) error {
		obs.OnHumanInputRequested(ctx, handle, req)
		return nil
	}
}
