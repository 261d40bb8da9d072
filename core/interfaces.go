package core

import (
	"context"
	"runtime"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics during execution.
// This allows custom panic handling, logging, and recovery strategies.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context of the panicked run (carries worker and window info)
	// - poolName: "regular" or the name of the window pool
	// - workerID: The ID of the worker that executed the task
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, poolName string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs the panic through Logger. The scheduler fills in
// its own logger when Logger is nil.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs panic information at error level.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, poolName string, workerID int, panicInfo any, stackTrace []byte) {
	if h.Logger == nil {
		return
	}
	h.Logger.Error("task panicked",
		F("pool", poolName), F("worker", workerID), F("panic", panicInfo), F("stack", string(stackTrace)))
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting task execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution performance.
type Metrics interface {
	// RecordTaskDuration records how long one run of a task took.
	RecordTaskDuration(poolName string, priority Priority, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(poolName string, panicInfo any)

	// RecordQueueDepth records the queued list length after a flush.
	RecordQueueDepth(poolName string, depth int)

	// RecordTaskRejected records that a submission was refused.
	RecordTaskRejected(poolName string, reason string)

	// RecordTaskCompleted records the final removal of a task.
	RecordTaskCompleted(poolName string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(poolName string, priority Priority, duration time.Duration) {
}
func (m *NilMetrics) RecordTaskPanic(poolName string, panicInfo any)    {}
func (m *NilMetrics) RecordQueueDepth(poolName string, depth int)       {}
func (m *NilMetrics) RecordTaskRejected(poolName string, reason string) {}
func (m *NilMetrics) RecordTaskCompleted(poolName string)               {}

// =============================================================================
// ExecutionObserver: per-run hook
// =============================================================================

// ExecutionObserver receives a record after every task run, on the worker
// that ran it. Implementations must not block.
type ExecutionObserver interface {
	ObserveExecution(record TaskExecutionRecord)
}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when a submission is refused. This happens
// for duplicate ids, submissions after shutdown, and context-bound tasks
// whose window has no workers. The caller keeps ownership of the task.
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	HandleRejectedTask(poolName string, id TaskID, reason string)
}

// DefaultRejectedTaskHandler logs rejected tasks at warning level.
type DefaultRejectedTaskHandler struct {
	Logger Logger
}

// HandleRejectedTask logs the rejected task.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(poolName string, id TaskID, reason string) {
	if h.Logger == nil {
		return
	}
	h.Logger.Warn("task rejected", F("pool", poolName), F("task_id", id), F("reason", reason))
}

// =============================================================================
// Options: Configuration for Scheduler
// =============================================================================

// Options holds configuration for a Scheduler.
// All handlers are optional; if not provided, default implementations will be used.
type Options struct {
	// Regular sizes the generic worker pool.
	Regular PoolSizing

	// Context sizes the worker pool created for each window.
	Context PoolSizing

	// HardwareThreads overrides runtime.NumCPU when resolving AutoThreads.
	HardwareThreads int

	// PollInterval bounds how long an idle worker sleeps before re-checking
	// its incoming list without being woken.
	PollInterval time.Duration

	// HistoryCapacity is the number of executions kept for RecentExecutions.
	HistoryCapacity int

	// InstanceID tags logs of this scheduler. Generated when empty.
	InstanceID string

	Logger              Logger
	PanicHandler        PanicHandler
	Metrics             Metrics
	RejectedTaskHandler RejectedTaskHandler
	ExecutionObserver   ExecutionObserver
}

// DefaultOptions returns a config with default handlers: one regular worker
// per CPU and one context worker per window.
func DefaultOptions() Options {
	return Options{
		Regular:         PoolSizing{Min: 1, Max: AutoThreads},
		Context:         PoolSizing{Min: 1, Max: 1},
		HardwareThreads: runtime.NumCPU(),
		PollInterval:    50 * time.Millisecond,
		HistoryCapacity: defaultTaskHistoryCapacity,
	}
}
