package core

import (
	"context"
	"fmt"
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
	// - ctx: The context from the panicked task
	// - schedulerName: The name of the scheduler the fiber belongs to
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, schedulerName string, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, schedulerName string, panicInfo any, stackTrace []byte) {
	fmt.Printf("[Scheduler %s] Panic: %v\nStack trace:\n%s", schedulerName, panicInfo, stackTrace)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting scheduler execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// All methods are optional; implementations should handle nil receivers gracefully.
// Methods should be non-blocking and fast to avoid impacting task execution performance.
type Metrics interface {
	// RecordTaskDuration records how long a task instance took to run between
	// its Start and End/Fail events.
	RecordTaskDuration(schedulerName string, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(schedulerName string, panicInfo any)

	// RecordQueueDepth records the current ready-queue depth.
	RecordQueueDepth(schedulerName string, depth int)

	// RecordTaskRejected records that a spawn was rejected. The scheduler
	// calls it only for a spawn made after Shutdown.
	RecordTaskRejected(schedulerName string, reason string)

	// RecordFiberPoolSize records how many fibers the pool currently owns,
	// split between live (in use) and idle (recycled, awaiting reuse).
	RecordFiberPoolSize(schedulerName string, live, idle int)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(schedulerName string, duration time.Duration) {}
func (m *NilMetrics) RecordTaskPanic(schedulerName string, panicInfo any)              {}
func (m *NilMetrics) RecordQueueDepth(schedulerName string, depth int)                 {}
func (m *NilMetrics) RecordTaskRejected(schedulerName string, reason string)           {}
func (m *NilMetrics) RecordFiberPoolSize(schedulerName string, live, idle int)         {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected spawns
// =============================================================================

// RejectedTaskHandler is called when a spawn is rejected by the scheduler.
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	// HandleRejectedTask is called when a spawn is rejected.
	HandleRejectedTask(schedulerName string, reason string)
}

// DefaultRejectedTaskHandler provides a basic handler that logs rejected spawns.
type DefaultRejectedTaskHandler struct{}

func (h *DefaultRejectedTaskHandler) HandleRejectedTask(schedulerName string, reason string) {
	fmt.Printf("[Scheduler %s] Task rejected: %s", schedulerName, reason)
}

// =============================================================================
// ExitReason / EventDriver: the scheduler's external collaborator contract
// =============================================================================

// ExitReason is the result of driving an EventDriver for one round.
type ExitReason int

const (
	// ExitExited means the event driver itself has shut down and no further
	// events will ever arrive; the scheduler should stop driving it.
	ExitExited ExitReason = iota
	// ExitOutOfWaiters means there is nothing left to wait for (no fibers
	// blocked on external events) and no ready work either.
	ExitOutOfWaiters
	// ExitTimeout means the requested timeout elapsed with no events.
	ExitTimeout
	// ExitIdle means at least one event was processed, but the driver has
	// nothing more to report right now.
	ExitIdle
)

func (r ExitReason) String() string {
	switch r {
	case ExitExited:
		return "exited"
	case ExitOutOfWaiters:
		return "out_of_waiters"
	case ExitTimeout:
		return "timeout"
	case ExitIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// EventDriver is the external collaborator TaskScheduler.Process and
// WaitAndProcess delegate to for anything that isn't pure fiber
// scheduling: timers, I/O readiness, or any other source of asynchronous
// wakeups. The scheduler owns no timer or I/O logic of its own — that is
// explicitly out of scope, per the spec's Non-goals — it only knows how
// to ask an EventDriver to make progress.
type EventDriver interface {
	// ProcessEvents waits up to timeout for an external event, dispatches
	// any that occurred, and reports why it returned. A negative timeout
	// means wait indefinitely.
	ProcessEvents(timeout time.Duration) ExitReason
}

// =============================================================================
// TaskSchedulerConfig: Configuration for TaskScheduler
// =============================================================================

// TaskSchedulerConfig holds configuration options for TaskScheduler.
// All handlers are optional; if not provided, default implementations will be used.
type TaskSchedulerConfig struct {
	// Name identifies this scheduler in logs and metrics.
	Name string

	// StackSize is advisory only: the teacher's Fiber type (a goroutine,
	// not a hand-managed stack) has no fixed stack size to configure, but
	// the field is kept so callers porting tuning knobs from the original
	// design have somewhere for the value to land. Nothing in this module
	// reads it.
	StackSize int

	// EventDriver is what Process and WaitAndProcess drive. If nil,
	// NewTaskScheduler installs NoWaitersEventDriver, which always reports
	// ExitOutOfWaiters.
	EventDriver EventDriver

	// Logger receives scheduler and fiber lifecycle logs. Defaults to
	// NoOpLogger.
	Logger Logger

	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record task execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a spawn is rejected. Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler
}

// DefaultTaskSchedulerConfig returns a config with default handlers and a
// no-op event driver.
func DefaultTaskSchedulerConfig() *TaskSchedulerConfig {
	return &TaskSchedulerConfig{
		Name:                "scheduler",
		EventDriver:         NoWaitersEventDriver{},
		Logger:              &NoOpLogger{},
		PanicHandler:        &DefaultPanicHandler{},
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &DefaultRejectedTaskHandler{},
	}
}

// NoWaitersEventDriver is the zero-value EventDriver: it never has
// anything to wait for. It exists so DefaultTaskSchedulerConfig never
// needs a nil check on the hot path.
type NoWaitersEventDriver struct{}

func (NoWaitersEventDriver) ProcessEvents(timeout time.Duration) ExitReason {
	return ExitOutOfWaiters
}
