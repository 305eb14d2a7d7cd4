package fiber

import (
	"context"

	"github.com/Swind/go-fiber-runtime/core"
)

// Re-exports so callers outside this module only need to import the root
// package for everyday use; core stays the home of every type definition.
type (
	// Task is a cheap, copyable handle to one fiber task instance.
	Task = core.Task
	// TaskScheduler owns a ready queue and drives fibers to completion.
	TaskScheduler = core.TaskScheduler
	// TaskSchedulerConfig configures a TaskScheduler.
	TaskSchedulerConfig = core.TaskSchedulerConfig
	// TaskLocal is a fiber-local variable of type T.
	TaskLocal[T any] = core.TaskLocal[T]
	// Logger is the structured-logging interface scheduler and fiber
	// lifecycle events are reported through.
	Logger = core.Logger
	// Field is a structured-logging key-value pair.
	Field = core.Field
	// Metrics collects scheduler execution metrics.
	Metrics = core.Metrics
	// PanicHandler is invoked when a task panics.
	PanicHandler = core.PanicHandler
	// ExitReason is the result of driving an EventDriver for one round.
	ExitReason = core.ExitReason
	// EventDriver is the external collaborator Process/WaitAndProcess drive.
	EventDriver = core.EventDriver
	// InterruptException is raised at a suspension point when a task's
	// cancellation has been requested.
	InterruptException = core.InterruptException
	// ErrContractViolation signals a broken single-threaded-cooperative
	// precondition.
	ErrContractViolation = core.ErrContractViolation
	// TaskEvent identifies a point in a task instance's lifecycle.
	TaskEvent = core.TaskEvent
	// TaskEventHook is a process-global debug instrumentation callback.
	TaskEventHook = core.TaskEventHook
	// SchedulerStats is a point-in-time snapshot of scheduler state.
	SchedulerStats = core.SchedulerStats
)

const (
	ExitExited       = core.ExitExited
	ExitOutOfWaiters = core.ExitOutOfWaiters
	ExitTimeout      = core.ExitTimeout
	ExitIdle         = core.ExitIdle
)

// NewScheduler creates a TaskScheduler from config, filling in defaults for
// any unset field (see core.DefaultTaskSchedulerConfig).
func NewScheduler(config *TaskSchedulerConfig) *TaskScheduler {
	return core.NewTaskScheduler(config)
}

// Spawn queues fn to run on its own fiber under scheduler.
func Spawn(scheduler *TaskScheduler, fn func(ctx context.Context)) (Task, error) {
	return core.Spawn(scheduler, fn)
}

// SpawnWithArgs is Spawn for a task body that takes an explicit argument
// value, validated against core.MaxInlineArgsSize.
func SpawnWithArgs[Args any](scheduler *TaskScheduler, fn func(ctx context.Context, args Args), args Args) (Task, error) {
	return core.SpawnWithArgs(scheduler, fn, args)
}

// NewTaskLocal creates a fiber-local variable. initial, if non-nil, is
// called to produce the value each fiber constructs on first access.
func NewTaskLocal[T any](initial func() T) *TaskLocal[T] {
	return core.NewTaskLocal(initial)
}

// Current returns the Task handle for the instance executing on the
// calling goroutine, if any.
func Current() Task {
	return core.CurrentTask()
}

// F creates a structured-logging Field.
func F(key string, value any) Field {
	return core.F(key, value)
}

// TaskFromContext returns the Task handle carried by ctx, if ctx was
// produced by this runtime.
func TaskFromContext(ctx context.Context) (Task, bool) {
	return core.TaskFromContext(ctx)
}

// SetTaskEventHook installs (or clears, with nil) the process-global debug
// instrumentation hook.
func SetTaskEventHook(hook TaskEventHook) {
	core.SetTaskEventHook(hook)
}
