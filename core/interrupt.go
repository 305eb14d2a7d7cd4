package core

import "fmt"

// InterruptException is raised inside a fiber's own goroutine when it
// checks a pending interrupt flag at a suspension point (yield and any
// library code proxying through handleInterrupt). It is an ordinary Go
// value recovered from a panic, not a returned error, because the
// suspension points that must observe it (Yield, and anything a task
// calls that eventually yields) are deep inside arbitrary call stacks —
// the same reason the spec calls for an "exception", not a discriminant
// return value, whenever the host language supports one.
type InterruptException struct {
	// Task identifies the fiber instance the interrupt was delivered to,
	// for logging.
	Task Task
}

func (e *InterruptException) Error() string {
	return fmt.Sprintf("task %s interrupted", e.Task.DebugID())
}

// ErrContractViolation is wrapped with context and panicked whenever a
// caller breaks one of the scheduler's single-threaded-cooperative
// preconditions (cross-scheduler or self-interrupt, misaligned FLS
// registration). The spec treats these as fatal assertion-class failures;
// Go's closest analogue to a C++ assert() is a panic carrying a descriptive
// value. Two cases differ: SpawnWithArgs returns an ErrContractViolation as
// an error, without panicking, for an oversized argument payload, and
// FiberQueue's own membership checks panic with a plain string.
type ErrContractViolation struct {
	Reason string
}

func (e *ErrContractViolation) Error() string {
	return "fiber runtime contract violation: " + e.Reason
}

func violate(reason string) {
	panic(&ErrContractViolation{Reason: reason})
}

// TaskEvent identifies a point in a task instance's lifecycle, reported to
// an optional process-global debug hook. It exists purely for
// instrumentation — the scheduler's behavior never depends on whether a
// hook is installed.
type TaskEvent int

const (
	TaskEventPreStart TaskEvent = iota
	TaskEventPostStart
	TaskEventStart
	TaskEventYield
	TaskEventResume
	TaskEventEnd
	TaskEventFail
)

func (e TaskEvent) String() string {
	switch e {
	case TaskEventPreStart:
		return "preStart"
	case TaskEventPostStart:
		return "postStart"
	case TaskEventStart:
		return "start"
	case TaskEventYield:
		return "yield"
	case TaskEventResume:
		return "resume"
	case TaskEventEnd:
		return "end"
	case TaskEventFail:
		return "fail"
	default:
		return "unknown"
	}
}

// TaskEventHook is a process-global, must-not-throw callback invoked at
// each TaskEvent when installed via SetTaskEventHook. A nil hook (the
// default) disables instrumentation entirely; emitTaskEvent is a no-op in
// that case rather than calling through an interface with a nil check,
// matching the teacher's preference for cheap defaults (core/interfaces.go
// NilMetrics) over always-on dispatch.
type TaskEventHook func(event TaskEvent, task Task)

var taskEventHook TaskEventHook

// SetTaskEventHook installs (or clears, with nil) the process-global debug
// instrumentation hook.
func SetTaskEventHook(hook TaskEventHook) {
	taskEventHook = hook
}

func emitTaskEvent(event TaskEvent, task Task) {
	if taskEventHook != nil {
		taskEventHook(event, task)
	}
}
