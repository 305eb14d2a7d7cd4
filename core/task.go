package core

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"time"
	"unsafe"
)

// Task is a cheap, copyable, comparable handle to one instance of a
// fiber's execution. Two handles compare equal only if they name the
// same fiber at the same generation; once that generation ends, every
// operation on a stale handle is a silent no-op rather than a dangling
// dereference — the same safety property the spec gets from a GC-free
// fiber_ptr+generation pair.
type Task struct {
	fiber      *Fiber
	generation uint64
}

// Running reports whether this handle still names the fiber's current,
// still-executing instance.
func (t Task) Running() bool {
	return t.fiber != nil && t.fiber.generation.Load() == t.generation && t.fiber.running.Load()
}

// Join blocks the caller until this task instance ends. A stale handle
// (one whose generation has already passed) returns immediately.
func (t Task) Join() {
	if t.fiber == nil {
		return
	}
	t.fiber.join(t.generation)
}

// Interrupt requests cooperative cancellation of this task instance. It
// has no effect on a stale handle. See Fiber.handleInterrupt for where
// the request is actually observed and raised.
func (t Task) Interrupt() {
	if t.fiber == nil {
		return
	}
	t.fiber.interrupt_(t.generation)
}

// DebugID returns a short, human-scannable identifier for log lines —
// never meant to be unique, just distinguishable enough in a single test
// run or trace to tell task instances apart at a glance.
func (t Task) DebugID() string {
	if t.fiber == nil {
		return "nil-"
	}
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(uintptr(unsafe.Pointer(t.fiber))))
	binary.LittleEndian.PutUint64(buf[8:16], t.generation)

	h := fnv.New64a()
	h.Write(buf[:])
	sum := h.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum[:3])
}

func (t Task) String() string {
	return t.DebugID()
}

// =============================================================================
// TaskFuncInfo: the next invocation queued for a fiber
// =============================================================================

// MaxInlineArgsSize bounds the argument payload SpawnWithArgs accepts.
// The spec's TaskFuncInfo reserves a fixed inline buffer for a captured
// callable's arguments so spawning never needs a heap allocation for
// typical small argument sets; SpawnWithArgs enforces the same ceiling at
// runtime via unsafe.Sizeof, since Go generics cannot express a
// compile-time bound on a type parameter's size the way a C++ template
// static_assert can.
const MaxInlineArgsSize = 128

// TaskFuncInfo is the function-pointer-plus-captured-state descriptor a
// fiber takes off its task_func slot and runs. A Go closure value is
// already exactly the "code pointer + environment pointer" shape the
// spec describes as fitting in two words, so fn itself needs no further
// packing; Args payloads are validated against MaxInlineArgsSize instead
// of manually copied into a byte buffer, since Go's compiler already
// keeps a small captured struct off the heap when escape analysis allows
// it.
type TaskFuncInfo struct {
	fn func(context.Context)
}

func newTaskFuncInfo(fn func(context.Context)) *TaskFuncInfo {
	return &TaskFuncInfo{fn: fn}
}

func (info *TaskFuncInfo) invoke(ctx context.Context) {
	info.fn(ctx)
}

// =============================================================================
// fiberContext: the context.Context handed to task bodies
// =============================================================================

type taskContextKeyType struct{}

var taskContextKey taskContextKeyType

// fiberContext is a minimal, allocation-free context.Context for task
// bodies. The fiber runtime has no deadline or cancellation concept of
// its own — cancellation is InterruptException, delivered by panic at a
// suspension point, not context.Done() — so this exists only to give
// task bodies the familiar func(ctx context.Context) shape used
// throughout the surrounding stack, and to make the running Task handle
// reachable via TaskFromContext.
type fiberContext struct {
	fiber *Fiber
}

func (c fiberContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (c fiberContext) Done() <-chan struct{}       { return nil }
func (c fiberContext) Err() error                  { return nil }
func (c fiberContext) Value(key any) any {
	if key == taskContextKey {
		return c.fiber.task()
	}
	return nil
}

// TaskFromContext returns the Task handle for the instance currently
// executing, if ctx was produced by this runtime.
func TaskFromContext(ctx context.Context) (Task, bool) {
	t, ok := ctx.Value(taskContextKey).(Task)
	return t, ok
}

func (info *TaskFuncInfo) String() string {
	return fmt.Sprintf("TaskFuncInfo(%p)", info.fn)
}
