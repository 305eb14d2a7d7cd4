package core

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Fiber is a reusable execution context — one long-lived goroutine running
// a sequence of task invocations, paired with a capacity-0 "baton"
// channel rendezvous that stands in for an explicit stack-switch
// primitive. At most one side of the rendezvous is ever runnable at a
// time: the scheduler's driving goroutine blocks on suspendCh while the
// fiber's goroutine executes task code, and the fiber's goroutine blocks
// on resumeCh the instant it has nothing left to do until resumed again.
// Because the fiber's goroutine never exits between task instances —
// it loops forever, as spec.md §3 requires — a park/resume pair is all
// that is needed to emulate a stack switch: the Go runtime keeps the
// goroutine's real stack (and therefore its exact position inside nested
// calls like Yield) intact across the parked interval.
type Fiber struct {
	scheduler *TaskScheduler

	generation atomic.Uint64
	running    atomic.Bool
	interrupt  atomic.Bool

	onExit *ManualEvent

	// joinWaiters holds fibers parked inside join, waiting for this
	// fiber's current instance to end. Unlike onExit (used by callers
	// outside any fiber, via a raw goroutine-blocking Wait), a joining
	// fiber must not block its backing goroutine directly — the
	// scheduler's driving goroutine is itself blocked inside
	// resumeAndWait for exactly that goroutine, so a raw block would
	// deadlock the whole scheduler. Joining fibers instead park() and
	// get re-enqueued by wakeJoinWaiters when this instance ends.
	joinMu      sync.Mutex
	joinWaiters []*Fiber

	// Intrusive FiberQueue links. queue is nil iff this fiber is not
	// currently a member of any queue.
	prev, next *Fiber
	queue      *FiberQueue

	flsStorage []byte
	flsInit    bitset

	taskFunc *TaskFuncInfo

	resumeCh    chan struct{}
	suspendCh   chan struct{}
	cleanupHook func()

	name string
}

// newFiber allocates a fiber bound to scheduler and starts its permanent
// backing goroutine. It blocks until that goroutine reaches its initial
// parked state, so the returned fiber is immediately safe to assign a
// TaskFuncInfo to and resume.
func newFiber(scheduler *TaskScheduler, name string) *Fiber {
	f := &Fiber{
		scheduler: scheduler,
		onExit:    NewManualEvent(),
		resumeCh:  make(chan struct{}),
		suspendCh: make(chan struct{}),
		name:      name,
	}
	go f.loop()
	<-f.suspendCh // wait for the goroutine to reach its first park()
	return f
}

// loop is the permanent body of the fiber's backing goroutine. It never
// returns while the process is alive; it is the Go rendering of spec.md
// §4.1's "Inner loop semantics".
func (f *Fiber) loop() {
	registerCurrent(f)

	for {
		for f.taskFunc == nil {
			f.park()
		}

		info := f.taskFunc
		f.taskFunc = nil
		f.running.Store(true)
		f.scheduler.activeCount.Add(1)

		task := Task{fiber: f, generation: f.generation.Load()}
		emitTaskEvent(TaskEventPreStart, task)

		if !f.scheduler.eventLoopRunning.Load() {
			// Mirrors spec.md §4.1: a freshly spawned fiber waits for the
			// event loop to actually be driving before running user code,
			// so a task started before anyone calls Process/WaitAndProcess
			// doesn't race ahead of the scheduler that owns it.
			f.scheduler.YieldUninterruptible()
		}
		emitTaskEvent(TaskEventPostStart, task)

		startedAt := time.Now()
		panicked := f.runInstance(info, task)

		f.interrupt.Store(false) // drop any pending interrupt on exit
		f.onExit.Emit()
		f.wakeJoinWaiters()
		if f.queue != nil {
			f.queue.Remove(f)
		}
		f.destroyFLS()
		f.running.Store(false)
		f.scheduler.activeCount.Add(-1)
		f.cleanupHook = nil
		f.generation.Add(1)

		finishedAt := time.Now()
		f.scheduler.config.Metrics.RecordTaskDuration(f.scheduler.name(), finishedAt.Sub(startedAt))
		f.scheduler.history.Add(TaskExecutionRecord{
			DebugID:       task.DebugID(),
			SchedulerName: f.scheduler.name(),
			StartedAt:     startedAt,
			FinishedAt:    finishedAt,
			Duration:      finishedAt.Sub(startedAt),
			Panicked:      panicked,
		})

		f.scheduler.recycle(f)
	}
}

// runInstance executes one task invocation with panic recovery, matching
// the teacher's recover-and-log wrapper (core/single_thread_task_runner.go
// runLoop) but re-panicking runtime.Errors instead of swallowing them, per
// spec.md §7 ("Uncaught Error-class... re-raised past the scheduler").
// It reports whether the instance ended via an uncaught panic (an
// InterruptException does not count as one).
func (f *Fiber) runInstance(info *TaskFuncInfo, task Task) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			if _, isInterrupt := r.(*InterruptException); isInterrupt {
				emitTaskEvent(TaskEventEnd, task)
				return
			}
			panicked = true
			emitTaskEvent(TaskEventFail, task)
			f.scheduler.config.Logger.Error("task panicked", F("task", task.DebugID()), F("panic", r))
			f.scheduler.config.Metrics.RecordTaskPanic(f.scheduler.name(), r)
			f.scheduler.config.PanicHandler.HandlePanic(f.ctx(), f.scheduler.name(), r, debug.Stack())
			if rerr, ok := r.(runtime.Error); ok {
				panic(rerr)
			}
			return
		}
		emitTaskEvent(TaskEventEnd, task)
	}()

	emitTaskEvent(TaskEventStart, task)
	info.invoke(f.ctx())
	return false
}

// ctx returns the context passed to task functions. The fiber runtime
// itself has no cancellation concept of its own (interrupts are delivered
// as panics, not context cancellation) so a background context is enough;
// it exists as a parameter purely so task bodies look like ordinary Go
// task closures, matching the teacher's core.Task func(ctx context.Context)
// shape.
func (f *Fiber) ctx() fiberContext {
	return fiberContext{fiber: f}
}

// park is the "suspend()" primitive at the bottom of the fiber loop and
// the building block every scheduler suspension point (Yield, Hibernate,
// Join, SwitchTo's caller park) is written in terms of: it hands control
// back to whichever goroutine is waiting in resume, then blocks until
// resumed again. While a task instance owns this fiber, parking and
// waking back up are exactly the yield/resume points spec.md §6 reports
// through the TaskEvent hook; the bootstrap park a fresh fiber sits in
// before it has ever been handed a task_func is not part of any instance,
// so it stays silent.
func (f *Fiber) park() {
	if f.running.Load() {
		emitTaskEvent(TaskEventYield, f.task())
	}
	f.suspendCh <- struct{}{}
	<-f.resumeCh
	if f.running.Load() {
		emitTaskEvent(TaskEventResume, f.task())
	}
}

// resumeAndWait is called from the scheduler's driving goroutine (or from
// a fiber acting as one via switch_to) to run this fiber until its next
// suspension point. It blocks until the fiber parks again.
func (f *Fiber) resumeAndWait() {
	f.resumeCh <- struct{}{}
	<-f.suspendCh
}

// task returns a handle to this fiber's current instance.
func (f *Fiber) task() Task {
	return Task{fiber: f, generation: f.generation.Load()}
}

// join blocks the caller on this fiber's on_exit event for as long as the
// fiber is running the expected generation; a stale generation returns
// immediately, per spec.md §4.1.
func (f *Fiber) join(expectedGeneration uint64) {
	if f.generation.Load() != expectedGeneration || !f.running.Load() {
		return
	}

	caller := Current()
	if caller.isDummy() {
		f.onExit.Wait()
		return
	}

	// A joining fiber must suspend cooperatively rather than block its
	// backing goroutine — see joinWaiters' doc comment.
	f.addJoinWaiter(caller)
	caller.park()
}

func (f *Fiber) addJoinWaiter(caller *Fiber) {
	f.joinMu.Lock()
	f.joinWaiters = append(f.joinWaiters, caller)
	f.joinMu.Unlock()
}

// wakeJoinWaiters re-enqueues every fiber parked in join against this
// instance. Called from within this fiber's own loop, which by the
// single-threaded cooperative invariant is the only fiber executing at
// this moment, so re-enqueuing into the scheduler's ready queue needs no
// further synchronization.
func (f *Fiber) wakeJoinWaiters() {
	f.joinMu.Lock()
	waiters := f.joinWaiters
	f.joinWaiters = nil
	f.joinMu.Unlock()

	for _, waiter := range waiters {
		f.scheduler.enqueueBack(waiter)
	}
}

// interrupt requests cancellation of the fiber's current task instance.
// Preconditions: the caller must not be the fiber itself (self-interrupt
// is forbidden) and must be operating on the same scheduler (cross-thread
// interrupt is rejected outright, per spec.md §9's Open Question
// resolution in favor of a hard precondition).
func (f *Fiber) interrupt_(expectedGeneration uint64) {
	caller := Current()
	if caller == f {
		violate("a fiber cannot interrupt itself")
	}
	if !caller.isDummy() && caller.scheduler != f.scheduler {
		violate("interrupt across schedulers is not supported")
	}
	if f.generation.Load() != expectedGeneration {
		return
	}

	f.interrupt.Store(true)
	f.scheduler.SwitchTo(f.task())
}

// bumpGeneration invalidates outstanding handles to the current instance.
func (f *Fiber) bumpGeneration() {
	f.generation.Add(1)
}

// handleInterrupt raises InterruptException inside the calling fiber if
// an interrupt is pending, clearing the flag first so a re-entrant check
// inside the same suspension point cannot double-raise. If a non-throwing
// cleanup hook has been installed (see InstallInterruptCleanup) it is
// invoked instead of panicking.
func (f *Fiber) handleInterrupt() {
	if !f.interrupt.CompareAndSwap(true, false) {
		return
	}
	if f.cleanupHook != nil {
		hook := f.cleanupHook
		f.cleanupHook = nil
		hook()
		return
	}
	f.scheduler.interruptsDelivered.Add(1)
	panic(&InterruptException{Task: f.task()})
}

// InstallInterruptCleanup registers a non-throwing callback that consumes
// the next pending interrupt instead of raising InterruptException. It is
// used by resource-guard style code that needs to unwind deterministically
// without exceptions, per spec.md §4.6.
func (f *Fiber) InstallInterruptCleanup(hook func()) {
	f.cleanupHook = hook
}

func (f *Fiber) isDummy() bool {
	return f.scheduler == nil
}

func (f *Fiber) String() string {
	if f.name != "" {
		return f.name
	}
	return fmt.Sprintf("fiber(%p)", f)
}

// =============================================================================
// Fiber.Current and the global dummy fiber
// =============================================================================

var fiberRegistry sync.Map // goroutine id (uint64) -> *Fiber

// registerCurrent associates the calling goroutine with f for the
// lifetime of the process. It is called exactly once, from the top of
// loop, since a fiber's backing goroutine never changes identity or
// exits between task instances.
func registerCurrent(f *Fiber) {
	fiberRegistry.Store(goroutineID(), f)
}

var (
	dummyFiberOnce sync.Once
	dummyFiber     *Fiber
)

// Current returns the Fiber executing on the calling goroutine. Outside
// any fiber's backing goroutine it returns a lazily-constructed global
// dummy fiber, so FLS (TaskLocal) is always addressable without every
// caller special-casing "am I inside a task".
//
// The spec describes this as thread-local; Go exposes no portable
// OS-thread identity, so this implementation keys off a best-effort
// goroutine identity instead (see goroutineID) and uses a single
// process-wide dummy fiber rather than one per OS thread — see
// DESIGN.md for the corresponding Open Question resolution.
func Current() *Fiber {
	if v, ok := fiberRegistry.Load(goroutineID()); ok {
		return v.(*Fiber)
	}
	dummyFiberOnce.Do(func() {
		dummyFiber = &Fiber{onExit: NewManualEvent()}
	})
	return dummyFiber
}

// CurrentTask returns a handle to the task instance executing on the
// calling goroutine, or the zero Task if called outside any fiber.
func CurrentTask() Task {
	f := Current()
	if f.isDummy() {
		return Task{}
	}
	return f.task()
}

// goroutineID extracts a best-effort identifier for the calling goroutine
// by parsing the header line of runtime.Stack's output ("goroutine 123
// [running]:"). This is the same introspection trick coroutine-style Go
// libraries reach for in place of true thread-local storage (see
// dispatchrun-coroutine's getg()-based load()) when they cannot or do not
// want to depend on linkname tricks into the runtime package. It is not
// cheap, and it runs on every Current call: once per fiber in
// registerCurrent, and on each Yield, YieldUninterruptible, Hibernate,
// SwitchTo, Join, Interrupt, TaskLocal.Get and CurrentTask.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]

	const prefix = "goroutine "
	if len(b) < len(prefix) {
		return 0
	}
	b = b[len(prefix):]

	i := 0
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		i++
	}
	id, err := strconv.ParseUint(string(b[:i]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
