package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"
)

// TaskScheduler is the single per-thread instance that owns a runnable
// FiberQueue and drives fibers to completion. It is not safe to call
// Spawn, Yield, Hibernate, SwitchTo, Schedule, Process, or
// WaitAndProcess concurrently from more than one goroutine at a time —
// cross-thread task passing is explicitly out of scope (see spec.md §1):
// exactly one goroutine (either the goroutine driving Process/
// WaitAndProcess, or a fiber's own backing goroutine while it runs) is
// ever meant to be touching scheduler state at once. Stats is the one
// exception: it is safe to poll from any goroutine, e.g. a metrics
// exporter running on its own ticker.
type TaskScheduler struct {
	config *TaskSchedulerConfig

	ready  *FiberQueue
	marker *Fiber // sentinel; never resumed, just a round boundary

	eventLoopRunning atomic.Bool
	activeCount      atomic.Int32

	generationBumps     atomic.Int64
	interruptsDelivered atomic.Int64
	rejected            atomic.Int64

	poolMu    sync.Mutex
	freeList  []*Fiber
	liveCount int

	shuttingDown atomic.Bool

	history *executionHistory
}

// NewTaskScheduler creates a scheduler with no fibers yet allocated. The
// marker sentinel is a bare Fiber value with no backing goroutine — it
// exists purely to be linked into and popped from the ready queue.
func NewTaskScheduler(config *TaskSchedulerConfig) *TaskScheduler {
	if config == nil {
		config = DefaultTaskSchedulerConfig()
	}
	if config.EventDriver == nil {
		config.EventDriver = NoWaitersEventDriver{}
	}
	if config.Logger == nil {
		config.Logger = &NoOpLogger{}
	}
	if config.PanicHandler == nil {
		config.PanicHandler = &DefaultPanicHandler{}
	}
	if config.Metrics == nil {
		config.Metrics = &NilMetrics{}
	}
	if config.RejectedTaskHandler == nil {
		config.RejectedTaskHandler = &DefaultRejectedTaskHandler{}
	}
	if config.Name == "" {
		config.Name = "scheduler"
	}

	return &TaskScheduler{
		config:  config,
		ready:   NewFiberQueue(),
		marker:  &Fiber{},
		history: newExecutionHistory(defaultTaskHistoryCapacity),
	}
}

func (s *TaskScheduler) name() string {
	return s.config.Name
}

// =============================================================================
// Spawning
// =============================================================================

// Spawn queues fn to run on a fiber of its own, reusing a recycled fiber
// if one is idle or creating a new one otherwise. The returned Task
// becomes Running once the scheduler's next Schedule round reaches it.
func Spawn(s *TaskScheduler, fn func(ctx context.Context)) (Task, error) {
	return s.spawn(newTaskFuncInfo(fn))
}

// SpawnWithArgs is Spawn for a task body that takes an explicit argument
// value. args is validated against MaxInlineArgsSize before being
// captured, mirroring the spec's fixed-size inline argument buffer.
func SpawnWithArgs[Args any](s *TaskScheduler, fn func(ctx context.Context, args Args), args Args) (Task, error) {
	if size := int(unsafe.Sizeof(args)); size > MaxInlineArgsSize {
		return Task{}, &ErrContractViolation{
			Reason: fmt.Sprintf("spawn argument payload of %d bytes exceeds the %d-byte inline limit", size, MaxInlineArgsSize),
		}
	}
	captured := args
	return s.spawn(newTaskFuncInfo(func(ctx context.Context) { fn(ctx, captured) }))
}

func (s *TaskScheduler) spawn(info *TaskFuncInfo) (Task, error) {
	if s.shuttingDown.Load() {
		s.config.RejectedTaskHandler.HandleRejectedTask(s.name(), "shutting down")
		s.config.Metrics.RecordTaskRejected(s.name(), "shutting down")
		s.rejected.Add(1)
		return Task{}, fmt.Errorf("fiber runtime: scheduler %q is shutting down", s.name())
	}

	f := s.acquireFiber()
	f.taskFunc = info
	s.enqueueBack(f)
	return f.task(), nil
}

func (s *TaskScheduler) acquireFiber() *Fiber {
	s.poolMu.Lock()
	if n := len(s.freeList); n > 0 {
		f := s.freeList[n-1]
		s.freeList[n-1] = nil
		s.freeList = s.freeList[:n-1]
		s.poolMu.Unlock()
		return f
	}
	s.liveCount++
	live := s.liveCount
	s.poolMu.Unlock()

	return newFiber(s, fmt.Sprintf("%s-fiber-%d", s.name(), live))
}

// recycle returns f to the pool at the end of a task instance; f parks
// right after, at the top of its loop, with no task_func assigned — the
// "spawn layer" contract the fiber loop depends on, named recycle_fiber in
// spec.md §6.
func (s *TaskScheduler) recycle(f *Fiber) {
	s.generationBumps.Add(1)

	s.poolMu.Lock()
	s.freeList = append(s.freeList, f)
	live, idle := s.liveCount, len(s.freeList)
	s.poolMu.Unlock()

	s.config.Metrics.RecordFiberPoolSize(s.name(), live, idle)
}

// =============================================================================
// Suspension points
// =============================================================================

// Yield is the interruptible cooperative yield.
func (s *TaskScheduler) Yield() {
	f := Current()
	if f.isDummy() {
		return
	}
	f.handleInterrupt()
	if f.queue != nil {
		return
	}
	s.enqueueBack(f)
	f.park()
	f.handleInterrupt()
}

// YieldUninterruptible is Yield without the interrupt checks.
func (s *TaskScheduler) YieldUninterruptible() {
	f := Current()
	if f.isDummy() {
		return
	}
	if f.queue != nil {
		return
	}
	s.enqueueBack(f)
	f.park()
}

// Hibernate suspends the current task without re-enqueueing it; the
// caller is expected to be parked on some wait list that a later
// SwitchTo will resume. Outside any task, it drives one round of the
// event loop instead (the bootstrap pattern a program's entry point
// uses before any fiber exists).
func (s *TaskScheduler) Hibernate() {
	f := Current()
	if f.isDummy() {
		s.Process()
		return
	}
	f.park()
}

// SwitchTo immediately resumes target, queuing the caller to run right
// after it. If the caller is not running inside a fiber, target is
// resumed directly, blocking the calling goroutine until target
// suspends.
func (s *TaskScheduler) SwitchTo(target Task) {
	targetFiber := target.fiber
	if targetFiber == nil {
		return
	}
	caller := Current()
	if targetFiber == caller {
		return
	}

	// Defensive: a fiber linked into any queue must not also be resumed
	// directly, or it would run twice once Schedule later reaches it.
	if targetFiber.queue != nil {
		s.dequeue(targetFiber)
	}

	if caller.isDummy() {
		// A dummy caller driving SwitchTo directly is, like Schedule, a
		// first-class way to drive the scheduler from outside any fiber —
		// it must satisfy a freshly spawned target's "wait for the event
		// loop to start" gate itself, or the target would park right back
		// into the ready queue instead of running now.
		s.eventLoopRunning.Store(true)
		targetFiber.resumeAndWait()
		return
	}

	s.enqueueFront(caller)
	s.enqueueFront(targetFiber)
	caller.park()
}

// =============================================================================
// Driving the scheduler
// =============================================================================

// Schedule drains one round: every fiber in the ready queue at the
// moment Schedule is called runs at most once, even if it re-enqueues
// itself via Yield during the round. It reports whether the queue is
// non-empty once the round ends.
//
// Schedule is a first-class way to drive the scheduler in its own right,
// not just a helper Process calls, so it is what actually satisfies a
// freshly spawned fiber's "wait for the event loop to start" gate — a
// caller driving exclusively through Schedule, with Process/WaitAndProcess
// never called, must still see spawned fibers run on their first round.
func (s *TaskScheduler) Schedule() bool {
	s.eventLoopRunning.Store(true)
	s.enqueueBack(s.marker)

	for {
		f := s.dequeueFront()
		if f == s.marker {
			break
		}
		f.resumeAndWait()
	}

	return !s.ready.IsEmpty()
}

// Process drives Schedule and the event driver together until there is
// nothing left to do right now. It never blocks.
func (s *TaskScheduler) Process() ExitReason {
	anyEvents := false
	for {
		s.Schedule()

		switch reason := s.config.EventDriver.ProcessEvents(0); reason {
		case ExitExited:
			return ExitExited
		case ExitOutOfWaiters:
			if s.ready.IsEmpty() {
				return ExitOutOfWaiters
			}
		case ExitTimeout:
			if s.ready.IsEmpty() {
				if anyEvents {
					return ExitIdle
				}
				return ExitTimeout
			}
		case ExitIdle:
			anyEvents = true
			if s.ready.IsEmpty() {
				return ExitIdle
			}
		}
	}
}

// WaitAndProcess calls Process; if that returns timeout, it blocks once
// in the event driver and tries again, translating a second timeout into
// idle (there was genuinely nothing to do, not an error).
func (s *TaskScheduler) WaitAndProcess() ExitReason {
	reason := s.Process()
	switch reason {
	case ExitExited, ExitOutOfWaiters, ExitIdle:
		return reason
	}

	s.config.EventDriver.ProcessEvents(-1)
	reason = s.Process()
	if reason == ExitTimeout {
		return ExitIdle
	}
	return reason
}

// =============================================================================
// Ready-queue bookkeeping
// =============================================================================

func (s *TaskScheduler) enqueueBack(f *Fiber) {
	s.ready.InsertBack(f)
	s.config.Metrics.RecordQueueDepth(s.name(), s.ready.Len())
}

func (s *TaskScheduler) enqueueFront(f *Fiber) {
	s.ready.InsertFront(f)
	s.config.Metrics.RecordQueueDepth(s.name(), s.ready.Len())
}

func (s *TaskScheduler) dequeueFront() *Fiber {
	return s.ready.PopFront()
}

func (s *TaskScheduler) dequeue(f *Fiber) {
	s.ready.Remove(f)
}

// =============================================================================
// Lifecycle and observability
// =============================================================================

// Shutdown stops accepting new spawns immediately; fibers already running
// or queued are left to finish on their own.
func (s *TaskScheduler) Shutdown() {
	s.shuttingDown.Store(true)
	if closer, ok := s.config.EventDriver.(interface{ Close() }); ok {
		closer.Close()
	}
}

// ShutdownGraceful stops accepting new spawns and waits up to timeout for
// the ready queue to drain and every started task instance to end.
func (s *TaskScheduler) ShutdownGraceful(timeout time.Duration) error {
	s.shuttingDown.Store(true)
	if closer, ok := s.config.EventDriver.(interface{ Close() }); ok {
		closer.Close()
	}

	deadline := time.After(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			return fmt.Errorf("fiber runtime: graceful shutdown of %q timed out after %v", s.name(), timeout)
		case <-ticker.C:
			stats := s.Stats()
			if stats.Pending == 0 && stats.Running == 0 {
				return nil
			}
		}
	}
}

// Stats returns a point-in-time snapshot of the scheduler's observable
// state. Safe to call from any goroutine.
func (s *TaskScheduler) Stats() SchedulerStats {
	s.poolMu.Lock()
	live, idle := s.liveCount, len(s.freeList)
	s.poolMu.Unlock()

	return SchedulerStats{
		Name:                s.name(),
		Pending:             s.ready.Len(),
		Running:             int(s.activeCount.Load()),
		FibersLive:          live,
		FibersIdle:          idle,
		GenerationBumps:     s.generationBumps.Load(),
		InterruptsDelivered: s.interruptsDelivered.Load(),
		Rejected:            s.rejected.Load(),
	}
}

// History returns the most recent completed task instances, most recent
// first. limit <= 0 returns every retained record.
func (s *TaskScheduler) History(limit int) []TaskExecutionRecord {
	return s.history.Recent(limit)
}
