// Package fiber provides a cooperative, single-threaded task runtime: many
// user-level tasks multiplexed onto one goroutine-pinned logical thread by
// suspending and resuming stack-switched fibers around an external event
// driver.
//
// # Quick Start
//
// Create a scheduler and an event driver, spawn some tasks, then drive it:
//
//	driver := eventdriver.NewTimer()
//	scheduler := fiber.NewScheduler(&core.TaskSchedulerConfig{
//		Name:        "main",
//		EventDriver: driver,
//	})
//
//	fiber.Spawn(scheduler, func(ctx context.Context) {
//		println("hello from a fiber")
//		scheduler.Yield()
//		println("resumed")
//	})
//
//	// Runs both halves of the task, then reports ExitOutOfWaiters.
//	scheduler.WaitAndProcess()
//
// # Key Concepts
//
// Fiber: a long-lived goroutine parked on a rendezvous channel pair,
// resumed one at a time by the scheduler — never two fibers running at
// once, never preempted mid-task.
//
// Task: a cheap, copyable {fiber, generation} handle. Operations on a
// handle whose generation has already passed are silent no-ops rather than
// dangling dereferences.
//
// TaskLocal[T]: fiber-local storage, constructed lazily and in place the
// first time a given fiber touches it, torn down automatically when that
// fiber's current task instance ends.
//
// TaskScheduler: owns the ready queue and drives fibers to completion via
// Yield, YieldUninterruptible, Hibernate, SwitchTo, Schedule, Process, and
// WaitAndProcess.
//
// # Thread Safety
//
// Exactly one goroutine is ever meant to be driving a given scheduler's
// suspension points at a time — cross-thread task passing is out of scope.
// TaskScheduler.Stats is the one method safe to call concurrently from any
// goroutine, for metrics polling.
package fiber
