package core

import "time"

// TaskExecutionRecord captures a completed task instance for the
// execution-history ring buffer.
type TaskExecutionRecord struct {
	DebugID       string
	SchedulerName string
	StartedAt     time.Time
	FinishedAt    time.Time
	Duration      time.Duration
	Panicked      bool
}

// SchedulerStats represents a point-in-time snapshot of a TaskScheduler's
// observable state, the fiber-runtime analogue of the teacher's
// RunnerStats/PoolStats.
type SchedulerStats struct {
	Name string

	// Pending is the number of fibers currently linked into the ready
	// queue (front + back), awaiting their turn in schedule().
	Pending int

	// Running is the number of task instances that have started and not
	// yet ended, including instances suspended in Yield, Hibernate or Join.
	// At most one of them executes task code at any instant.
	Running int

	// FibersLive is the number of fibers the pool has ever created that
	// have not been torn down.
	FibersLive int

	// FibersIdle is the number of live fibers currently recycled and
	// waiting to be handed a new TaskFuncInfo.
	FibersIdle int

	// GenerationBumps is the total number of task instances that have
	// ever completed across every fiber this scheduler owns.
	GenerationBumps int64

	// InterruptsDelivered counts every InterruptException actually raised
	// (not merely requested) since the scheduler started.
	InterruptsDelivered int64

	// Rejected counts spawns rejected by the RejectedTaskHandler path.
	Rejected int64
}
