// Package eventdriver provides a deadline-queue EventDriver: the external
// collaborator a TaskScheduler calls into from Process/WaitAndProcess for
// anything that isn't pure fiber bookkeeping. The scheduler owns no timer
// logic of its own, by design — timers are explicitly out of scope for
// the scheduler and live here instead, mirroring how the teacher's
// DelayManager stood apart from its TaskRunner implementations.
package eventdriver

import (
	"container/heap"
	"sync"
	"time"

	"github.com/Swind/go-fiber-runtime/core"
)

// deadline is one pending timer registration.
type deadline struct {
	runAt    time.Time
	callback func()
	index    int
}

// deadlineHeap implements heap.Interface, ordering by runAt.
type deadlineHeap []*deadline

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].runAt.Before(h[j].runAt) }
func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *deadlineHeap) Push(x any) {
	n := len(*h)
	item := x.(*deadline)
	item.index = n
	*h = append(*h, item)
}

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h deadlineHeap) Peek() *deadline {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// Timer is a min-heap based EventDriver: callers register a callback to
// run at (or after) a given time via Schedule, and the scheduler's
// Process/WaitAndProcess loop drains due callbacks by calling
// ProcessEvents. Unlike the teacher's DelayManager, which ran its own
// background goroutine and pushed expired tasks directly into a
// TaskRunner, a Timer never runs callbacks on its own: it reports
// ExitReason back to whatever is driving it, so the single-threaded
// scheduler stays the only thing ever executing fiber-affecting code.
type Timer struct {
	mu     sync.Mutex
	pq     deadlineHeap
	closed bool
}

// NewTimer returns an empty Timer.
func NewTimer() *Timer {
	t := &Timer{pq: make(deadlineHeap, 0)}
	heap.Init(&t.pq)
	return t
}

// Handle identifies a registered callback so it can be cancelled.
type Handle struct {
	d *deadline
}

// Schedule registers callback to run once, no earlier than runAt is
// reached by a future ProcessEvents call.
func (t *Timer) Schedule(runAt time.Time, callback func()) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	d := &deadline{runAt: runAt, callback: callback}
	heap.Push(&t.pq, d)
	return Handle{d: d}
}

// Cancel removes a previously scheduled callback, if it has not already
// fired. Cancelling an unknown or already-fired handle is a no-op.
func (t *Timer) Cancel(h Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if h.d.index < 0 || h.d.index >= len(t.pq) || t.pq[h.d.index] != h.d {
		return
	}
	heap.Remove(&t.pq, h.d.index)
}

// Close marks the driver as exited: every subsequent ProcessEvents call
// returns core.ExitExited immediately, regardless of pending deadlines.
func (t *Timer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

// ProcessEvents implements core.EventDriver. A negative timeout waits
// indefinitely for the next deadline. With no deadline pending it returns
// core.ExitOutOfWaiters at once, whatever the timeout.
func (t *Timer) ProcessEvents(timeout time.Duration) core.ExitReason {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return core.ExitExited
	}
	if t.pq.Len() == 0 {
		t.mu.Unlock()
		return core.ExitOutOfWaiters
	}

	wait := t.pq.Peek().runAt.Sub(time.Now())
	t.mu.Unlock()

	if wait > 0 {
		if timeout >= 0 && timeout < wait {
			time.Sleep(timeout)
			if !t.hasExpired() {
				return core.ExitTimeout
			}
		} else {
			time.Sleep(wait)
		}
	}

	return t.fireExpired()
}

func (t *Timer) hasExpired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	item := t.pq.Peek()
	return item != nil && !item.runAt.After(time.Now())
}

func (t *Timer) fireExpired() core.ExitReason {
	t.mu.Lock()
	now := time.Now()
	var due []*deadline
	for t.pq.Len() > 0 {
		item := t.pq.Peek()
		if item.runAt.After(now) {
			break
		}
		due = append(due, heap.Pop(&t.pq).(*deadline))
	}
	t.mu.Unlock()

	if len(due) == 0 {
		return core.ExitTimeout
	}
	for _, item := range due {
		item.callback()
	}
	return core.ExitIdle
}

// Pending reports how many callbacks are currently registered.
func (t *Timer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pq.Len()
}
