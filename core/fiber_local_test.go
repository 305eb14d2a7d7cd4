package core

import (
	"context"
	"testing"
	"time"
)

// TestTaskLocal_ZeroValueOutsideFiber tests that Get outside any fiber
// operates on the global dummy fiber and returns the configured initial
// value (or the zero value, if none was given).
func TestTaskLocal_ZeroValueOutsideFiber(t *testing.T) {
	counter := NewTaskLocal(func() int { return 7 })
	if got := *counter.Get(); got != 7 {
		t.Errorf("expected initial value 7, got %d", got)
	}

	plain := NewTaskLocal[int](nil)
	if got := *plain.Get(); got != 0 {
		t.Errorf("expected zero value 0, got %d", got)
	}
}

// TestTaskLocal_PerFiberIsolation tests that two fibers each get their own
// independently constructed copy of the same TaskLocal[T] variable.
func TestTaskLocal_PerFiberIsolation(t *testing.T) {
	s := NewTaskScheduler(&TaskSchedulerConfig{Name: "fls-isolation"})
	name := NewTaskLocal(func() string { return "" })

	results := make(chan string, 2)
	for _, label := range []string{"alice", "bob"} {
		label := label
		if _, err := Spawn(s, func(ctx context.Context) {
			*name.Get() = label
			s.Yield()
			results <- *name.Get()
		}); err != nil {
			t.Fatalf("spawn failed: %v", err)
		}
	}

	s.Schedule()
	s.Schedule()

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		got[<-results] = true
	}
	if !got["alice"] || !got["bob"] {
		t.Errorf("expected both fibers to retain their own label, got %v", got)
	}
}

type destroyerSpy struct {
	destroyed *bool
}

func (d destroyerSpy) Destroy() {
	*d.destroyed = true
}

// TestTaskLocal_DestructorRunsAtTaskEnd tests that a TaskLocal[T] value
// implementing the destroyer interface has Destroy called when the owning
// task instance ends.
func TestTaskLocal_DestructorRunsAtTaskEnd(t *testing.T) {
	s := NewTaskScheduler(&TaskSchedulerConfig{Name: "fls-destructor"})

	destroyed := false
	resource := NewTaskLocal(func() destroyerSpy {
		return destroyerSpy{destroyed: &destroyed}
	})

	done := make(chan struct{})
	if _, err := Spawn(s, func(ctx context.Context) {
		resource.Get()
		close(done)
	}); err != nil {
		t.Fatalf("spawn failed: %v", err)
	}

	s.Schedule()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}

	if !destroyed {
		t.Error("expected Destroy to run when the task instance ended")
	}
}

// TestTaskLocal_ReconstructedOnNextInstance tests that a fiber recycled for
// a new task instance reconstructs its TaskLocal[T] value rather than
// reusing the previous instance's state.
func TestTaskLocal_ReconstructedOnNextInstance(t *testing.T) {
	s := NewTaskScheduler(&TaskSchedulerConfig{Name: "fls-reconstruct"})
	counter := NewTaskLocal(func() int { return 0 })

	firstSeen := make(chan int, 1)
	if _, err := Spawn(s, func(ctx context.Context) {
		*counter.Get() += 100
		firstSeen <- *counter.Get()
	}); err != nil {
		t.Fatalf("first spawn failed: %v", err)
	}
	s.Schedule()
	if got := <-firstSeen; got != 100 {
		t.Fatalf("expected first instance to see 100, got %d", got)
	}

	secondSeen := make(chan int, 1)
	if _, err := Spawn(s, func(ctx context.Context) {
		secondSeen <- *counter.Get()
	}); err != nil {
		t.Fatalf("second spawn failed: %v", err)
	}
	s.Schedule()

	if got := <-secondSeen; got != 0 {
		t.Errorf("expected the recycled fiber's next instance to start fresh at 0, got %d", got)
	}
}
