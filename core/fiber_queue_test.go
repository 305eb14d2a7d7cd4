package core

import "testing"

// TestFiberQueue_FIFOOrder tests that InsertBack/PopFront preserve
// insertion order.
// Main test items:
// 1. Three fibers inserted in order come back out in the same order
// 2. Len/IsEmpty track membership accurately
func TestFiberQueue_FIFOOrder(t *testing.T) {
	q := NewFiberQueue()
	a, b, c := &Fiber{}, &Fiber{}, &Fiber{}

	q.InsertBack(a)
	q.InsertBack(b)
	q.InsertBack(c)

	if q.Len() != 3 {
		t.Fatalf("expected Len 3, got %d", q.Len())
	}

	for i, want := range []*Fiber{a, b, c} {
		got := q.PopFront()
		if got != want {
			t.Errorf("position %d: expected fiber %p, got %p", i, want, got)
		}
	}

	if !q.IsEmpty() {
		t.Error("expected queue to be empty after draining")
	}
}

// TestFiberQueue_InsertFrontPriority tests that InsertFront places a fiber
// ahead of everything already queued.
func TestFiberQueue_InsertFrontPriority(t *testing.T) {
	q := NewFiberQueue()
	a, b := &Fiber{}, &Fiber{}

	q.InsertBack(a)
	q.InsertFront(b)

	if got := q.PopFront(); got != b {
		t.Errorf("expected InsertFront target to pop first, got %p want %p", got, b)
	}
	if got := q.PopFront(); got != a {
		t.Errorf("expected remaining fiber to pop second, got %p want %p", got, a)
	}
}

// TestFiberQueue_Remove tests that Remove unlinks an interior fiber
// without disturbing the order of the rest.
func TestFiberQueue_Remove(t *testing.T) {
	q := NewFiberQueue()
	a, b, c := &Fiber{}, &Fiber{}, &Fiber{}
	q.InsertBack(a)
	q.InsertBack(b)
	q.InsertBack(c)

	q.Remove(b)

	if q.Len() != 2 {
		t.Fatalf("expected Len 2 after Remove, got %d", q.Len())
	}
	if got := q.PopFront(); got != a {
		t.Errorf("expected a first, got %p", got)
	}
	if got := q.PopFront(); got != c {
		t.Errorf("expected c second, got %p", got)
	}
}

// TestFiberQueue_PopFrontEmptyPanics tests the spec's boundary case: popping
// an empty queue panics rather than returning a zero value.
func TestFiberQueue_PopFrontEmptyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected PopFront on an empty queue to panic")
		}
	}()
	NewFiberQueue().PopFront()
}

// TestFiberQueue_RemoveWrongQueuePanics tests that Remove refuses a fiber
// that belongs to a different queue.
func TestFiberQueue_RemoveWrongQueuePanics(t *testing.T) {
	q1, q2 := NewFiberQueue(), NewFiberQueue()
	f := &Fiber{}
	q1.InsertBack(f)

	defer func() {
		if recover() == nil {
			t.Fatal("expected Remove on a fiber from a different queue to panic")
		}
	}()
	q2.Remove(f)
}

// TestFiberQueue_DoubleInsertPanics tests that inserting an already-linked
// fiber panics instead of silently corrupting the list.
func TestFiberQueue_DoubleInsertPanics(t *testing.T) {
	q := NewFiberQueue()
	f := &Fiber{}
	q.InsertBack(f)

	defer func() {
		if recover() == nil {
			t.Fatal("expected InsertBack on an already-linked fiber to panic")
		}
	}()
	q.InsertBack(f)
}
