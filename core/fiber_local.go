package core

import (
	"reflect"
	"sync"
	"unsafe"
)

// flsDestructor runs when a task instance ends for every variable id whose
// initialized bit is set. It receives the owning fiber's storage slice and
// the byte offset the variable lives at, exactly as spec.md §4.2 describes.
type flsDestructor func(storage []byte, offset int)

// flsRegistry is the process-wide, monotonic FLS layout: every
// TaskLocal[T] registers itself here exactly once, on first use, and the
// offset/id it receives is permanent for the life of the process.
type flsRegistry struct {
	mu      sync.Mutex
	fill    int // bytes reserved so far, 8-byte aligned after each entry
	count   int // number of registered variables
	info    []flsDestructor
	offsets []int
}

var globalFLS flsRegistry

const flsAlign = 8

func roundUp8(n int) int {
	return (n + flsAlign - 1) &^ (flsAlign - 1)
}

// register reserves space for a variable of size bytes and records its
// destructor (nil if the type needs no cleanup). It panics with
// ErrContractViolation if align exceeds the 8-byte ceiling the spec
// requires.
func (r *flsRegistry) register(size, align int, destructor flsDestructor) (offset, id int) {
	if align > flsAlign {
		violate("FLS variable alignment exceeds 8 bytes")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	offset = r.fill
	id = r.count
	r.fill += roundUp8(size)
	r.count++
	r.info = append(r.info, destructor)
	r.offsets = append(r.offsets, offset)
	return offset, id
}

func (r *flsRegistry) destructorFor(id int) flsDestructor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 0 || id >= len(r.info) {
		return nil
	}
	return r.info[id]
}

func (r *flsRegistry) offsetOf(id int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 0 || id >= len(r.offsets) {
		return 0
	}
	return r.offsets[id]
}

func (r *flsRegistry) snapshot() (fill, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fill, r.count
}

// bitset is a minimal growable bit vector used for fls_initialized.
type bitset []uint64

func (b *bitset) ensureBits(n int) {
	words := (n + 63) / 64
	if len(*b) < words {
		grown := make(bitset, words)
		copy(grown, *b)
		*b = grown
	}
}

func (b bitset) get(i int) bool {
	w := i / 64
	if w >= len(b) {
		return false
	}
	return b[w]&(1<<uint(i%64)) != 0
}

func (b bitset) set(i int) {
	b[i/64] |= 1 << uint(i%64)
}

func (b bitset) clear(i int) {
	w := i / 64
	if w < len(b) {
		b[w] &^= 1 << uint(i%64)
	}
}

// growFLS grows this fiber's storage and initialized-bit vector to cover
// the registry's current fill/count, per spec.md §4.2's "Per-fiber lazy
// growth". It does not shrink and it does not re-run construction for
// already-initialized variables.
//
// Growth reallocates flsStorage's backing array when it is insufficient.
// A *T obtained from TaskLocal.Get before a later growth event remains
// valid memory (Go never frees a slice backing array out from under a
// live reference) but no longer aliases the fiber's storage once it has
// grown — callers must not cache the pointer across a suspension point if
// other TaskLocal[T] variables might be registered for the first time
// concurrently elsewhere. In practice registration happens once near
// program start, so growth past the first few tasks is rare.
func (f *Fiber) growFLS() {
	fill, count := globalFLS.snapshot()
	if len(f.flsStorage) < fill {
		grown := make([]byte, fill+128)
		copy(grown, f.flsStorage)
		f.flsStorage = grown
	}
	f.flsInit.ensureBits(count + 64)
}

var destroyerType = reflect.TypeFor[destroyer]()

// destroyer is implemented by TaskLocal value types that need explicit
// cleanup beyond zeroing (e.g. releasing an external resource) when the
// owning task instance ends.
type destroyer interface {
	Destroy()
}

// containsPointers reports whether t's representation can hold a pointer,
// which is the Go analogue of the spec's "contains pointers/references"
// check used to decide whether a zeroing destructor is required to avoid
// false GC roots in retained fiber storage.
func containsPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface, reflect.Slice, reflect.String, reflect.UnsafePointer:
		return true
	case reflect.Array:
		return containsPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if containsPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// TaskLocal is a per-fiber-local variable of type T, addressed by a stable
// byte offset assigned the first time it is used from any fiber. Each
// fiber constructs its own T lazily, in place, the first time that fiber
// accesses the variable; destruction runs automatically when the current
// task instance ends.
type TaskLocal[T any] struct {
	once    sync.Once
	offset  int
	id      int
	initial func() T
}

// NewTaskLocal creates a task-local variable. initial, if non-nil, is
// called to produce the value each fiber constructs on first access; if
// nil, fibers get the zero value of T.
func NewTaskLocal[T any](initial func() T) *TaskLocal[T] {
	return &TaskLocal[T]{initial: initial}
}

func (tl *TaskLocal[T]) ensureRegistered() {
	tl.once.Do(func() {
		var zero T
		t := reflect.TypeOf(zero)
		align := 8
		size := int(unsafe.Sizeof(zero))
		if t != nil {
			align = t.Align()
			size = int(t.Size())
		}

		var destructor flsDestructor
		rt := reflect.TypeFor[T]()
		switch {
		case rt.Implements(destroyerType):
			destructor = func(storage []byte, offset int) {
				v := (*T)(unsafe.Pointer(&storage[offset]))
				any(*v).(destroyer).Destroy()
			}
		case reflect.PointerTo(rt).Implements(destroyerType):
			destructor = func(storage []byte, offset int) {
				v := (*T)(unsafe.Pointer(&storage[offset]))
				any(v).(destroyer).Destroy()
			}
		case containsPointers(rt):
			destructor = func(storage []byte, offset int) {
				v := (*T)(unsafe.Pointer(&storage[offset]))
				var zero T
				*v = zero
			}
		}

		tl.offset, tl.id = globalFLS.register(size, align, destructor)
	})
}

// Get returns a pointer to this variable's value within the current
// fiber, constructing it in place on first access by that fiber.
// Outside any fiber it operates on the global dummy fiber, per
// Fiber.Current's contract.
func (tl *TaskLocal[T]) Get() *T {
	tl.ensureRegistered()

	f := Current()
	f.growFLS()

	ptr := (*T)(unsafe.Pointer(&f.flsStorage[tl.offset]))
	if !f.flsInit.get(tl.id) {
		if tl.initial != nil {
			*ptr = tl.initial()
		} else {
			var zero T
			*ptr = zero
		}
		f.flsInit.set(tl.id)
	}
	return ptr
}

// destroyFLS runs every registered destructor whose initialized bit is
// set on this fiber, then clears the bits. Called once per task instance,
// at task end, before the fiber is recycled.
func (f *Fiber) destroyFLS() {
	_, count := globalFLS.snapshot()
	for id := 0; id < count; id++ {
		if !f.flsInit.get(id) {
			continue
		}
		if d := globalFLS.destructorFor(id); d != nil {
			// Destructors take the offset as a parameter; the registry
			// recorded each id's offset at registration time.
			d(f.flsStorage, globalFLS.offsetOf(id))
		}
		f.flsInit.clear(id)
	}
}
