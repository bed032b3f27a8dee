package engine

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// Ptr is an opaque reference to an engine-owned object. Callers never see the
// object itself, only the pointer, and hand it back on every call.
type Ptr uintptr

// Nil is the sentinel pointer. It never refers to a live object.
const Nil Ptr = 0

var (
	objects sync.Map // Ptr -> engine object
	nextPtr atomic.Uintptr
	live    atomic.Int64
)

// Live reports how many engine objects are currently allocated.
func Live() int64 {
	return live.Load()
}

// guard serializes the release of an object against calls still running on it.
// Pointers are never reused, so a released object can't be reached again.
type guard struct {
	mu       sync.RWMutex
	released bool
}

func (g *guard) enter() bool {
	g.mu.RLock()
	if g.released {
		g.mu.RUnlock()
		return false
	}
	return true
}

func (g *guard) exit() {
	g.mu.RUnlock()
}

// retire waits for in-flight calls to finish and marks the object released.
func (g *guard) retire() {
	g.mu.Lock()
	g.released = true
	g.mu.Unlock()
}

type guarded interface {
	enter() bool
	exit()
	retire()
}

func register(obj guarded) Ptr {
	p := Ptr(nextPtr.Add(1))
	objects.Store(p, obj)
	live.Add(1)
	return p
}

func invalidPtr(p Ptr) error {
	return errors.Wrapf(ErrInvalidPtr, "ptr %#x", uintptr(p))
}

func lookup[T guarded](p Ptr) (T, error) {
	var zero T
	if p == Nil {
		return zero, invalidPtr(p)
	}
	obj, ok := objects.Load(p)
	if !ok {
		return zero, invalidPtr(p)
	}
	v, ok := obj.(T)
	if !ok {
		return zero, errors.Wrapf(ErrInvalidPtr, "ptr %#x refers to %T", uintptr(p), obj)
	}
	return v, nil
}

// acquire resolves p and enters its guard. The caller must call exit on the
// returned object when done.
func acquire[T guarded](p Ptr) (T, error) {
	v, err := lookup[T](p)
	if err != nil {
		return v, err
	}
	if !v.enter() {
		var zero T
		return zero, invalidPtr(p)
	}
	return v, nil
}

// take removes p from the table and retires it. Exactly one caller wins a
// concurrent take; the others see ErrInvalidPtr.
func take[T guarded](p Ptr) (T, error) {
	var zero T
	if _, err := lookup[T](p); err != nil {
		return zero, err
	}
	obj, ok := objects.LoadAndDelete(p)
	if !ok {
		return zero, invalidPtr(p)
	}
	live.Add(-1)
	v := obj.(T)
	v.retire()
	return v, nil
}
