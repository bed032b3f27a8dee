package kv

import (
	"errors"
	"fmt"
	"sync/atomic"
	"weak"

	"github.com/eigerco/kvlayer/internal/engine"
	"github.com/eigerco/kvlayer/pkg/metrics"
)

// Kind tags a handle for diagnostics and selects its release call.
type Kind uint8

const (
	KindDatabase Kind = iota
	KindSnapshot
	KindWriteBatch
	KindCursor
	KindAllocation
	KindArrayResult
	KindIndirectArrayResult
)

func (k Kind) String() string {
	switch k {
	case KindDatabase:
		return "database"
	case KindSnapshot:
		return "snapshot"
	case KindWriteBatch:
		return "write-batch"
	case KindCursor:
		return "cursor"
	case KindAllocation:
		return "allocation"
	case KindArrayResult:
		return "array-result"
	case KindIndirectArrayResult:
		return "indirect-array-result"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// handle wraps one engine object. The pointer is non-Nil exactly while the
// handle is open; it is swapped to Nil before the engine object is released.
type handle struct {
	ptr     atomic.Uintptr
	closing atomic.Bool
	// released is closed once the first Close has finished.
	released chan struct{}
	kind     Kind
	// aux is the second release argument: the owning database for a snapshot,
	// the translated options for a database.
	aux engine.Ptr
	// parent is the set this handle is registered in, if any.
	parent weak.Pointer[HandlerSet]
	// preRelease runs on first close, before the engine object is released.
	preRelease func() error
}

func (h *handle) init(kind Kind, ptr, aux engine.Ptr) {
	h.kind = kind
	h.aux = aux
	h.released = make(chan struct{})
	h.ptr.Store(uintptr(ptr))
	metrics.OpenHandles.WithLabelValues(kind.String()).Inc()
}

// get returns the engine pointer, or ErrUseAfterClose once the handle is closed.
func (h *handle) get() (engine.Ptr, error) {
	p := engine.Ptr(h.ptr.Load())
	if p == engine.Nil {
		return engine.Nil, fmt.Errorf("%s: %w", h.kind, ErrUseAfterClose)
	}
	return p, nil
}

// Closed reports whether the handle has been released.
func (h *handle) Closed() bool {
	return engine.Ptr(h.ptr.Load()) == engine.Nil
}

// Close releases the handle. Only the first call does any work; later calls
// wait for it to finish and return nil.
func (h *handle) Close() error {
	if !h.closing.CompareAndSwap(false, true) {
		<-h.released
		return nil
	}
	defer close(h.released)

	var errs []error
	if h.preRelease != nil {
		if err := h.preRelease(); err != nil {
			errs = append(errs, err)
		}
	}
	ptr := engine.Ptr(h.ptr.Swap(uintptr(engine.Nil)))
	if err := release(h.kind, ptr, h.aux); err != nil {
		errs = append(errs, &EngineError{Op: "release " + h.kind.String(), Err: err})
	}
	if parent := h.parent.Value(); parent != nil {
		parent.unregister(h)
	}
	metrics.OpenHandles.WithLabelValues(h.kind.String()).Dec()
	return errors.Join(errs...)
}

func release(kind Kind, ptr, aux engine.Ptr) error {
	switch kind {
	case KindDatabase:
		return errors.Join(engine.ReleaseDB(ptr), engine.ReleaseOptions(aux))
	case KindSnapshot:
		return engine.ReleaseSnapshot(aux, ptr)
	case KindWriteBatch:
		return engine.ReleaseBatch(ptr)
	case KindCursor:
		return engine.ReleaseCursor(ptr)
	case KindAllocation:
		return engine.ReleaseValue(ptr)
	case KindArrayResult, KindIndirectArrayResult:
		return engine.ReleaseArray(ptr)
	}
	return fmt.Errorf("release %s: unknown kind", kind)
}
