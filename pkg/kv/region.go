package kv

import (
	"fmt"

	"github.com/eigerco/kvlayer/internal/engine"
)

// Region is a contiguous byte range handed to the engine. It is either Bytes,
// owned by the caller, or an *Allocation borrowed from the engine.
type Region interface {
	view() ([]byte, error)
}

// Bytes is a caller-owned region.
type Bytes []byte

func (b Bytes) view() ([]byte, error) { return b, nil }

// Allocation is a value returned by the engine. Its memory belongs to the
// engine and is valid until the allocation, or the handle it was read
// through, is closed.
type Allocation struct {
	handle
}

func newAllocation(ptr engine.Ptr) *Allocation {
	a := &Allocation{}
	a.init(KindAllocation, ptr, engine.Nil)
	return a
}

// Bytes returns the borrowed engine memory. Copy it before closing the
// allocation if it must outlive it.
func (a *Allocation) Bytes() ([]byte, error) {
	p, err := a.get()
	if err != nil {
		return nil, err
	}
	b, err := engine.ValueBytes(p)
	return b, engineErr("allocation", err)
}

// Len returns the value length, 0 once the allocation is closed.
func (a *Allocation) Len() int {
	b, err := a.Bytes()
	if err != nil {
		return 0
	}
	return len(b)
}

// Copy returns a caller-owned copy of the value.
func (a *Allocation) Copy() ([]byte, error) {
	b, err := a.Bytes()
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (a *Allocation) String() string {
	b, err := a.Bytes()
	if err != nil {
		return "<closed allocation>"
	}
	return string(b)
}

func (a *Allocation) view() ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("nil allocation: %w", ErrInvalidArgument)
	}
	b, err := a.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return b, nil
}

// toView selects the representation of r. A nil region or a closed
// allocation cannot be presented and fails with ErrInvalidArgument.
func toView(r Region) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("nil region: %w", ErrInvalidArgument)
	}
	return r.view()
}
