package kv

import (
	"errors"
	"fmt"

	"github.com/eigerco/kvlayer/internal/engine"
)

// ArrayResult holds the entries of one batched fetch. Its slots and backing
// buffers are released together on Close; views returned by Key and Value
// must not be used afterwards.
type ArrayResult struct {
	handle
	size    int
	slots   []engine.Slot
	buffers [][]byte
}

func newArrayResult(kind Kind, ptr engine.Ptr) (*ArrayResult, error) {
	slots, buffers, err := engine.ArraySlots(ptr)
	if err != nil {
		return nil, errors.Join(engineErr("array slots", err), engine.ReleaseArray(ptr))
	}
	r := &ArrayResult{size: len(slots), slots: slots, buffers: buffers}
	for i, s := range slots {
		if s.Buffer == engine.Unused {
			r.size = i
			break
		}
	}
	r.init(kind, ptr, engine.Nil)
	return r, nil
}

// Size is the number of filled slots. It may be smaller than requested.
func (r *ArrayResult) Size() int {
	return r.size
}

func (r *ArrayResult) slot(i int) (engine.Slot, []byte, error) {
	if _, err := r.get(); err != nil {
		return engine.Slot{}, nil, err
	}
	if i < 0 || i >= r.size {
		return engine.Slot{}, nil, fmt.Errorf("slot %d of %d: %w", i, r.size, ErrIndexOutOfRange)
	}
	s := r.slots[i]
	return s, r.buffers[s.Buffer], nil
}

// Key returns the key in slot i.
func (r *ArrayResult) Key(i int) ([]byte, error) {
	s, buf, err := r.slot(i)
	if err != nil {
		return nil, err
	}
	return buf[s.KeyStart:s.IntermediateStart:s.IntermediateStart], nil
}

// Value returns the value in slot i; ok is false when the slot holds no value.
func (r *ArrayResult) Value(i int) (value []byte, ok bool, err error) {
	s, buf, err := r.slot(i)
	if err != nil {
		return nil, false, err
	}
	if s.ValueEnd == engine.Absent {
		return nil, false, nil
	}
	return buf[s.ValueStart:s.ValueEnd:s.ValueEnd], true, nil
}

// IndirectArrayResult is an ArrayResult whose values were resolved through
// the index entries the cursor walked.
type IndirectArrayResult struct {
	*ArrayResult
}

// IntermediateKey returns the primary key the index entry in slot i points at.
func (r *IndirectArrayResult) IntermediateKey(i int) ([]byte, error) {
	s, buf, err := r.slot(i)
	if err != nil {
		return nil, err
	}
	return buf[s.IntermediateStart:s.ValueStart:s.ValueStart], nil
}
