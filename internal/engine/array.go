package engine

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

const (
	// MaxArrayBuffers bounds the backing buffers one array fetch may use.
	MaxArrayBuffers = 8
	// DefaultBufferSize is used when a fetch asks for a non-positive buffer size.
	DefaultBufferSize = 4096

	// Unused marks the slot after the last one a short fetch filled.
	Unused = -1
	// Absent is the ValueEnd of a slot whose value does not exist.
	Absent = -1
)

// Slot locates one fetched entry inside the array's backing buffers:
//
//	key          = buf[KeyStart:IntermediateStart]
//	intermediate = buf[IntermediateStart:ValueStart]   (indirect fetches only)
//	value        = buf[ValueStart:ValueEnd]            (ValueEnd == Absent: no value)
type Slot struct {
	Buffer            int
	KeyStart          int
	IntermediateStart int
	ValueStart        int
	ValueEnd          int
}

// initialSlots caps the slot list reserved up front; larger fetches grow it.
const initialSlots = 64

var bufferPool sync.Pool // *[]byte

func getBuffer(size int) *[]byte {
	if b, ok := bufferPool.Get().(*[]byte); ok && cap(*b) >= size {
		*b = (*b)[:0]
		return b
	}
	b := make([]byte, 0, size)
	return &b
}

type array struct {
	guard
	slots   []Slot
	buffers []*[]byte
	limits  []int
	views   [][]byte
}

// pack appends one entry to the current buffer, opening a new one when it
// does not fit. It reports false once the buffer budget is spent; the first
// entry of a fetch always fits.
func (a *array) pack(bufferSize int, key, intermediate, value []byte, present bool) (Slot, bool) {
	need := len(key) + len(intermediate) + len(value)
	last := len(a.buffers) - 1
	if last < 0 || a.limits[last]-len(*a.buffers[last]) < need {
		if len(a.buffers) == MaxArrayBuffers {
			return Slot{}, false
		}
		// The limit is only a budget; the buffer itself starts small and
		// grows as entries land.
		limit := max(bufferSize, need)
		a.buffers = append(a.buffers, getBuffer(min(limit, max(need, DefaultBufferSize))))
		a.limits = append(a.limits, limit)
		last++
	}

	buf := a.buffers[last]
	s := Slot{Buffer: last, KeyStart: len(*buf)}
	*buf = append(*buf, key...)
	s.IntermediateStart = len(*buf)
	*buf = append(*buf, intermediate...)
	s.ValueStart = len(*buf)
	*buf = append(*buf, value...)
	s.ValueEnd = len(*buf)
	if !present {
		s.ValueEnd = Absent
	}
	return s, true
}

func (a *array) free() {
	for _, b := range a.buffers {
		bufferPool.Put(b)
	}
	a.buffers, a.limits, a.views, a.slots = nil, nil, nil, nil
}

// entryFunc yields the intermediate and value parts for the cursor's current
// position. done, when set, runs once the parts have been packed.
type entryFunc func(it *pebble.Iterator) (intermediate, value []byte, present bool, done func(), err error)

// fetch fills up to size slots from the cursor, advancing it past every entry
// it packs.
func fetch(c *cursor, size, bufferSize int, entry entryFunc) (Ptr, error) {
	if size <= 0 {
		return Nil, errors.Wrapf(ErrBadArgument, "array size %d", size)
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	a := &array{slots: make([]Slot, 0, min(size, initialSlots))}
	n := 0
	for n < size && c.iter.Valid() {
		intermediate, value, present, done, err := entry(c.iter)
		if err != nil {
			a.free()
			return Nil, err
		}
		s, ok := a.pack(bufferSize, c.iter.Key(), intermediate, value, present)
		if done != nil {
			done()
		}
		if !ok {
			break
		}
		a.slots = append(a.slots, s)
		n++
		c.iter.Next()
	}
	if err := c.check(c.iter.Valid()); err != nil {
		a.free()
		return Nil, err
	}
	if n < size {
		a.slots = append(a.slots, Slot{Buffer: Unused})
	}

	a.views = make([][]byte, len(a.buffers))
	for i, b := range a.buffers {
		a.views[i] = *b
	}
	return register(a), nil
}

// NextArray fetches up to size entries starting at the cursor's current
// position. Fewer entries come back when the cursor runs out or the buffer
// budget is spent.
func NextArray(cursorPtr Ptr, size, bufferSize int) (Ptr, error) {
	c, err := acquire[*cursor](cursorPtr)
	if err != nil {
		return Nil, err
	}
	defer c.exit()

	return fetch(c, size, bufferSize, func(it *pebble.Iterator) ([]byte, []byte, bool, func(), error) {
		v, err := it.ValueAndErr()
		if err != nil {
			return nil, nil, false, nil, errors.Wrap(err, "next array")
		}
		return nil, v, true, nil, nil
	})
}

// NextIndirectArray is NextArray over index entries: each entry's value is a
// primary key, resolved against dbp within the same call.
func NextIndirectArray(dbp, cursorPtr Ptr, size, bufferSize int, ro ReadOptions) (Ptr, error) {
	d, err := acquire[*database](dbp)
	if err != nil {
		return Nil, err
	}
	defer d.exit()
	c, err := acquire[*cursor](cursorPtr)
	if err != nil {
		return Nil, err
	}
	defer c.exit()
	if c.db != dbp {
		return Nil, ErrOwnerMismatch
	}
	r, _, done, err := d.reader(dbp, ro)
	if err != nil {
		return Nil, err
	}
	defer done()

	return fetch(c, size, bufferSize, func(it *pebble.Iterator) ([]byte, []byte, bool, func(), error) {
		primary, err := it.ValueAndErr()
		if err != nil {
			return nil, nil, false, nil, errors.Wrap(err, "next indirect array")
		}
		v, closer, found, err := get(r, primary)
		if err != nil || !found {
			return primary, nil, false, nil, err
		}
		return primary, v, true, func() { closeValue(closer, "next indirect array") }, nil
	})
}

// ArraySlots exposes the slot list and backing buffers of an array. Both stay
// valid until ReleaseArray; the buffers go back to a shared pool afterwards.
func ArraySlots(p Ptr) ([]Slot, [][]byte, error) {
	a, err := acquire[*array](p)
	if err != nil {
		return nil, nil, err
	}
	defer a.exit()
	return a.slots, a.views, nil
}

func ReleaseArray(p Ptr) error {
	a, err := take[*array](p)
	if err != nil {
		return err
	}
	a.free()
	return nil
}
