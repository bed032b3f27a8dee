package kv

import (
	"fmt"

	"github.com/eigerco/kvlayer/internal/engine"
	"github.com/eigerco/kvlayer/pkg/metrics"
)

// Cursor iterates the store in byte-lexicographic key order. A new cursor is
// unpositioned; Next and Prev on an invalid cursor do nothing.
//
// TransientKey and TransientValue alias engine memory that is only valid until
// the next positioning call or Close. Array results spawned by the cursor are
// closed with it.
type Cursor struct {
	handle
	db       *DB
	snapshot *Snapshot
	results  *HandlerSet
}

func newCursor(d *DB, snap *Snapshot, ptr engine.Ptr) *Cursor {
	c := &Cursor{db: d, snapshot: snap, results: newHandlerSet()}
	c.init(KindCursor, ptr, engine.Nil)
	c.preRelease = c.results.closeAll
	return c
}

// Snapshot returns the snapshot the cursor reads, nil for the live store.
func (c *Cursor) Snapshot() *Snapshot {
	return c.snapshot
}

func (c *Cursor) move(op string, fn func(engine.Ptr) error) error {
	p, err := c.get()
	if err != nil {
		return err
	}
	return engineErr(op, fn(p))
}

func (c *Cursor) SeekToFirst() error {
	return c.move("seek to first", engine.CursorSeekToFirst)
}

func (c *Cursor) SeekToLast() error {
	return c.move("seek to last", engine.CursorSeekToLast)
}

// SeekTo positions the cursor at the first key >= target.
func (c *Cursor) SeekTo(target Region) error {
	t, err := toView(target)
	if err != nil {
		return err
	}
	return c.move("seek", func(p engine.Ptr) error {
		return engine.CursorSeek(p, t)
	})
}

func (c *Cursor) Next() error {
	return c.move("next", engine.CursorNext)
}

func (c *Cursor) Prev() error {
	return c.move("prev", engine.CursorPrev)
}

func (c *Cursor) Valid() (bool, error) {
	p, err := c.get()
	if err != nil {
		return false, err
	}
	ok, err := engine.CursorValid(p)
	return ok, engineErr("valid", err)
}

// TransientKey returns the current key without copying it.
func (c *Cursor) TransientKey() ([]byte, error) {
	p, err := c.get()
	if err != nil {
		return nil, err
	}
	k, err := engine.CursorKey(p)
	return k, engineErr("key", err)
}

// TransientValue returns the current value without copying it.
func (c *Cursor) TransientValue() ([]byte, error) {
	p, err := c.get()
	if err != nil {
		return nil, err
	}
	v, err := engine.CursorValue(p)
	return v, engineErr("value", err)
}

func (c *Cursor) bufferSize(n int) int {
	if n > 0 {
		return n
	}
	if c.db.options.BlockSize > 0 {
		return c.db.options.BlockSize
	}
	return engine.DefaultBufferSize
}

// NextArray returns up to size entries starting at the current position and
// advances the cursor past exactly those entries. A short result is normal:
// the cursor ran out, or the entries filled the fetch's buffers. bufferSize
// <= 0 selects the database's block size.
func (c *Cursor) NextArray(size, bufferSize int) (*ArrayResult, error) {
	p, err := c.get()
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fmt.Errorf("array size %d: %w", size, ErrInvalidArgument)
	}
	bufferSize = c.bufferSize(bufferSize)

	var r *ArrayResult
	err = c.results.spawn(func() (*handle, error) {
		ap, err := engine.NextArray(p, size, bufferSize)
		if err != nil {
			return nil, engineErr("next array", err)
		}
		if r, err = newArrayResult(KindArrayResult, ap); err != nil {
			return nil, err
		}
		return &r.handle, nil
	})
	if err != nil {
		return nil, err
	}
	metrics.ArrayEntries.WithLabelValues("direct").Add(float64(r.size))
	metrics.ArrayFetchSize.WithLabelValues("direct").Observe(float64(r.size))
	return r, nil
}

// NextIndirectArray is NextArray over index entries: each value the cursor
// yields is a primary key, and the result carries the primary value resolved
// through d. A nil ro resolves against the cursor's own snapshot, if any.
func (c *Cursor) NextIndirectArray(d *DB, size, bufferSize int, ro *ReadOptions) (*IndirectArrayResult, error) {
	p, err := c.get()
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("nil database: %w", ErrInvalidArgument)
	}
	if size <= 0 {
		return nil, fmt.Errorf("array size %d: %w", size, ErrInvalidArgument)
	}
	if ro == nil {
		def := DefaultReadOptions()
		def.Snapshot = c.snapshot
		ro = &def
	}
	dp, err := d.get()
	if err != nil {
		return nil, err
	}
	nro, _, err := d.readOptions(ro)
	if err != nil {
		return nil, err
	}
	bufferSize = c.bufferSize(bufferSize)

	var r *IndirectArrayResult
	err = c.results.spawn(func() (*handle, error) {
		ap, err := engine.NextIndirectArray(dp, p, size, bufferSize, nro)
		if err != nil {
			return nil, engineErr("next indirect array", err)
		}
		base, err := newArrayResult(KindIndirectArrayResult, ap)
		if err != nil {
			return nil, err
		}
		r = &IndirectArrayResult{ArrayResult: base}
		return &base.handle, nil
	})
	if err != nil {
		return nil, err
	}
	metrics.ArrayEntries.WithLabelValues("indirect").Add(float64(r.size))
	metrics.ArrayFetchSize.WithLabelValues("indirect").Observe(float64(r.size))
	return r, nil
}
