package engine

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

type cursor struct {
	guard
	iter     *pebble.Iterator
	db       Ptr
	paranoid bool
}

// NewCursor creates an unpositioned cursor over the database, or over the
// snapshot named in ro.
func NewCursor(dbp Ptr, ro ReadOptions) (Ptr, error) {
	d, err := acquire[*database](dbp)
	if err != nil {
		return Nil, err
	}
	defer d.exit()
	r, paranoid, done, err := d.reader(dbp, ro)
	if err != nil {
		return Nil, err
	}
	defer done()

	iter, err := r.NewIter(nil)
	if err != nil {
		return Nil, errors.Wrap(err, "new cursor")
	}
	return register(&cursor{iter: iter, db: dbp, paranoid: paranoid}), nil
}

// check reports the iterator error. A move that leaves the cursor invalid is
// always checked, a successful one only in paranoid mode.
func (c *cursor) check(valid bool) error {
	if valid && !c.paranoid {
		return nil
	}
	return errors.Wrap(c.iter.Error(), "cursor")
}

func move(p Ptr, fn func(it *pebble.Iterator) bool) error {
	c, err := acquire[*cursor](p)
	if err != nil {
		return err
	}
	defer c.exit()
	return c.check(fn(c.iter))
}

func CursorSeekToFirst(p Ptr) error {
	return move(p, (*pebble.Iterator).First)
}

func CursorSeekToLast(p Ptr) error {
	return move(p, (*pebble.Iterator).Last)
}

// CursorSeek positions the cursor at the first key >= target.
func CursorSeek(p Ptr, target []byte) error {
	return move(p, func(it *pebble.Iterator) bool {
		return it.SeekGE(target)
	})
}

// CursorNext is a no-op on an invalid cursor.
func CursorNext(p Ptr) error {
	return move(p, func(it *pebble.Iterator) bool {
		if !it.Valid() {
			return false
		}
		return it.Next()
	})
}

// CursorPrev is a no-op on an invalid cursor.
func CursorPrev(p Ptr) error {
	return move(p, func(it *pebble.Iterator) bool {
		if !it.Valid() {
			return false
		}
		return it.Prev()
	})
}

func CursorValid(p Ptr) (bool, error) {
	c, err := acquire[*cursor](p)
	if err != nil {
		return false, err
	}
	defer c.exit()
	return c.iter.Valid(), nil
}

// CursorKey returns the engine memory of the current key. It stays valid
// until the next positioning call or the release of the cursor.
func CursorKey(p Ptr) ([]byte, error) {
	c, err := acquire[*cursor](p)
	if err != nil {
		return nil, err
	}
	defer c.exit()
	if !c.iter.Valid() {
		return nil, ErrNotPositioned
	}
	return c.iter.Key(), nil
}

// CursorValue is CursorKey for the current value.
func CursorValue(p Ptr) ([]byte, error) {
	c, err := acquire[*cursor](p)
	if err != nil {
		return nil, err
	}
	defer c.exit()
	if !c.iter.Valid() {
		return nil, ErrNotPositioned
	}
	v, err := c.iter.ValueAndErr()
	if err != nil {
		return nil, errors.Wrap(err, "cursor value")
	}
	return v, nil
}

func ReleaseCursor(p Ptr) error {
	c, err := take[*cursor](p)
	if err != nil {
		return err
	}
	return errors.Wrap(c.iter.Close(), "release cursor")
}
