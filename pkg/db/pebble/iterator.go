package pebble

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/eigerco/kvlayer/pkg/db"
	"github.com/eigerco/kvlayer/pkg/kv"
	"github.com/eigerco/kvlayer/pkg/log"
)

// window is the part of a fetched batch the iterator reads.
type window interface {
	Size() int
	Key(i int) ([]byte, error)
	Value(i int) ([]byte, bool, error)
	Close() error
}

// Iterator walks [start, end) in windows of NextArray results, so each
// round trip to the engine returns many entries.
type Iterator struct {
	cursor     *kv.Cursor
	start, end []byte
	batchSize  int

	window     window
	pos        int
	positioned bool
	done       bool
	err        error
}

func (p *KVStore) NewIterator(start, end []byte) (db.Iterator, error) {
	c, err := p.db.NewCursor(nil)
	if err != nil {
		return nil, fmt.Errorf(ErrInIteratorCreation, err)
	}
	return newIterator(c, start, end, p.scanBatchSize), nil
}

func newIterator(c *kv.Cursor, start, end []byte, batchSize int) *Iterator {
	return &Iterator{
		cursor:    c,
		start:     bytes.Clone(start),
		end:       bytes.Clone(end),
		batchSize: batchSize,
	}
}

func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	// If the iterator is un-positioned, position it at the start of the range
	if !it.positioned {
		it.positioned = true
		var err error
		if it.start == nil {
			err = it.cursor.SeekToFirst()
		} else {
			err = it.cursor.SeekTo(kv.Bytes(it.start))
		}
		if err != nil {
			return it.fail(err)
		}
	} else {
		it.pos++
	}

	if it.window == nil || it.pos >= it.window.Size() {
		if !it.fill() {
			return false
		}
	}

	key, err := it.window.Key(it.pos)
	if err != nil {
		return it.fail(err)
	}
	if it.end != nil && bytes.Compare(key, it.end) >= 0 {
		it.finish()
		return false
	}
	return true
}

// fill replaces the current window with the next batch from the cursor.
func (it *Iterator) fill() bool {
	if it.window != nil {
		w := it.window
		it.window = nil
		if err := it.closeWindow(w); err != nil {
			return it.fail(err)
		}
	}
	w, err := it.cursor.NextArray(it.batchSize, 0)
	if err != nil {
		return it.fail(err)
	}
	if w.Size() == 0 {
		if err := it.closeWindow(w); err != nil {
			return it.fail(err)
		}
		it.finish()
		return false
	}
	it.window, it.pos = w, 0
	return true
}

func (it *Iterator) fail(err error) bool {
	if it.err == nil {
		it.err = err
	}
	it.finish()
	return false
}

func (it *Iterator) finish() {
	it.done = true
	if it.window != nil {
		w := it.window
		it.window = nil
		if err := it.closeWindow(w); err != nil && it.err == nil {
			it.err = err
		}
	}
}

func (it *Iterator) closeWindow(w window) error {
	err := w.Close()
	if err != nil {
		log.Root.Warn().Err(err).Msg("release iterator window")
	}
	return err
}

func (it *Iterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	key, err := it.window.Key(it.pos)
	if err != nil {
		return nil
	}
	return bytes.Clone(key)
}

func (it *Iterator) Value() ([]byte, error) {
	if !it.Valid() {
		return nil, ErrIteratorInvalid
	}

	val, ok, err := it.window.Value(it.pos)
	if err != nil {
		return nil, fmt.Errorf(ErrIteratorValue, err)
	}
	if !ok {
		return nil, ErrNotFound
	}

	result := make([]byte, len(val))
	copy(result, val)
	return result, nil
}

func (it *Iterator) Valid() bool {
	return !it.done && it.window != nil && it.pos < it.window.Size()
}

func (it *Iterator) Error() error {
	return it.err
}

// Close releases the iterator. A window that fails to release here is
// reported alongside the cursor's own error.
func (it *Iterator) Close() error {
	it.done = true
	var werr error
	if it.window != nil {
		w := it.window
		it.window = nil
		werr = it.closeWindow(w)
	}
	return errors.Join(werr, it.cursor.Close())
}
