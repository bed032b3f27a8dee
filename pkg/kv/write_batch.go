package kv

import "github.com/eigerco/kvlayer/internal/engine"

// WriteBatch stages puts and deletes in order. Nothing is visible to readers
// until DB.Write; closing an unwritten batch discards it.
type WriteBatch struct {
	handle
	db *DB
}

func newWriteBatch(d *DB, ptr engine.Ptr) *WriteBatch {
	b := &WriteBatch{db: d}
	b.init(KindWriteBatch, ptr, engine.Nil)
	return b
}

func (b *WriteBatch) Put(key, value Region) error {
	p, err := b.get()
	if err != nil {
		return err
	}
	k, err := toView(key)
	if err != nil {
		return err
	}
	v, err := toView(value)
	if err != nil {
		return err
	}
	return engineErr("batch put", engine.BatchPut(p, k, v))
}

func (b *WriteBatch) Delete(key Region) error {
	p, err := b.get()
	if err != nil {
		return err
	}
	k, err := toView(key)
	if err != nil {
		return err
	}
	return engineErr("batch delete", engine.BatchDelete(p, k))
}

// Count returns the number of staged operations.
func (b *WriteBatch) Count() (int, error) {
	p, err := b.get()
	if err != nil {
		return 0, err
	}
	n, err := engine.BatchCount(p)
	return n, engineErr("batch count", err)
}

// Clear drops every staged operation.
func (b *WriteBatch) Clear() error {
	p, err := b.get()
	if err != nil {
		return err
	}
	return engineErr("batch clear", engine.BatchClear(p))
}
