package engine

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

type batch struct {
	guard
	b  *pebble.Batch
	db Ptr
}

func NewBatch(dbp Ptr) (Ptr, error) {
	d, err := acquire[*database](dbp)
	if err != nil {
		return Nil, err
	}
	defer d.exit()
	return register(&batch{b: d.db.NewBatch(), db: dbp}), nil
}

func BatchPut(p Ptr, key, value []byte) error {
	b, err := acquire[*batch](p)
	if err != nil {
		return err
	}
	defer b.exit()
	return errors.Wrap(b.b.Set(key, value, nil), "batch put")
}

func BatchDelete(p Ptr, key []byte) error {
	b, err := acquire[*batch](p)
	if err != nil {
		return err
	}
	defer b.exit()
	return errors.Wrap(b.b.Delete(key, nil), "batch delete")
}

// BatchCount returns the number of staged operations.
func BatchCount(p Ptr) (int, error) {
	b, err := acquire[*batch](p)
	if err != nil {
		return 0, err
	}
	defer b.exit()
	return int(b.b.Count()), nil
}

// BatchClear drops every staged operation.
func BatchClear(p Ptr) error {
	b, err := acquire[*batch](p)
	if err != nil {
		return err
	}
	defer b.exit()
	b.b.Reset()
	return nil
}

func ReleaseBatch(p Ptr) error {
	b, err := take[*batch](p)
	if err != nil {
		return err
	}
	return errors.Wrap(b.b.Close(), "release batch")
}
