package pebble

import (
	"sync/atomic"

	"github.com/eigerco/kvlayer/pkg/db"
	"github.com/eigerco/kvlayer/pkg/kv"
)

// Batch is a single-use write batch: after Commit or Close it rejects
// further operations.
type Batch struct {
	store *KVStore
	batch *kv.WriteBatch
	done  atomic.Bool
}

func (p *KVStore) NewBatch() (db.Batch, error) {
	b, err := p.db.NewWriteBatch()
	if err != nil {
		return nil, err
	}
	return &Batch{store: p, batch: b}, nil
}

func (b *Batch) Put(key, value []byte) error {
	if b.done.Load() {
		return ErrBatchDone
	}
	return b.batch.Put(kv.Bytes(key), kv.Bytes(value))
}

func (b *Batch) Delete(key []byte) error {
	if b.done.Load() {
		return ErrBatchDone
	}
	return b.batch.Delete(kv.Bytes(key))
}

func (b *Batch) Commit() error {
	if b.done.Load() {
		return ErrBatchDone
	}
	if err := b.store.db.Write(b.batch, &kv.WriteOptions{Sync: true}); err != nil {
		return err
	}
	if !b.done.CompareAndSwap(false, true) {
		return ErrBatchDone
	}
	return b.batch.Close()
}

func (b *Batch) Close() error {
	if !b.done.CompareAndSwap(false, true) {
		return nil
	}
	return b.batch.Close()
}
