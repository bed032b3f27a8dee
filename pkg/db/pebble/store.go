package pebble

import (
	"github.com/eigerco/kvlayer/pkg/db"
	"github.com/eigerco/kvlayer/pkg/kv"
	"github.com/eigerco/kvlayer/pkg/log"
)

// DefaultScanBatchSize is the number of entries an iterator fetches per
// round trip when none is configured.
const DefaultScanBatchSize = 64

// KVStore adapts a kv.DB to the byte-slice db.KVStore interface. Values it
// returns are copies and outlive the store.
type KVStore struct {
	db            *kv.DB
	scanBatchSize int
}

var _ db.KVStore = (*KVStore)(nil)

// NewKVStore opens the store at path. scanBatchSize <= 0 selects
// DefaultScanBatchSize.
func NewKVStore(path string, opts kv.OpenOptions, scanBatchSize int) (*KVStore, error) {
	d, err := kv.Open(path, &opts)
	if err != nil {
		return nil, err
	}
	if scanBatchSize <= 0 {
		scanBatchSize = DefaultScanBatchSize
	}
	log.Root.Debug().Str("path", path).Int("scan_batch_size", scanBatchSize).Msg("kv store opened")
	return &KVStore{db: d, scanBatchSize: scanBatchSize}, nil
}

// DB exposes the underlying handle for callers that need cursors or indirect
// lookups.
func (p *KVStore) DB() *kv.DB {
	return p.db
}

func (p *KVStore) Get(key []byte) ([]byte, error) {
	return copyValue(p.db.Get(kv.Bytes(key), nil))
}

func (p *KVStore) Put(key, value []byte) error {
	return p.db.Put(kv.Bytes(key), kv.Bytes(value), &kv.WriteOptions{Sync: true})
}

func (p *KVStore) Delete(key []byte) error {
	return p.db.Delete(kv.Bytes(key), &kv.WriteOptions{Sync: true})
}

func (p *KVStore) Close() error {
	return p.db.Close()
}

// copyValue turns a borrowed allocation into an owned slice and releases it.
func copyValue(a *kv.Allocation, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrNotFound
	}
	defer a.Close() //nolint:errcheck
	return a.Copy()
}
