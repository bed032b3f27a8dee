package pebble

import (
	"fmt"

	"github.com/eigerco/kvlayer/pkg/db"
	"github.com/eigerco/kvlayer/pkg/kv"
)

type Snapshot struct {
	snap          *kv.Snapshot
	scanBatchSize int
}

func (p *KVStore) NewSnapshot() (db.Snapshot, error) {
	s, err := p.db.NewSnapshot()
	if err != nil {
		return nil, err
	}
	return &Snapshot{snap: s, scanBatchSize: p.scanBatchSize}, nil
}

func (s *Snapshot) Get(key []byte) ([]byte, error) {
	return copyValue(s.snap.Get(kv.Bytes(key)))
}

func (s *Snapshot) NewIterator(start, end []byte) (db.Iterator, error) {
	c, err := s.snap.NewCursor()
	if err != nil {
		return nil, fmt.Errorf(ErrInIteratorCreation, err)
	}
	return newIterator(c, start, end, s.scanBatchSize), nil
}

// Close releases the snapshot and every iterator still reading it.
func (s *Snapshot) Close() error {
	return s.snap.Close()
}
