package kv

import "github.com/eigerco/kvlayer/internal/engine"

// Snapshot is an immutable view of the store at the moment it was taken.
// Cursors and values read through it close with it.
type Snapshot struct {
	handle
	db       *DB
	children *HandlerSet
}

func newSnapshot(d *DB, ptr, dbPtr engine.Ptr) *Snapshot {
	s := &Snapshot{db: d, children: newHandlerSet()}
	s.init(KindSnapshot, ptr, dbPtr)
	s.preRelease = s.children.closeAll
	return s
}

func (s *Snapshot) readOptions() *ReadOptions {
	ro := DefaultReadOptions()
	ro.Snapshot = s
	return &ro
}

// Get is DB.Get pinned to the snapshot.
func (s *Snapshot) Get(key Region) (*Allocation, error) {
	return s.db.Get(key, s.readOptions())
}

// NewCursor is DB.NewCursor pinned to the snapshot.
func (s *Snapshot) NewCursor() (*Cursor, error) {
	return s.db.NewCursor(s.readOptions())
}
