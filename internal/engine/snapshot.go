package engine

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

type snapshot struct {
	guard
	snap *pebble.Snapshot
	db   Ptr
}

func NewSnapshot(dbp Ptr) (Ptr, error) {
	d, err := acquire[*database](dbp)
	if err != nil {
		return Nil, err
	}
	defer d.exit()
	return register(&snapshot{snap: d.db.NewSnapshot(), db: dbp}), nil
}

// ReleaseSnapshot releases a snapshot of the database dbp. Releasing against
// any other database fails and leaves the snapshot alive.
func ReleaseSnapshot(dbp, snapPtr Ptr) error {
	s, err := lookup[*snapshot](snapPtr)
	if err != nil {
		return err
	}
	if s.db != dbp {
		return ErrOwnerMismatch
	}
	if s, err = take[*snapshot](snapPtr); err != nil {
		return err
	}
	return errors.Wrap(s.snap.Close(), "release snapshot")
}
