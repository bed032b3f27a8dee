package kv

import (
	"fmt"

	"github.com/eigerco/kvlayer/internal/engine"
	"github.com/eigerco/kvlayer/pkg/log"
)

// DB is the root handle of an open store. Every other handle is spawned from
// it, directly or through a Snapshot, and is closed before it when the
// database closes.
type DB struct {
	handle
	path     string
	options  OpenOptions
	children *HandlerSet
}

// Open opens the store at path. A nil opts means DefaultOpenOptions. Engine
// failures come back as *OpenError wrapping the engine's own error.
func Open(path string, opts *OpenOptions) (*DB, error) {
	o := resolveOpenOptions(opts)
	optsPtr, err := o.translate()
	if err != nil {
		return nil, err
	}
	ptr, err := engine.Open(path, optsPtr)
	if err != nil {
		if rerr := engine.ReleaseOptions(optsPtr); rerr != nil {
			log.Handles.Warn().Err(rerr).Msg("release options after failed open")
		}
		return nil, &OpenError{Path: path, Err: err}
	}

	d := &DB{path: path, options: o, children: newHandlerSet()}
	d.init(KindDatabase, ptr, optsPtr)
	d.preRelease = func() error {
		log.Handles.Debug().Str("path", d.path).Int("children", d.children.Len()).Msg("closing database")
		return d.children.closeAll()
	}
	return d, nil
}

// Destroy removes the store at path. It needs no open handle and succeeds when
// nothing is stored there.
func Destroy(path string, opts *OpenOptions) error {
	optsPtr, err := resolveOpenOptions(opts).translate()
	if err != nil {
		return err
	}
	err = engine.Destroy(path, optsPtr)
	if rerr := engine.ReleaseOptions(optsPtr); rerr != nil {
		log.Handles.Warn().Err(rerr).Msg("release options after destroy")
	}
	return engineErr("destroy", err)
}

func (d *DB) Path() string {
	return d.path
}

func (d *DB) Options() OpenOptions {
	return d.options
}

// readOptions translates ro for this database and returns the set that
// children of the read register in: the snapshot's when one is pinned.
func (d *DB) readOptions(ro *ReadOptions) (engine.ReadOptions, *HandlerSet, error) {
	r := DefaultReadOptions()
	if ro != nil {
		r = *ro
	}
	nro := engine.ReadOptions{FillCache: r.FillCache, VerifyChecksums: r.VerifyChecksums}
	if r.Snapshot == nil {
		return nro, d.children, nil
	}
	if r.Snapshot.db != d {
		return nro, nil, fmt.Errorf("snapshot of %s: %w", r.Snapshot.db.path, ErrInvalidArgument)
	}
	sp, err := r.Snapshot.get()
	if err != nil {
		return nro, nil, err
	}
	nro.Snapshot = sp
	return nro, r.Snapshot.children, nil
}

// Put writes value under key. Durability follows wo.Sync.
func (d *DB) Put(key, value Region, wo *WriteOptions) error {
	p, err := d.get()
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
	return engineErr("put", engine.Put(p, k, v, wo.sync()))
}

// Delete removes key. A missing key is not an error.
func (d *DB) Delete(key Region, wo *WriteOptions) error {
	p, err := d.get()
	if err != nil {
		return err
	}
	k, err := toView(key)
	if err != nil {
		return err
	}
	return engineErr("delete", engine.Delete(p, k, wo.sync()))
}

// Write applies every operation staged in b, in order, as one atomic unit.
// The batch keeps its contents.
func (d *DB) Write(b *WriteBatch, wo *WriteOptions) error {
	p, err := d.get()
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("nil batch: %w", ErrInvalidArgument)
	}
	if b.db != d {
		return fmt.Errorf("batch of %s: %w", b.db.path, ErrInvalidArgument)
	}
	bp, err := b.get()
	if err != nil {
		return err
	}
	return engineErr("write", engine.Write(p, bp, wo.sync()))
}

// Get returns the value stored under key, or a nil allocation when the key is
// absent. An empty value is present: it returns an allocation of length zero.
func (d *DB) Get(key Region, ro *ReadOptions) (*Allocation, error) {
	return d.read(key, ro, func(p engine.Ptr, nro engine.ReadOptions, k []byte) (engine.Ptr, error) {
		vp, err := engine.Get(p, nro, k)
		return vp, engineErr("get", err)
	})
}

// IndirectGet reads the index entry at key, whose value is a primary key, and
// returns the value stored under that primary key. The result is nil when
// either the index entry or the primary entry is absent.
func (d *DB) IndirectGet(key Region, ro *ReadOptions) (*Allocation, error) {
	return d.read(key, ro, func(p engine.Ptr, nro engine.ReadOptions, k []byte) (engine.Ptr, error) {
		vp, err := engine.IndirectGet(p, nro, k)
		return vp, engineErr("indirect get", err)
	})
}

// IndirectGetAt is IndirectGet for the index entry c is positioned on.
func (d *DB) IndirectGetAt(c *Cursor, ro *ReadOptions) (*Allocation, error) {
	if c == nil {
		return nil, fmt.Errorf("nil cursor: %w", ErrInvalidArgument)
	}
	if c.db != d {
		return nil, fmt.Errorf("cursor of %s: %w", c.db.path, ErrInvalidArgument)
	}
	cp, err := c.get()
	if err != nil {
		return nil, err
	}
	return d.read(Bytes(nil), ro, func(p engine.Ptr, nro engine.ReadOptions, _ []byte) (engine.Ptr, error) {
		vp, err := engine.IndirectGetAt(p, cp, nro)
		return vp, engineErr("indirect get", err)
	})
}

func (d *DB) read(key Region, ro *ReadOptions, fn func(p engine.Ptr, nro engine.ReadOptions, k []byte) (engine.Ptr, error)) (*Allocation, error) {
	p, err := d.get()
	if err != nil {
		return nil, err
	}
	k, err := toView(key)
	if err != nil {
		return nil, err
	}
	nro, set, err := d.readOptions(ro)
	if err != nil {
		return nil, err
	}

	var a *Allocation
	err = set.spawn(func() (*handle, error) {
		vp, err := fn(p, nro, k)
		if err != nil || vp == engine.Nil {
			return nil, err
		}
		a = newAllocation(vp)
		return &a.handle, nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// NewSnapshot captures the current state of the store.
func (d *DB) NewSnapshot() (*Snapshot, error) {
	p, err := d.get()
	if err != nil {
		return nil, err
	}
	var s *Snapshot
	err = d.children.spawn(func() (*handle, error) {
		sp, err := engine.NewSnapshot(p)
		if err != nil {
			return nil, engineErr("new snapshot", err)
		}
		s = newSnapshot(d, sp, p)
		return &s.handle, nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewCursor creates an unpositioned cursor. With ro.Snapshot set the cursor
// reads that snapshot and closes with it.
func (d *DB) NewCursor(ro *ReadOptions) (*Cursor, error) {
	p, err := d.get()
	if err != nil {
		return nil, err
	}
	nro, set, err := d.readOptions(ro)
	if err != nil {
		return nil, err
	}
	var c *Cursor
	err = set.spawn(func() (*handle, error) {
		cp, err := engine.NewCursor(p, nro)
		if err != nil {
			return nil, engineErr("new cursor", err)
		}
		var snap *Snapshot
		if ro != nil {
			snap = ro.Snapshot
		}
		c = newCursor(d, snap, cp)
		return &c.handle, nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewWriteBatch creates an empty batch for this database.
func (d *DB) NewWriteBatch() (*WriteBatch, error) {
	p, err := d.get()
	if err != nil {
		return nil, err
	}
	var b *WriteBatch
	err = d.children.spawn(func() (*handle, error) {
		bp, err := engine.NewBatch(p)
		if err != nil {
			return nil, engineErr("new write batch", err)
		}
		b = newWriteBatch(d, bp)
		return &b.handle, nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}
