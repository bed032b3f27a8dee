package engine

import (
	"io"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/eigerco/kvlayer/pkg/log"
)

type database struct {
	guard
	db       *pebble.DB
	path     string
	paranoid bool
}

// openPaths tracks the stores open in this process. pebble's directory lock
// does not reliably exclude a second open from the same process.
var openPaths = struct {
	sync.Mutex
	m map[string]struct{}
}{m: make(map[string]struct{})}

func claimPath(path string) error {
	openPaths.Lock()
	defer openPaths.Unlock()
	if _, ok := openPaths.m[path]; ok {
		return errors.Wrapf(ErrLockHeld, "%s", path)
	}
	openPaths.m[path] = struct{}{}
	return nil
}

func unclaimPath(path string) {
	openPaths.Lock()
	delete(openPaths.m, path)
	openPaths.Unlock()
}

func isOpen(path string) bool {
	openPaths.Lock()
	defer openPaths.Unlock()
	_, ok := openPaths.m[path]
	return ok
}

func cleanPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Open opens the store at path with the options object optsPtr. The options
// object is not consumed; the caller still owns it.
func Open(path string, optsPtr Ptr) (Ptr, error) {
	o, err := acquire[*options](optsPtr)
	if err != nil {
		return Nil, err
	}
	defer o.exit()

	key := cleanPath(path)
	if err := claimPath(key); err != nil {
		return Nil, err
	}
	pdb, err := pebble.Open(path, o.opts)
	if err != nil {
		unclaimPath(key)
		if o.repair {
			log.Engine.Warn().Err(err).Str("path", path).Msg("repair requested but the engine has no repair primitive")
		}
		return Nil, err
	}

	log.Engine.Info().Str("path", path).Msg("store opened")
	return register(&database{db: pdb, path: key, paranoid: o.paranoid}), nil
}

// ReleaseDB closes the store. Every snapshot, cursor, batch and value derived
// from it must have been released first.
func ReleaseDB(p Ptr) error {
	d, err := take[*database](p)
	if err != nil {
		return err
	}
	defer unclaimPath(d.path)
	if err := d.db.Close(); err != nil {
		return errors.Wrap(err, "close")
	}
	log.Engine.Info().Str("path", d.path).Msg("store closed")
	return nil
}

// Destroy removes everything stored at path. A missing path is not an error.
func Destroy(path string, optsPtr Ptr) error {
	o, err := acquire[*options](optsPtr)
	if err != nil {
		return err
	}
	defer o.exit()

	if isOpen(cleanPath(path)) {
		return errors.Wrapf(ErrLockHeld, "destroy %s", path)
	}
	fs := o.opts.FS
	if fs == nil {
		fs = vfs.Default
	}
	if err := fs.RemoveAll(path); err != nil {
		return errors.Wrapf(err, "destroy %s", path)
	}
	log.Engine.Info().Str("path", path).Msg("store destroyed")
	return nil
}

func writeOptions(sync bool) *pebble.WriteOptions {
	if sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

func Put(dbp Ptr, key, value []byte, sync bool) error {
	d, err := acquire[*database](dbp)
	if err != nil {
		return err
	}
	defer d.exit()
	return errors.Wrap(d.db.Set(key, value, writeOptions(sync)), "put")
}

func Delete(dbp Ptr, key []byte, sync bool) error {
	d, err := acquire[*database](dbp)
	if err != nil {
		return err
	}
	defer d.exit()
	return errors.Wrap(d.db.Delete(key, writeOptions(sync)), "delete")
}

// Write applies the staged batch atomically. The staged batch is left as it
// was and may be written again.
func Write(dbp, batchPtr Ptr, sync bool) error {
	d, err := acquire[*database](dbp)
	if err != nil {
		return err
	}
	defer d.exit()
	b, err := acquire[*batch](batchPtr)
	if err != nil {
		return err
	}
	defer b.exit()
	if b.db != dbp {
		return ErrOwnerMismatch
	}

	commit := d.db.NewBatch()
	defer commit.Close()
	if err := commit.Apply(b.b, nil); err != nil {
		return errors.Wrap(err, "write")
	}
	return errors.Wrap(commit.Commit(writeOptions(sync)), "write")
}

// reader resolves the read source for ro: the snapshot when one is set, the
// live database otherwise. done must be called when the read is finished.
func (d *database) reader(dbp Ptr, ro ReadOptions) (r pebble.Reader, paranoid bool, done func(), err error) {
	paranoid = d.paranoid || ro.VerifyChecksums
	if ro.Snapshot == Nil {
		return d.db, paranoid, func() {}, nil
	}
	s, err := acquire[*snapshot](ro.Snapshot)
	if err != nil {
		return nil, false, nil, err
	}
	if s.db != dbp {
		s.exit()
		return nil, false, nil, ErrOwnerMismatch
	}
	return s.snap, paranoid, s.exit, nil
}

type value struct {
	guard
	data   []byte
	closer io.Closer
}

// get returns the value for key, or found=false when it is absent. On success
// the caller owns closer.
func get(r pebble.Reader, key []byte) (v []byte, closer io.Closer, found bool, err error) {
	v, closer, err = r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, errors.Wrap(err, "get")
	}
	return v, closer, true, nil
}

// closeValue releases a value that only lived for the duration of one call.
// Nobody is left to return the error to, so it is logged.
func closeValue(closer io.Closer, op string) {
	if err := closer.Close(); err != nil {
		log.Engine.Warn().Err(err).Str("op", op).Msg("release value")
	}
}

// Get looks key up and returns a value pointer, or Nil when key is absent. An
// empty value is present and yields a value of length zero.
func Get(dbp Ptr, ro ReadOptions, key []byte) (Ptr, error) {
	d, err := acquire[*database](dbp)
	if err != nil {
		return Nil, err
	}
	defer d.exit()
	r, _, done, err := d.reader(dbp, ro)
	if err != nil {
		return Nil, err
	}
	defer done()

	v, closer, found, err := get(r, key)
	if err != nil || !found {
		return Nil, err
	}
	return register(&value{data: v, closer: closer}), nil
}

// resolve reads the primary key an index entry points at and returns the
// primary value. found is false when the primary entry is missing.
func resolve(r pebble.Reader, primaryKey []byte) (Ptr, error) {
	v, closer, found, err := get(r, primaryKey)
	if err != nil || !found {
		return Nil, err
	}
	return register(&value{data: v, closer: closer}), nil
}

// IndirectGet reads the index entry at key, whose value is a primary key, and
// returns the value stored under that primary key. Nil means either level was
// absent.
func IndirectGet(dbp Ptr, ro ReadOptions, key []byte) (Ptr, error) {
	d, err := acquire[*database](dbp)
	if err != nil {
		return Nil, err
	}
	defer d.exit()
	r, _, done, err := d.reader(dbp, ro)
	if err != nil {
		return Nil, err
	}
	defer done()

	primary, closer, found, err := get(r, key)
	if err != nil || !found {
		return Nil, err
	}
	defer closeValue(closer, "indirect get")
	return resolve(r, primary)
}

// IndirectGetAt is IndirectGet for the index entry the cursor is positioned on.
func IndirectGetAt(dbp, cursorPtr Ptr, ro ReadOptions) (Ptr, error) {
	d, err := acquire[*database](dbp)
	if err != nil {
		return Nil, err
	}
	defer d.exit()
	c, err := acquire[*cursor](cursorPtr)
	if err != nil {
		return Nil, err
	}
	defer c.exit()
	if c.db != dbp {
		return Nil, ErrOwnerMismatch
	}
	if !c.iter.Valid() {
		return Nil, ErrNotPositioned
	}
	primary, err := c.iter.ValueAndErr()
	if err != nil {
		return Nil, errors.Wrap(err, "cursor value")
	}

	r, _, done, err := d.reader(dbp, ro)
	if err != nil {
		return Nil, err
	}
	defer done()
	return resolve(r, primary)
}

// ValueBytes returns the engine memory behind a value. It stays valid until
// ReleaseValue.
func ValueBytes(p Ptr) ([]byte, error) {
	v, err := acquire[*value](p)
	if err != nil {
		return nil, err
	}
	defer v.exit()
	return v.data, nil
}

func ReleaseValue(p Ptr) error {
	v, err := take[*value](p)
	if err != nil {
		return err
	}
	v.data = nil
	if v.closer == nil {
		return nil
	}
	return errors.Wrap(v.closer.Close(), "release value")
}
