package kv_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/kvlayer/internal/testutils"
	"github.com/eigerco/kvlayer/pkg/kv"
)

func TestSnapshotIsolation(t *testing.T) {
	db, _ := testutils.OpenDB(t, nil)
	require.NoError(t, db.Put(kv.Bytes("k"), kv.Bytes("v1"), nil))
	require.NoError(t, db.Put(kv.Bytes("gone"), kv.Bytes("x"), nil))

	snap, err := db.NewSnapshot()
	require.NoError(t, err)
	defer snap.Close() //nolint:errcheck

	require.NoError(t, db.Put(kv.Bytes("k"), kv.Bytes("v2"), nil))
	require.NoError(t, db.Put(kv.Bytes("new"), kv.Bytes("n"), nil))
	require.NoError(t, db.Delete(kv.Bytes("gone"), nil))

	v, err := snap.Get(kv.Bytes("k"))
	require.NoError(t, err)
	assert.Equal(t, "v1", v.String())

	live, err := db.Get(kv.Bytes("k"), nil)
	require.NoError(t, err)
	assert.Equal(t, "v2", live.String())
	require.NoError(t, live.Close())

	v2, err := db.Get(kv.Bytes("gone"), &kv.ReadOptions{Snapshot: snap})
	require.NoError(t, err)
	require.NotNil(t, v2)
	assert.Equal(t, "x", v2.String())

	missing, err := snap.Get(kv.Bytes("new"))
	require.NoError(t, err)
	assert.Nil(t, missing)

	c, err := snap.NewCursor()
	require.NoError(t, err)
	assert.Same(t, snap, c.Snapshot())
	require.NoError(t, c.SeekToFirst())
	assert.Equal(t, []testutils.KV{{Key: "gone", Value: "x"}, {Key: "k", Value: "v1"}}, testutils.Collect(t, c))

	// Reads through the snapshot close with it
	require.NoError(t, snap.Close())
	assert.True(t, v.Closed())
	assert.True(t, v2.Closed())
	assert.True(t, c.Closed())

	_, err = snap.Get(kv.Bytes("k"))
	assert.ErrorIs(t, err, kv.ErrUseAfterClose)
	_, err = db.NewCursor(&kv.ReadOptions{Snapshot: snap})
	assert.ErrorIs(t, err, kv.ErrUseAfterClose)

	// The database itself is unaffected
	live, err = db.Get(kv.Bytes("new"), nil)
	require.NoError(t, err)
	assert.Equal(t, "n", live.String())
	require.NoError(t, live.Close())
}

func TestSnapshotIndirect(t *testing.T) {
	db, _ := testutils.OpenDB(t, nil)
	require.NoError(t, db.Put(kv.Bytes("i/a"), kv.Bytes("p/a"), nil))
	require.NoError(t, db.Put(kv.Bytes("p/a"), kv.Bytes("old"), nil))

	snap, err := db.NewSnapshot()
	require.NoError(t, err)
	defer snap.Close() //nolint:errcheck

	require.NoError(t, db.Put(kv.Bytes("p/a"), kv.Bytes("new"), nil))

	v, err := db.IndirectGet(kv.Bytes("i/a"), &kv.ReadOptions{Snapshot: snap})
	require.NoError(t, err)
	assert.Equal(t, "old", v.String())

	// Indirect arrays from a snapshot cursor resolve in the same snapshot
	c, err := snap.NewCursor()
	require.NoError(t, err)
	require.NoError(t, c.SeekTo(kv.Bytes("i/")))
	r, err := c.NextIndirectArray(db, 1, 0, nil)
	require.NoError(t, err)
	val, ok, err := r.Value(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "old", string(val))

	// An explicit live read overrides it
	require.NoError(t, c.SeekTo(kv.Bytes("i/")))
	r2, err := c.NextIndirectArray(db, 1, 0, &kv.ReadOptions{})
	require.NoError(t, err)
	val, ok, err = r2.Value(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", string(val))
}

func TestSnapshotOfAnotherDatabase(t *testing.T) {
	db1, _ := testutils.OpenDB(t, nil)
	db2, _ := testutils.OpenDB(t, nil)

	snap, err := db1.NewSnapshot()
	require.NoError(t, err)
	defer snap.Close() //nolint:errcheck

	ro := &kv.ReadOptions{Snapshot: snap}
	_, err = db2.Get(kv.Bytes("k"), ro)
	assert.ErrorIs(t, err, kv.ErrInvalidArgument)
	_, err = db2.NewCursor(ro)
	assert.ErrorIs(t, err, kv.ErrInvalidArgument)
}
