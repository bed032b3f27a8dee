package kv_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/kvlayer/internal/engine"
	"github.com/eigerco/kvlayer/internal/testutils"
	"github.com/eigerco/kvlayer/pkg/kv"
)

func TestDatabase(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T, db *kv.DB)
	}{
		{
			name: "put_get_delete",
			fn:   testPutGetDelete,
		},
		{
			name: "absent_is_not_empty",
			fn:   testAbsentIsNotEmpty,
		},
		{
			name: "allocation_as_region",
			fn:   testAllocationAsRegion,
		},
		{
			name: "invalid_regions",
			fn:   testInvalidRegions,
		},
		{
			name: "indirect_get",
			fn:   testIndirectGet,
		},
		{
			name: "binary_data",
			fn:   testBinaryData,
		},
		{
			name: "use_after_close",
			fn:   testUseAfterClose,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db, _ := testutils.OpenDB(t, nil)
			tc.fn(t, db)
		})
	}
}

func testPutGetDelete(t *testing.T, db *kv.DB) {
	err := db.Put(kv.Bytes("k"), kv.Bytes("v"), nil)
	require.NoError(t, err)

	v, err := db.Get(kv.Bytes("k"), nil)
	require.NoError(t, err)
	require.NotNil(t, v)
	got, err := v.Copy()
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	require.NoError(t, v.Close())

	err = db.Put(kv.Bytes("k"), kv.Bytes("v2"), &kv.WriteOptions{Sync: true})
	require.NoError(t, err)
	v, err = db.Get(kv.Bytes("k"), nil)
	require.NoError(t, err)
	assert.Equal(t, "v2", v.String())
	require.NoError(t, v.Close())

	err = db.Delete(kv.Bytes("k"), nil)
	require.NoError(t, err)
	v, err = db.Get(kv.Bytes("k"), nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	// Deleting a missing key is not an error
	err = db.Delete(kv.Bytes("never-written"), &kv.WriteOptions{Sync: true})
	assert.NoError(t, err)
}

func testAbsentIsNotEmpty(t *testing.T, db *kv.DB) {
	require.NoError(t, db.Put(kv.Bytes("empty"), kv.Bytes(nil), nil))

	v, err := db.Get(kv.Bytes("empty"), nil)
	require.NoError(t, err)
	require.NotNil(t, v)
	b, err := v.Bytes()
	require.NoError(t, err)
	assert.Len(t, b, 0)
	require.NoError(t, v.Close())

	v, err = db.Get(kv.Bytes("missing"), nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func testAllocationAsRegion(t *testing.T, db *kv.DB) {
	require.NoError(t, db.Put(kv.Bytes("src"), kv.Bytes("payload"), nil))

	v, err := db.Get(kv.Bytes("src"), nil)
	require.NoError(t, err)
	defer v.Close() //nolint:errcheck

	// Borrowed engine memory works as key and value
	require.NoError(t, db.Put(v, v, nil))

	got, err := db.Get(kv.Bytes("payload"), nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "payload", got.String())
	require.NoError(t, got.Close())
}

func testInvalidRegions(t *testing.T, db *kv.DB) {
	err := db.Put(nil, kv.Bytes("v"), nil)
	assert.ErrorIs(t, err, kv.ErrInvalidArgument)

	err = db.Put(kv.Bytes("k"), nil, nil)
	assert.ErrorIs(t, err, kv.ErrInvalidArgument)

	var nilAlloc *kv.Allocation
	err = db.Put(nilAlloc, kv.Bytes("v"), nil)
	assert.ErrorIs(t, err, kv.ErrInvalidArgument)

	require.NoError(t, db.Put(kv.Bytes("k"), kv.Bytes("v"), nil))
	v, err := db.Get(kv.Bytes("k"), nil)
	require.NoError(t, err)
	require.NoError(t, v.Close())

	err = db.Put(kv.Bytes("k2"), v, nil)
	assert.ErrorIs(t, err, kv.ErrInvalidArgument)

	_, err = db.Get(nil, nil)
	assert.ErrorIs(t, err, kv.ErrInvalidArgument)

	err = db.Delete(v, nil)
	assert.ErrorIs(t, err, kv.ErrInvalidArgument)
}

func testIndirectGet(t *testing.T, db *kv.DB) {
	index := testutils.SeedIndex(t, db, 5)
	require.NoError(t, db.Put(kv.Bytes("i/dangling"), kv.Bytes("p/missing"), nil))

	for _, e := range index {
		direct, err := db.Get(kv.Bytes(e.Value), nil)
		require.NoError(t, err)
		require.NotNil(t, direct)

		indirect, err := db.IndirectGet(kv.Bytes(e.Key), nil)
		require.NoError(t, err)
		require.NotNil(t, indirect)

		assert.Equal(t, direct.String(), indirect.String())
		require.NoError(t, direct.Close())
		require.NoError(t, indirect.Close())
	}

	v, err := db.IndirectGet(kv.Bytes("i/none"), nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = db.IndirectGet(kv.Bytes("i/dangling"), nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	// Cursor-derived lookup
	c, err := db.NewCursor(nil)
	require.NoError(t, err)
	defer c.Close() //nolint:errcheck

	_, err = db.IndirectGetAt(c, nil)
	assert.ErrorIs(t, err, kv.ErrIteratorInvalid)

	require.NoError(t, c.SeekTo(kv.Bytes(index[2].Key)))
	v, err = db.IndirectGetAt(c, nil)
	require.NoError(t, err)
	require.NotNil(t, v)
	want, err := db.Get(kv.Bytes(index[2].Value), nil)
	require.NoError(t, err)
	assert.Equal(t, want.String(), v.String())
	require.NoError(t, want.Close())
	require.NoError(t, v.Close())
}

func testBinaryData(t *testing.T, db *kv.DB) {
	for _, size := range []int{1, 32, 1 << 16} {
		key := append([]byte{0x00}, testutils.RandomBytes(t, 16)...)
		value := testutils.RandomBytes(t, size)
		require.NoError(t, db.Put(kv.Bytes(key), kv.Bytes(value), nil))

		v, err := db.Get(kv.Bytes(key), nil)
		require.NoError(t, err)
		got, err := v.Copy()
		require.NoError(t, err)
		assert.Equal(t, value, got)
		assert.Equal(t, size, v.Len())
		require.NoError(t, v.Close())
		assert.Equal(t, 0, v.Len())
	}
}

func testUseAfterClose(t *testing.T, db *kv.DB) {
	require.NoError(t, db.Close())
	assert.True(t, db.Closed())

	err := db.Put(kv.Bytes("k"), kv.Bytes("v"), nil)
	assert.ErrorIs(t, err, kv.ErrUseAfterClose)

	err = db.Delete(kv.Bytes("k"), nil)
	assert.ErrorIs(t, err, kv.ErrUseAfterClose)

	_, err = db.Get(kv.Bytes("k"), nil)
	assert.ErrorIs(t, err, kv.ErrUseAfterClose)

	_, err = db.IndirectGet(kv.Bytes("k"), nil)
	assert.ErrorIs(t, err, kv.ErrUseAfterClose)

	_, err = db.NewCursor(nil)
	assert.ErrorIs(t, err, kv.ErrUseAfterClose)

	_, err = db.NewSnapshot()
	assert.ErrorIs(t, err, kv.ErrUseAfterClose)

	_, err = db.NewWriteBatch()
	assert.ErrorIs(t, err, kv.ErrUseAfterClose)

	// Double close should not error
	assert.NoError(t, db.Close())
}

func TestOpen(t *testing.T) {
	t.Run("missing_path_without_create", func(t *testing.T) {
		baseline := engine.Live()
		opts := kv.DefaultOpenOptions()
		opts.CreateIfMissing = false

		db, err := kv.Open(filepath.Join(t.TempDir(), "absent"), &opts)
		assert.Nil(t, db)
		assert.ErrorIs(t, err, kv.ErrOpenFailure)

		var openErr *kv.OpenError
		require.ErrorAs(t, err, &openErr)
		assert.NotNil(t, openErr.Err)

		// The translated options were released on the failure path
		assert.Equal(t, baseline, engine.Live())
	})

	t.Run("error_if_exists", func(t *testing.T) {
		path := t.TempDir()
		db, err := kv.Open(path, nil)
		require.NoError(t, err)
		require.NoError(t, db.Close())

		opts := kv.DefaultOpenOptions()
		opts.ErrorIfExists = true
		_, err = kv.Open(path, &opts)
		assert.ErrorIs(t, err, kv.ErrOpenFailure)
	})

	t.Run("lock_held", func(t *testing.T) {
		db, path := testutils.OpenDB(t, nil)

		_, err := kv.Open(path, nil)
		assert.ErrorIs(t, err, kv.ErrOpenFailure)
		assert.ErrorIs(t, err, engine.ErrLockHeld)

		// The first handle is unaffected
		assert.NoError(t, db.Put(kv.Bytes("k"), kv.Bytes("v"), nil))
	})

	t.Run("negative_option", func(t *testing.T) {
		baseline := engine.Live()
		opts := kv.DefaultOpenOptions()
		opts.BlockSize = -1

		_, err := kv.Open(t.TempDir(), &opts)
		assert.ErrorIs(t, err, kv.ErrInvalidArgument)
		assert.Equal(t, baseline, engine.Live())
	})

	t.Run("tuned_options", func(t *testing.T) {
		opts := kv.OpenOptions{
			CreateIfMissing:       true,
			ParanoidChecks:        true,
			WriteBufferSize:       1 << 20,
			MaxOpenFiles:          64,
			CacheSize:             1 << 20,
			BlockSize:             1024,
			BlockRestartInterval:  8,
			MaxFileSize:           1 << 20,
			BloomFilterBitsPerKey: 10,
			RepairOnCorruption:    true,
		}
		db, _ := testutils.OpenDB(t, &opts)
		assert.Equal(t, opts, db.Options())

		require.NoError(t, db.Put(kv.Bytes("k"), kv.Bytes("v"), nil))
		v, err := db.Get(kv.Bytes("k"), &kv.ReadOptions{VerifyChecksums: true})
		require.NoError(t, err)
		assert.Equal(t, "v", v.String())
		require.NoError(t, v.Close())
	})
}

func TestDestroy(t *testing.T) {
	path := t.TempDir()
	db, err := kv.Open(path, nil)
	require.NoError(t, err)

	require.NoError(t, db.Put(kv.Bytes("a"), kv.Bytes("1"), nil))
	require.NoError(t, db.Put(kv.Bytes("b"), kv.Bytes("2"), nil))

	c, err := db.NewCursor(nil)
	require.NoError(t, err)
	require.NoError(t, c.SeekToFirst())
	assert.Equal(t, []testutils.KV{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}, testutils.Collect(t, c))

	// A live store can't be destroyed
	err = kv.Destroy(path, nil)
	assert.ErrorIs(t, err, kv.ErrEngineFailure)
	assert.ErrorIs(t, err, engine.ErrLockHeld)

	require.NoError(t, db.Close())
	require.NoError(t, kv.Destroy(path, nil))

	db, err = kv.Open(path, nil)
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	c, err = db.NewCursor(nil)
	require.NoError(t, err)
	require.NoError(t, c.SeekToFirst())
	ok, err := c.Valid()
	require.NoError(t, err)
	assert.False(t, ok)

	// Destroying a store that does not exist is not an error
	assert.NoError(t, kv.Destroy(filepath.Join(t.TempDir(), "nothing-here"), nil))
}
