package testutils

import (
	"crypto/rand"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eigerco/kvlayer/pkg/kv"
)

// KV is a copied key/value pair.
type KV struct {
	Key   string
	Value string
}

func RandomBytes(t *testing.T, n int) []byte {
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

// OpenDB opens a store in a fresh temporary directory and closes it when the
// test ends.
func OpenDB(t *testing.T, opts *kv.OpenOptions) (*kv.DB, string) {
	t.Helper()
	path := t.TempDir()
	db, err := kv.Open(path, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})
	return db, path
}

// Seed writes every pair in one batch.
func Seed(t *testing.T, db *kv.DB, pairs map[string]string) {
	t.Helper()
	b, err := db.NewWriteBatch()
	require.NoError(t, err)
	defer b.Close() //nolint:errcheck

	for k, v := range pairs {
		require.NoError(t, b.Put(kv.Bytes(k), kv.Bytes(v)))
	}
	require.NoError(t, db.Write(b, &kv.WriteOptions{Sync: true}))
}

// SeedIndex writes n primary entries "p/NNNN" and index entries "i/NNNN"
// pointing at them, in reverse order so index order differs from primary
// order. It returns the index entries sorted by key.
func SeedIndex(t *testing.T, db *kv.DB, n int) []KV {
	t.Helper()
	pairs := make(map[string]string, 2*n)
	index := make([]KV, 0, n)
	for i := 0; i < n; i++ {
		primary := fmt.Sprintf("p/%04d", i)
		secondary := fmt.Sprintf("i/%04d", n-1-i)
		pairs[primary] = fmt.Sprintf("value-%d", i)
		pairs[secondary] = primary
		index = append(index, KV{Key: secondary, Value: primary})
	}
	Seed(t, db, pairs)
	sort.Slice(index, func(i, j int) bool { return index[i].Key < index[j].Key })
	return index
}

// Collect single-steps c from its current position to exhaustion, copying
// every entry.
func Collect(t *testing.T, c *kv.Cursor) []KV {
	t.Helper()
	var out []KV
	for {
		ok, err := c.Valid()
		require.NoError(t, err)
		if !ok {
			return out
		}
		k, err := c.TransientKey()
		require.NoError(t, err)
		v, err := c.TransientValue()
		require.NoError(t, err)
		out = append(out, KV{Key: string(k), Value: string(v)})
		require.NoError(t, c.Next())
	}
}

// CollectArrays drains c with NextArray calls of the given size.
func CollectArrays(t *testing.T, c *kv.Cursor, size, bufferSize int) []KV {
	t.Helper()
	var out []KV
	for {
		r, err := c.NextArray(size, bufferSize)
		require.NoError(t, err)
		n := r.Size()
		for i := 0; i < n; i++ {
			k, err := r.Key(i)
			require.NoError(t, err)
			v, ok, err := r.Value(i)
			require.NoError(t, err)
			require.True(t, ok)
			out = append(out, KV{Key: string(k), Value: string(v)})
		}
		require.NoError(t, r.Close())
		if n == 0 {
			return out
		}
	}
}
