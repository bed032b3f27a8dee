package pebble

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/kvlayer/pkg/db"
	"github.com/eigerco/kvlayer/pkg/kv"
	"github.com/eigerco/kvlayer/pkg/log"
)

func TestIterator(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store db.KVStore)
	}{
		{
			name: "full_range_iteration",
			fn:   testFullRangeIteration,
		},
		{
			name: "bounded_range_iteration",
			fn:   testBoundedRangeIteration,
		},
		{
			name: "iterator_validity",
			fn:   testIteratorValidity,
		},
		{
			name: "ordered_keys",
			fn:   testOrderedKeys,
		},
		{
			name: "empty_range",
			fn:   testEmptyRange,
		},
	}

	// Window sizes smaller than, equal to and larger than the data set
	for _, batchSize := range []int{1, 2, 3, 0} {
		for _, tc := range tests {
			t.Run(fmt.Sprintf("%s/batch_%d", tc.name, batchSize), func(t *testing.T) {
				store := newTestStore(t, batchSize)
				defer store.Close() //nolint:errcheck

				tc.fn(t, store)
			})
		}
	}
}

func testFullRangeIteration(t *testing.T, store db.KVStore) {
	// Prepare data
	data := map[string]string{
		"a": "value-a",
		"b": "value-b",
		"c": "value-c",
		"d": "value-d",
	}

	for k, v := range data {
		err := store.Put([]byte(k), []byte(v))
		require.NoError(t, err)
	}

	// Test full range iteration
	iter, err := store.NewIterator(nil, nil)
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck

	count := 0
	// First position the iterator at the start
	if iter.Next() {
		count++
		value, err := iter.Value()
		require.NoError(t, err)

		expectedValue, exists := data[string(iter.Key())]
		assert.True(t, exists)
		assert.Equal(t, []byte(expectedValue), value)

		// Then continue with the rest
		for iter.Next() {
			value, err := iter.Value()
			require.NoError(t, err)

			expectedValue, exists := data[string(iter.Key())]
			assert.True(t, exists)
			assert.Equal(t, []byte(expectedValue), value)
			count++
		}
	}
	assert.Equal(t, len(data), count)
}

func testBoundedRangeIteration(t *testing.T, store db.KVStore) {
	// Prepare data
	data := map[string]string{
		"a": "value-a",
		"b": "value-b",
		"c": "value-c",
		"d": "value-d",
		"e": "value-e",
	}

	for k, v := range data {
		err := store.Put([]byte(k), []byte(v))
		require.NoError(t, err)
	}

	// Test bounded range iteration (b to d)
	iter, err := store.NewIterator([]byte("b"), []byte("e"))
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck

	expected := map[string]string{
		"b": "value-b",
		"c": "value-c",
		"d": "value-d",
	}

	count := 0
	if iter.Next() {
		count++
		value, err := iter.Value()
		require.NoError(t, err)

		expectedValue, exists := expected[string(iter.Key())]
		assert.True(t, exists)
		assert.Equal(t, []byte(expectedValue), value)

		for iter.Next() {
			value, err := iter.Value()
			require.NoError(t, err)

			expectedValue, exists := expected[string(iter.Key())]
			assert.True(t, exists)
			assert.Equal(t, []byte(expectedValue), value)
			count++
		}
	}
	assert.Equal(t, len(expected), count)
}

func testIteratorValidity(t *testing.T, store db.KVStore) {
	// Prepare a few key-value pairs to ensure proper iteration
	testData := map[string]string{
		"key1": "value1",
		"key2": "value2",
	}

	for k, v := range testData {
		err := store.Put([]byte(k), []byte(v))
		require.NoError(t, err)
	}

	iter, err := store.NewIterator(nil, nil)
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck

	// Initial state - iterator is not positioned
	assert.False(t, iter.Valid())

	// First Next() should position at first element
	assert.True(t, iter.Next())
	assert.True(t, iter.Valid())

	val, err := iter.Value()
	require.NoError(t, err)
	assert.Contains(t, testData, string(iter.Key()))
	assert.Equal(t, testData[string(iter.Key())], string(val))

	// Should be able to move to second element
	assert.True(t, iter.Next())
	assert.True(t, iter.Valid())

	val, err = iter.Value()
	require.NoError(t, err)
	assert.Contains(t, testData, string(iter.Key()))
	assert.Equal(t, testData[string(iter.Key())], string(val))

	// No more elements
	assert.False(t, iter.Next())
	assert.False(t, iter.Valid())

	// Value() should error when invalid
	_, err = iter.Value()
	assert.ErrorIs(t, err, ErrIteratorInvalid)
}

func testOrderedKeys(t *testing.T, store db.KVStore) {
	batch, err := store.NewBatch()
	require.NoError(t, err)
	for i := 9; i >= 0; i-- {
		require.NoError(t, batch.Put([]byte(fmt.Sprintf("k%02d", i)), []byte{byte(i)}))
	}
	require.NoError(t, batch.Commit())

	iter, err := store.NewIterator([]byte("k03"), []byte("k07"))
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck

	var keys []string
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
		value, err := iter.Value()
		require.NoError(t, err)
		assert.Len(t, value, 1)
	}
	require.NoError(t, iter.Error())
	assert.Equal(t, []string{"k03", "k04", "k05", "k06"}, keys)
}

func testEmptyRange(t *testing.T, store db.KVStore) {
	require.NoError(t, store.Put([]byte("a"), []byte("1")))
	require.NoError(t, store.Put([]byte("z"), []byte("2")))

	iter, err := store.NewIterator([]byte("m"), []byte("n"))
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck

	assert.False(t, iter.Next())
	assert.False(t, iter.Valid())
	assert.Nil(t, iter.Key())
	require.NoError(t, iter.Error())

	// Exhausted iterators stay exhausted
	assert.False(t, iter.Next())
}

// failingWindow releases the real window but reports err anyway.
type failingWindow struct {
	window
	err error
}

func (w failingWindow) Close() error {
	return errors.Join(w.window.Close(), w.err)
}

func TestIteratorWindowRelease(t *testing.T) {
	var logs bytes.Buffer
	prev := log.Root
	log.Root = zerolog.New(&logs)
	t.Cleanup(func() { log.Root = prev })

	boom := errors.New("window release failed")
	seed := func(t *testing.T) *KVStore {
		store := newTestStore(t, 1)
		t.Cleanup(func() { _ = store.Close() })
		for _, k := range []string{"a", "b", "c"} {
			require.NoError(t, store.Put([]byte(k), []byte("v"+k)))
		}
		return store
	}

	t.Run("refill_surfaces_error", func(t *testing.T) {
		logs.Reset()
		store := seed(t)
		iter, err := store.NewIterator(nil, nil)
		require.NoError(t, err)
		it := iter.(*Iterator)

		require.True(t, it.Next())
		it.window = failingWindow{window: it.window, err: boom}

		assert.False(t, it.Next())
		assert.ErrorIs(t, it.Error(), boom)
		assert.Contains(t, logs.String(), "release iterator window")
		assert.NoError(t, it.Close())
	})

	t.Run("close_surfaces_error", func(t *testing.T) {
		logs.Reset()
		store := seed(t)
		iter, err := store.NewIterator(nil, nil)
		require.NoError(t, err)
		it := iter.(*Iterator)

		require.True(t, it.Next())
		it.window = failingWindow{window: it.window, err: boom}

		assert.ErrorIs(t, it.Close(), boom)
		assert.Contains(t, logs.String(), "window release failed")
		assert.False(t, it.Next())
	})

	t.Run("store_closed_mid_scan", func(t *testing.T) {
		logs.Reset()
		store := seed(t)
		iter, err := store.NewIterator(nil, nil)
		require.NoError(t, err)

		require.True(t, iter.Next())
		require.NoError(t, store.Close())

		// The store already released the window and cursor
		assert.False(t, iter.Next())
		assert.ErrorIs(t, iter.Error(), kv.ErrUseAfterClose)
		assert.NoError(t, iter.Close())
		assert.Empty(t, logs.String())
	})
}
