package db

// KVStore represents a key-value storage interface providing basic operations
// for data manipulation and iteration.
type KVStore interface {
	Reader
	Writer
	Delete(key []byte) error
	NewBatch() (Batch, error)
	NewSnapshot() (Snapshot, error)
	Close() error
}

type Reader interface {
	Get(key []byte) ([]byte, error)
	NewIterator(start, end []byte) (Iterator, error)
}

type Writer interface {
	Put(key []byte, value []byte) error
}

// Batch represents an atomic batch of operations.
// All operations in a batch are performed atomically.
type Batch interface {
	Writer
	Delete(key []byte) error
	Commit() error
	Close() error
}

// Snapshot is a read-only view of the store frozen at creation time.
type Snapshot interface {
	Reader
	Close() error
}

// Iterator provides sequential access over a range of key-value pairs.
// Iterators must be closed after use.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() ([]byte, error)
	Valid() bool
	// Error returns the failure that ended iteration early, if any.
	Error() error
	Close() error
}
