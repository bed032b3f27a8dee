package kv

import (
	"fmt"

	"github.com/eigerco/kvlayer/internal/engine"
)

// OpenOptions configure a store at open and destroy time. Zero sizes fall
// back to the engine defaults.
type OpenOptions struct {
	CreateIfMissing       bool  `yaml:"create_if_missing"`
	ErrorIfExists         bool  `yaml:"error_if_exists"`
	ParanoidChecks        bool  `yaml:"paranoid_checks"`
	WriteBufferSize       int   `yaml:"write_buffer_size"`
	MaxOpenFiles          int   `yaml:"max_open_files"`
	CacheSize             int64 `yaml:"cache_size"`
	BlockSize             int   `yaml:"block_size"`
	BlockRestartInterval  int   `yaml:"block_restart_interval"`
	MaxFileSize           int64 `yaml:"max_file_size"`
	CompressionEnabled    bool  `yaml:"compression_enabled"`
	BloomFilterBitsPerKey int   `yaml:"bloom_filter_bits_per_key"`
	// RepairOnCorruption asks for a repair when open finds corruption. The
	// engine has no repair primitive, so the open error is still returned.
	RepairOnCorruption bool `yaml:"repair_on_corruption"`
}

func DefaultOpenOptions() OpenOptions {
	return OpenOptions{
		CreateIfMissing:      true,
		WriteBufferSize:      4 << 20,
		MaxOpenFiles:         1000,
		CacheSize:            8 << 20,
		BlockSize:            4096,
		BlockRestartInterval: 16,
		MaxFileSize:          2 << 20,
		CompressionEnabled:   true,
	}
}

func (o OpenOptions) Validate() error {
	fields := []struct {
		name  string
		value int64
	}{
		{"write buffer size", int64(o.WriteBufferSize)},
		{"max open files", int64(o.MaxOpenFiles)},
		{"cache size", o.CacheSize},
		{"block size", int64(o.BlockSize)},
		{"block restart interval", int64(o.BlockRestartInterval)},
		{"max file size", o.MaxFileSize},
		{"bloom filter bits per key", int64(o.BloomFilterBitsPerKey)},
	}
	for _, f := range fields {
		if f.value < 0 {
			return fmt.Errorf("%s %d: %w", f.name, f.value, ErrInvalidArgument)
		}
	}
	return nil
}

// translate builds the engine options object. The caller owns the returned
// pointer and must release it with engine.ReleaseOptions.
func (o OpenOptions) translate() (engine.Ptr, error) {
	if err := o.Validate(); err != nil {
		return engine.Nil, err
	}
	p, err := engine.NewOptions(engine.Config{
		CreateIfMissing:       o.CreateIfMissing,
		ErrorIfExists:         o.ErrorIfExists,
		ParanoidChecks:        o.ParanoidChecks,
		WriteBufferSize:       o.WriteBufferSize,
		MaxOpenFiles:          o.MaxOpenFiles,
		CacheSize:             o.CacheSize,
		BlockSize:             o.BlockSize,
		BlockRestartInterval:  o.BlockRestartInterval,
		MaxFileSize:           o.MaxFileSize,
		Compression:           o.CompressionEnabled,
		BloomFilterBitsPerKey: o.BloomFilterBitsPerKey,
		RepairOnCorruption:    o.RepairOnCorruption,
	})
	return p, engineErr("translate options", err)
}

func resolveOpenOptions(o *OpenOptions) OpenOptions {
	if o == nil {
		return DefaultOpenOptions()
	}
	return *o
}

// ReadOptions apply to a single read or cursor. A nil *ReadOptions means
// DefaultReadOptions.
type ReadOptions struct {
	VerifyChecksums bool
	FillCache       bool
	// Snapshot pins the read to the snapshot's state.
	Snapshot *Snapshot
}

func DefaultReadOptions() ReadOptions {
	return ReadOptions{FillCache: true}
}

// WriteOptions apply to a single write. A nil *WriteOptions is an
// asynchronous write.
type WriteOptions struct {
	Sync bool
}

func (w *WriteOptions) sync() bool {
	return w != nil && w.Sync
}
