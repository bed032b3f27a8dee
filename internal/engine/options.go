package engine

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/eigerco/kvlayer/pkg/log"
)

// Config is the flat configuration accepted by NewOptions. Zero sizes select
// the engine defaults.
type Config struct {
	CreateIfMissing       bool
	ErrorIfExists         bool
	ParanoidChecks        bool
	WriteBufferSize       int
	MaxOpenFiles          int
	CacheSize             int64
	BlockSize             int
	BlockRestartInterval  int
	MaxFileSize           int64
	Compression           bool
	BloomFilterBitsPerKey int
	RepairOnCorruption    bool

	// FS overrides the filesystem, vfs.Default when nil.
	FS vfs.FS
}

// ReadOptions accompany every read. pebble always populates its block cache
// and always verifies block checksums, so FillCache is advisory and
// VerifyChecksums only makes iterator errors surface eagerly.
type ReadOptions struct {
	Snapshot        Ptr
	FillCache       bool
	VerifyChecksums bool
}

type options struct {
	guard
	opts     *pebble.Options
	cache    *pebble.Cache
	paranoid bool
	repair   bool
}

// NewOptions translates cfg into a native options object. The object must be
// released with ReleaseOptions whether or not it is used to open a store.
func NewOptions(cfg Config) (Ptr, error) {
	if cfg.WriteBufferSize < 0 || cfg.MaxOpenFiles < 0 || cfg.CacheSize < 0 ||
		cfg.BlockSize < 0 || cfg.BlockRestartInterval < 0 || cfg.MaxFileSize < 0 ||
		cfg.BloomFilterBitsPerKey < 0 {
		return Nil, errors.Wrap(ErrBadArgument, "negative size in options")
	}

	o := &options{
		paranoid: cfg.ParanoidChecks,
		repair:   cfg.RepairOnCorruption,
		opts: &pebble.Options{
			ErrorIfExists:    cfg.ErrorIfExists,
			ErrorIfNotExists: !cfg.CreateIfMissing,
			MaxOpenFiles:     cfg.MaxOpenFiles,
			MemTableSize:     uint64(cfg.WriteBufferSize),
			Logger:           pebbleLogger{},
			FS:               cfg.FS,
		},
	}
	if cfg.CacheSize > 0 {
		o.cache = pebble.NewCache(cfg.CacheSize)
		o.opts.Cache = o.cache
	}

	level := pebble.LevelOptions{
		BlockSize:            cfg.BlockSize,
		BlockRestartInterval: cfg.BlockRestartInterval,
		TargetFileSize:       cfg.MaxFileSize,
		Compression:          pebble.NoCompression,
	}
	if cfg.Compression {
		level.Compression = pebble.SnappyCompression
	}
	if cfg.BloomFilterBitsPerKey > 0 {
		level.FilterPolicy = bloom.FilterPolicy(cfg.BloomFilterBitsPerKey)
		level.FilterType = pebble.TableFilter
	}
	o.opts.Levels = []pebble.LevelOptions{level}
	o.opts.EnsureDefaults()

	return register(o), nil
}

// ReleaseOptions drops the options object and its cache reference. A store
// opened with the options keeps its own cache reference.
func ReleaseOptions(p Ptr) error {
	o, err := take[*options](p)
	if err != nil {
		return err
	}
	if o.cache != nil {
		o.cache.Unref()
		o.cache = nil
	}
	return nil
}

// pebbleLogger routes pebble's own log lines through the engine logger.
type pebbleLogger struct{}

func (pebbleLogger) Infof(format string, args ...interface{}) {
	log.Engine.Info().Msgf(format, args...)
}

func (pebbleLogger) Errorf(format string, args ...interface{}) {
	log.Engine.Error().Msgf(format, args...)
}

func (pebbleLogger) Fatalf(format string, args ...interface{}) {
	log.Engine.Fatal().Msgf(format, args...)
}
