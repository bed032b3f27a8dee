package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eigerco/kvlayer/pkg/kv"
	"github.com/eigerco/kvlayer/pkg/log"
)

// Config is the on-disk configuration of a store and its tooling.
type Config struct {
	// Path of the store directory.
	Path  string         `yaml:"path"`
	Store kv.OpenOptions `yaml:"store"`
	Log   LogConfig      `yaml:"log"`
	// ScanBatchSize is the number of entries a scan fetches per round trip.
	ScanBatchSize int `yaml:"scan_batch_size"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// Format is "console" or "json".
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Path:          "data",
		Store:         kv.DefaultOpenOptions(),
		Log:           LogConfig{Level: "info", Format: "console"},
		ScanBatchSize: 64,
	}
}

// Load reads the YAML file at path on top of Default. Keys missing from the
// file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("config: empty store path")
	}
	if c.ScanBatchSize < 0 {
		return fmt.Errorf("config: scan batch size %d", c.ScanBatchSize)
	}
	if _, err := c.Log.Options(); err != nil {
		return err
	}
	return c.Store.Validate()
}

// Options converts the log section into logger options.
func (l LogConfig) Options() (log.Options, error) {
	level, err := log.ParseLogLevel(l.Level)
	if err != nil {
		return log.Options{}, fmt.Errorf("config: log level: %w", err)
	}
	opts := log.Options{LogLevel: level}
	switch strings.ToLower(l.Format) {
	case "", "console":
		opts.Type = log.ConsoleLogger
	case "json":
		opts.Type = log.JSONLogger
	default:
		return log.Options{}, fmt.Errorf("config: unknown log format %q", l.Format)
	}
	return opts, nil
}
