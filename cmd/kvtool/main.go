package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/eigerco/kvlayer/pkg/config"
	"github.com/eigerco/kvlayer/pkg/db/pebble"
	"github.com/eigerco/kvlayer/pkg/kv"
	"github.com/eigerco/kvlayer/pkg/log"
)

const usage = `usage: kvtool [flags] <command> [args]

commands:
  get <key>               print the value stored under key
  iget <key>              print the value the index entry at key points to
  put <key> <value>       store value under key
  delete <key>            remove key
  scan [start] [end]      print every entry in [start, end)
  destroy                 remove the store
`

// main runs one maintenance command against a store.
// go run main.go -config kv.yaml scan a z
func main() {
	configPath := flag.String("config", "", "YAML config file")
	path := flag.String("path", "", "Store directory, overrides the config")
	logLevel := flag.String("log-level", "", "Log level, overrides the config")
	stats := flag.Bool("stats", false, "Print handle and fetch metrics when done")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}
	if *path != "" {
		cfg.Path = *path
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	logOpts, err := cfg.Log.Options()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logOpts.Output = os.Stderr
	log.Init(logOpts)

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	err = run(cfg, flag.Arg(0), flag.Args()[1:], os.Stdout)
	if *stats {
		if serr := writeStats(os.Stderr); serr != nil {
			log.Root.Warn().Err(serr).Msg("write stats")
		}
	}
	if err != nil {
		log.Root.Error().Err(err).Str("command", flag.Arg(0)).Msg("command failed")
		os.Exit(1)
	}
}

var errUsage = errors.New("wrong number of arguments")

func run(cfg config.Config, cmd string, args []string, out io.Writer) error {
	if cmd == "destroy" {
		if len(args) != 0 {
			return errUsage
		}
		return kv.Destroy(cfg.Path, &cfg.Store)
	}

	store, err := pebble.NewKVStore(cfg.Path, cfg.Store, cfg.ScanBatchSize)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	switch cmd {
	case "get":
		if len(args) != 1 {
			return errUsage
		}
		v, err := store.Get([]byte(args[0]))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s\n", v)
		return err
	case "iget":
		if len(args) != 1 {
			return errUsage
		}
		a, err := store.DB().IndirectGet(kv.Bytes(args[0]), nil)
		if err != nil {
			return err
		}
		if a == nil {
			return pebble.ErrNotFound
		}
		defer a.Close() //nolint:errcheck
		_, err = fmt.Fprintf(out, "%s\n", a)
		return err
	case "put":
		if len(args) != 2 {
			return errUsage
		}
		return store.Put([]byte(args[0]), []byte(args[1]))
	case "delete":
		if len(args) != 1 {
			return errUsage
		}
		return store.Delete([]byte(args[0]))
	case "scan":
		if len(args) > 2 {
			return errUsage
		}
		var start, end []byte
		if len(args) > 0 {
			start = []byte(args[0])
		}
		if len(args) > 1 {
			end = []byte(args[1])
		}
		return scan(store, start, end, out)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func scan(store *pebble.KVStore, start, end []byte, out io.Writer) error {
	iter, err := store.NewIterator(start, end)
	if err != nil {
		return err
	}
	defer iter.Close() //nolint:errcheck

	n := 0
	for iter.Next() {
		v, err := iter.Value()
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(out, "%s\t%s\n", iter.Key(), v); err != nil {
			return err
		}
		n++
	}
	log.Root.Debug().Int("entries", n).Msg("scan done")
	return iter.Error()
}

func writeStats(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
