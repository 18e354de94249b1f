package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/acho-dev/acho/pkg/config"
	"github.com/acho-dev/acho/pkg/standards"
)

// runStandardsCmd resolves one key (or every key) across the configured
// policy layers and prints the value with its provenance. Resolution goes
// through the derived-standards cache keyed by the layer-set hash; the
// cache is never authoritative.
//
// Exit codes:
//
//	0 = resolved
//	1 = key not defined in any layer
//	2 = runtime error
func runStandardsCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("standards", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		all    bool
		dedupe bool
	)
	cmd.BoolVar(&all, "all", false, "Resolve every key defined in any layer")
	cmd.BoolVar(&dedupe, "dedupe", false, "Drop duplicate entries from concatenated lists")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if !all && cmd.NArg() < 1 {
		fmt.Fprintln(stderr, "Usage: acho standards [--all] [--dedupe] <key>")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	layers := loadLayers(cfg)
	opts := standards.Options{Dedupe: dedupe}

	if all {
		resolved, err := standards.ResolveAll(layers, opts)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		data, _ := json.MarshalIndent(resolved, "", "  ")
		fmt.Fprintln(stdout, string(data))
		return 0
	}

	key := cmd.Arg(0)
	r, err := resolveCached(context.Background(), cfg, logger, layers, key, opts)
	if err != nil {
		if errors.Is(err, standards.ErrNotDefined) {
			fmt.Fprintf(stderr, "key %q is not defined in any layer\n", key)
			return 1
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	data, _ := json.MarshalIndent(r, "", "  ")
	fmt.Fprintln(stdout, string(data))
	return 0
}

// resolveCached consults the sqlite cache before resolving. Cache failures
// only cost a re-resolve.
func resolveCached(ctx context.Context, cfg *config.Config, logger *zap.Logger, layers []standards.Layer, key string, opts standards.Options) (standards.Resolved, error) {
	setHash, err := standards.SetHash(layers)
	if err != nil {
		return standards.ResolveWith(key, layers, opts)
	}

	cache, err := standards.OpenCache(cfg.CachePath())
	if err != nil {
		logger.Debug("standards cache unavailable", zap.Error(err))
		return standards.ResolveWith(key, layers, opts)
	}
	defer cache.Close()

	if r, ok, err := cache.Get(ctx, setHash, key); err == nil && ok {
		return r, nil
	}
	r, err := standards.ResolveWith(key, layers, opts)
	if err != nil {
		return r, err
	}
	if err := cache.Put(ctx, setHash, r); err != nil {
		logger.Debug("standards cache write failed", zap.Error(err))
	}
	return r, nil
}
