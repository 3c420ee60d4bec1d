package commands

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/haivivi/pitchscope/pkg/cli"
	"github.com/haivivi/pitchscope/pkg/crepe"
	"github.com/haivivi/pitchscope/pkg/crepe/graph"
	"github.com/haivivi/pitchscope/pkg/crepe/kernel"
	"github.com/haivivi/pitchscope/pkg/kv"
	"github.com/haivivi/pitchscope/pkg/storage"
)

// testAdapterOverride replaces the backend in tests.
var testAdapterOverride func(cfg crepe.Config) crepe.Adapter

// crepeConfig builds the backend configuration of p. A model given as a
// bare file name resolves inside the model directory.
func crepeConfig(p cli.Profile) (crepe.Config, error) {
	kind, err := crepe.ParseBackendKind(p.Backend)
	if err != nil {
		return crepe.Config{}, err
	}
	capacity, err := crepe.ParseCapacity(p.Capacity)
	if err != nil {
		return crepe.Config{}, err
	}
	device, err := crepe.ParseDeviceHint(p.Device)
	if err != nil {
		return crepe.Config{}, err
	}

	cfg := crepe.Config{
		Kind:     kind,
		Model:    p.Model,
		Capacity: capacity,
		Device:   device,
		Warmup:   p.Warmup,
	}
	switch kind {
	case crepe.KindNativeKernel:
		cfg.Kernel = &crepe.KernelConfig{Threads: p.Threads}
	case crepe.KindGraphExecution:
		cfg.Graph = &crepe.GraphConfig{Threads: p.Threads}
		if len(p.Providers) > 0 {
			cfg.Graph.Preferred = p.Providers[0]
		}
		if len(p.Providers) > 1 {
			cfg.Graph.Fallback = p.Providers[1]
		}
	}
	if cfg.Model == "" {
		cfg.Model = crepe.DefaultModel(kind, capacity)
	}
	if !strings.Contains(cfg.Model, ":") && !filepath.IsAbs(cfg.Model) && filepath.Base(cfg.Model) == cfg.Model {
		dir, err := modelDir(p)
		if err != nil {
			return crepe.Config{}, err
		}
		cfg.Model = filepath.Join(dir, cfg.Model)
	}
	if err := cfg.Validate(); err != nil {
		return crepe.Config{}, err
	}
	return cfg, nil
}

// backendName labels metrics and sessions.
func backendName(k crepe.BackendKind) string {
	if k == crepe.KindGraphExecution {
		return "graph"
	}
	return "kernel"
}

// newLoader returns a model loader for p. The returned close function
// releases the model cache and must be called once Init has run.
func newLoader(p cli.Profile, logger *slog.Logger) (*crepe.Loader, func() error, error) {
	s3cfg := storage.S3Config{
		Region:    p.S3.Region,
		Endpoint:  p.S3.Endpoint,
		PathStyle: p.S3.PathStyle,
		AccessKey: p.S3.AccessKey,
		SecretKey: p.S3.SecretKey,
	}
	loader := &crepe.Loader{
		Resolver: storage.Resolver{
			S3: func(context.Context) (storage.S3Client, error) {
				c, err := storage.NewS3Client(s3cfg)
				if err != nil {
					return nil, err
				}
				return c, nil
			},
		},
		Logger: logger,
	}

	_, cacheDir, err := storeDirs(p)
	if err != nil {
		return nil, nil, err
	}
	cache, err := kv.NewBadger(kv.BadgerOptions{Dir: cacheDir, Logger: logger})
	if err != nil {
		// A locked or unreadable cache only costs a refetch.
		logger.Warn("model cache unavailable", "dir", cacheDir, "error", err)
		return loader, func() error { return nil }, nil
	}
	loader.Cache = cache
	return loader, cache.Close, nil
}

// newAdapter constructs the uninitialized backend selected by p.
func newAdapter(p cli.Profile, logger *slog.Logger) (crepe.Adapter, crepe.Config, func() error, error) {
	cfg, err := crepeConfig(p)
	if err != nil {
		return nil, cfg, nil, err
	}
	if testAdapterOverride != nil {
		return testAdapterOverride(cfg), cfg, func() error { return nil }, nil
	}

	loader, closeCache, err := newLoader(p, logger)
	if err != nil {
		return nil, cfg, nil, err
	}

	var a crepe.Adapter
	switch cfg.Kind {
	case crepe.KindNativeKernel:
		a, err = kernel.New(cfg, kernel.WithLoader(loader), kernel.WithLogger(logger))
	case crepe.KindGraphExecution:
		a, err = graph.New(cfg, graph.WithLoader(loader), graph.WithLogger(logger))
	default:
		err = fmt.Errorf("unsupported backend %v", cfg.Kind)
	}
	if err != nil {
		closeCache()
		return nil, cfg, nil, err
	}
	return a, cfg, closeCache, nil
}
