package crepe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/haivivi/pitchscope/pkg/kv"
	"github.com/haivivi/pitchscope/pkg/storage"
)

// ModelFiles holds the raw model data a backend needs. Graph models use
// Graph; kernel models use Param and Bin.
type ModelFiles struct {
	Graph []byte
	Param []byte
	Bin   []byte
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]ModelFiles)
)

// RegisterModel makes files loadable as "memory:<name>". Registering a name
// twice replaces the earlier files.
func RegisterModel(name string, files ModelFiles) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = files
}

// Loader fetches model files by location URI, optionally through a kv
// cache keyed by the URI.
type Loader struct {
	Resolver storage.Resolver
	Cache    kv.Store
	Logger   *slog.Logger
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

// Load fetches the files cfg.Model points at for cfg.Kind. Kernel models
// are addressed by their .param file; the .bin is its sibling. Errors wrap
// ErrModelLoad.
func (l *Loader) Load(ctx context.Context, cfg Config) (ModelFiles, error) {
	if name, ok := strings.CutPrefix(cfg.Model, "memory:"); ok {
		registryMu.RLock()
		files, found := registry[name]
		registryMu.RUnlock()
		if !found {
			return ModelFiles{}, fmt.Errorf("%w: model %q not registered", ErrModelLoad, name)
		}
		return files, nil
	}

	if cfg.Kind == KindNativeKernel {
		param, err := l.fetch(ctx, cfg.Model, "")
		if err != nil {
			return ModelFiles{}, err
		}
		bin, err := l.fetch(ctx, cfg.Model, ".bin")
		if err != nil {
			return ModelFiles{}, err
		}
		return ModelFiles{Param: param, Bin: bin}, nil
	}

	graph, err := l.fetch(ctx, cfg.Model, "")
	if err != nil {
		return ModelFiles{}, err
	}
	return ModelFiles{Graph: graph}, nil
}

// fetch reads uri, or its sibling with extension ext when ext is set.
func (l *Loader) fetch(ctx context.Context, uri, ext string) ([]byte, error) {
	if ext != "" {
		uri = storage.Sibling(uri, ext)
	}
	key := cacheKey(uri)

	if l.Cache != nil {
		data, err := l.Cache.Get(ctx, key)
		switch {
		case err == nil:
			l.logger().Debug("model cache hit", "uri", uri, "bytes", len(data))
			return data, nil
		case !errors.Is(err, kv.ErrNotFound):
			l.logger().Warn("model cache read failed", "uri", uri, "error", err)
		}
	}

	fs, name, err := l.Resolver.Open(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	data, err := storage.ReadAll(ctx, fs, name)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrModelLoad, uri, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrModelLoad, uri)
	}
	l.logger().Info("model fetched", "uri", uri, "bytes", len(data))

	if l.Cache != nil {
		if err := l.Cache.Set(ctx, key, data); err != nil {
			l.logger().Warn("model cache write failed", "uri", uri, "error", err)
		}
	}
	return data, nil
}

// cacheKey hashes the URI so separators in it cannot split the key.
func cacheKey(uri string) kv.Key {
	sum := sha256.Sum256([]byte(uri))
	return kv.Key{"models", hex.EncodeToString(sum[:])}
}
