// Package graph runs the pitch model on ONNX Runtime.
//
// Device selection tries the configured preferred execution provider, then
// the fallback provider, and fails with crepe.ErrBackendUnavailable when
// neither can be registered. Tensors created during a Run are tracked by a
// crepe.Scope and released before Run returns.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/haivivi/pitchscope/pkg/crepe"
	"github.com/haivivi/pitchscope/pkg/onnx"
)

// ProviderCPU names the runtime's built-in CPU provider in GraphConfig.
const ProviderCPU = "cpu"

// Backend implements crepe.Adapter with ONNX Runtime.
type Backend struct {
	cfg    crepe.Config
	loader *crepe.Loader
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	closed      bool
	provider    string
	env         *onnx.Env
	session     *onnx.Session
}

var _ crepe.Adapter = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithLoader sets the model loader. Default: a Loader reading local files.
func WithLoader(l *crepe.Loader) Option {
	return func(b *Backend) {
		if l != nil {
			b.loader = l
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// New validates cfg and returns an uninitialized Backend.
func New(cfg crepe.Config, opts ...Option) (*Backend, error) {
	if cfg.Kind != crepe.KindGraphExecution {
		return nil, fmt.Errorf("graph: backend kind %v is not %v", cfg.Kind, crepe.KindGraphExecution)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Backend{
		cfg:    cfg,
		loader: &crepe.Loader{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Provider returns the execution provider chosen by Init, or "" before Init.
func (b *Backend) Provider() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.provider
}

// candidates lists providers to try, in order.
func (b *Backend) candidates() []string {
	if b.cfg.Device == crepe.DeviceFallback {
		return []string{b.cfg.Graph.Fallback}
	}
	if strings.EqualFold(b.cfg.Graph.Preferred, b.cfg.Graph.Fallback) {
		return []string{b.cfg.Graph.Preferred}
	}
	return []string{b.cfg.Graph.Preferred, b.cfg.Graph.Fallback}
}

// Init implements crepe.Adapter.
func (b *Backend) Init(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("%w: graph: backend is closed", crepe.ErrBackendUnavailable)
	}
	if b.initialized {
		return errors.New("graph: init called twice")
	}
	b.initialized = true

	files, err := b.loader.Load(ctx, b.cfg)
	if err != nil {
		return err
	}

	env, err := onnx.NewEnv("pitchscope")
	if err != nil {
		return fmt.Errorf("%w: graph: %v", crepe.ErrBackendUnavailable, err)
	}
	b.env = env

	available, err := onnx.AvailableProviders()
	if err != nil {
		b.logger.Warn("list execution providers failed", "error", err)
	} else {
		b.logger.Debug("execution providers", "available", available)
	}

	var loadErr error
	for _, provider := range b.candidates() {
		if available != nil && !compiledIn(available, provider) {
			b.logger.Info("execution provider not compiled in", "provider", provider)
			continue
		}
		session, err := b.openSession(files.Graph, provider)
		if errors.Is(err, crepe.ErrBackendUnavailable) {
			b.logger.Info("execution provider unavailable", "provider", provider, "error", err)
			continue
		}
		if err != nil {
			loadErr = err
			b.logger.Warn("onnx session failed", "provider", provider, "error", err)
			continue
		}
		b.session, b.provider = session, provider
		break
	}
	if b.session == nil {
		if loadErr != nil {
			return loadErr
		}
		return fmt.Errorf("%w: graph: no usable execution provider in %v", crepe.ErrBackendUnavailable, b.candidates())
	}
	b.logger.Info("graph backend ready", "provider", b.provider, "model", b.cfg.Model)

	if b.cfg.Warmup {
		if _, err := b.runLocked(ctx, make(crepe.Frame, crepe.FrameSize)); err != nil {
			return fmt.Errorf("%w: graph: warmup: %v", crepe.ErrModelLoad, err)
		}
	}
	return nil
}

func (b *Backend) openSession(model []byte, provider string) (*onnx.Session, error) {
	opts, err := onnx.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("%w: graph: %v", crepe.ErrBackendUnavailable, err)
	}
	defer opts.Close()

	if n := b.cfg.Graph.Threads; n > 0 {
		if err := opts.SetIntraOpThreads(n); err != nil {
			return nil, fmt.Errorf("%w: graph: %v", crepe.ErrBackendUnavailable, err)
		}
	}
	if !strings.EqualFold(provider, ProviderCPU) {
		if err := opts.AppendExecutionProvider(provider, nil); err != nil {
			return nil, fmt.Errorf("%w: graph: %s: %v", crepe.ErrBackendUnavailable, provider, err)
		}
	}
	session, err := b.env.NewSession(model, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: graph: %s: %v", crepe.ErrModelLoad, provider, err)
	}
	return session, nil
}

// compiledIn reports whether provider, a short name such as "CoreML" or
// "cpu", appears in the runtime's provider list.
func compiledIn(available []string, provider string) bool {
	want := strings.TrimSuffix(strings.ToLower(provider), "executionprovider") + "executionprovider"
	for _, name := range available {
		if strings.ToLower(name) == want {
			return true
		}
	}
	return false
}

// checkShape accepts a [1, OutputSize] activation tensor.
func checkShape(shape []int64) error {
	if len(shape) != 2 || shape[0] != 1 || shape[1] != crepe.OutputSize {
		return fmt.Errorf("%w: graph: output shape %v, want [1 %d]", crepe.ErrInference, shape, crepe.OutputSize)
	}
	return nil
}

// Run implements crepe.Adapter.
func (b *Backend) Run(ctx context.Context, f crepe.Frame) (crepe.Activation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runLocked(ctx, f)
}

func (b *Backend) runLocked(ctx context.Context, f crepe.Frame) (crepe.Activation, error) {
	if b.closed || b.session == nil {
		return nil, fmt.Errorf("%w: graph: backend not initialized", crepe.ErrInference)
	}
	if err := crepe.CheckFrame(f); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", crepe.ErrInference, err)
	}

	// The tensor references its data for its whole life.
	data := make([]float32, crepe.FrameSize)
	copy(data, f)

	out, err := crepe.Tidy(func(s *crepe.Scope) (*onnx.Tensor, error) {
		input, err := onnx.NewTensor([]int64{1, crepe.FrameSize}, data)
		if err != nil {
			return nil, err
		}
		crepe.Track(s, input)

		outputs, err := b.session.Run(
			[]string{b.cfg.Graph.InputName}, []*onnx.Tensor{input},
			[]string{b.cfg.Graph.OutputName},
		)
		if err != nil {
			return nil, err
		}
		for _, o := range outputs {
			crepe.Track(s, o)
		}
		return outputs[0], nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crepe.ErrInference, err)
	}
	defer out.Close()

	shape, err := out.Shape()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crepe.ErrInference, err)
	}
	if err := checkShape(shape); err != nil {
		return nil, err
	}
	values, err := out.FloatData()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crepe.ErrInference, err)
	}
	return crepe.CheckActivation(values)
}

// Close implements crepe.Adapter.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	if b.session != nil {
		errs = append(errs, b.session.Close())
		b.session = nil
	}
	if b.env != nil {
		errs = append(errs, b.env.Close())
		b.env = nil
	}
	return errors.Join(errs...)
}
