// Package kernel runs the pitch model on ncnn.
//
// The backend owns one fixed FrameSize input buffer in C memory for its
// whole lifetime. Each Run copies the frame into it and creates an
// extractor, an input Mat and an output Mat, all released before Run
// returns. The preferred device is Vulkan compute; the fallback is the CPU.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/haivivi/pitchscope/pkg/crepe"
	"github.com/haivivi/pitchscope/pkg/ncnn"
)

// Device names reported by [Backend.Device].
const (
	DeviceVulkan = "vulkan"
	DeviceCPU    = "cpu"
)

// Backend implements crepe.Adapter with ncnn.
type Backend struct {
	cfg    crepe.Config
	loader *crepe.Loader
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	closed      bool
	device      string
	opt         *ncnn.Option
	net         *ncnn.Net
	input       *ncnn.Buffer
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
	if cfg.Kind != crepe.KindNativeKernel {
		return nil, fmt.Errorf("kernel: backend kind %v is not %v", cfg.Kind, crepe.KindNativeKernel)
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

// Device returns the device chosen by Init, or "" before Init.
func (b *Backend) Device() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.device
}

// Init implements crepe.Adapter.
func (b *Backend) Init(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("%w: kernel: backend is closed", crepe.ErrBackendUnavailable)
	}
	if b.initialized {
		return errors.New("kernel: init called twice")
	}
	b.initialized = true

	files, err := b.loader.Load(ctx, b.cfg)
	if err != nil {
		return err
	}

	devices := []string{DeviceCPU}
	if b.cfg.Device == crepe.DevicePreferred {
		if ncnn.VulkanSupported() {
			devices = []string{DeviceVulkan, DeviceCPU}
		} else {
			b.logger.Info("vulkan compute not available, using cpu")
		}
	}

	var loadErr error
	for _, device := range devices {
		opt := ncnn.NewOption()
		if opt == nil {
			loadErr = fmt.Errorf("%w: kernel: option allocation failed", crepe.ErrBackendUnavailable)
			continue
		}
		opt.SetVulkanCompute(device == DeviceVulkan).SetFP16(b.cfg.Kernel.FP16)
		if b.cfg.Kernel.Threads > 0 {
			opt.SetNumThreads(b.cfg.Kernel.Threads)
		}

		net, err := ncnn.NewNetFromMemory(files.Param, files.Bin, opt)
		if err != nil {
			opt.Close()
			loadErr = fmt.Errorf("%w: kernel: %s: %v", crepe.ErrModelLoad, device, err)
			b.logger.Warn("ncnn load failed", "device", device, "error", err)
			continue
		}
		b.opt, b.net, b.device = opt, net, device
		break
	}
	if b.net == nil {
		return loadErr
	}

	input, err := ncnn.NewBuffer(crepe.FrameSize)
	if err != nil {
		return fmt.Errorf("%w: kernel: %v", crepe.ErrBackendUnavailable, err)
	}
	b.input = input
	b.logger.Info("kernel backend ready", "device", b.device, "model", b.cfg.Model, "ncnn", ncnn.Version())

	if b.cfg.Warmup {
		if _, err := b.runLocked(ctx, make(crepe.Frame, crepe.FrameSize)); err != nil {
			return fmt.Errorf("%w: kernel: warmup: %v", crepe.ErrModelLoad, err)
		}
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
	if b.closed || b.net == nil || b.input == nil {
		return nil, fmt.Errorf("%w: kernel: backend not initialized", crepe.ErrInference)
	}
	if err := crepe.CheckFrame(f); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", crepe.ErrInference, err)
	}

	copy(b.input.Data(), f)
	in, err := b.input.Mat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crepe.ErrInference, err)
	}
	defer in.Close()

	ex, err := b.net.NewExtractor()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crepe.ErrInference, err)
	}
	defer ex.Close()

	if err := ex.SetInput(b.cfg.Kernel.InputBlob, in); err != nil {
		return nil, fmt.Errorf("%w: %v", crepe.ErrInference, err)
	}
	out, err := ex.Extract(b.cfg.Kernel.OutputBlob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crepe.ErrInference, err)
	}
	defer out.Close()

	return crepe.CheckActivation(out.FloatData())
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
	if b.input != nil {
		errs = append(errs, b.input.Close())
		b.input = nil
	}
	if b.net != nil {
		errs = append(errs, b.net.Close())
		b.net = nil
	}
	if b.opt != nil {
		errs = append(errs, b.opt.Close())
		b.opt = nil
	}
	return errors.Join(errs...)
}
