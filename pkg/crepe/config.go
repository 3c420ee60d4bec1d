package crepe

import (
	"errors"
	"fmt"
	"strings"
)

// BackendKind selects one of the supported backends. The set is closed.
type BackendKind int

const (
	// KindNativeKernel runs the model through ncnn with explicitly managed
	// input and output buffers.
	KindNativeKernel BackendKind = iota + 1

	// KindGraphExecution runs the model through ONNX Runtime with
	// execution-provider device selection.
	KindGraphExecution
)

func (k BackendKind) String() string {
	switch k {
	case KindNativeKernel:
		return "native-kernel"
	case KindGraphExecution:
		return "graph-execution"
	}
	return fmt.Sprintf("BackendKind(%d)", int(k))
}

// ParseBackendKind accepts the canonical names and the engine aliases
// "ncnn" and "onnx".
func ParseBackendKind(s string) (BackendKind, error) {
	switch strings.ToLower(s) {
	case "native-kernel", "kernel", "ncnn":
		return KindNativeKernel, nil
	case "graph-execution", "graph", "onnx":
		return KindGraphExecution, nil
	}
	return 0, fmt.Errorf("crepe: unknown backend %q", s)
}

// DeviceHint orders device selection.
type DeviceHint int

const (
	// DevicePreferred tries the accelerated device first.
	DevicePreferred DeviceHint = iota

	// DeviceFallback skips straight to the secondary device.
	DeviceFallback
)

func (h DeviceHint) String() string {
	if h == DeviceFallback {
		return "fallback"
	}
	return "preferred"
}

// ParseDeviceHint parses "preferred" or "fallback". Empty means preferred.
func ParseDeviceHint(s string) (DeviceHint, error) {
	switch strings.ToLower(s) {
	case "", "preferred":
		return DevicePreferred, nil
	case "fallback":
		return DeviceFallback, nil
	}
	return 0, fmt.Errorf("crepe: unknown device hint %q", s)
}

// Capacity is the model size. Larger models are slower and more accurate.
type Capacity string

const (
	CapacityTiny   Capacity = "tiny"
	CapacitySmall  Capacity = "small"
	CapacityMedium Capacity = "medium"
	CapacityLarge  Capacity = "large"
	CapacityFull   Capacity = "full"
)

// Capacities lists every model size, smallest first.
var Capacities = []Capacity{CapacityTiny, CapacitySmall, CapacityMedium, CapacityLarge, CapacityFull}

// Multiplier returns the convolution width multiplier of the model size.
func (c Capacity) Multiplier() int {
	switch c {
	case CapacityTiny:
		return 4
	case CapacitySmall:
		return 8
	case CapacityMedium:
		return 16
	case CapacityLarge:
		return 24
	case CapacityFull:
		return 32
	}
	return 0
}

// ParseCapacity parses a model size name. Empty means tiny.
func ParseCapacity(s string) (Capacity, error) {
	if s == "" {
		return CapacityTiny, nil
	}
	c := Capacity(strings.ToLower(s))
	if c.Multiplier() == 0 {
		return "", fmt.Errorf("crepe: unknown capacity %q", s)
	}
	return c, nil
}

// KernelConfig is the payload of KindNativeKernel.
type KernelConfig struct {
	// Threads is the CPU thread count. Zero lets ncnn decide.
	Threads int

	// FP16 enables half-precision storage and arithmetic.
	FP16 bool

	// InputBlob and OutputBlob name the graph endpoints.
	// Default: "in0" and "out0".
	InputBlob  string
	OutputBlob string
}

// GraphConfig is the payload of KindGraphExecution.
type GraphConfig struct {
	// Preferred and Fallback are ONNX Runtime execution provider names.
	// "cpu" selects the default CPU provider.
	// Default: "WebGPU" and "CoreML".
	Preferred string
	Fallback  string

	// Threads is the intra-op thread count. Zero lets the runtime decide.
	Threads int

	// InputName and OutputName name the graph endpoints.
	// Default: "input" and "output".
	InputName  string
	OutputName string
}

// Config selects and configures a backend. Exactly one payload, the one
// matching Kind, may be set; a nil payload means defaults.
type Config struct {
	Kind     BackendKind
	Model    string // model location URI
	Capacity Capacity
	Device   DeviceHint
	Warmup   bool

	Kernel *KernelConfig
	Graph  *GraphConfig
}

// Validate checks the variant and fills payload defaults.
func (c *Config) Validate() error {
	var errs []error
	switch c.Kind {
	case KindNativeKernel:
		if c.Graph != nil {
			errs = append(errs, errors.New("graph payload set on native-kernel backend"))
		}
		if c.Kernel == nil {
			c.Kernel = &KernelConfig{}
		}
		if c.Kernel.InputBlob == "" {
			c.Kernel.InputBlob = "in0"
		}
		if c.Kernel.OutputBlob == "" {
			c.Kernel.OutputBlob = "out0"
		}
		if c.Kernel.Threads < 0 {
			errs = append(errs, fmt.Errorf("negative thread count %d", c.Kernel.Threads))
		}
	case KindGraphExecution:
		if c.Kernel != nil {
			errs = append(errs, errors.New("kernel payload set on graph-execution backend"))
		}
		if c.Graph == nil {
			c.Graph = &GraphConfig{}
		}
		if c.Graph.Threads < 0 {
			errs = append(errs, fmt.Errorf("negative thread count %d", c.Graph.Threads))
		}
		if c.Graph.Preferred == "" {
			c.Graph.Preferred = "WebGPU"
		}
		if c.Graph.Fallback == "" {
			c.Graph.Fallback = "CoreML"
		}
		if c.Graph.InputName == "" {
			c.Graph.InputName = "input"
		}
		if c.Graph.OutputName == "" {
			c.Graph.OutputName = "output"
		}
	default:
		errs = append(errs, fmt.Errorf("invalid backend kind %v", c.Kind))
	}

	if c.Capacity == "" {
		c.Capacity = CapacityTiny
	} else if c.Capacity.Multiplier() == 0 {
		errs = append(errs, fmt.Errorf("unknown capacity %q", c.Capacity))
	}
	if c.Model == "" {
		c.Model = DefaultModel(c.Kind, c.Capacity)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("crepe: config: %w", err)
	}
	return nil
}

// DefaultModel returns the conventional model file name for a backend and
// size, e.g. "crepe-tiny.onnx" or "crepe-tiny.param".
func DefaultModel(kind BackendKind, c Capacity) string {
	if kind == KindNativeKernel {
		return "crepe-" + string(c) + ".param"
	}
	return "crepe-" + string(c) + ".onnx"
}
