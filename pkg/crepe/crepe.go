// Package crepe defines the inference capability behind the pitch pipeline.
//
// A CREPE model maps a 1024-sample window of 16 kHz audio to 360 sigmoid
// activations, one per 20-cent pitch bin. This package fixes that shape
// contract and the lifecycle every backend follows:
//
//	a, err := kernel.New(cfg)  // or graph.New(cfg)
//	if err != nil {
//	    return err             // invalid config
//	}
//	if err := a.Init(ctx); err != nil {
//	    a.Close()
//	    return err             // ErrBackendUnavailable or ErrModelLoad
//	}
//	defer a.Close()
//
//	act, err := a.Run(ctx, frame) // ErrInference on failure
//
// Concrete backends live in subpackages: kernel (ncnn, explicit buffers) and
// graph (ONNX Runtime, scoped temporaries). Backend selection is a closed
// set, see [BackendKind].
package crepe

import (
	"context"
	"errors"
	"fmt"
)

// Shape contract shared by every backend.
const (
	SampleRate = 16000
	FrameSize  = 1024
	HopSize    = 160
	OutputSize = 360
)

// Sentinel errors. Backends wrap them with %w.
var (
	// ErrBackendUnavailable reports that no usable compute device exists.
	ErrBackendUnavailable = errors.New("crepe: backend unavailable")

	// ErrModelLoad reports that the model could not be fetched or parsed.
	ErrModelLoad = errors.New("crepe: model load failed")

	// ErrInference reports a failed Run. It is recoverable: the frame's
	// result is lost and the next frame is unaffected.
	ErrInference = errors.New("crepe: inference failed")
)

// Frame is one window of FrameSize samples at SampleRate.
type Frame []float32

// Activation is the raw model output: OutputSize unnormalized bin values.
type Activation []float32

// Adapter turns frames into activations. Implementations own every backend
// resource; nothing allocated during Run outlives the call.
type Adapter interface {
	// Init selects a device and loads the model. It must be called exactly
	// once before Run. Errors wrap ErrBackendUnavailable or ErrModelLoad.
	Init(ctx context.Context) error

	// Run infers one frame. Errors wrap ErrInference.
	Run(ctx context.Context, f Frame) (Activation, error)

	// Close releases all backend resources. It is idempotent and safe on an
	// adapter whose Init never ran or failed.
	Close() error
}

// CheckFrame validates the input side of the shape contract.
func CheckFrame(f Frame) error {
	if len(f) != FrameSize {
		return fmt.Errorf("%w: frame has %d samples, want %d", ErrInference, len(f), FrameSize)
	}
	return nil
}

// CheckActivation validates the output side of the shape contract and
// returns out as an Activation.
func CheckActivation(out []float32) (Activation, error) {
	if len(out) != OutputSize {
		return nil, fmt.Errorf("%w: output has %d values, want %d", ErrInference, len(out), OutputSize)
	}
	return Activation(out), nil
}

// Warmup runs one silent frame so lazy device initialization happens before
// the first real frame.
func Warmup(ctx context.Context, a Adapter) error {
	_, err := a.Run(ctx, make(Frame, FrameSize))
	return err
}
