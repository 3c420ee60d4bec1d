// Package crepetest provides an in-memory crepe.Adapter for tests.
package crepetest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/haivivi/pitchscope/pkg/crepe"
)

// RunFunc computes an activation for a frame.
type RunFunc func(ctx context.Context, f crepe.Frame) (crepe.Activation, error)

// Adapter is a scripted crepe.Adapter that records its lifecycle.
type Adapter struct {
	// InitErr is returned by Init when set.
	InitErr error

	// Gate, when non-nil, makes Run wait for a receive before computing.
	Gate chan struct{}

	run RunFunc

	mu          sync.Mutex
	initialized bool
	closed      bool
	inits       int
	runs        int
	closes      int
}

// New returns an Adapter computing activations with fn. A nil fn returns
// OneHot(180, 1) for every frame.
func New(fn RunFunc) *Adapter {
	if fn == nil {
		fn = func(context.Context, crepe.Frame) (crepe.Activation, error) {
			return OneHot(180, 1), nil
		}
	}
	return &Adapter{run: fn}
}

// Init implements crepe.Adapter.
func (a *Adapter) Init(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inits++
	if a.inits > 1 {
		return errors.New("crepetest: init called twice")
	}
	if a.InitErr != nil {
		return a.InitErr
	}
	a.initialized = true
	return nil
}

// Run implements crepe.Adapter.
func (a *Adapter) Run(ctx context.Context, f crepe.Frame) (crepe.Activation, error) {
	a.mu.Lock()
	ready := a.initialized && !a.closed
	a.runs++
	a.mu.Unlock()
	if !ready {
		return nil, fmt.Errorf("%w: adapter not initialized", crepe.ErrInference)
	}
	if err := crepe.CheckFrame(f); err != nil {
		return nil, err
	}

	if a.Gate != nil {
		select {
		case <-a.Gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", crepe.ErrInference, ctx.Err())
		}
	}

	out, err := a.run(ctx, f)
	if err != nil {
		return nil, err
	}
	return crepe.CheckActivation(out)
}

// Close implements crepe.Adapter.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closes++
	a.closed = true
	return nil
}

// Inits returns the number of Init calls.
func (a *Adapter) Inits() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inits
}

// Runs returns the number of Run calls.
func (a *Adapter) Runs() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runs
}

// Closes returns the number of Close calls.
func (a *Adapter) Closes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closes
}

// Closed reports whether Close has been called.
func (a *Adapter) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// OneHot returns an activation with all mass v in one bin.
func OneHot(bin int, v float32) crepe.Activation {
	out := make(crepe.Activation, crepe.OutputSize)
	out[bin] = v
	return out
}

var _ crepe.Adapter = (*Adapter)(nil)
