package stream

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Source delivers mono float32 chunks at its native rate.
type Source interface {
	// Rate returns the native sample rate.
	Rate() int

	// Start begins delivery. onChunk is called from the source's own
	// goroutine and must not block; the chunk is only valid during the call.
	Start(onChunk func(chunk []float32)) error

	// Stop halts delivery. No onChunk call is in progress or made after
	// Stop returns.
	Stop() error

	// Close releases the source.
	Close() error
}

// Finite is implemented by sources that end on their own. The pipeline
// registers a callback to flush its tail when the source runs out.
type Finite interface {
	// OnEnd sets fn to run once after the last chunk is delivered, on the
	// delivery goroutine. It is not called when the source is stopped early.
	OnEnd(fn func())
}

// Replay is a Source that plays a buffer in fixed chunks, paced to real
// time unless Fast is set.
type Replay struct {
	samples []float32
	rate    int
	chunk   int

	// Fast disables real-time pacing.
	Fast bool

	mu     sync.Mutex
	onEnd  func()
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReplay returns a Replay of samples at rate, delivered chunk samples
// at a time. A non-positive chunk selects 10 ms.
func NewReplay(samples []float32, rate, chunk int) *Replay {
	if chunk <= 0 {
		chunk = max(rate/100, 1)
	}
	return &Replay{samples: samples, rate: rate, chunk: chunk}
}

// Rate implements Source.
func (r *Replay) Rate() int { return r.rate }

// Start implements Source.
func (r *Replay) Start(onChunk func([]float32)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return errors.New("stream: replay already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.play(ctx, onChunk, r.onEnd, r.done)
	return nil
}

// OnEnd implements Finite. It must be called before Start.
func (r *Replay) OnEnd(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEnd = fn
}

func (r *Replay) play(ctx context.Context, onChunk func([]float32), onEnd func(), done chan struct{}) {
	defer close(done)

	period := time.Duration(float64(r.chunk) / float64(r.rate) * float64(time.Second))
	var tick <-chan time.Time
	if !r.Fast {
		t := time.NewTicker(period)
		defer t.Stop()
		tick = t.C
	}

	for off := 0; off < len(r.samples); off += r.chunk {
		if tick != nil {
			select {
			case <-tick:
			case <-ctx.Done():
				return
			}
		} else if ctx.Err() != nil {
			return
		}
		onChunk(r.samples[off:min(off+r.chunk, len(r.samples))])
	}
	if onEnd != nil && ctx.Err() == nil {
		onEnd()
	}
}

// Done is closed when the whole buffer has been delivered or Stop is
// called. It is nil before Start.
func (r *Replay) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Stop implements Source.
func (r *Replay) Stop() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Close implements Source.
func (r *Replay) Close() error {
	return r.Stop()
}
