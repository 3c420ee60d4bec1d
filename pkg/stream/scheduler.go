package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/haivivi/pitchscope/pkg/crepe"
	"github.com/haivivi/pitchscope/pkg/observe"
)

// Result is the outcome of one admitted frame.
type Result struct {
	FrameIdx   int64
	Activation crepe.Activation
	Err        error

	// Gen is the scheduler generation the frame was admitted under.
	Gen int64

	// Admitted is when the frame was accepted; Duration is the Run time.
	Admitted time.Time
	Duration time.Duration
}

// Scheduler admits frames to an adapter one at a time. A frame offered
// while another is in flight is dropped and counted; Admit never blocks.
type Scheduler struct {
	adapter crepe.Adapter
	handle  func(Result)
	logger  *slog.Logger
	metrics *observe.Metrics
	backend string

	busy chan struct{} // holds a token while a frame is in flight

	mu      sync.Mutex // orders Admit against Stop for wg
	stopped bool
	gen     int64
	wg      sync.WaitGroup

	admitted atomic.Int64
	dropped  atomic.Int64
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the logger. Default: slog.Default().
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSchedulerMetrics records admission and inference metrics to m.
func WithSchedulerMetrics(m *observe.Metrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

// WithBackendName labels inference metrics and spans.
func WithBackendName(name string) SchedulerOption {
	return func(s *Scheduler) { s.backend = name }
}

// NewScheduler returns a Scheduler running frames on adapter and passing
// each result to handle on the inference goroutine.
func NewScheduler(adapter crepe.Adapter, handle func(Result), opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		adapter: adapter,
		handle:  handle,
		logger:  slog.Default(),
		busy:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Admit offers a frame. It returns true if the frame was dispatched and
// false if it was dropped because an inference is in flight or the
// scheduler is stopped.
func (s *Scheduler) Admit(ctx context.Context, idx int64, frame crepe.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}

	select {
	case s.busy <- struct{}{}:
	default:
		s.dropped.Add(1)
		s.metrics.RecordDropped(ctx)
		return false
	}

	s.admitted.Add(1)
	s.metrics.RecordAdmitted(ctx)
	s.wg.Add(1)
	go s.run(ctx, idx, s.gen, frame, time.Now())
	return true
}

func (s *Scheduler) run(ctx context.Context, idx, gen int64, frame crepe.Frame, admitted time.Time) {
	defer s.wg.Done()
	defer func() { <-s.busy }()

	ctx, span := observe.StartSpan(ctx, "crepe.Run",
		trace.WithAttributes(
			attribute.Int64("frame.idx", idx),
			attribute.String("backend", s.backend),
		),
	)
	defer span.End()

	res := Result{FrameIdx: idx, Gen: gen, Admitted: admitted}
	start := time.Now()
	res.Activation, res.Err = s.infer(ctx, frame)
	res.Duration = time.Since(start)

	s.metrics.RecordInference(ctx, s.backend, res.Duration, res.Err != nil)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "inference failed")
	}

	if s.Stopped() || !s.Current(gen) {
		return
	}
	s.handle(res)
}

func (s *Scheduler) infer(ctx context.Context, frame crepe.Frame) (act crepe.Activation, err error) {
	defer func() {
		if r := recover(); r != nil {
			act, err = nil, fmt.Errorf("%w: panic: %v", crepe.ErrInference, r)
		}
	}()
	return s.adapter.Run(ctx, frame)
}

// Busy reports whether a frame is in flight.
func (s *Scheduler) Busy() bool {
	return len(s.busy) > 0
}

// Stats returns the admitted and dropped frame counts.
func (s *Scheduler) Stats() (admitted, dropped int64) {
	return s.admitted.Load(), s.dropped.Load()
}

// Wait blocks until no frame is in flight.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Halt refuses further frames and marks the in-flight result, if any, for
// discard. It does not wait.
func (s *Scheduler) Halt() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// Stop halts the scheduler and waits for the in-flight frame. Stop is
// idempotent.
func (s *Scheduler) Stop() {
	s.Halt()
	s.wg.Wait()
}

// Invalidate starts a new generation. The in-flight result, if any, is
// discarded instead of handled.
func (s *Scheduler) Invalidate() {
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()
}

// Current reports whether gen is the live generation.
func (s *Scheduler) Current(gen int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

// Stopped reports whether Stop has been called.
func (s *Scheduler) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
