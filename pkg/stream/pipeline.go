package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haivivi/pitchscope/pkg/audio/resampler"
	"github.com/haivivi/pitchscope/pkg/crepe"
	"github.com/haivivi/pitchscope/pkg/observe"
	"github.com/haivivi/pitchscope/pkg/pitch"
)

// State is the lifecycle state of a Pipeline.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Config tunes a Pipeline. Zero values select defaults.
type Config struct {
	FrameSize    int              // default crepe.FrameSize
	Hop          int              // default crepe.HopSize
	SinkCapacity int              // default DefaultCapacity
	Engine       resampler.Engine // default soxr

	// Throttle is the minimum wall time between emitted points. Results
	// arriving sooner are discarded. Zero emits every decoded frame.
	Throttle time.Duration

	// Backend labels metrics and spans, e.g. "kernel" or "graph".
	Backend string
}

func (c *Config) defaults() {
	if c.FrameSize <= 0 {
		c.FrameSize = crepe.FrameSize
	}
	if c.Hop <= 0 {
		c.Hop = crepe.HopSize
	}
	if c.SinkCapacity <= 0 {
		c.SinkCapacity = DefaultCapacity
	}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records pipeline metrics to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithRecorder persists every emitted point to r.
func WithRecorder(r *Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// Pipeline runs the live path from a Source to a Sink.
//
// Start, Stop, Reset and Pause may be called from any goroutine. Push is
// the producer entry point and is normally called only by the Source.
type Pipeline struct {
	cfg      Config
	adapter  crepe.Adapter
	sink     *Sink
	logger   *slog.Logger
	metrics  *observe.Metrics
	recorder *Recorder

	life  sync.Mutex // serializes Start and Stop
	state atomic.Int32

	// Producer state, guarded by prod.
	prod     sync.Mutex
	attached bool
	src      Source
	rs       *resampler.Stream
	framer   *Framer
	sched    *Scheduler
	ctx      context.Context
	cancel   context.CancelFunc

	paused atomic.Bool

	emitMu   sync.Mutex
	lastEmit time.Time
}

// NewPipeline returns an idle Pipeline owning adapter. The adapter must
// not be initialized; Start does that.
func NewPipeline(cfg Config, adapter crepe.Adapter, opts ...Option) *Pipeline {
	cfg.defaults()
	p := &Pipeline{
		cfg:     cfg,
		adapter: adapter,
		sink:    NewSink(cfg.SinkCapacity),
		logger:  slog.Default(),
		framer:  NewFramer(cfg.FrameSize, cfg.Hop),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Sink returns the point sink.
func (p *Pipeline) Sink() *Sink { return p.sink }

// State returns the lifecycle state.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// Start initializes the adapter, opens a resampler for the source rate and
// attaches the producer. Init errors are returned as is, and the adapter
// and recorder are closed. A Pipeline can be started once.
func (p *Pipeline) Start(ctx context.Context, src Source) error {
	p.life.Lock()
	defer p.life.Unlock()

	if st := p.State(); st != StateIdle {
		return fmt.Errorf("stream: cannot start %s pipeline", st)
	}

	if err := p.adapter.Init(ctx); err != nil {
		p.closeOwned()
		p.state.Store(int32(StateStopped))
		return err
	}

	rs, err := resampler.NewStream(src.Rate(), resampler.WithEngine(p.cfg.Engine))
	if err != nil {
		p.closeOwned()
		p.state.Store(int32(StateStopped))
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sched := NewScheduler(p.adapter, p.handle,
		WithSchedulerLogger(p.logger),
		WithSchedulerMetrics(p.metrics),
		WithBackendName(p.cfg.Backend),
	)

	p.prod.Lock()
	p.src, p.rs, p.sched = src, rs, sched
	p.ctx, p.cancel = runCtx, cancel
	p.attached = true
	p.prod.Unlock()
	p.state.Store(int32(StateRunning))

	if f, ok := src.(Finite); ok {
		f.OnEnd(p.Drain)
	}
	if err := src.Start(p.Push); err != nil {
		return errors.Join(fmt.Errorf("stream: start source: %w", err), p.stopLocked())
	}

	p.logger.Info("pipeline started",
		"source_rate", src.Rate(),
		"passthrough", rs.Passthrough(),
		"backend", p.cfg.Backend,
	)
	return nil
}

// Push feeds one native-rate chunk through resampling, framing and
// admission. It never blocks on inference. Chunks pushed while the
// pipeline is not running or is paused are discarded.
func (p *Pipeline) Push(chunk []float32) {
	p.prod.Lock()
	defer p.prod.Unlock()
	if !p.attached || p.paused.Load() {
		return
	}

	out, err := p.rs.Push(chunk)
	if err != nil {
		p.logger.Warn("resample failed", "error", err)
		return
	}
	p.framer.Push(out, func(idx int64, frame crepe.Frame) {
		p.sched.Admit(p.ctx, idx, frame)
	})
}

// Drain flushes the resampler and frames its tail, so a finite source
// yields the same frames as the batch path. Call it once the source has
// delivered its last chunk; Start registers it with Finite sources.
func (p *Pipeline) Drain() {
	p.prod.Lock()
	defer p.prod.Unlock()
	if !p.attached {
		return
	}

	tail, err := p.rs.Flush()
	if err != nil {
		p.logger.Warn("resampler flush failed", "error", err)
		return
	}
	p.framer.Push(tail, func(idx int64, frame crepe.Frame) {
		p.sched.Admit(p.ctx, idx, frame)
	})
}

// Pause discards incoming chunks while on is true. The framer window is
// kept, so frames resume where the stream left off.
func (p *Pipeline) Pause(on bool) {
	p.paused.Store(on)
}

// Paused reports whether the pipeline is paused.
func (p *Pipeline) Paused() bool {
	return p.paused.Load()
}

// Wait blocks until no inference is in flight.
func (p *Pipeline) Wait() {
	p.prod.Lock()
	sched := p.sched
	p.prod.Unlock()
	if sched != nil {
		sched.Wait()
	}
}

// Stats returns the scheduler's admitted and dropped counts.
func (p *Pipeline) Stats() (admitted, dropped int64) {
	p.prod.Lock()
	sched := p.sched
	p.prod.Unlock()
	if sched == nil {
		return 0, 0
	}
	return sched.Stats()
}

// Reset clears the sink and restarts point and frame numbering. A result
// in flight when Reset is called is discarded.
func (p *Pipeline) Reset() {
	p.prod.Lock()
	p.framer.Reset()
	if p.rs != nil {
		if err := p.rs.Reset(); err != nil {
			p.logger.Warn("resampler reset failed", "error", err)
		}
	}
	if p.sched != nil {
		p.sched.Invalidate()
	}
	p.prod.Unlock()

	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	p.lastEmit = time.Time{}
	p.sink.Reset()
}

// Stop detaches the producer, stops and closes the source, waits for the
// in-flight inference (its result is discarded) and closes the adapter.
// Stop is idempotent. On a pipeline that never started it only closes the
// adapter and recorder.
func (p *Pipeline) Stop() error {
	p.life.Lock()
	defer p.life.Unlock()
	return p.stopLocked()
}

func (p *Pipeline) stopLocked() error {
	if p.State() == StateStopped {
		return nil
	}
	p.state.Store(int32(StateStopped))

	p.prod.Lock()
	src, rs, sched, cancel := p.src, p.rs, p.sched, p.cancel
	p.attached = false
	p.prod.Unlock()

	if src == nil {
		// Never started. The pipeline still owns the adapter and recorder.
		return errors.Join(p.closeOwned()...)
	}
	sched.Halt()

	var errs []error
	if err := src.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stream: stop source: %w", err))
	}
	if err := src.Close(); err != nil {
		errs = append(errs, fmt.Errorf("stream: close source: %w", err))
	}
	sched.Stop()
	cancel()
	rs.Close()
	errs = append(errs, p.closeOwned()...)

	admitted, dropped := sched.Stats()
	p.logger.Info("pipeline stopped", "admitted", admitted, "dropped", dropped, "points", p.sink.NextIdx())
	return errors.Join(errs...)
}

func (p *Pipeline) closeOwned() []error {
	var errs []error
	if err := p.adapter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("stream: close adapter: %w", err))
	}
	if p.recorder != nil {
		if err := p.recorder.Close(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// handle decodes a result and appends the point. It runs on the inference
// goroutine.
func (p *Pipeline) handle(res Result) {
	ctx := p.ctx
	if res.Err != nil {
		observe.With(ctx, p.logger).Warn("inference failed", "frame", res.FrameIdx, "error", res.Err)
		return
	}

	est, err := pitch.Decode(res.Activation)
	if err != nil {
		p.metrics.RecordDecodeError(ctx)
		observe.With(ctx, p.logger).Warn("decode failed", "frame", res.FrameIdx, "error", err)
		return
	}

	pt, ok := p.emit(res, est)
	if !ok {
		return
	}
	p.metrics.RecordPoint(ctx)

	if p.recorder != nil {
		if err := p.recorder.Record(ctx, pt); err != nil {
			p.logger.Warn("record point failed", "idx", pt.Idx, "error", err)
		}
	}
}

// emit appends the point for res unless the pipeline stopped, Reset ran
// since the frame was admitted, or the throttle window is still open.
// Reset holds emitMu while it clears the sink.
func (p *Pipeline) emit(res Result, est pitch.Estimate) (Point, bool) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	if p.State() == StateStopped || !p.sched.Current(res.Gen) {
		return Point{}, false
	}

	now := time.Now()
	if p.cfg.Throttle > 0 {
		if !p.lastEmit.IsZero() && now.Sub(p.lastEmit) < p.cfg.Throttle {
			return Point{}, false
		}
		p.lastEmit = now
	}

	return p.sink.Append(Point{
		PitchHz:     est.Hz,
		PitchCents:  est.Cents,
		PitchNote:   pitch.Note(est.Hz),
		Confidence:  est.Confidence,
		TimestampMs: frameTimeMs(res.FrameIdx, p.cfg.Hop),
		LatencyMs:   float64(now.Sub(res.Admitted)) / float64(time.Millisecond),
	}), true
}
