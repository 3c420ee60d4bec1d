package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/haivivi/pitchscope/pkg/audio/portaudio"
	"github.com/haivivi/pitchscope/pkg/audio/resampler"
	"github.com/haivivi/pitchscope/pkg/audio/wav"
	"github.com/haivivi/pitchscope/pkg/cli"
	"github.com/haivivi/pitchscope/pkg/kv"
	"github.com/haivivi/pitchscope/pkg/observe"
	"github.com/haivivi/pitchscope/pkg/stream"
)

// sourceFlags are shared by live and serve.
type sourceFlags struct {
	file   string
	fast   bool
	record bool
}

func (f *sourceFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.file, "file", "", "replay a WAV file instead of capturing")
	fs.BoolVar(&f.fast, "fast", false, "replay as fast as possible (with --file)")
	fs.BoolVar(&f.record, "record", false, "record points to the session store")
	fs.Int("input-device", -1, "capture device index (see 'pitchscope devices')")
}

// liveRun is a started pipeline with everything it holds open.
type liveRun struct {
	pipeline *stream.Pipeline
	replay   *stream.Replay // nil when capturing
	backend  string
	model    string

	store     kv.Store
	terminate func() error
}

// openSource returns the replay or capture source for f. terminate
// releases the audio host after the source is closed.
func openSource(p cli.Profile, f *sourceFlags, logger *slog.Logger) (src stream.Source, replay *stream.Replay, terminate func() error, err error) {
	if f.file != "" {
		audio, err := wav.ReadFile(f.file)
		if err != nil {
			return nil, nil, nil, err
		}
		r := stream.NewReplay(audio.Samples, audio.Rate, 0)
		r.Fast = f.fast
		return r, r, func() error { return nil }, nil
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, nil, nil, err
	}
	c, err := portaudio.Open(portaudio.Config{Device: *p.InputDevice, Logger: logger})
	if err != nil {
		portaudio.Terminate()
		return nil, nil, nil, err
	}
	logger.Info("capturing", "device", c.Device().Name, "rate", c.Rate())
	return c, nil, portaudio.Terminate, nil
}

// startLive builds and starts the pipeline described by p and f.
func startLive(ctx context.Context, p cli.Profile, f *sourceFlags, logger *slog.Logger, metrics *observe.Metrics) (*liveRun, error) {
	engine, err := resampler.ParseEngine(p.Engine)
	if err != nil {
		return nil, err
	}
	throttle, err := p.ThrottleDuration()
	if err != nil {
		return nil, err
	}

	adapter, cfg, closeCache, err := newAdapter(p, logger)
	if err != nil {
		return nil, err
	}
	run := &liveRun{backend: backendName(cfg.Kind), model: cfg.Model}

	src, replay, terminate, err := openSource(p, f, logger)
	if err != nil {
		closeCache()
		adapter.Close()
		return nil, err
	}
	run.replay, run.terminate = replay, terminate

	opts := []stream.Option{stream.WithLogger(logger), stream.WithMetrics(metrics)}
	if f.record {
		sessionsDir, _, err := storeDirs(p)
		if err == nil {
			run.store, err = kv.NewBadger(kv.BadgerOptions{Dir: sessionsDir, Logger: logger})
		}
		var rec *stream.Recorder
		if err == nil {
			rec, err = stream.NewRecorder(ctx, run.store, stream.Session{
				Backend:    run.backend,
				Model:      run.model,
				SourceRate: src.Rate(),
			}, logger)
		}
		if err != nil {
			closeCache()
			adapter.Close()
			src.Close()
			return nil, errors.Join(fmt.Errorf("open session store: %w", err), run.close())
		}
		opts = append(opts, stream.WithRecorder(rec))
	}

	run.pipeline = stream.NewPipeline(stream.Config{
		SinkCapacity: p.SinkCapacity,
		Engine:       engine,
		Throttle:     throttle,
		Backend:      run.backend,
	}, adapter, opts...)

	err = run.pipeline.Start(ctx, src)
	closeCache()
	if err != nil {
		// Start closed the adapter. Source Close is idempotent.
		src.Close()
		return nil, errors.Join(err, run.close())
	}
	return run, nil
}

// done is closed when a replay finishes. It is nil for capture.
func (r *liveRun) done() <-chan struct{} {
	if r.replay == nil {
		return nil
	}
	return r.replay.Done()
}

// Stop stops the pipeline and releases the store and audio host.
func (r *liveRun) Stop() error {
	return errors.Join(r.pipeline.Stop(), r.close())
}

func (r *liveRun) close() error {
	var errs []error
	if r.store != nil {
		errs = append(errs, r.store.Close())
		r.store = nil
	}
	if r.terminate != nil {
		errs = append(errs, r.terminate())
		r.terminate = nil
	}
	return errors.Join(errs...)
}
