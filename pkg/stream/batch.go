package stream

import (
	"context"
	"log/slog"
	"time"

	"github.com/haivivi/pitchscope/pkg/audio/resampler"
	"github.com/haivivi/pitchscope/pkg/crepe"
	"github.com/haivivi/pitchscope/pkg/observe"
	"github.com/haivivi/pitchscope/pkg/pitch"
)

// Row is one line of batch output.
type Row struct {
	Time       float64 // seconds, frame index * hop / 16000
	Frequency  float64 // Hz
	Confidence float64
}

// BatchOptions tunes Batch. Zero values select defaults.
type BatchOptions struct {
	FrameSize int              // default crepe.FrameSize
	Hop       int              // default crepe.HopSize
	Engine    resampler.Engine // default soxr
	Logger    *slog.Logger
	Metrics   *observe.Metrics

	// Progress, when set, is called after each frame with the number of
	// frames done and the total.
	Progress func(done, total int)
}

// Batch estimates pitch for every frame of a whole recording. samples are
// mono at rate; adapter must already be initialized. Frames whose inference
// or decode fails are logged and produce no row. Batch stops early only if
// ctx is cancelled.
func Batch(ctx context.Context, adapter crepe.Adapter, samples []float32, rate int, opts BatchOptions) ([]Row, error) {
	if opts.FrameSize <= 0 {
		opts.FrameSize = crepe.FrameSize
	}
	if opts.Hop <= 0 {
		opts.Hop = crepe.HopSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	audio, err := resampler.Resample(samples, rate, resampler.WithEngine(opts.Engine))
	if err != nil {
		return nil, err
	}
	audio, err = resampler.Trim(audio, opts.FrameSize, opts.Hop)
	if err != nil {
		return nil, err
	}

	total := Count(len(audio), opts.FrameSize, opts.Hop)
	logger.Info("batch framing", "samples", len(audio), "frames", total)

	rows := make([]Row, 0, total)
	for k, frame := range Frames(audio, opts.FrameSize, opts.Hop) {
		if err := ctx.Err(); err != nil {
			return rows, err
		}
		if est, ok := batchFrame(ctx, adapter, frame, k, logger, opts.Metrics); ok {
			rows = append(rows, Row{
				Time:       float64(k*opts.Hop) / crepe.SampleRate,
				Frequency:  est.Hz,
				Confidence: est.Confidence,
			})
		}
		if opts.Progress != nil {
			opts.Progress(k+1, total)
		}
	}
	return rows, nil
}

func batchFrame(ctx context.Context, adapter crepe.Adapter, frame crepe.Frame, k int, logger *slog.Logger, m *observe.Metrics) (pitch.Estimate, bool) {
	start := time.Now()
	act, err := adapter.Run(ctx, frame)
	m.RecordInference(ctx, "batch", time.Since(start), err != nil)
	if err != nil {
		logger.Warn("inference failed", "frame", k, "error", err)
		return pitch.Estimate{}, false
	}
	est, err := pitch.Decode(act)
	if err != nil {
		m.RecordDecodeError(ctx)
		logger.Warn("decode failed", "frame", k, "error", err)
		return pitch.Estimate{}, false
	}
	return est, true
}
