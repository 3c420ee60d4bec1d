// Package observe provides the observability primitives of the pitch
// pipeline: OpenTelemetry metrics, tracing, and trace-correlated slog
// loggers.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// installs a Prometheus exporter bridge so they can be scraped from
// /metrics. [DefaultMetrics] uses the global provider; tests should use
// [NewMetrics] with their own [metric.MeterProvider].
//
// A nil *Metrics is valid and records nothing.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all pitchscope metrics.
const meterName = "github.com/haivivi/pitchscope"

// Metrics holds the pipeline's metric instruments.
type Metrics struct {
	// FramesAdmitted counts frames accepted by the scheduler.
	FramesAdmitted metric.Int64Counter

	// FramesDropped counts frames skipped because inference was busy.
	FramesDropped metric.Int64Counter

	// InferenceErrors counts failed adapter runs. Use with attribute:
	//   attribute.String("backend", ...)
	InferenceErrors metric.Int64Counter

	// DecodeErrors counts activations without a defined centroid.
	DecodeErrors metric.Int64Counter

	// InferenceDuration tracks adapter run latency. Use with attribute:
	//   attribute.String("backend", ...)
	InferenceDuration metric.Float64Histogram

	// PointsEmitted counts points appended to the sink.
	PointsEmitted metric.Int64Counter

	// HTTPRequestDuration tracks point server request time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// StreamClients tracks connected websocket subscribers.
	StreamClients metric.Int64UpDownCounter
}

// inferenceBuckets are histogram boundaries in seconds around the 10 ms
// hop budget.
var inferenceBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.02, 0.05, 0.1, 0.25, 0.5, 1,
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesAdmitted, err = m.Int64Counter("pitchscope.frames.admitted",
		metric.WithDescription("Frames accepted for inference."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("pitchscope.frames.dropped",
		metric.WithDescription("Frames dropped because an inference was in flight."),
	); err != nil {
		return nil, err
	}
	if met.InferenceErrors, err = m.Int64Counter("pitchscope.inference.errors",
		metric.WithDescription("Failed inference runs by backend."),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("pitchscope.decode.errors",
		metric.WithDescription("Activations that could not be decoded."),
	); err != nil {
		return nil, err
	}
	if met.InferenceDuration, err = m.Float64Histogram("pitchscope.inference.duration",
		metric.WithDescription("Latency of one inference run."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(inferenceBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PointsEmitted, err = m.Int64Counter("pitchscope.points.emitted",
		metric.WithDescription("Pitch points appended to the sink."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("pitchscope.http.request.duration",
		metric.WithDescription("Point server request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.StreamClients, err = m.Int64UpDownCounter("pitchscope.stream.clients",
		metric.WithDescription("Connected point stream subscribers."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], created on first call
// from [otel.GetMeterProvider].
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordAdmitted counts one admitted frame.
func (m *Metrics) RecordAdmitted(ctx context.Context) {
	if m == nil {
		return
	}
	m.FramesAdmitted.Add(ctx, 1)
}

// RecordDropped counts one dropped frame.
func (m *Metrics) RecordDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.FramesDropped.Add(ctx, 1)
}

// RecordInference records one run's latency and, if it failed, an error.
func (m *Metrics) RecordInference(ctx context.Context, backend string, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("backend", backend))
	m.InferenceDuration.Record(ctx, d.Seconds(), attrs)
	if failed {
		m.InferenceErrors.Add(ctx, 1, attrs)
	}
}

// RecordDecodeError counts one undecodable activation.
func (m *Metrics) RecordDecodeError(ctx context.Context) {
	if m == nil {
		return
	}
	m.DecodeErrors.Add(ctx, 1)
}

// RecordPoint counts one emitted point.
func (m *Metrics) RecordPoint(ctx context.Context) {
	if m == nil {
		return
	}
	m.PointsEmitted.Add(ctx, 1)
}

// AddStreamClients adjusts the subscriber gauge by delta.
func (m *Metrics) AddStreamClients(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.StreamClients.Add(ctx, delta)
}
