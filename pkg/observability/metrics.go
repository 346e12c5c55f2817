package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for every metric emitted
// by this module.
const meterName = "github.com/hashing-labs/meetscribe"

// Metrics holds every OpenTelemetry instrument recorded against by the
// pipeline. All fields are safe for concurrent use — the underlying
// OTel types handle their own synchronization.
type Metrics struct {
	// ActiveSessions tracks the number of live streaming sessions
	// currently attached to /ws/streaming-audio.
	ActiveSessions metric.Int64UpDownCounter

	// TranscriptionInFlight tracks backend transcription calls
	// currently executing inside the bounded worker pool.
	TranscriptionInFlight metric.Int64UpDownCounter

	// TranscriptionDuration tracks backend transcription call latency.
	TranscriptionDuration metric.Float64Histogram

	// RecorderChunksWritten counts audio chunks persisted by the
	// recorder. It is recorded without attributes.
	RecorderChunksWritten metric.Int64Counter

	// DiarizationDuration tracks end-to-end diarization job latency by
	// provider.
	DiarizationDuration metric.Float64Histogram

	// AlignmentConfidence records the per-segment confidence score
	// produced by the alignment engine, bucketed for a distribution
	// view across meetings.
	AlignmentConfidence metric.Float64Histogram

	// BackendErrors counts transcription/diarization backend failures
	// by provider and BackendErrorKind.
	BackendErrors metric.Int64Counter
}

var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}

// NewMetrics creates a fully initialized Metrics struct against the
// given meter provider. Returns an error if any instrument creation
// fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.ActiveSessions, err = m.Int64UpDownCounter("meetscribe.sessions.active",
		metric.WithDescription("Number of live streaming-audio sessions."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionInFlight, err = m.Int64UpDownCounter("meetscribe.transcription.in_flight",
		metric.WithDescription("Backend transcription calls currently executing."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("meetscribe.transcription.duration",
		metric.WithDescription("Latency of a single transcription backend call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecorderChunksWritten, err = m.Int64Counter("meetscribe.recorder.chunks_written",
		metric.WithDescription("Audio chunks persisted by the recorder."),
	); err != nil {
		return nil, err
	}
	if met.DiarizationDuration, err = m.Float64Histogram("meetscribe.diarization.duration",
		metric.WithDescription("End-to-end diarization job latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AlignmentConfidence, err = m.Float64Histogram("meetscribe.alignment.confidence",
		metric.WithDescription("Per-segment confidence produced by the alignment engine."),
		metric.WithExplicitBucketBoundaries(0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0),
	); err != nil {
		return nil, err
	}
	if met.BackendErrors, err = m.Int64Counter("meetscribe.backend.errors",
		metric.WithDescription("Transcription/diarization backend failures by provider and kind."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level Metrics instance, creating
// it on first call against the global OTel meter provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observability: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordBackendError is a convenience wrapper recording a backend
// error counter increment with the standard attribute set.
func (m *Metrics) RecordBackendError(ctx context.Context, provider, kind string) {
	m.BackendErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}
