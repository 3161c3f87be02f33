// Package observe provides the worker's observability primitives: OpenTelemetry
// metric instruments and a Prometheus exporter bridge so the standard /metrics
// endpoint keeps working.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided for
// convenience; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all worker metrics.
const meterName = "video-sentiment-go"

// Metrics holds the worker's metric instruments. All fields are safe for
// concurrent use; the underlying OTel types synchronise themselves.
type Metrics struct {
	// DownloadDuration tracks how long the input video download takes.
	DownloadDuration metric.Float64Histogram

	// TranscriptionDuration tracks audio extraction plus transcription latency.
	TranscriptionDuration metric.Float64Histogram

	// ClassificationDuration tracks batch classification latency.
	ClassificationDuration metric.Float64Histogram

	// PersistDuration tracks artifact upload latency.
	PersistDuration metric.Float64Histogram

	// JobsCompleted counts jobs reaching a terminal state. Use with
	// attribute.String("status", ...).
	JobsCompleted metric.Int64Counter

	// ClassifierLoads counts model config loads. Use with
	// attribute.String("status", ...); should stay at one success per process.
	ClassifierLoads metric.Int64Counter

	// JobsInFlight tracks concurrently running jobs.
	JobsInFlight metric.Int64UpDownCounter
}

// stageBuckets covers the wide latency range of pipeline stages, from a quick
// artifact upload to a multi-minute transcription.
var stageBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600,
}

// NewMetrics creates a fully initialised [Metrics] using the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.DownloadDuration, err = m.Float64Histogram("worker.download.duration",
		metric.WithDescription("Latency of input video download."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("worker.transcription.duration",
		metric.WithDescription("Latency of audio extraction and transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ClassificationDuration, err = m.Float64Histogram("worker.classification.duration",
		metric.WithDescription("Latency of batch emotion/sentiment classification."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PersistDuration, err = m.Float64Histogram("worker.persist.duration",
		metric.WithDescription("Latency of result artifact upload."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}

	if met.JobsCompleted, err = m.Int64Counter("worker.jobs.completed",
		metric.WithDescription("Jobs reaching a terminal state, by status."),
	); err != nil {
		return nil, err
	}
	if met.ClassifierLoads, err = m.Int64Counter("worker.classifier.loads",
		metric.WithDescription("Model config load attempts, by status."),
	); err != nil {
		return nil, err
	}

	if met.JobsInFlight, err = m.Int64UpDownCounter("worker.jobs.in_flight",
		metric.WithDescription("Number of currently running jobs."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], creating it on first call
// from the global meter provider. Panics if instrument creation fails, which
// cannot happen with the global provider.
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

// RecordJob increments the terminal-state counter for one job.
func (m *Metrics) RecordJob(ctx context.Context, status string) {
	m.JobsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordClassifierLoad increments the model-load counter.
func (m *Metrics) RecordClassifierLoad(ctx context.Context, status string) {
	m.ClassifierLoads.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
