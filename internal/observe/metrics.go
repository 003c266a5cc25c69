// Package observe provides observability primitives for Murmur:
// OpenTelemetry metrics, tracing, and HTTP middleware that ties them
// together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported
// via a Prometheus bridge (see [InitProvider]) so they can be scraped from
// the standard /metrics endpoint. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Murmur metrics.
const meterName = "github.com/feldspar-health/murmur"

// Metrics holds all OpenTelemetry metric instruments for the dictation
// pipeline. All fields are safe for concurrent use — the underlying OTel
// types handle their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// RecordingDuration tracks wall-clock length of completed recordings.
	RecordingDuration metric.Float64Histogram

	// ScanDuration tracks how long a disclosure scan of a finished
	// transcript takes.
	ScanDuration metric.Float64Histogram

	// SubmissionDuration tracks end-to-end backend submission latency,
	// including the server round trip.
	SubmissionDuration metric.Float64Histogram

	// --- Counters ---

	// Recordings counts recording sessions by terminal outcome. Use with
	//   attribute.String("outcome", "stopped"|"failed"|"discarded")
	Recordings metric.Int64Counter

	// ScanDetections counts detected disclosure categories. Use with
	//   attribute.String("category", ...)
	ScanDetections metric.Int64Counter

	// GateDecisions counts how flagged transcripts were resolved. Use with
	//   attribute.String("decision", "accept-redacted"|"rerecord")
	GateDecisions metric.Int64Counter

	// Submissions counts send attempts by result. Use with
	//   attribute.String("result", "succeeded"|"failed"|"timeout"|"pii-rejected")
	Submissions metric.Int64Counter

	// TranscriberRestarts counts mid-recording recognition stream restarts.
	TranscriberRestarts metric.Int64Counter

	// --- Gauges ---

	// ActiveRecordings tracks recording sessions currently capturing audio.
	// At most one in normal operation.
	ActiveRecordings metric.Int64UpDownCounter

	// GatewayClients tracks connected UI websocket clients.
	GatewayClients metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries in seconds. The wide
// upper range covers backend submissions that run up to the send timeout.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RecordingDuration, err = m.Float64Histogram("murmur.recording.duration",
		metric.WithDescription("Wall-clock length of completed recordings."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ScanDuration, err = m.Float64Histogram("murmur.scan.duration",
		metric.WithDescription("Latency of transcript disclosure scans."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SubmissionDuration, err = m.Float64Histogram("murmur.submission.duration",
		metric.WithDescription("End-to-end backend submission latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Recordings, err = m.Int64Counter("murmur.recordings",
		metric.WithDescription("Recording sessions by terminal outcome."),
	); err != nil {
		return nil, err
	}
	if met.ScanDetections, err = m.Int64Counter("murmur.scan.detections",
		metric.WithDescription("Detected disclosure categories by category name."),
	); err != nil {
		return nil, err
	}
	if met.GateDecisions, err = m.Int64Counter("murmur.gate.decisions",
		metric.WithDescription("Resolutions of flagged transcripts by decision."),
	); err != nil {
		return nil, err
	}
	if met.Submissions, err = m.Int64Counter("murmur.submissions",
		metric.WithDescription("Backend send attempts by result."),
	); err != nil {
		return nil, err
	}
	if met.TranscriberRestarts, err = m.Int64Counter("murmur.transcriber.restarts",
		metric.WithDescription("Mid-recording recognition stream restarts."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRecordings, err = m.Int64UpDownCounter("murmur.active_recordings",
		metric.WithDescription("Recording sessions currently capturing audio."),
	); err != nil {
		return nil, err
	}
	if met.GatewayClients, err = m.Int64UpDownCounter("murmur.gateway.clients",
		metric.WithDescription("Connected UI websocket clients."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("murmur.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordRecording records a finished recording with its terminal outcome and
// wall-clock length in seconds.
func (m *Metrics) RecordRecording(ctx context.Context, outcome string, seconds float64) {
	m.Recordings.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
	m.RecordingDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordScanDetections increments the detection counter once per detected
// category.
func (m *Metrics) RecordScanDetections(ctx context.Context, categories []string) {
	for _, c := range categories {
		m.ScanDetections.Add(ctx, 1,
			metric.WithAttributes(attribute.String("category", c)),
		)
	}
}

// RecordGateDecision records how a flagged transcript was resolved.
func (m *Metrics) RecordGateDecision(ctx context.Context, decision string) {
	m.GateDecisions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("decision", decision)),
	)
}

// RecordSubmission records a backend send attempt with its result and
// latency in seconds.
func (m *Metrics) RecordSubmission(ctx context.Context, result string, seconds float64) {
	m.Submissions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)),
	)
	m.SubmissionDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("result", result)),
	)
}
