package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// counterValue finds the int64 sum data point matching the given attribute
// and returns its value, or -1 when absent.
func counterValue(met *metricdata.Metrics, key, value string) int64 {
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		return -1
	}
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value
			}
		}
	}
	return -1
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"murmur.recording.duration", m.RecordingDuration},
		{"murmur.scan.duration", m.ScanDuration},
		{"murmur.submission.duration", m.SubmissionDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 4.56)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordRecording(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRecording(ctx, "stopped", 12.5)
	m.RecordRecording(ctx, "stopped", 3.1)
	m.RecordRecording(ctx, "failed", 0.2)

	rm := collect(t, reader)
	met := findMetric(rm, "murmur.recordings")
	if met == nil {
		t.Fatal("metric not found")
	}
	if got := counterValue(met, "outcome", "stopped"); got != 2 {
		t.Errorf("stopped count = %d, want 2", got)
	}
	if got := counterValue(met, "outcome", "failed"); got != 1 {
		t.Errorf("failed count = %d, want 1", got)
	}
}

func TestRecordScanDetections(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordScanDetections(ctx, []string{"nhs-number", "dob"})
	m.RecordScanDetections(ctx, []string{"nhs-number"})
	m.RecordScanDetections(ctx, nil)

	rm := collect(t, reader)
	met := findMetric(rm, "murmur.scan.detections")
	if met == nil {
		t.Fatal("metric not found")
	}
	if got := counterValue(met, "category", "nhs-number"); got != 2 {
		t.Errorf("nhs-number count = %d, want 2", got)
	}
	if got := counterValue(met, "category", "dob"); got != 1 {
		t.Errorf("dob count = %d, want 1", got)
	}
}

func TestRecordGateDecision(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordGateDecision(ctx, "accept-redacted")
	m.RecordGateDecision(ctx, "rerecord")
	m.RecordGateDecision(ctx, "rerecord")

	rm := collect(t, reader)
	met := findMetric(rm, "murmur.gate.decisions")
	if met == nil {
		t.Fatal("metric not found")
	}
	if got := counterValue(met, "decision", "rerecord"); got != 2 {
		t.Errorf("rerecord count = %d, want 2", got)
	}
}

func TestRecordSubmission(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSubmission(ctx, "succeeded", 1.8)
	m.RecordSubmission(ctx, "pii-rejected", 0.9)

	rm := collect(t, reader)

	met := findMetric(rm, "murmur.submissions")
	if met == nil {
		t.Fatal("counter metric not found")
	}
	if got := counterValue(met, "result", "succeeded"); got != 1 {
		t.Errorf("succeeded count = %d, want 1", got)
	}

	hmet := findMetric(rm, "murmur.submission.duration")
	if hmet == nil {
		t.Fatal("histogram metric not found")
	}
	hist, ok := hmet.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 2 {
		t.Errorf("total histogram samples = %d, want 2", count)
	}
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveRecordings.Add(ctx, 1)
	m.GatewayClients.Add(ctx, 2)
	m.GatewayClients.Add(ctx, -1)

	rm := collect(t, reader)

	gauges := []struct {
		name string
		want int64
	}{
		{"murmur.active_recordings", 1},
		{"murmur.gateway.clients", 1},
	}

	for _, tc := range gauges {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not a sum", tc.name)
			}
			if len(sum.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := sum.DataPoints[0].Value; got != tc.want {
				t.Errorf("gauge value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "murmur.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
