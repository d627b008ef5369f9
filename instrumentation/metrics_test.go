package instrumentation

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestInstrumentation(t *testing.T) (*Instrumentation, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	inst, err := New(Config{Enabled: true, MetricReader: reader})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = inst.Shutdown(context.Background()) })
	return inst, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	return rm
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	inst, reader := newTestInstrumentation(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		method     string
		endpoint   string
		statusCode int
		durationMs float64
	}{
		{"redirect", "GET", "/", 200, 1.2},
		{"missing state", "GET", "/redirect", 400, 0.4},
		{"retrieval", "GET", "/retrieval", 200, 0.9},
		{"upgrade", "GET", "/socket", 101, 3.0},
	}

	for _, tt := range tests {
		inst.Metrics().RecordHTTPRequest(ctx, tt.method, tt.endpoint, tt.statusCode, tt.durationMs)
	}

	rm := collect(t, reader)
	got, ok := sumValue(rm, "relay.http.requests.total")
	if !ok {
		t.Fatal("relay.http.requests.total not collected")
	}
	if got != int64(len(tests)) {
		t.Errorf("relay.http.requests.total = %d, want %d", got, len(tests))
	}
}

func TestMetrics_RecordSessionLifecycle(t *testing.T) {
	inst, reader := newTestInstrumentation(t)
	ctx := context.Background()
	m := inst.Metrics()

	m.RecordHandshake(ctx, "accepted")
	m.RecordHandshake(ctx, "unauthorized")
	m.RecordSessionRegistered(ctx, false)
	m.RecordSessionRegistered(ctx, true)
	m.RecordPing(ctx, true)
	m.RecordPing(ctx, true)
	m.RecordPing(ctx, false)
	m.RecordSessionClosed(ctx, "delivered", 4.2)

	rm := collect(t, reader)

	tests := []struct {
		metric string
		want   int64
	}{
		{"relay.handshake.total", 2},
		{"relay.session.registered", 2},
		{"relay.keepalive.pings", 3},
		{"relay.session.closed", 1},
	}
	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			got, ok := sumValue(rm, tt.metric)
			if !ok {
				t.Fatalf("%s not collected", tt.metric)
			}
			if got != tt.want {
				t.Errorf("%s = %d, want %d", tt.metric, got, tt.want)
			}
		})
	}
}

func TestMetrics_RecordCorrelation(t *testing.T) {
	inst, reader := newTestInstrumentation(t)
	ctx := context.Background()
	m := inst.Metrics()

	m.RecordRedirect(ctx, "delivered")
	m.RecordRedirect(ctx, "unregistered")
	m.RecordRedirect(ctx, "stored")
	m.RecordDeliveryFailed(ctx)
	m.RecordRetrieval(ctx, "hit")
	m.RecordRetrieval(ctx, "miss")

	rm := collect(t, reader)

	if got, _ := sumValue(rm, "relay.redirect.total"); got != 3 {
		t.Errorf("relay.redirect.total = %d, want 3", got)
	}
	if got, _ := sumValue(rm, "relay.delivery.failed"); got != 1 {
		t.Errorf("relay.delivery.failed = %d, want 1", got)
	}
	if got, _ := sumValue(rm, "relay.retrieval.total"); got != 2 {
		t.Errorf("relay.retrieval.total = %d, want 2", got)
	}
}

func TestMetrics_RecordSecurityAndStorage(t *testing.T) {
	inst, reader := newTestInstrumentation(t)
	ctx := context.Background()
	m := inst.Metrics()

	m.RecordRateLimitExceeded(ctx, "/socket")
	m.RecordAuditEvent(ctx, "auth_failure")
	m.RecordAuditEvent(ctx, "session_replaced")
	m.RecordStorageOperation(ctx, "register_session", "success", 0.01)
	m.RecordStorageOperation(ctx, "take_session", "not_found", 0.02)

	rm := collect(t, reader)

	if got, _ := sumValue(rm, "relay.rate_limit.exceeded"); got != 1 {
		t.Errorf("relay.rate_limit.exceeded = %d, want 1", got)
	}
	if got, _ := sumValue(rm, "relay.audit.events.total"); got != 2 {
		t.Errorf("relay.audit.events.total = %d, want 2", got)
	}
	if got, _ := sumValue(rm, "storage.operation.total"); got != 2 {
		t.Errorf("storage.operation.total = %d, want 2", got)
	}
}
