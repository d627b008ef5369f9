// Package instrumentation provides OpenTelemetry (OTEL) instrumentation for the relay.
//
// It owns the meter and tracer providers, the relay's metric instruments and a
// few nil-safe span helpers. When Config.Enabled is false every provider is a
// no-op and recording costs nothing.
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "oauth-relay",
//		ServiceVersion: "1.0.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	mux.Handle("/metrics", inst.MetricsHandler())
//
// Metrics are exported through a private Prometheus registry by default. Set
// OTLPEndpoint to also ship spans to an OTLP/HTTP collector.
//
// # Available Metrics
//
// HTTP Layer:
//   - relay.http.requests.total{method, endpoint, status}
//   - relay.http.request.duration{endpoint} (ms)
//
// Sessions:
//   - relay.handshake.total{result}
//   - relay.session.registered{replaced}
//   - relay.session.closed{reason}
//   - relay.session.duration{reason} (s)
//   - relay.keepalive.pings{result}
//   - relay.sessions.active (gauge)
//
// Correlation:
//   - relay.redirect.total{result}
//   - relay.delivery.failed
//   - relay.retrieval.total{result}
//   - relay.results.pending (gauge)
//
// Security:
//   - relay.rate_limit.exceeded{endpoint}
//   - relay.audit.events.total{event_type}
//
// Storage:
//   - storage.operation.total{operation, result}
//   - storage.operation.duration{operation} (ms)
package instrumentation
