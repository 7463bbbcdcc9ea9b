// Package instrumentation provides OpenTelemetry metrics and tracing for the
// OAuth engine and its stores.
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:     "oauth2-provider",
//		ServiceVersion:  version.Version,
//		Enabled:         true,
//		MetricsExporter: instrumentation.MetricsExporterPrometheus,
//	})
//	if err != nil {
//		return err
//	}
//	defer inst.Shutdown(context.Background())
//
//	router.Handle("/metrics", promhttp.Handler())
//
// When Enabled is false every provider is a no-op.
//
// # Available Metrics
//
// HTTP:
//   - oauth.http.requests.total{method, endpoint, status}
//   - oauth.http.request.duration{method, endpoint}
//
// Authorization:
//   - oauth.authorization.started{client_id, response_type}
//   - oauth.consent.outcome{outcome}
//   - oauth.credentials.issued{kind, flow}
//   - oauth.code.exchanged{result}
//   - oauth.extension.calls.total{extension, result}
//   - oauth.extension.duration{extension}
//
// Security:
//   - oauth.rate_limit.exceeded{endpoint}
//   - oauth.audit.events.total{event_type}
//
// Codec:
//   - oauth.codec.operations.total{operation, result}
//   - oauth.codec.duration{operation}
//
// Storage:
//   - oauth.storage.operations.total{backend, operation, result}
//   - oauth.storage.operation.duration{backend, operation}
//   - oauth.storage.clients.count
//   - oauth.storage.grants.count
//
// # Tracing
//
// Tracer scopes are prefixed with the module path. Span attribute keys live in
// tracing.go; credentials are never attached to spans.
package instrumentation
