package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments. Record methods are no-ops on a nil
// receiver.
type Metrics struct {
	// HTTP
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Authorization flow
	AuthorizationStarted metric.Int64Counter
	ConsentOutcome       metric.Int64Counter
	CredentialsIssued    metric.Int64Counter
	CodeExchanged        metric.Int64Counter

	// Extensions
	ExtensionCallsTotal metric.Int64Counter
	ExtensionDuration   metric.Float64Histogram

	// Security
	RateLimitExceeded metric.Int64Counter
	AuditEventsTotal  metric.Int64Counter

	// Codec
	CodecOperationsTotal metric.Int64Counter
	CodecDuration        metric.Float64Histogram

	// Storage
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram
	StorageClientsCount      metric.Int64ObservableGauge
	StorageGrantsCount       metric.Int64ObservableGauge
}

type instrumentError struct {
	name string
	err  error
}

func newMetrics(inst *Instrumentation) (*Metrics, error) {
	httpMeter := inst.Meter("http")
	serverMeter := inst.Meter("server")
	securityMeter := inst.Meter("security")
	codecMeter := inst.Meter("codec")
	storageMeter := inst.Meter("storage")

	m := &Metrics{}
	var errs []instrumentError
	check := func(name string, err error) {
		if err != nil {
			errs = append(errs, instrumentError{name: name, err: err})
		}
	}

	var err error

	m.HTTPRequestsTotal, err = httpMeter.Int64Counter(
		"oauth.http.requests.total",
		metric.WithDescription("Total number of HTTP requests handled by the engine"),
		metric.WithUnit("{request}"),
	)
	check("oauth.http.requests.total", err)

	m.HTTPRequestDuration, err = httpMeter.Float64Histogram(
		"oauth.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	check("oauth.http.request.duration", err)

	m.AuthorizationStarted, err = serverMeter.Int64Counter(
		"oauth.authorization.started",
		metric.WithDescription("Authorization requests that passed parameter validation"),
		metric.WithUnit("{request}"),
	)
	check("oauth.authorization.started", err)

	m.ConsentOutcome, err = serverMeter.Int64Counter(
		"oauth.consent.outcome",
		metric.WithDescription("Consent decisions by outcome"),
		metric.WithUnit("{decision}"),
	)
	check("oauth.consent.outcome", err)

	m.CredentialsIssued, err = serverMeter.Int64Counter(
		"oauth.credentials.issued",
		metric.WithDescription("Access tokens and grants issued"),
		metric.WithUnit("{credential}"),
	)
	check("oauth.credentials.issued", err)

	m.CodeExchanged, err = serverMeter.Int64Counter(
		"oauth.code.exchanged",
		metric.WithDescription("Token endpoint exchanges by result"),
		metric.WithUnit("{exchange}"),
	)
	check("oauth.code.exchanged", err)

	m.ExtensionCallsTotal, err = serverMeter.Int64Counter(
		"oauth.extension.calls.total",
		metric.WithDescription("Calls into host extensions by result"),
		metric.WithUnit("{call}"),
	)
	check("oauth.extension.calls.total", err)

	m.ExtensionDuration, err = serverMeter.Float64Histogram(
		"oauth.extension.duration",
		metric.WithDescription("Host extension call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	check("oauth.extension.duration", err)

	m.RateLimitExceeded, err = securityMeter.Int64Counter(
		"oauth.rate_limit.exceeded",
		metric.WithDescription("Requests rejected by the rate limiter"),
		metric.WithUnit("{request}"),
	)
	check("oauth.rate_limit.exceeded", err)

	m.AuditEventsTotal, err = securityMeter.Int64Counter(
		"oauth.audit.events.total",
		metric.WithDescription("Security audit events"),
		metric.WithUnit("{event}"),
	)
	check("oauth.audit.events.total", err)

	m.CodecOperationsTotal, err = codecMeter.Int64Counter(
		"oauth.codec.operations.total",
		metric.WithDescription("Credential codec operations by result"),
		metric.WithUnit("{operation}"),
	)
	check("oauth.codec.operations.total", err)

	m.CodecDuration, err = codecMeter.Float64Histogram(
		"oauth.codec.duration",
		metric.WithDescription("Credential codec operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	check("oauth.codec.duration", err)

	m.StorageOperationTotal, err = storageMeter.Int64Counter(
		"oauth.storage.operations.total",
		metric.WithDescription("Storage operations by backend and result"),
		metric.WithUnit("{operation}"),
	)
	check("oauth.storage.operations.total", err)

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"oauth.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	check("oauth.storage.operation.duration", err)

	m.StorageClientsCount, err = storageMeter.Int64ObservableGauge(
		"oauth.storage.clients.count",
		metric.WithDescription("Registered clients held by the store"),
		metric.WithUnit("{client}"),
	)
	check("oauth.storage.clients.count", err)

	m.StorageGrantsCount, err = storageMeter.Int64ObservableGauge(
		"oauth.storage.grants.count",
		metric.WithDescription("Unconsumed grants held by the store"),
		metric.WithUnit("{grant}"),
	)
	check("oauth.storage.grants.count", err)

	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to create %s: %w", errs[0].name, errs[0].err)
	}
	return m, nil
}

// RecordHTTPRequest records a handled request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	))
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
	))
}

// RecordAuthorizationStarted records a validated authorization request.
func (m *Metrics) RecordAuthorizationStarted(ctx context.Context, clientID, responseType string) {
	if m == nil {
		return
	}
	m.AuthorizationStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("response_type", responseType),
	))
}

// RecordConsent records a consent decision. outcome is "allowed", "denied"
// or "skipped".
func (m *Metrics) RecordConsent(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.ConsentOutcome.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordCredentialIssued records an issued credential. kind is
// "access_token" or "grant".
func (m *Metrics) RecordCredentialIssued(ctx context.Context, kind, flow string) {
	if m == nil {
		return
	}
	m.CredentialsIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("flow", flow),
	))
}

// RecordCodeExchange records the outcome of a token endpoint call.
func (m *Metrics) RecordCodeExchange(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.CodeExchanged.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}

// RecordExtensionCall records a call into a host extension.
func (m *Metrics) RecordExtensionCall(ctx context.Context, extension, result string, durationMs float64) {
	if m == nil {
		return
	}
	m.ExtensionCallsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("extension", extension),
		attribute.String("result", result),
	))
	m.ExtensionDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("extension", extension),
	))
}

// RecordRateLimitExceeded records a rate limit rejection.
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
}

// RecordAuditEvent records an audit event
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordCodecOperation records an encode or decode.
func (m *Metrics) RecordCodecOperation(ctx context.Context, operation string, ok bool, durationMs float64) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.CodecOperationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
	m.CodecDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, backend, operation, result string, durationMs float64) {
	if m == nil {
		return
	}
	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("operation", operation),
	))
}
