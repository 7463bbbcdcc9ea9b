package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys. Credentials (access tokens, codes, x_user_id carriers,
// client secrets) must never be attached to spans; record presence or
// outcome instead.
const (
	AttrClientID       = "oauth.client_id"
	AttrResponseType   = "oauth.response_type"
	AttrGrantType      = "oauth.grant_type"
	AttrRedirectURI    = "oauth.redirect_uri"
	AttrFlow           = "oauth.flow"
	AttrConsentOutcome = "oauth.consent.outcome"
	AttrError          = "oauth.error"
	AttrCarrierPresent = "oauth.x_user_id.present"

	AttrExtension = "oauth.extension"

	AttrCodecOperation = "codec.operation"
	AttrCodecScheme    = "codec.scheme"

	AttrStorageOperation = "storage.operation"
	AttrStorageBackend   = "storage.backend"
	AttrStorageResult    = "storage.result"

	AttrClientIP = "security.client_ip"

	AttrHTTPEndpoint   = "http.endpoint"
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanError sets an error status on a span (nil-safe)
func SetSpanError(span trace.Span, message string) {
	if span != nil {
		span.SetStatus(codes.Error, message)
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddAuthorizeAttributes adds the non-secret authorization parameters.
func AddAuthorizeAttributes(span trace.Span, clientID, responseType, redirectURI string) {
	if clientID != "" {
		SetSpanAttributes(span, attribute.String(AttrClientID, clientID))
	}
	if responseType != "" {
		SetSpanAttributes(span, attribute.String(AttrResponseType, responseType))
	}
	if redirectURI != "" {
		SetSpanAttributes(span, attribute.String(AttrRedirectURI, redirectURI))
	}
}

// AddExtensionAttributes names the host extension being called.
func AddExtensionAttributes(span trace.Span, extension string) {
	SetSpanAttributes(span, attribute.String(AttrExtension, extension))
}

// AddStorageAttributes adds storage operation attributes to a span (nil-safe)
func AddStorageAttributes(span trace.Span, operation, backend string) {
	SetSpanAttributes(span,
		attribute.String(AttrStorageOperation, operation),
		attribute.String(AttrStorageBackend, backend),
	)
}

// AddHTTPAttributes adds HTTP request attributes to a span (nil-safe)
func AddHTTPAttributes(span trace.Span, method, endpoint string, statusCode int) {
	SetSpanAttributes(span,
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPEndpoint, endpoint),
		attribute.Int(AttrHTTPStatusCode, statusCode),
	)
}

// AddSecurityAttributes attaches the client IP. Callers check
// ShouldLogClientIPs first.
func AddSecurityAttributes(span trace.Span, clientIP string) {
	if clientIP != "" {
		SetSpanAttributes(span, attribute.String(AttrClientIP, clientIP))
	}
}
