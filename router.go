package oauth

import (
	"net/http"
	"time"

	"github.com/giantswarm/oauth2-provider/instrumentation"
	"github.com/giantswarm/oauth2-provider/security"
)

// ServeHTTP serves the provider endpoints and answers 404 for anything else.
func (p *Provider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.Handler(http.NotFoundHandler()).ServeHTTP(w, r)
}

// Handler serves the provider endpoints and passes every other request to
// next. Routing looks at the method and path only.
func (p *Provider) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint, handle := p.route(r)
		if handle == nil {
			next.ServeHTTP(w, r)
			return
		}
		p.serve(w, r, endpoint, handle)
	})
}

func (p *Provider) route(r *http.Request) (string, http.HandlerFunc) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == AuthorizePath:
		return "authorize", p.serveAuthorize
	case r.Method == http.MethodPost && r.URL.Path == AuthorizePath:
		return "consent", p.serveConsent
	case r.Method == http.MethodPost && r.URL.Path == AccessTokenPath:
		return "access_token", p.serveAccessToken
	}
	return "", nil
}

// serve applies the cross-cutting concerns shared by every endpoint: rate
// limiting, security headers and request metrics. Endpoint spans are
// children of the "oauth.request" span opened here.
func (p *Provider) serve(w http.ResponseWriter, r *http.Request, endpoint string, handle http.HandlerFunc) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w}

	ctx, span := p.tracer.Start(r.Context(), "oauth.request")
	defer func() {
		instrumentation.AddHTTPAttributes(span, r.Method, endpoint, sw.statusCode())
		span.End()
	}()
	r = r.WithContext(ctx)

	security.SetSecurityHeaders(sw, r)

	if p.rateLimited(sw, r, endpoint) {
		p.metrics.RecordHTTPRequest(r.Context(), r.Method, endpoint, sw.statusCode(), sinceMs(start))
		return
	}

	handle(sw, r)

	p.metrics.RecordHTTPRequest(r.Context(), r.Method, endpoint, sw.statusCode(), sinceMs(start))
	p.logger.Debug("Handled OAuth request",
		"endpoint", endpoint,
		"status", sw.statusCode(),
		"request_id", security.GetRequestID(r.Context()),
		"duration_ms", sinceMs(start))
}

// rateLimited reports whether the request was rejected by the per-IP limiter.
func (p *Provider) rateLimited(w http.ResponseWriter, r *http.Request, endpoint string) bool {
	if p.rateLimiter == nil {
		return false
	}

	clientIP := security.GetClientIP(r, p.config.Security.TrustProxy, p.config.Security.TrustedProxyCount)
	if p.rateLimiter.Allow(clientIP) {
		return false
	}

	p.logger.Warn("Rate limit exceeded", "ip", clientIP, "endpoint", endpoint)
	p.metrics.RecordRateLimitExceeded(r.Context(), endpoint)
	p.auditor.LogRateLimitExceeded(r.Context(), clientIP, endpoint)
	p.metrics.RecordAuditEvent(r.Context(), security.EventRateLimitExceeded)
	w.Header().Set("Retry-After", "1")
	p.respondError(w, r, RateLimitError("Rate limit exceeded. Please try again later."))
	return true
}

// statusWriter records the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *statusWriter) statusCode() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}
