package oauth

import (
	"context"
	"net/http"
	"strings"

	"github.com/giantswarm/oauth2-provider/security"
)

type contextKey string

const tokenDataKey contextKey = "token_data"

// TokenDataFromContext returns the decoded access token payload stored by
// RequireAccessToken.
func TokenDataFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(tokenDataKey).(string)
	return v, ok
}

// ContextWithTokenData stores a decoded access token payload in ctx.
func ContextWithTokenData(ctx context.Context, data string) context.Context {
	return context.WithValue(ctx, tokenDataKey, data)
}

// accessTokenFromRequest returns the bearer token from the Authorization
// header or, failing that, the access_token query parameter.
func accessTokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

// RequireAccessToken is middleware for resource servers. It decodes the
// access token and makes its payload available through TokenDataFromContext;
// requests without a valid token get 401 invalid_token.
func (p *Provider) RequireAccessToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p.rateLimited(w, r, "protected") {
			return
		}

		token := accessTokenFromRequest(r)
		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="oauth2-provider"`)
			p.respondError(w, r, InvalidTokenError("Missing access token"))
			return
		}

		data, err := p.decode(r.Context(), token)
		if err != nil {
			clientIP := security.GetClientIP(r, p.config.Security.TrustProxy, p.config.Security.TrustedProxyCount)
			p.logger.Warn("Token validation failed", "ip", clientIP, "error", err)
			p.auditor.LogDenied(r.Context(), security.EventInvalidBearerToken, "", clientIP, "access token failed to decode")
			p.metrics.RecordAuditEvent(r.Context(), security.EventInvalidBearerToken)
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			p.respondError(w, r, InvalidTokenError("Token validation failed"))
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithTokenData(r.Context(), data)))
	})
}
