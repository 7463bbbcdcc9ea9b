package oauth

import (
	"context"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel/attribute"

	"github.com/giantswarm/oauth2-provider/instrumentation"
	"github.com/giantswarm/oauth2-provider/security"
)

// TokenResponse is the body of a successful token exchange.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
}

type exchangeRedirectURIKey struct{}

// ExchangeRedirectURIFromContext returns the redirect_uri submitted with a
// token exchange, for LookupGrant implementations that bind grants to it.
func ExchangeRedirectURIFromContext(ctx context.Context) string {
	v, _ := ctx.Value(exchangeRedirectURIKey{}).(string)
	return v
}

// ContextWithExchangeRedirectURI returns ctx carrying the exchange
// redirect_uri read by ExchangeRedirectURIFromContext.
func ContextWithExchangeRedirectURI(ctx context.Context, redirectURI string) context.Context {
	return context.WithValue(ctx, exchangeRedirectURIKey{}, redirectURI)
}

// clientCredentials reads client_id and client_secret from the form body,
// falling back to HTTP Basic authentication (RFC 6749 section 2.3.1).
func clientCredentials(r *http.Request) (string, string) {
	clientID := r.PostFormValue("client_id")
	clientSecret := r.PostFormValue("client_secret")
	if clientID != "" {
		return clientID, clientSecret
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return "", ""
	}
	if u, err := url.QueryUnescape(user); err == nil {
		user = u
	}
	if p, err := url.QueryUnescape(pass); err == nil {
		pass = p
	}
	return user, pass
}

// serveAccessToken handles POST /oauth/access_token, the code exchange.
func (p *Provider) serveAccessToken(w http.ResponseWriter, r *http.Request) {
	ctx, span := p.tracer.Start(r.Context(), "oauth.access_token")
	defer span.End()

	if err := r.ParseForm(); err != nil {
		p.respondError(w, r, InvalidRequestError("malformed form body"))
		return
	}

	clientID, clientSecret := clientCredentials(r)
	redirectURI := r.PostFormValue("redirect_uri")
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrClientID, clientID),
		attribute.String(instrumentation.AttrGrantType, r.PostFormValue("grant_type")),
	)
	clientIP := p.clientIP(span, r)

	ctx = ContextWithExchangeRedirectURI(ctx, redirectURI)
	r = r.WithContext(ctx)

	code, err := p.decode(ctx, r.PostFormValue("code"))
	if err != nil {
		p.logger.Warn("Rejected authorization code", "client_id", clientID, "error", err)
		p.auditor.LogDenied(ctx, security.EventGrantDecodeFailed, clientID, clientIP, "code failed to decode")
		p.metrics.RecordAuditEvent(ctx, security.EventGrantDecodeFailed)
		p.metrics.RecordCodeExchange(ctx, "decode_failed")
		instrumentation.SetSpanError(span, string(KindCredentialDecodeFailure))
		p.ext.AccessDenied(w, r)
		return
	}

	lctx, done := p.startExtension(ctx, "lookup_grant", true)
	userID, err := p.ext.LookupGrant(lctx, w, clientID, clientSecret, code)
	done(err)
	if err != nil {
		p.auditor.LogDenied(ctx, security.EventGrantLookupFailed, clientID, clientIP, err.Error())
		p.metrics.RecordAuditEvent(ctx, security.EventGrantLookupFailed)
		p.metrics.RecordCodeExchange(ctx, "lookup_failed")
		instrumentation.SetSpanError(span, string(KindGrantLookupFailure))
		p.handleExtensionError(w, r, "lookup_grant", err)
		return
	}

	token, err := p.createAccessToken(ctx, userID, clientID)
	if err != nil {
		p.metrics.RecordCodeExchange(ctx, "error")
		p.handleExtensionError(w, r, "create_access_token", err)
		return
	}

	encoded, err := p.encode(ctx, token)
	if err != nil {
		p.logger.Error("Failed to encode access token", "error", err)
		p.respondError(w, r, ServerError(""))
		return
	}
	if ctx.Err() != nil {
		return
	}

	security.SetNoStoreHeaders(w)
	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: encoded})

	p.metrics.RecordCodeExchange(ctx, "success")
	p.metrics.RecordCredentialIssued(ctx, "access_token", "exchange")
	p.auditor.LogCredentialIssued(ctx, security.EventAccessTokenIssued, userID, clientID, clientIP, "exchange")
	p.metrics.RecordAuditEvent(ctx, security.EventAccessTokenIssued)
	instrumentation.SetSpanSuccess(span)
}
