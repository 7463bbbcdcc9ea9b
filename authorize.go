package oauth

import (
	"context"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth2-provider/instrumentation"
	"github.com/giantswarm/oauth2-provider/internal/util"
	"github.com/giantswarm/oauth2-provider/security"
)

// Endpoint paths served by the provider.
const (
	AuthorizePath   = "/oauth/authorize"
	AccessTokenPath = "/oauth/access_token"
)

// CarrierParam is the query parameter that carries the encoded user id from
// the consent form back to the consent handler.
const CarrierParam = "x_user_id"

// Response types.
const (
	ResponseTypeToken = "token"
	ResponseTypeCode  = "code"

	// DefaultResponseType applies when response_type is absent.
	DefaultResponseType = ResponseTypeToken
)

type authorizeRequest struct {
	clientID     string
	redirectURI  string
	responseType string
	state        string
}

func parseAuthorizeRequest(q url.Values) authorizeRequest {
	req := authorizeRequest{
		clientID:     q.Get("client_id"),
		redirectURI:  q.Get("redirect_uri"),
		responseType: q.Get("response_type"),
		state:        q.Get("state"),
	}
	if req.responseType == "" {
		req.responseType = DefaultResponseType
	}
	return req
}

// serveAuthorize handles GET /oauth/authorize: login, then either automatic
// approval or the consent form.
func (p *Provider) serveAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx, span := p.tracer.Start(r.Context(), "oauth.authorize")
	defer span.End()
	r = r.WithContext(ctx)

	req := parseAuthorizeRequest(r.URL.Query())
	instrumentation.AddAuthorizeAttributes(span, req.clientID, req.responseType, req.redirectURI)
	clientIP := p.clientIP(span, r)

	if req.clientID == "" || req.redirectURI == "" {
		p.auditor.LogDenied(ctx, security.EventAuthorizeParamMissing, req.clientID, clientIP, "client_id or redirect_uri missing")
		instrumentation.SetSpanError(span, string(KindParamMissing))
		p.ext.AuthorizeParamMissing(w, r)
		return
	}

	p.metrics.RecordAuthorizationStarted(ctx, req.clientID, req.responseType)

	authorizeURL := r.URL.RequestURI()

	lctx, done := p.startExtension(ctx, "enforce_login", false)
	userID, err := p.ext.EnforceLogin(lctx, w, r, authorizeURL)
	done(err)
	if err != nil {
		p.handleExtensionError(w, r, "enforce_login", err)
		return
	}

	if p.autoApprove(ctx, w, r, span, req, userID, clientIP) {
		return
	}

	carrier, err := p.encode(ctx, userID)
	if err != nil {
		p.logger.Error("Failed to encode user id", "error", err)
		instrumentation.RecordError(span, err)
		p.respondError(w, r, ServerError(""))
		return
	}

	formURL := util.AppendQueryParam(
		util.RemoveQueryParam(authorizeURL, CarrierParam),
		CarrierParam,
		url.QueryEscape(carrier),
	)

	p.auditor.LogEvent(ctx, security.Event{
		Type:      security.EventConsentRequested,
		UserID:    userID,
		ClientID:  req.clientID,
		IPAddress: clientIP,
	})
	p.metrics.RecordAuditEvent(ctx, security.EventConsentRequested)
	instrumentation.SetSpanSuccess(span)

	p.ext.AuthorizeForm(w, r, req.clientID, formURL)
}

// autoApprove asks the SkipAllower whether consent can be skipped and, if so,
// issues an access token directly. It reports whether a response was handled.
func (p *Provider) autoApprove(ctx context.Context, w http.ResponseWriter, r *http.Request, span trace.Span, req authorizeRequest, userID, clientIP string) bool {
	if p.skipper == nil {
		return false
	}

	sctx, done := p.startExtension(ctx, "should_skip_allow", true)
	skip, token, err := p.skipper.ShouldSkipAllow(sctx, userID, req.clientID)
	done(err)
	if err != nil {
		p.handleExtensionError(w, r, "should_skip_allow", err)
		return true
	}
	if !skip {
		return false
	}

	if !p.validateAuthorizeRequest(ctx, w, r, req, clientIP) {
		return true
	}

	if token == "" {
		token, err = p.createAccessToken(ctx, userID, req.clientID)
		if err != nil {
			p.handleExtensionError(w, r, "create_access_token", err)
			return true
		}
	}

	if !p.redirectWithToken(ctx, w, r, req.redirectURI, token) {
		return true
	}

	p.metrics.RecordConsent(ctx, "auto_approved")
	p.metrics.RecordCredentialIssued(ctx, "access_token", "auto_approve")
	p.auditor.LogCredentialIssued(ctx, security.EventConsentAutoApproved, userID, req.clientID, clientIP, "auto_approve")
	p.metrics.RecordAuditEvent(ctx, security.EventConsentAutoApproved)
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrFlow, "auto_approve"))
	instrumentation.SetSpanSuccess(span)
	return true
}

// validateAuthorizeRequest checks the response type and asks the host to
// validate the client. It reports whether the flow may continue; on false a
// response has been handled.
func (p *Provider) validateAuthorizeRequest(ctx context.Context, w http.ResponseWriter, r *http.Request, req authorizeRequest, clientIP string) bool {
	if req.responseType != ResponseTypeCode && req.responseType != ResponseTypeToken {
		p.auditor.LogDenied(ctx, security.EventInvalidResponseType, req.clientID, clientIP, "unsupported response_type")
		p.ext.InvalidResponseType(w, r)
		return false
	}

	vctx, done := p.startExtension(ctx, "validate_client", true)
	err := p.ext.ValidateClientIDAndRedirectURI(vctx, w, r, req.clientID, req.redirectURI)
	done(err)
	if err != nil {
		p.auditor.LogDenied(ctx, security.EventClientRejected, req.clientID, clientIP, err.Error())
		p.handleExtensionError(w, r, "validate_client", err)
		return false
	}
	return true
}

func (p *Provider) createAccessToken(ctx context.Context, userID, clientID string) (string, error) {
	cctx, done := p.startExtension(ctx, "create_access_token", true)
	token, err := p.ext.CreateAccessToken(cctx, userID, clientID)
	done(err)
	return token, err
}

// redirectWithToken encodes the token payload and redirects with it in the
// fragment. It reports whether the redirect was written.
func (p *Provider) redirectWithToken(ctx context.Context, w http.ResponseWriter, r *http.Request, redirectURI, token string) bool {
	encoded, err := p.encode(ctx, token)
	if err != nil {
		p.logger.Error("Failed to encode access token", "error", err)
		p.respondError(w, r, ServerError(""))
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	seeOther(w, redirectURI+"#access_token="+encoded)
	return true
}
