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

// ConsentField is the form field whose presence approves the request.
const ConsentField = "allow"

// consentGiven reports whether the consent form approved the request. The
// field must be present and not "false" or "0".
func consentGiven(r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		return false
	}
	values, ok := r.PostForm[ConsentField]
	if !ok || len(values) == 0 {
		return false
	}
	switch values[0] {
	case "false", "0":
		return false
	}
	return true
}

// serveConsent handles POST /oauth/authorize, the consent form submission.
func (p *Provider) serveConsent(w http.ResponseWriter, r *http.Request) {
	ctx, span := p.tracer.Start(r.Context(), "oauth.consent")
	defer span.End()
	r = r.WithContext(ctx)

	query := r.URL.Query()
	req := parseAuthorizeRequest(query)
	instrumentation.AddAuthorizeAttributes(span, req.clientID, req.responseType, req.redirectURI)
	instrumentation.SetSpanAttributes(span, attribute.Bool(instrumentation.AttrCarrierPresent, query.Has(CarrierParam)))
	clientIP := p.clientIP(span, r)

	if !p.validateAuthorizeRequest(ctx, w, r, req, clientIP) {
		instrumentation.SetSpanError(span, "authorize request rejected")
		return
	}

	if !consentGiven(r) {
		p.metrics.RecordConsent(ctx, "denied")
		p.auditor.LogDenied(ctx, security.EventConsentDenied, req.clientID, clientIP, "consent not given")
		p.metrics.RecordAuditEvent(ctx, security.EventConsentDenied)
		instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrConsentOutcome, "denied"))
		p.deny(w, r, req)
		return
	}
	p.metrics.RecordConsent(ctx, "allowed")
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrConsentOutcome, "allowed"))

	if req.responseType == ResponseTypeToken {
		p.issueImplicitToken(ctx, w, r, req, query.Get(CarrierParam), clientIP)
		return
	}
	p.issueCode(ctx, w, r, req, clientIP)
}

// deny reports a refused consent, either through AccessDenied or, with
// Config.RedirectDenials, as an error redirect to the client.
func (p *Provider) deny(w http.ResponseWriter, r *http.Request, req authorizeRequest) {
	if !p.config.RedirectDenials {
		p.ext.AccessDenied(w, r)
		return
	}

	location := util.AppendQueryParam(req.redirectURI, "error", ErrorCodeAccessDenied)
	if req.responseType == ResponseTypeToken {
		location = req.redirectURI + "#error=" + ErrorCodeAccessDenied
	}
	if req.state != "" {
		location += "&state=" + url.QueryEscape(req.state)
	}
	seeOther(w, location)
}

func (p *Provider) issueImplicitToken(ctx context.Context, w http.ResponseWriter, r *http.Request, req authorizeRequest, carrier, clientIP string) {
	span := trace.SpanFromContext(ctx)

	userID, err := p.decode(ctx, carrier)
	if err != nil {
		p.logger.Warn("Rejected x_user_id", "client_id", req.clientID, "error", err)
		p.auditor.LogDenied(ctx, security.EventCarrierDecodeFailed, req.clientID, clientIP, "x_user_id failed to decode")
		p.metrics.RecordAuditEvent(ctx, security.EventCarrierDecodeFailed)
		instrumentation.SetSpanError(span, string(KindCredentialDecodeFailure))
		p.ext.AccessDenied(w, r)
		return
	}

	token, err := p.createAccessToken(ctx, userID, req.clientID)
	if err != nil {
		p.handleExtensionError(w, r, "create_access_token", err)
		return
	}

	if !p.redirectWithToken(ctx, w, r, req.redirectURI, token) {
		return
	}

	p.metrics.RecordCredentialIssued(ctx, "access_token", "implicit")
	p.auditor.LogCredentialIssued(ctx, security.EventAccessTokenIssued, userID, req.clientID, clientIP, "implicit")
	p.metrics.RecordAuditEvent(ctx, security.EventAccessTokenIssued)
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrFlow, "implicit"))
	instrumentation.SetSpanSuccess(span)
}

func (p *Provider) issueCode(ctx context.Context, w http.ResponseWriter, r *http.Request, req authorizeRequest, clientIP string) {
	span := trace.SpanFromContext(ctx)

	gctx, done := p.startExtension(ctx, "create_grant", true)
	grant, err := p.ext.CreateGrant(gctx, r, req.clientID)
	done(err)
	if err != nil {
		p.handleExtensionError(w, r, "create_grant", err)
		return
	}

	code, err := p.encode(ctx, grant)
	if err != nil {
		p.logger.Error("Failed to encode grant", "error", err)
		p.respondError(w, r, ServerError(""))
		return
	}
	if ctx.Err() != nil {
		return
	}

	location := util.AppendQueryParam(req.redirectURI, "code", code)
	if req.state != "" {
		location += "&state=" + url.QueryEscape(req.state)
	}
	seeOther(w, location)

	p.metrics.RecordCredentialIssued(ctx, "grant", "code")
	p.auditor.LogCredentialIssued(ctx, security.EventGrantIssued, "", req.clientID, clientIP, "code")
	p.metrics.RecordAuditEvent(ctx, security.EventGrantIssued)
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrFlow, "code"))
	instrumentation.SetSpanSuccess(span)
}
