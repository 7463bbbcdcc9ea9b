package oauth

import (
	"context"
	"errors"
	"net/http"
)

// Extensions is implemented by the host application. The engine owns the
// protocol flow; the host owns identity, clients, grants, token payloads and
// every page the user sees.
//
// Methods receiving a ResponseWriter are expected to write the response for
// the condition they are named after. Methods returning an error follow one
// contract: nil continues the flow, ErrResponseWritten stops it silently,
// ErrAccessDenied makes the engine call AccessDenied, and anything else is
// rendered as a server error.
type Extensions interface {
	// AuthorizeParamMissing handles an authorize request without client_id
	// or redirect_uri.
	AuthorizeParamMissing(w http.ResponseWriter, r *http.Request)

	// EnforceLogin returns the signed-in user. When nobody is signed in it
	// typically redirects to a login page that returns to authorizeURL and
	// reports ErrResponseWritten.
	EnforceLogin(ctx context.Context, w http.ResponseWriter, r *http.Request, authorizeURL string) (string, error)

	// AuthorizeForm renders the consent page. The form must POST to
	// authorizeURL, which carries the encoded user in x_user_id, with an
	// "allow" field when the user approves.
	AuthorizeForm(w http.ResponseWriter, r *http.Request, clientID, authorizeURL string)

	// ValidateClientIDAndRedirectURI checks that redirectURI is registered
	// for clientID.
	ValidateClientIDAndRedirectURI(ctx context.Context, w http.ResponseWriter, r *http.Request, clientID, redirectURI string) error

	// InvalidResponseType handles a response_type other than code or token.
	InvalidResponseType(w http.ResponseWriter, r *http.Request)

	// AccessDenied handles refused consent and credentials that fail to decode.
	AccessDenied(w http.ResponseWriter, r *http.Request)

	// CreateAccessToken returns the payload the engine encodes as the access token.
	CreateAccessToken(ctx context.Context, userID, clientID string) (string, error)

	// CreateGrant returns the payload the engine encodes as the authorization code.
	CreateGrant(ctx context.Context, r *http.Request, clientID string) (string, error)

	// LookupGrant authenticates the client and resolves a decoded grant
	// payload to its user. Single use and expiry are the host's to enforce.
	LookupGrant(ctx context.Context, w http.ResponseWriter, clientID, clientSecret, code string) (string, error)
}

// SkipAllower is an optional Extensions capability for approving clients
// without showing the consent form. A non-empty token is used as the access
// token payload instead of calling CreateAccessToken.
type SkipAllower interface {
	ShouldSkipAllow(ctx context.Context, userID, clientID string) (skip bool, token string, err error)
}

// ErrorResponder is an optional Extensions capability that renders the errors
// the engine produces itself. Without it the engine writes a JSON body.
type ErrorResponder interface {
	RespondError(w http.ResponseWriter, r *http.Request, err *OAuthError)
}

// errHookNotSet is returned by Hooks for a required callback left nil.
var errHookNotSet = errors.New("extension hook not set")

// Hooks adapts plain functions to Extensions, SkipAllower and ErrorResponder.
// Nil response hooks fall back to JSON errors; nil hooks that must produce a
// value fail the request with a server error. A nil OnShouldSkipAllow never
// skips consent.
type Hooks struct {
	OnAuthorizeParamMissing          func(w http.ResponseWriter, r *http.Request)
	OnEnforceLogin                   func(ctx context.Context, w http.ResponseWriter, r *http.Request, authorizeURL string) (string, error)
	OnAuthorizeForm                  func(w http.ResponseWriter, r *http.Request, clientID, authorizeURL string)
	OnValidateClientIDAndRedirectURI func(ctx context.Context, w http.ResponseWriter, r *http.Request, clientID, redirectURI string) error
	OnInvalidResponseType            func(w http.ResponseWriter, r *http.Request)
	OnAccessDenied                   func(w http.ResponseWriter, r *http.Request)
	OnCreateAccessToken              func(ctx context.Context, userID, clientID string) (string, error)
	OnCreateGrant                    func(ctx context.Context, r *http.Request, clientID string) (string, error)
	OnLookupGrant                    func(ctx context.Context, w http.ResponseWriter, clientID, clientSecret, code string) (string, error)
	OnShouldSkipAllow                func(ctx context.Context, userID, clientID string) (bool, string, error)
	OnRespondError                   func(w http.ResponseWriter, r *http.Request, err *OAuthError)
}

var (
	_ Extensions     = (*Hooks)(nil)
	_ SkipAllower    = (*Hooks)(nil)
	_ ErrorResponder = (*Hooks)(nil)
)

func (h *Hooks) AuthorizeParamMissing(w http.ResponseWriter, r *http.Request) {
	if h.OnAuthorizeParamMissing == nil {
		h.RespondError(w, r, InvalidRequestError("client_id and redirect_uri are required"))
		return
	}
	h.OnAuthorizeParamMissing(w, r)
}

func (h *Hooks) EnforceLogin(ctx context.Context, w http.ResponseWriter, r *http.Request, authorizeURL string) (string, error) {
	if h.OnEnforceLogin == nil {
		return "", errHookNotSet
	}
	return h.OnEnforceLogin(ctx, w, r, authorizeURL)
}

func (h *Hooks) AuthorizeForm(w http.ResponseWriter, r *http.Request, clientID, authorizeURL string) {
	if h.OnAuthorizeForm == nil {
		h.RespondError(w, r, ServerError(""))
		return
	}
	h.OnAuthorizeForm(w, r, clientID, authorizeURL)
}

func (h *Hooks) ValidateClientIDAndRedirectURI(ctx context.Context, w http.ResponseWriter, r *http.Request, clientID, redirectURI string) error {
	if h.OnValidateClientIDAndRedirectURI == nil {
		return errHookNotSet
	}
	return h.OnValidateClientIDAndRedirectURI(ctx, w, r, clientID, redirectURI)
}

func (h *Hooks) InvalidResponseType(w http.ResponseWriter, r *http.Request) {
	if h.OnInvalidResponseType == nil {
		h.RespondError(w, r, UnsupportedResponseTypeError("response_type must be code or token"))
		return
	}
	h.OnInvalidResponseType(w, r)
}

func (h *Hooks) AccessDenied(w http.ResponseWriter, r *http.Request) {
	if h.OnAccessDenied == nil {
		h.RespondError(w, r, AccessDeniedError("access denied"))
		return
	}
	h.OnAccessDenied(w, r)
}

func (h *Hooks) CreateAccessToken(ctx context.Context, userID, clientID string) (string, error) {
	if h.OnCreateAccessToken == nil {
		return "", errHookNotSet
	}
	return h.OnCreateAccessToken(ctx, userID, clientID)
}

func (h *Hooks) CreateGrant(ctx context.Context, r *http.Request, clientID string) (string, error) {
	if h.OnCreateGrant == nil {
		return "", errHookNotSet
	}
	return h.OnCreateGrant(ctx, r, clientID)
}

func (h *Hooks) LookupGrant(ctx context.Context, w http.ResponseWriter, clientID, clientSecret, code string) (string, error) {
	if h.OnLookupGrant == nil {
		return "", errHookNotSet
	}
	return h.OnLookupGrant(ctx, w, clientID, clientSecret, code)
}

func (h *Hooks) ShouldSkipAllow(ctx context.Context, userID, clientID string) (bool, string, error) {
	if h.OnShouldSkipAllow == nil {
		return false, "", nil
	}
	return h.OnShouldSkipAllow(ctx, userID, clientID)
}

func (h *Hooks) RespondError(w http.ResponseWriter, r *http.Request, err *OAuthError) {
	if h.OnRespondError == nil {
		writeJSONError(w, err)
		return
	}
	h.OnRespondError(w, r, err)
}
