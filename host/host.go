package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	oauth "github.com/giantswarm/oauth2-provider"
	"github.com/giantswarm/oauth2-provider/security"
	"github.com/giantswarm/oauth2-provider/storage"
)

const (
	// DefaultGrantTTL is how long an authorization code can be exchanged.
	DefaultGrantTTL = 10 * time.Minute

	// DefaultAccessTokenTTL is the lifetime written into access tokens.
	DefaultAccessTokenTTL = time.Hour

	// DefaultSessionTTL is how long a login session cookie stays valid.
	DefaultSessionTTL = 12 * time.Hour

	// DefaultLoginPath is where unauthenticated users are sent.
	DefaultLoginPath = "/login"

	// DefaultSessionCookie names the session cookie.
	DefaultSessionCookie = "oauth2_session"
)

// Authenticator checks a username and password submitted on the login form
// and returns the user id. It returns ErrBadCredentials for a failed login.
type Authenticator func(ctx context.Context, username, password string) (string, error)

// ErrBadCredentials is returned by an Authenticator for a failed login.
var ErrBadCredentials = errors.New("invalid username or password")

// Config holds the reference host configuration
type Config struct {
	// Clients is the client registry (required).
	Clients storage.ClientStore

	// Grants persists authorization codes (required).
	Grants storage.GrantStore

	// Codec protects session cookies and decodes x_user_id carriers. It must
	// be the codec the provider uses (required).
	Codec security.Codec

	// Authenticate checks login form submissions. Required unless Upstream is set.
	Authenticate Authenticator

	// Upstream delegates login to an external OAuth2 identity provider.
	Upstream *UpstreamConfig

	// GrantTTL defaults to DefaultGrantTTL.
	GrantTTL time.Duration

	// AccessTokenTTL defaults to DefaultAccessTokenTTL.
	AccessTokenTTL time.Duration

	// SessionTTL defaults to DefaultSessionTTL.
	SessionTTL time.Duration

	// LoginPath defaults to DefaultLoginPath.
	LoginPath string

	// SessionCookie defaults to DefaultSessionCookie.
	SessionCookie string

	// SecureCookies sets the Secure attribute on cookies. Enable behind TLS.
	SecureCookies bool

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger
}

// Host implements oauth.Extensions on top of the storage interfaces with a
// cookie session login, a consent page and JSON errors.
type Host struct {
	clients storage.ClientStore
	grants  storage.GrantStore
	codec   security.Codec

	authenticate Authenticator
	upstream     *upstream

	grantTTL       time.Duration
	accessTokenTTL time.Duration
	sessionTTL     time.Duration
	loginPath      string
	sessionCookie  string
	secureCookies  bool

	now    func() time.Time
	logger *slog.Logger
}

var (
	_ oauth.Extensions     = (*Host)(nil)
	_ oauth.SkipAllower    = (*Host)(nil)
	_ oauth.ErrorResponder = (*Host)(nil)
)

// New creates a host.
func New(cfg Config) (*Host, error) {
	if cfg.Clients == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if cfg.Grants == nil {
		return nil, fmt.Errorf("grant store is required")
	}
	if cfg.Codec == nil {
		return nil, fmt.Errorf("codec is required")
	}
	if cfg.Authenticate == nil && cfg.Upstream == nil {
		return nil, fmt.Errorf("either an authenticator or an upstream identity provider is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Host{
		clients:        cfg.Clients,
		grants:         cfg.Grants,
		codec:          cfg.Codec,
		authenticate:   cfg.Authenticate,
		grantTTL:       orDefault(cfg.GrantTTL, DefaultGrantTTL),
		accessTokenTTL: orDefault(cfg.AccessTokenTTL, DefaultAccessTokenTTL),
		sessionTTL:     orDefault(cfg.SessionTTL, DefaultSessionTTL),
		loginPath:      cfg.LoginPath,
		sessionCookie:  cfg.SessionCookie,
		secureCookies:  cfg.SecureCookies,
		now:            time.Now,
		logger:         logger,
	}
	if h.loginPath == "" {
		h.loginPath = DefaultLoginPath
	}
	if h.sessionCookie == "" {
		h.sessionCookie = DefaultSessionCookie
	}

	if cfg.Upstream != nil {
		up, err := newUpstream(cfg.Upstream)
		if err != nil {
			return nil, err
		}
		h.upstream = up
	}

	return h, nil
}

// SetClock replaces the time source, for tests.
func (h *Host) SetClock(now func() time.Time) {
	h.now = now
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// AuthorizeParamMissing answers 400 invalid_request.
func (h *Host) AuthorizeParamMissing(w http.ResponseWriter, r *http.Request) {
	h.RespondError(w, r, oauth.NewOAuthError(oauth.ErrorCodeInvalidRequest,
		"client_id and redirect_uri are required", http.StatusBadRequest))
}

// EnforceLogin returns the session user or sends the user to log in.
func (h *Host) EnforceLogin(ctx context.Context, w http.ResponseWriter, r *http.Request, authorizeURL string) (string, error) {
	if userID, ok := h.sessionUser(r); ok {
		return userID, nil
	}

	if h.upstream != nil {
		if err := h.startUpstreamLogin(ctx, w, r, authorizeURL); err != nil {
			return "", err
		}
		return "", oauth.ErrResponseWritten
	}

	http.Redirect(w, r, h.loginPath+"?next="+url.QueryEscape(authorizeURL), http.StatusFound)
	return "", oauth.ErrResponseWritten
}

// AuthorizeForm renders the consent page.
func (h *Host) AuthorizeForm(w http.ResponseWriter, r *http.Request, clientID, authorizeURL string) {
	name := clientID
	if c, err := h.clients.GetClient(r.Context(), clientID); err == nil && c.ClientName != "" {
		name = c.ClientName
	}

	renderPage(w, http.StatusOK, consentTemplate, consentPage{
		ClientName: name,
		Action:     authorizeURL,
		Field:      oauth.ConsentField,
	}, h.logger)
}

// ValidateClientIDAndRedirectURI requires a registered client and an exact
// redirect URI match. Failures are answered here and never redirected.
func (h *Host) ValidateClientIDAndRedirectURI(ctx context.Context, w http.ResponseWriter, r *http.Request, clientID, redirectURI string) error {
	client, err := h.clients.GetClient(ctx, clientID)
	if errors.Is(err, storage.ErrNotFound) {
		h.RespondError(w, r, oauth.NewOAuthError(oauth.ErrorCodeInvalidClient, "unknown client", http.StatusBadRequest))
		return oauth.ErrResponseWritten
	}
	if err != nil {
		return fmt.Errorf("failed to load client: %w", err)
	}

	// RFC 6749 section 3.1.2: the redirection endpoint has no fragment.
	if strings.Contains(redirectURI, "#") {
		h.RespondError(w, r, oauth.NewOAuthError(oauth.ErrorCodeInvalidRequest,
			"redirect_uri must not contain a fragment", http.StatusBadRequest))
		return oauth.ErrResponseWritten
	}
	if !client.HasRedirectURI(redirectURI) {
		h.logger.Warn("Unregistered redirect_uri", "client_id", clientID)
		h.RespondError(w, r, oauth.NewOAuthError(oauth.ErrorCodeInvalidRequest,
			"redirect_uri is not registered for this client", http.StatusBadRequest))
		return oauth.ErrResponseWritten
	}
	return nil
}

// InvalidResponseType answers 400 unsupported_response_type.
func (h *Host) InvalidResponseType(w http.ResponseWriter, r *http.Request) {
	h.RespondError(w, r, oauth.UnsupportedResponseTypeError("response_type must be code or token"))
}

// AccessDenied answers invalid_grant on the token endpoint and
// access_denied everywhere else.
func (h *Host) AccessDenied(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == oauth.AccessTokenPath {
		h.RespondError(w, r, oauth.NewOAuthError(oauth.ErrorCodeInvalidGrant,
			"authorization code is invalid", http.StatusBadRequest))
		return
	}
	h.RespondError(w, r, oauth.AccessDeniedError("the request was denied"))
}

// CreateAccessToken returns the JSON payload of a new access token.
func (h *Host) CreateAccessToken(_ context.Context, userID, clientID string) (string, error) {
	now := h.now()
	return NewAccessToken(userID, clientID, now, h.accessTokenTTL).Marshal()
}

// CreateGrant stores a grant for the user carried in x_user_id and returns
// its id as the code payload.
func (h *Host) CreateGrant(ctx context.Context, r *http.Request, clientID string) (string, error) {
	q := r.URL.Query()

	userID, err := h.codec.Decode(q.Get(oauth.CarrierParam))
	if err != nil {
		// the consent POST lost or mangled its carrier; fall back to the session
		var ok bool
		if userID, ok = h.sessionUser(r); !ok {
			return "", oauth.ErrAccessDenied
		}
	}

	now := h.now()
	grant := &storage.Grant{
		ID:          uuid.NewString(),
		ClientID:    clientID,
		UserID:      userID,
		RedirectURI: q.Get("redirect_uri"),
		CreatedAt:   now,
		ExpiresAt:   now.Add(h.grantTTL),
	}
	if err := h.grants.SaveGrant(ctx, grant); err != nil {
		return "", fmt.Errorf("failed to save grant: %w", err)
	}
	return grant.ID, nil
}

// LookupGrant authenticates the client and consumes the grant.
func (h *Host) LookupGrant(ctx context.Context, w http.ResponseWriter, clientID, clientSecret, code string) (string, error) {
	err := h.clients.ValidateClientSecret(ctx, clientID, clientSecret)
	if errors.Is(err, storage.ErrInvalidClient) {
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth2-provider"`)
		writeError(w, oauth.NewOAuthError(oauth.ErrorCodeInvalidClient, "client authentication failed", http.StatusUnauthorized))
		return "", oauth.ErrResponseWritten
	}
	if err != nil {
		return "", fmt.Errorf("failed to validate client: %w", err)
	}

	grant, err := h.grants.ConsumeGrant(ctx, code)
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrGrantConsumed),
		errors.Is(err, storage.ErrGrantExpired):
		h.logger.Warn("Grant rejected", "client_id", clientID, "reason", err)
		return "", oauth.ErrAccessDenied
	case err != nil:
		return "", fmt.Errorf("failed to consume grant: %w", err)
	}

	if grant.ClientID != clientID {
		h.logger.Warn("Grant presented by another client", "client_id", clientID, "grant_client_id", grant.ClientID)
		return "", oauth.ErrAccessDenied
	}
	if uri := oauth.ExchangeRedirectURIFromContext(ctx); grant.RedirectURI != "" && uri != grant.RedirectURI {
		h.logger.Warn("Grant redirect_uri mismatch", "client_id", clientID)
		return "", oauth.ErrAccessDenied
	}

	return grant.UserID, nil
}

// ShouldSkipAllow approves trusted clients without a consent page.
func (h *Host) ShouldSkipAllow(ctx context.Context, _ string, clientID string) (bool, string, error) {
	client, err := h.clients.GetClient(ctx, clientID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("failed to load client: %w", err)
	}
	return client.Trusted, "", nil
}

// RespondError writes err as JSON.
func (h *Host) RespondError(w http.ResponseWriter, _ *http.Request, err *oauth.OAuthError) {
	writeError(w, err)
}
