package host

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	oauth "github.com/giantswarm/oauth2-provider"
	"github.com/giantswarm/oauth2-provider/security"
)

const (
	// DefaultUpstreamCallbackPath receives the upstream authorization response.
	DefaultUpstreamCallbackPath = "/login/callback"

	upstreamStateCookie = "oauth2_upstream_state"
	upstreamStateTTL    = 10 * time.Minute
	nonceLength         = 32
)

// UpstreamConfig delegates login to an external OAuth2 identity provider.
type UpstreamConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string

	// UserInfoURL is fetched with the upstream access token.
	UserInfoURL string

	// UserIDClaim is the userinfo field used as user id. Default: "sub".
	UserIDClaim string

	// RedirectURL must route to CallbackPath on this host.
	RedirectURL string

	// CallbackPath defaults to DefaultUpstreamCallbackPath.
	CallbackPath string

	Scopes []string

	// HTTPClient is used for token and userinfo requests.
	HTTPClient *http.Client
}

type upstream struct {
	config       *oauth2.Config
	userInfoURL  string
	userIDClaim  string
	callbackPath string
	httpClient   *http.Client
}

// upstreamState travels through the upstream IdP inside the codec, so the
// pending authorize URL cannot be swapped for an open redirect.
type upstreamState struct {
	Type  string `json:"typ"`
	Next  string `json:"next"`
	Nonce string `json:"nonce"`
}

const upstreamStateType = "upstream_state"

func newUpstream(cfg *UpstreamConfig) (*upstream, error) {
	switch {
	case cfg.ClientID == "":
		return nil, fmt.Errorf("upstream client ID is required")
	case cfg.AuthURL == "" || cfg.TokenURL == "":
		return nil, fmt.Errorf("upstream auth and token URLs are required")
	case cfg.UserInfoURL == "":
		return nil, fmt.Errorf("upstream userinfo URL is required")
	case cfg.RedirectURL == "":
		return nil, fmt.Errorf("upstream redirect URL is required")
	}

	up := &upstream{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		userInfoURL:  cfg.UserInfoURL,
		userIDClaim:  cfg.UserIDClaim,
		callbackPath: cfg.CallbackPath,
		httpClient:   cfg.HTTPClient,
	}
	if up.userIDClaim == "" {
		up.userIDClaim = "sub"
	}
	if up.callbackPath == "" {
		up.callbackPath = DefaultUpstreamCallbackPath
	}
	if up.httpClient == nil {
		up.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return up, nil
}

// startUpstreamLogin redirects to the upstream IdP. The nonce is kept in a
// cookie and inside the encoded state; the callback requires both to match.
func (h *Host) startUpstreamLogin(_ context.Context, w http.ResponseWriter, r *http.Request, authorizeURL string) error {
	nonce := security.GenerateNonce(nonceLength)

	raw, err := json.Marshal(upstreamState{Type: upstreamStateType, Next: authorizeURL, Nonce: nonce})
	if err != nil {
		return err
	}
	state, err := h.codec.Encode(string(raw))
	if err != nil {
		return fmt.Errorf("failed to encode upstream state: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     upstreamStateCookie,
		Value:    nonce,
		Path:     h.upstream.callbackPath,
		MaxAge:   int(upstreamStateTTL / time.Second),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.upstream.config.AuthCodeURL(state), http.StatusFound)
	return nil
}

func (h *Host) serveUpstreamCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		h.logger.Warn("Upstream login failed", "error", e, "description", q.Get("error_description"))
		writeError(w, oauth.AccessDeniedError("upstream login failed"))
		return
	}

	raw, err := h.codec.Decode(q.Get("state"))
	var st upstreamState
	if err == nil {
		err = json.Unmarshal([]byte(raw), &st)
	}
	c, cerr := r.Cookie(upstreamStateCookie)
	if err != nil || cerr != nil || st.Type != upstreamStateType || st.Nonce == "" ||
		subtle.ConstantTimeCompare([]byte(c.Value), []byte(st.Nonce)) != 1 {
		h.logger.Warn("Upstream callback with invalid state")
		writeError(w, oauth.NewOAuthError(oauth.ErrorCodeInvalidRequest, "invalid state", http.StatusBadRequest))
		return
	}
	http.SetCookie(w, &http.Cookie{Name: upstreamStateCookie, Path: h.upstream.callbackPath, MaxAge: -1})

	userID, err := h.upstream.resolveUser(r.Context(), q.Get("code"))
	if err != nil {
		h.logger.Error("Upstream code exchange failed", "error", err)
		writeError(w, oauth.AccessDeniedError("upstream login failed"))
		return
	}

	if err := h.startSession(w, userID); err != nil {
		h.logger.Error("Failed to start session", "error", err)
		writeError(w, oauth.ServerError(""))
		return
	}
	http.Redirect(w, r, safeNext(st.Next), http.StatusSeeOther)
}

// resolveUser exchanges the upstream code and reads the user id from the
// userinfo endpoint.
func (u *upstream) resolveUser(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("missing code")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, u.httpClient)
	token, err := u.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.userInfoURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := u.config.Client(ctx, token).Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get user info: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}

	var info map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("failed to decode user info: %w", err)
	}

	switch v := info[u.userIDClaim].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case float64:
		return fmt.Sprintf("%.0f", v), nil
	}
	return "", fmt.Errorf("userinfo has no %q", u.userIDClaim)
}
