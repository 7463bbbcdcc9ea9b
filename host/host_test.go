package host

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oauth "github.com/giantswarm/oauth2-provider"
	"github.com/giantswarm/oauth2-provider/internal/testutil"
	"github.com/giantswarm/oauth2-provider/security"
	"github.com/giantswarm/oauth2-provider/storage/memory"
)

const (
	appRedirect     = "https://app.example.com/cb"
	trustedRedirect = "https://trusted.example.com/cb"
)

func checkPassword(_ context.Context, username, password string) (string, error) {
	if username == "alice" && password == "pw" {
		return "alice", nil
	}
	return "", ErrBadCredentials
}

type fixture struct {
	host     *Host
	provider *oauth.Provider
	store    *memory.Store
	codec    security.Codec
	handler  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.New()
	t.Cleanup(store.Stop)

	ctx := context.Background()
	require.NoError(t, store.SaveClient(ctx, testutil.NewTestClient(t, "app", "s3cret", appRedirect)))
	trusted := testutil.NewTestClient(t, "trusted", "s3cret", trustedRedirect)
	trusted.Trusted = true
	require.NoError(t, store.SaveClient(ctx, trusted))

	codec := security.NewLegacyCodec("bar")
	h, err := New(Config{
		Clients:      store,
		Grants:       store,
		Codec:        codec,
		Authenticate: checkPassword,
	})
	require.NoError(t, err)

	p, err := oauth.New(h, &oauth.Config{Codec: codec})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	return &fixture{host: h, provider: p, store: store, codec: codec, handler: p.Handler(h.Routes())}
}

func (f *fixture) sessionCookie(t *testing.T, userID string) *http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	require.NoError(t, f.host.startSession(w, userID))
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func noRedirectClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

var formAction = regexp.MustCompile(`action="([^"]+)"`)

func TestNew_Validation(t *testing.T) {
	store := memory.New()
	defer store.Stop()
	codec := security.NewLegacyCodec("bar")

	_, err := New(Config{Grants: store, Codec: codec, Authenticate: checkPassword})
	assert.Error(t, err)
	_, err = New(Config{Clients: store, Codec: codec, Authenticate: checkPassword})
	assert.Error(t, err)
	_, err = New(Config{Clients: store, Grants: store, Authenticate: checkPassword})
	assert.Error(t, err)
	_, err = New(Config{Clients: store, Grants: store, Codec: codec})
	assert.Error(t, err)
	_, err = New(Config{Clients: store, Grants: store, Codec: codec, Upstream: &UpstreamConfig{}})
	assert.Error(t, err)
}

func TestCodeFlow_EndToEnd(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()
	client := noRedirectClient(t)

	authorize := "/oauth/authorize?" + url.Values{
		"client_id":     {"app"},
		"redirect_uri":  {appRedirect},
		"response_type": {"code"},
		"state":         {"xyz"},
	}.Encode()

	// Not signed in: sent to the login page.
	resp, err := client.Get(srv.URL + authorize)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loginURL, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, DefaultLoginPath, loginURL.Path)
	assert.Equal(t, authorize, loginURL.Query().Get("next"))

	// Sign in.
	resp, err = client.PostForm(srv.URL+DefaultLoginPath, url.Values{
		"username": {"alice"},
		"password": {"pw"},
		"next":     {authorize},
	})
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, authorize, resp.Header.Get("Location"))

	// Consent page.
	resp, err = client.Get(srv.URL + authorize)
	require.NoError(t, err)
	body := readAll(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Test client app")
	m := formAction.FindStringSubmatch(body)
	require.Len(t, m, 2, "consent form action not found")
	action := html.UnescapeString(m[1])
	assert.Contains(t, action, "x_user_id=")

	// Approve.
	resp, err = client.PostForm(srv.URL+action, url.Values{oauth.ConsentField: {"true"}})
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	cb, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "xyz", cb.Query().Get("state"))
	code := cb.Query().Get("code")
	require.NotEmpty(t, code)

	exchange := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {"app"},
		"client_secret": {"s3cret"},
		"redirect_uri":  {appRedirect},
	}

	// Exchange.
	resp, err = client.PostForm(srv.URL+oauth.AccessTokenPath, exchange)
	require.NoError(t, err)
	var tok oauth.TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := f.provider.ValidateToken(tok.AccessToken)
	require.NoError(t, err)
	at, err := ParseAccessToken(data)
	require.NoError(t, err)
	assert.Equal(t, "alice", at.UserID)
	assert.Equal(t, "app", at.ClientID)
	assert.NotEmpty(t, at.ID)
	assert.NoError(t, at.Validate(time.Now()))

	// Replay.
	resp, err = client.PostForm(srv.URL+oauth.AccessTokenPath, exchange)
	require.NoError(t, err)
	body = readAll(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, oauth.ErrorCodeInvalidGrant)
}

func TestTrustedClientSkipsConsent(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?client_id=trusted&redirect_uri="+url.QueryEscape(trustedRedirect), nil)
	req.AddCookie(f.sessionCookie(t, "alice"))
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusSeeOther, w.Code)
	loc := w.Header().Get("Location")
	require.True(t, strings.HasPrefix(loc, trustedRedirect+"#access_token="), loc)

	data, err := f.provider.ValidateToken(strings.TrimPrefix(loc, trustedRedirect+"#access_token="))
	require.NoError(t, err)
	at, err := ParseAccessToken(data)
	require.NoError(t, err)
	assert.Equal(t, "trusted", at.ClientID)
}

func TestValidateClientIDAndRedirectURI(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveClient(ctx, testutil.NewTestClient(t, "fragment", "s3cret", appRedirect+"#top")))
	req := httptest.NewRequest(http.MethodPost, oauth.AuthorizePath, nil)

	tests := []struct {
		name        string
		clientID    string
		redirectURI string
		wantErr     error
		wantCode    string
	}{
		{name: "registered", clientID: "app", redirectURI: appRedirect},
		{name: "unknown client", clientID: "nope", redirectURI: appRedirect, wantErr: oauth.ErrResponseWritten, wantCode: oauth.ErrorCodeInvalidClient},
		{name: "unregistered redirect", clientID: "app", redirectURI: "https://evil.example.com/cb", wantErr: oauth.ErrResponseWritten, wantCode: oauth.ErrorCodeInvalidRequest},
		{name: "redirect prefix", clientID: "app", redirectURI: appRedirect + "/x", wantErr: oauth.ErrResponseWritten, wantCode: oauth.ErrorCodeInvalidRequest},
		{name: "redirect with fragment", clientID: "fragment", redirectURI: appRedirect + "#top", wantErr: oauth.ErrResponseWritten, wantCode: oauth.ErrorCodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			err := f.host.ValidateClientIDAndRedirectURI(ctx, w, req, tt.clientID, tt.redirectURI)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantCode)
		})
	}
}

func TestLookupGrant(t *testing.T) {
	f := newFixture(t)
	ctx := oauth.ContextWithExchangeRedirectURI(context.Background(), appRedirect)

	newGrant := func(t *testing.T, clientID string) string {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/oauth/authorize?redirect_uri="+url.QueryEscape(appRedirect), nil)
		req.AddCookie(f.sessionCookie(t, "alice"))
		id, err := f.host.CreateGrant(ctx, req, clientID)
		require.NoError(t, err)
		return id
	}

	t.Run("wrong secret", func(t *testing.T) {
		w := httptest.NewRecorder()
		_, err := f.host.LookupGrant(ctx, w, "app", "wrong", newGrant(t, "app"))
		assert.ErrorIs(t, err, oauth.ErrResponseWritten)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), oauth.ErrorCodeInvalidClient)
	})

	t.Run("other client", func(t *testing.T) {
		_, err := f.host.LookupGrant(ctx, httptest.NewRecorder(), "trusted", "s3cret", newGrant(t, "app"))
		assert.ErrorIs(t, err, oauth.ErrAccessDenied)
	})

	t.Run("unknown grant", func(t *testing.T) {
		_, err := f.host.LookupGrant(ctx, httptest.NewRecorder(), "app", "s3cret", "no-such-grant")
		assert.ErrorIs(t, err, oauth.ErrAccessDenied)
	})

	t.Run("expired", func(t *testing.T) {
		id := newGrant(t, "app")
		clock := testutil.NewMockTime(time.Now().Add(DefaultGrantTTL + time.Second))
		f.store.SetClock(clock.Now)
		defer f.store.SetClock(time.Now)

		_, err := f.host.LookupGrant(ctx, httptest.NewRecorder(), "app", "s3cret", id)
		assert.ErrorIs(t, err, oauth.ErrAccessDenied)
	})

	t.Run("single use", func(t *testing.T) {
		id := newGrant(t, "app")
		userID, err := f.host.LookupGrant(ctx, httptest.NewRecorder(), "app", "s3cret", id)
		require.NoError(t, err)
		assert.Equal(t, "alice", userID)

		_, err = f.host.LookupGrant(ctx, httptest.NewRecorder(), "app", "s3cret", id)
		assert.ErrorIs(t, err, oauth.ErrAccessDenied)
	})
}

func TestLookupGrant_RedirectURIBinding(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name        string
		redirectURI string
		wantErr     error
	}{
		{name: "same redirect_uri", redirectURI: appRedirect},
		{name: "different redirect_uri", redirectURI: "https://app.example.com/other", wantErr: oauth.ErrAccessDenied},
		{name: "missing redirect_uri", redirectURI: "", wantErr: oauth.ErrAccessDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/oauth/authorize?redirect_uri="+url.QueryEscape(appRedirect), nil)
			req.AddCookie(f.sessionCookie(t, "alice"))
			id, err := f.host.CreateGrant(context.Background(), req, "app")
			require.NoError(t, err)

			ctx := oauth.ContextWithExchangeRedirectURI(context.Background(), tt.redirectURI)
			userID, err := f.host.LookupGrant(ctx, httptest.NewRecorder(), "app", "s3cret", id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "alice", userID)
		})
	}
}

func TestCreateGrant_UsesCarrier(t *testing.T) {
	f := newFixture(t)
	carrier, err := f.codec.Encode("carol")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/oauth/authorize?redirect_uri=x&x_user_id="+carrier, nil)
	id, err := f.host.CreateGrant(context.Background(), req, "app")
	require.NoError(t, err)

	g, err := f.store.ConsumeGrant(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "carol", g.UserID)
	assert.Equal(t, "x", g.RedirectURI)
}

func TestCreateGrant_NoUser(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/oauth/authorize?x_user_id=garbage", nil)
	_, err := f.host.CreateGrant(context.Background(), req, "app")
	assert.ErrorIs(t, err, oauth.ErrAccessDenied)
}

func TestSession(t *testing.T) {
	f := newFixture(t)
	cookie := f.sessionCookie(t, "alice")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	userID, ok := f.host.sessionUser(req)
	assert.True(t, ok)
	assert.Equal(t, "alice", userID)

	clock := testutil.NewMockTime(time.Now().Add(DefaultSessionTTL + time.Minute))
	f.host.SetClock(clock.Now)
	_, ok = f.host.sessionUser(req)
	assert.False(t, ok, "expired session must be rejected")

	tampered := httptest.NewRequest(http.MethodGet, "/", nil)
	tampered.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: cookie.Value + "x"})
	_, ok = f.host.sessionUser(tampered)
	assert.False(t, ok)
}

func TestSession_RejectsOtherPayloads(t *testing.T) {
	f := newFixture(t)

	token, err := f.host.CreateAccessToken(context.Background(), "alice", "app")
	require.NoError(t, err)
	encoded, err := f.codec.Encode(token)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?client_id=trusted&redirect_uri="+url.QueryEscape(trustedRedirect), nil)
	req.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: encoded})
	_, ok := f.host.sessionUser(req)
	assert.False(t, ok, "an access token is not a session")

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "/login?next="), w.Header().Get("Location"))
	assert.NotContains(t, w.Header().Get("Location"), "access_token=")

	legacy, err := f.codec.Encode(`{"uid":"alice","exp":` + strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10) + `}`)
	require.NoError(t, err)
	untyped := httptest.NewRequest(http.MethodGet, "/", nil)
	untyped.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: legacy})
	_, ok = f.host.sessionUser(untyped)
	assert.False(t, ok, "a payload without the session type is not a session")
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	t.Run("form", func(t *testing.T) {
		w := httptest.NewRecorder()
		f.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login?next=%2Foauth%2Fauthorize%3Fclient_id%3Dapp", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `value="/oauth/authorize?client_id=app"`)
	})

	t.Run("bad credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("username=alice&password=nope"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		f.handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Empty(t, w.Result().Cookies())
	})

	t.Run("authenticator failure", func(t *testing.T) {
		h := *f.host
		h.authenticate = func(context.Context, string, string) (string, error) {
			return "", errors.New("directory unavailable")
		}
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("username=a&password=b"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		h.Routes().ServeHTTP(w, req)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("logout", func(t *testing.T) {
		w := httptest.NewRecorder()
		f.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/logout", nil))
		assert.Equal(t, http.StatusSeeOther, w.Code)
		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, -1, cookies[0].MaxAge)
	})
}

func TestSafeNext(t *testing.T) {
	tests := map[string]string{
		"":                          "/",
		"/oauth/authorize?a=1":      "/oauth/authorize?a=1",
		"https://evil.example.com/": "/",
		"//evil.example.com/":       "/",
		"/\\evil.example.com":       "/",
		"relative":                  "/",
	}
	for in, want := range tests {
		assert.Equal(t, want, safeNext(in), "safeNext(%q)", in)
	}
}

func TestAccessDenied(t *testing.T) {
	f := newFixture(t)

	w := httptest.NewRecorder()
	f.host.AccessDenied(w, httptest.NewRequest(http.MethodPost, oauth.AccessTokenPath, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), oauth.ErrorCodeInvalidGrant)

	w = httptest.NewRecorder()
	f.host.AccessDenied(w, httptest.NewRequest(http.MethodPost, oauth.AuthorizePath, nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), oauth.ErrorCodeAccessDenied)
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			break
		}
	}
	return sb.String()
}
