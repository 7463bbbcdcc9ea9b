package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"
)

// TestCodeFlow_OAuth2Client runs the authorization code flow against a real
// HTTP server with golang.org/x/oauth2 as the client.
func TestCodeFlow_OAuth2Client(t *testing.T) {
	const redirectURL = "https://app.example.com/callback"

	host := &testHost{}
	hooks := host.hooks()
	var exchangeRedirect string
	lookup := hooks.OnLookupGrant
	hooks.OnLookupGrant = func(ctx context.Context, w http.ResponseWriter, clientID, clientSecret, code string) (string, error) {
		exchangeRedirect = ExchangeRedirectURIFromContext(ctx)
		return lookup(ctx, w, clientID, clientSecret, code)
	}

	p := newTestProvider(t, hooks)
	srv := httptest.NewServer(p)
	defer srv.Close()

	for _, style := range []oauth2.AuthStyle{oauth2.AuthStyleInHeader, oauth2.AuthStyleInParams} {
		conf := &oauth2.Config{
			ClientID:     "client-1",
			ClientSecret: "s3cret",
			RedirectURL:  redirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   srv.URL + AuthorizePath,
				TokenURL:  srv.URL + AccessTokenPath,
				AuthStyle: style,
			},
		}

		client := srv.Client()
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}

		// Consent form.
		resp, err := client.Get(conf.AuthCodeURL("state-123"))
		if err != nil {
			t.Fatalf("GET authorize: %v", err)
		}
		var form map[string]string
		err = json.NewDecoder(resp.Body).Decode(&form)
		_ = resp.Body.Close()
		if err != nil || resp.StatusCode != http.StatusOK {
			t.Fatalf("consent form: status %d, err %v", resp.StatusCode, err)
		}
		if !strings.Contains(form["url"], "&x_user_id=") {
			t.Fatalf("consent url %q lacks the carrier", form["url"])
		}

		// Approve.
		resp, err = client.PostForm(srv.URL+form["url"], url.Values{"allow": {"Allow"}})
		if err != nil {
			t.Fatalf("POST authorize: %v", err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusSeeOther {
			t.Fatalf("consent status = %d, want 303", resp.StatusCode)
		}
		loc, err := url.Parse(resp.Header.Get("Location"))
		if err != nil {
			t.Fatalf("Location: %v", err)
		}
		if got := loc.Query().Get("state"); got != "state-123" {
			t.Errorf("state = %q", got)
		}

		// Exchange.
		token, err := conf.Exchange(context.Background(), loc.Query().Get("code"))
		if err != nil {
			t.Fatalf("Exchange() error = %v", err)
		}
		if token.AccessToken != expectedToken {
			t.Errorf("AccessToken = %q, want %q", token.AccessToken, expectedToken)
		}
		if host.lookupClient != "client-1" || host.lookupSecret != "s3cret" {
			t.Errorf("style %v: LookupGrant credentials = %q/%q", style, host.lookupClient, host.lookupSecret)
		}
		if exchangeRedirect != redirectURL {
			t.Errorf("exchange redirect_uri = %q, want %q", exchangeRedirect, redirectURL)
		}
	}
}

func TestCodeFlow_OAuth2Client_RejectsGarbageCode(t *testing.T) {
	p := newTestProvider(t, (&testHost{}).hooks())
	srv := httptest.NewServer(p)
	defer srv.Close()

	conf := &oauth2.Config{
		ClientID:     "client-1",
		ClientSecret: "s3cret",
		Endpoint: oauth2.Endpoint{
			TokenURL:  srv.URL + AccessTokenPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	_, err := conf.Exchange(context.Background(), "WTF_code")
	var rerr *oauth2.RetrieveError
	if err == nil {
		t.Fatal("Exchange() should fail for a garbage code")
	}
	if !errors.As(err, &rerr) || rerr.Response.StatusCode != http.StatusUnauthorized {
		t.Errorf("Exchange() error = %v, want a 401 RetrieveError", err)
	}
}
