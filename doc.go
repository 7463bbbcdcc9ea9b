// Package oauth is an embeddable OAuth 2.0 authorization endpoint engine.
//
// The Provider serves three routes and owns nothing but the protocol flow:
//
//	GET  /oauth/authorize     login, then the consent form or automatic approval
//	POST /oauth/authorize     consent decision, implicit token or authorization code
//	POST /oauth/access_token  authorization code exchange
//
// Identity, the client registry, grant storage, token payloads and every page
// the user sees belong to the host, which plugs them in by implementing
// Extensions (optionally also SkipAllower and ErrorResponder) or by filling in
// a Hooks value.
//
// Access tokens, authorization codes and the x_user_id carrier are opaque
// payloads encrypted with the provider secret; see the security package for
// the codecs. A minimal setup:
//
//	provider, err := oauth.New(&oauth.Hooks{
//		OnEnforceLogin: func(ctx context.Context, w http.ResponseWriter, r *http.Request, authorizeURL string) (string, error) {
//			return sessionUser(r)
//		},
//		// ...
//	}, &oauth.Config{Secret: os.Getenv("OAUTH_SECRET")})
//	if err != nil {
//		return err
//	}
//	http.Handle("/", provider.Handler(app))
//
// Resource servers validate tokens with Provider.ValidateToken or the
// RequireAccessToken middleware.
package oauth
