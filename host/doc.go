// Package host is a reference implementation of the oauth extensions.
//
// It keeps clients and grants in a storage backend, signs users in with a
// cookie session (a local login form or an upstream OAuth2 identity
// provider), renders the consent page and issues JSON access token payloads
// that resource servers read back with ParseAccessToken.
//
// Wiring it to a provider:
//
//	codec, _ := security.NewCodec(security.CodecSchemeLegacy, secret)
//	h, _ := host.New(host.Config{Clients: store, Grants: store, Codec: codec, Authenticate: check})
//	p, _ := oauth.New(h, &oauth.Config{Codec: codec})
//	mux.Handle("/", p.Handler(h.Routes()))
package host
