// Package security holds the credential codecs and the request hygiene
// helpers used by the OAuth engine.
//
// # Codecs
//
// A Codec turns a string into an opaque URL-safe token and back. Two schemes
// exist:
//
//   - LegacyCodec: AES-256-CBC with key and IV derived from the secret through
//     OpenSSL's EVP_BytesToKey (MD5, one round, no salt). Encoding is
//     deterministic and interoperates with tokens minted by older deployments
//     sharing the same secret.
//   - AEADCodec: AES-256-GCM with a random nonce and an HKDF-derived key.
//     Tokens are authenticated and not deterministic. Not wire compatible with
//     the legacy scheme.
//
// Both emit base64url without padding and reject any input that does not
// decode to a valid ciphertext with ErrDecode.
//
//	codec, err := security.NewCodec(security.CodecSchemeLegacy, secret)
//	tok, _ := codec.Encode("test@cnn.com")
//	user, err := codec.Decode(tok)
//
// # Request hygiene
//
// RateLimiter is a per-IP token bucket on golang.org/x/time/rate with idle
// sweeping and a bounded table. GetClientIP resolves the caller behind a
// configurable number of proxies. RequestIDMiddleware assigns request ids.
// Auditor writes security events to slog with user ids hashed.
package security
