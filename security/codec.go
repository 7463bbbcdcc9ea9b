package security

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrDecode is returned (wrapped) by every Codec when an input was not produced
// by Encode under the same secret.
var ErrDecode = errors.New("credential decode failed")

// Codec turns opaque payload strings into URL-safe encrypted strings and back.
// Implementations must be safe for concurrent use.
type Codec interface {
	// Encode encrypts plaintext and returns a URL-safe, unpadded string.
	Encode(plaintext string) (string, error)

	// Decode reverses Encode. Any failure wraps ErrDecode.
	Decode(encoded string) (string, error)
}

// urlSafeEncoding is base64 with '-' and '_' substituted for '+' and '/' and
// without '=' padding. Strict mode rejects non-zero trailing bits so that two
// different strings never decode to the same bytes.
var urlSafeEncoding = base64.RawURLEncoding.Strict()

// EncodeURLSafe encodes raw bytes as URL-safe unpadded base64.
func EncodeURLSafe(raw []byte) string {
	return urlSafeEncoding.EncodeToString(raw)
}

// DecodeURLSafe decodes URL-safe base64. Trailing '=' padding is tolerated and
// stripped before decoding.
func DecodeURLSafe(s string) ([]byte, error) {
	raw, err := urlSafeEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid encoding: %v", ErrDecode, err)
	}
	return raw, nil
}

// CodecScheme names a credential encoding scheme.
type CodecScheme string

const (
	// CodecSchemeLegacy is AES-256-CBC with an EVP_BytesToKey(MD5) derived key
	// and IV. Deterministic and wire compatible with previously issued tokens.
	CodecSchemeLegacy CodecScheme = "legacy"

	// CodecSchemeAEAD is AES-256-GCM with a random nonce per message.
	// Tokens are not readable by the legacy scheme and vice versa.
	CodecSchemeAEAD CodecScheme = "aead"
)

// NewCodec builds the codec for scheme keyed by secret.
func NewCodec(scheme CodecScheme, secret string) (Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("codec secret is required")
	}
	switch scheme {
	case "", CodecSchemeLegacy:
		return NewLegacyCodec(secret), nil
	case CodecSchemeAEAD:
		return NewAEADCodecFromPassphrase(secret)
	default:
		return nil, fmt.Errorf("unknown codec scheme %q", scheme)
	}
}
