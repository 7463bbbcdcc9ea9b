package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5" //nolint:gosec // G501: MD5 is mandated by the EVP_BytesToKey derivation of issued tokens
	"fmt"
)

const (
	legacyKeySize = 32
	legacyIVSize  = aes.BlockSize
)

// LegacyCodec encrypts credentials with AES-256-CBC and PKCS#7 padding. The key
// and IV are derived from a passphrase with OpenSSL's EVP_BytesToKey (MD5, one
// round, no salt), so no IV travels with the ciphertext and equal plaintexts
// produce equal ciphertexts under the same passphrase.
//
// The scheme exists for compatibility with credentials already issued by
// deployed providers. CBC without a MAC is malleable; prefer AEADCodec when
// compatibility is not required.
type LegacyCodec struct {
	block cipher.Block
	iv    []byte
}

var _ Codec = (*LegacyCodec)(nil)

// NewLegacyCodec derives the key and IV from passphrase.
func NewLegacyCodec(passphrase string) *LegacyCodec {
	key, iv := evpBytesToKey([]byte(passphrase), legacyKeySize, legacyIVSize)

	// aes.NewCipher only fails for invalid key sizes; legacyKeySize is fixed.
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(fmt.Sprintf("aes.NewCipher: %v", err))
	}

	return &LegacyCodec{block: block, iv: iv}
}

// Encode encrypts plaintext and returns URL-safe unpadded base64.
func (c *LegacyCodec) Encode(plaintext string) (string, error) {
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, padded)
	return EncodeURLSafe(out), nil
}

// Decode reverses Encode.
func (c *LegacyCodec) Decode(encoded string) (string, error) {
	ciphertext, err := DecodeURLSafe(encoded)
	if err != nil {
		return "", err
	}

	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext length %d is not a positive multiple of the block size", ErrDecode, len(ciphertext))
	}

	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(out, ciphertext)

	plaintext, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// evpBytesToKey implements OpenSSL's EVP_BytesToKey with MD5, a single
// iteration and no salt:
//
//	D_0 = ""
//	D_i = MD5(D_{i-1} || passphrase)
//	key || iv = D_1 || D_2 || ...
func evpBytesToKey(passphrase []byte, keyLen, ivLen int) ([]byte, []byte) {
	derived := make([]byte, 0, keyLen+ivLen+md5.Size)
	var prev []byte
	for len(derived) < keyLen+ivLen {
		h := md5.New() //nolint:gosec // see import
		h.Write(prev)
		h.Write(passphrase)
		prev = h.Sum(nil)
		derived = append(derived, prev...)
	}
	return derived[:keyLen], derived[keyLen : keyLen+ivLen]
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrDecode)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("%w: bad padding", ErrDecode)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrDecode)
		}
	}
	return data[:len(data)-n], nil
}
