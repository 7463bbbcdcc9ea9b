package oauth

import (
	"errors"
	"fmt"
	"net/http"
)

// OAuth error codes as constants
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeInvalidToken            = "invalid_token"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeServerError             = "server_error"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeRateLimitExceeded       = "rate_limit_exceeded"
)

// Extension error sentinels. Extensions wrap these to steer the engine.
var (
	// ErrResponseWritten tells the engine that the extension already wrote the
	// terminal response (a login redirect, an error page). The engine stops
	// without writing anything.
	ErrResponseWritten = errors.New("response already written")

	// ErrAccessDenied makes the engine invoke Extensions.AccessDenied.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidToken is returned by ValidateToken for tokens that do not decode.
	ErrInvalidToken = errors.New("decrypting token failed")
)

// ErrorKind classifies the conditions the engine reports.
type ErrorKind string

const (
	KindParamMissing            ErrorKind = "param_missing"
	KindInvalidResponseType     ErrorKind = "invalid_response_type"
	KindConsentDenied           ErrorKind = "consent_denied"
	KindCredentialDecodeFailure ErrorKind = "credential_decode_failure"
	KindGrantLookupFailure      ErrorKind = "grant_lookup_failure"
	KindServerError             ErrorKind = "server_error"
	KindRateLimited             ErrorKind = "rate_limited"
)

// OAuthError represents an OAuth 2.0 error response
type OAuthError struct {
	Code        string    // OAuth error code (e.g., "invalid_request", "server_error")
	Description string    // Human-readable error description
	Status      int       // HTTP status code
	Kind        ErrorKind // engine classification, empty for host-built errors
}

// Error implements the error interface
func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewOAuthError creates a new OAuth error
func NewOAuthError(code, description string, status int) *OAuthError {
	return &OAuthError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

func newKindError(kind ErrorKind, code, description string, status int) *OAuthError {
	e := NewOAuthError(code, description, status)
	e.Kind = kind
	return e
}

// Errors the engine renders itself through ErrorResponder.
var (
	// ServerError indicates an extension failed or the codec could not encode.
	ServerError = func(desc string) *OAuthError {
		return newKindError(KindServerError, ErrorCodeServerError, desc, http.StatusInternalServerError)
	}

	// RateLimitError indicates the per-IP request budget is exhausted.
	RateLimitError = func(desc string) *OAuthError {
		return newKindError(KindRateLimited, ErrorCodeRateLimitExceeded, desc, http.StatusTooManyRequests)
	}

	// InvalidTokenError indicates a bearer token failed to decode.
	InvalidTokenError = func(desc string) *OAuthError {
		return newKindError(KindCredentialDecodeFailure, ErrorCodeInvalidToken, desc, http.StatusUnauthorized)
	}

	// InvalidRequestError indicates missing or malformed parameters.
	InvalidRequestError = func(desc string) *OAuthError {
		return newKindError(KindParamMissing, ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
	}

	// UnsupportedResponseTypeError indicates response_type is neither code nor token.
	UnsupportedResponseTypeError = func(desc string) *OAuthError {
		return newKindError(KindInvalidResponseType, ErrorCodeUnsupportedResponseType, desc, http.StatusBadRequest)
	}

	// AccessDeniedError indicates consent was refused or a credential was rejected.
	AccessDeniedError = func(desc string) *OAuthError {
		return newKindError(KindConsentDenied, ErrorCodeAccessDenied, desc, http.StatusForbidden)
	}
)
