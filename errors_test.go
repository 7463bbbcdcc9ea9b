package oauth

import (
	"net/http"
	"testing"
)

func TestOAuthError_Error(t *testing.T) {
	tests := []struct {
		name        string
		code        string
		description string
		want        string
	}{
		{
			name:        "simple error",
			code:        "invalid_request",
			description: "Missing required parameter",
			want:        "invalid_request: Missing required parameter",
		},
		{
			name:        "error with empty description",
			code:        "server_error",
			description: "",
			want:        "server_error: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &OAuthError{
				Code:        tt.code,
				Description: tt.description,
			}
			if got := e.Error(); got != tt.want {
				t.Errorf("OAuthError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewOAuthError(t *testing.T) {
	err := NewOAuthError(ErrorCodeInvalidClient, "Client authentication failed", http.StatusUnauthorized)
	if err.Code != ErrorCodeInvalidClient {
		t.Errorf("Code = %q, want %q", err.Code, ErrorCodeInvalidClient)
	}
	if err.Description != "Client authentication failed" {
		t.Errorf("Description = %q", err.Description)
	}
	if err.Status != http.StatusUnauthorized {
		t.Errorf("Status = %d, want %d", err.Status, http.StatusUnauthorized)
	}
	if err.Kind != "" {
		t.Errorf("Kind = %q, want empty for host-built errors", err.Kind)
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name           string
		constructor    func(string) *OAuthError
		expectedCode   string
		expectedStatus int
		expectedKind   ErrorKind
	}{
		{"ServerError", ServerError, ErrorCodeServerError, http.StatusInternalServerError, KindServerError},
		{"RateLimitError", RateLimitError, ErrorCodeRateLimitExceeded, http.StatusTooManyRequests, KindRateLimited},
		{"InvalidTokenError", InvalidTokenError, ErrorCodeInvalidToken, http.StatusUnauthorized, KindCredentialDecodeFailure},
		{"InvalidRequestError", InvalidRequestError, ErrorCodeInvalidRequest, http.StatusBadRequest, KindParamMissing},
		{"UnsupportedResponseTypeError", UnsupportedResponseTypeError, ErrorCodeUnsupportedResponseType, http.StatusBadRequest, KindInvalidResponseType},
		{"AccessDeniedError", AccessDeniedError, ErrorCodeAccessDenied, http.StatusForbidden, KindConsentDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := "test description"
			err := tt.constructor(desc)
			if err.Code != tt.expectedCode {
				t.Errorf("Code = %q, want %q", err.Code, tt.expectedCode)
			}
			if err.Description != desc {
				t.Errorf("Description = %q, want %q", err.Description, desc)
			}
			if err.Status != tt.expectedStatus {
				t.Errorf("Status = %d, want %d", err.Status, tt.expectedStatus)
			}
			if err.Kind != tt.expectedKind {
				t.Errorf("Kind = %q, want %q", err.Kind, tt.expectedKind)
			}
		})
	}
}
