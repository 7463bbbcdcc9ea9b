package security

// Event type constants for security audit logging.
const (
	// Authorization endpoint events

	// EventAuthorizeParamMissing is logged when client_id or redirect_uri is absent
	EventAuthorizeParamMissing = "authorize_param_missing"

	// EventConsentRequested is logged when the consent form is handed to the host
	EventConsentRequested = "consent_requested"

	// EventConsentAutoApproved is logged when the host skips the consent form for a trusted client
	EventConsentAutoApproved = "consent_auto_approved"

	// EventConsentDenied is logged when the user denies the consent request
	EventConsentDenied = "consent_denied"

	// EventInvalidResponseType is logged when response_type is neither "code" nor "token"
	EventInvalidResponseType = "invalid_response_type"

	// EventClientRejected is logged when the host rejects the client_id/redirect_uri pair
	EventClientRejected = "client_rejected"

	// Credential events

	// EventAccessTokenIssued is logged when an access token is issued
	EventAccessTokenIssued = "access_token_issued" //nolint:gosec // G101: event type name, not a credential

	// EventGrantIssued is logged when an authorization code is issued
	EventGrantIssued = "grant_issued"

	// EventCarrierDecodeFailed is logged when x_user_id fails to decode (tampering or wrong secret)
	EventCarrierDecodeFailed = "carrier_decode_failed"

	// EventGrantDecodeFailed is logged when a submitted authorization code fails to decode
	EventGrantDecodeFailed = "grant_decode_failed"

	// EventGrantLookupFailed is logged when the host rejects a decoded grant
	EventGrantLookupFailed = "grant_lookup_failed"

	// EventInvalidBearerToken is logged when a protected resource receives an undecodable token
	EventInvalidBearerToken = "invalid_bearer_token" //nolint:gosec // G101: event type name, not a credential

	// Security violation events

	// EventRateLimitExceeded is logged when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"
)
