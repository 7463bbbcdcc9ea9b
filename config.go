package oauth

import (
	"log/slog"
	"time"

	"github.com/giantswarm/oauth2-provider/instrumentation"
	"github.com/giantswarm/oauth2-provider/security"
)

// Config holds the provider configuration
type Config struct {
	// Secret keys the credential codec. Required unless Codec is set.
	Secret string

	// CodecScheme selects the credential encoding. Default: legacy.
	// CodecSchemeAEAD is not wire compatible with tokens issued under legacy.
	CodecScheme security.CodecScheme

	// Codec overrides Secret and CodecScheme.
	Codec security.Codec

	// RedirectDenials sends a denied consent back to redirect_uri with
	// error=access_denied instead of calling Extensions.AccessDenied.
	RedirectDenials bool

	// DisableSkipAllow ignores a SkipAllower implemented by the extensions.
	DisableSkipAllow bool

	// ExtensionTimeout bounds ShouldSkipAllow, CreateAccessToken, CreateGrant,
	// LookupGrant and ValidateClientIDAndRedirectURI. Zero means no timeout.
	ExtensionTimeout time.Duration

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// Security settings
	Security SecurityConfig

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger

	// Instrumentation enables spans and metrics. Optional.
	Instrumentation *instrumentation.Instrumentation
}

// RateLimitConfig holds per-IP rate limiting for the provider endpoints.
type RateLimitConfig struct {
	// Rate is requests per second allowed per IP. Zero disables limiting.
	Rate int

	// Burst is the maximum burst size allowed per IP. Defaults to 2*Rate.
	Burst int
}

// SecurityConfig holds provider security settings
type SecurityConfig struct {
	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool

	// TrustedProxyCount is the number of proxies appending to X-Forwarded-For.
	// Default: 1
	TrustedProxyCount int

	// DisableAuditLogging turns off security audit events.
	DisableAuditLogging bool
}

// applySecureDefaults fills zero values and warns about weakened settings.
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	if config.CodecScheme == "" {
		config.CodecScheme = security.CodecSchemeLegacy
	}
	if config.Security.TrustedProxyCount <= 0 {
		config.Security.TrustedProxyCount = 1
	}
	if config.RateLimit.Rate > 0 && config.RateLimit.Burst <= 0 {
		config.RateLimit.Burst = config.RateLimit.Rate * 2
	}

	if config.Security.TrustProxy {
		logger.Warn("SECURITY NOTICE: Trusting proxy headers",
			"risk", "IP spoofing if proxy is not properly configured",
			"recommendation", "Only enable behind trusted reverse proxies",
			"trusted_proxy_count", config.Security.TrustedProxyCount)
	}
	if config.Codec == nil && config.CodecScheme == security.CodecSchemeLegacy {
		logger.Debug("Using legacy credential codec",
			"risk", "Unauthenticated CBC ciphertexts are malleable",
			"recommendation", "Set CodecScheme to aead when existing tokens need not stay valid")
	}
	if config.Security.DisableAuditLogging {
		logger.Warn("SECURITY NOTICE: Audit logging is disabled")
	}

	return config
}
