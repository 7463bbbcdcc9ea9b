package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/oauth2-provider/instrumentation"
	"github.com/giantswarm/oauth2-provider/security"
)

// Provider runs the authorization and token endpoints and delegates every
// policy decision to the host's Extensions.
type Provider struct {
	ext       Extensions
	skipper   SkipAllower
	responder ErrorResponder

	codec       security.Codec
	auditor     *security.Auditor
	rateLimiter *security.RateLimiter

	instrumentation *instrumentation.Instrumentation
	metrics         *instrumentation.Metrics
	tracer          trace.Tracer

	logger *slog.Logger
	config *Config
}

// New creates a provider. SkipAllower and ErrorResponder are picked up when
// ext implements them.
func New(ext Extensions, config *Config) (*Provider, error) {
	if ext == nil {
		return nil, fmt.Errorf("extensions are required")
	}
	if config == nil {
		config = &Config{}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	config = applySecureDefaults(config, logger)

	codec := config.Codec
	if codec == nil {
		var err error
		codec, err = security.NewCodec(config.CodecScheme, config.Secret)
		if err != nil {
			return nil, fmt.Errorf("failed to create credential codec: %w", err)
		}
	}

	p := &Provider{
		ext:     ext,
		codec:   codec,
		auditor: security.NewAuditor(logger, !config.Security.DisableAuditLogging),
		logger:  logger,
		config:  config,
		tracer:  tracenoop.NewTracerProvider().Tracer(""),
	}

	if s, ok := ext.(SkipAllower); ok && !config.DisableSkipAllow {
		p.skipper = s
	}
	if er, ok := ext.(ErrorResponder); ok {
		p.responder = er
	}

	if config.RateLimit.Rate > 0 {
		p.rateLimiter = security.NewRateLimiter(config.RateLimit.Rate, config.RateLimit.Burst, logger)
	}

	if inst := config.Instrumentation; inst != nil {
		p.instrumentation = inst
		p.metrics = inst.Metrics()
		p.tracer = inst.Tracer("server")
	}

	return p, nil
}

// Codec returns the credential codec shared with the host, for example to
// sign session cookies with the same secret.
func (p *Provider) Codec() security.Codec {
	return p.codec
}

// ValidateToken decodes an access token issued by this provider and returns
// the payload produced by CreateAccessToken.
func (p *Provider) ValidateToken(token string) (string, error) {
	data, err := p.decode(context.Background(), token)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return data, nil
}

// Shutdown stops background work owned by the provider. The instrumentation
// passed in Config is left to its owner.
func (p *Provider) Shutdown(_ context.Context) error {
	if p.rateLimiter != nil {
		p.rateLimiter.Stop()
	}
	return nil
}

func (p *Provider) encode(ctx context.Context, plaintext string) (string, error) {
	start := time.Now()
	out, err := p.codec.Encode(plaintext)
	p.metrics.RecordCodecOperation(ctx, "encode", err == nil, sinceMs(start))
	return out, err
}

func (p *Provider) decode(ctx context.Context, encoded string) (string, error) {
	start := time.Now()
	out, err := p.codec.Decode(encoded)
	p.metrics.RecordCodecOperation(ctx, "decode", err == nil, sinceMs(start))
	return out, err
}

// startExtension opens a child span for an extension call. bounded calls get
// Config.ExtensionTimeout. The returned func must be called with the result.
func (p *Provider) startExtension(ctx context.Context, extension string, bounded bool) (context.Context, func(error)) {
	cancel := context.CancelFunc(func() {})
	if bounded && p.config.ExtensionTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.config.ExtensionTimeout)
	}
	ctx, span := p.tracer.Start(ctx, "extension."+extension)
	instrumentation.AddExtensionAttributes(span, extension)
	start := time.Now()

	return ctx, func(err error) {
		result := "success"
		switch {
		case err == nil:
			instrumentation.SetSpanSuccess(span)
		case errors.Is(err, ErrResponseWritten):
			result = "response_written"
		case errors.Is(err, ErrAccessDenied):
			result = "denied"
		default:
			result = "error"
			instrumentation.RecordError(span, err)
		}
		span.End()
		cancel()
		p.metrics.RecordExtensionCall(ctx, extension, result, sinceMs(start))
	}
}

func (p *Provider) clientIP(span trace.Span, r *http.Request) string {
	ip := security.GetClientIP(r, p.config.Security.TrustProxy, p.config.Security.TrustedProxyCount)
	if p.instrumentation != nil && p.instrumentation.ShouldLogClientIPs() {
		instrumentation.AddSecurityAttributes(span, ip)
	}
	return ip
}

func sinceMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
