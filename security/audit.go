package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
)

// AuditMessage is the log message of every audit record.
const AuditMessage = "security_audit"

// Auditor writes security audit records. User ids are hashed; client ids and
// IPs are logged as given.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor returns an auditor writing to logger, or to slog.Default when
// logger is nil.
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{logger: logger, enabled: enabled}
}

// Event is one audit record. Empty fields are omitted.
type Event struct {
	Type      string
	UserID    string
	ClientID  string
	IPAddress string

	// Flow is set on issued credentials: implicit, code, auto_approve or exchange.
	Flow string

	// Reason is set on rejections; such events are logged at warn level.
	Reason string

	// Endpoint is set on rate limit events.
	Endpoint string
}

// LogEvent writes e. The request id is taken from ctx. A nil Auditor is a no-op.
func (a *Auditor) LogEvent(ctx context.Context, e Event) {
	if a == nil || !a.enabled {
		return
	}

	attrs := make([]slog.Attr, 0, 8)
	attrs = append(attrs, slog.String("event_type", e.Type))
	if e.UserID != "" {
		attrs = append(attrs, slog.String("user_id_hash", hashForLogging(e.UserID)))
	}
	for _, f := range [...]struct{ key, value string }{
		{"client_id", e.ClientID},
		{"ip_address", e.IPAddress},
		{"request_id", GetRequestID(ctx)},
		{"flow", e.Flow},
		{"reason", e.Reason},
		{"endpoint", e.Endpoint},
	} {
		if f.value != "" {
			attrs = append(attrs, slog.String(f.key, f.value))
		}
	}

	level := slog.LevelInfo
	if e.Reason != "" {
		level = slog.LevelWarn
	}
	a.logger.LogAttrs(ctx, level, AuditMessage, attrs...)
}

// LogCredentialIssued records an issued access token or grant.
func (a *Auditor) LogCredentialIssued(ctx context.Context, eventType, userID, clientID, ipAddress, flow string) {
	a.LogEvent(ctx, Event{Type: eventType, UserID: userID, ClientID: clientID, IPAddress: ipAddress, Flow: flow})
}

// LogDenied records a rejected request.
func (a *Auditor) LogDenied(ctx context.Context, eventType, clientID, ipAddress, reason string) {
	a.LogEvent(ctx, Event{Type: eventType, ClientID: clientID, IPAddress: ipAddress, Reason: reason})
}

// LogRateLimitExceeded records a request refused by the rate limiter.
func (a *Auditor) LogRateLimitExceeded(ctx context.Context, ipAddress, endpoint string) {
	a.LogEvent(ctx, Event{
		Type:      EventRateLimitExceeded,
		IPAddress: ipAddress,
		Endpoint:  endpoint,
		Reason:    "rate limit exceeded",
	})
}

// hashForLogging returns the first 16 hex digits of the SHA-256 of s.
func hashForLogging(s string) string {
	if s == "" {
		return "<empty>"
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
