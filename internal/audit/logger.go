// Package audit writes best-effort audit trail entries for pairing and
// device lifecycle events.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"mobile-pairing/backend/internal/audit/domain"
	auditrepo "mobile-pairing/backend/internal/audit/repository"
)

// SentinelAccountID is used for events with no authenticated account
// (e.g. a failed OTP submission from an anonymous mobile client).
const SentinelAccountID = "_anonymous"

// Actions recorded by the pairing flow.
const (
	ActionPairingInitiated = "pairing_initiated"
	ActionPairingAbandoned = "pairing_abandoned"
	ActionPairingCompleted = "pairing_completed"
	ActionOTPVerified      = "otp_verified"
	ActionOTPFailed        = "otp_failed"
	ActionDeviceRevoked    = "device_revoked"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, accountID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, accountID, action, resource, metadata string) {
	if l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	if accountID == "" {
		accountID = SentinelAccountID
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
	}
}

// Nop is an AuditLogger that discards everything. Useful in tests and when
// no database is configured.
type Nop struct{}

func (Nop) LogEvent(context.Context, string, string, string, string) {}
