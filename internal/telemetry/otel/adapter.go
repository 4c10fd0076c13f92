package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"mobile-pairing/backend/internal/audit"
)

// recordEmitter is the slice of otellog.Logger the emitter needs.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// AuditEmitter decorates an audit logger, mirroring every event to the OTel
// LoggerProvider as a log record. If provider is nil only the inner logger
// runs.
type AuditEmitter struct {
	inner  audit.AuditLogger
	logger recordEmitter
}

// NewAuditEmitter wraps inner with OTLP log export. inner may be nil.
func NewAuditEmitter(provider *sdklog.LoggerProvider, inner audit.AuditLogger) *AuditEmitter {
	if inner == nil {
		inner = audit.Nop{}
	}
	e := &AuditEmitter{inner: inner}
	if provider != nil {
		e.logger = provider.Logger("mobile-pairing.audit")
	}
	return e
}

// LogEvent forwards to the inner logger and emits an OTel log record.
func (e *AuditEmitter) LogEvent(ctx context.Context, accountID, action, resource, metadata string) {
	e.inner.LogEvent(ctx, accountID, action, resource, metadata)
	if e.logger == nil {
		return
	}
	rec := otellog.Record{}
	rec.SetTimestamp(time.Now().UTC())
	if metadata != "" {
		rec.SetBody(otellog.StringValue(metadata))
	}
	if accountID != "" {
		rec.AddAttributes(otellog.String("account_id", accountID))
	}
	rec.AddAttributes(
		otellog.String("action", action),
		otellog.String("resource", resource),
	)
	e.logger.Emit(ctx, rec)
}
