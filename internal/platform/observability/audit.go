// Package observability provides the audit logging helper shared by ledger
// components.
package observability

import (
	"context"
	"log/slog"

	"unykorn/pkg/attrs"
	"unykorn/pkg/platform/audit"
	"unykorn/pkg/platform/tx"
	"unykorn/pkg/requestcontext"
)

// AuditPublisher receives committed audit events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Reserved attribute keys lifted into audit.Event fields.
const (
	KeySubject   = "subject"
	KeyActor     = "actor"
	KeyAmount    = "amount"
	KeyReference = "reference"
	KeyReason    = "reason"
)

// LogAudit logs an audit event to the structured logger and the audit
// publisher once the enclosing ledger transaction commits. A rolled back
// transaction emits nothing.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher AuditPublisher, component string, event audit.AuditEvent, attrList ...any) {
	at := requestcontext.Now(ctx)
	tx.AfterCommit(ctx, func(ctx context.Context) {
		requestID := requestcontext.RequestID(ctx)
		if requestID != "" {
			attrList = append(attrList, "request_id", requestID)
		}
		args := append(attrList, "component", component, "event", string(event), "log_type", "audit")

		if logger != nil {
			logger.InfoContext(ctx, string(event), args...)
		}
		if publisher == nil {
			return
		}
		err := publisher.Emit(ctx, audit.Event{
			Category:  event.Category(),
			Timestamp: at,
			Component: component,
			Subject:   attrs.ExtractString(attrList, KeySubject),
			Action:    string(event),
			ActorID:   attrs.ExtractString(attrList, KeyActor),
			Amount:    attrs.ExtractString(attrList, KeyAmount),
			Reference: attrs.ExtractString(attrList, KeyReference),
			Reason:    attrs.ExtractString(attrList, KeyReason),
			RequestID: requestID,
			Attributes: attrs.ToStringMap(attrList,
				KeySubject, KeyActor, KeyAmount, KeyReference, KeyReason, "request_id"),
		})
		if err != nil && logger != nil {
			logger.WarnContext(ctx, "failed to emit audit event", "event", string(event), "error", err)
		}
	})
}
