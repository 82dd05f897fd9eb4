package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"unykorn/internal/platform/kafka/consumer"
	audit "unykorn/pkg/platform/audit"
	"unykorn/pkg/platform/audit/store/postgres"

	"github.com/google/uuid"
)

// EventStore materializes relayed events for querying.
type EventStore interface {
	AppendWithID(ctx context.Context, eventID uuid.UUID, event audit.Event) error
}

// EventHandler decodes relayed outbox payloads and writes them to the
// audit_events projection. Inserts are idempotent on the event ID, so
// redelivery from the at-least-once relay is harmless.
type EventHandler struct {
	store  EventStore
	logger *slog.Logger
	// strict makes storage failures block the partition (compliance topics).
	strict bool
}

// NewEventHandler creates a handler. strict handlers return storage errors so
// the consumer stops without committing; lenient ones log and move on.
func NewEventHandler(store EventStore, logger *slog.Logger, strict bool) *EventHandler {
	return &EventHandler{store: store, logger: logger, strict: strict}
}

// Handle processes one relayed audit event.
func (h *EventHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	eventID, err := uuid.Parse(string(msg.Key))
	if err != nil {
		h.logger.Error("failed to parse audit event ID",
			"topic", msg.Topic,
			"key", string(msg.Key),
			"error", err,
		)
		// Return nil to commit - malformed messages should not block
		return nil
	}

	var payload postgres.Payload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		h.logger.Error("failed to unmarshal audit payload",
			"event_id", eventID,
			"error", err,
		)
		return nil
	}
	event, err := payload.Event()
	if err != nil {
		h.logger.Error("invalid audit payload",
			"event_id", eventID,
			"error", err,
		)
		return nil
	}

	if err := h.store.AppendWithID(ctx, eventID, event); err != nil {
		h.logger.Error("failed to store audit event",
			"event_id", eventID,
			"action", event.Action,
			"error", err,
		)
		if h.strict {
			return fmt.Errorf("store audit event: %w", err)
		}
		return nil
	}

	h.logger.Debug("stored audit event",
		"event_id", eventID,
		"action", event.Action,
		"subject", event.Subject,
	)
	return nil
}
