package consumer

import (
	"context"
	"log/slog"

	"unykorn/internal/platform/kafka/consumer"
	audit "unykorn/pkg/platform/audit"
)

// TopicHandler handles messages from a specific topic.
type TopicHandler interface {
	Handle(ctx context.Context, msg *consumer.Message) error
}

// Router dispatches messages to topic-specific handlers.
type Router struct {
	handlers map[string]TopicHandler
	fallback TopicHandler
	logger   *slog.Logger
}

// NewRouter creates a topic router with an optional fallback handler.
func NewRouter(logger *slog.Logger, fallback TopicHandler) *Router {
	return &Router{
		handlers: make(map[string]TopicHandler),
		fallback: fallback,
		logger:   logger,
	}
}

// NewCategoryRouter routes every `<prefix>.<category>` topic into store.
// Compliance topics are strict: a storage failure stops consumption rather
// than skipping the record.
func NewCategoryRouter(prefix string, store EventStore, logger *slog.Logger) *Router {
	r := NewRouter(logger, nil)
	for _, cat := range audit.Categories() {
		r.Register(audit.Topic(prefix, cat), NewEventHandler(store, logger, cat == audit.CategoryCompliance))
	}
	return r
}

// Register adds a handler for a specific topic.
func (r *Router) Register(topic string, handler TopicHandler) {
	r.handlers[topic] = handler
}

// Topics lists the registered topics.
func (r *Router) Topics() []string {
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}

// Handle routes the message to the appropriate topic handler.
func (r *Router) Handle(ctx context.Context, msg *consumer.Message) error {
	handler, ok := r.handlers[msg.Topic]
	if !ok {
		if r.fallback != nil {
			return r.fallback.Handle(ctx, msg)
		}
		r.logger.Warn("no handler for topic, skipping message",
			"topic", msg.Topic,
			"key", string(msg.Key),
		)
		return nil // Commit to avoid redelivery
	}
	return handler.Handle(ctx, msg)
}
