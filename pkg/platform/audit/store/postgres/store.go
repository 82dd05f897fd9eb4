package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	audit "unykorn/pkg/platform/audit"
	txcontext "unykorn/pkg/platform/tx"

	"github.com/google/uuid"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table and published to Kafka by the outbox relay.
// The audit_events table is the queryable projection materialized by the consumer.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Payload is the JSON structure published to Kafka. Field names match
// audit.Event so consumers can decode it directly.
type Payload struct {
	ID         string            `json:"ID"`
	Category   string            `json:"Category"`
	Timestamp  string            `json:"Timestamp"`
	Component  string            `json:"Component,omitempty"`
	Subject    string            `json:"Subject"`
	Action     string            `json:"Action"`
	ActorID    string            `json:"ActorID,omitempty"`
	Amount     string            `json:"Amount,omitempty"`
	Reference  string            `json:"Reference,omitempty"`
	Reason     string            `json:"Reason,omitempty"`
	RequestID  string            `json:"RequestID,omitempty"`
	Attributes map[string]string `json:"Attributes,omitempty"`
}

// Event converts the payload back into an audit event.
func (p Payload) Event() (audit.Event, error) {
	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		return audit.Event{}, fmt.Errorf("parse timestamp: %w", err)
	}
	return audit.Event{
		Category:   audit.EventCategory(p.Category),
		Timestamp:  ts,
		Component:  p.Component,
		Subject:    p.Subject,
		Action:     p.Action,
		ActorID:    p.ActorID,
		Amount:     p.Amount,
		Reference:  p.Reference,
		Reason:     p.Reason,
		RequestID:  p.RequestID,
		Attributes: p.Attributes,
	}, nil
}

// Append writes an audit event to the outbox table for Kafka publishing.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	// Always derive category from action - the event catalogue is the source of truth
	category := audit.AuditEvent(event.Action).Category()

	payloadBytes, err := json.Marshal(Payload{
		ID:         eventID.String(),
		Category:   string(category),
		Timestamp:  event.Timestamp.UTC().Format(time.RFC3339Nano),
		Component:  event.Component,
		Subject:    event.Subject,
		Action:     event.Action,
		ActorID:    event.ActorID,
		Amount:     event.Amount,
		Reference:  event.Reference,
		Reason:     event.Reason,
		RequestID:  event.RequestID,
		Attributes: event.Attributes,
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType := event.Component
	if aggregateType == "" {
		aggregateType = "ledger"
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, category, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		eventID,
		aggregateType,
		event.Subject,
		event.Action,
		string(category),
		payloadBytes,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// AppendWithID inserts an audit event into the audit_events table with a specific ID.
// Used by the Kafka consumer to materialize events for querying.
// This is idempotent - duplicate inserts are ignored via ON CONFLICT DO NOTHING.
func (s *Store) AppendWithID(ctx context.Context, eventID uuid.UUID, event audit.Event) error {
	attrs, err := json.Marshal(event.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	query := `
		INSERT INTO audit_events (
			id, category, timestamp, component, subject, action,
			actor_id, amount, reference, reason, request_id, attributes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		eventID,
		string(event.Category),
		event.Timestamp,
		event.Component,
		event.Subject,
		event.Action,
		event.ActorID,
		event.Amount,
		event.Reference,
		event.Reason,
		event.RequestID,
		attrs,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

const selectEvents = `
	SELECT category, timestamp, component, subject, action,
		   actor_id, amount, reference, reason, request_id, attributes
	FROM audit_events
`

// ListBySubject returns events for a specific identity, newest first.
func (s *Store) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectEvents+` WHERE subject = $1 ORDER BY timestamp DESC`, subject)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// ListRecent returns the N most recent events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectEvents+` ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

func (s *Store) scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			category string
			attrs    []byte
			event    audit.Event
		)
		err := rows.Scan(
			&category,
			&event.Timestamp,
			&event.Component,
			&event.Subject,
			&event.Action,
			&event.ActorID,
			&event.Amount,
			&event.Reference,
			&event.Reason,
			&event.RequestID,
			&attrs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &event.Attributes); err != nil {
				return nil, fmt.Errorf("decode attributes: %w", err)
			}
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}
