package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	audit "unykorn/pkg/platform/audit"
)

// Producer publishes one record to a broker topic.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// Relay publishes pending outbox rows to `<prefix>.<category>` topics and
// marks them published. Delivery is at-least-once: a crash between produce and
// mark republishes the batch, and consumers dedupe on the event ID key.
type Relay struct {
	db        *sql.DB
	producer  Producer
	prefix    string
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
	onRelay   func(n int)
}

// Option configures the Relay.
type Option func(*Relay)

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

// WithRelayHook is called with the number of rows published per batch.
func WithRelayHook(fn func(n int)) Option {
	return func(r *Relay) {
		r.onRelay = fn
	}
}

func NewRelay(db *sql.DB, producer Producer, topicPrefix string, opts ...Option) *Relay {
	r := &Relay{
		db:        db,
		producer:  producer,
		prefix:    topicPrefix,
		batchSize: 100,
		interval:  time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays batches until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for {
				n, err := r.RelayOnce(ctx)
				if err != nil {
					r.logger.WarnContext(ctx, "outbox relay failed", "error", err)
					break
				}
				if n < r.batchSize {
					break
				}
			}
		}
	}
}

type pendingRow struct {
	id       string
	category string
	payload  []byte
}

// RelayOnce publishes at most one batch and returns how many rows it marked.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin relay tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id::text, category, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("select pending outbox rows: %w", err)
	}
	var batch []pendingRow
	for rows.Next() {
		var row pendingRow
		if err := rows.Scan(&row.id, &row.category, &row.payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate outbox rows: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(batch))
	for _, row := range batch {
		topic := audit.Topic(r.prefix, audit.EventCategory(row.category))
		if err := r.producer.Produce(ctx, topic, []byte(row.id), row.payload); err != nil {
			break
		}
		ids = append(ids, row.id)
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("publish outbox batch: no rows delivered")
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE outbox SET published_at = now() WHERE id::text = ANY($1::text[])`,
		pq.Array(ids),
	); err != nil {
		return 0, fmt.Errorf("mark outbox rows published: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit relay tx: %w", err)
	}
	if r.onRelay != nil {
		r.onRelay(len(ids))
	}
	return len(ids), nil
}
