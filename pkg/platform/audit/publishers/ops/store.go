// Package ops guards the audit store against floods of routine ledger
// activity. Operations events may be sampled and are dropped while the store
// is failing. Compliance and security events always reach the inner store.
package ops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	audit "unykorn/pkg/platform/audit"
)

// Store wraps an audit.Store.
type Store struct {
	inner   audit.Store
	sampler *Sampler
	breaker *CircuitBreaker
	metrics *Metrics
	logger  *slog.Logger
}

type Option func(*Store)

func WithSampler(s *Sampler) Option {
	return func(st *Store) { st.sampler = s }
}

func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(st *Store) { st.breaker = cb }
}

func WithMetrics(m *Metrics) Option {
	return func(st *Store) { st.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(st *Store) { st.logger = logger }
}

func New(inner audit.Store, opts ...Option) *Store {
	s := &Store{inner: inner, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if audit.AuditEvent(event.Action).Category() != audit.CategoryOperations {
		return s.inner.Append(ctx, event)
	}
	if s.sampler != nil && !s.sampler.Keep(event.Action) {
		if s.metrics != nil {
			s.metrics.Sampled.Inc()
		}
		return nil
	}
	if s.breaker != nil && !s.breaker.Allow() {
		if s.metrics != nil {
			s.metrics.Dropped.Inc()
		}
		return nil
	}

	if err := s.inner.Append(ctx, event); err != nil {
		if s.metrics != nil {
			s.metrics.Failures.Inc()
		}
		if s.breaker != nil && s.breaker.RecordFailure() {
			s.logger.WarnContext(ctx, "ops audit circuit open", "error", err)
			if s.metrics != nil {
				s.metrics.setCircuit(true)
			}
		}
		return fmt.Errorf("store ops audit event: %w", err)
	}
	if s.breaker != nil {
		s.breaker.RecordSuccess()
	}
	if s.metrics != nil {
		s.metrics.Stored.Inc()
		s.metrics.setCircuit(false)
	}
	return nil
}

var errNoReader = errors.New("audit store does not support queries")

func (s *Store) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	r, ok := s.inner.(audit.Reader)
	if !ok {
		return nil, errNoReader
	}
	return r.ListBySubject(ctx, subject)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	r, ok := s.inner.(audit.Reader)
	if !ok {
		return nil, errNoReader
	}
	return r.ListRecent(ctx, limit)
}
