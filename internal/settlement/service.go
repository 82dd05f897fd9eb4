// Package settlement is the entry point for off-ledger settlement rails. It
// turns confirmed fiat or CBDC settlements into mints and redemptions, applying
// each settlement reference at most once.
package settlement

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"unykorn/internal/platform/metrics"
	"unykorn/internal/platform/observability"
	"unykorn/pkg/domain"
	dErrors "unykorn/pkg/domain-errors"
	"unykorn/pkg/platform/audit"
)

const component = "settlement"

// Ledger applies supply changes. The adapter calls it with its own identity,
// which must hold the minter and burner roles on the token.
type Ledger interface {
	Mint(ctx context.Context, caller, to domain.Address, amount domain.Amount, reference string) error
	Burn(ctx context.Context, caller, from domain.Address, amount domain.Amount, reference string) error
}

// Result reports the outcome of one settlement instruction.
type Result struct {
	Reference string
	Key       string
	// Duplicate is set when the reference was already applied; nothing changed.
	Duplicate bool
}

type Service struct {
	ledger    Ledger
	refs      ReferenceStore
	self      domain.Address
	logger    *slog.Logger
	publisher observability.AuditPublisher
	metrics   *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(p observability.AuditPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithReferenceStore replaces the in-memory reference store.
func WithReferenceStore(refs ReferenceStore) Option {
	return func(s *Service) {
		if refs != nil {
			s.refs = refs
		}
	}
}

func New(ledger Ledger, self domain.Address, opts ...Option) (*Service, error) {
	if ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if self.IsZero() {
		return nil, errors.New("settlement identity is required")
	}
	s := &Service{
		ledger: ledger,
		refs:   NewInMemoryReferenceStore(),
		self:   self,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Identity is the address the adapter presents to the ledger.
func (s *Service) Identity() domain.Address {
	return s.self
}

// MintFromSettlement credits beneficiary once per reference.
func (s *Service) MintFromSettlement(ctx context.Context, amount domain.Amount, beneficiary domain.Address, reference string) (Result, error) {
	return s.apply(ctx, audit.EventSettlementMinted, beneficiary, amount, reference, func() error {
		return s.ledger.Mint(ctx, s.self, beneficiary, amount, reference)
	})
}

// RedeemToSettlement burns holder's tokens once per reference.
func (s *Service) RedeemToSettlement(ctx context.Context, amount domain.Amount, holder domain.Address, reference string) (Result, error) {
	return s.apply(ctx, audit.EventSettlementRedeemed, holder, amount, reference, func() error {
		return s.ledger.Burn(ctx, s.self, holder, amount, reference)
	})
}

func (s *Service) apply(ctx context.Context, event audit.AuditEvent, account domain.Address, amount domain.Amount, reference string, change func() error) (Result, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return Result{}, dErrors.New(dErrors.CodeInvalidInput, "settlement reference is required")
	}
	if account.IsZero() {
		return Result{}, dErrors.New(dErrors.CodeInvalidInput, "settlement account is required")
	}
	if amount == 0 {
		return Result{}, dErrors.New(dErrors.CodeInvalidInput, "settlement amount must be positive")
	}
	res := Result{Reference: reference, Key: ReferenceKey(reference)}

	claimed, err := s.refs.Claim(ctx, res.Key)
	if err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to claim settlement reference")
	}
	if !claimed {
		res.Duplicate = true
		if s.metrics != nil {
			s.metrics.IncSettlementDuplicates()
		}
		s.logAudit(ctx, audit.EventSettlementDuplicate,
			"subject", account.String(),
			"reference", reference,
			"amount", amount,
			"operation", string(event),
		)
		return res, nil
	}

	if err := change(); err != nil {
		if relErr := s.refs.Release(ctx, res.Key); relErr != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to release settlement reference",
				"reference", reference,
				"error", relErr,
			)
		}
		return Result{}, err
	}
	s.logAudit(ctx, event,
		"subject", account.String(),
		"actor", s.self.String(),
		"amount", amount,
		"reference", reference,
	)
	return res, nil
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, attributes ...any) {
	observability.LogAudit(ctx, s.logger, s.publisher, component, event, attributes...)
}
