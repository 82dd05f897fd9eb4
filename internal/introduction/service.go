// Package introduction pays commissions to whoever introduced two parties
// that later transact with each other.
package introduction

import (
	"context"
	"errors"
	"log/slog"

	"unykorn/internal/access"
	"unykorn/internal/platform/observability"
	"unykorn/pkg/domain"
	dErrors "unykorn/pkg/domain-errors"
	"unykorn/pkg/platform/audit"
	"unykorn/pkg/platform/sentinel"
	"unykorn/pkg/platform/tx"
	"unykorn/pkg/requestcontext"
)

const component = "introduction"

// Transferer moves tokens with the ledger's transfer burn applied.
type Transferer interface {
	Transfer(ctx context.Context, from, to domain.Address, amount domain.Amount) (domain.Amount, error)
}

// Service is the introduction registry. Commissions are paid out of Treasury,
// which must hold a token balance.
type Service struct {
	store      Store
	acl        *access.Control
	tokens     Transferer
	treasury   domain.Address
	commission domain.Bps
	logger     *slog.Logger
	publisher  observability.AuditPublisher
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

func New(store Store, acl *access.Control, tokens Transferer, treasury domain.Address, commission domain.Bps, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("introduction store is required")
	}
	if acl == nil {
		return nil, errors.New("access control is required")
	}
	if tokens == nil {
		return nil, errors.New("token ledger is required")
	}
	if treasury.IsZero() {
		return nil, errors.New("treasury address is required")
	}
	if !commission.Valid() {
		return nil, errors.New("commission exceeds 10000 bps")
	}
	s := &Service{store: store, acl: acl, tokens: tokens, treasury: treasury, commission: commission}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) ACL() *access.Control {
	return s.acl
}

func (s *Service) Treasury() domain.Address {
	return s.treasury
}

func (s *Service) Commission() domain.Bps {
	return s.commission
}

// CreateIntroduction records introducer as the unique introducer of a and b.
func (s *Service) CreateIntroduction(ctx context.Context, introducer, a, b domain.Address) (domain.IntroductionID, error) {
	if introducer.IsZero() || a.IsZero() || b.IsZero() {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "introducer and both parties are required")
	}
	if a == b {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "cannot introduce an identity to itself")
	}
	if introducer == a || introducer == b {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "introducer cannot be one of the parties")
	}
	if _, err := s.store.FindByPair(ctx, PairOf(a, b)); err == nil {
		return 0, dErrors.New(dErrors.CodeConflict, "pair already has an introducer")
	}

	intro := Introduction{
		ID:         s.store.NextID(ctx),
		Introducer: introducer,
		A:          a,
		B:          b,
		CreatedAt:  requestcontext.Now(ctx),
	}
	if err := s.store.Create(ctx, intro); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return 0, dErrors.New(dErrors.CodeConflict, "pair already has an introducer")
		}
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create introduction")
	}
	s.logAudit(ctx, audit.EventIntroductionCreated,
		"subject", introducer.String(),
		"introduction_id", intro.ID.String(),
		"party_a", a.String(),
		"party_b", b.String(),
	)
	return intro.ID, nil
}

// ConfirmIntroduction acknowledges an introduction. Either party may confirm.
func (s *Service) ConfirmIntroduction(ctx context.Context, caller domain.Address, id domain.IntroductionID) error {
	intro, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if !intro.Involves(caller) {
		return dErrors.New(dErrors.CodeForbidden, "only an introduced party can confirm")
	}
	if intro.Confirmed {
		return dErrors.New(dErrors.CodeInvalidState, "introduction already confirmed")
	}
	intro.Confirmed = true
	intro.ConfirmedBy = caller
	intro.ConfirmedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, intro); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to confirm introduction")
	}
	s.logAudit(ctx, audit.EventIntroductionConfirmed,
		"subject", intro.Introducer.String(),
		"actor", caller.String(),
		"introduction_id", id.String(),
	)
	return nil
}

// RecordTransaction pays the confirmed introducer of a and b their commission
// on amount. The payment is a normal transfer from the treasury, so the
// introducer receives the commission less the transfer burn. Callable by
// either party or a recorder.
func (s *Service) RecordTransaction(ctx context.Context, caller, a, b domain.Address, amount domain.Amount) (Payout, error) {
	intro, err := s.store.FindByPair(ctx, PairOf(a, b))
	if errors.Is(err, sentinel.ErrNotFound) {
		return Payout{}, dErrors.New(dErrors.CodeNotFound, "pair has no introduction")
	}
	if err != nil {
		return Payout{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load introduction")
	}
	if !intro.Involves(caller) && !s.acl.Has(domain.RoleRecorder, caller) {
		return Payout{}, dErrors.New(dErrors.CodeForbidden, "caller cannot record transactions for this pair")
	}
	if !intro.Confirmed {
		return Payout{}, dErrors.New(dErrors.CodeInvalidState, "introduction is not confirmed")
	}
	volume, err := intro.Volume.Add(amount)
	if err != nil {
		return Payout{}, err
	}

	payout := Payout{Introducer: intro.Introducer, Commission: amount.MulBps(s.commission)}
	if payout.Commission > 0 {
		payout.Burned, err = s.tokens.Transfer(ctx, s.treasury, intro.Introducer, payout.Commission)
		if err != nil {
			return Payout{}, err
		}
	}
	intro.Volume = volume
	intro.Commission += payout.Commission
	if err := s.store.Update(ctx, intro); err != nil {
		return Payout{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record transaction")
	}
	s.logAudit(ctx, audit.EventCommissionPaid,
		"subject", intro.Introducer.String(),
		"actor", caller.String(),
		"amount", payout.Commission,
		"introduction_id", intro.ID.String(),
		"volume", amount,
		"burned", payout.Burned,
	)
	return payout, nil
}

// IntroducerOf returns the introducer of a and b, if any.
func (s *Service) IntroducerOf(ctx context.Context, a, b domain.Address) (domain.Address, bool) {
	intro, err := s.store.FindByPair(ctx, PairOf(a, b))
	if err != nil {
		return domain.Address{}, false
	}
	return intro.Introducer, true
}

// AreConnected reports whether a and b have been introduced.
func (s *Service) AreConnected(ctx context.Context, a, b domain.Address) bool {
	_, ok := s.IntroducerOf(ctx, a, b)
	return ok
}

// IntroductionsBy lists introductions made by introducer in creation order.
func (s *Service) IntroductionsBy(ctx context.Context, introducer domain.Address) []Introduction {
	return s.store.ListByIntroducer(ctx, introducer)
}

func (s *Service) Introduction(ctx context.Context, id domain.IntroductionID) (Introduction, error) {
	return s.find(ctx, id)
}

// SetCommission changes the commission rate.
func (s *Service) SetCommission(ctx context.Context, caller domain.Address, bps domain.Bps) error {
	if err := s.acl.Require(domain.RoleGovernor, caller); err != nil {
		return err
	}
	if !bps.Valid() {
		return dErrors.New(dErrors.CodeInvalidInput, "commission exceeds 10000 bps")
	}
	tx.Assign(ctx, &s.commission, bps)
	s.logAudit(ctx, audit.EventCommissionChanged,
		"subject", component,
		"actor", caller.String(),
		"commission_bps", uint32(bps),
	)
	return nil
}

func (s *Service) find(ctx context.Context, id domain.IntroductionID) (Introduction, error) {
	intro, err := s.store.Find(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Introduction{}, dErrors.Newf(dErrors.CodeNotFound, "introduction %s not found", id)
	}
	if err != nil {
		return Introduction{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load introduction")
	}
	return intro, nil
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, attributes ...any) {
	observability.LogAudit(ctx, s.logger, s.publisher, component, event, attributes...)
}
