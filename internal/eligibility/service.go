// Package eligibility implements the investor registry: KYC/AML/blacklist
// flags, jurisdiction, the investor cap and foreign exchange exposure caps.
//
// addInvestor only registers metadata. A new record is ineligible until both
// SetKYCPassed and SetAMLPassed are called by an admin.
package eligibility

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

const component = "eligibility"

// Service is the eligibility registry.
type Service struct {
	store     Store
	acl       *access.Control
	limits    Limits
	logger    *slog.Logger
	publisher observability.AuditPublisher
}

// Option configures the Service.
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

func New(store Store, acl *access.Control, limits Limits, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("eligibility store is required")
	}
	if acl == nil {
		return nil, errors.New("access control is required")
	}
	s := &Service{store: store, acl: acl, limits: limits}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ACL exposes the registry's access list for role administration.
func (s *Service) ACL() *access.Control {
	return s.acl
}

// Limits returns the current caps.
func (s *Service) Limits() Limits {
	return s.limits
}

// AddInvestor registers who with all flags false.
func (s *Service) AddInvestor(ctx context.Context, caller, who domain.Address, isForeign bool, jurisdiction domain.Jurisdiction) error {
	return s.add(ctx, caller, Investor{Identity: who, Jurisdiction: jurisdiction, IsForeign: isForeign})
}

// AddSystemAccount registers a protocol-owned account outside MaxInvestors.
// Flags start false like any other record.
func (s *Service) AddSystemAccount(ctx context.Context, caller, who domain.Address, jurisdiction domain.Jurisdiction) error {
	return s.add(ctx, caller, Investor{Identity: who, Jurisdiction: jurisdiction, System: true})
}

func (s *Service) add(ctx context.Context, caller domain.Address, inv Investor) error {
	if err := s.acl.Require(domain.RoleAdmin, caller); err != nil {
		return err
	}
	if inv.Identity.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "investor identity is required")
	}
	jurisdiction, err := domain.ParseJurisdiction(string(inv.Jurisdiction))
	if err != nil {
		return err
	}
	if !inv.System && s.limits.investorCapReached(s.store.Count(ctx)) {
		return dErrors.Newf(dErrors.CodeCapacityExceeded, "investor cap of %d reached", s.limits.MaxInvestors)
	}
	inv.Jurisdiction = jurisdiction
	inv.AddedAt = requestcontext.Now(ctx)
	err = s.store.Create(ctx, inv)
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.New(dErrors.CodeConflict, "investor already registered")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to add investor")
	}
	s.logAudit(ctx, audit.EventInvestorAdded,
		"subject", inv.Identity.String(),
		"actor", caller.String(),
		"jurisdiction", string(jurisdiction),
		"is_foreign", inv.IsForeign,
		"system", inv.System,
	)
	return nil
}

// SetKYCPassed toggles the KYC flag.
func (s *Service) SetKYCPassed(ctx context.Context, caller, who domain.Address, passed bool) error {
	return s.setFlag(ctx, caller, who, audit.EventKYCUpdated, passed, func(inv *Investor) { inv.KYCPassed = passed })
}

// SetAMLPassed toggles the AML flag.
func (s *Service) SetAMLPassed(ctx context.Context, caller, who domain.Address, passed bool) error {
	return s.setFlag(ctx, caller, who, audit.EventAMLUpdated, passed, func(inv *Investor) { inv.AMLPassed = passed })
}

// SetBlacklisted toggles the blacklist flag.
func (s *Service) SetBlacklisted(ctx context.Context, caller, who domain.Address, blacklisted bool) error {
	return s.setFlag(ctx, caller, who, audit.EventBlacklistUpdated, blacklisted, func(inv *Investor) { inv.Blacklisted = blacklisted })
}

func (s *Service) setFlag(ctx context.Context, caller, who domain.Address, event audit.AuditEvent, value bool, apply func(*Investor)) error {
	if err := s.acl.Require(domain.RoleAdmin, caller); err != nil {
		return err
	}
	inv, err := s.find(ctx, who)
	if err != nil {
		return err
	}
	apply(&inv)
	if err := s.store.Update(ctx, inv); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update investor")
	}
	s.logAudit(ctx, event,
		"subject", who.String(),
		"actor", caller.String(),
		"value", value,
		"eligible", inv.Eligible(),
	)
	return nil
}

// IsEligible reports the eligibility predicate. Unknown identities are ineligible.
func (s *Service) IsEligible(ctx context.Context, who domain.Address) bool {
	inv, err := s.store.Find(ctx, who)
	return err == nil && inv.Eligible()
}

// IsForeign reports whether who is registered as a foreign investor.
func (s *Service) IsForeign(ctx context.Context, who domain.Address) bool {
	inv, err := s.store.Find(ctx, who)
	return err == nil && inv.IsForeign
}

// Investor returns the record for who.
func (s *Service) Investor(ctx context.Context, who domain.Address) (Investor, error) {
	return s.find(ctx, who)
}

// Count returns the number of registered investors.
func (s *Service) Count(ctx context.Context) int {
	return s.store.Count(ctx)
}

// TotalForeignInvested returns the aggregate foreign counter.
func (s *Service) TotalForeignInvested(ctx context.Context) domain.Amount {
	return s.store.TotalForeign(ctx)
}

// CheckAndRecordForeignInvestment validates both FX caps and records the
// amount against the investor and the aggregate in one step.
func (s *Service) CheckAndRecordForeignInvestment(ctx context.Context, caller, who domain.Address, amount domain.Amount) error {
	if err := s.acl.Require(domain.RoleRecorder, caller); err != nil {
		return err
	}
	return s.recordForeign(ctx, caller, who, amount)
}

// RecordInvestment is the unified capability: eligible domestic investors
// pass unchanged, foreign investors are checked against the FX caps.
func (s *Service) RecordInvestment(ctx context.Context, caller, who domain.Address, amount domain.Amount) error {
	if err := s.acl.Require(domain.RoleRecorder, caller); err != nil {
		return err
	}
	inv, err := s.find(ctx, who)
	if err != nil {
		return err
	}
	if !inv.Eligible() {
		return dErrors.New(dErrors.CodeIneligible, "investor is not eligible")
	}
	if inv.IsForeign {
		return s.recordForeign(ctx, caller, who, amount)
	}
	s.logAudit(ctx, audit.EventInvestmentRecorded,
		"subject", who.String(),
		"actor", caller.String(),
		"amount", amount,
	)
	return nil
}

func (s *Service) recordForeign(ctx context.Context, caller, who domain.Address, amount domain.Amount) error {
	inv, err := s.find(ctx, who)
	if err != nil {
		return err
	}
	if !inv.IsForeign {
		return dErrors.New(dErrors.CodeIneligible, "investor is not flagged foreign")
	}
	if !inv.Eligible() {
		return dErrors.New(dErrors.CodeIneligible, "investor is not eligible")
	}
	perInvestor, err := inv.CumulativeForeignInvested.Add(amount)
	if err != nil || s.limits.perInvestorExceeded(perInvestor) {
		return dErrors.New(dErrors.CodeCapacityExceeded, "per-investor FX cap exceeded")
	}
	aggregate, err := s.store.TotalForeign(ctx).Add(amount)
	if err != nil || s.limits.aggregateExceeded(aggregate) {
		return dErrors.New(dErrors.CodeCapacityExceeded, "total foreign cap exceeded")
	}

	inv.CumulativeForeignInvested = perInvestor
	if err := s.store.Update(ctx, inv); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record foreign investment")
	}
	s.store.SetTotalForeign(ctx, aggregate)

	s.logAudit(ctx, audit.EventForeignInvestmentRecorded,
		"subject", who.String(),
		"actor", caller.String(),
		"amount", amount,
		"cumulative", perInvestor,
		"aggregate", aggregate,
	)
	return nil
}

// SetLimits replaces the caps. The investor and aggregate caps may not sit
// below what is already recorded.
func (s *Service) SetLimits(ctx context.Context, caller domain.Address, limits Limits) error {
	if err := s.acl.Require(domain.RoleAdmin, caller); err != nil {
		return err
	}
	if limits.MaxInvestors != 0 && uint64(s.store.Count(ctx)) > limits.MaxInvestors {
		return dErrors.New(dErrors.CodeCapacityExceeded, "investor cap below current investor count")
	}
	if limits.aggregateExceeded(s.store.TotalForeign(ctx)) {
		return dErrors.New(dErrors.CodeCapacityExceeded, "total foreign cap below recorded investment")
	}
	tx.Assign(ctx, &s.limits, limits)
	s.logAudit(ctx, audit.EventEligibilityLimitsConfigured,
		"subject", component,
		"actor", caller.String(),
		"max_investors", limits.MaxInvestors,
		"per_investor_fx_cap", limits.PerInvestorFXCap,
		"total_foreign_cap", limits.TotalForeignCap,
	)
	return nil
}

func (s *Service) find(ctx context.Context, who domain.Address) (Investor, error) {
	inv, err := s.store.Find(ctx, who)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Investor{}, dErrors.New(dErrors.CodeIneligible, "investor not registered")
	}
	if err != nil {
		return Investor{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load investor")
	}
	return inv, nil
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, attributes ...any) {
	observability.LogAudit(ctx, s.logger, s.publisher, component, event, attributes...)
}
