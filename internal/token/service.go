// Package token implements the ledger token: a mintable, burnable balance
// ledger with a launch lock, per-account pack locks and a burn on every
// transfer.
package token

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"unykorn/internal/access"
	"unykorn/internal/platform/metrics"
	"unykorn/internal/platform/observability"
	"unykorn/pkg/domain"
	dErrors "unykorn/pkg/domain-errors"
	"unykorn/pkg/platform/audit"
	"unykorn/pkg/platform/sentinel"
	"unykorn/pkg/platform/tx"
	"unykorn/pkg/requestcontext"
)

const component = "token"

// Eligibility is the registry capability consulted by gated deployments.
type Eligibility interface {
	IsEligible(ctx context.Context, who domain.Address) bool
}

// Service is the token ledger.
type Service struct {
	store       Store
	acl         *access.Control
	eligibility Eligibility
	params      Params
	logger      *slog.Logger
	publisher   observability.AuditPublisher
	metrics     *metrics.Metrics
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

// WithEligibility installs the registry used when the deployment is gated.
func WithEligibility(e Eligibility) Option {
	return func(s *Service) {
		s.eligibility = e
	}
}

func New(store Store, acl *access.Control, params Params, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("token store is required")
	}
	if acl == nil {
		return nil, errors.New("access control is required")
	}
	if params.BurnRateBps > MaxBurnRateBps {
		return nil, errors.New("burn rate exceeds maximum")
	}
	s := &Service{store: store, acl: acl, params: params}
	for _, opt := range opts {
		opt(s)
	}
	if params.ComplianceGated && s.eligibility == nil {
		return nil, errors.New("eligibility registry is required for a gated deployment")
	}
	return s, nil
}

func (s *Service) ACL() *access.Control {
	return s.acl
}

// Phase reports the global transfer state at now.
func (s *Service) Phase(now time.Time) Phase {
	if now.Before(s.params.UnlocksAt()) {
		return PhaseLocked
	}
	return PhaseUnlocked
}

func (s *Service) BalanceOf(ctx context.Context, who domain.Address) domain.Amount {
	return s.store.Account(ctx, who).Balance
}

func (s *Service) TotalSupply(ctx context.Context) domain.Amount {
	return s.store.TotalSupply(ctx)
}

// LockedUntil returns the active lock expiry for who, or the zero time.
func (s *Service) LockedUntil(ctx context.Context, who domain.Address) time.Time {
	acct := s.store.Account(ctx, who)
	if !acct.LockedAt(requestcontext.Now(ctx)) {
		return time.Time{}
	}
	return acct.LockedUntil
}

func (s *Service) BurnRate() domain.Bps {
	return s.params.BurnRateBps
}

// PackProceeds is the total payment collected from pack sales.
func (s *Service) PackProceeds(ctx context.Context) domain.Amount {
	return s.store.PackProceeds(ctx)
}

func (s *Service) Tier(ctx context.Context, id domain.TierID) (PackTier, error) {
	tier, err := s.store.Tier(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return PackTier{}, dErrors.Newf(dErrors.CodeNotFound, "pack tier %s not found", id)
	}
	return tier, err
}

// Mint credits to and grows the supply. Per-account locks do not apply.
func (s *Service) Mint(ctx context.Context, caller, to domain.Address, amount domain.Amount, reference string) error {
	if err := s.acl.Require(domain.RoleMinter, caller); err != nil {
		return err
	}
	if to.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "cannot mint to the zero address")
	}
	if amount == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "mint amount must be positive")
	}
	if err := s.requireEligible(ctx, to); err != nil {
		return err
	}
	if err := s.credit(ctx, to, amount); err != nil {
		return err
	}
	s.logAudit(ctx, audit.EventTokensMinted,
		"subject", to.String(),
		"actor", caller.String(),
		"amount", amount,
		"reference", reference,
	)
	return nil
}

// Burn destroys amount from an unlocked account.
func (s *Service) Burn(ctx context.Context, caller, from domain.Address, amount domain.Amount, reference string) error {
	if err := s.acl.Require(domain.RoleBurner, caller); err != nil {
		return err
	}
	if amount == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "burn amount must be positive")
	}
	if err := s.destroy(ctx, from, amount); err != nil {
		return err
	}
	s.logAudit(ctx, audit.EventTokensBurned,
		"subject", from.String(),
		"actor", caller.String(),
		"amount", amount,
		"reference", reference,
	)
	return nil
}

// Transfer moves amount from the caller to to, burning burnRateBps of it. The
// recipient receives amount minus the returned burn.
func (s *Service) Transfer(ctx context.Context, from, to domain.Address, amount domain.Amount) (domain.Amount, error) {
	now := requestcontext.Now(ctx)
	if s.Phase(now) == PhaseLocked {
		return 0, dErrors.Newf(dErrors.CodeInvalidState, "transfers are locked until %s", s.params.UnlocksAt().Format(time.RFC3339))
	}
	if to.IsZero() {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "cannot transfer to the zero address")
	}
	if err := s.requireEligible(ctx, from); err != nil {
		return 0, err
	}
	if err := s.requireEligible(ctx, to); err != nil {
		return 0, err
	}
	sender, err := s.unlockedAccount(ctx, from)
	if err != nil {
		return 0, err
	}
	if sender.Balance < amount {
		return 0, dErrors.Newf(dErrors.CodeInsufficientFunds, "balance %s below transfer amount %s", sender.Balance, amount)
	}

	burn := amount.MulBps(s.params.BurnRateBps)
	sender.Balance -= amount
	s.store.PutAccount(ctx, sender)

	recipient := s.store.Account(ctx, to)
	recipient.Balance += amount - burn
	s.store.PutAccount(ctx, recipient)
	if burn > 0 {
		s.store.SetTotalSupply(ctx, s.store.TotalSupply(ctx)-burn)
	}
	s.afterSupplyChange(ctx, burn)

	s.logAudit(ctx, audit.EventTokensTransferred,
		"subject", from.String(),
		"recipient", to.String(),
		"amount", amount,
		"burned", burn,
	)
	return burn, nil
}

// SetupPackTier adds or replaces a pack tier.
func (s *Service) SetupPackTier(ctx context.Context, caller domain.Address, tier PackTier) error {
	if err := s.acl.Require(domain.RoleAdmin, caller); err != nil {
		return err
	}
	if tier.ID == 0 || tier.Tokens == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "pack tier needs an id and a token amount")
	}
	if tier.LockDuration < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "pack lock duration cannot be negative")
	}
	s.store.PutTier(ctx, tier)
	s.logAudit(ctx, audit.EventPackTierConfigured,
		"subject", tier.ID.String(),
		"actor", caller.String(),
		"price", tier.Price,
		"tokens", tier.Tokens,
		"lock_duration", tier.LockDuration.String(),
		"active", tier.Active,
	)
	return nil
}

// BuyPack sells one pack to buyer for exactly the tier price and locks the
// buyer's account for the tier's lock duration.
func (s *Service) BuyPack(ctx context.Context, buyer domain.Address, id domain.TierID, paid domain.Amount) error {
	tier, err := s.Tier(ctx, id)
	if err != nil {
		return err
	}
	if !tier.Active {
		return dErrors.Newf(dErrors.CodeInvalidState, "pack tier %s is not on sale", id)
	}
	if paid != tier.Price {
		return dErrors.Newf(dErrors.CodeInvalidInput, "pack tier %s costs %s, paid %s", id, tier.Price, paid)
	}
	if buyer.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "buyer is required")
	}
	if err := s.requireEligible(ctx, buyer); err != nil {
		return err
	}
	proceeds, err := s.store.PackProceeds(ctx).Add(paid)
	if err != nil {
		return err
	}
	if err := s.credit(ctx, buyer, tier.Tokens); err != nil {
		return err
	}

	acct := s.store.Account(ctx, buyer)
	until := requestcontext.Now(ctx).Add(tier.LockDuration)
	if until.After(acct.LockedUntil) {
		acct.LockedUntil = until
		s.store.PutAccount(ctx, acct)
	}
	s.store.SetPackProceeds(ctx, proceeds)

	s.logAudit(ctx, audit.EventPackPurchased,
		"subject", buyer.String(),
		"tier", id.String(),
		"amount", tier.Tokens,
		"paid", paid,
		"locked_until", acct.LockedUntil.Format(time.RFC3339),
	)
	return nil
}

// UtilityUse burns the full amount from the caller and records purpose.
func (s *Service) UtilityUse(ctx context.Context, caller domain.Address, amount domain.Amount, purpose string) error {
	if purpose == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "purpose tag is required")
	}
	if amount == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "utility amount must be positive")
	}
	if err := s.destroy(ctx, caller, amount); err != nil {
		return err
	}
	s.logAudit(ctx, audit.EventUtilityUsed,
		"subject", caller.String(),
		"amount", amount,
		"reason", purpose,
	)
	return nil
}

// SetBurnRate changes the transfer burn rate.
func (s *Service) SetBurnRate(ctx context.Context, caller domain.Address, bps domain.Bps) error {
	if err := s.acl.Require(domain.RoleGovernor, caller); err != nil {
		return err
	}
	if bps > MaxBurnRateBps {
		return dErrors.Newf(dErrors.CodeInvalidInput, "burn rate %s exceeds maximum %s", bps, MaxBurnRateBps)
	}
	previous := s.params.BurnRateBps
	tx.Assign(ctx, &s.params.BurnRateBps, bps)
	s.logAudit(ctx, audit.EventBurnRateChanged,
		"subject", component,
		"actor", caller.String(),
		"previous_bps", uint32(previous),
		"burn_rate_bps", uint32(bps),
	)
	return nil
}

func (s *Service) requireEligible(ctx context.Context, who domain.Address) error {
	if !s.params.ComplianceGated {
		return nil
	}
	if !s.eligibility.IsEligible(ctx, who) {
		return dErrors.Newf(dErrors.CodeIneligible, "%s is not eligible", who.Short())
	}
	return nil
}

// unlockedAccount loads who and fails while its lock is active. An expired
// lock is cleared on first observation.
func (s *Service) unlockedAccount(ctx context.Context, who domain.Address) (Account, error) {
	now := requestcontext.Now(ctx)
	acct := s.store.Account(ctx, who)
	if acct.LockedAt(now) {
		return Account{}, dErrors.Newf(dErrors.CodeInvalidState, "account locked until %s", acct.LockedUntil.Format(time.RFC3339))
	}
	if !acct.LockedUntil.IsZero() {
		acct.LockedUntil = time.Time{}
		s.store.PutAccount(ctx, acct)
		s.logAudit(ctx, audit.EventAccountUnlocked, "subject", who.String())
	}
	return acct, nil
}

func (s *Service) credit(ctx context.Context, to domain.Address, amount domain.Amount) error {
	supply, err := s.store.TotalSupply(ctx).Add(amount)
	if err != nil {
		return err
	}
	acct := s.store.Account(ctx, to)
	acct.Balance += amount
	s.store.PutAccount(ctx, acct)
	s.store.SetTotalSupply(ctx, supply)
	s.afterSupplyChange(ctx, 0)
	return nil
}

func (s *Service) destroy(ctx context.Context, from domain.Address, amount domain.Amount) error {
	acct, err := s.unlockedAccount(ctx, from)
	if err != nil {
		return err
	}
	balance, err := acct.Balance.Sub(amount)
	if err != nil {
		return err
	}
	acct.Balance = balance
	s.store.PutAccount(ctx, acct)
	s.store.SetTotalSupply(ctx, s.store.TotalSupply(ctx)-amount)
	s.afterSupplyChange(ctx, amount)
	return nil
}

func (s *Service) afterSupplyChange(ctx context.Context, burned domain.Amount) {
	if s.metrics == nil {
		return
	}
	tx.AfterCommit(ctx, func(ctx context.Context) {
		s.metrics.SetTotalSupply(uint64(s.store.TotalSupply(ctx)))
		s.metrics.AddBurned(uint64(burned))
	})
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, attributes ...any) {
	observability.LogAudit(ctx, s.logger, s.publisher, component, event, attributes...)
}
