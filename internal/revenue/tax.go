package revenue

import (
	"context"
	"errors"
	"log/slog"

	"unykorn/internal/access"
	"unykorn/internal/platform/observability"
	"unykorn/pkg/domain"
	dErrors "unykorn/pkg/domain-errors"
	"unykorn/pkg/platform/audit"
	"unykorn/pkg/platform/tx"
)

const taxComponent = "tax"

// ForeignRegistry reports whether an investor is registered as foreign.
type ForeignRegistry interface {
	IsForeign(ctx context.Context, who domain.Address) bool
}

// TaxDistributor withholds tax from investor payouts and splits the remainder
// between two pools.
type TaxDistributor struct {
	acl           *access.Control
	tokens        Tokens
	registry      ForeignRegistry
	rates         TaxRates
	dest          Destinations
	totalWithheld domain.Amount
	logger        *slog.Logger
	publisher     observability.AuditPublisher
}

type TaxOption func(*TaxDistributor)

func WithTaxLogger(logger *slog.Logger) TaxOption {
	return func(d *TaxDistributor) {
		d.logger = logger
	}
}

func WithTaxAuditPublisher(p observability.AuditPublisher) TaxOption {
	return func(d *TaxDistributor) {
		d.publisher = p
	}
}

func NewTaxDistributor(acl *access.Control, tokens Tokens, registry ForeignRegistry, rates TaxRates, dest Destinations, opts ...TaxOption) (*TaxDistributor, error) {
	if acl == nil {
		return nil, errors.New("access control is required")
	}
	if tokens == nil {
		return nil, errors.New("token ledger is required")
	}
	if registry == nil {
		return nil, errors.New("eligibility registry is required")
	}
	if dest.Authority.IsZero() || dest.PoolA.IsZero() || dest.PoolB.IsZero() {
		return nil, errors.New("tax authority and both pools are required")
	}
	if err := rates.Validate(); err != nil {
		return nil, err
	}
	d := &TaxDistributor{acl: acl, tokens: tokens, registry: registry, rates: rates, dest: dest}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *TaxDistributor) ACL() *access.Control {
	return d.acl
}

func (d *TaxDistributor) Rates() TaxRates {
	return d.rates
}

func (d *TaxDistributor) Destinations() Destinations {
	return d.dest
}

// TotalWithheld is the pre-burn amount sent to the tax authority so far.
func (d *TaxDistributor) TotalWithheld() domain.Amount {
	return d.totalWithheld
}

// Distribute pays amount out of the caller's balance: the withholding goes to
// the authority and the rest is split between the pools. Foreign investors
// pay the surcharge on top of the domestic rate.
func (d *TaxDistributor) Distribute(ctx context.Context, caller domain.Address, amount domain.Amount, investor domain.Address, jurisdiction domain.Jurisdiction) (Distribution, error) {
	if err := d.acl.Require(domain.RoleDistributor, caller); err != nil {
		return Distribution{}, err
	}
	if amount == 0 {
		return Distribution{}, dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}
	if investor.IsZero() {
		return Distribution{}, dErrors.New(dErrors.CodeInvalidInput, "investor is required")
	}
	jurisdiction, err := domain.ParseJurisdiction(string(jurisdiction))
	if err != nil {
		return Distribution{}, err
	}

	out := Distribution{
		Investor:     investor,
		Jurisdiction: jurisdiction,
		Foreign:      d.registry.IsForeign(ctx, investor),
	}
	rate := d.rates.DomesticWithholdingBps
	if out.Foreign {
		rate += d.rates.ForeignSurchargeBps
	}
	out.Withheld = amount.MulBps(rate)
	net := amount - out.Withheld
	out.PoolA = net.MulBps(d.rates.PoolABps)
	out.PoolB = net - out.PoolA
	if out.Total() != amount {
		return Distribution{}, dErrors.New(dErrors.CodeConservation, "distribution does not sum to amount")
	}
	withheld, err := d.totalWithheld.Add(out.Withheld)
	if err != nil {
		return Distribution{}, err
	}

	for _, leg := range []struct {
		to     domain.Address
		amount domain.Amount
	}{
		{d.dest.Authority, out.Withheld},
		{d.dest.PoolA, out.PoolA},
		{d.dest.PoolB, out.PoolB},
	} {
		if leg.amount == 0 {
			continue
		}
		burned, err := d.tokens.Transfer(ctx, caller, leg.to, leg.amount)
		if err != nil {
			return Distribution{}, err
		}
		out.Burned += burned
	}
	tx.Assign(ctx, &d.totalWithheld, withheld)

	observability.LogAudit(ctx, d.logger, d.publisher, taxComponent, audit.EventTaxDistributed,
		"subject", investor.String(),
		"actor", caller.String(),
		"amount", amount,
		"jurisdiction", string(jurisdiction),
		"foreign", out.Foreign,
		"withheld", out.Withheld,
		"pool_a", out.PoolA,
		"pool_b", out.PoolB,
	)
	return out, nil
}

// SetTaxRates replaces the withholding rates. The pool ratio is kept.
func (d *TaxDistributor) SetTaxRates(ctx context.Context, caller domain.Address, domestic, surcharge domain.Bps) error {
	if err := d.acl.Require(domain.RoleGovernor, caller); err != nil {
		return err
	}
	rates := d.rates
	rates.DomesticWithholdingBps = domestic
	rates.ForeignSurchargeBps = surcharge
	if err := rates.Validate(); err != nil {
		return err
	}
	tx.Assign(ctx, &d.rates, rates)
	observability.LogAudit(ctx, d.logger, d.publisher, taxComponent, audit.EventTaxRatesChanged,
		"subject", taxComponent,
		"actor", caller.String(),
		"domestic_withholding_bps", uint32(domestic),
		"foreign_surcharge_bps", uint32(surcharge),
	)
	return nil
}
