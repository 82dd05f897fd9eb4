package protocol

import (
	"context"
	"time"

	"unykorn/internal/settlement"
	"unykorn/internal/token"
	"unykorn/pkg/domain"
	"unykorn/pkg/requestcontext"
)

var _ settlement.Ledger = (*Protocol)(nil)

func (p *Protocol) Mint(ctx context.Context, caller, to domain.Address, amount domain.Amount, reference string) error {
	return p.RunInTx(ctx, "mint", func(ctx context.Context) error {
		return p.token.Mint(ctx, caller, to, amount, reference)
	})
}

func (p *Protocol) Burn(ctx context.Context, caller, from domain.Address, amount domain.Amount, reference string) error {
	return p.RunInTx(ctx, "burn", func(ctx context.Context) error {
		return p.token.Burn(ctx, caller, from, amount, reference)
	})
}

// Transfer moves amount from sender and returns the part burned in transit.
func (p *Protocol) Transfer(ctx context.Context, from, to domain.Address, amount domain.Amount) (domain.Amount, error) {
	var burned domain.Amount
	err := p.RunInTx(ctx, "transfer", func(ctx context.Context) (err error) {
		burned, err = p.token.Transfer(ctx, from, to, amount)
		return err
	})
	return burned, err
}

func (p *Protocol) SetupPackTier(ctx context.Context, caller domain.Address, tier token.PackTier) error {
	return p.RunInTx(ctx, "setup_pack_tier", func(ctx context.Context) error {
		return p.token.SetupPackTier(ctx, caller, tier)
	})
}

// BuyPack credits the tier's tokens to buyer for paid, which must equal the
// tier price.
func (p *Protocol) BuyPack(ctx context.Context, buyer domain.Address, tier domain.TierID, paid domain.Amount) error {
	return p.RunInTx(ctx, "buy_pack", func(ctx context.Context) error {
		return p.token.BuyPack(ctx, buyer, tier, paid)
	})
}

func (p *Protocol) UtilityUse(ctx context.Context, caller domain.Address, amount domain.Amount, purpose string) error {
	return p.RunInTx(ctx, "utility_use", func(ctx context.Context) error {
		return p.token.UtilityUse(ctx, caller, amount, purpose)
	})
}

func (p *Protocol) BalanceOf(ctx context.Context, who domain.Address) domain.Amount {
	return view(p, ctx, func(ctx context.Context) domain.Amount {
		return p.token.BalanceOf(ctx, who)
	})
}

func (p *Protocol) TotalSupply(ctx context.Context) domain.Amount {
	return view(p, ctx, p.token.TotalSupply)
}

func (p *Protocol) LockedUntil(ctx context.Context, who domain.Address) time.Time {
	return view(p, ctx, func(ctx context.Context) time.Time {
		return p.token.LockedUntil(ctx, who)
	})
}

func (p *Protocol) BurnRate() domain.Bps {
	return view(p, context.Background(), func(context.Context) domain.Bps {
		return p.token.BurnRate()
	})
}

func (p *Protocol) TokenPhase(ctx context.Context) token.Phase {
	return view(p, ctx, func(ctx context.Context) token.Phase {
		return p.token.Phase(requestcontext.Now(ctx))
	})
}

// MintFromSettlement applies a confirmed inbound settlement once per
// reference.
func (p *Protocol) MintFromSettlement(ctx context.Context, amount domain.Amount, beneficiary domain.Address, reference string) (settlement.Result, error) {
	return p.settlement.MintFromSettlement(ctx, amount, beneficiary, reference)
}

// RedeemToSettlement burns holder's tokens for an outbound settlement once
// per reference.
func (p *Protocol) RedeemToSettlement(ctx context.Context, amount domain.Amount, holder domain.Address, reference string) (settlement.Result, error) {
	return p.settlement.RedeemToSettlement(ctx, amount, holder, reference)
}

func (p *Protocol) PackProceeds(ctx context.Context) domain.Amount {
	return view(p, ctx, p.token.PackProceeds)
}
