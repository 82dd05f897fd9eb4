package protocol

import (
	"context"

	"unykorn/internal/introduction"
	"unykorn/internal/revenue"
	"unykorn/pkg/domain"
)

func (p *Protocol) CreateIntroduction(ctx context.Context, introducer, a, b domain.Address) (domain.IntroductionID, error) {
	var id domain.IntroductionID
	err := p.RunInTx(ctx, "create_introduction", func(ctx context.Context) (err error) {
		id, err = p.introductions.CreateIntroduction(ctx, introducer, a, b)
		return err
	})
	return id, err
}

func (p *Protocol) ConfirmIntroduction(ctx context.Context, caller domain.Address, id domain.IntroductionID) error {
	return p.RunInTx(ctx, "confirm_introduction", func(ctx context.Context) error {
		return p.introductions.ConfirmIntroduction(ctx, caller, id)
	})
}

// RecordIntroducedTransaction books volume between an introduced pair and
// pays the introducer's commission from the treasury.
func (p *Protocol) RecordIntroducedTransaction(ctx context.Context, caller, a, b domain.Address, amount domain.Amount) (introduction.Payout, error) {
	var payout introduction.Payout
	err := p.RunInTx(ctx, "record_introduced_transaction", func(ctx context.Context) (err error) {
		payout, err = p.introductions.RecordTransaction(ctx, caller, a, b, amount)
		return err
	})
	return payout, err
}

func (p *Protocol) AreConnected(ctx context.Context, a, b domain.Address) bool {
	return view(p, ctx, func(ctx context.Context) bool {
		return p.introductions.AreConnected(ctx, a, b)
	})
}

func (p *Protocol) IntroducerOf(ctx context.Context, a, b domain.Address) (domain.Address, bool) {
	type found struct {
		who domain.Address
		ok  bool
	}
	f := view(p, ctx, func(ctx context.Context) found {
		who, ok := p.introductions.IntroducerOf(ctx, a, b)
		return found{who, ok}
	})
	return f.who, f.ok
}

func (p *Protocol) IntroductionsBy(ctx context.Context, introducer domain.Address) []introduction.Introduction {
	return view(p, ctx, func(ctx context.Context) []introduction.Introduction {
		return p.introductions.IntroductionsBy(ctx, introducer)
	})
}

func (p *Protocol) CreateOffer(ctx context.Context, merchant domain.Address, title, description string, price domain.Amount) (domain.OfferID, error) {
	var id domain.OfferID
	err := p.RunInTx(ctx, "create_offer", func(ctx context.Context) (err error) {
		id, err = p.revenue.CreateOffer(ctx, merchant, title, description, price)
		return err
	})
	return id, err
}

func (p *Protocol) DeactivateOffer(ctx context.Context, caller domain.Address, id domain.OfferID) error {
	return p.RunInTx(ctx, "deactivate_offer", func(ctx context.Context) error {
		return p.revenue.DeactivateOffer(ctx, caller, id)
	})
}

// Purchase buys an offer, splitting the price between merchant, platform and
// the buyer's first-touch referrer.
func (p *Protocol) Purchase(ctx context.Context, buyer domain.Address, id domain.OfferID, referrer domain.Address) (revenue.Receipt, error) {
	var receipt revenue.Receipt
	err := p.RunInTx(ctx, "purchase", func(ctx context.Context) (err error) {
		receipt, err = p.revenue.Purchase(ctx, buyer, id, referrer)
		return err
	})
	return receipt, err
}

// ReferrerOf returns the first-touch referrer recorded for buyer.
func (p *Protocol) ReferrerOf(ctx context.Context, buyer domain.Address) (domain.Address, bool) {
	type found struct {
		who domain.Address
		ok  bool
	}
	f := view(p, ctx, func(ctx context.Context) found {
		who, ok := p.revenue.ReferrerOf(ctx, buyer)
		return found{who, ok}
	})
	return f.who, f.ok
}

func (p *Protocol) Offer(ctx context.Context, id domain.OfferID) (revenue.Offer, error) {
	return lookup(p, ctx, func(ctx context.Context) (revenue.Offer, error) {
		return p.revenue.Offer(ctx, id)
	})
}

// DistributeTax withholds tax on amount paid by caller on behalf of investor
// and splits the net between the two pools.
func (p *Protocol) DistributeTax(ctx context.Context, caller domain.Address, amount domain.Amount, investor domain.Address, jurisdiction domain.Jurisdiction) (revenue.Distribution, error) {
	var out revenue.Distribution
	err := p.RunInTx(ctx, "distribute_tax", func(ctx context.Context) (err error) {
		out, err = p.tax.Distribute(ctx, caller, amount, investor, jurisdiction)
		return err
	})
	return out, err
}

func (p *Protocol) TaxRates() revenue.TaxRates {
	return view(p, context.Background(), func(context.Context) revenue.TaxRates {
		return p.tax.Rates()
	})
}

func (p *Protocol) Allocation() revenue.Split {
	return view(p, context.Background(), func(context.Context) revenue.Split {
		return p.revenue.Allocation()
	})
}

func (p *Protocol) Commission() domain.Bps {
	return view(p, context.Background(), func(context.Context) domain.Bps {
		return p.introductions.Commission()
	})
}
