package revenue

import (
	"time"

	"unykorn/pkg/domain"
	dErrors "unykorn/pkg/domain-errors"
)

// Offer is a merchant's listing. Offers are deactivated, never removed.
type Offer struct {
	ID          domain.OfferID
	Merchant    domain.Address
	Title       string
	Description string
	Price       domain.Amount
	Active      bool
	TotalSales  uint64
	CreatedAt   time.Time
}

// Split allocates a purchase price between merchant, platform and referrer.
type Split struct {
	MerchantBps domain.Bps `json:"merchant_bps"`
	PlatformBps domain.Bps `json:"platform_bps"`
	ReferrerBps domain.Bps `json:"referrer_bps"`
}

// Validate fails CodeConservation unless the three legs sum to 10000 bps.
func (s Split) Validate() error {
	if uint64(s.MerchantBps)+uint64(s.PlatformBps)+uint64(s.ReferrerBps) != uint64(domain.BpsDenominator) {
		return dErrors.Newf(dErrors.CodeConservation, "split %d/%d/%d does not sum to 10000 bps",
			s.MerchantBps, s.PlatformBps, s.ReferrerBps)
	}
	return nil
}

// Shares applies the split to price. The platform leg takes the rounding
// remainder, so the shares always sum to price. Without a referrer the
// referrer leg goes to the platform.
func (s Split) Shares(price domain.Amount, hasReferrer bool) (merchant, platform, referrer domain.Amount) {
	merchant = price.MulBps(s.MerchantBps)
	if hasReferrer {
		referrer = price.MulBps(s.ReferrerBps)
	}
	platform = price - merchant - referrer
	return merchant, platform, referrer
}

// Receipt describes one completed purchase. Shares are pre-burn; Burned is the
// total destroyed across the transfer legs.
type Receipt struct {
	Buyer         domain.Address
	OfferID       domain.OfferID
	Referrer      domain.Address
	MerchantShare domain.Amount
	PlatformShare domain.Amount
	ReferrerShare domain.Amount
	Burned        domain.Amount
}

// Total is the pre-burn sum of the shares.
func (r Receipt) Total() domain.Amount {
	return r.MerchantShare + r.PlatformShare + r.ReferrerShare
}

// TaxRates configures the withholding distributor.
type TaxRates struct {
	DomesticWithholdingBps domain.Bps `json:"domestic_withholding_bps"`
	ForeignSurchargeBps    domain.Bps `json:"foreign_surcharge_bps"`
	// PoolABps is pool A's share of the amount left after withholding.
	PoolABps domain.Bps `json:"pool_a_bps"`
}

// Validate fails CodeConservation when withholding could exceed the amount.
func (r TaxRates) Validate() error {
	if uint64(r.DomesticWithholdingBps)+uint64(r.ForeignSurchargeBps) > uint64(domain.BpsDenominator) {
		return dErrors.New(dErrors.CodeConservation, "withholding exceeds 10000 bps")
	}
	if !r.PoolABps.Valid() {
		return dErrors.New(dErrors.CodeConservation, "pool ratio exceeds 10000 bps")
	}
	return nil
}

// Destinations are the fixed recipients of a tax distribution.
type Destinations struct {
	Authority domain.Address
	PoolA     domain.Address
	PoolB     domain.Address
}

// Distribution is the pre-burn breakdown of one taxed amount.
type Distribution struct {
	Investor     domain.Address
	Jurisdiction domain.Jurisdiction
	Foreign      bool
	Withheld     domain.Amount
	PoolA        domain.Amount
	PoolB        domain.Amount
	Burned       domain.Amount
}

func (d Distribution) Total() domain.Amount {
	return d.Withheld + d.PoolA + d.PoolB
}
