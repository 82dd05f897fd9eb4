package governance

import (
	"context"

	"unykorn/internal/revenue"
	"unykorn/pkg/domain"
	dErrors "unykorn/pkg/domain-errors"
)

// The setters governance is authorized to call. Each is invoked with the
// controller's own identity, which must hold the governor role on the target.
type (
	BurnRateSetter interface {
		SetBurnRate(ctx context.Context, caller domain.Address, bps domain.Bps) error
	}
	AllocationSetter interface {
		SetAllocation(ctx context.Context, caller domain.Address, split revenue.Split) error
	}
	CommissionSetter interface {
		SetCommission(ctx context.Context, caller domain.Address, bps domain.Bps) error
	}
	TaxRateSetter interface {
		SetTaxRates(ctx context.Context, caller domain.Address, domestic, surcharge domain.Bps) error
	}
	RewardSetter interface {
		SetDefaultReward(ctx context.Context, caller domain.Address, reward domain.Amount) error
	}
)

// Targets are the components proposals can reconfigure. A nil target makes
// its kind unavailable.
type Targets struct {
	Token        BurnRateSetter
	Revenue      AllocationSetter
	Introduction CommissionSetter
	Tax          TaxRateSetter
	Presence     RewardSetter
}

func (t Targets) supports(kind Kind) bool {
	switch kind {
	case KindBurnRateChange:
		return t.Token != nil
	case KindAllocationChange:
		return t.Revenue != nil
	case KindCommissionChange:
		return t.Introduction != nil
	case KindTaxRateChange:
		return t.Tax != nil
	case KindBeaconRewardChange:
		return t.Presence != nil
	}
	return false
}

func (t Targets) apply(ctx context.Context, caller domain.Address, payload Payload) error {
	switch p := payload.(type) {
	case BurnRateChange:
		return t.Token.SetBurnRate(ctx, caller, p.BurnRateBps)
	case AllocationChange:
		return t.Revenue.SetAllocation(ctx, caller, revenue.Split{
			MerchantBps: p.MerchantBps,
			PlatformBps: p.PlatformBps,
			ReferrerBps: p.ReferrerBps,
		})
	case CommissionChange:
		return t.Introduction.SetCommission(ctx, caller, p.CommissionBps)
	case TaxRateChange:
		return t.Tax.SetTaxRates(ctx, caller, p.DomesticWithholdingBps, p.ForeignSurchargeBps)
	case BeaconRewardChange:
		return t.Presence.SetDefaultReward(ctx, caller, p.Reward)
	}
	return dErrors.Newf(dErrors.CodeInvalidInput, "unsupported payload %T", payload)
}
