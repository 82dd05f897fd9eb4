package governance

import (
	"bytes"
	"encoding/json"

	"unykorn/internal/token"
	"unykorn/pkg/domain"
	dErrors "unykorn/pkg/domain-errors"
)

// Kind selects the payload schema and the component a proposal reconfigures.
type Kind string

const (
	KindBurnRateChange     Kind = "burn_rate_change"
	KindAllocationChange   Kind = "allocation_change"
	KindCommissionChange   Kind = "commission_change"
	KindTaxRateChange      Kind = "tax_rate_change"
	KindBeaconRewardChange Kind = "beacon_reward_change"
)

// Payload is the typed effect of a proposal.
type Payload interface {
	Kind() Kind
	Validate() error
}

type BurnRateChange struct {
	BurnRateBps domain.Bps `json:"burn_rate_bps"`
}

func (BurnRateChange) Kind() Kind { return KindBurnRateChange }

func (p BurnRateChange) Validate() error {
	if p.BurnRateBps > token.MaxBurnRateBps {
		return dErrors.Newf(dErrors.CodeInvalidInput, "burn rate %s exceeds maximum %s", p.BurnRateBps, token.MaxBurnRateBps)
	}
	return nil
}

type AllocationChange struct {
	MerchantBps domain.Bps `json:"merchant_bps"`
	PlatformBps domain.Bps `json:"platform_bps"`
	ReferrerBps domain.Bps `json:"referrer_bps"`
}

func (AllocationChange) Kind() Kind { return KindAllocationChange }

func (p AllocationChange) Validate() error {
	if uint64(p.MerchantBps)+uint64(p.PlatformBps)+uint64(p.ReferrerBps) != uint64(domain.BpsDenominator) {
		return dErrors.New(dErrors.CodeConservation, "allocation must sum to 10000 bps")
	}
	return nil
}

type CommissionChange struct {
	CommissionBps domain.Bps `json:"commission_bps"`
}

func (CommissionChange) Kind() Kind { return KindCommissionChange }

func (p CommissionChange) Validate() error {
	if !p.CommissionBps.Valid() {
		return dErrors.New(dErrors.CodeInvalidInput, "commission exceeds 10000 bps")
	}
	return nil
}

type TaxRateChange struct {
	DomesticWithholdingBps domain.Bps `json:"domestic_withholding_bps"`
	ForeignSurchargeBps    domain.Bps `json:"foreign_surcharge_bps"`
}

func (TaxRateChange) Kind() Kind { return KindTaxRateChange }

func (p TaxRateChange) Validate() error {
	if uint64(p.DomesticWithholdingBps)+uint64(p.ForeignSurchargeBps) > uint64(domain.BpsDenominator) {
		return dErrors.New(dErrors.CodeConservation, "withholding exceeds 10000 bps")
	}
	return nil
}

type BeaconRewardChange struct {
	Reward domain.Amount `json:"reward"`
}

func (BeaconRewardChange) Kind() Kind { return KindBeaconRewardChange }

func (BeaconRewardChange) Validate() error { return nil }

// DecodePayload parses a JSON payload for kind. Unknown kinds and unknown
// fields are rejected.
func DecodePayload(kind Kind, raw []byte) (Payload, error) {
	var p Payload
	switch kind {
	case KindBurnRateChange:
		p = &BurnRateChange{}
	case KindAllocationChange:
		p = &AllocationChange{}
	case KindCommissionChange:
		p = &CommissionChange{}
	case KindTaxRateChange:
		p = &TaxRateChange{}
	case KindBeaconRewardChange:
		p = &BeaconRewardChange{}
	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown proposal kind %q", kind)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid proposal payload")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return deref(p), nil
}

// deref turns pointer payloads into values. A nil pointer yields nil.
func deref(p Payload) Payload {
	switch v := p.(type) {
	case *BurnRateChange:
		if v == nil {
			return nil
		}
		return *v
	case *AllocationChange:
		if v == nil {
			return nil
		}
		return *v
	case *CommissionChange:
		if v == nil {
			return nil
		}
		return *v
	case *TaxRateChange:
		if v == nil {
			return nil
		}
		return *v
	case *BeaconRewardChange:
		if v == nil {
			return nil
		}
		return *v
	}
	return p
}
