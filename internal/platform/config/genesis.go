package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"unykorn/pkg/domain"
	dErrors "unykorn/pkg/domain-errors"
)

const day = 24 * time.Hour

// Genesis holds the protocol parameters a deployment starts with.
type Genesis struct {
	Admin           domain.Address `yaml:"admin"`
	ComplianceGated bool           `yaml:"compliance_gated"`

	Eligibility  EligibilityParams  `yaml:"eligibility"`
	Token        TokenParams        `yaml:"token"`
	Introduction IntroductionParams `yaml:"introduction"`
	Revenue      RevenueParams      `yaml:"revenue"`
	Tax          TaxParams          `yaml:"tax"`
	Governance   GovernanceParams   `yaml:"governance"`
	Presence     PresenceParams     `yaml:"presence"`
}

type EligibilityParams struct {
	// Zero means unlimited for all three caps.
	MaxInvestors     uint64        `yaml:"max_investors"`
	PerInvestorFXCap domain.Amount `yaml:"per_investor_fx_cap"`
	TotalForeignCap  domain.Amount `yaml:"total_foreign_cap"`
}

type PackTier struct {
	ID           domain.TierID `yaml:"id"`
	Price        domain.Amount `yaml:"price"`
	Tokens       domain.Amount `yaml:"tokens"`
	LockDuration time.Duration `yaml:"lock_duration"`
}

type TokenParams struct {
	BurnRateBps  domain.Bps    `yaml:"burn_rate_bps"`
	LockDuration time.Duration `yaml:"lock_duration"`
	// LaunchTime defaults to the process start when zero.
	LaunchTime time.Time  `yaml:"launch_time"`
	PackTiers  []PackTier `yaml:"pack_tiers"`
}

type IntroductionParams struct {
	CommissionBps domain.Bps     `yaml:"commission_bps"`
	Treasury      domain.Address `yaml:"treasury"`
}

type RevenueParams struct {
	MerchantBps domain.Bps     `yaml:"merchant_bps"`
	PlatformBps domain.Bps     `yaml:"platform_bps"`
	ReferrerBps domain.Bps     `yaml:"referrer_bps"`
	Platform    domain.Address `yaml:"platform"`
}

type TaxParams struct {
	DomesticWithholdingBps domain.Bps     `yaml:"domestic_withholding_bps"`
	ForeignSurchargeBps    domain.Bps     `yaml:"foreign_surcharge_bps"`
	PoolABps               domain.Bps     `yaml:"pool_a_bps"`
	Authority              domain.Address `yaml:"authority"`
	PoolA                  domain.Address `yaml:"pool_a"`
	PoolB                  domain.Address `yaml:"pool_b"`
}

type GovernanceParams struct {
	VotingPeriod       time.Duration    `yaml:"voting_period"`
	ExecutionDelay     time.Duration    `yaml:"execution_delay"`
	ExecutionWindow    time.Duration    `yaml:"execution_window"`
	ProposalThreshold  domain.Amount    `yaml:"proposal_threshold"`
	Quorum             domain.Amount    `yaml:"quorum"`
	RequiredSignatures int              `yaml:"required_signatures"`
	Executors          []domain.Address `yaml:"executors"`
}

type PresenceParams struct {
	DefaultReward domain.Amount `yaml:"default_reward"`
}

// DefaultGenesis returns the parameters of the reference deployment.
func DefaultGenesis() Genesis {
	return Genesis{
		Eligibility: EligibilityParams{MaxInvestors: 200},
		Token: TokenParams{
			BurnRateBps:  300,
			LockDuration: 7 * day,
			PackTiers: []PackTier{
				{ID: 1, Price: 100_000_000_000_000_000, Tokens: 1_000_000, LockDuration: 60 * day},
			},
		},
		Introduction: IntroductionParams{
			CommissionBps: 500,
			Treasury:      domain.ComponentAddress("introduction.treasury"),
		},
		Revenue: RevenueParams{
			MerchantBps: 9000,
			PlatformBps: 700,
			ReferrerBps: 300,
			Platform:    domain.ComponentAddress("revenue.platform"),
		},
		Tax: TaxParams{
			DomesticWithholdingBps: 1000,
			ForeignSurchargeBps:    2000,
			PoolABps:               5000,
			Authority:              domain.ComponentAddress("tax.authority"),
			PoolA:                  domain.ComponentAddress("tax.pool_a"),
			PoolB:                  domain.ComponentAddress("tax.pool_b"),
		},
		Governance: GovernanceParams{
			VotingPeriod:       7 * day,
			ExecutionDelay:     2 * day,
			ExecutionWindow:    14 * day,
			ProposalThreshold:  1_000_000,
			Quorum:             1_000_000,
			RequiredSignatures: 2,
		},
		Presence: PresenceParams{DefaultReward: 10},
	}
}

// LoadGenesis reads a YAML parameter file over the defaults. An empty path
// returns the defaults.
func LoadGenesis(path string) (Genesis, error) {
	g := DefaultGenesis()
	if path == "" {
		return g, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, fmt.Errorf("read genesis: %w", err)
	}
	if err := yaml.Unmarshal(raw, &g); err != nil {
		return Genesis{}, dErrors.Wrap(err, dErrors.CodeValidation, "decode genesis")
	}
	return g, nil
}

// Validate rejects parameter sets the ledger cannot run with.
func (g Genesis) Validate() error {
	if g.Admin.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "genesis admin is required")
	}
	for name, b := range map[string]domain.Bps{
		"burn rate":            g.Token.BurnRateBps,
		"commission":           g.Introduction.CommissionBps,
		"domestic withholding": g.Tax.DomesticWithholdingBps,
		"foreign surcharge":    g.Tax.ForeignSurchargeBps,
		"pool ratio":           g.Tax.PoolABps,
	} {
		if !b.Valid() {
			return dErrors.Newf(dErrors.CodeValidation, "%s exceeds 10000 bps", name)
		}
	}
	r := g.Revenue
	if r.MerchantBps+r.PlatformBps+r.ReferrerBps != domain.BpsDenominator {
		return dErrors.New(dErrors.CodeConservation, "revenue split must sum to 10000 bps")
	}
	if g.Tax.DomesticWithholdingBps+g.Tax.ForeignSurchargeBps > domain.BpsDenominator {
		return dErrors.New(dErrors.CodeConservation, "withholding exceeds 10000 bps")
	}
	gov := g.Governance
	if gov.VotingPeriod <= 0 || gov.ExecutionWindow <= 0 || gov.ExecutionDelay < 0 {
		return dErrors.New(dErrors.CodeValidation, "governance periods must be positive")
	}
	if gov.RequiredSignatures < 1 {
		return dErrors.New(dErrors.CodeValidation, "at least one executor signature is required")
	}
	seen := make(map[domain.TierID]struct{}, len(g.Token.PackTiers))
	for _, t := range g.Token.PackTiers {
		if t.ID == 0 || t.Tokens == 0 {
			return dErrors.Newf(dErrors.CodeValidation, "pack tier %d is incomplete", t.ID)
		}
		if _, dup := seen[t.ID]; dup {
			return dErrors.Newf(dErrors.CodeValidation, "duplicate pack tier %d", t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}
