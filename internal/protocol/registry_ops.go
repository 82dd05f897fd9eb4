package protocol

import (
	"context"

	"unykorn/internal/eligibility"
	"unykorn/pkg/domain"
)

// GrantRole gives role on component to who. Caller must be that component's
// admin.
func (p *Protocol) GrantRole(ctx context.Context, caller domain.Address, component string, role domain.Role, who domain.Address) error {
	acl, err := p.ACL(component)
	if err != nil {
		return err
	}
	return p.RunInTx(ctx, "grant_role", func(ctx context.Context) error {
		return acl.Grant(ctx, caller, role, who)
	})
}

func (p *Protocol) RevokeRole(ctx context.Context, caller domain.Address, component string, role domain.Role, who domain.Address) error {
	acl, err := p.ACL(component)
	if err != nil {
		return err
	}
	return p.RunInTx(ctx, "revoke_role", func(ctx context.Context) error {
		return acl.Revoke(ctx, caller, role, who)
	})
}

func (p *Protocol) HasRole(component string, role domain.Role, who domain.Address) bool {
	acl, err := p.ACL(component)
	if err != nil {
		return false
	}
	return view(p, context.Background(), func(context.Context) bool {
		return acl.Has(role, who)
	})
}

func (p *Protocol) AddInvestor(ctx context.Context, caller, who domain.Address, isForeign bool, jurisdiction domain.Jurisdiction) error {
	return p.RunInTx(ctx, "add_investor", func(ctx context.Context) error {
		return p.eligibility.AddInvestor(ctx, caller, who, isForeign, jurisdiction)
	})
}

func (p *Protocol) SetKYCPassed(ctx context.Context, caller, who domain.Address, passed bool) error {
	return p.RunInTx(ctx, "set_kyc", func(ctx context.Context) error {
		return p.eligibility.SetKYCPassed(ctx, caller, who, passed)
	})
}

func (p *Protocol) SetAMLPassed(ctx context.Context, caller, who domain.Address, passed bool) error {
	return p.RunInTx(ctx, "set_aml", func(ctx context.Context) error {
		return p.eligibility.SetAMLPassed(ctx, caller, who, passed)
	})
}

func (p *Protocol) SetBlacklisted(ctx context.Context, caller, who domain.Address, blacklisted bool) error {
	return p.RunInTx(ctx, "set_blacklisted", func(ctx context.Context) error {
		return p.eligibility.SetBlacklisted(ctx, caller, who, blacklisted)
	})
}

// CheckAndRecordForeignInvestment admits amount against the foreign caps and
// records it in the same transaction.
func (p *Protocol) CheckAndRecordForeignInvestment(ctx context.Context, caller, who domain.Address, amount domain.Amount) error {
	return p.RunInTx(ctx, "record_foreign_investment", func(ctx context.Context) error {
		return p.eligibility.CheckAndRecordForeignInvestment(ctx, caller, who, amount)
	})
}

func (p *Protocol) RecordInvestment(ctx context.Context, caller, who domain.Address, amount domain.Amount) error {
	return p.RunInTx(ctx, "record_investment", func(ctx context.Context) error {
		return p.eligibility.RecordInvestment(ctx, caller, who, amount)
	})
}

func (p *Protocol) SetEligibilityLimits(ctx context.Context, caller domain.Address, limits eligibility.Limits) error {
	return p.RunInTx(ctx, "set_eligibility_limits", func(ctx context.Context) error {
		return p.eligibility.SetLimits(ctx, caller, limits)
	})
}

func (p *Protocol) IsEligible(ctx context.Context, who domain.Address) bool {
	return view(p, ctx, func(ctx context.Context) bool {
		return p.eligibility.IsEligible(ctx, who)
	})
}

func (p *Protocol) Investor(ctx context.Context, who domain.Address) (eligibility.Investor, error) {
	return lookup(p, ctx, func(ctx context.Context) (eligibility.Investor, error) {
		return p.eligibility.Investor(ctx, who)
	})
}

func (p *Protocol) InvestorCount(ctx context.Context) int {
	return view(p, ctx, p.eligibility.Count)
}

func (p *Protocol) IsForeign(ctx context.Context, who domain.Address) bool {
	return view(p, ctx, func(ctx context.Context) bool {
		return p.eligibility.IsForeign(ctx, who)
	})
}
