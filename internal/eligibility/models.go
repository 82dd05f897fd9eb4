package eligibility

import (
	"time"

	"unykorn/pkg/domain"
)

// Investor is the compliance record of one participant. Records are never
// deleted, only flagged.
type Investor struct {
	Identity                  domain.Address
	KYCPassed                 bool
	AMLPassed                 bool
	Blacklisted               bool
	Jurisdiction              domain.Jurisdiction
	IsForeign                 bool
	CumulativeForeignInvested domain.Amount
	// System marks protocol-owned accounts. They do not count toward
	// MaxInvestors.
	System  bool
	AddedAt time.Time
}

// Eligible is the participation predicate: KYC and AML passed, not blacklisted.
func (i Investor) Eligible() bool {
	return i.KYCPassed && i.AMLPassed && !i.Blacklisted
}

// Limits bounds the registry. A zero field means unlimited, which models the
// plain whitelist deployments.
type Limits struct {
	MaxInvestors     uint64
	PerInvestorFXCap domain.Amount
	TotalForeignCap  domain.Amount
}

// Unlimited returns limits with every cap disabled.
func Unlimited() Limits {
	return Limits{}
}

func (l Limits) investorCapReached(count int) bool {
	return l.MaxInvestors != 0 && uint64(count) >= l.MaxInvestors
}

func (l Limits) perInvestorExceeded(total domain.Amount) bool {
	return l.PerInvestorFXCap != 0 && total > l.PerInvestorFXCap
}

func (l Limits) aggregateExceeded(total domain.Amount) bool {
	return l.TotalForeignCap != 0 && total > l.TotalForeignCap
}
