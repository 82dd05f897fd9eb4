package eligibility

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"unykorn/internal/access"
	"unykorn/pkg/domain"
	dErrors "unykorn/pkg/domain-errors"
	"unykorn/pkg/platform/audit/store/memory"
	"unykorn/pkg/platform/audit/publisher"
	"unykorn/pkg/platform/tx"
	"unykorn/pkg/testutil"
)

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	admin    domain.Address
	recorder domain.Address
	events   *memory.InMemoryStore
	service  *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = testutil.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)).Ctx()
	s.admin = testutil.Addr(1)
	s.recorder = testutil.Addr(2)
	s.events = memory.NewInMemoryStore()
	s.service = s.newService(Limits{MaxInvestors: 3, PerInvestorFXCap: 1_000, TotalForeignCap: 1_500})
}

func (s *ServiceSuite) newService(limits Limits) *Service {
	acl := access.New(component, s.admin)
	acl.Bootstrap(domain.RoleRecorder, s.recorder)
	svc, err := New(NewInMemoryStore(), acl, limits, WithAuditPublisher(publisher.NewPublisher(s.events)))
	s.Require().NoError(err)
	return svc
}

// approve registers who and passes KYC and AML.
func (s *ServiceSuite) approve(who domain.Address, foreign bool) {
	s.Require().NoError(s.service.AddInvestor(s.ctx, s.admin, who, foreign, "US"))
	s.Require().NoError(s.service.SetKYCPassed(s.ctx, s.admin, who, true))
	s.Require().NoError(s.service.SetAMLPassed(s.ctx, s.admin, who, true))
}

func (s *ServiceSuite) TestAddInvestor() {
	s.Run("registers metadata without granting eligibility", func() {
		who := testutil.Addr(10)
		s.Require().NoError(s.service.AddInvestor(s.ctx, s.admin, who, false, "de"))

		inv, err := s.service.Investor(s.ctx, who)
		s.Require().NoError(err)
		s.Equal(domain.Jurisdiction("DE"), inv.Jurisdiction)
		s.False(inv.KYCPassed || inv.AMLPassed || inv.Blacklisted)
		s.False(s.service.IsEligible(s.ctx, who))
	})

	s.Run("duplicate identity conflicts", func() {
		err := s.service.AddInvestor(s.ctx, s.admin, testutil.Addr(10), false, "DE")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("requires admin", func() {
		err := s.service.AddInvestor(s.ctx, s.recorder, testutil.Addr(11), false, "DE")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("rejects malformed jurisdiction", func() {
		err := s.service.AddInvestor(s.ctx, s.admin, testutil.Addr(11), false, "DEU")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

// TestInvestorCap verifies the (max+1)-th registration fails and the registry
// never holds more than max records.
func (s *ServiceSuite) TestInvestorCap() {
	for i := byte(1); i <= 3; i++ {
		s.Require().NoError(s.service.AddInvestor(s.ctx, s.admin, testutil.Addr(20+i), false, "US"))
	}
	err := s.service.AddInvestor(s.ctx, s.admin, testutil.Addr(30), false, "US")
	s.True(dErrors.HasCode(err, dErrors.CodeCapacityExceeded))
	s.Equal(3, s.service.Count(s.ctx))

	s.Run("system accounts do not consume the cap", func() {
		svc := s.newService(Limits{MaxInvestors: 1})
		s.Require().NoError(svc.AddSystemAccount(s.ctx, s.admin, testutil.Addr(50), "XX"))
		s.Require().NoError(svc.AddSystemAccount(s.ctx, s.admin, testutil.Addr(51), "XX"))
		s.Require().NoError(svc.SetKYCPassed(s.ctx, s.admin, testutil.Addr(50), true))
		s.Require().NoError(svc.AddInvestor(s.ctx, s.admin, testutil.Addr(52), false, "US"))
		s.Equal(1, svc.Count(s.ctx))

		err := svc.AddInvestor(s.ctx, s.admin, testutil.Addr(53), false, "US")
		s.True(dErrors.HasCode(err, dErrors.CodeCapacityExceeded))

		err = svc.AddSystemAccount(s.ctx, s.recorder, testutil.Addr(54), "XX")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unlimited registry has no cap", func() {
		svc := s.newService(Unlimited())
		for i := byte(1); i <= 5; i++ {
			s.Require().NoError(svc.AddInvestor(s.ctx, s.admin, testutil.Addr(40+i), false, "US"))
		}
		s.Equal(5, svc.Count(s.ctx))
	})
}

func (s *ServiceSuite) TestEligibilityPredicate() {
	who := testutil.Addr(50)
	s.Require().NoError(s.service.AddInvestor(s.ctx, s.admin, who, false, "US"))

	s.Require().NoError(s.service.SetKYCPassed(s.ctx, s.admin, who, true))
	s.False(s.service.IsEligible(s.ctx, who), "AML still pending")

	s.Require().NoError(s.service.SetAMLPassed(s.ctx, s.admin, who, true))
	s.True(s.service.IsEligible(s.ctx, who))

	s.Require().NoError(s.service.SetBlacklisted(s.ctx, s.admin, who, true))
	s.False(s.service.IsEligible(s.ctx, who))

	s.False(s.service.IsEligible(s.ctx, testutil.Addr(99)), "unknown identities are ineligible")

	err := s.service.SetKYCPassed(s.ctx, s.recorder, who, false)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ServiceSuite) TestForeignInvestmentCaps() {
	alice, bob, local := testutil.Addr(60), testutil.Addr(61), testutil.Addr(62)
	s.approve(alice, true)
	s.approve(bob, true)

	s.Run("records per-investor and aggregate", func() {
		s.Require().NoError(s.service.CheckAndRecordForeignInvestment(s.ctx, s.recorder, alice, 800))
		inv, _ := s.service.Investor(s.ctx, alice)
		s.Equal(domain.Amount(800), inv.CumulativeForeignInvested)
		s.Equal(domain.Amount(800), s.service.TotalForeignInvested(s.ctx))
	})

	s.Run("per-investor cap is inclusive", func() {
		s.Require().NoError(s.service.CheckAndRecordForeignInvestment(s.ctx, s.recorder, alice, 200))
		err := s.service.CheckAndRecordForeignInvestment(s.ctx, s.recorder, alice, 1)
		s.True(dErrors.HasCode(err, dErrors.CodeCapacityExceeded))
	})

	s.Run("aggregate cap leaves counters untouched on failure", func() {
		err := s.service.CheckAndRecordForeignInvestment(s.ctx, s.recorder, bob, 600)
		s.True(dErrors.HasCode(err, dErrors.CodeCapacityExceeded))
		inv, _ := s.service.Investor(s.ctx, bob)
		s.Zero(inv.CumulativeForeignInvested)
		s.Equal(domain.Amount(1_000), s.service.TotalForeignInvested(s.ctx))
	})

	s.Run("domestic investors are not foreign-flagged", func() {
		s.approve(local, false)
		err := s.service.CheckAndRecordForeignInvestment(s.ctx, s.recorder, local, 1)
		s.True(dErrors.HasCode(err, dErrors.CodeIneligible))
	})

	s.Run("ineligible foreign investor is rejected", func() {
		s.Require().NoError(s.service.SetBlacklisted(s.ctx, s.admin, bob, true))
		err := s.service.CheckAndRecordForeignInvestment(s.ctx, s.recorder, bob, 1)
		s.True(dErrors.HasCode(err, dErrors.CodeIneligible))
	})

	s.Run("requires recorder role", func() {
		err := s.service.CheckAndRecordForeignInvestment(s.ctx, s.admin, alice, 1)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestRecordInvestment() {
	domestic, foreign := testutil.Addr(70), testutil.Addr(71)
	s.approve(domestic, false)
	s.approve(foreign, true)

	s.Require().NoError(s.service.RecordInvestment(s.ctx, s.recorder, domestic, 5_000))
	s.Zero(s.service.TotalForeignInvested(s.ctx), "domestic investment leaves FX counters alone")

	s.Require().NoError(s.service.RecordInvestment(s.ctx, s.recorder, foreign, 400))
	s.Equal(domain.Amount(400), s.service.TotalForeignInvested(s.ctx))

	err := s.service.RecordInvestment(s.ctx, s.recorder, testutil.Addr(72), 1)
	s.True(dErrors.HasCode(err, dErrors.CodeIneligible))
}

func (s *ServiceSuite) TestRollbackUndoesRegistrationAndCounters() {
	who := testutil.Addr(80)
	s.approve(who, true)

	j := tx.NewJournal()
	ctx := tx.WithJournal(s.ctx, j)
	s.Require().NoError(s.service.AddInvestor(ctx, s.admin, testutil.Addr(81), false, "US"))
	s.Require().NoError(s.service.CheckAndRecordForeignInvestment(ctx, s.recorder, who, 300))
	j.Rollback()

	s.Equal(1, s.service.Count(s.ctx))
	s.Zero(s.service.TotalForeignInvested(s.ctx))
	inv, _ := s.service.Investor(s.ctx, who)
	s.Zero(inv.CumulativeForeignInvested)
}

func (s *ServiceSuite) TestSetLimits() {
	s.approve(testutil.Addr(90), false)
	s.approve(testutil.Addr(91), false)

	err := s.service.SetLimits(s.ctx, s.admin, Limits{MaxInvestors: 1})
	s.True(dErrors.HasCode(err, dErrors.CodeCapacityExceeded))

	s.Require().NoError(s.service.SetLimits(s.ctx, s.admin, Limits{MaxInvestors: 2}))
	err = s.service.AddInvestor(s.ctx, s.admin, testutil.Addr(92), false, "US")
	s.True(dErrors.HasCode(err, dErrors.CodeCapacityExceeded))
}
