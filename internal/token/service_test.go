package token

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"unykorn/internal/access"
	"unykorn/pkg/domain"
	dErrors "unykorn/pkg/domain-errors"
	"unykorn/pkg/platform/audit"
	"unykorn/pkg/platform/audit/publisher"
	"unykorn/pkg/platform/audit/store/memory"
	"unykorn/pkg/platform/tx"
	"unykorn/pkg/testutil"
)

const day = 24 * time.Hour

type allowList map[domain.Address]bool

func (a allowList) IsEligible(_ context.Context, who domain.Address) bool {
	return a[who]
}

type TokenSuite struct {
	suite.Suite
	clock  *testutil.Clock
	admin  domain.Address
	minter domain.Address
	alice  domain.Address
	bob    domain.Address
	events *memory.InMemoryStore
	store  *InMemoryStore
	svc    *Service
}

func TestTokenSuite(t *testing.T) {
	suite.Run(t, new(TokenSuite))
}

func (s *TokenSuite) SetupTest() {
	s.clock = testutil.NewClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	s.admin, s.minter = testutil.Addr(1), testutil.Addr(2)
	s.alice, s.bob = testutil.Addr(10), testutil.Addr(11)
	s.events = memory.NewInMemoryStore()
	s.store = NewInMemoryStore()
	s.svc = s.newService(Params{BurnRateBps: 300, LaunchTime: s.clock.Now(), LockDuration: 7 * day})
	s.Require().NoError(s.svc.SetupPackTier(s.ctx(), s.admin, PackTier{
		ID: 1, Price: 100_000_000_000_000_000, Tokens: 1_000_000, LockDuration: 60 * day, Active: true,
	}))
}

func (s *TokenSuite) newService(params Params, opts ...Option) *Service {
	acl := access.New(component, s.admin)
	acl.Bootstrap(domain.RoleMinter, s.minter)
	acl.Bootstrap(domain.RoleBurner, s.minter)
	acl.Bootstrap(domain.RoleGovernor, s.admin)
	opts = append(opts, WithAuditPublisher(publisher.NewPublisher(s.events)))
	svc, err := New(s.store, acl, params, opts...)
	s.Require().NoError(err)
	return svc
}

func (s *TokenSuite) ctx() context.Context {
	return s.clock.Ctx()
}

func (s *TokenSuite) assertConserved() {
	s.Equal(s.svc.TotalSupply(s.ctx()), s.store.SumBalances(), "sum of balances must equal total supply")
}

// TestPackPurchaseScenario walks the reference deployment: a pack buyer is
// locked for 60 days, then transfers with a 3% burn.
func (s *TokenSuite) TestPackPurchaseScenario() {
	s.Require().NoError(s.svc.BuyPack(s.ctx(), s.alice, 1, 100_000_000_000_000_000))
	s.Equal(domain.Amount(1_000_000), s.svc.BalanceOf(s.ctx(), s.alice))
	s.Equal(s.clock.Now().Add(60*day), s.svc.LockedUntil(s.ctx(), s.alice))

	s.clock.Advance(59 * day)
	_, err := s.svc.Transfer(s.ctx(), s.alice, s.bob, 100_000)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState), "transfer before day 60 must fail")

	s.clock.Advance(day)
	supplyBefore := s.svc.TotalSupply(s.ctx())
	burned, err := s.svc.Transfer(s.ctx(), s.alice, s.bob, 100_000)
	s.Require().NoError(err)
	s.Equal(domain.Amount(3_000), burned)
	s.Equal(domain.Amount(97_000), s.svc.BalanceOf(s.ctx(), s.bob))
	s.Equal(domain.Amount(900_000), s.svc.BalanceOf(s.ctx(), s.alice))
	s.Equal(supplyBefore-3_000, s.svc.TotalSupply(s.ctx()))
	s.True(s.svc.LockedUntil(s.ctx(), s.alice).IsZero())
	s.assertConserved()
}

func (s *TokenSuite) TestGlobalLaunchLock() {
	s.Require().NoError(s.svc.Mint(s.ctx(), s.minter, s.alice, 500, "seed"))

	s.Equal(PhaseLocked, s.svc.Phase(s.clock.Now()))
	_, err := s.svc.Transfer(s.ctx(), s.alice, s.bob, 100)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	s.clock.Advance(7 * day)
	s.Equal(PhaseUnlocked, s.svc.Phase(s.clock.Now()))
	_, err = s.svc.Transfer(s.ctx(), s.alice, s.bob, 100)
	s.Require().NoError(err)
	s.Equal(domain.Amount(97), s.svc.BalanceOf(s.ctx(), s.bob))
}

func (s *TokenSuite) TestTransferValidation() {
	s.clock.Advance(7 * day)
	s.Require().NoError(s.svc.Mint(s.ctx(), s.minter, s.alice, 100, ""))

	_, err := s.svc.Transfer(s.ctx(), s.alice, s.bob, 101)
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFunds))

	_, err = s.svc.Transfer(s.ctx(), s.alice, domain.Address{}, 1)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	s.Run("small transfers round the burn down", func() {
		burned, err := s.svc.Transfer(s.ctx(), s.alice, s.bob, 33)
		s.Require().NoError(err)
		s.Zero(burned)
		s.Equal(domain.Amount(33), s.svc.BalanceOf(s.ctx(), s.bob))
	})
	s.assertConserved()
}

func (s *TokenSuite) TestMintAndBurn() {
	s.Run("mint requires minter role", func() {
		err := s.svc.Mint(s.ctx(), s.alice, s.alice, 10, "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("mint is not blocked by account locks", func() {
		s.Require().NoError(s.svc.BuyPack(s.ctx(), s.alice, 1, 100_000_000_000_000_000))
		s.Require().NoError(s.svc.Mint(s.ctx(), s.minter, s.alice, 10, "settle-1"))
		s.Equal(domain.Amount(1_000_010), s.svc.BalanceOf(s.ctx(), s.alice))
	})

	s.Run("burn is blocked while the account is locked", func() {
		err := s.svc.Burn(s.ctx(), s.minter, s.alice, 10, "redeem-1")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("burn after the lock shrinks supply symmetrically", func() {
		s.clock.Advance(60 * day)
		before := s.svc.TotalSupply(s.ctx())
		s.Require().NoError(s.svc.Burn(s.ctx(), s.minter, s.alice, 10, "redeem-1"))
		s.Equal(before-10, s.svc.TotalSupply(s.ctx()))
		s.Equal(domain.Amount(1_000_000), s.svc.BalanceOf(s.ctx(), s.alice))
	})

	s.Run("burn beyond balance fails", func() {
		err := s.svc.Burn(s.ctx(), s.minter, s.bob, 1, "")
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFunds))
	})
	s.assertConserved()
}

func (s *TokenSuite) TestComplianceGating() {
	eligible := allowList{s.alice: true}
	svc := s.newService(Params{BurnRateBps: 300, LaunchTime: s.clock.Now(), ComplianceGated: true}, WithEligibility(eligible))

	err := svc.Mint(s.ctx(), s.minter, s.bob, 10, "")
	s.True(dErrors.HasCode(err, dErrors.CodeIneligible))

	s.Require().NoError(svc.Mint(s.ctx(), s.minter, s.alice, 10, ""))
	_, err = svc.Transfer(s.ctx(), s.alice, s.bob, 5)
	s.True(dErrors.HasCode(err, dErrors.CodeIneligible))

	eligible[s.bob] = true
	_, err = svc.Transfer(s.ctx(), s.alice, s.bob, 5)
	s.NoError(err)

	_, err = New(NewInMemoryStore(), access.New(component, s.admin), Params{ComplianceGated: true})
	s.Error(err, "gated deployment without a registry")
}

func (s *TokenSuite) TestBuyPackValidation() {
	err := s.svc.BuyPack(s.ctx(), s.alice, 1, 1)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	err = s.svc.BuyPack(s.ctx(), s.alice, 9, 0)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	s.Require().NoError(s.svc.SetupPackTier(s.ctx(), s.admin, PackTier{ID: 2, Price: 5, Tokens: 50}))
	err = s.svc.BuyPack(s.ctx(), s.alice, 2, 5)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState), "inactive tier")

	err = s.svc.SetupPackTier(s.ctx(), s.alice, PackTier{ID: 3, Tokens: 1})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	s.Zero(s.svc.PackProceeds(s.ctx()))
}

func (s *TokenSuite) TestUtilityUseBurnsFullAmount() {
	s.Require().NoError(s.svc.Mint(s.ctx(), s.minter, s.alice, 1_000, ""))

	s.Require().NoError(s.svc.UtilityUse(s.ctx(), s.alice, 250, "api-call"))
	s.Equal(domain.Amount(750), s.svc.BalanceOf(s.ctx(), s.alice))
	s.Equal(domain.Amount(750), s.svc.TotalSupply(s.ctx()))

	events, err := s.events.ListBySubject(s.ctx(), s.alice.String())
	s.Require().NoError(err)
	last := events[len(events)-1]
	s.Equal(string(audit.EventUtilityUsed), last.Action)
	s.Equal("api-call", last.Reason)
	s.Equal("250", last.Amount)

	err = s.svc.UtilityUse(s.ctx(), s.alice, 1, "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *TokenSuite) TestSetBurnRate() {
	err := s.svc.SetBurnRate(s.ctx(), s.alice, 100)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	err = s.svc.SetBurnRate(s.ctx(), s.admin, MaxBurnRateBps+1)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	s.Require().NoError(s.svc.SetBurnRate(s.ctx(), s.admin, 500))
	s.Equal(domain.Bps(500), s.svc.BurnRate())
}

func (s *TokenSuite) TestRollbackRestoresLedger() {
	s.Require().NoError(s.svc.Mint(s.ctx(), s.minter, s.alice, 1_000, ""))
	s.clock.Advance(7 * day)

	j := tx.NewJournal()
	ctx := tx.WithJournal(s.ctx(), j)
	_, err := s.svc.Transfer(ctx, s.alice, s.bob, 400)
	s.Require().NoError(err)
	s.Require().NoError(s.svc.SetBurnRate(ctx, s.admin, 0))
	j.Rollback()

	s.Equal(domain.Amount(1_000), s.svc.BalanceOf(s.ctx(), s.alice))
	s.Zero(s.svc.BalanceOf(s.ctx(), s.bob))
	s.Equal(domain.Amount(1_000), s.svc.TotalSupply(s.ctx()))
	s.Equal(domain.Bps(300), s.svc.BurnRate())

	events, err := s.events.ListBySubject(s.ctx(), s.alice.String())
	s.Require().NoError(err)
	for _, e := range events {
		s.NotEqual(string(audit.EventTokensTransferred), e.Action, "rolled back transfers emit nothing")
	}
}
