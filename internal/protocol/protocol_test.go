package protocol

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"unykorn/internal/governance"
	"unykorn/internal/platform/config"
	"unykorn/internal/platform/metrics"
	"unykorn/internal/presence"
	"unykorn/pkg/domain"
	dErrors "unykorn/pkg/domain-errors"
	"unykorn/pkg/platform/audit"
	"unykorn/pkg/platform/audit/publisher"
	"unykorn/pkg/platform/audit/store/memory"
	"unykorn/pkg/testutil"
)

const day = 24 * time.Hour

// These tests drive the composed protocol the way the server does: every
// call is one transaction across however many components it touches.

// fixture holds the wiring shared by the ungated and gated suites.
type fixture struct {
	suite.Suite
	clock   *testutil.Clock
	admin   domain.Address
	alice   domain.Address
	bob     domain.Address
	carol   domain.Address
	exec1   domain.Address
	exec2   domain.Address
	events  *memory.InMemoryStore
	metrics *metrics.Metrics
	spans   *tracetest.SpanRecorder
	p       *Protocol
}

type ProtocolSuite struct {
	fixture
}

func TestProtocolSuite(t *testing.T) {
	suite.Run(t, new(ProtocolSuite))
}

func (s *ProtocolSuite) SetupTest() {
	s.init()
	s.p = s.newProtocol(s.genesis())
}

func (s *fixture) init() {
	s.clock = testutil.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	s.admin = testutil.Addr(1)
	s.alice, s.bob, s.carol = testutil.Addr(10), testutil.Addr(11), testutil.Addr(12)
	s.exec1, s.exec2 = testutil.Addr(20), testutil.Addr(21)
}

func (s *fixture) genesis() config.Genesis {
	g := config.DefaultGenesis()
	g.Admin = s.admin
	g.Token.LaunchTime = s.clock.Now()
	g.Governance.Executors = []domain.Address{s.exec1, s.exec2}
	return g
}

func (s *fixture) newProtocol(g config.Genesis) *Protocol {
	s.events = memory.NewInMemoryStore()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.spans = tracetest.NewSpanRecorder()
	p, err := New(s.ctx(), g,
		WithAuditPublisher(publisher.NewPublisher(s.events)),
		WithMetrics(s.metrics),
		WithTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(s.spans))),
	)
	s.Require().NoError(err)
	s.Require().NoError(p.GrantRole(s.ctx(), s.admin, ComponentToken, domain.RoleMinter, s.admin))
	return p
}

func (s *fixture) ctx() context.Context {
	return s.clock.Ctx()
}

func (s *fixture) mint(to domain.Address, amount domain.Amount) {
	s.Require().NoError(s.p.Mint(s.ctx(), s.admin, to, amount, ""))
}

func (s *fixture) admit(who domain.Address) {
	s.Require().NoError(s.p.AddInvestor(s.ctx(), s.admin, who, false, "US"))
	s.Require().NoError(s.p.SetKYCPassed(s.ctx(), s.admin, who, true))
	s.Require().NoError(s.p.SetAMLPassed(s.ctx(), s.admin, who, true))
}

func (s *ProtocolSuite) TestNewValidatesGenesis() {
	g := s.genesis()
	g.Revenue.ReferrerBps = 400
	_, err := New(s.ctx(), g)
	s.True(dErrors.HasCode(err, dErrors.CodeConservation))

	g = s.genesis()
	g.Admin = domain.Address{}
	_, err = New(s.ctx(), g)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ProtocolSuite) TestComponentIdentitiesAreWired() {
	govID := domain.ComponentAddress(ComponentGovernance)
	for _, component := range []string{ComponentToken, ComponentRevenue, ComponentIntroduction, ComponentTax, ComponentPresence} {
		s.True(s.p.HasRole(component, domain.RoleGovernor, govID), component)
	}
	s.True(s.p.HasRole(ComponentToken, domain.RoleMinter, domain.ComponentAddress(ComponentPresence)))
	s.True(s.p.HasRole(ComponentToken, domain.RoleBurner, s.p.Settlement().Identity()))
	s.True(s.p.HasRole(ComponentGovernance, domain.RoleExecutor, s.exec2))
	s.False(s.p.HasRole("treasury", domain.RoleAdmin, s.admin))
}

func (s *ProtocolSuite) TestPackPurchaseScenario() {
	s.Require().NoError(s.p.BuyPack(s.ctx(), s.alice, 1, 100_000_000_000_000_000))
	s.Equal(domain.Amount(1_000_000), s.p.BalanceOf(s.ctx(), s.alice))
	s.Equal(domain.Amount(100_000_000_000_000_000), s.p.PackProceeds(s.ctx()))
	s.Equal(s.clock.Now().Add(60*day), s.p.LockedUntil(s.ctx(), s.alice))

	s.clock.Advance(59 * day)
	_, err := s.p.Transfer(s.ctx(), s.alice, s.bob, 100_000)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState), "pack lock still active")

	s.clock.Advance(day)
	burned, err := s.p.Transfer(s.ctx(), s.alice, s.bob, 100_000)
	s.Require().NoError(err)
	s.Equal(domain.Amount(3_000), burned)
	s.Equal(domain.Amount(97_000), s.p.BalanceOf(s.ctx(), s.bob))
	s.Equal(domain.Amount(900_000), s.p.BalanceOf(s.ctx(), s.alice))
	s.Equal(domain.Amount(997_000), s.p.TotalSupply(s.ctx()))
}

func (s *ProtocolSuite) TestLaunchLock() {
	s.mint(s.alice, 1_000)
	_, err := s.p.Transfer(s.ctx(), s.alice, s.bob, 100)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	s.clock.Advance(7 * day)
	_, err = s.p.Transfer(s.ctx(), s.alice, s.bob, 100)
	s.Require().NoError(err)
	s.Equal(domain.Amount(97), s.p.BalanceOf(s.ctx(), s.bob))
}

func (s *ProtocolSuite) TestGovernanceChangesBurnRate() {
	s.mint(s.alice, 2_000_000)
	id, err := s.p.Propose(s.ctx(), s.alice, "raise the burn", governance.BurnRateChange{BurnRateBps: 500})
	s.Require().NoError(err)
	s.Require().NoError(s.p.Vote(s.ctx(), s.alice, id, true))

	s.clock.Advance(7*day + time.Second)
	state, err := s.p.Finalize(s.ctx(), id)
	s.Require().NoError(err)
	s.Equal(governance.StatePassed, state)

	s.Require().NoError(s.p.SignExecution(s.ctx(), s.exec1, id))
	s.Require().NoError(s.p.SignExecution(s.ctx(), s.exec2, id))

	err = s.p.ExecuteProposal(s.ctx(), s.exec1, id)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState), "timelock")

	s.clock.Advance(2 * day)
	s.Require().NoError(s.p.ExecuteProposal(s.ctx(), s.exec1, id))
	s.Equal(domain.Bps(500), s.p.BurnRate())

	err = s.p.ExecuteProposal(s.ctx(), s.exec2, id)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState), "already executed")

	burned, err := s.p.Transfer(s.ctx(), s.alice, s.bob, 1_000)
	s.Require().NoError(err)
	s.Equal(domain.Amount(50), burned)
}

func (s *ProtocolSuite) TestUnexecutableProposalsRejectedAtPropose() {
	s.mint(s.alice, 2_000_000)
	_, err := s.p.Propose(s.ctx(), s.alice, "burn it all", governance.BurnRateChange{BurnRateBps: 2_000})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	s.NotContains(s.events.Actions(), string(audit.EventProposalCreated))

	id, err := s.p.Propose(s.ctx(), s.alice, "by pointer", &governance.BurnRateChange{BurnRateBps: 500})
	s.Require().NoError(err)
	prop, err := s.p.Proposal(s.ctx(), id)
	s.Require().NoError(err)
	s.Equal(governance.BurnRateChange{BurnRateBps: 500}, prop.Payload)
}

func (s *ProtocolSuite) TestFailedExecutionLeavesNoTrace() {
	s.mint(s.alice, 2_000_000)
	id, err := s.p.Propose(s.ctx(), s.alice, "raise the burn", governance.BurnRateChange{BurnRateBps: 800})
	s.Require().NoError(err)
	s.Require().NoError(s.p.Vote(s.ctx(), s.alice, id, true))
	s.clock.Advance(7*day + time.Second)
	s.Require().NoError(s.p.SignExecution(s.ctx(), s.exec1, id))
	s.Require().NoError(s.p.SignExecution(s.ctx(), s.exec2, id))
	s.clock.Advance(2 * day)

	// The token no longer accepts the controller, so its setter refuses.
	govID := domain.ComponentAddress(ComponentGovernance)
	s.Require().NoError(s.p.RevokeRole(s.ctx(), s.admin, ComponentToken, domain.RoleGovernor, govID))

	err = s.p.ExecuteProposal(s.ctx(), s.exec1, id)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	prop, err := s.p.Proposal(s.ctx(), id)
	s.Require().NoError(err)
	s.Equal(governance.StateQueued, prop.State, "executed flag was rolled back with the failed setter")
	s.Equal(domain.Bps(300), s.p.BurnRate())
	s.NotContains(s.events.Actions(), string(audit.EventProposalExecuted))
	s.Equal(float64(1), promtest.ToFloat64(s.metrics.Transactions.WithLabelValues("execute_proposal", "error")))
}

func (s *ProtocolSuite) TestSettlementIsIdempotent() {
	res, err := s.p.MintFromSettlement(s.ctx(), 100, s.alice, "SWIFT123")
	s.Require().NoError(err)
	s.False(res.Duplicate)

	res, err = s.p.MintFromSettlement(s.ctx(), 100, s.alice, "SWIFT123")
	s.Require().NoError(err)
	s.True(res.Duplicate)
	s.Equal(domain.Amount(100), s.p.BalanceOf(s.ctx(), s.alice))
	s.Equal(domain.Amount(100), s.p.TotalSupply(s.ctx()))

	_, err = s.p.RedeemToSettlement(s.ctx(), 40, s.alice, "FW-OUT-1")
	s.Require().NoError(err)
	s.Equal(domain.Amount(60), s.p.TotalSupply(s.ctx()))

	_, err = s.p.RedeemToSettlement(s.ctx(), 1_000, s.alice, "FW-OUT-2")
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFunds))
	s.Equal(domain.Amount(60), s.p.BalanceOf(s.ctx(), s.alice))
}

func (s *ProtocolSuite) TestCheckInMintsReward() {
	s.Require().NoError(s.p.GrantRole(s.ctx(), s.admin, ComponentPresence, domain.RoleRegistrar, s.admin))
	station := presence.Coordinate{Lat: 40_712_800, Lon: -74_006_000}
	id, err := s.p.CreateBeacon(s.ctx(), s.admin, presence.BeaconSpec{Label: "Gas Station A", Position: station, RadiusMeters: 100})
	s.Require().NoError(err)

	c, err := s.p.RecordCheckIn(s.ctx(), s.alice, id, presence.MethodGPS, station)
	s.Require().NoError(err)
	s.Equal(domain.Amount(10), c.Reward)
	s.Equal(domain.Amount(10), s.p.BalanceOf(s.ctx(), s.alice))
	s.Equal(uint32(1), s.p.PresenceStats(s.ctx(), s.alice).CurrentStreak)
	s.Len(s.p.CheckIns(s.ctx(), s.alice), 1)

	_, err = s.p.RecordCheckIn(s.ctx(), s.alice, id, presence.MethodQR, station)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	s.Equal(domain.Amount(10), s.p.TotalSupply(s.ctx()))
}

func (s *ProtocolSuite) TestIntroductionCommission() {
	treasury := domain.ComponentAddress("introduction.treasury")
	s.mint(treasury, 1_000)
	s.clock.Advance(7 * day)

	id, err := s.p.CreateIntroduction(s.ctx(), s.carol, s.alice, s.bob)
	s.Require().NoError(err)
	s.Require().NoError(s.p.ConfirmIntroduction(s.ctx(), s.bob, id))
	s.True(s.p.AreConnected(s.ctx(), s.alice, s.bob))

	payout, err := s.p.RecordIntroducedTransaction(s.ctx(), s.alice, s.alice, s.bob, 10_000)
	s.Require().NoError(err)
	s.Equal(domain.Amount(500), payout.Commission)
	s.Equal(domain.Amount(485), s.p.BalanceOf(s.ctx(), s.carol))
	s.Equal(domain.Amount(500), s.p.BalanceOf(s.ctx(), treasury))
	introducer, ok := s.p.IntroducerOf(s.ctx(), s.bob, s.alice)
	s.True(ok)
	s.Equal(s.carol, introducer)
}

func (s *ProtocolSuite) TestTaxDistribution() {
	s.Require().NoError(s.p.GrantRole(s.ctx(), s.admin, ComponentTax, domain.RoleDistributor, s.admin))
	s.mint(s.admin, 10_000)
	s.clock.Advance(7 * day)

	out, err := s.p.DistributeTax(s.ctx(), s.admin, 10_000, s.alice, "us")
	s.Require().NoError(err)
	s.Equal(domain.Amount(1_000), out.Withheld)
	s.Equal(domain.Amount(10_000), out.Total())
	s.Equal(domain.Amount(970), s.p.BalanceOf(s.ctx(), domain.ComponentAddress("tax.authority")))
}

func (s *ProtocolSuite) TestSpansAndMetrics() {
	_, err := s.p.Transfer(s.ctx(), s.alice, s.bob, 1)
	s.Require().Error(err)

	var found bool
	for _, span := range s.spans.Ended() {
		if span.Name() != "protocol.transfer" {
			continue
		}
		found = true
		s.Equal(codes.Error, span.Status().Code)
	}
	s.True(found, "transfer span recorded")
	s.Equal(float64(1), promtest.ToFloat64(s.metrics.Transactions.WithLabelValues("transfer", "error")))
	s.Equal(float64(1), promtest.ToFloat64(s.metrics.Transactions.WithLabelValues("genesis", "ok")))
}

func (s *ProtocolSuite) TestConcurrentTransactionsSerialize() {
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.NoError(s.p.Mint(s.ctx(), s.admin, s.alice, 1, ""))
		}()
	}
	wg.Wait()
	s.Equal(domain.Amount(50), s.p.TotalSupply(s.ctx()))
	s.Equal(float64(50), promtest.ToFloat64(s.metrics.Transactions.WithLabelValues("mint", "ok")))
}

// Gated deployments check eligibility on every leg, so a purchase can fail
// after some legs have already moved tokens.

type GatedProtocolSuite struct {
	fixture
	merchant domain.Address
	dave     domain.Address
}

func TestGatedProtocolSuite(t *testing.T) {
	suite.Run(t, new(GatedProtocolSuite))
}

func (s *GatedProtocolSuite) SetupTest() {
	s.init()
	s.merchant, s.dave = testutil.Addr(30), testutil.Addr(31)
	g := s.genesis()
	g.ComplianceGated = true
	s.p = s.newProtocol(g)
	for _, who := range []domain.Address{s.alice, s.carol, s.merchant} {
		s.admit(who)
	}
	s.Require().NoError(s.p.GrantRole(s.ctx(), s.admin, ComponentRevenue, domain.RoleMerchant, s.merchant))
}

func (s *GatedProtocolSuite) TestSystemAccountsAdmitted() {
	s.True(s.p.IsEligible(s.ctx(), domain.ComponentAddress("revenue.platform")))
	s.True(s.p.IsEligible(s.ctx(), domain.ComponentAddress("tax.pool_b")))
	s.Equal(3, s.p.InvestorCount(s.ctx()), "system accounts sit outside the investor count")
}

func (s *GatedProtocolSuite) TestPurchaseRollsBackEveryLeg() {
	s.mint(s.alice, 10_000)
	offer, err := s.p.CreateOffer(s.ctx(), s.merchant, "Car wash", "Full service", 1_000)
	s.Require().NoError(err)
	s.clock.Advance(7 * day)
	before := len(s.events.Actions())

	// Merchant and platform legs succeed before the ineligible referrer leg fails.
	_, err = s.p.Purchase(s.ctx(), s.alice, offer, s.dave)
	s.True(dErrors.HasCode(err, dErrors.CodeIneligible))
	s.Equal(domain.Amount(10_000), s.p.BalanceOf(s.ctx(), s.alice))
	s.Zero(s.p.BalanceOf(s.ctx(), s.merchant))
	s.Equal(domain.Amount(10_000), s.p.TotalSupply(s.ctx()))
	s.Len(s.events.Actions(), before, "no audit event escapes a failed transaction")

	_, recorded := s.p.ReferrerOf(s.ctx(), s.alice)
	s.False(recorded, "the failed purchase did not record a referrer")

	receipt, err := s.p.Purchase(s.ctx(), s.alice, offer, s.carol)
	s.Require().NoError(err)
	s.Equal(s.carol, receipt.Referrer)
	s.Equal(domain.Amount(873), s.p.BalanceOf(s.ctx(), s.merchant))

	o, err := s.p.Offer(s.ctx(), offer)
	s.Require().NoError(err)
	s.Equal(uint64(1), o.TotalSales)
}

func (s *GatedProtocolSuite) TestSettlementReleasesRejectedReference() {
	_, err := s.p.MintFromSettlement(s.ctx(), 100, s.dave, "CBDC-1")
	s.True(dErrors.HasCode(err, dErrors.CodeIneligible))

	s.admit(s.dave)
	res, err := s.p.MintFromSettlement(s.ctx(), 100, s.dave, "CBDC-1")
	s.Require().NoError(err)
	s.False(res.Duplicate)
	s.Equal(domain.Amount(100), s.p.BalanceOf(s.ctx(), s.dave))
}
