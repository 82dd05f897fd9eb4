// Package protocol composes the ledger components and runs every state change
// as one serialized transaction. A failing operation leaves no trace in any
// component: mutations are undone through the journal and audit events,
// metrics and published events are dropped.
package protocol

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"unykorn/internal/access"
	"unykorn/internal/eligibility"
	"unykorn/internal/governance"
	"unykorn/internal/introduction"
	"unykorn/internal/platform/config"
	"unykorn/internal/platform/metrics"
	"unykorn/internal/platform/observability"
	"unykorn/internal/presence"
	"unykorn/internal/revenue"
	"unykorn/internal/settlement"
	"unykorn/internal/token"
	"unykorn/pkg/domain"
	dErrors "unykorn/pkg/domain-errors"
	"unykorn/pkg/platform/tx"
	"unykorn/pkg/requestcontext"
)

const tracerName = "unykorn/internal/protocol"

// Component names, also the seeds of the identities components present to
// each other.
const (
	ComponentEligibility  = "eligibility"
	ComponentToken        = "token"
	ComponentIntroduction = "introduction"
	ComponentRevenue      = "revenue"
	ComponentTax          = "tax"
	ComponentGovernance   = "governance"
	ComponentPresence     = "presence"
	ComponentSettlement   = "settlement"
)

// systemJurisdiction is the user-assigned ISO code protocol-owned accounts
// are registered under in gated deployments.
const systemJurisdiction domain.Jurisdiction = "XX"

// Protocol owns one instance of every component.
type Protocol struct {
	mu sync.Mutex

	eligibility   *eligibility.Service
	token         *token.Service
	introductions *introduction.Service
	revenue       *revenue.Router
	tax           *revenue.TaxDistributor
	governance    *governance.Service
	presence      *presence.Service
	settlement    *settlement.Service

	acls map[string]*access.Control

	logger     *slog.Logger
	publisher  observability.AuditPublisher
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	references settlement.ReferenceStore
}

type Option func(*Protocol)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Protocol) {
		p.logger = logger
	}
}

func WithAuditPublisher(pub observability.AuditPublisher) Option {
	return func(p *Protocol) {
		p.publisher = pub
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Protocol) {
		p.metrics = m
	}
}

// WithTracerProvider overrides the global OpenTelemetry provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Protocol) {
		p.tracer = tp.Tracer(tracerName)
	}
}

// WithReferenceStore shares settlement reference claims across processes.
func WithReferenceStore(refs settlement.ReferenceStore) Option {
	return func(p *Protocol) {
		p.references = refs
	}
}

// New builds every component from genesis. ctx supplies the genesis time;
// without one the launch time and setup events use the wall clock.
func New(ctx context.Context, g config.Genesis, opts ...Option) (*Protocol, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	p := &Protocol{
		acls:   make(map[string]*access.Control),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	if !requestcontext.HasTime(ctx) {
		ctx = requestcontext.WithTime(ctx, time.Now().UTC())
	}
	launch := g.Token.LaunchTime
	if launch.IsZero() {
		launch = requestcontext.Now(ctx)
	}

	govID := domain.ComponentAddress(ComponentGovernance)
	presenceID := domain.ComponentAddress(ComponentPresence)
	settlementID := domain.ComponentAddress(ComponentSettlement)

	acl := func(component string) *access.Control {
		c := access.New(component, g.Admin,
			access.WithLogger(p.logger),
			access.WithAuditPublisher(p.publisher),
		)
		p.acls[component] = c
		return c
	}

	var err error
	p.eligibility, err = eligibility.New(eligibility.NewInMemoryStore(), acl(ComponentEligibility), eligibility.Limits{
		MaxInvestors:     g.Eligibility.MaxInvestors,
		PerInvestorFXCap: g.Eligibility.PerInvestorFXCap,
		TotalForeignCap:  g.Eligibility.TotalForeignCap,
	}, eligibility.WithLogger(p.logger), eligibility.WithAuditPublisher(p.publisher))
	if err != nil {
		return nil, err
	}

	tokenACL := acl(ComponentToken)
	tokenACL.Bootstrap(domain.RoleMinter, presenceID)
	tokenACL.Bootstrap(domain.RoleMinter, settlementID)
	tokenACL.Bootstrap(domain.RoleBurner, settlementID)
	tokenACL.Bootstrap(domain.RoleGovernor, govID)
	p.token, err = token.New(token.NewInMemoryStore(), tokenACL, token.Params{
		BurnRateBps:     g.Token.BurnRateBps,
		LaunchTime:      launch,
		LockDuration:    g.Token.LockDuration,
		ComplianceGated: g.ComplianceGated,
	},
		token.WithEligibility(p.eligibility),
		token.WithLogger(p.logger),
		token.WithAuditPublisher(p.publisher),
		token.WithMetrics(p.metrics),
	)
	if err != nil {
		return nil, err
	}

	introACL := acl(ComponentIntroduction)
	introACL.Bootstrap(domain.RoleGovernor, govID)
	p.introductions, err = introduction.New(introduction.NewInMemoryStore(), introACL, p.token,
		g.Introduction.Treasury, g.Introduction.CommissionBps,
		introduction.WithLogger(p.logger),
		introduction.WithAuditPublisher(p.publisher),
	)
	if err != nil {
		return nil, err
	}

	revenueACL := acl(ComponentRevenue)
	revenueACL.Bootstrap(domain.RoleGovernor, govID)
	p.revenue, err = revenue.NewRouter(revenue.NewInMemoryStore(), revenueACL, p.token, revenue.Split{
		MerchantBps: g.Revenue.MerchantBps,
		PlatformBps: g.Revenue.PlatformBps,
		ReferrerBps: g.Revenue.ReferrerBps,
	}, g.Revenue.Platform,
		revenue.WithLogger(p.logger),
		revenue.WithAuditPublisher(p.publisher),
	)
	if err != nil {
		return nil, err
	}

	taxACL := acl(ComponentTax)
	taxACL.Bootstrap(domain.RoleGovernor, govID)
	p.tax, err = revenue.NewTaxDistributor(taxACL, p.token, p.eligibility, revenue.TaxRates{
		DomesticWithholdingBps: g.Tax.DomesticWithholdingBps,
		ForeignSurchargeBps:    g.Tax.ForeignSurchargeBps,
		PoolABps:               g.Tax.PoolABps,
	}, revenue.Destinations{
		Authority: g.Tax.Authority,
		PoolA:     g.Tax.PoolA,
		PoolB:     g.Tax.PoolB,
	},
		revenue.WithTaxLogger(p.logger),
		revenue.WithTaxAuditPublisher(p.publisher),
	)
	if err != nil {
		return nil, err
	}

	presenceACL := acl(ComponentPresence)
	presenceACL.Bootstrap(domain.RoleGovernor, govID)
	p.presence, err = presence.New(presence.NewInMemoryStore(), presenceACL,
		presence.WithRewards(p.token, presenceID, g.Presence.DefaultReward),
		presence.WithLogger(p.logger),
		presence.WithAuditPublisher(p.publisher),
		presence.WithMetrics(p.metrics),
	)
	if err != nil {
		return nil, err
	}

	govACL := acl(ComponentGovernance)
	for _, executor := range g.Governance.Executors {
		govACL.Bootstrap(domain.RoleExecutor, executor)
	}
	p.governance, err = governance.New(governance.NewInMemoryStore(), govACL, p.token, governance.Targets{
		Token:        p.token,
		Revenue:      p.revenue,
		Introduction: p.introductions,
		Tax:          p.tax,
		Presence:     p.presence,
	}, governance.Params{
		VotingPeriod:       g.Governance.VotingPeriod,
		ExecutionDelay:     g.Governance.ExecutionDelay,
		ExecutionWindow:    g.Governance.ExecutionWindow,
		ProposalThreshold:  g.Governance.ProposalThreshold,
		Quorum:             g.Governance.Quorum,
		RequiredSignatures: g.Governance.RequiredSignatures,
	}, govID,
		governance.WithLogger(p.logger),
		governance.WithAuditPublisher(p.publisher),
		governance.WithMetrics(p.metrics),
	)
	if err != nil {
		return nil, err
	}

	p.settlement, err = settlement.New(p, settlementID,
		settlement.WithReferenceStore(p.references),
		settlement.WithLogger(p.logger),
		settlement.WithAuditPublisher(p.publisher),
		settlement.WithMetrics(p.metrics),
	)
	if err != nil {
		return nil, err
	}

	err = p.RunInTx(ctx, "genesis", func(ctx context.Context) error {
		return p.genesis(ctx, g)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// genesis configures pack tiers and, for gated deployments, admits the
// protocol-owned accounts so fees and commissions can reach them.
func (p *Protocol) genesis(ctx context.Context, g config.Genesis) error {
	for _, t := range g.Token.PackTiers {
		err := p.token.SetupPackTier(ctx, g.Admin, token.PackTier{
			ID:           t.ID,
			Price:        t.Price,
			Tokens:       t.Tokens,
			LockDuration: t.LockDuration,
			Active:       true,
		})
		if err != nil {
			return err
		}
	}
	if !g.ComplianceGated {
		return nil
	}
	seen := make(map[domain.Address]struct{})
	for _, who := range []domain.Address{
		g.Introduction.Treasury,
		g.Revenue.Platform,
		g.Tax.Authority,
		g.Tax.PoolA,
		g.Tax.PoolB,
	} {
		if who.IsZero() {
			continue
		}
		if _, dup := seen[who]; dup {
			continue
		}
		seen[who] = struct{}{}
		if err := p.eligibility.AddSystemAccount(ctx, g.Admin, who, systemJurisdiction); err != nil {
			return err
		}
		if err := p.eligibility.SetKYCPassed(ctx, g.Admin, who, true); err != nil {
			return err
		}
		if err := p.eligibility.SetAMLPassed(ctx, g.Admin, who, true); err != nil {
			return err
		}
	}
	return nil
}

// RunInTx applies fn as one ledger transaction. Transactions are serialized;
// fn sees the effects of every committed predecessor and none of a failed
// one. The transaction time is taken from ctx or the wall clock.
func (p *Protocol) RunInTx(ctx context.Context, op string, fn func(ctx context.Context) error) (err error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "protocol."+op, trace.WithAttributes(attribute.String("ledger.op", op)))
	defer span.End()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !requestcontext.HasTime(ctx) {
		ctx = requestcontext.WithTime(ctx, time.Now().UTC())
	}
	journal := tx.NewJournal()
	txCtx := tx.WithJournal(ctx, journal)

	defer func() {
		if r := recover(); r != nil {
			journal.Rollback()
			err = dErrors.Newf(dErrors.CodeInvariantViolation, "transaction %s panicked: %v", op, r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(attribute.String("ledger.error_code", string(dErrors.CodeOf(err))))
		}
		if p.metrics != nil {
			p.metrics.ObserveTransaction(op, start, err)
		}
	}()

	if err = fn(txCtx); err != nil {
		journal.Rollback()
		if p.logger != nil {
			p.logger.DebugContext(ctx, "transaction rolled back", "op", op, "error", err)
		}
		return err
	}
	journal.Commit(ctx)
	return nil
}

// view runs a read under the writer lock so it observes a committed state.
func view[T any](p *Protocol, ctx context.Context, fn func(ctx context.Context) T) T {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !requestcontext.HasTime(ctx) {
		ctx = requestcontext.WithTime(ctx, time.Now().UTC())
	}
	return fn(ctx)
}

func lookup[T any](p *Protocol, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !requestcontext.HasTime(ctx) {
		ctx = requestcontext.WithTime(ctx, time.Now().UTC())
	}
	return fn(ctx)
}

// ACL returns the access list of a component by name.
func (p *Protocol) ACL(component string) (*access.Control, error) {
	c, ok := p.acls[component]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "unknown component %q", component)
	}
	return c, nil
}

// Settlement is the adapter for payment rails. Its operations take the
// protocol lock themselves.
func (p *Protocol) Settlement() *settlement.Service {
	return p.settlement
}

var errNilProtocol = errors.New("protocol is not initialized")

// Ready reports whether the protocol finished genesis.
func (p *Protocol) Ready() error {
	if p == nil || p.token == nil || p.settlement == nil {
		return errNilProtocol
	}
	return nil
}
