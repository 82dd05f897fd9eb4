// Package governance runs parameter-change proposals through a token-weighted
// vote, N-of-M executor signatures and a timelock before applying them to
// the target component exactly once.
//
// Time-driven transitions are evaluated lazily: a proposal whose voting
// period has closed reports Passed or Rejected to every reader, and the first
// mutating call persists the transition.
package governance

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"unykorn/internal/access"
	"unykorn/internal/platform/metrics"
	"unykorn/internal/platform/observability"
	"unykorn/pkg/domain"
	dErrors "unykorn/pkg/domain-errors"
	"unykorn/pkg/platform/audit"
	"unykorn/pkg/platform/sentinel"
	"unykorn/pkg/platform/tx"
	"unykorn/pkg/requestcontext"
)

const component = "governance"

// Balances supplies voting weight and the proposal threshold check.
type Balances interface {
	BalanceOf(ctx context.Context, who domain.Address) domain.Amount
}

// Service is the governance controller.
type Service struct {
	store     Store
	acl       *access.Control
	balances  Balances
	targets   Targets
	params    Params
	self      domain.Address
	logger    *slog.Logger
	publisher observability.AuditPublisher
	metrics   *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(p observability.AuditPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New builds the controller. self is the identity it presents to targets.
func New(store Store, acl *access.Control, balances Balances, targets Targets, params Params, self domain.Address, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("governance store is required")
	}
	if acl == nil {
		return nil, errors.New("access control is required")
	}
	if balances == nil {
		return nil, errors.New("token balances are required")
	}
	if self.IsZero() {
		return nil, errors.New("governance identity is required")
	}
	if params.VotingPeriod <= 0 || params.ExecutionWindow <= 0 || params.ExecutionDelay < 0 {
		return nil, errors.New("governance periods must be positive")
	}
	if params.RequiredSignatures < 1 {
		return nil, errors.New("at least one executor signature is required")
	}
	s := &Service{store: store, acl: acl, balances: balances, targets: targets, params: params, self: self}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) ACL() *access.Control {
	return s.acl
}

func (s *Service) Identity() domain.Address {
	return s.self
}

func (s *Service) Params() Params {
	return s.params
}

// Propose opens a proposal. The proposer's balance must reach the threshold.
func (s *Service) Propose(ctx context.Context, proposer domain.Address, description string, payload Payload) (domain.ProposalID, error) {
	// Stored payloads are values so execution sees the same type supports did.
	payload = deref(payload)
	if payload == nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "proposal payload is required")
	}
	if err := payload.Validate(); err != nil {
		return 0, err
	}
	if !s.targets.supports(payload.Kind()) {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "proposal kind %q has no target", payload.Kind())
	}
	if balance := s.balances.BalanceOf(ctx, proposer); balance < s.params.ProposalThreshold {
		return 0, dErrors.Newf(dErrors.CodeForbidden, "balance %s below proposal threshold %s", balance, s.params.ProposalThreshold)
	}

	now := requestcontext.Now(ctx)
	p := Proposal{
		ID:             s.store.NextID(ctx),
		Kind:           payload.Kind(),
		Description:    strings.TrimSpace(description),
		Payload:        payload,
		Proposer:       proposer,
		CreatedAt:      now,
		VotingDeadline: now.Add(s.params.VotingPeriod),
		State:          StatePending,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create proposal")
	}
	raw, _ := json.Marshal(payload)
	s.logAudit(ctx, audit.EventProposalCreated,
		"subject", p.ID.String(),
		"actor", proposer.String(),
		"kind", string(p.Kind),
		"payload", string(raw),
		"voting_deadline", p.VotingDeadline.Format(time.RFC3339),
	)
	s.countTransition(ctx, StatePending)
	return p.ID, nil
}

// ProposeRaw decodes a JSON payload for kind and opens a proposal.
func (s *Service) ProposeRaw(ctx context.Context, proposer domain.Address, kind Kind, description string, raw []byte) (domain.ProposalID, error) {
	payload, err := DecodePayload(kind, raw)
	if err != nil {
		return 0, err
	}
	return s.Propose(ctx, proposer, description, payload)
}

// Vote casts voter's current balance for or against a pending proposal.
func (s *Service) Vote(ctx context.Context, voter domain.Address, id domain.ProposalID, support bool) error {
	p, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	now := requestcontext.Now(ctx)
	if p.State != StatePending || now.After(p.VotingDeadline) {
		return dErrors.New(dErrors.CodeInvalidState, "voting is closed")
	}
	if s.store.HasVoted(ctx, id, voter) {
		return dErrors.New(dErrors.CodeInvalidState, "already voted")
	}
	weight := s.balances.BalanceOf(ctx, voter)
	if weight == 0 {
		return dErrors.New(dErrors.CodeForbidden, "voter has no voting weight")
	}
	if support {
		if p.ForVotes, err = p.ForVotes.Add(weight); err != nil {
			return err
		}
	} else {
		if p.AgainstVotes, err = p.AgainstVotes.Add(weight); err != nil {
			return err
		}
	}
	s.store.RecordVote(ctx, id, voter)
	if err := s.store.Update(ctx, p); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record vote")
	}
	s.logAudit(ctx, audit.EventVoteCast,
		"subject", id.String(),
		"actor", voter.String(),
		"support", support,
		"weight", weight,
	)
	return nil
}

// Finalize persists the vote-close transition once the deadline has passed.
func (s *Service) Finalize(ctx context.Context, id domain.ProposalID) (State, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return "", err
	}
	if p.State != StatePending {
		return "", dErrors.Newf(dErrors.CodeInvalidState, "proposal is %s", p.State)
	}
	next := p.StateAt(requestcontext.Now(ctx), s.params)
	if next == StatePending {
		return "", dErrors.New(dErrors.CodeInvalidState, "voting is still open")
	}
	if _, err := s.transition(ctx, p, next); err != nil {
		return "", err
	}
	return next, nil
}

// SignExecution adds executor's signature to a passed proposal. Reaching the
// signature threshold queues it behind the execution delay.
func (s *Service) SignExecution(ctx context.Context, executor domain.Address, id domain.ProposalID) error {
	if err := s.acl.Require(domain.RoleExecutor, executor); err != nil {
		return err
	}
	p, err := s.settle(ctx, id)
	if err != nil {
		return err
	}
	if p.State != StatePassed {
		return dErrors.Newf(dErrors.CodeInvalidState, "proposal is %s, signatures need passed", p.State)
	}
	if p.SignedBy(executor) {
		return dErrors.New(dErrors.CodeInvalidState, "executor already signed")
	}
	p.Signatures = append(append([]domain.Address{}, p.Signatures...), executor)
	if err := s.store.Update(ctx, p); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record signature")
	}
	s.logAudit(ctx, audit.EventExecutionSigned,
		"subject", id.String(),
		"actor", executor.String(),
		"signatures", len(p.Signatures),
		"required", s.params.RequiredSignatures,
	)
	if len(p.Signatures) < s.params.RequiredSignatures {
		return nil
	}
	p.ExecutionETA = requestcontext.Now(ctx).Add(s.params.ExecutionDelay)
	_, err = s.transition(ctx, p, StateQueued,
		"execution_eta", p.ExecutionETA.Format(time.RFC3339),
	)
	return err
}

// ExecuteProposal applies a queued proposal once its timelock has elapsed.
// The proposal is marked executed before the target is called, so a reentrant
// call sees it as already executed.
func (s *Service) ExecuteProposal(ctx context.Context, caller domain.Address, id domain.ProposalID) error {
	if err := s.acl.Require(domain.RoleExecutor, caller); err != nil {
		return err
	}
	p, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	now := requestcontext.Now(ctx)
	switch state := p.StateAt(now, s.params); state {
	case StateQueued:
	case StateExecuted:
		return dErrors.New(dErrors.CodeInvalidState, "proposal already executed")
	case StateExpired:
		return dErrors.New(dErrors.CodeInvalidState, "proposal expired")
	default:
		return dErrors.Newf(dErrors.CodeInvalidState, "proposal is %s, execution needs queued", state)
	}
	if now.Before(p.ExecutionETA) {
		return dErrors.Newf(dErrors.CodeInvalidState, "timelock until %s", p.ExecutionETA.Format(time.RFC3339))
	}

	p.ExecutedAt = now
	if _, err := s.transition(ctx, p, StateExecuted, "actor", caller.String()); err != nil {
		return err
	}
	return s.targets.apply(ctx, s.self, p.Payload)
}

// Proposal returns id with its effective state at the current time.
func (s *Service) Proposal(ctx context.Context, id domain.ProposalID) (Proposal, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return Proposal{}, err
	}
	p.State = p.StateAt(requestcontext.Now(ctx), s.params)
	return p, nil
}

// Proposals lists every proposal with its effective state.
func (s *Service) Proposals(ctx context.Context) []Proposal {
	now := requestcontext.Now(ctx)
	out := s.store.List(ctx)
	for i := range out {
		out[i].State = out[i].StateAt(now, s.params)
	}
	return out
}

// HasVoted reports whether voter has voted on id.
func (s *Service) HasVoted(ctx context.Context, id domain.ProposalID, voter domain.Address) bool {
	return s.store.HasVoted(ctx, id, voter)
}

// settle loads id and persists any pending time-driven transition.
func (s *Service) settle(ctx context.Context, id domain.ProposalID) (Proposal, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return Proposal{}, err
	}
	next := p.StateAt(requestcontext.Now(ctx), s.params)
	if next == p.State {
		return p, nil
	}
	return s.transition(ctx, p, next)
}

func (s *Service) transition(ctx context.Context, p Proposal, next State, attributes ...any) (Proposal, error) {
	previous := p.State
	p.State = next
	if err := s.store.Update(ctx, p); err != nil {
		return Proposal{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update proposal")
	}
	event := audit.EventProposalFinalized
	switch next {
	case StateQueued:
		event = audit.EventProposalQueued
	case StateExecuted:
		event = audit.EventProposalExecuted
	}
	s.logAudit(ctx, event, append([]any{
		"subject", p.ID.String(),
		"kind", string(p.Kind),
		"from", string(previous),
		"to", string(next),
		"for_votes", p.ForVotes,
		"against_votes", p.AgainstVotes,
	}, attributes...)...)
	s.countTransition(ctx, next)
	return p, nil
}

func (s *Service) countTransition(ctx context.Context, state State) {
	if s.metrics == nil {
		return
	}
	tx.AfterCommit(ctx, func(context.Context) {
		s.metrics.IncProposalTransition(string(state))
	})
}

func (s *Service) find(ctx context.Context, id domain.ProposalID) (Proposal, error) {
	p, err := s.store.Find(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Proposal{}, dErrors.Newf(dErrors.CodeNotFound, "proposal %s not found", id)
	}
	if err != nil {
		return Proposal{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load proposal")
	}
	return p, nil
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, attributes ...any) {
	observability.LogAudit(ctx, s.logger, s.publisher, component, event, attributes...)
}
