package protocol

import (
	"context"

	"unykorn/internal/governance"
	"unykorn/pkg/domain"
)

func (p *Protocol) Propose(ctx context.Context, proposer domain.Address, description string, payload governance.Payload) (domain.ProposalID, error) {
	var id domain.ProposalID
	err := p.RunInTx(ctx, "propose", func(ctx context.Context) (err error) {
		id, err = p.governance.Propose(ctx, proposer, description, payload)
		return err
	})
	return id, err
}

// ProposeRaw decodes a JSON payload of the given kind and proposes it.
func (p *Protocol) ProposeRaw(ctx context.Context, proposer domain.Address, kind governance.Kind, description string, raw []byte) (domain.ProposalID, error) {
	var id domain.ProposalID
	err := p.RunInTx(ctx, "propose", func(ctx context.Context) (err error) {
		id, err = p.governance.ProposeRaw(ctx, proposer, kind, description, raw)
		return err
	})
	return id, err
}

func (p *Protocol) Vote(ctx context.Context, voter domain.Address, id domain.ProposalID, support bool) error {
	return p.RunInTx(ctx, "vote", func(ctx context.Context) error {
		return p.governance.Vote(ctx, voter, id, support)
	})
}

// Finalize records the outcome of a proposal whose voting period has ended.
func (p *Protocol) Finalize(ctx context.Context, id domain.ProposalID) (governance.State, error) {
	var state governance.State
	err := p.RunInTx(ctx, "finalize", func(ctx context.Context) (err error) {
		state, err = p.governance.Finalize(ctx, id)
		return err
	})
	return state, err
}

func (p *Protocol) SignExecution(ctx context.Context, executor domain.Address, id domain.ProposalID) error {
	return p.RunInTx(ctx, "sign_execution", func(ctx context.Context) error {
		return p.governance.SignExecution(ctx, executor, id)
	})
}

// ExecuteProposal applies a queued proposal's payload to its target
// component. The state change and the parameter change commit together.
func (p *Protocol) ExecuteProposal(ctx context.Context, caller domain.Address, id domain.ProposalID) error {
	return p.RunInTx(ctx, "execute_proposal", func(ctx context.Context) error {
		return p.governance.ExecuteProposal(ctx, caller, id)
	})
}

func (p *Protocol) Proposal(ctx context.Context, id domain.ProposalID) (governance.Proposal, error) {
	return lookup(p, ctx, func(ctx context.Context) (governance.Proposal, error) {
		return p.governance.Proposal(ctx, id)
	})
}

func (p *Protocol) Proposals(ctx context.Context) []governance.Proposal {
	return view(p, ctx, p.governance.Proposals)
}
