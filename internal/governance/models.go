package governance

import (
	"time"

	"unykorn/pkg/domain"
)

// State of a proposal. Rejected, Executed and Expired are terminal.
type State string

const (
	StatePending  State = "pending"
	StatePassed   State = "passed"
	StateRejected State = "rejected"
	StateQueued   State = "queued"
	StateExecuted State = "executed"
	StateExpired  State = "expired"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateRejected || s == StateExecuted || s == StateExpired
}

// Params configures the proposal lifecycle.
type Params struct {
	VotingPeriod       time.Duration
	ExecutionDelay     time.Duration
	ExecutionWindow    time.Duration
	ProposalThreshold  domain.Amount
	Quorum             domain.Amount
	RequiredSignatures int
}

// Proposal is a parameter change moving through vote, signatures and timelock.
type Proposal struct {
	ID             domain.ProposalID
	Kind           Kind
	Description    string
	Payload        Payload
	Proposer       domain.Address
	ForVotes       domain.Amount
	AgainstVotes   domain.Amount
	CreatedAt      time.Time
	VotingDeadline time.Time
	ExecutionETA   time.Time
	ExecutedAt     time.Time
	Signatures     []domain.Address
	State          State
}

// SignedBy reports whether executor has already signed.
func (p Proposal) SignedBy(executor domain.Address) bool {
	for _, s := range p.Signatures {
		if s == executor {
			return true
		}
	}
	return false
}

// StateAt evaluates the time-driven transitions without persisting them: a
// pending proposal resolves once voting closes, and a queued proposal expires
// once its execution window has passed.
func (p Proposal) StateAt(now time.Time, params Params) State {
	switch p.State {
	case StatePending:
		if !now.After(p.VotingDeadline) {
			return StatePending
		}
		if p.ForVotes > p.AgainstVotes && p.ForVotes >= params.Quorum {
			return StatePassed
		}
		return StateRejected
	case StateQueued:
		if now.After(p.ExecutionETA.Add(params.ExecutionWindow)) {
			return StateExpired
		}
	}
	return p.State
}
