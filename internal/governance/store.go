package governance

import (
	"context"
	"sort"

	"unykorn/pkg/domain"
	"unykorn/pkg/platform/sentinel"
	"unykorn/pkg/platform/tx"
)

type Store interface {
	NextID(ctx context.Context) domain.ProposalID
	Create(ctx context.Context, p Proposal) error
	Update(ctx context.Context, p Proposal) error
	Find(ctx context.Context, id domain.ProposalID) (Proposal, error)
	List(ctx context.Context) []Proposal
	HasVoted(ctx context.Context, id domain.ProposalID, voter domain.Address) bool
	RecordVote(ctx context.Context, id domain.ProposalID, voter domain.Address)
}

type voteKey struct {
	id    domain.ProposalID
	voter domain.Address
}

// InMemoryStore is the journaled map store. Not safe for concurrent use.
type InMemoryStore struct {
	proposals map[domain.ProposalID]Proposal
	votes     map[voteKey]struct{}
	lastID    domain.ProposalID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		proposals: make(map[domain.ProposalID]Proposal),
		votes:     make(map[voteKey]struct{}),
	}
}

func (s *InMemoryStore) NextID(ctx context.Context) domain.ProposalID {
	tx.Assign(ctx, &s.lastID, s.lastID+1)
	return s.lastID
}

func (s *InMemoryStore) Create(ctx context.Context, p Proposal) error {
	if _, ok := s.proposals[p.ID]; ok {
		return sentinel.ErrConflict
	}
	tx.SetKey(ctx, s.proposals, p.ID, p)
	return nil
}

func (s *InMemoryStore) Update(ctx context.Context, p Proposal) error {
	if _, ok := s.proposals[p.ID]; !ok {
		return sentinel.ErrNotFound
	}
	tx.SetKey(ctx, s.proposals, p.ID, p)
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, id domain.ProposalID) (Proposal, error) {
	p, ok := s.proposals[id]
	if !ok {
		return Proposal{}, sentinel.ErrNotFound
	}
	return p, nil
}

// List returns every proposal ordered by id.
func (s *InMemoryStore) List(_ context.Context) []Proposal {
	out := make([]Proposal, 0, len(s.proposals))
	for _, p := range s.proposals {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *InMemoryStore) HasVoted(_ context.Context, id domain.ProposalID, voter domain.Address) bool {
	_, ok := s.votes[voteKey{id, voter}]
	return ok
}

func (s *InMemoryStore) RecordVote(ctx context.Context, id domain.ProposalID, voter domain.Address) {
	tx.SetKey(ctx, s.votes, voteKey{id, voter}, struct{}{})
}
