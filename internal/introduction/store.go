package introduction

import (
	"context"

	"unykorn/pkg/domain"
	"unykorn/pkg/platform/sentinel"
	"unykorn/pkg/platform/tx"
)

type Store interface {
	NextID(ctx context.Context) domain.IntroductionID
	Create(ctx context.Context, intro Introduction) error
	Update(ctx context.Context, intro Introduction) error
	Find(ctx context.Context, id domain.IntroductionID) (Introduction, error)
	FindByPair(ctx context.Context, pair Pair) (Introduction, error)
	ListByIntroducer(ctx context.Context, introducer domain.Address) []Introduction
}

// InMemoryStore is the journaled map store. Not safe for concurrent use.
type InMemoryStore struct {
	intros       map[domain.IntroductionID]Introduction
	byPair       map[Pair]domain.IntroductionID
	byIntroducer map[domain.Address][]domain.IntroductionID
	lastID       domain.IntroductionID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		intros:       make(map[domain.IntroductionID]Introduction),
		byPair:       make(map[Pair]domain.IntroductionID),
		byIntroducer: make(map[domain.Address][]domain.IntroductionID),
	}
}

func (s *InMemoryStore) NextID(ctx context.Context) domain.IntroductionID {
	tx.Assign(ctx, &s.lastID, s.lastID+1)
	return s.lastID
}

func (s *InMemoryStore) Create(ctx context.Context, intro Introduction) error {
	pair := PairOf(intro.A, intro.B)
	if _, ok := s.byPair[pair]; ok {
		return sentinel.ErrConflict
	}
	tx.SetKey(ctx, s.intros, intro.ID, intro)
	tx.SetKey(ctx, s.byPair, pair, intro.ID)
	ids := append(append([]domain.IntroductionID{}, s.byIntroducer[intro.Introducer]...), intro.ID)
	tx.SetKey(ctx, s.byIntroducer, intro.Introducer, ids)
	return nil
}

func (s *InMemoryStore) Update(ctx context.Context, intro Introduction) error {
	if _, ok := s.intros[intro.ID]; !ok {
		return sentinel.ErrNotFound
	}
	tx.SetKey(ctx, s.intros, intro.ID, intro)
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, id domain.IntroductionID) (Introduction, error) {
	intro, ok := s.intros[id]
	if !ok {
		return Introduction{}, sentinel.ErrNotFound
	}
	return intro, nil
}

func (s *InMemoryStore) FindByPair(ctx context.Context, pair Pair) (Introduction, error) {
	id, ok := s.byPair[pair]
	if !ok {
		return Introduction{}, sentinel.ErrNotFound
	}
	return s.Find(ctx, id)
}

func (s *InMemoryStore) ListByIntroducer(_ context.Context, introducer domain.Address) []Introduction {
	ids := s.byIntroducer[introducer]
	out := make([]Introduction, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.intros[id])
	}
	return out
}
