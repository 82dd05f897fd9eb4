package eligibility

import (
	"context"

	"unykorn/pkg/domain"
	"unykorn/pkg/platform/sentinel"
	"unykorn/pkg/platform/tx"
)

// Store persists investor records and the aggregate foreign counter.
type Store interface {
	Find(ctx context.Context, who domain.Address) (Investor, error)
	Create(ctx context.Context, inv Investor) error
	Update(ctx context.Context, inv Investor) error
	// Count is the number of non-system investors.
	Count(ctx context.Context) int
	TotalForeign(ctx context.Context) domain.Amount
	SetTotalForeign(ctx context.Context, total domain.Amount)
}

// InMemoryStore keeps records in maps. Every mutation is journaled so the
// enclosing transaction can roll it back. Not safe for concurrent use; the
// protocol serializes access.
type InMemoryStore struct {
	investors    map[domain.Address]Investor
	system       int
	totalForeign domain.Amount
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{investors: make(map[domain.Address]Investor)}
}

func (s *InMemoryStore) Find(_ context.Context, who domain.Address) (Investor, error) {
	inv, ok := s.investors[who]
	if !ok {
		return Investor{}, sentinel.ErrNotFound
	}
	return inv, nil
}

func (s *InMemoryStore) Create(ctx context.Context, inv Investor) error {
	if _, ok := s.investors[inv.Identity]; ok {
		return sentinel.ErrConflict
	}
	tx.SetKey(ctx, s.investors, inv.Identity, inv)
	if inv.System {
		tx.Assign(ctx, &s.system, s.system+1)
	}
	return nil
}

func (s *InMemoryStore) Update(ctx context.Context, inv Investor) error {
	prev, ok := s.investors[inv.Identity]
	if !ok {
		return sentinel.ErrNotFound
	}
	inv.System = prev.System
	tx.SetKey(ctx, s.investors, inv.Identity, inv)
	return nil
}

func (s *InMemoryStore) Count(_ context.Context) int {
	return len(s.investors) - s.system
}

func (s *InMemoryStore) TotalForeign(_ context.Context) domain.Amount {
	return s.totalForeign
}

func (s *InMemoryStore) SetTotalForeign(ctx context.Context, total domain.Amount) {
	tx.Assign(ctx, &s.totalForeign, total)
}
