package token

import (
	"context"

	"unykorn/pkg/domain"
	"unykorn/pkg/platform/sentinel"
	"unykorn/pkg/platform/tx"
)

// Store persists balances, locks, supply and pack tiers.
type Store interface {
	Account(ctx context.Context, who domain.Address) Account
	PutAccount(ctx context.Context, acct Account)
	TotalSupply(ctx context.Context) domain.Amount
	SetTotalSupply(ctx context.Context, supply domain.Amount)
	Tier(ctx context.Context, id domain.TierID) (PackTier, error)
	PutTier(ctx context.Context, tier PackTier)
	PackProceeds(ctx context.Context) domain.Amount
	SetPackProceeds(ctx context.Context, total domain.Amount)
}

// InMemoryStore is the journaled map store. Not safe for concurrent use.
type InMemoryStore struct {
	accounts map[domain.Address]Account
	tiers    map[domain.TierID]PackTier
	supply   domain.Amount
	proceeds domain.Amount
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		accounts: make(map[domain.Address]Account),
		tiers:    make(map[domain.TierID]PackTier),
	}
}

func (s *InMemoryStore) Account(_ context.Context, who domain.Address) Account {
	acct, ok := s.accounts[who]
	if !ok {
		return Account{Owner: who}
	}
	return acct
}

func (s *InMemoryStore) PutAccount(ctx context.Context, acct Account) {
	tx.SetKey(ctx, s.accounts, acct.Owner, acct)
}

func (s *InMemoryStore) TotalSupply(_ context.Context) domain.Amount {
	return s.supply
}

func (s *InMemoryStore) SetTotalSupply(ctx context.Context, supply domain.Amount) {
	tx.Assign(ctx, &s.supply, supply)
}

func (s *InMemoryStore) Tier(_ context.Context, id domain.TierID) (PackTier, error) {
	tier, ok := s.tiers[id]
	if !ok {
		return PackTier{}, sentinel.ErrNotFound
	}
	return tier, nil
}

func (s *InMemoryStore) PutTier(ctx context.Context, tier PackTier) {
	tx.SetKey(ctx, s.tiers, tier.ID, tier)
}

func (s *InMemoryStore) PackProceeds(_ context.Context) domain.Amount {
	return s.proceeds
}

func (s *InMemoryStore) SetPackProceeds(ctx context.Context, total domain.Amount) {
	tx.Assign(ctx, &s.proceeds, total)
}

// SumBalances adds every balance. Used to check supply conservation.
func (s *InMemoryStore) SumBalances() domain.Amount {
	var total domain.Amount
	for _, acct := range s.accounts {
		total += acct.Balance
	}
	return total
}
