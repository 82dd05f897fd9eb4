package revenue

import (
	"context"

	"unykorn/pkg/domain"
	"unykorn/pkg/platform/sentinel"
	"unykorn/pkg/platform/tx"
)

type Store interface {
	NextOfferID(ctx context.Context) domain.OfferID
	CreateOffer(ctx context.Context, offer Offer) error
	UpdateOffer(ctx context.Context, offer Offer) error
	FindOffer(ctx context.Context, id domain.OfferID) (Offer, error)
	Referrer(ctx context.Context, buyer domain.Address) (domain.Address, bool)
	SetReferrer(ctx context.Context, buyer, referrer domain.Address) error
}

// InMemoryStore is the journaled map store. Not safe for concurrent use.
type InMemoryStore struct {
	offers    map[domain.OfferID]Offer
	referrers map[domain.Address]domain.Address
	lastID    domain.OfferID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		offers:    make(map[domain.OfferID]Offer),
		referrers: make(map[domain.Address]domain.Address),
	}
}

func (s *InMemoryStore) NextOfferID(ctx context.Context) domain.OfferID {
	tx.Assign(ctx, &s.lastID, s.lastID+1)
	return s.lastID
}

func (s *InMemoryStore) CreateOffer(ctx context.Context, offer Offer) error {
	if _, ok := s.offers[offer.ID]; ok {
		return sentinel.ErrConflict
	}
	tx.SetKey(ctx, s.offers, offer.ID, offer)
	return nil
}

func (s *InMemoryStore) UpdateOffer(ctx context.Context, offer Offer) error {
	if _, ok := s.offers[offer.ID]; !ok {
		return sentinel.ErrNotFound
	}
	tx.SetKey(ctx, s.offers, offer.ID, offer)
	return nil
}

func (s *InMemoryStore) FindOffer(_ context.Context, id domain.OfferID) (Offer, error) {
	offer, ok := s.offers[id]
	if !ok {
		return Offer{}, sentinel.ErrNotFound
	}
	return offer, nil
}

func (s *InMemoryStore) Referrer(_ context.Context, buyer domain.Address) (domain.Address, bool) {
	ref, ok := s.referrers[buyer]
	return ref, ok
}

// SetReferrer records the first-touch referrer. A second call for the same
// buyer returns ErrConflict.
func (s *InMemoryStore) SetReferrer(ctx context.Context, buyer, referrer domain.Address) error {
	if _, ok := s.referrers[buyer]; ok {
		return sentinel.ErrConflict
	}
	tx.SetKey(ctx, s.referrers, buyer, referrer)
	return nil
}
