package presence

import (
	"context"

	"unykorn/pkg/domain"
	"unykorn/pkg/platform/sentinel"
	"unykorn/pkg/platform/tx"
)

type Store interface {
	NextBeaconID(ctx context.Context) domain.BeaconID
	CreateBeacon(ctx context.Context, b Beacon) error
	UpdateBeacon(ctx context.Context, b Beacon) error
	FindBeacon(ctx context.Context, id domain.BeaconID) (Beacon, error)
	HasCheckIn(ctx context.Context, key CheckInKey) bool
	AddCheckIn(ctx context.Context, c CheckIn) error
	CheckIns(ctx context.Context, user domain.Address) []CheckIn
	Stats(ctx context.Context, user domain.Address) Stats
	PutStats(ctx context.Context, stats Stats)
}

// InMemoryStore is the journaled map store. Not safe for concurrent use.
type InMemoryStore struct {
	beacons  map[domain.BeaconID]Beacon
	checkins map[CheckInKey]CheckIn
	byUser   map[domain.Address][]CheckInKey
	stats    map[domain.Address]Stats
	lastID   domain.BeaconID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		beacons:  make(map[domain.BeaconID]Beacon),
		checkins: make(map[CheckInKey]CheckIn),
		byUser:   make(map[domain.Address][]CheckInKey),
		stats:    make(map[domain.Address]Stats),
	}
}

func (s *InMemoryStore) NextBeaconID(ctx context.Context) domain.BeaconID {
	tx.Assign(ctx, &s.lastID, s.lastID+1)
	return s.lastID
}

func (s *InMemoryStore) CreateBeacon(ctx context.Context, b Beacon) error {
	if _, ok := s.beacons[b.ID]; ok {
		return sentinel.ErrConflict
	}
	tx.SetKey(ctx, s.beacons, b.ID, b)
	return nil
}

func (s *InMemoryStore) UpdateBeacon(ctx context.Context, b Beacon) error {
	if _, ok := s.beacons[b.ID]; !ok {
		return sentinel.ErrNotFound
	}
	tx.SetKey(ctx, s.beacons, b.ID, b)
	return nil
}

func (s *InMemoryStore) FindBeacon(_ context.Context, id domain.BeaconID) (Beacon, error) {
	b, ok := s.beacons[id]
	if !ok {
		return Beacon{}, sentinel.ErrNotFound
	}
	return b, nil
}

func (s *InMemoryStore) HasCheckIn(_ context.Context, key CheckInKey) bool {
	_, ok := s.checkins[key]
	return ok
}

// AddCheckIn returns ErrAlreadyUsed when the daily slot is taken.
func (s *InMemoryStore) AddCheckIn(ctx context.Context, c CheckIn) error {
	key := CheckInKey{User: c.User, BeaconID: c.BeaconID, Day: c.Day}
	if _, ok := s.checkins[key]; ok {
		return sentinel.ErrAlreadyUsed
	}
	tx.SetKey(ctx, s.checkins, key, c)
	keys := append(append([]CheckInKey{}, s.byUser[c.User]...), key)
	tx.SetKey(ctx, s.byUser, c.User, keys)
	return nil
}

// CheckIns lists a user's check-ins in the order they were recorded.
func (s *InMemoryStore) CheckIns(_ context.Context, user domain.Address) []CheckIn {
	keys := s.byUser[user]
	out := make([]CheckIn, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.checkins[k])
	}
	return out
}

func (s *InMemoryStore) Stats(_ context.Context, user domain.Address) Stats {
	st, ok := s.stats[user]
	if !ok {
		return Stats{User: user}
	}
	return st
}

func (s *InMemoryStore) PutStats(ctx context.Context, stats Stats) {
	tx.SetKey(ctx, s.stats, stats.User, stats)
}
