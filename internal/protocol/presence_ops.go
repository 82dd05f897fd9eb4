package protocol

import (
	"context"

	"unykorn/internal/presence"
	"unykorn/pkg/domain"
)

func (p *Protocol) CreateBeacon(ctx context.Context, caller domain.Address, spec presence.BeaconSpec) (domain.BeaconID, error) {
	var id domain.BeaconID
	err := p.RunInTx(ctx, "create_beacon", func(ctx context.Context) (err error) {
		id, err = p.presence.CreateBeacon(ctx, caller, spec)
		return err
	})
	return id, err
}

func (p *Protocol) DeactivateBeacon(ctx context.Context, caller domain.Address, id domain.BeaconID) error {
	return p.RunInTx(ctx, "deactivate_beacon", func(ctx context.Context) error {
		return p.presence.DeactivateBeacon(ctx, caller, id)
	})
}

// RecordCheckIn accepts a geofenced daily check-in and mints its reward in
// the same transaction.
func (p *Protocol) RecordCheckIn(ctx context.Context, user domain.Address, id domain.BeaconID, method presence.Method, at presence.Coordinate) (presence.CheckIn, error) {
	var c presence.CheckIn
	err := p.RunInTx(ctx, "record_checkin", func(ctx context.Context) (err error) {
		c, err = p.presence.RecordCheckIn(ctx, user, id, method, at)
		return err
	})
	return c, err
}

func (p *Protocol) PresenceStats(ctx context.Context, user domain.Address) presence.Stats {
	return view(p, ctx, func(ctx context.Context) presence.Stats {
		return p.presence.Stats(ctx, user)
	})
}

func (p *Protocol) DefaultReward() domain.Amount {
	return view(p, context.Background(), func(context.Context) domain.Amount {
		return p.presence.DefaultReward()
	})
}

func (p *Protocol) CheckIns(ctx context.Context, user domain.Address) []presence.CheckIn {
	return view(p, ctx, func(ctx context.Context) []presence.CheckIn {
		return p.presence.CheckIns(ctx, user)
	})
}
