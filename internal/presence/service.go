// Package presence registers geofenced beacons and rewards daily check-ins
// with minted tokens.
package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

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

const component = "presence"

// Minter credits rewards. The registry calls it with its own identity, which
// must hold the minter role on the token.
type Minter interface {
	Mint(ctx context.Context, caller, to domain.Address, amount domain.Amount, reference string) error
}

type Service struct {
	store         Store
	acl           *access.Control
	minter        Minter
	self          domain.Address
	defaultReward domain.Amount
	logger        *slog.Logger
	publisher     observability.AuditPublisher
	metrics       *metrics.Metrics
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

// WithRewards mints check-in rewards through m, presenting self as the minter.
func WithRewards(m Minter, self domain.Address, defaultReward domain.Amount) Option {
	return func(s *Service) {
		s.minter = m
		s.self = self
		s.defaultReward = defaultReward
	}
}

func New(store Store, acl *access.Control, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("presence store is required")
	}
	if acl == nil {
		return nil, errors.New("access control is required")
	}
	s := &Service{store: store, acl: acl}
	for _, opt := range opts {
		opt(s)
	}
	if s.minter != nil && s.self.IsZero() {
		return nil, errors.New("minter identity is required for rewards")
	}
	return s, nil
}

func (s *Service) ACL() *access.Control {
	return s.acl
}

func (s *Service) DefaultReward() domain.Amount {
	return s.defaultReward
}

// CreateBeacon registers a beacon. Caller must hold the registrar role.
func (s *Service) CreateBeacon(ctx context.Context, caller domain.Address, spec BeaconSpec) (domain.BeaconID, error) {
	if err := s.acl.Require(domain.RoleRegistrar, caller); err != nil {
		return 0, err
	}
	label := strings.TrimSpace(spec.Label)
	if label == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "beacon label is required")
	}
	if err := spec.Position.Validate(); err != nil {
		return 0, err
	}
	if spec.RadiusMeters == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "beacon radius must be positive")
	}
	owner := spec.Owner
	if owner.IsZero() {
		owner = caller
	}
	b := Beacon{
		ID:           s.store.NextBeaconID(ctx),
		Label:        label,
		Position:     spec.Position,
		RadiusMeters: spec.RadiusMeters,
		Owner:        owner,
		Reward:       spec.Reward,
		Active:       true,
		CreatedAt:    requestcontext.Now(ctx),
	}
	if err := s.store.CreateBeacon(ctx, b); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create beacon")
	}
	s.logAudit(ctx, audit.EventBeaconCreated,
		"subject", b.ID.String(),
		"actor", caller.String(),
		"label", label,
		"owner", owner.String(),
		"lat", b.Position.Lat,
		"lon", b.Position.Lon,
		"radius_m", b.RadiusMeters,
	)
	return b.ID, nil
}

// DeactivateBeacon stops a beacon from accepting check-ins. Allowed for the
// owner and registrars.
func (s *Service) DeactivateBeacon(ctx context.Context, caller domain.Address, id domain.BeaconID) error {
	b, err := s.Beacon(ctx, id)
	if err != nil {
		return err
	}
	if caller != b.Owner && !s.acl.Has(domain.RoleRegistrar, caller) {
		return dErrors.New(dErrors.CodeForbidden, "only the owner or a registrar can deactivate a beacon")
	}
	if !b.Active {
		return dErrors.New(dErrors.CodeInvalidState, "beacon already inactive")
	}
	b.Active = false
	if err := s.store.UpdateBeacon(ctx, b); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate beacon")
	}
	s.logAudit(ctx, audit.EventBeaconDeactivated,
		"subject", id.String(),
		"actor", caller.String(),
	)
	return nil
}

func (s *Service) Beacon(ctx context.Context, id domain.BeaconID) (Beacon, error) {
	b, err := s.store.FindBeacon(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Beacon{}, dErrors.Newf(dErrors.CodeNotFound, "beacon %s not found", id)
	}
	if err != nil {
		return Beacon{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load beacon")
	}
	return b, nil
}

// RecordCheckIn accepts one check-in per user, beacon and UTC day when the
// reported position lies within the beacon's radius, and mints the reward.
func (s *Service) RecordCheckIn(ctx context.Context, user domain.Address, id domain.BeaconID, method Method, at Coordinate) (CheckIn, error) {
	if user.IsZero() {
		return CheckIn{}, dErrors.New(dErrors.CodeInvalidInput, "user is required")
	}
	method, err := ParseMethod(string(method))
	if err != nil {
		return CheckIn{}, err
	}
	if err := at.Validate(); err != nil {
		return CheckIn{}, err
	}
	b, err := s.Beacon(ctx, id)
	if err != nil {
		return CheckIn{}, err
	}
	if !b.Active {
		return CheckIn{}, dErrors.Newf(dErrors.CodeInvalidState, "beacon %s is inactive", id)
	}
	distance := DistanceMeters(b.Position, at)
	if distance > float64(b.RadiusMeters) {
		return CheckIn{}, dErrors.Newf(dErrors.CodeOutsideGeofence, "%.0fm from beacon %s, radius %dm", distance, id, b.RadiusMeters)
	}

	now := requestcontext.Now(ctx)
	c := CheckIn{
		User:           user,
		BeaconID:       id,
		Day:            domain.DayOf(now),
		Method:         method,
		Position:       at,
		DistanceMeters: distance,
		At:             now,
	}
	if s.minter != nil {
		c.Reward = b.Reward
		if c.Reward == 0 {
			c.Reward = s.defaultReward
		}
	}
	if s.store.HasCheckIn(ctx, CheckInKey{User: user, BeaconID: id, Day: c.Day}) {
		return CheckIn{}, dErrors.New(dErrors.CodeInvalidState, "already checked in today")
	}
	if c.Reward > 0 {
		if err := s.minter.Mint(ctx, s.self, user, c.Reward, rewardReference(c)); err != nil {
			return CheckIn{}, err
		}
	}
	if err := s.store.AddCheckIn(ctx, c); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return CheckIn{}, dErrors.New(dErrors.CodeInvalidState, "already checked in today")
		}
		return CheckIn{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record check-in")
	}
	stats := s.store.Stats(ctx, user).record(c.Day)
	s.store.PutStats(ctx, stats)

	s.logAudit(ctx, audit.EventCheckInRecorded,
		"subject", user.String(),
		"amount", c.Reward,
		"beacon_id", id.String(),
		"method", string(method),
		"day", c.Day.String(),
		"streak", stats.CurrentStreak,
	)
	if s.metrics != nil {
		tx.AfterCommit(ctx, func(context.Context) { s.metrics.IncCheckIns() })
	}
	return c, nil
}

// SetDefaultReward changes the reward for beacons without their own.
func (s *Service) SetDefaultReward(ctx context.Context, caller domain.Address, reward domain.Amount) error {
	if err := s.acl.Require(domain.RoleGovernor, caller); err != nil {
		return err
	}
	tx.Assign(ctx, &s.defaultReward, reward)
	s.logAudit(ctx, audit.EventRewardChanged,
		"subject", component,
		"actor", caller.String(),
		"amount", reward,
	)
	return nil
}

func (s *Service) Stats(ctx context.Context, user domain.Address) Stats {
	return s.store.Stats(ctx, user)
}

func (s *Service) CheckIns(ctx context.Context, user domain.Address) []CheckIn {
	return s.store.CheckIns(ctx, user)
}

func rewardReference(c CheckIn) string {
	return fmt.Sprintf("checkin:%s:%s:%s", c.BeaconID, c.User, c.Day)
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, attributes ...any) {
	observability.LogAudit(ctx, s.logger, s.publisher, component, event, attributes...)
}
