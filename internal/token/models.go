package token

import (
	"time"

	"unykorn/pkg/domain"
)

// MaxBurnRateBps bounds the transfer burn rate governance may set.
const MaxBurnRateBps domain.Bps = 1000

// Phase is the global transfer state.
type Phase string

const (
	PhaseLocked   Phase = "locked"
	PhaseUnlocked Phase = "unlocked"
)

// Account is created implicitly on first credit. A zero LockedUntil means the
// account is not locked.
type Account struct {
	Owner       domain.Address
	Balance     domain.Amount
	LockedUntil time.Time
}

// LockedAt reports whether the account lock is still active at now.
func (a Account) LockedAt(now time.Time) bool {
	return !a.LockedUntil.IsZero() && now.Before(a.LockedUntil)
}

// PackTier is a fixed-price token bundle sold with a lock on the buyer's account.
type PackTier struct {
	ID           domain.TierID
	Price        domain.Amount
	Tokens       domain.Amount
	LockDuration time.Duration
	Active       bool
}

// Params configures a token deployment.
type Params struct {
	BurnRateBps  domain.Bps
	LaunchTime   time.Time
	LockDuration time.Duration
	// ComplianceGated requires both sides of mint and transfer to be eligible.
	ComplianceGated bool
}

// UnlocksAt is the instant transfers open.
func (p Params) UnlocksAt() time.Time {
	return p.LaunchTime.Add(p.LockDuration)
}
