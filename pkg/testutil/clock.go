package testutil

import (
	"context"
	"time"

	"unykorn/pkg/domain"
	"unykorn/pkg/requestcontext"
)

// Clock is a manually advanced transaction clock for ledger tests.
type Clock struct {
	now time.Time
}

// NewClock starts a clock at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t.UTC()}
}

// Now returns the current instant.
func (c *Clock) Now() time.Time { return c.now }

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// Ctx returns a context that pins the transaction time to the clock.
func (c *Clock) Ctx() context.Context {
	return requestcontext.WithTime(context.Background(), c.now)
}

// Addr returns a deterministic identity whose last byte is n.
func Addr(n byte) domain.Address {
	var a domain.Address
	a[len(a)-1] = n
	return a
}
