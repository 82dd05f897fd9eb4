// Package access implements the per-component access list: role -> set of
// principals. Every privileged ledger operation calls Require at its entry.
package access

import (
	"context"
	"log/slog"
	"sort"

	"unykorn/internal/platform/observability"
	"unykorn/pkg/domain"
	dErrors "unykorn/pkg/domain-errors"
	"unykorn/pkg/platform/audit"
	"unykorn/pkg/platform/tx"
)

// Control is one component's access list.
type Control struct {
	component string
	members   map[domain.Role]map[domain.Address]struct{}
	logger    *slog.Logger
	publisher observability.AuditPublisher
}

// Option configures a Control.
type Option func(*Control)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Control) {
		c.logger = logger
	}
}

func WithAuditPublisher(p observability.AuditPublisher) Option {
	return func(c *Control) {
		c.publisher = p
	}
}

// New creates an access list for component with admin as its first admin.
func New(component string, admin domain.Address, opts ...Option) *Control {
	c := &Control{
		component: component,
		members:   make(map[domain.Role]map[domain.Address]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if !admin.IsZero() {
		c.add(domain.RoleAdmin, admin)
	}
	return c
}

// Component names the owning component.
func (c *Control) Component() string {
	return c.component
}

// Has reports whether who holds role.
func (c *Control) Has(role domain.Role, who domain.Address) bool {
	_, ok := c.members[role][who]
	return ok
}

// Require fails CodeForbidden unless who holds role.
func (c *Control) Require(role domain.Role, who domain.Address) error {
	if !c.Has(role, who) {
		return dErrors.Newf(dErrors.CodeForbidden, "%s: %s lacks role %s", c.component, who.Short(), role)
	}
	return nil
}

// Members lists holders of role in byte order.
func (c *Control) Members(role domain.Role) []domain.Address {
	out := make([]domain.Address, 0, len(c.members[role]))
	for a := range c.members[role] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i][:]) < string(out[j][:])
	})
	return out
}

// Grant gives role to who. Caller must hold admin.
func (c *Control) Grant(ctx context.Context, caller domain.Address, role domain.Role, who domain.Address) error {
	if err := c.Require(domain.RoleAdmin, caller); err != nil {
		return err
	}
	if who.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "cannot grant a role to the zero address")
	}
	if c.Has(role, who) {
		return nil
	}
	c.add(role, who)
	tx.Record(ctx, func() { c.remove(role, who) })
	observability.LogAudit(ctx, c.logger, c.publisher, c.component, audit.EventRoleGranted,
		"subject", who.String(),
		"actor", caller.String(),
		"role", string(role),
	)
	return nil
}

// Revoke removes role from who. Caller must hold admin. The last admin cannot
// be revoked.
func (c *Control) Revoke(ctx context.Context, caller domain.Address, role domain.Role, who domain.Address) error {
	if err := c.Require(domain.RoleAdmin, caller); err != nil {
		return err
	}
	if !c.Has(role, who) {
		return nil
	}
	if role == domain.RoleAdmin && len(c.members[domain.RoleAdmin]) == 1 {
		return dErrors.New(dErrors.CodeInvalidState, "cannot revoke the last admin")
	}
	c.remove(role, who)
	tx.Record(ctx, func() { c.add(role, who) })
	observability.LogAudit(ctx, c.logger, c.publisher, c.component, audit.EventRoleRevoked,
		"subject", who.String(),
		"actor", caller.String(),
		"role", string(role),
	)
	return nil
}

// Bootstrap grants role without an admin check. Used only while wiring a
// deployment, before any transaction runs.
func (c *Control) Bootstrap(role domain.Role, who domain.Address) {
	c.add(role, who)
}

func (c *Control) add(role domain.Role, who domain.Address) {
	set, ok := c.members[role]
	if !ok {
		set = make(map[domain.Address]struct{})
		c.members[role] = set
	}
	set[who] = struct{}{}
}

func (c *Control) remove(role domain.Role, who domain.Address) {
	delete(c.members[role], who)
}
