// Package revenue routes commerce payments: merchant offers with first-touch
// referral attribution, and a withholding-tax distributor.
package revenue

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"unykorn/internal/access"
	"unykorn/internal/platform/observability"
	"unykorn/pkg/domain"
	dErrors "unykorn/pkg/domain-errors"
	"unykorn/pkg/platform/audit"
	"unykorn/pkg/platform/sentinel"
	"unykorn/pkg/platform/tx"
	"unykorn/pkg/requestcontext"
)

const component = "revenue"

// Tokens is the payment ledger. Transfer applies the ledger's burn.
type Tokens interface {
	BalanceOf(ctx context.Context, who domain.Address) domain.Amount
	Transfer(ctx context.Context, from, to domain.Address, amount domain.Amount) (domain.Amount, error)
}

// Router sells merchant offers and splits each payment.
type Router struct {
	store     Store
	acl       *access.Control
	tokens    Tokens
	split     Split
	platform  domain.Address
	logger    *slog.Logger
	publisher observability.AuditPublisher
}

type Option func(*Router)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

func WithAuditPublisher(p observability.AuditPublisher) Option {
	return func(r *Router) {
		r.publisher = p
	}
}

func NewRouter(store Store, acl *access.Control, tokens Tokens, split Split, platform domain.Address, opts ...Option) (*Router, error) {
	if store == nil {
		return nil, errors.New("revenue store is required")
	}
	if acl == nil {
		return nil, errors.New("access control is required")
	}
	if tokens == nil {
		return nil, errors.New("token ledger is required")
	}
	if platform.IsZero() {
		return nil, errors.New("platform address is required")
	}
	if err := split.Validate(); err != nil {
		return nil, err
	}
	r := &Router{store: store, acl: acl, tokens: tokens, split: split, platform: platform}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Router) ACL() *access.Control {
	return r.acl
}

func (r *Router) Allocation() Split {
	return r.split
}

func (r *Router) Platform() domain.Address {
	return r.platform
}

// CreateOffer lists a new offer for merchant.
func (r *Router) CreateOffer(ctx context.Context, merchant domain.Address, title, description string, price domain.Amount) (domain.OfferID, error) {
	if err := r.acl.Require(domain.RoleMerchant, merchant); err != nil {
		return 0, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "offer title is required")
	}
	if price == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "offer price must be positive")
	}
	offer := Offer{
		ID:          r.store.NextOfferID(ctx),
		Merchant:    merchant,
		Title:       title,
		Description: strings.TrimSpace(description),
		Price:       price,
		Active:      true,
		CreatedAt:   requestcontext.Now(ctx),
	}
	if err := r.store.CreateOffer(ctx, offer); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create offer")
	}
	r.logAudit(ctx, audit.EventOfferCreated,
		"subject", offer.ID.String(),
		"actor", merchant.String(),
		"price", price,
		"title", title,
	)
	return offer.ID, nil
}

// DeactivateOffer takes an offer off sale. Allowed for the owning merchant and admins.
func (r *Router) DeactivateOffer(ctx context.Context, caller domain.Address, id domain.OfferID) error {
	offer, err := r.Offer(ctx, id)
	if err != nil {
		return err
	}
	if caller != offer.Merchant && !r.acl.Has(domain.RoleAdmin, caller) {
		return dErrors.New(dErrors.CodeForbidden, "only the merchant or an admin can deactivate an offer")
	}
	if !offer.Active {
		return dErrors.New(dErrors.CodeInvalidState, "offer already inactive")
	}
	offer.Active = false
	if err := r.store.UpdateOffer(ctx, offer); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate offer")
	}
	r.logAudit(ctx, audit.EventOfferDeactivated,
		"subject", id.String(),
		"actor", caller.String(),
	)
	return nil
}

func (r *Router) Offer(ctx context.Context, id domain.OfferID) (Offer, error) {
	offer, err := r.store.FindOffer(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Offer{}, dErrors.Newf(dErrors.CodeNotFound, "offer %s not found", id)
	}
	if err != nil {
		return Offer{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load offer")
	}
	return offer, nil
}

// ReferrerOf returns the buyer's permanent referrer, if one was recorded.
func (r *Router) ReferrerOf(ctx context.Context, buyer domain.Address) (domain.Address, bool) {
	return r.store.Referrer(ctx, buyer)
}

// Purchase buys offer id for buyer and pays each share with a token transfer.
// The first referrer seen for a buyer is kept forever; later referrer
// arguments are ignored.
func (r *Router) Purchase(ctx context.Context, buyer domain.Address, id domain.OfferID, referrer domain.Address) (Receipt, error) {
	offer, err := r.Offer(ctx, id)
	if err != nil {
		return Receipt{}, err
	}
	if !offer.Active {
		return Receipt{}, dErrors.Newf(dErrors.CodeInvalidState, "offer %s is not active", id)
	}
	if balance := r.tokens.BalanceOf(ctx, buyer); balance < offer.Price {
		return Receipt{}, dErrors.Newf(dErrors.CodeInsufficientFunds, "balance %s below price %s", balance, offer.Price)
	}

	ref, known := r.store.Referrer(ctx, buyer)
	if !known && !referrer.IsZero() && referrer != buyer {
		if err := r.store.SetReferrer(ctx, buyer, referrer); err != nil {
			return Receipt{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record referrer")
		}
		ref, known = referrer, true
		r.logAudit(ctx, audit.EventReferrerRecorded,
			"subject", buyer.String(),
			"referrer", referrer.String(),
		)
	}

	receipt := Receipt{Buyer: buyer, OfferID: id}
	if known {
		receipt.Referrer = ref
	}
	receipt.MerchantShare, receipt.PlatformShare, receipt.ReferrerShare = r.split.Shares(offer.Price, known)
	if receipt.Total() != offer.Price {
		return Receipt{}, dErrors.New(dErrors.CodeConservation, "purchase shares do not sum to price")
	}

	legs := []struct {
		to     domain.Address
		amount domain.Amount
	}{
		{offer.Merchant, receipt.MerchantShare},
		{r.platform, receipt.PlatformShare},
		{receipt.Referrer, receipt.ReferrerShare},
	}
	for _, leg := range legs {
		if leg.amount == 0 {
			continue
		}
		burned, err := r.tokens.Transfer(ctx, buyer, leg.to, leg.amount)
		if err != nil {
			return Receipt{}, err
		}
		receipt.Burned += burned
	}

	offer.TotalSales++
	if err := r.store.UpdateOffer(ctx, offer); err != nil {
		return Receipt{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record sale")
	}
	r.logAudit(ctx, audit.EventPurchaseCompleted,
		"subject", buyer.String(),
		"amount", offer.Price,
		"offer_id", id.String(),
		"merchant_share", receipt.MerchantShare,
		"platform_share", receipt.PlatformShare,
		"referrer_share", receipt.ReferrerShare,
		"burned", receipt.Burned,
	)
	return receipt, nil
}

// SetAllocation replaces the purchase split.
func (r *Router) SetAllocation(ctx context.Context, caller domain.Address, split Split) error {
	if err := r.acl.Require(domain.RoleGovernor, caller); err != nil {
		return err
	}
	if err := split.Validate(); err != nil {
		return err
	}
	tx.Assign(ctx, &r.split, split)
	r.logAudit(ctx, audit.EventAllocationChanged,
		"subject", component,
		"actor", caller.String(),
		"merchant_bps", uint32(split.MerchantBps),
		"platform_bps", uint32(split.PlatformBps),
		"referrer_bps", uint32(split.ReferrerBps),
	)
	return nil
}

func (r *Router) logAudit(ctx context.Context, event audit.AuditEvent, attributes ...any) {
	observability.LogAudit(ctx, r.logger, r.publisher, component, event, attributes...)
}
