package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance:
	// investor onboarding, KYC/AML flags, foreign investment, supply changes,
	// tax withholding.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers privilege and control changes: role grants,
	// governance execution, blacklisting.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine ledger activity that can be sampled
	// or aggregated with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from ledger components after a transaction commits. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// Component is the ledger component that emitted the event (token, revenue, ...).
	Component string
	// Subject is the primary identity or entity the event is about.
	Subject string
	Action  string
	// ActorID is the caller that submitted the transaction when different from Subject.
	ActorID   string
	Amount    string
	Reference string
	Reason    string
	RequestID string
	// Attributes carries event-specific detail (purpose tags, proposal kinds, beacon ids).
	Attributes map[string]string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Reader is implemented by stores that can be queried.
type Reader interface {
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

type AuditEvent string

const (
	// Access control events
	EventRoleGranted AuditEvent = "role_granted"
	EventRoleRevoked AuditEvent = "role_revoked"

	// Eligibility events
	EventInvestorAdded               AuditEvent = "investor_added"
	EventKYCUpdated                  AuditEvent = "kyc_updated"
	EventAMLUpdated                  AuditEvent = "aml_updated"
	EventBlacklistUpdated            AuditEvent = "blacklist_updated"
	EventForeignInvestmentRecorded   AuditEvent = "foreign_investment_recorded"
	EventInvestmentRecorded          AuditEvent = "investment_recorded"
	EventEligibilityLimitsConfigured AuditEvent = "eligibility_limits_configured"

	// Token events
	EventTokensMinted       AuditEvent = "tokens_minted"
	EventTokensBurned       AuditEvent = "tokens_burned"
	EventTokensTransferred  AuditEvent = "tokens_transferred"
	EventPackPurchased      AuditEvent = "pack_purchased"
	EventPackTierConfigured AuditEvent = "pack_tier_configured"
	EventUtilityUsed        AuditEvent = "utility_used"
	EventBurnRateChanged    AuditEvent = "burn_rate_changed"
	EventAccountUnlocked    AuditEvent = "account_unlocked"

	// Introduction events
	EventIntroductionCreated   AuditEvent = "introduction_created"
	EventIntroductionConfirmed AuditEvent = "introduction_confirmed"
	EventCommissionPaid        AuditEvent = "commission_paid"
	EventCommissionChanged     AuditEvent = "commission_changed"

	// Revenue events
	EventOfferCreated      AuditEvent = "offer_created"
	EventOfferDeactivated  AuditEvent = "offer_deactivated"
	EventPurchaseCompleted AuditEvent = "purchase_completed"
	EventReferrerRecorded  AuditEvent = "referrer_recorded"
	EventAllocationChanged AuditEvent = "allocation_changed"
	EventTaxDistributed    AuditEvent = "tax_distributed"
	EventTaxRatesChanged   AuditEvent = "tax_rates_changed"

	// Governance events
	EventProposalCreated   AuditEvent = "proposal_created"
	EventVoteCast          AuditEvent = "vote_cast"
	EventProposalFinalized AuditEvent = "proposal_finalized"
	EventExecutionSigned   AuditEvent = "execution_signed"
	EventProposalQueued    AuditEvent = "proposal_queued"
	EventProposalExecuted  AuditEvent = "proposal_executed"

	// Presence events
	EventBeaconCreated     AuditEvent = "beacon_created"
	EventBeaconDeactivated AuditEvent = "beacon_deactivated"
	EventCheckInRecorded   AuditEvent = "checkin_recorded"
	EventRewardChanged     AuditEvent = "reward_changed"

	// Settlement events
	EventSettlementMinted    AuditEvent = "settlement_minted"
	EventSettlementRedeemed  AuditEvent = "settlement_redeemed"
	EventSettlementDuplicate AuditEvent = "settlement_duplicate"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	// Compliance events - require tamper-proof storage
	EventInvestorAdded:             CategoryCompliance,
	EventKYCUpdated:                CategoryCompliance,
	EventAMLUpdated:                CategoryCompliance,
	EventForeignInvestmentRecorded: CategoryCompliance,
	EventInvestmentRecorded:        CategoryCompliance,
	EventTokensMinted:              CategoryCompliance,
	EventTokensBurned:              CategoryCompliance,
	EventPackPurchased:             CategoryCompliance,
	EventUtilityUsed:               CategoryCompliance,
	EventTaxDistributed:            CategoryCompliance,
	EventSettlementMinted:          CategoryCompliance,
	EventSettlementRedeemed:        CategoryCompliance,

	// Security events - privilege and parameter control
	EventRoleGranted:                 CategorySecurity,
	EventRoleRevoked:                 CategorySecurity,
	EventBlacklistUpdated:            CategorySecurity,
	EventEligibilityLimitsConfigured: CategorySecurity,
	EventBurnRateChanged:             CategorySecurity,
	EventCommissionChanged:           CategorySecurity,
	EventAllocationChanged:           CategorySecurity,
	EventTaxRatesChanged:             CategorySecurity,
	EventRewardChanged:               CategorySecurity,
	EventExecutionSigned:             CategorySecurity,
	EventProposalQueued:              CategorySecurity,
	EventProposalExecuted:            CategorySecurity,
	EventSettlementDuplicate:         CategorySecurity,

	// Operations events - routine activity, can be sampled
	EventTokensTransferred:     CategoryOperations,
	EventPackTierConfigured:    CategoryOperations,
	EventAccountUnlocked:       CategoryOperations,
	EventIntroductionCreated:   CategoryOperations,
	EventIntroductionConfirmed: CategoryOperations,
	EventCommissionPaid:        CategoryOperations,
	EventOfferCreated:          CategoryOperations,
	EventOfferDeactivated:      CategoryOperations,
	EventPurchaseCompleted:     CategoryOperations,
	EventReferrerRecorded:      CategoryOperations,
	EventProposalCreated:       CategoryOperations,
	EventVoteCast:              CategoryOperations,
	EventProposalFinalized:     CategoryOperations,
	EventBeaconCreated:         CategoryOperations,
	EventBeaconDeactivated:     CategoryOperations,
	EventCheckInRecorded:       CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Categories lists every category in routing order.
func Categories() []EventCategory {
	return []EventCategory{CategoryCompliance, CategorySecurity, CategoryOperations}
}

// Topic returns the broker topic for a category under prefix.
func Topic(prefix string, category EventCategory) string {
	return prefix + "." + string(category)
}
