// Package audit defines the append-only transition log for the donation
// lifecycle. Every successful transition appends exactly one event; failed
// calls never touch the log.
package audit

import (
	"time"

	"aidledger/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose. This
// enables different retention policies and routing downstream.
type EventCategory string

const (
	// CategoryCompliance covers events that move value. These require
	// tamper-proof storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers custody-trail events that do not move value.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted once per successful transition. Keep it transport-agnostic
// so stores and sinks can fan out. Fields not relevant to a given action are
// left at their zero value.
type Event struct {
	Category   EventCategory
	Timestamp  time.Time
	DonationID domain.DonationID
	Action     string

	// Request fields.
	Partner string
	Amount  uint64
	Sponsor domain.AccountID

	// Approval fields. ApproverLabel is a free-text audit annotation; it
	// carries no authorization weight.
	ApproverLabel string
	Beneficiary   domain.AccountID

	// Voucher fields. MerchantLabel is a free-text audit annotation.
	MerchantLabel   string
	Value           uint64
	MerchantAccount domain.AccountID

	// RequestID is the correlation ID from the HTTP request context.
	RequestID string
}

// AuditEvent enumerates the actions recorded by the transition engine.
type AuditEvent string

const (
	EventRequestInitialized AuditEvent = "request_initialized"
	EventDonationApproved   AuditEvent = "donation_approved"
	EventVoucherIssued      AuditEvent = "voucher_issued"
	EventVoucherUsed        AuditEvent = "voucher_used"
	EventVoucherRedeemed    AuditEvent = "voucher_redeemed"
)

// eventCategories maps each action to its category. Approvals and
// redemptions settle value, so they get compliance retention.
var eventCategories = map[AuditEvent]EventCategory{
	EventRequestInitialized: CategoryOperations,
	EventDonationApproved:   CategoryCompliance,
	EventVoucherIssued:      CategoryOperations,
	EventVoucherUsed:        CategoryOperations,
	EventVoucherRedeemed:    CategoryCompliance,
}

// Category returns the category for an action, defaulting to operations for
// unknown actions.
func (e AuditEvent) Category() EventCategory {
	if c, ok := eventCategories[e]; ok {
		return c
	}
	return CategoryOperations
}
