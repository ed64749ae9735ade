package models

import (
	"time"

	"aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
)

// State is the custody stage of a donation. States advance strictly forward;
// no transition ever moves a donation backward or skips a stage.
type State uint8

const (
	StatePending State = iota
	StateApproved
	StateVoucherIssued
	StateUsed
	StateRedeemed
)

var stateNames = map[State]string{
	StatePending:       "pending",
	StateApproved:      "approved",
	StateVoucherIssued: "voucher_issued",
	StateUsed:          "used",
	StateRedeemed:      "redeemed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// CanTransitionTo permits only the immediate next stage.
func (s State) CanTransitionTo(next State) bool {
	return next == s+1 && next <= StateRedeemed
}

// Voucher is a bounded-value redemption right issued against an approved
// donation. MerchantLabel is a free-text audit annotation; MerchantAccount is
// the bound identity that authorizes redemption, immutable once set.
type Voucher struct {
	MerchantLabel   string           `json:"merchant_label"`
	Value           uint64           `json:"value"`
	MerchantAccount domain.AccountID `json:"merchant_account"`
	Used            bool             `json:"used"`
}

// Donation is the aggregate root for one custody lifecycle.
//
// Invariants:
//   - ID is assigned once by the store and never reused
//   - Amount is positive and immutable
//   - State only advances (Pending → Approved → VoucherIssued → Used → Redeemed)
//   - Beneficiary, once non-empty, never changes
//   - Voucher is non-nil iff State >= VoucherIssued, and Voucher.Value <= Amount
//   - Records are never deleted; a Redeemed donation is retained for audit
type Donation struct {
	ID                  domain.DonationID `json:"id"`
	ImplementingPartner string            `json:"implementing_partner"`
	Amount              uint64            `json:"amount"`
	State               State             `json:"state"`
	Sponsor             domain.AccountID  `json:"sponsor"`
	Beneficiary         domain.AccountID  `json:"beneficiary"`
	ApproverLabel       string            `json:"approver_label"`
	Voucher             *Voucher          `json:"voucher,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// NewDonation validates request input and builds a Pending record. The store
// assigns the ID at creation time.
func NewDonation(partner string, amount uint64, sponsor, beneficiary domain.AccountID, now time.Time) (*Donation, error) {
	if partner == "" {
		return nil, dErrors.New(dErrors.CodeInvalidLabel, "implementing partner is required")
	}
	if amount == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidAmount, "amount must be positive")
	}
	if sponsor.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "sponsor is required")
	}
	return &Donation{
		ImplementingPartner: partner,
		Amount:              amount,
		State:               StatePending,
		Sponsor:             sponsor,
		Beneficiary:         beneficiary,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

// ApplyApproval advances Pending → Approved. If no beneficiary was fixed at
// request time the approver becomes the beneficiary; an already bound
// beneficiary is never overwritten.
func (d *Donation) ApplyApproval(approver domain.AccountID, approverLabel string, now time.Time) {
	if d.Beneficiary.IsZero() {
		d.Beneficiary = approver
	}
	d.ApproverLabel = approverLabel
	d.State = StateApproved
	d.UpdatedAt = now
}

// ApplyVoucherIssue advances Approved → VoucherIssued and attaches the
// voucher sub-record.
func (d *Donation) ApplyVoucherIssue(merchantLabel string, value uint64, now time.Time) {
	d.Voucher = &Voucher{
		MerchantLabel: merchantLabel,
		Value:         value,
	}
	d.State = StateVoucherIssued
	d.UpdatedAt = now
}

// ApplyVoucherUse advances VoucherIssued → Used, binding the merchant account
// and marking the voucher consumed.
func (d *Donation) ApplyVoucherUse(merchantAccount domain.AccountID, now time.Time) {
	d.Voucher.MerchantAccount = merchantAccount
	d.Voucher.Used = true
	d.State = StateUsed
	d.UpdatedAt = now
}

// ApplyRedemption advances Used → Redeemed. The record is terminal afterward.
func (d *Donation) ApplyRedemption(now time.Time) {
	d.State = StateRedeemed
	d.UpdatedAt = now
}

// Clone returns a deep copy so store snapshots never alias live records.
func (d *Donation) Clone() *Donation {
	cp := *d
	if d.Voucher != nil {
		v := *d.Voucher
		cp.Voucher = &v
	}
	return &cp
}
