package service

import (
	"aidledger/internal/donation/models"
	"aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
)

// Transition names one lifecycle operation on an existing donation.
type Transition string

const (
	TransitionApprove      Transition = "approve"
	TransitionIssueVoucher Transition = "issue_voucher"
	TransitionUseVoucher   Transition = "use_voucher"
	TransitionRedeem       Transition = "redeem"
)

// rule captures one row of the transition table: the precondition state and
// the bound identity allowed to perform the transition. The table is the
// single source of truth for legality; any (state, caller) pair not admitted
// here fails with InvalidState or Unauthorized and mutates nothing.
type rule struct {
	from    models.State
	allowed func(d *models.Donation, caller domain.AccountID) bool
}

var transitionRules = map[Transition]rule{
	// The designated beneficiary approves. If no beneficiary was fixed at
	// request time, the approving caller becomes the beneficiary.
	TransitionApprove: {
		from: models.StatePending,
		allowed: func(d *models.Donation, caller domain.AccountID) bool {
			return d.Beneficiary.IsZero() || d.Beneficiary == caller
		},
	},
	// The sponsor controls disbursement.
	TransitionIssueVoucher: {
		from: models.StateApproved,
		allowed: func(d *models.Donation, caller domain.AccountID) bool {
			return d.Sponsor == caller
		},
	},
	// Only the beneficiary presents the voucher.
	TransitionUseVoucher: {
		from: models.StateVoucherIssued,
		allowed: func(d *models.Donation, caller domain.AccountID) bool {
			return d.Beneficiary == caller
		},
	},
	// Only the merchant account bound at use-time redeems.
	TransitionRedeem: {
		from: models.StateUsed,
		allowed: func(d *models.Donation, caller domain.AccountID) bool {
			return d.Voucher != nil && d.Voucher.MerchantAccount == caller
		},
	},
}

// Authorize is a pure function of the donation's bound identities and the
// attempted transition. Free-text labels never participate.
func Authorize(d *models.Donation, t Transition, caller domain.AccountID) error {
	r, ok := transitionRules[t]
	if !ok {
		return dErrors.New(dErrors.CodeInvalidState, "unknown transition")
	}
	if caller.IsZero() || !r.allowed(d, caller) {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not permitted to "+string(t))
	}
	return nil
}

// requireTransition checks the precondition state, then the caller's role.
// State is checked first so a caller probing a terminal record learns only
// that the transition is illegal, not who holds which role.
func requireTransition(d *models.Donation, t Transition, caller domain.AccountID) error {
	r, ok := transitionRules[t]
	if !ok {
		return dErrors.New(dErrors.CodeInvalidState, "unknown transition")
	}
	if d.State != r.from {
		return dErrors.New(dErrors.CodeInvalidState,
			"cannot "+string(t)+" a donation in state "+d.State.String())
	}
	return Authorize(d, t, caller)
}
