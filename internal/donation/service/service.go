// Package service implements the transition engine: the only component that
// mutates donation records or triggers value transfers. Each public method is
// one lifecycle transition; every check runs before any mutation, and the
// state is advanced before any outbound transfer so a repeated call against
// the same donation observes the new state and is rejected.
package service

import (
	"context"
	"errors"
	"sync"

	"aidledger/internal/donation/ledger"
	donationmetrics "aidledger/internal/donation/metrics"
	"aidledger/internal/donation/models"
	"aidledger/internal/donation/store"
	"aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
	audit "aidledger/pkg/platform/audit"
	"aidledger/pkg/platform/sentinel"
	"aidledger/pkg/requestcontext"
)

// DefaultEscrowAccount is the registry's own ledger account. Value attached
// to an approval passes through it, and redeemed vouchers are paid from it.
const DefaultEscrowAccount = domain.AccountID("escrow")

// AuditEmitter records one event per successful transition.
type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the transition engine.
type Service struct {
	donations store.Store
	ledger    ledger.Ledger
	audit     AuditEmitter
	metrics   *donationmetrics.Metrics
	escrow    domain.AccountID

	// mu serializes value-moving transitions. The balance checks proved in
	// the store callback must still hold when the settlement transfers run,
	// and transitions on different donations share the escrow and caller
	// accounts, so check, state commit and transfers happen under one lock.
	mu sync.Mutex
}

type Option func(*Service)

// WithAudit sets the audit emitter. Without one, transitions still apply but
// leave no trail; production wiring always sets it.
func WithAudit(emitter AuditEmitter) Option {
	return func(s *Service) { s.audit = emitter }
}

func WithMetrics(m *donationmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithEscrowAccount overrides the ledger account used for escrowed value.
func WithEscrowAccount(account domain.AccountID) Option {
	return func(s *Service) { s.escrow = account }
}

func New(donations store.Store, l ledger.Ledger, opts ...Option) *Service {
	s := &Service{
		donations: donations,
		ledger:    l,
		escrow:    DefaultEscrowAccount,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request creates a Pending donation on behalf of an implementing partner.
// The caller becomes the sponsor. The beneficiary may be fixed here or left
// unset to be bound at approval time. No value moves.
func (s *Service) Request(ctx context.Context, caller domain.AccountID, partner string, amount uint64, beneficiary domain.AccountID) (domain.DonationID, error) {
	if caller.IsZero() {
		return 0, s.fail(dErrors.New(dErrors.CodeUnauthorized, "caller identity required"))
	}

	d, err := models.NewDonation(partner, amount, caller, beneficiary, requestcontext.Now(ctx))
	if err != nil {
		return 0, s.fail(err)
	}

	id, err := s.donations.Create(ctx, d)
	if err != nil {
		return 0, s.fail(s.translate(err))
	}

	if err := s.emit(ctx, audit.Event{
		DonationID: id,
		Action:     string(audit.EventRequestInitialized),
		Partner:    partner,
		Amount:     amount,
		Sponsor:    caller,
	}); err != nil {
		return 0, err
	}

	if s.metrics != nil {
		s.metrics.IncrementRequested()
	}
	return id, nil
}

// Approve releases funds for a Pending donation. The caller pays
// attachedValue; exactly Amount reaches the sponsor and the excess is
// refunded to the caller in the same call. If the beneficiary was not fixed
// at request time, the caller is bound as beneficiary.
func (s *Service) Approve(ctx context.Context, caller domain.AccountID, id domain.DonationID, approverLabel string, attachedValue uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated, err := s.donations.Execute(ctx, id,
		func(d *models.Donation) error {
			if err := requireTransition(d, TransitionApprove, caller); err != nil {
				return err
			}
			if attachedValue < d.Amount {
				return dErrors.New(dErrors.CodeUnderpayment, "attached value is less than the donation amount")
			}
			// All settlement transfers run after the state advances, so
			// prove now that they cannot fail.
			return s.checkSettlement(ctx, caller, attachedValue, d.Sponsor, d.Amount)
		},
		func(d *models.Donation) {
			d.ApplyApproval(caller, approverLabel, requestcontext.Now(ctx))
		},
	)
	if err != nil {
		return s.fail(s.translate(err))
	}

	// State is Approved before any value moves: a reentrant or repeated call
	// against this id now fails with InvalidState.
	if err := s.settleApproval(ctx, caller, updated, attachedValue); err != nil {
		return err
	}

	if err := s.emit(ctx, audit.Event{
		DonationID:    id,
		Action:        string(audit.EventDonationApproved),
		ApproverLabel: updated.ApproverLabel,
		Beneficiary:   updated.Beneficiary,
		Amount:        updated.Amount,
		Sponsor:       updated.Sponsor,
	}); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncrementTransition(string(TransitionApprove))
		s.metrics.AddValueTransferred(updated.Amount)
	}
	return nil
}

// IssueVoucher attaches a redeemable voucher to an Approved donation. Only
// the sponsor may issue, and the voucher value may not exceed the approved
// amount.
func (s *Service) IssueVoucher(ctx context.Context, caller domain.AccountID, id domain.DonationID, merchantLabel string, value uint64) error {
	updated, err := s.donations.Execute(ctx, id,
		func(d *models.Donation) error {
			if err := requireTransition(d, TransitionIssueVoucher, caller); err != nil {
				return err
			}
			if merchantLabel == "" {
				return dErrors.New(dErrors.CodeInvalidLabel, "merchant label is required")
			}
			if value == 0 {
				return dErrors.New(dErrors.CodeInvalidAmount, "voucher value must be positive")
			}
			if value > d.Amount {
				return dErrors.New(dErrors.CodeValueExceedsDonation, "voucher value exceeds the donation amount")
			}
			return nil
		},
		func(d *models.Donation) {
			d.ApplyVoucherIssue(merchantLabel, value, requestcontext.Now(ctx))
		},
	)
	if err != nil {
		return s.fail(s.translate(err))
	}

	if err := s.emit(ctx, audit.Event{
		DonationID:    id,
		Action:        string(audit.EventVoucherIssued),
		MerchantLabel: updated.Voucher.MerchantLabel,
		Value:         updated.Voucher.Value,
	}); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncrementTransition(string(TransitionIssueVoucher))
	}
	return nil
}

// UseVoucher marks the voucher consumed and binds the accepting merchant's
// account. Only the beneficiary may present the voucher. The merchantLabel
// parameter is recorded in the audit trail only.
func (s *Service) UseVoucher(ctx context.Context, caller domain.AccountID, id domain.DonationID, merchantLabel string, merchantAccount domain.AccountID) error {
	if merchantAccount.IsZero() {
		return s.fail(dErrors.New(dErrors.CodeBadRequest, "merchant account is required"))
	}

	updated, err := s.donations.Execute(ctx, id,
		func(d *models.Donation) error {
			return requireTransition(d, TransitionUseVoucher, caller)
		},
		func(d *models.Donation) {
			d.ApplyVoucherUse(merchantAccount, requestcontext.Now(ctx))
		},
	)
	if err != nil {
		return s.fail(s.translate(err))
	}

	if err := s.emit(ctx, audit.Event{
		DonationID:      id,
		Action:          string(audit.EventVoucherUsed),
		MerchantLabel:   merchantLabel,
		MerchantAccount: updated.Voucher.MerchantAccount,
	}); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncrementTransition(string(TransitionUseVoucher))
	}
	return nil
}

// Redeem pays the voucher's value from escrow to the merchant bound at
// use-time and terminates the lifecycle.
func (s *Service) Redeem(ctx context.Context, caller domain.AccountID, id domain.DonationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated, err := s.donations.Execute(ctx, id,
		func(d *models.Donation) error {
			if err := requireTransition(d, TransitionRedeem, caller); err != nil {
				return err
			}
			return s.checkTransfer(ctx, s.escrow, caller, d.Voucher.Value)
		},
		func(d *models.Donation) {
			d.ApplyRedemption(requestcontext.Now(ctx))
		},
	)
	if err != nil {
		return s.fail(s.translate(err))
	}

	if err := s.transfer(ctx, s.escrow, updated.Voucher.MerchantAccount, updated.Voucher.Value); err != nil {
		return err
	}

	if err := s.emit(ctx, audit.Event{
		DonationID:    id,
		Action:        string(audit.EventVoucherRedeemed),
		MerchantLabel: updated.Voucher.MerchantLabel,
		Value:         updated.Voucher.Value,
	}); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncrementTransition(string(TransitionRedeem))
		s.metrics.AddValueTransferred(updated.Voucher.Value)
	}
	return nil
}

// Fetch returns a point-in-time snapshot of a donation. Read-only.
func (s *Service) Fetch(ctx context.Context, id domain.DonationID) (*models.Donation, error) {
	d, err := s.donations.FindByID(ctx, id)
	if err != nil {
		return nil, s.translate(err)
	}
	return d, nil
}

// FetchVoucher returns the voucher sub-record together with the donation
// state. Fails with InvalidState before issuance.
func (s *Service) FetchVoucher(ctx context.Context, id domain.DonationID) (*models.Voucher, models.State, error) {
	d, err := s.donations.FindByID(ctx, id)
	if err != nil {
		return nil, 0, s.translate(err)
	}
	if d.Voucher == nil {
		return nil, 0, dErrors.New(dErrors.CodeInvalidState, "no voucher has been issued for this donation")
	}
	return d.Voucher, d.State, nil
}

// settleApproval moves value for an approved donation as discrete, auditable
// transfers: attached value into escrow, the amount on to the sponsor, and
// the excess back to the approver.
func (s *Service) settleApproval(ctx context.Context, approver domain.AccountID, d *models.Donation, attachedValue uint64) error {
	if err := s.transfer(ctx, approver, s.escrow, attachedValue); err != nil {
		return err
	}
	if err := s.transfer(ctx, s.escrow, d.Sponsor, d.Amount); err != nil {
		return err
	}
	return s.transfer(ctx, s.escrow, approver, attachedValue-d.Amount)
}

// checkSettlement proves the approval transfers cannot fail: the approver can
// cover the attached value and no balance addition wraps. The sponsor leg is
// funded by the attached value itself, so only its destination balance needs
// an overflow check.
func (s *Service) checkSettlement(ctx context.Context, approver domain.AccountID, attachedValue uint64, sponsor domain.AccountID, amount uint64) error {
	if err := s.checkTransfer(ctx, approver, s.escrow, attachedValue); err != nil {
		return err
	}
	sponsorBalance, err := s.ledger.Balance(ctx, sponsor)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "ledger unavailable")
	}
	if sponsorBalance > ^uint64(0)-amount {
		return dErrors.New(dErrors.CodeArithmeticOverflow, "transfer would overflow the sponsor balance")
	}
	return nil
}

// checkTransfer verifies a pending transfer against current balances without
// moving anything.
func (s *Service) checkTransfer(ctx context.Context, from, to domain.AccountID, amount uint64) error {
	fromBalance, err := s.ledger.Balance(ctx, from)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "ledger unavailable")
	}
	if fromBalance < amount {
		return dErrors.New(dErrors.CodeInsufficientFunds, "account cannot cover the transfer")
	}
	toBalance, err := s.ledger.Balance(ctx, to)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "ledger unavailable")
	}
	if toBalance > ^uint64(0)-amount {
		return dErrors.New(dErrors.CodeArithmeticOverflow, "transfer would overflow the destination balance")
	}
	return nil
}

func (s *Service) transfer(ctx context.Context, from, to domain.AccountID, amount uint64) error {
	if err := s.ledger.Transfer(ctx, from, to, amount); err != nil {
		return s.fail(s.translate(err))
	}
	return nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) error {
	if s.audit == nil {
		return nil
	}
	event.Timestamp = requestcontext.Now(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.audit.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

// translate maps infrastructure sentinels to domain error kinds; domain
// errors pass through unchanged.
func (s *Service) translate(err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "donation not found")
	case errors.Is(err, sentinel.ErrInsufficientFunds):
		return dErrors.New(dErrors.CodeInsufficientFunds, "account cannot cover the transfer")
	case errors.Is(err, sentinel.ErrOverflow):
		return dErrors.New(dErrors.CodeArithmeticOverflow, "balance arithmetic would overflow")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "donation store failure")
	}
}

// fail counts a rejected call and returns the error unchanged.
func (s *Service) fail(err error) error {
	if s.metrics != nil {
		s.metrics.IncrementFailure(string(dErrors.CodeOf(err)))
	}
	return err
}
