package service

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"aidledger/internal/donation/ledger"
	"aidledger/internal/donation/models"
	"aidledger/internal/donation/store"
	"aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
	audit "aidledger/pkg/platform/audit"
	"aidledger/pkg/platform/audit/publisher"
	auditmemory "aidledger/pkg/platform/audit/store/memory"
)

const (
	alice    = domain.AccountID("alice")
	bob      = domain.AccountID("bob")
	carol    = domain.AccountID("carol")
	merchant = domain.AccountID("merchant-account")
	escrow   = domain.AccountID("escrow")

	testPartner = "AKDN"
	testAmount  = uint64(1000)
)

type ServiceSuite struct {
	suite.Suite
	ctx        context.Context
	store      *store.InMemoryStore
	ledger     *ledger.InMemoryLedger
	auditStore *auditmemory.InMemoryStore
	svc        *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewInMemoryStore()
	s.ledger = ledger.NewInMemoryLedger()
	s.auditStore = auditmemory.NewInMemoryStore()
	s.svc = New(s.store, s.ledger,
		WithAudit(publisher.NewPublisher(s.auditStore)),
		WithEscrowAccount(escrow),
	)

	s.Require().NoError(s.ledger.Deposit(s.ctx, bob, 5000))
	s.Require().NoError(s.ledger.Deposit(s.ctx, escrow, 1000))
}

func (s *ServiceSuite) balance(account domain.AccountID) uint64 {
	b, err := s.ledger.Balance(s.ctx, account)
	s.Require().NoError(err)
	return b
}

func (s *ServiceSuite) request() domain.DonationID {
	id, err := s.svc.Request(s.ctx, alice, testPartner, testAmount, bob)
	s.Require().NoError(err)
	return id
}

func (s *ServiceSuite) approve(id domain.DonationID) {
	s.Require().NoError(s.svc.Approve(s.ctx, bob, id, "Kelvin", 2000))
}

func (s *ServiceSuite) issue(id domain.DonationID) {
	s.Require().NoError(s.svc.IssueVoucher(s.ctx, alice, id, "Keith", 200))
}

func (s *ServiceSuite) use(id domain.DonationID) {
	s.Require().NoError(s.svc.UseVoucher(s.ctx, bob, id, "Keith", merchant))
}

func (s *ServiceSuite) TestRequest() {
	s.Run("creates a pending donation with the caller as sponsor", func() {
		id := s.request()

		d, err := s.svc.Fetch(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(testPartner, d.ImplementingPartner)
		s.Equal(testAmount, d.Amount)
		s.Equal(models.StatePending, d.State)
		s.Equal(alice, d.Sponsor)
		s.Equal(bob, d.Beneficiary)
	})

	s.Run("assigns monotonic ids starting at zero", func() {
		svc := New(store.NewInMemoryStore(), ledger.NewInMemoryLedger())
		for want := uint64(0); want < 5; want++ {
			id, err := svc.Request(s.ctx, alice, testPartner, testAmount, "")
			s.Require().NoError(err)
			s.Equal(domain.DonationID(want), id)
		}
	})

	s.Run("moves no value", func() {
		before := s.balance(alice)
		s.request()
		s.Equal(before, s.balance(alice))
	})

	s.Run("rejects a zero amount", func() {
		_, err := s.svc.Request(s.ctx, alice, testPartner, 0, bob)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidAmount))
	})

	s.Run("rejects an empty partner label", func() {
		_, err := s.svc.Request(s.ctx, alice, "", testAmount, bob)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidLabel))
	})

	s.Run("rejects an anonymous caller", func() {
		_, err := s.svc.Request(s.ctx, "", testPartner, testAmount, bob)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ServiceSuite) TestApprove() {
	s.Run("settles exactly and refunds the excess", func() {
		id := s.request()
		sponsorBefore := s.balance(alice)
		approverBefore := s.balance(bob)
		escrowBefore := s.balance(escrow)

		s.Require().NoError(s.svc.Approve(s.ctx, bob, id, "Kelvin", 2000))

		d, err := s.svc.Fetch(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(models.StateApproved, d.State)
		s.Equal("Kelvin", d.ApproverLabel)

		s.Equal(sponsorBefore+testAmount, s.balance(alice), "sponsor receives exactly the amount")
		s.Equal(approverBefore-testAmount, s.balance(bob), "approver is refunded the excess")
		s.Equal(escrowBefore, s.balance(escrow), "approval leaves no residue in escrow")
	})

	s.Run("accepts an exact payment", func() {
		id := s.request()
		before := s.balance(bob)

		s.Require().NoError(s.svc.Approve(s.ctx, bob, id, "Kelvin", testAmount))
		s.Equal(before-testAmount, s.balance(bob))
	})

	s.Run("rejects underpayment with no effect", func() {
		id := s.request()
		before := s.balance(bob)

		err := s.svc.Approve(s.ctx, bob, id, "Kelvin", testAmount-1)
		s.True(dErrors.HasCode(err, dErrors.CodeUnderpayment))

		d, ferr := s.svc.Fetch(s.ctx, id)
		s.Require().NoError(ferr)
		s.Equal(models.StatePending, d.State)
		s.Equal(before, s.balance(bob))
	})

	s.Run("rejects a caller who is not the designated beneficiary", func() {
		id := s.request()
		s.Require().NoError(s.ledger.Deposit(s.ctx, carol, 5000))

		err := s.svc.Approve(s.ctx, carol, id, "Kelvin", 2000)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("binds the approver as beneficiary when none was fixed", func() {
		id, err := s.svc.Request(s.ctx, alice, testPartner, testAmount, "")
		s.Require().NoError(err)

		s.Require().NoError(s.svc.Approve(s.ctx, bob, id, "Kelvin", 2000))

		d, err := s.svc.Fetch(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(bob, d.Beneficiary)
	})

	s.Run("rejects insufficient approver funds before any mutation", func() {
		id := s.request()

		err := s.svc.Approve(s.ctx, bob, id, "Kelvin", math.MaxUint64/2)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFunds))

		d, ferr := s.svc.Fetch(s.ctx, id)
		s.Require().NoError(ferr)
		s.Equal(models.StatePending, d.State)
	})

	s.Run("fails closed when the sponsor balance would overflow", func() {
		whale := domain.AccountID("whale")
		s.Require().NoError(s.ledger.Deposit(s.ctx, whale, math.MaxUint64-10))
		id, err := s.svc.Request(s.ctx, whale, testPartner, testAmount, bob)
		s.Require().NoError(err)

		err = s.svc.Approve(s.ctx, bob, id, "Kelvin", 2000)
		s.True(dErrors.HasCode(err, dErrors.CodeArithmeticOverflow))

		d, ferr := s.svc.Fetch(s.ctx, id)
		s.Require().NoError(ferr)
		s.Equal(models.StatePending, d.State)
	})

	s.Run("rejects a second approval", func() {
		id := s.request()
		s.approve(id)

		err := s.svc.Approve(s.ctx, bob, id, "Kelvin", 2000)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("rejects an unknown id", func() {
		err := s.svc.Approve(s.ctx, bob, 42, "Kelvin", 2000)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestIssueVoucher() {
	// Five subtests approve a fresh donation each; the approver needs
	// headroom beyond the per-test seed.
	s.Require().NoError(s.ledger.Deposit(s.ctx, bob, 5000))

	s.Run("attaches a voucher bounded by the amount", func() {
		id := s.request()
		s.approve(id)

		s.Require().NoError(s.svc.IssueVoucher(s.ctx, alice, id, "Keith", 200))

		v, state, err := s.svc.FetchVoucher(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(models.StateVoucherIssued, state)
		s.Equal("Keith", v.MerchantLabel)
		s.Equal(uint64(200), v.Value)
		s.False(v.Used)
	})

	s.Run("allows a voucher for the full amount", func() {
		id := s.request()
		s.approve(id)
		s.NoError(s.svc.IssueVoucher(s.ctx, alice, id, "Keith", testAmount))
	})

	s.Run("rejects a value above the donation amount", func() {
		id := s.request()
		s.approve(id)

		err := s.svc.IssueVoucher(s.ctx, alice, id, "Keith", testAmount+1)
		s.True(dErrors.HasCode(err, dErrors.CodeValueExceedsDonation))

		_, _, verr := s.svc.FetchVoucher(s.ctx, id)
		s.True(dErrors.HasCode(verr, dErrors.CodeInvalidState), "no voucher may exist after a rejected issuance")
	})

	s.Run("rejects issuance by anyone but the sponsor", func() {
		id := s.request()
		s.approve(id)

		err := s.svc.IssueVoucher(s.ctx, bob, id, "Keith", 200)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("rejects issuance before approval", func() {
		id := s.request()

		err := s.svc.IssueVoucher(s.ctx, alice, id, "Keith", 200)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("rejects an empty merchant label", func() {
		id := s.request()
		s.approve(id)

		err := s.svc.IssueVoucher(s.ctx, alice, id, "", 200)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidLabel))
	})
}

func (s *ServiceSuite) TestUseVoucher() {
	s.Run("binds the merchant account and consumes the voucher", func() {
		id := s.request()
		s.approve(id)
		s.issue(id)

		s.Require().NoError(s.svc.UseVoucher(s.ctx, bob, id, "Keith", merchant))

		v, state, err := s.svc.FetchVoucher(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(models.StateUsed, state)
		s.Equal(merchant, v.MerchantAccount)
		s.True(v.Used)
	})

	s.Run("rejects use by anyone but the beneficiary", func() {
		id := s.request()
		s.approve(id)
		s.issue(id)

		err := s.svc.UseVoucher(s.ctx, alice, id, "Keith", merchant)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("rejects a second use", func() {
		id := s.request()
		s.approve(id)
		s.issue(id)
		s.use(id)

		err := s.svc.UseVoucher(s.ctx, bob, id, "Keith", merchant)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("rejects a missing merchant account", func() {
		id := s.request()
		s.approve(id)
		s.issue(id)

		err := s.svc.UseVoucher(s.ctx, bob, id, "Keith", "")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestRedeem() {
	s.Run("pays the voucher value from escrow to the merchant", func() {
		id := s.request()
		s.approve(id)
		s.issue(id)
		s.use(id)
		escrowBefore := s.balance(escrow)

		s.Require().NoError(s.svc.Redeem(s.ctx, merchant, id))

		d, err := s.svc.Fetch(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(models.StateRedeemed, d.State)
		s.Equal(uint64(200), s.balance(merchant))
		s.Equal(escrowBefore-200, s.balance(escrow))
	})

	s.Run("rejects redemption by any other identity", func() {
		id := s.request()
		s.approve(id)
		s.issue(id)
		s.use(id)
		before := s.balance(merchant)

		err := s.svc.Redeem(s.ctx, bob, id)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Equal(before, s.balance(merchant))
	})

	s.Run("rejects a second redemption", func() {
		id := s.request()
		s.approve(id)
		s.issue(id)
		s.use(id)
		s.Require().NoError(s.svc.Redeem(s.ctx, merchant, id))
		after := s.balance(merchant)

		err := s.svc.Redeem(s.ctx, merchant, id)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		s.Equal(after, s.balance(merchant), "a rejected redemption pays nothing")
	})

	s.Run("fails closed when escrow cannot cover the voucher", func() {
		drained := New(s.store, ledger.NewInMemoryLedger(), WithEscrowAccount(escrow))
		id := s.request()
		s.approve(id)
		s.issue(id)
		s.use(id)

		err := drained.Redeem(s.ctx, merchant, id)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFunds))

		d, ferr := s.svc.Fetch(s.ctx, id)
		s.Require().NoError(ferr)
		s.Equal(models.StateUsed, d.State, "a failed redemption leaves the record unchanged")
	})
}

func (s *ServiceSuite) TestBeneficiaryImmutable() {
	id, err := s.svc.Request(s.ctx, alice, testPartner, testAmount, "")
	s.Require().NoError(err)

	s.Require().NoError(s.svc.Approve(s.ctx, bob, id, "Kelvin", 2000))

	// Once bound at approval, no later transition may rebind it.
	s.issue(id)
	s.use(id)
	s.Require().NoError(s.svc.Redeem(s.ctx, merchant, id))

	d, err := s.svc.Fetch(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(bob, d.Beneficiary)
}

func (s *ServiceSuite) TestAuditTrail() {
	s.Run("records one event per successful transition in order", func() {
		id := s.request()
		s.approve(id)
		s.issue(id)
		s.use(id)
		s.Require().NoError(s.svc.Redeem(s.ctx, merchant, id))

		events, err := s.auditStore.ListByDonation(s.ctx, id)
		s.Require().NoError(err)
		s.Require().Len(events, 5)

		s.Equal(string(audit.EventRequestInitialized), events[0].Action)
		s.Equal(testPartner, events[0].Partner)
		s.Equal(testAmount, events[0].Amount)
		s.Equal(alice, events[0].Sponsor)

		s.Equal(string(audit.EventDonationApproved), events[1].Action)
		s.Equal("Kelvin", events[1].ApproverLabel)
		s.Equal(bob, events[1].Beneficiary)

		s.Equal(string(audit.EventVoucherIssued), events[2].Action)
		s.Equal("Keith", events[2].MerchantLabel)
		s.Equal(uint64(200), events[2].Value)

		s.Equal(string(audit.EventVoucherUsed), events[3].Action)
		s.Equal(merchant, events[3].MerchantAccount)

		s.Equal(string(audit.EventVoucherRedeemed), events[4].Action)
		s.Equal("Keith", events[4].MerchantLabel)
		s.Equal(uint64(200), events[4].Value)
	})

	s.Run("records nothing for failed calls", func() {
		id := s.request()
		before := s.auditStore.Len()

		_ = s.svc.Approve(s.ctx, bob, id, "Kelvin", testAmount-1)
		_ = s.svc.IssueVoucher(s.ctx, alice, id, "Keith", 200)
		_ = s.svc.Redeem(s.ctx, merchant, id)

		s.Equal(before, s.auditStore.Len())
	})
}

// gatedLedger parks the first payout to the merchant until released, holding
// that transfer open between the engine's balance check and its execution.
type gatedLedger struct {
	*ledger.InMemoryLedger
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (l *gatedLedger) Transfer(ctx context.Context, from, to domain.AccountID, amount uint64) error {
	if to == merchant {
		l.once.Do(func() {
			close(l.entered)
			<-l.release
		})
	}
	return l.InMemoryLedger.Transfer(ctx, from, to, amount)
}

// TestEscrowContention races two used vouchers for the last escrow funds. The
// loser must be rejected before its record advances; a redemption must never
// end terminal with the merchant unpaid.
func (s *ServiceSuite) TestEscrowContention() {
	book := &gatedLedger{
		InMemoryLedger: ledger.NewInMemoryLedger(),
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	s.Require().NoError(book.Deposit(s.ctx, bob, 10000))
	s.Require().NoError(book.Deposit(s.ctx, escrow, 200))
	svc := New(store.NewInMemoryStore(), book, WithEscrowAccount(escrow))

	prepare := func() domain.DonationID {
		id, err := svc.Request(s.ctx, alice, testPartner, testAmount, bob)
		s.Require().NoError(err)
		s.Require().NoError(svc.Approve(s.ctx, bob, id, "Kelvin", testAmount))
		s.Require().NoError(svc.IssueVoucher(s.ctx, alice, id, "Keith", 200))
		s.Require().NoError(svc.UseVoucher(s.ctx, bob, id, "Keith", merchant))
		return id
	}
	first := prepare()
	second := prepare()

	type outcome struct {
		id  domain.DonationID
		err error
	}
	results := make(chan outcome, 2)
	go func() { results <- outcome{first, svc.Redeem(s.ctx, merchant, first)} }()
	<-book.entered

	go func() { results <- outcome{second, svc.Redeem(s.ctx, merchant, second)} }()
	close(book.release)

	errByID := make(map[domain.DonationID]error, 2)
	for i := 0; i < 2; i++ {
		r := <-results
		errByID[r.id] = r.err
	}

	var paid, rejected domain.DonationID
	switch {
	case errByID[first] == nil:
		paid, rejected = first, second
	case errByID[second] == nil:
		paid, rejected = second, first
	default:
		s.FailNow("both redemptions failed", "first=%v second=%v", errByID[first], errByID[second])
	}
	s.True(dErrors.HasCode(errByID[rejected], dErrors.CodeInsufficientFunds))

	won, err := svc.Fetch(s.ctx, paid)
	s.Require().NoError(err)
	s.Equal(models.StateRedeemed, won.State)

	lost, err := svc.Fetch(s.ctx, rejected)
	s.Require().NoError(err)
	s.Equal(models.StateUsed, lost.State, "a rejected redemption must not advance the record")

	merchantBalance, err := book.Balance(s.ctx, merchant)
	s.Require().NoError(err)
	s.Equal(uint64(200), merchantBalance, "the voucher is paid exactly once")
}

// TestEndToEnd follows the canonical lifecycle walk-through.
func (s *ServiceSuite) TestEndToEnd() {
	id, err := s.svc.Request(s.ctx, alice, "AKDN", 1000, bob)
	s.Require().NoError(err)
	s.Equal(domain.DonationID(0), id)

	s.Require().NoError(s.svc.Approve(s.ctx, bob, id, "Kelvin", 2000))
	s.Equal(uint64(1000), s.balance(alice))
	s.Equal(uint64(4000), s.balance(bob))

	s.Require().NoError(s.svc.IssueVoucher(s.ctx, alice, id, "Keith", 200))
	s.Require().NoError(s.svc.UseVoucher(s.ctx, bob, id, "Keith", merchant))
	s.Require().NoError(s.svc.Redeem(s.ctx, merchant, id))

	d, err := s.svc.Fetch(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(models.StateRedeemed, d.State)
	s.Equal(uint64(200), s.balance(merchant))

	events, err := s.auditStore.ListByDonation(s.ctx, id)
	s.Require().NoError(err)
	s.Require().Len(events, 5)
	s.Equal("Keith", events[4].MerchantLabel)
}
