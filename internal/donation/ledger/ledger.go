// Package ledger provides the value transfer primitive used by the
// transition engine. The engine never mutates balances directly; every
// movement of value is an explicit, discrete Transfer call.
package ledger

import (
	"context"
	"math"
	"sync"

	"aidledger/pkg/domain"
	"aidledger/pkg/platform/sentinel"
)

// Ledger moves value between accounts. Amounts are non-negative integers in
// the base currency unit; there are no fractional values.
type Ledger interface {
	// Transfer atomically moves amount from one account to the other.
	// Returns sentinel.ErrInsufficientFunds if the source balance cannot
	// cover it, sentinel.ErrOverflow if the destination balance would wrap.
	// A zero-amount transfer is a no-op.
	Transfer(ctx context.Context, from, to domain.AccountID, amount uint64) error

	// Balance returns the current balance of an account. Unknown accounts
	// have a zero balance.
	Balance(ctx context.Context, account domain.AccountID) (uint64, error)
}

// InMemoryLedger is the in-process implementation backing the engine and
// tests. The hosting environment supplies real custody in production.
type InMemoryLedger struct {
	mu       sync.Mutex
	balances map[domain.AccountID]uint64
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{balances: make(map[domain.AccountID]uint64)}
}

func (l *InMemoryLedger) Transfer(_ context.Context, from, to domain.AccountID, amount uint64) error {
	if amount == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[from] < amount {
		return sentinel.ErrInsufficientFunds
	}
	if l.balances[to] > math.MaxUint64-amount {
		return sentinel.ErrOverflow
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

func (l *InMemoryLedger) Balance(_ context.Context, account domain.AccountID) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account], nil
}

// Deposit mints value into an account. This models the host environment
// funding an account (donor top-up, escrow funding); domain code never calls
// it.
func (l *InMemoryLedger) Deposit(_ context.Context, account domain.AccountID, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[account] > math.MaxUint64-amount {
		return sentinel.ErrOverflow
	}
	l.balances[account] += amount
	return nil
}
