// Package billing defines the narrow credit-ledger contract the debate
// service (C11) depends on. The real ledger — account balances, purchase
// flows, refund policy — is explicitly out of scope for this engine (see
// spec.md §1); only the two operations a debate actually needs are
// modeled here, grounded on the original source's IBillingService
// Protocol narrowed to CheckSufficientCredits and DeductCredits.
package billing

import (
	"context"
	"fmt"
	"sync"

	"github.com/arbiter-hq/arbiter/internal/money"
)

// Ledger is the credit-ledger contract C11 depends on.
type Ledger interface {
	// CheckSufficientCredits reports whether user has at least amount
	// available, without reserving or deducting anything.
	CheckSufficientCredits(ctx context.Context, user string, amount money.Micros) (bool, money.Micros, error)
	// DeductCredits deducts amount from user's balance, tagged with
	// reason for the ledger's own audit trail.
	DeductCredits(ctx context.Context, user string, amount money.Micros, reason string) error
}

// MemoryLedger is an in-memory Ledger used by tests and by the CLI variant
// when no external billing system is configured. Unknown users start with
// an unlimited balance represented by having no entry — CheckSufficientCredits
// on an unconfigured user always succeeds, which keeps the end-to-end test
// scenarios independent of billing setup unless a test explicitly wants to
// exercise the 402 path.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]money.Micros
}

// NewMemoryLedger returns a MemoryLedger with no balances configured.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]money.Micros)}
}

// SetBalance configures an explicit balance for user, switching it from
// "unlimited" to a tracked, deductible amount.
func (l *MemoryLedger) SetBalance(user string, amount money.Micros) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[user] = amount
}

func (l *MemoryLedger) CheckSufficientCredits(ctx context.Context, user string, amount money.Micros) (bool, money.Micros, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, tracked := l.balances[user]
	if !tracked {
		return true, amount, nil
	}
	return balance >= amount, balance, nil
}

func (l *MemoryLedger) DeductCredits(ctx context.Context, user string, amount money.Micros, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, tracked := l.balances[user]
	if !tracked {
		return nil
	}
	if balance < amount {
		return fmt.Errorf("insufficient balance for %s: have %v, need %v", user, balance, amount)
	}
	l.balances[user] = balance.Sub(amount)
	return nil
}
