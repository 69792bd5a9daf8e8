package bet

import "sync"

// DefaultStartingBalance is shown for a fresh session before the first
// authoritative balance load completes.
const DefaultStartingBalance = 25

// Wallet holds the spendable stake balance for one user session.
//
// Writers: the authoritative overwrite on each settled outcome, the
// balance preload at feed mount, and the optimistic deduction around an
// in-flight submission (rolled back on failure). Settlement responses
// carry absolute balances, never deltas, so reconciliation is always an
// overwrite - an additive update here would double-count on duplicate
// delivery.
type Wallet struct {
	mu        sync.RWMutex
	principal string
	balance   uint64
}

// NewWallet creates a wallet for the given user with the default
// pre-load balance.
func NewWallet(principal string) *Wallet {
	return &Wallet{principal: principal, balance: DefaultStartingBalance}
}

// Balance returns the current spendable amount.
func (w *Wallet) Balance() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.balance
}

// Set overwrites the balance with an authoritative value.
func (w *Wallet) Set(balance uint64) {
	w.mu.Lock()
	w.balance = balance
	w.mu.Unlock()
}

// DeductOptimistic subtracts amount for UI display while a submission is
// in flight. Returns false (and leaves the balance alone) if the funds
// are not there.
func (w *Wallet) DeductOptimistic(amount uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if amount > w.balance {
		return false
	}
	w.balance -= amount
	return true
}

// Refund reverses an optimistic deduction after a failed submission.
func (w *Wallet) Refund(amount uint64) {
	w.mu.Lock()
	w.balance += amount
	w.mu.Unlock()
}

// SwitchAccount resets the wallet when the session identity changes, so a
// cached balance never leaks across users.
func (w *Wallet) SwitchAccount(principal string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.principal == principal {
		return
	}
	w.principal = principal
	w.balance = 0
}
