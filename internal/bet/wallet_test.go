package bet

import "testing"

func TestWalletDeductAndRefund(t *testing.T) {
	w := NewWallet("user-1")
	if got := w.Balance(); got != DefaultStartingBalance {
		t.Fatalf("starting balance = %d, want %d", got, DefaultStartingBalance)
	}
	if !w.DeductOptimistic(10) {
		t.Fatal("deduction within balance refused")
	}
	if got := w.Balance(); got != DefaultStartingBalance-10 {
		t.Errorf("balance after deduct = %d", got)
	}
	if w.DeductOptimistic(DefaultStartingBalance) {
		t.Error("deduction beyond balance accepted")
	}
	w.Refund(10)
	if got := w.Balance(); got != DefaultStartingBalance {
		t.Errorf("balance after refund = %d, want %d", got, DefaultStartingBalance)
	}
}

func TestWalletSwitchAccount(t *testing.T) {
	w := NewWallet("user-1")
	w.Set(500)

	// Same principal keeps the balance.
	w.SwitchAccount("user-1")
	if got := w.Balance(); got != 500 {
		t.Errorf("balance after same-principal switch = %d, want 500", got)
	}

	// A different principal resets it until the backend supplies one.
	w.SwitchAccount("user-2")
	if got := w.Balance(); got != 0 {
		t.Errorf("balance after account switch = %d, want 0", got)
	}
}
