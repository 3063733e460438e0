package billing_test

import (
	"context"
	"testing"

	"github.com/murphlabs/murph-billing/internal/billing"
	"github.com/murphlabs/murph-billing/internal/model"
	"github.com/murphlabs/murph-billing/internal/repository"
)

func newLedger(t *testing.T) (*billing.Ledger, *repository.MemoryStore) {
	t.Helper()
	mem := repository.NewMemoryStore()
	return billing.NewLedger(mem, 100), mem
}

func TestWalletCreatedOnFirstReference(t *testing.T) {
	l, _ := newLedger(t)
	bal, err := l.GetBalance(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if bal != 100 {
		t.Fatalf("balance = %v, want default 100", bal)
	}
}

func TestTopUp(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	if _, err := l.TopUp(ctx, "u1", 0); err != billing.ErrInvalidAmount {
		t.Fatalf("top-up 0: err = %v, want ErrInvalidAmount", err)
	}
	if _, err := l.TopUp(ctx, "u1", -5); err != billing.ErrInvalidAmount {
		t.Fatalf("top-up -5: err = %v, want ErrInvalidAmount", err)
	}
	bal, err := l.TopUp(ctx, "u1", 50)
	if err != nil {
		t.Fatalf("top-up: %v", err)
	}
	if bal != 150 {
		t.Fatalf("balance = %v, want 150", bal)
	}
}

func TestPlaceHoldMovesFundsToEscrow(t *testing.T) {
	ctx := context.Background()
	l, mem := newLedger(t)

	h, err := l.PlaceHold(ctx, "u1", 40, "sess-1")
	if err != nil {
		t.Fatalf("place hold: %v", err)
	}
	if h.Status != model.HoldActive || h.Amount != 40 {
		t.Fatalf("hold = %+v, want ACTIVE for 40", h)
	}
	w, err := mem.GetWallet(ctx, "u1")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.AvailableBalance != 60 || w.HeldAmount != 40 {
		t.Fatalf("wallet = %+v, want available 60 held 40", w)
	}
}

func TestPlaceHoldInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	if _, err := l.PlaceHold(ctx, "u1", 150, "sess-1"); err != billing.ErrInsufficientFunds {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	// The failed hold must not touch the balance.
	bal, err := l.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if bal != 100 {
		t.Fatalf("balance = %v, want untouched 100", bal)
	}
}

func TestSettleSplitsHoldIntoChargeAndRefund(t *testing.T) {
	ctx := context.Background()
	l, mem := newLedger(t)

	h, err := l.PlaceHold(ctx, "u1", 40, "sess-1")
	if err != nil {
		t.Fatalf("place hold: %v", err)
	}
	res, err := l.Settle(ctx, h.ID, 12.5)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if res.Charged != 12.5 || res.Refunded != 27.5 {
		t.Fatalf("settle = %+v, want charged 12.5 refunded 27.5", res)
	}
	if res.Charged+res.Refunded != h.Amount {
		t.Fatalf("charge %v + refund %v != hold %v", res.Charged, res.Refunded, h.Amount)
	}
	if res.Balance != 87.5 {
		t.Fatalf("balance = %v, want 87.5", res.Balance)
	}
	w, _ := mem.GetWallet(ctx, "u1")
	if w.HeldAmount != 0 {
		t.Fatalf("held = %v, want 0 after settlement", w.HeldAmount)
	}
	got, _ := mem.GetHold(ctx, h.ID)
	if got.Status != model.HoldSettled || got.SettledAt == nil {
		t.Fatalf("hold after settle = %+v, want SETTLED with timestamp", got)
	}
}

func TestSettleClampsChargeToHold(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	h, _ := l.PlaceHold(ctx, "u1", 40, "sess-1")
	res, err := l.Settle(ctx, h.ID, 500)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if res.Charged != 40 || res.Refunded != 0 {
		t.Fatalf("settle = %+v, want charged 40 refunded 0", res)
	}
}

func TestSettleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	h, _ := l.PlaceHold(ctx, "u1", 40, "sess-1")
	first, err := l.Settle(ctx, h.ID, 10)
	if err != nil {
		t.Fatalf("first settle: %v", err)
	}
	// The duplicate reports the recorded outcome, even with a different
	// charge, and moves no money.
	second, err := l.Settle(ctx, h.ID, 99)
	if err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if second.Charged != first.Charged || second.Refunded != first.Refunded {
		t.Fatalf("second settle %+v differs from first %+v", second, first)
	}
	bal, _ := l.GetBalance(ctx, "u1")
	if bal != first.Balance {
		t.Fatalf("balance = %v, want unchanged %v", bal, first.Balance)
	}
}

func TestReleaseRefundsEverything(t *testing.T) {
	ctx := context.Background()
	l, mem := newLedger(t)

	h, _ := l.PlaceHold(ctx, "u1", 40, "sess-1")
	if err := l.Release(ctx, h.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	bal, _ := l.GetBalance(ctx, "u1")
	if bal != 100 {
		t.Fatalf("balance = %v, want restored 100", bal)
	}
	got, _ := mem.GetHold(ctx, h.ID)
	if got.Status != model.HoldReleased {
		t.Fatalf("hold status = %v, want RELEASED", got.Status)
	}
}

func TestTransactionsJournal(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	_, _ = l.TopUp(ctx, "u1", 20)
	h, _ := l.PlaceHold(ctx, "u1", 30, "sess-1")
	_, _ = l.Settle(ctx, h.ID, 10)

	txs, err := l.Transactions(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	// Newest first: REFUND, CHARGE, HOLD, TOPUP.
	want := []model.TransactionType{model.TxRefund, model.TxCharge, model.TxHold, model.TxTopUp}
	if len(txs) != len(want) {
		t.Fatalf("got %d transactions, want %d", len(txs), len(want))
	}
	for i, tx := range txs {
		if tx.Type != want[i] {
			t.Fatalf("tx[%d].Type = %v, want %v", i, tx.Type, want[i])
		}
	}
}
