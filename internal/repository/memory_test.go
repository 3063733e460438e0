package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/murphlabs/murph-billing/internal/billing"
	"github.com/murphlabs/murph-billing/internal/model"
	"github.com/murphlabs/murph-billing/internal/repository"
)

func TestInTxCommitsAllWrites(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryStore()
	now := time.Now().UTC()

	err := mem.InTx(ctx, func(tx billing.WalletTx) error {
		if err := tx.PutWallet(ctx, model.Wallet{UserID: "u1", AvailableBalance: 60, HeldAmount: 40, CreatedAt: now, UpdatedAt: now}); err != nil {
			return err
		}
		if err := tx.InsertHold(ctx, model.Hold{ID: "h1", UserID: "u1", SessionID: "s1", Amount: 40, Status: model.HoldActive, CreatedAt: now}); err != nil {
			return err
		}
		return tx.AppendTransaction(ctx, model.WalletTransaction{UserID: "u1", Type: model.TxHold, Amount: 40, SessionID: "s1", CreatedAt: now})
	})
	if err != nil {
		t.Fatalf("in tx: %v", err)
	}

	w, err := mem.GetWallet(ctx, "u1")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.AvailableBalance != 60 || w.HeldAmount != 40 {
		t.Fatalf("wallet = %+v, want available 60 held 40", w)
	}
	if _, err := mem.GetHold(ctx, "h1"); err != nil {
		t.Fatalf("get hold: %v", err)
	}
	txs, err := mem.TransactionsByUser(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txs) != 1 || txs[0].Type != model.TxHold {
		t.Fatalf("journal = %+v, want one HOLD entry", txs)
	}
}

func TestInTxDiscardsWritesOnError(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryStore()
	now := time.Now().UTC()

	seed := model.Wallet{UserID: "u1", AvailableBalance: 100, CreatedAt: now, UpdatedAt: now}
	if err := mem.InTx(ctx, func(tx billing.WalletTx) error { return tx.PutWallet(ctx, seed) }); err != nil {
		t.Fatalf("seed wallet: %v", err)
	}

	boom := errors.New("boom")
	err := mem.InTx(ctx, func(tx billing.WalletTx) error {
		if err := tx.PutWallet(ctx, model.Wallet{UserID: "u1", AvailableBalance: 10, HeldAmount: 90, CreatedAt: now, UpdatedAt: now}); err != nil {
			return err
		}
		if err := tx.InsertHold(ctx, model.Hold{ID: "h1", UserID: "u1", Amount: 90, Status: model.HoldActive, CreatedAt: now}); err != nil {
			return err
		}
		return boom
	})
	if err != boom {
		t.Fatalf("err = %v, want the movement failure", err)
	}

	// A failed movement must not leave partial state behind.
	w, err := mem.GetWallet(ctx, "u1")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.AvailableBalance != 100 || w.HeldAmount != 0 {
		t.Fatalf("wallet = %+v, want untouched available 100 held 0", w)
	}
	if _, err := mem.GetHold(ctx, "h1"); err != billing.ErrHoldNotFound {
		t.Fatalf("hold lookup err = %v, want ErrHoldNotFound", err)
	}
}

func TestInTxUpdateHoldRequiresExistingHold(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryStore()

	err := mem.InTx(ctx, func(tx billing.WalletTx) error {
		return tx.UpdateHold(ctx, model.Hold{ID: "missing", Status: model.HoldSettled})
	})
	if err != billing.ErrHoldNotFound {
		t.Fatalf("err = %v, want ErrHoldNotFound", err)
	}
}
