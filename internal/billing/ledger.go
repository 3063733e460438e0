package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/murphlabs/murph-billing/internal/model"
)

// Ledger owns all wallet and hold records and applies money movements
// atomically.  Every operation on a single wallet is serialized through
// a per-user mutex so that two concurrent PlaceHold calls (e.g. two
// browser tabs) can never both observe a stale available balance and
// over-commit funds.  The writes of one movement go through a single
// store transaction, so a crash mid-movement cannot leave the hold and
// wallet rows disagreeing.
type Ledger struct {
	store          WalletStore
	defaultBalance float64

	mu    sync.Mutex // guards locks
	locks map[string]*sync.Mutex
}

// NewLedger returns a ledger backed by the given store.  Wallets are
// created on first reference with defaultBalance available.
func NewLedger(store WalletStore, defaultBalance float64) *Ledger {
	return &Ledger{
		store:          store,
		defaultBalance: defaultBalance,
		locks:          map[string]*sync.Mutex{},
	}
}

// SettlementResult reports how a hold was finalized.  Charged plus
// Refunded always equals the original hold amount.
type SettlementResult struct {
	Charged  float64
	Refunded float64
	Balance  float64 // available balance after settlement
}

// userLock returns the mutex serializing operations for one user.
func (l *Ledger) userLock(userID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	return m
}

// loadOrCreate fetches the wallet for a user, creating it with the
// default balance on first reference.  Caller must hold the user lock.
func (l *Ledger) loadOrCreate(ctx context.Context, userID string) (model.Wallet, error) {
	w, err := l.store.GetWallet(ctx, userID)
	if err == nil {
		return w, nil
	}
	if err != ErrWalletNotFound {
		return model.Wallet{}, err
	}
	now := time.Now().UTC()
	w = model.Wallet{
		UserID:           userID,
		AvailableBalance: Round2(l.defaultBalance),
		HeldAmount:       0,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err = l.store.InTx(ctx, func(tx WalletTx) error {
		return tx.PutWallet(ctx, w)
	})
	if err != nil {
		return model.Wallet{}, err
	}
	return w, nil
}

// GetBalance returns the available balance of a user's wallet,
// creating the wallet on first reference.  Side-effect-free otherwise.
func (l *Ledger) GetBalance(ctx context.Context, userID string) (float64, error) {
	mu := l.userLock(userID)
	mu.Lock()
	defer mu.Unlock()
	w, err := l.loadOrCreate(ctx, userID)
	if err != nil {
		return 0, err
	}
	return w.AvailableBalance, nil
}

// TopUp adds funds to a wallet and returns the new available balance.
// Top-up mechanics (UPI/card) happen elsewhere; only the resulting
// balance increase matters here.
func (l *Ledger) TopUp(ctx context.Context, userID string, amount float64) (float64, error) {
	amount = Round2(amount)
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	mu := l.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	w, err := l.loadOrCreate(ctx, userID)
	if err != nil {
		return 0, err
	}
	w.AvailableBalance = Round2(w.AvailableBalance + amount)
	w.UpdatedAt = time.Now().UTC()
	err = l.store.InTx(ctx, func(tx WalletTx) error {
		if err := tx.PutWallet(ctx, w); err != nil {
			return err
		}
		return tx.AppendTransaction(ctx, model.WalletTransaction{
			UserID:    userID,
			Type:      model.TxTopUp,
			Amount:    amount,
			CreatedAt: w.UpdatedAt,
		})
	})
	if err != nil {
		return 0, err
	}
	return w.AvailableBalance, nil
}

// PlaceHold escrows amount from the user's available balance for the
// given session and returns the created hold.  Fails with
// ErrInsufficientFunds when the wallet cannot cover the amount; the
// balance is left untouched in that case.
func (l *Ledger) PlaceHold(ctx context.Context, userID string, amount float64, sessionID string) (model.Hold, error) {
	amount = Round2(amount)
	if amount <= 0 {
		return model.Hold{}, ErrInvalidAmount
	}
	mu := l.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	w, err := l.loadOrCreate(ctx, userID)
	if err != nil {
		return model.Hold{}, err
	}
	if amount > w.AvailableBalance {
		return model.Hold{}, ErrInsufficientFunds
	}
	now := time.Now().UTC()
	h := model.Hold{
		ID:        uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		Amount:    amount,
		Status:    model.HoldActive,
		CreatedAt: now,
	}
	w.AvailableBalance = Round2(w.AvailableBalance - amount)
	w.HeldAmount = Round2(w.HeldAmount + amount)
	w.UpdatedAt = now
	err = l.store.InTx(ctx, func(tx WalletTx) error {
		if err := tx.InsertHold(ctx, h); err != nil {
			return err
		}
		if err := tx.PutWallet(ctx, w); err != nil {
			return err
		}
		return tx.AppendTransaction(ctx, model.WalletTransaction{
			UserID:    userID,
			Type:      model.TxHold,
			Amount:    amount,
			SessionID: sessionID,
			CreatedAt: now,
		})
	})
	if err != nil {
		return model.Hold{}, err
	}
	return h, nil
}

// Settle finalizes a hold into a charge plus a refund of the unused
// portion.  The charge is clamped to the hold amount, so the refund is
// never negative.  Settling an already-settled hold is idempotent: the
// recorded result is returned again and no money moves twice.
func (l *Ledger) Settle(ctx context.Context, holdID string, chargeAmount float64) (SettlementResult, error) {
	h, err := l.store.GetHold(ctx, holdID)
	if err != nil {
		return SettlementResult{}, err
	}

	mu := l.userLock(h.UserID)
	mu.Lock()
	defer mu.Unlock()

	// Re-read under the lock; a racing settle may have finished first.
	h, err = l.store.GetHold(ctx, holdID)
	if err != nil {
		return SettlementResult{}, err
	}
	w, err := l.loadOrCreate(ctx, h.UserID)
	if err != nil {
		return SettlementResult{}, err
	}
	if h.Status != model.HoldActive {
		// Duplicate end signals (explicit end racing a beacon) land
		// here: report the original outcome rather than an error.
		return SettlementResult{Charged: h.Charged, Refunded: h.Refunded, Balance: w.AvailableBalance}, nil
	}

	charge := Round2(chargeAmount)
	if charge < 0 {
		charge = 0
	}
	if charge > h.Amount {
		charge = h.Amount
	}
	refund := Round2(h.Amount - charge)
	now := time.Now().UTC()

	w.HeldAmount = Round2(w.HeldAmount - h.Amount)
	w.AvailableBalance = Round2(w.AvailableBalance + refund)
	w.UpdatedAt = now

	h.Charged = charge
	h.Refunded = refund
	h.SettledAt = &now
	if charge == 0 {
		h.Status = model.HoldReleased
	} else {
		h.Status = model.HoldSettled
	}

	err = l.store.InTx(ctx, func(tx WalletTx) error {
		if err := tx.UpdateHold(ctx, h); err != nil {
			return err
		}
		if err := tx.PutWallet(ctx, w); err != nil {
			return err
		}
		if charge > 0 {
			err := tx.AppendTransaction(ctx, model.WalletTransaction{
				UserID:    h.UserID,
				Type:      model.TxCharge,
				Amount:    charge,
				SessionID: h.SessionID,
				CreatedAt: now,
			})
			if err != nil {
				return err
			}
		}
		if refund > 0 {
			txType := model.TxRefund
			if charge == 0 {
				txType = model.TxRelease
			}
			err := tx.AppendTransaction(ctx, model.WalletTransaction{
				UserID:    h.UserID,
				Type:      txType,
				Amount:    refund,
				SessionID: h.SessionID,
				CreatedAt: now,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return SettlementResult{}, err
	}
	return SettlementResult{Charged: charge, Refunded: refund, Balance: w.AvailableBalance}, nil
}

// Release abandons a hold without charging anything.  Equivalent to
// Settle(holdID, 0).
func (l *Ledger) Release(ctx context.Context, holdID string) error {
	_, err := l.Settle(ctx, holdID, 0)
	return err
}

// Transactions lists a user's wallet journal, newest first.
func (l *Ledger) Transactions(ctx context.Context, userID string, limit int) ([]model.WalletTransaction, error) {
	return l.store.TransactionsByUser(ctx, userID, limit)
}
