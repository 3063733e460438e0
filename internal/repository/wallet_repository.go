package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/murphlabs/murph-billing/internal/billing"
	"github.com/murphlabs/murph-billing/internal/model"
)

// WalletRepo provides MySQL-backed access to wallets, holds and the
// wallet journal.  It implements billing.WalletStore.  The ledger
// serializes access per user; every money movement runs inside one
// database transaction via InTx, so a crash mid-movement can never
// leave the hold and wallet rows disagreeing.
type WalletRepo struct {
	db *sql.DB
}

// NewWalletRepo returns a WalletRepo bound to the provided database.
func NewWalletRepo(db *sql.DB) *WalletRepo { return &WalletRepo{db: db} }

// GetWallet fetches a wallet row or billing.ErrWalletNotFound.
func (r *WalletRepo) GetWallet(ctx context.Context, userID string) (model.Wallet, error) {
	const q = `SELECT user_id, available_balance, held_amount, created_at, updated_at
	           FROM wallets WHERE user_id = ?`
	var w model.Wallet
	err := r.db.QueryRowContext(ctx, q, userID).
		Scan(&w.UserID, &w.AvailableBalance, &w.HeldAmount, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.Wallet{}, billing.ErrWalletNotFound
	}
	if err != nil {
		return model.Wallet{}, err
	}
	return w, nil
}

// GetHold fetches a hold row or billing.ErrHoldNotFound.
func (r *WalletRepo) GetHold(ctx context.Context, holdID string) (model.Hold, error) {
	const q = `SELECT id, user_id, session_id, amount, status, charged, refunded, created_at, settled_at
	           FROM holds WHERE id = ?`
	var (
		h         model.Hold
		status    string
		settledAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, holdID).
		Scan(&h.ID, &h.UserID, &h.SessionID, &h.Amount, &status, &h.Charged, &h.Refunded, &h.CreatedAt, &settledAt)
	if err == sql.ErrNoRows {
		return model.Hold{}, billing.ErrHoldNotFound
	}
	if err != nil {
		return model.Hold{}, err
	}
	h.Status = model.HoldStatus(status)
	if settledAt.Valid {
		t := settledAt.Time
		h.SettledAt = &t
	}
	return h, nil
}

// TransactionsByUser lists a user's journal entries, newest first.
func (r *WalletRepo) TransactionsByUser(ctx context.Context, userID string, limit int) ([]model.WalletTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT id, user_id, tx_type, amount, session_id, created_at
	           FROM wallet_transactions WHERE user_id = ?
	           ORDER BY id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.WalletTransaction
	for rows.Next() {
		var (
			tx     model.WalletTransaction
			txType string
		)
		if err := rows.Scan(&tx.ID, &tx.UserID, &txType, &tx.Amount, &tx.SessionID, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.Type = model.TransactionType(txType)
		out = append(out, tx)
	}
	return out, rows.Err()
}

// InTx runs one money movement inside a database transaction.  The
// transaction commits when fn returns nil and rolls back otherwise.
func (r *WalletRepo) InTx(ctx context.Context, fn func(billing.WalletTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&walletTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// walletTx implements billing.WalletTx over one *sql.Tx.
type walletTx struct {
	tx *sql.Tx
}

// PutWallet inserts or replaces a wallet row.
func (t *walletTx) PutWallet(ctx context.Context, w model.Wallet) error {
	const q = `INSERT INTO wallets (user_id, available_balance, held_amount, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?)
	           ON DUPLICATE KEY UPDATE
	             available_balance = VALUES(available_balance),
	             held_amount = VALUES(held_amount),
	             updated_at = VALUES(updated_at)`
	_, err := t.tx.ExecContext(ctx, q,
		w.UserID, w.AvailableBalance, w.HeldAmount, w.CreatedAt.UTC(), w.UpdatedAt.UTC())
	return err
}

// InsertHold stores a newly placed hold.
func (t *walletTx) InsertHold(ctx context.Context, h model.Hold) error {
	const q = `INSERT INTO holds (id, user_id, session_id, amount, status, charged, refunded, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := t.tx.ExecContext(ctx, q,
		h.ID, h.UserID, h.SessionID, h.Amount, string(h.Status), h.Charged, h.Refunded, h.CreatedAt.UTC())
	return err
}

// UpdateHold replaces the mutable columns of an existing hold row.
func (t *walletTx) UpdateHold(ctx context.Context, h model.Hold) error {
	const q = `UPDATE holds SET status = ?, charged = ?, refunded = ?, settled_at = ? WHERE id = ?`
	var settledAt interface{}
	if h.SettledAt != nil {
		settledAt = h.SettledAt.UTC()
	}
	_, err := t.tx.ExecContext(ctx, q, string(h.Status), h.Charged, h.Refunded, settledAt, h.ID)
	return err
}

// AppendTransaction appends one journal entry.
func (t *walletTx) AppendTransaction(ctx context.Context, tx model.WalletTransaction) error {
	const q = `INSERT INTO wallet_transactions (user_id, tx_type, amount, session_id, created_at)
	           VALUES (?, ?, ?, ?, ?)`
	ts := tx.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := t.tx.ExecContext(ctx, q, tx.UserID, string(tx.Type), tx.Amount, tx.SessionID, ts.UTC())
	return err
}
