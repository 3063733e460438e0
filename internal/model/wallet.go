package model

import "time"

// Wallet represents the spendable funds of a single user.  Amounts are
// decimal currency units rounded to two places at every boundary (e.g.
// 30.5 means 30.50).  AvailableBalance never goes negative; HeldAmount
// is the sum of the user's ACTIVE holds.
//
// Fields:
//  UserID           – owner of the wallet (one wallet per user).
//  AvailableBalance – funds the user can still commit to new holds.
//  HeldAmount       – funds escrowed by ACTIVE holds.
//  CreatedAt        – when the wallet was first created.
//  UpdatedAt        – timestamp of the last balance movement.
type Wallet struct {
	UserID           string    // wallets.user_id
	AvailableBalance float64   // wallets.available_balance
	HeldAmount       float64   // wallets.held_amount
	CreatedAt        time.Time // wallets.created_at
	UpdatedAt        time.Time // wallets.updated_at
}

// TransactionType classifies a wallet journal entry.
type TransactionType string

const (
	TxTopUp   TransactionType = "TOPUP"   // external funds added to the wallet
	TxHold    TransactionType = "HOLD"    // funds moved from available to held
	TxCharge  TransactionType = "CHARGE"  // held funds consumed at settlement
	TxRefund  TransactionType = "REFUND"  // unused held funds returned at settlement
	TxRelease TransactionType = "RELEASE" // a hold abandoned with zero charge
)

// WalletTransaction is one row of the append-only wallet journal.  The
// journal exists so that every movement of money is auditable: for any
// wallet, available + held always equals top-ups minus charges.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – wallet owner.
//  Type      – the kind of movement (see TransactionType).
//  Amount    – the absolute amount moved, rounded to 2 decimals.
//  SessionID – billing session that caused the movement ("" for top-ups).
//  CreatedAt – when the movement happened.
type WalletTransaction struct {
	ID        uint64          // wallet_transactions.id
	UserID    string          // wallet_transactions.user_id
	Type      TransactionType // wallet_transactions.tx_type
	Amount    float64         // wallet_transactions.amount
	SessionID string          // wallet_transactions.session_id
	CreatedAt time.Time       // wallet_transactions.created_at
}
