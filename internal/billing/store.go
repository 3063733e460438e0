package billing

import (
	"context"
	"time"

	"github.com/murphlabs/murph-billing/internal/model"
)

// WalletStore persists wallets, holds and the wallet journal.  The
// ledger serializes all access per user, so implementations do not need
// their own user-level locking.  Every money movement spans several
// writes (hold row, wallet row, journal entries), so writes only exist
// on WalletTx and are applied through InTx: either the whole movement
// lands or none of it does.
type WalletStore interface {
	// GetWallet returns the wallet for a user or ErrWalletNotFound.
	GetWallet(ctx context.Context, userID string) (model.Wallet, error)
	// GetHold returns a hold by id or ErrHoldNotFound.
	GetHold(ctx context.Context, holdID string) (model.Hold, error)
	// TransactionsByUser lists a user's journal, newest first.
	TransactionsByUser(ctx context.Context, userID string, limit int) ([]model.WalletTransaction, error)
	// InTx runs fn against a transactional view of the store.  All
	// writes issued through the WalletTx commit together when fn
	// returns nil and are discarded when it returns an error.
	InTx(ctx context.Context, fn func(WalletTx) error) error
}

// WalletTx is the write side of one atomic money movement.
type WalletTx interface {
	// PutWallet inserts or replaces a wallet row.
	PutWallet(ctx context.Context, w model.Wallet) error
	// InsertHold stores a newly placed hold.
	InsertHold(ctx context.Context, h model.Hold) error
	// UpdateHold replaces an existing hold row.
	UpdateHold(ctx context.Context, h model.Hold) error
	// AppendTransaction appends one journal entry.
	AppendTransaction(ctx context.Context, tx model.WalletTransaction) error
}

// SessionStore persists billing sessions and their settlements.
type SessionStore interface {
	// InsertSession stores a new session.
	InsertSession(ctx context.Context, s model.BillingSession) error
	// GetSession returns a session by id or ErrSessionNotFound.
	GetSession(ctx context.Context, sessionID string) (model.BillingSession, error)
	// UpdateSession replaces an existing session row.
	UpdateSession(ctx context.Context, s model.BillingSession) error
	// PaidSessionsByUser lists a user's sessions currently in PAID state.
	PaidSessionsByUser(ctx context.Context, userID string) ([]model.BillingSession, error)
	// PaidSessionsIdleSince lists PAID sessions whose last sync is older
	// than the cutoff.  Used by the idle reaper.
	PaidSessionsIdleSince(ctx context.Context, cutoff time.Time) ([]model.BillingSession, error)
	// PutSettlement records the final accounting of an ended session.
	PutSettlement(ctx context.Context, st model.Settlement) error
	// GetSettlement returns the recorded settlement for a session or
	// ErrSettlementNotFound.
	GetSettlement(ctx context.Context, sessionID string) (model.Settlement, error)
}

// CourseCatalog exposes the course data the pricing resolver needs.
type CourseCatalog interface {
	// GetCourse returns a catalog entry or ErrCourseNotFound.
	GetCourse(ctx context.Context, courseID string) (model.Course, error)
}

// PricingStore memoizes resolved course pricing.  Resolution must be
// idempotent across restarts, so pinned pricing is persisted rather
// than held only in memory.
type PricingStore interface {
	// GetPricing returns pinned pricing or ErrCourseNotFound when the
	// course has never been resolved.
	GetPricing(ctx context.Context, courseID string) (model.CoursePricing, error)
	// PutPricing pins resolved pricing for a course.
	PutPricing(ctx context.Context, p model.CoursePricing) error
}
