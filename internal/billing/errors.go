// Package billing implements the metered billing core: the wallet
// ledger, the pricing resolver, the metering engine and the session
// state machine.  Handlers translate the sentinel errors defined here
// into HTTP responses; storage implementations return the same values
// so that callers can use errors.Is regardless of the backing store.
package billing

import "errors"

// ErrInsufficientFunds is returned when a hold is requested for more
// than the wallet's available balance.  It is user-visible and
// recoverable via top-up; callers must never retry it automatically.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrWalletNotFound is returned by stores when no wallet row exists for
// a user.  The ledger masks it by creating wallets on first touch, so
// it should not escape to the API surface.
var ErrWalletNotFound = errors.New("wallet not found")

// ErrHoldNotFound is returned when a settlement references an unknown
// hold id.
var ErrHoldNotFound = errors.New("hold not found")

// ErrHoldNotActive is returned when a hold is in a terminal state and
// the caller asked for something other than the recorded settlement.
var ErrHoldNotActive = errors.New("hold not active")

// ErrSessionNotFound is returned when an end or metering call
// references an unknown session.  Surfaced to the caller, not retried.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionNotPayable is returned when a start request targets a
// session that is already PAID or ENDED.
var ErrSessionNotPayable = errors.New("session not payable")

// ErrCourseNotFound is returned by the catalog for unknown course ids.
var ErrCourseNotFound = errors.New("course not found")

// ErrSettlementNotFound is returned by stores when no settlement has
// been recorded for a session yet.
var ErrSettlementNotFound = errors.New("settlement not found")

// ErrInvalidAmount is returned for zero or negative money amounts.
var ErrInvalidAmount = errors.New("invalid amount")
