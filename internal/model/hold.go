package model

import "time"

// HoldStatus is the lifecycle state of a hold.
type HoldStatus string

const (
	HoldActive   HoldStatus = "ACTIVE"   // funds escrowed, session still running
	HoldSettled  HoldStatus = "SETTLED"  // charged and refunded, terminal
	HoldReleased HoldStatus = "RELEASED" // abandoned with zero charge, terminal
)

// Hold represents an escrowed amount reserved against a future charge
// for exactly one billing session.  A session has at most one ACTIVE
// hold at any time.  Once settled, the charged and refunded amounts are
// recorded on the hold itself so that duplicate settlement requests can
// return the original result instead of moving money twice.
//
// Fields:
//  ID        – unique hold identifier (UUID).
//  UserID    – wallet owner the funds were escrowed from.
//  SessionID – billing session this hold backs.
//  Amount    – the escrowed amount (the session's lock amount).
//  Status    – ACTIVE, SETTLED or RELEASED.
//  Charged   – final charge taken at settlement (0 until settled).
//  Refunded  – unused portion returned at settlement (0 until settled).
//  CreatedAt – when the hold was placed.
//  SettledAt – when the hold left the ACTIVE state (nil while active).
type Hold struct {
	ID        string     // holds.id
	UserID    string     // holds.user_id
	SessionID string     // holds.session_id
	Amount    float64    // holds.amount
	Status    HoldStatus // holds.status
	Charged   float64    // holds.charged
	Refunded  float64    // holds.refunded
	CreatedAt time.Time  // holds.created_at
	SettledAt *time.Time // holds.settled_at (nullable)
}
