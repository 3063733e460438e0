package model

import "time"

// SessionState is the lifecycle state of a billing session.  The only
// legal transitions are PREVIEW→AWAITING_HOLD, AWAITING_HOLD→PAID,
// PAID→ENDED and PREVIEW→ENDED.  ENDED is terminal.
type SessionState string

const (
	SessionPreview      SessionState = "PREVIEW"       // free window, nothing billed
	SessionAwaitingHold SessionState = "AWAITING_HOLD" // pay gate reached, hold not yet placed
	SessionPaid         SessionState = "PAID"          // hold placed, metering live
	SessionEnded        SessionState = "ENDED"         // settled, terminal
)

// BillingSession is the server-authoritative record of one viewing
// session.  AccumulatedSeconds is monotonically non-decreasing for the
// lifetime of the session; periodic client syncs are merged with
// max(server, client) so late or duplicate deliveries can never roll
// time backwards.
//
// Fields:
//  ID                 – unique session identifier (UUID).
//  UserID             – the viewer being billed.
//  VideoID            – raw video reference (always set).
//  CourseID           – course the video belongs to ("" for raw videos).
//  PricePerMinute     – rate fixed at session start; authoritative for settlement.
//  LockedAmount       – the hold placed when the session went PAID.
//  HoldID             – back-reference to the ledger's hold ("" before PAID).
//  State              – see SessionState.
//  AccumulatedSeconds – billable watch time, monotonic.
//  LastSyncAt         – last time the client pushed progress; drives idle reaping.
//  CreatedAt          – when the session was created.
//  EndedAt            – when the session reached ENDED (nil before that).
type BillingSession struct {
	ID                 string       // billing_sessions.id
	UserID             string       // billing_sessions.user_id
	VideoID            string       // billing_sessions.video_id
	CourseID           string       // billing_sessions.course_id
	PricePerMinute     float64      // billing_sessions.price_per_minute
	LockedAmount       float64      // billing_sessions.locked_amount
	HoldID             string       // billing_sessions.hold_id
	State              SessionState // billing_sessions.state
	AccumulatedSeconds float64      // billing_sessions.accumulated_seconds
	LastSyncAt         time.Time    // billing_sessions.last_sync_at
	CreatedAt          time.Time    // billing_sessions.created_at
	EndedAt            *time.Time   // billing_sessions.ended_at (nullable)
}

// Settlement is the final accounting of an ended session.  It is
// computed exactly once; duplicate end requests (explicit end racing an
// exit beacon) receive the same values again.
type Settlement struct {
	SessionID       string  `json:"session_id"`
	DurationSeconds float64 `json:"duration_seconds"`
	DurationMinutes float64 `json:"duration_minutes"`
	PricePerMinute  float64 `json:"price_per_minute"`
	AmountCharged   float64 `json:"amount_charged"`
	AmountLocked    float64 `json:"amount_locked"`
	Refund          float64 `json:"refund"`
	FinalBalance    float64 `json:"final_balance"`
}
