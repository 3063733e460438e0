// Package queue defines message payloads exchanged over the message broker.
package queue

// SessionSettledEvent is published when a billing session is settled.
// It contains enough information for downstream consumers to log, notify, or
// trigger analytics without querying the primary database.
type SessionSettledEvent struct {
	SessionID       string  `json:"session_id"`
	UserID          string  `json:"user_id"`
	VideoID         string  `json:"video_id"`
	CourseID        string  `json:"course_id,omitempty"`
	Reason          string  `json:"reason"`
	DurationSeconds float64 `json:"duration_seconds"`
	PricePerMinute  float64 `json:"price_per_minute"`
	AmountLocked    float64 `json:"amount_locked"`
	AmountCharged   float64 `json:"amount_charged"`
	Refund          float64 `json:"refund"`
	SettledAt       string  `json:"settled_at"`
}
