package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/murphlabs/murph-billing/internal/billing"
	"github.com/murphlabs/murph-billing/internal/model"
)

// SessionRepo provides MySQL-backed access to billing sessions and
// their settlements.  It implements billing.SessionStore and also
// serves the teacher earnings aggregation.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo returns a SessionRepo bound to the provided database.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

const sessionColumns = `id, user_id, video_id, course_id, price_per_minute, locked_amount,
	hold_id, state, accumulated_seconds, last_sync_at, created_at, ended_at`

// scanSession reads one session row from a *sql.Row or *sql.Rows.
func scanSession(scan func(dest ...interface{}) error) (model.BillingSession, error) {
	var (
		s       model.BillingSession
		state   string
		endedAt sql.NullTime
	)
	err := scan(&s.ID, &s.UserID, &s.VideoID, &s.CourseID, &s.PricePerMinute, &s.LockedAmount,
		&s.HoldID, &state, &s.AccumulatedSeconds, &s.LastSyncAt, &s.CreatedAt, &endedAt)
	if err != nil {
		return model.BillingSession{}, err
	}
	s.State = model.SessionState(state)
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	return s, nil
}

// InsertSession stores a new session.
func (r *SessionRepo) InsertSession(ctx context.Context, s model.BillingSession) error {
	const q = `INSERT INTO billing_sessions (` + sessionColumns + `)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var endedAt interface{}
	if s.EndedAt != nil {
		endedAt = s.EndedAt.UTC()
	}
	_, err := r.db.ExecContext(ctx, q,
		s.ID, s.UserID, s.VideoID, s.CourseID, s.PricePerMinute, s.LockedAmount,
		s.HoldID, string(s.State), s.AccumulatedSeconds, s.LastSyncAt.UTC(), s.CreatedAt.UTC(), endedAt)
	return err
}

// GetSession fetches a session or billing.ErrSessionNotFound.
func (r *SessionRepo) GetSession(ctx context.Context, sessionID string) (model.BillingSession, error) {
	const q = `SELECT ` + sessionColumns + ` FROM billing_sessions WHERE id = ?`
	row := r.db.QueryRowContext(ctx, q, sessionID)
	s, err := scanSession(row.Scan)
	if err == sql.ErrNoRows {
		return model.BillingSession{}, billing.ErrSessionNotFound
	}
	return s, err
}

// UpdateSession replaces the mutable columns of an existing session.
func (r *SessionRepo) UpdateSession(ctx context.Context, s model.BillingSession) error {
	const q = `UPDATE billing_sessions
	           SET price_per_minute = ?, locked_amount = ?, hold_id = ?, state = ?,
	               accumulated_seconds = ?, last_sync_at = ?, ended_at = ?
	           WHERE id = ?`
	var endedAt interface{}
	if s.EndedAt != nil {
		endedAt = s.EndedAt.UTC()
	}
	_, err := r.db.ExecContext(ctx, q,
		s.PricePerMinute, s.LockedAmount, s.HoldID, string(s.State),
		s.AccumulatedSeconds, s.LastSyncAt.UTC(), endedAt, s.ID)
	return err
}

// PaidSessionsByUser lists a user's sessions currently in PAID state.
func (r *SessionRepo) PaidSessionsByUser(ctx context.Context, userID string) ([]model.BillingSession, error) {
	const q = `SELECT ` + sessionColumns + ` FROM billing_sessions WHERE user_id = ? AND state = 'PAID'`
	return r.querySessions(ctx, q, userID)
}

// PaidSessionsIdleSince lists PAID sessions whose last sync predates
// the cutoff.  Used by the idle reaper.
func (r *SessionRepo) PaidSessionsIdleSince(ctx context.Context, cutoff time.Time) ([]model.BillingSession, error) {
	const q = `SELECT ` + sessionColumns + ` FROM billing_sessions WHERE state = 'PAID' AND last_sync_at < ?`
	return r.querySessions(ctx, q, cutoff.UTC())
}

func (r *SessionRepo) querySessions(ctx context.Context, q string, args ...interface{}) ([]model.BillingSession, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.BillingSession
	for rows.Next() {
		s, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PutSettlement records the final accounting of an ended session.  The
// insert is idempotent so a duplicate end signal cannot fail here.
func (r *SessionRepo) PutSettlement(ctx context.Context, st model.Settlement) error {
	const q = `INSERT INTO settlements
	             (session_id, duration_seconds, duration_minutes, price_per_minute,
	              amount_charged, amount_locked, refund, final_balance)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	           ON DUPLICATE KEY UPDATE session_id = session_id`
	_, err := r.db.ExecContext(ctx, q,
		st.SessionID, st.DurationSeconds, st.DurationMinutes, st.PricePerMinute,
		st.AmountCharged, st.AmountLocked, st.Refund, st.FinalBalance)
	return err
}

// GetSettlement fetches the recorded settlement for a session or
// billing.ErrSettlementNotFound.
func (r *SessionRepo) GetSettlement(ctx context.Context, sessionID string) (model.Settlement, error) {
	const q = `SELECT session_id, duration_seconds, duration_minutes, price_per_minute,
	                  amount_charged, amount_locked, refund, final_balance
	           FROM settlements WHERE session_id = ?`
	var st model.Settlement
	err := r.db.QueryRowContext(ctx, q, sessionID).
		Scan(&st.SessionID, &st.DurationSeconds, &st.DurationMinutes, &st.PricePerMinute,
			&st.AmountCharged, &st.AmountLocked, &st.Refund, &st.FinalBalance)
	if err == sql.ErrNoRows {
		return model.Settlement{}, billing.ErrSettlementNotFound
	}
	return st, err
}

// EarningsByTeacher aggregates settled charges per course for the
// courses owned by one teacher.  Courses with no settled sessions
// appear with zero totals.
func (r *SessionRepo) EarningsByTeacher(ctx context.Context, teacherID string) ([]model.CourseEarnings, error) {
	const q = `SELECT c.id, c.title,
	                  COUNT(st.session_id),
	                  COALESCE(SUM(st.duration_seconds), 0),
	                  COALESCE(SUM(st.amount_charged), 0)
	           FROM courses c
	           LEFT JOIN billing_sessions s ON s.course_id = c.id AND s.state = 'ENDED'
	           LEFT JOIN settlements st ON st.session_id = s.id
	           WHERE c.teacher_id = ?
	           GROUP BY c.id, c.title
	           ORDER BY c.id`
	rows, err := r.db.QueryContext(ctx, q, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.CourseEarnings
	for rows.Next() {
		var e model.CourseEarnings
		if err := rows.Scan(&e.CourseID, &e.Title, &e.Sessions, &e.TotalSeconds, &e.TotalCharged); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
