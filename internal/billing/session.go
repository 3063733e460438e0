package billing

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/murphlabs/murph-billing/internal/model"
)

// End reasons passed to the settlement hook and logs.
const (
	EndReasonExplicit   = "end"        // client called /session/end
	EndReasonBeacon     = "beacon"     // page-exit beacon
	EndReasonSuperseded = "superseded" // user started another session
	EndReasonReaped     = "reaped"     // idle timeout, no end signal ever arrived
)

// ManagerConfig carries the session lifecycle policy values.
type ManagerConfig struct {
	// PreviewLimitSeconds is the free, unmetered window before the pay
	// gate engages.
	PreviewLimitSeconds float64
	// SeekThresholdSeconds is the forward jump that flags a seek.
	SeekThresholdSeconds float64
	// IdleTimeout is how long a PAID session may go without a sync
	// before the reaper settles it (browser crash safeguard).
	IdleTimeout time.Duration
	// ReapInterval is how often the background reaper runs.
	ReapInterval time.Duration
}

// SettledFunc is invoked after a session settles.  Used to publish the
// settlement event and bump metrics without coupling the state machine
// to the broker or the metrics registry.
type SettledFunc func(s model.BillingSession, st model.Settlement, reason string)

// StartRequest asks for the AWAITING_HOLD → PAID transition.  When
// SessionID names an existing PREVIEW/AWAITING_HOLD session it is
// upgraded in place; otherwise a fresh session is created directly in
// PAID.  Client-sent pricing is informational only: for courses the
// server-resolved rate and lock are authoritative.
type StartRequest struct {
	UserID          string
	VideoID         string
	CourseID        string
	SessionID       string
	LockAmount      float64 // client proposal, used only for raw videos
	PricePerMinute  float64 // ignored for courses; raw-video fallback
	DurationSeconds float64 // raw-video playback duration, if known
}

// SyncRequest is the periodic metering push from the client.
type SyncRequest struct {
	SessionID          string
	AccumulatedSeconds float64
	Events             []PlaybackEvent
}

// SessionManager owns the billing session lifecycle.  It coordinates
// the wallet ledger and the pricing resolver, feeds playback events to
// per-session meters, and enforces the PREVIEW → AWAITING_HOLD → PAID →
// ENDED state machine.  All operations on one session are serialized
// through a per-session mutex; the max-merge rule keeps accumulated
// time monotonic against duplicate or out-of-order syncs.
type SessionManager struct {
	store     SessionStore
	ledger    *Ledger
	pricing   *PricingResolver
	cfg       ManagerConfig
	onSettled SettledFunc

	mu     sync.Mutex // guards locks and meters
	locks  map[string]*sync.Mutex
	meters map[string]*Meter
}

// NewSessionManager wires the state machine to its collaborators.  The
// onSettled hook may be nil.
func NewSessionManager(store SessionStore, ledger *Ledger, pricing *PricingResolver, cfg ManagerConfig, onSettled SettledFunc) *SessionManager {
	return &SessionManager{
		store:     store,
		ledger:    ledger,
		pricing:   pricing,
		cfg:       cfg,
		onSettled: onSettled,
		locks:     map[string]*sync.Mutex{},
		meters:    map[string]*Meter{},
	}
}

// sessionLock returns the mutex serializing one session's operations.
func (m *SessionManager) sessionLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	mu, ok := m.locks[sessionID]
	if !ok {
		mu = &sync.Mutex{}
		m.locks[sessionID] = mu
	}
	return mu
}

// meter returns the live meter for a session, creating it on demand.
func (m *SessionManager) meter(sessionID string) *Meter {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt, ok := m.meters[sessionID]
	if !ok {
		mt = NewMeter(m.cfg.SeekThresholdSeconds)
		m.meters[sessionID] = mt
	}
	return mt
}

// forget drops the per-session meter and lock once a session is ENDED.
func (m *SessionManager) forget(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.meters, sessionID)
	delete(m.locks, sessionID)
}

// BeginPreview creates a session in the free PREVIEW state.  No hold is
// placed and nothing watched before the pay gate is ever billed.
func (m *SessionManager) BeginPreview(ctx context.Context, userID, videoID, courseID string) (model.BillingSession, error) {
	now := time.Now().UTC()
	s := model.BillingSession{
		ID:         uuid.NewString(),
		UserID:     userID,
		VideoID:    videoID,
		CourseID:   courseID,
		State:      model.SessionPreview,
		LastSyncAt: now,
		CreatedAt:  now,
	}
	if err := m.store.InsertSession(ctx, s); err != nil {
		return model.BillingSession{}, err
	}
	return s, nil
}

// Start drives AWAITING_HOLD → PAID.  It resolves authoritative
// pricing, places the hold, and activates metering.  Any other PAID
// session of the same user is settled first: switching videos forces an
// implicit end of the old session.  On ErrInsufficientFunds the session
// (if any) stays in AWAITING_HOLD and the error is surfaced, never
// silently retried.
func (m *SessionManager) Start(ctx context.Context, req StartRequest) (string, error) {
	// Implicit end of the user's other paid sessions.
	others, err := m.store.PaidSessionsByUser(ctx, req.UserID)
	if err != nil {
		return "", err
	}
	for _, o := range others {
		if o.ID == req.SessionID {
			continue
		}
		if _, err := m.End(ctx, o.ID, 0, EndReasonSuperseded); err != nil {
			return "", err
		}
	}

	rate, lock, err := m.resolveRate(ctx, req)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	if req.SessionID != "" {
		return req.SessionID, m.upgrade(ctx, req, rate, lock, now)
	}

	s := model.BillingSession{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		VideoID:        req.VideoID,
		CourseID:       req.CourseID,
		PricePerMinute: rate,
		LastSyncAt:     now,
		CreatedAt:      now,
	}
	hold, err := m.ledger.PlaceHold(ctx, req.UserID, lock, s.ID)
	if err != nil {
		return "", err
	}
	s.State = model.SessionPaid
	s.HoldID = hold.ID
	s.LockedAmount = hold.Amount
	if err := m.store.InsertSession(ctx, s); err != nil {
		// No session row means nothing can ever settle this hold; give
		// the funds back before surfacing the error.
		if rerr := m.ledger.Release(ctx, hold.ID); rerr != nil {
			log.Printf("billing: release hold %s after failed session insert: %v", hold.ID, rerr)
		}
		return "", err
	}
	m.meter(s.ID)
	return s.ID, nil
}

// upgrade transitions an existing PREVIEW/AWAITING_HOLD session to
// PAID.  The preview window is unmetered, so the accumulator restarts
// from zero: billable time begins at the moment the hold is placed.
func (m *SessionManager) upgrade(ctx context.Context, req StartRequest, rate, lock float64, now time.Time) error {
	mu := m.sessionLock(req.SessionID)
	mu.Lock()
	defer mu.Unlock()

	s, err := m.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return err
	}
	if s.UserID != req.UserID {
		return ErrSessionNotFound
	}
	switch s.State {
	case model.SessionPaid:
		return nil // duplicate start, hold already placed
	case model.SessionPreview, model.SessionAwaitingHold:
	default:
		return ErrSessionNotPayable
	}

	hold, err := m.ledger.PlaceHold(ctx, req.UserID, lock, s.ID)
	if err != nil {
		return err
	}
	s.State = model.SessionPaid
	s.HoldID = hold.ID
	s.LockedAmount = hold.Amount
	s.PricePerMinute = rate
	s.AccumulatedSeconds = 0
	s.LastSyncAt = now
	if err := m.store.UpdateSession(ctx, s); err != nil {
		// The stored session still says PREVIEW/AWAITING_HOLD, so no end
		// signal would ever settle the hold; abandon it.
		if rerr := m.ledger.Release(ctx, hold.ID); rerr != nil {
			log.Printf("billing: release hold %s after failed session upgrade: %v", hold.ID, rerr)
		}
		return err
	}
	m.mu.Lock()
	m.meters[s.ID] = NewMeter(m.cfg.SeekThresholdSeconds)
	m.mu.Unlock()
	return nil
}

// resolveRate returns the authoritative per-minute rate and lock amount
// for a start request.  Course pricing always comes from the resolver;
// raw videos use the default rate with the lock derived from the video
// duration, falling back to the client's proposal when no duration is
// known.
func (m *SessionManager) resolveRate(ctx context.Context, req StartRequest) (rate, lock float64, err error) {
	if req.CourseID != "" {
		p, err := m.pricing.Resolve(ctx, req.CourseID)
		if err != nil {
			return 0, 0, err
		}
		return p.PricePerMinute, p.LockAmount, nil
	}
	if req.DurationSeconds > 0 {
		p := m.pricing.RawVideo(req.DurationSeconds)
		return p.PricePerMinute, p.LockAmount, nil
	}
	if req.LockAmount > 0 {
		rate = req.PricePerMinute
		if rate <= 0 {
			rate = m.pricing.policy.DefaultPricePerMinute
		}
		return rate, Round2(req.LockAmount), nil
	}
	p := m.pricing.RawVideo(0)
	return p.PricePerMinute, p.LockAmount, nil
}

// Sync applies a periodic metering push.  Accumulated time is merged
// with max(server, client, meter) so it never decreases.  In PREVIEW,
// crossing the free limit moves the session to AWAITING_HOLD.  Syncing
// an ENDED session is a harmless no-op returning the final state, since
// the client fires syncs without awaiting acknowledgement.
func (m *SessionManager) Sync(ctx context.Context, req SyncRequest) (model.BillingSession, float64, error) {
	mu := m.sessionLock(req.SessionID)
	mu.Lock()
	defer mu.Unlock()

	s, err := m.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return model.BillingSession{}, 0, err
	}
	if s.State == model.SessionEnded {
		return s, ClampedCost(s.AccumulatedSeconds, s.PricePerMinute, s.LockedAmount), nil
	}

	mt := m.meter(req.SessionID)
	for _, ev := range req.Events {
		mt.Apply(ev)
	}
	now := time.Now().UTC()

	merged := s.AccumulatedSeconds
	if req.AccumulatedSeconds > merged {
		merged = req.AccumulatedSeconds
	}
	if sv := mt.Accumulated(now); sv > merged {
		merged = sv
	}
	s.AccumulatedSeconds = merged
	s.LastSyncAt = now

	if s.State == model.SessionPreview && merged >= m.cfg.PreviewLimitSeconds {
		s.State = model.SessionAwaitingHold
	}
	if err := m.store.UpdateSession(ctx, s); err != nil {
		return model.BillingSession{}, 0, err
	}

	cost := 0.0
	if s.State == model.SessionPaid {
		cost = ClampedCost(merged, s.PricePerMinute, s.LockedAmount)
	}
	return s, cost, nil
}

// Get returns a session with its live cost, including any open playing
// segment, without mutating stored state.
func (m *SessionManager) Get(ctx context.Context, sessionID string) (model.BillingSession, float64, error) {
	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return model.BillingSession{}, 0, err
	}
	seconds := s.AccumulatedSeconds
	if s.State == model.SessionPaid {
		m.mu.Lock()
		mt := m.meters[sessionID]
		m.mu.Unlock()
		if mt != nil {
			if live := mt.Accumulated(time.Now().UTC()); live > seconds {
				seconds = live
			}
		}
		return s, ClampedCost(seconds, s.PricePerMinute, s.LockedAmount), nil
	}
	return s, 0, nil
}

// End drives the transition to ENDED and settles the hold.  The
// transition is idempotent: a duplicate end (explicit end racing the
// exit beacon) returns the previously recorded settlement and the
// wallet is charged exactly once.  Ending a PREVIEW or AWAITING_HOLD
// session settles nothing: no hold was ever placed.
func (m *SessionManager) End(ctx context.Context, sessionID string, clientSeconds float64, reason string) (model.Settlement, error) {
	mu := m.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return model.Settlement{}, err
	}
	if s.State == model.SessionEnded {
		return m.store.GetSettlement(ctx, sessionID)
	}

	now := time.Now().UTC()
	final := s.AccumulatedSeconds
	if clientSeconds > final {
		final = clientSeconds
	}
	m.mu.Lock()
	mt := m.meters[sessionID]
	m.mu.Unlock()
	if mt != nil {
		if sv := mt.Finish(now); sv > final {
			final = sv
		}
	}

	st := model.Settlement{
		SessionID:       sessionID,
		DurationSeconds: final,
		DurationMinutes: Round2(final / 60.0),
		PricePerMinute:  s.PricePerMinute,
		AmountLocked:    s.LockedAmount,
	}

	if s.State == model.SessionPaid && s.HoldID != "" {
		cost := ClampedCost(final, s.PricePerMinute, s.LockedAmount)
		res, err := m.ledger.Settle(ctx, s.HoldID, cost)
		if err != nil {
			return model.Settlement{}, err
		}
		st.AmountCharged = res.Charged
		st.Refund = res.Refunded
		st.FinalBalance = res.Balance
	} else {
		// Free path: the user never continued past the preview gate.
		bal, err := m.ledger.GetBalance(ctx, s.UserID)
		if err != nil {
			return model.Settlement{}, err
		}
		st.FinalBalance = bal
	}

	s.AccumulatedSeconds = final
	s.State = model.SessionEnded
	s.EndedAt = &now
	if err := m.store.UpdateSession(ctx, s); err != nil {
		return model.Settlement{}, err
	}
	if err := m.store.PutSettlement(ctx, st); err != nil {
		return model.Settlement{}, err
	}
	m.forget(sessionID)

	if m.onSettled != nil {
		m.onSettled(s, st, reason)
	}
	return st, nil
}

// ReapIdle settles PAID sessions that have not synced within the idle
// timeout.  This is the failure-path safeguard for clients that crashed
// or lost connectivity before sending any end signal; the periodic
// syncs already persisted most of their accumulated time.
func (m *SessionManager) ReapIdle(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-m.cfg.IdleTimeout)
	idle, err := m.store.PaidSessionsIdleSince(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range idle {
		if _, err := m.End(ctx, s.ID, 0, EndReasonReaped); err != nil {
			log.Printf("billing-reaper: settle session %s failed: %v", s.ID, err)
			continue
		}
		n++
	}
	return n, nil
}

// RunReaper runs the idle reaper on a fixed interval until the context
// is cancelled.  Intended to be started as a goroutine from main.
func (m *SessionManager) RunReaper(ctx context.Context) {
	t := time.NewTicker(m.cfg.ReapInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := m.ReapIdle(ctx)
			if err != nil {
				log.Printf("billing-reaper: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("billing-reaper: settled %d idle session(s)", n)
			}
		}
	}
}
