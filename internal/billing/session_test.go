package billing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/murphlabs/murph-billing/internal/billing"
	"github.com/murphlabs/murph-billing/internal/model"
	"github.com/murphlabs/murph-billing/internal/repository"
)

type settledRecord struct {
	session model.BillingSession
	result  model.Settlement
	reason  string
}

type fixture struct {
	mem      *repository.MemoryStore
	ledger   *billing.Ledger
	resolver *billing.PricingResolver
	manager  *billing.SessionManager
	settled  *[]settledRecord
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mem := seededStore()
	ledger := billing.NewLedger(mem, 100)
	resolver := billing.NewPricingResolver(testPolicy(), mem, mem)
	settled := &[]settledRecord{}
	manager := billing.NewSessionManager(mem, ledger, resolver, billing.ManagerConfig{
		PreviewLimitSeconds:  120,
		SeekThresholdSeconds: 5,
		IdleTimeout:          90 * time.Second,
		ReapInterval:         time.Second,
	}, func(s model.BillingSession, st model.Settlement, reason string) {
		*settled = append(*settled, settledRecord{session: s, result: st, reason: reason})
	})
	return fixture{mem: mem, ledger: ledger, resolver: resolver, manager: manager, settled: settled}
}

func TestCoursePlaybackLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p, err := f.resolver.Resolve(ctx, "course-101")
	if err != nil {
		t.Fatalf("resolve pricing: %v", err)
	}

	id, err := f.manager.Start(ctx, billing.StartRequest{UserID: "u1", VideoID: "v1", CourseID: "course-101"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	s, _, err := f.manager.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.State != model.SessionPaid {
		t.Fatalf("state = %v, want PAID", s.State)
	}
	if s.PricePerMinute != p.PricePerMinute || s.LockedAmount != p.LockAmount {
		t.Fatalf("session pricing %v/%v, want resolver's %v/%v",
			s.PricePerMinute, s.LockedAmount, p.PricePerMinute, p.LockAmount)
	}

	// The hold moved the lock amount out of the available balance.
	bal, _ := f.ledger.GetBalance(ctx, "u1")
	if want := billing.Round2(100 - p.LockAmount); bal != want {
		t.Fatalf("balance after hold = %v, want %v", bal, want)
	}

	// Periodic sync reports five minutes watched.
	s, cost, err := f.manager.Sync(ctx, billing.SyncRequest{SessionID: id, AccumulatedSeconds: 300})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if s.AccumulatedSeconds != 300 {
		t.Fatalf("accumulated = %v, want 300", s.AccumulatedSeconds)
	}
	if want := billing.ClampedCost(300, p.PricePerMinute, p.LockAmount); cost != want {
		t.Fatalf("live cost = %v, want %v", cost, want)
	}

	st, err := f.manager.End(ctx, id, 300, billing.EndReasonExplicit)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	wantCharge := billing.ClampedCost(300, p.PricePerMinute, p.LockAmount)
	if st.AmountCharged != wantCharge {
		t.Fatalf("charged = %v, want %v", st.AmountCharged, wantCharge)
	}
	if got := billing.Round2(st.AmountCharged + st.Refund); got != p.LockAmount {
		t.Fatalf("charge+refund = %v, want lock %v", got, p.LockAmount)
	}
	if want := billing.Round2(100 - wantCharge); st.FinalBalance != want {
		t.Fatalf("final balance = %v, want %v", st.FinalBalance, want)
	}
	if len(*f.settled) != 1 || (*f.settled)[0].reason != billing.EndReasonExplicit {
		t.Fatalf("settled hook = %+v, want one explicit-end record", *f.settled)
	}
}

func TestPreviewGateAndUpgrade(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s, err := f.manager.BeginPreview(ctx, "u1", "v1", "course-101")
	if err != nil {
		t.Fatalf("begin preview: %v", err)
	}
	if s.State != model.SessionPreview {
		t.Fatalf("state = %v, want PREVIEW", s.State)
	}

	// Below the limit the session stays free.
	s2, cost, err := f.manager.Sync(ctx, billing.SyncRequest{SessionID: s.ID, AccumulatedSeconds: 60})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if s2.State != model.SessionPreview || cost != 0 {
		t.Fatalf("state = %v cost = %v, want PREVIEW and 0", s2.State, cost)
	}

	// Crossing the limit arms the pay gate.
	s2, cost, err = f.manager.Sync(ctx, billing.SyncRequest{SessionID: s.ID, AccumulatedSeconds: 130})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if s2.State != model.SessionAwaitingHold || cost != 0 {
		t.Fatalf("state = %v cost = %v, want AWAITING_HOLD and 0", s2.State, cost)
	}

	// Paying upgrades in place and restarts billable time at zero.
	id, err := f.manager.Start(ctx, billing.StartRequest{UserID: "u1", VideoID: "v1", CourseID: "course-101", SessionID: s.ID})
	if err != nil {
		t.Fatalf("start after gate: %v", err)
	}
	if id != s.ID {
		t.Fatalf("upgrade returned id %s, want %s", id, s.ID)
	}
	s3, _, err := f.manager.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s3.State != model.SessionPaid {
		t.Fatalf("state = %v, want PAID", s3.State)
	}
	if s3.AccumulatedSeconds != 0 {
		t.Fatalf("accumulated = %v, want reset to 0 on upgrade", s3.AccumulatedSeconds)
	}

	// Duplicate start is a no-op: only one hold placed.
	if _, err := f.manager.Start(ctx, billing.StartRequest{UserID: "u1", VideoID: "v1", CourseID: "course-101", SessionID: s.ID}); err != nil {
		t.Fatalf("duplicate start: %v", err)
	}
	p, _ := f.resolver.Resolve(ctx, "course-101")
	bal, _ := f.ledger.GetBalance(ctx, "u1")
	if want := billing.Round2(100 - p.LockAmount); bal != want {
		t.Fatalf("balance = %v, want single hold %v", bal, want)
	}
}

func TestPreviewEndedBeforeGateIsFree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s, _ := f.manager.BeginPreview(ctx, "u1", "v1", "")
	_, _, _ = f.manager.Sync(ctx, billing.SyncRequest{SessionID: s.ID, AccumulatedSeconds: 45})

	st, err := f.manager.End(ctx, s.ID, 45, billing.EndReasonExplicit)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if st.AmountCharged != 0 || st.Refund != 0 {
		t.Fatalf("settlement = %+v, want nothing charged", st)
	}
	if st.FinalBalance != 100 {
		t.Fatalf("balance = %v, want untouched 100", st.FinalBalance)
	}
}

func TestInsufficientFundsBlocksUpgrade(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s, _ := f.manager.BeginPreview(ctx, "u1", "v1", "")
	_, _, _ = f.manager.Sync(ctx, billing.SyncRequest{SessionID: s.ID, AccumulatedSeconds: 130})

	// Lock proposal exceeds the default balance.
	_, err := f.manager.Start(ctx, billing.StartRequest{UserID: "u1", VideoID: "v1", SessionID: s.ID, LockAmount: 150})
	if err != billing.ErrInsufficientFunds {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	got, _, _ := f.manager.Get(ctx, s.ID)
	if got.State != model.SessionAwaitingHold {
		t.Fatalf("state = %v, want still AWAITING_HOLD", got.State)
	}

	// After a top-up the same start succeeds.
	if _, err := f.ledger.TopUp(ctx, "u1", 100); err != nil {
		t.Fatalf("top-up: %v", err)
	}
	if _, err := f.manager.Start(ctx, billing.StartRequest{UserID: "u1", VideoID: "v1", SessionID: s.ID, LockAmount: 150}); err != nil {
		t.Fatalf("start after top-up: %v", err)
	}
	got, _, _ = f.manager.Get(ctx, s.ID)
	if got.State != model.SessionPaid || got.LockedAmount != 150 {
		t.Fatalf("session = %+v, want PAID with lock 150", got)
	}
}

func TestEndIsIdempotentUnderDuplicateSignals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.manager.Start(ctx, billing.StartRequest{UserID: "u1", VideoID: "v1", DurationSeconds: 600})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_, _, _ = f.manager.Sync(ctx, billing.SyncRequest{SessionID: id, AccumulatedSeconds: 120})

	first, err := f.manager.End(ctx, id, 120, billing.EndReasonExplicit)
	if err != nil {
		t.Fatalf("first end: %v", err)
	}
	// The beacon lands after the explicit end, reporting a stale count.
	second, err := f.manager.End(ctx, id, 90, billing.EndReasonBeacon)
	if err != nil {
		t.Fatalf("second end: %v", err)
	}
	if second != first {
		t.Fatalf("duplicate end %+v differs from first %+v", second, first)
	}
	bal, _ := f.ledger.GetBalance(ctx, "u1")
	if bal != first.FinalBalance {
		t.Fatalf("balance = %v, want unchanged %v", bal, first.FinalBalance)
	}
	if len(*f.settled) != 1 {
		t.Fatalf("settled hook fired %d times, want 1", len(*f.settled))
	}

	// Syncing an ended session is a harmless no-op.
	s, _, err := f.manager.Sync(ctx, billing.SyncRequest{SessionID: id, AccumulatedSeconds: 500})
	if err != nil {
		t.Fatalf("sync after end: %v", err)
	}
	if s.State != model.SessionEnded || s.AccumulatedSeconds != first.DurationSeconds {
		t.Fatalf("session after late sync = %+v, want unchanged ENDED", s)
	}
}

func TestSyncIsMonotonic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, _ := f.manager.Start(ctx, billing.StartRequest{UserID: "u1", VideoID: "v1", DurationSeconds: 600})
	s, _, err := f.manager.Sync(ctx, billing.SyncRequest{SessionID: id, AccumulatedSeconds: 100})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if s.AccumulatedSeconds != 100 {
		t.Fatalf("accumulated = %v, want 100", s.AccumulatedSeconds)
	}

	// An out-of-order delivery with a smaller count never rolls back.
	s, _, err = f.manager.Sync(ctx, billing.SyncRequest{SessionID: id, AccumulatedSeconds: 40})
	if err != nil {
		t.Fatalf("stale sync: %v", err)
	}
	if s.AccumulatedSeconds != 100 {
		t.Fatalf("accumulated = %v, want still 100 after stale sync", s.AccumulatedSeconds)
	}
}

func TestSyncMergesMeterEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, _ := f.manager.Start(ctx, billing.StartRequest{UserID: "u1", VideoID: "v1", DurationSeconds: 600})
	now := time.Now().UTC()
	s, _, err := f.manager.Sync(ctx, billing.SyncRequest{
		SessionID:          id,
		AccumulatedSeconds: 10, // client undercounts
		Events: []billing.PlaybackEvent{
			{State: billing.PlaybackPlaying, PositionSeconds: 0, Timestamp: now.Add(-40 * time.Second)},
			{State: billing.PlaybackPaused, PositionSeconds: 30, Timestamp: now.Add(-10 * time.Second)},
		},
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if s.AccumulatedSeconds != 30 {
		t.Fatalf("accumulated = %v, want meter's 30", s.AccumulatedSeconds)
	}
}

func TestStartSupersedesOtherPaidSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id1, err := f.manager.Start(ctx, billing.StartRequest{UserID: "u1", VideoID: "v1", DurationSeconds: 600})
	if err != nil {
		t.Fatalf("start first: %v", err)
	}
	id2, err := f.manager.Start(ctx, billing.StartRequest{UserID: "u1", VideoID: "v2", DurationSeconds: 300})
	if err != nil {
		t.Fatalf("start second: %v", err)
	}
	if id1 == id2 {
		t.Fatal("second start reused the first session id")
	}

	old, _, _ := f.manager.Get(ctx, id1)
	if old.State != model.SessionEnded {
		t.Fatalf("first session state = %v, want ENDED", old.State)
	}
	if len(*f.settled) != 1 || (*f.settled)[0].reason != billing.EndReasonSuperseded {
		t.Fatalf("settled hook = %+v, want one superseded record", *f.settled)
	}

	// Nothing was watched on the first session: its lock (10) came back
	// in full, so only the second lock (5) is escrowed.
	bal, _ := f.ledger.GetBalance(ctx, "u1")
	if bal != 95 {
		t.Fatalf("balance = %v, want 95", bal)
	}
}

func TestReaperSettlesIdleSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, _ := f.manager.Start(ctx, billing.StartRequest{UserID: "u1", VideoID: "v1", DurationSeconds: 600})
	_, _, _ = f.manager.Sync(ctx, billing.SyncRequest{SessionID: id, AccumulatedSeconds: 60})

	// Backdate the last sync past the idle timeout, as if the browser
	// crashed mid-playback.
	s, err := f.mem.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	s.LastSyncAt = time.Now().UTC().Add(-5 * time.Minute)
	if err := f.mem.UpdateSession(ctx, s); err != nil {
		t.Fatalf("update session: %v", err)
	}

	n, err := f.manager.ReapIdle(ctx)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if n != 1 {
		t.Fatalf("reaped %d sessions, want 1", n)
	}
	got, _, _ := f.manager.Get(ctx, id)
	if got.State != model.SessionEnded {
		t.Fatalf("state = %v, want ENDED", got.State)
	}
	if len(*f.settled) != 1 || (*f.settled)[0].reason != billing.EndReasonReaped {
		t.Fatalf("settled hook = %+v, want one reaped record", *f.settled)
	}
	// The synced 60 seconds were persisted before the crash and are
	// what the reaper settles on.
	st, err := f.mem.GetSettlement(ctx, id)
	if err != nil {
		t.Fatalf("get settlement: %v", err)
	}
	if st.AmountCharged != billing.Cost(60, 2.0) {
		t.Fatalf("charged = %v, want %v", st.AmountCharged, billing.Cost(60, 2.0))
	}

	// A second pass finds nothing.
	n, err = f.manager.ReapIdle(ctx)
	if err != nil {
		t.Fatalf("second reap: %v", err)
	}
	if n != 0 {
		t.Fatalf("second reap settled %d, want 0", n)
	}
}

// brokenSessionStore fails selected session writes once, simulating a
// database error between the hold placement and the session write.
type brokenSessionStore struct {
	*repository.MemoryStore
	failInsert bool
	failUpdate bool
}

var errStoreDown = errors.New("store down")

func (b *brokenSessionStore) InsertSession(ctx context.Context, s model.BillingSession) error {
	if b.failInsert {
		b.failInsert = false
		return errStoreDown
	}
	return b.MemoryStore.InsertSession(ctx, s)
}

func (b *brokenSessionStore) UpdateSession(ctx context.Context, s model.BillingSession) error {
	if b.failUpdate {
		b.failUpdate = false
		return errStoreDown
	}
	return b.MemoryStore.UpdateSession(ctx, s)
}

func TestFailedSessionInsertReleasesHold(t *testing.T) {
	ctx := context.Background()
	mem := seededStore()
	broken := &brokenSessionStore{MemoryStore: mem, failInsert: true}
	ledger := billing.NewLedger(mem, 100)
	resolver := billing.NewPricingResolver(testPolicy(), mem, mem)
	manager := billing.NewSessionManager(broken, ledger, resolver, billing.ManagerConfig{
		PreviewLimitSeconds:  120,
		SeekThresholdSeconds: 5,
		IdleTimeout:          90 * time.Second,
		ReapInterval:         time.Second,
	}, nil)

	_, err := manager.Start(ctx, billing.StartRequest{UserID: "u1", VideoID: "v1", DurationSeconds: 600})
	if err != errStoreDown {
		t.Fatalf("err = %v, want the store failure", err)
	}

	// The hold placed before the failed write must not stay escrowed:
	// no session row exists, so nothing could ever settle it.
	w, err := mem.GetWallet(ctx, "u1")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.AvailableBalance != 100 || w.HeldAmount != 0 {
		t.Fatalf("wallet = %+v, want available 100 held 0", w)
	}

	// The store recovered; a retry succeeds and escrows normally.
	if _, err := manager.Start(ctx, billing.StartRequest{UserID: "u1", VideoID: "v1", DurationSeconds: 600}); err != nil {
		t.Fatalf("retry start: %v", err)
	}
	w, _ = mem.GetWallet(ctx, "u1")
	if w.AvailableBalance != 90 || w.HeldAmount != 10 {
		t.Fatalf("wallet after retry = %+v, want available 90 held 10", w)
	}
}

func TestFailedUpgradeReleasesHold(t *testing.T) {
	ctx := context.Background()
	mem := seededStore()
	broken := &brokenSessionStore{MemoryStore: mem}
	ledger := billing.NewLedger(mem, 100)
	resolver := billing.NewPricingResolver(testPolicy(), mem, mem)
	manager := billing.NewSessionManager(broken, ledger, resolver, billing.ManagerConfig{
		PreviewLimitSeconds:  120,
		SeekThresholdSeconds: 5,
		IdleTimeout:          90 * time.Second,
		ReapInterval:         time.Second,
	}, nil)

	s, _ := manager.BeginPreview(ctx, "u1", "v1", "")
	_, _, _ = manager.Sync(ctx, billing.SyncRequest{SessionID: s.ID, AccumulatedSeconds: 130})

	broken.failUpdate = true
	_, err := manager.Start(ctx, billing.StartRequest{UserID: "u1", VideoID: "v1", SessionID: s.ID, LockAmount: 20})
	if err != errStoreDown {
		t.Fatalf("err = %v, want the store failure", err)
	}

	w, _ := mem.GetWallet(ctx, "u1")
	if w.AvailableBalance != 100 || w.HeldAmount != 0 {
		t.Fatalf("wallet = %+v, want available 100 held 0", w)
	}
	got, _, _ := manager.Get(ctx, s.ID)
	if got.State != model.SessionAwaitingHold {
		t.Fatalf("state = %v, want still AWAITING_HOLD", got.State)
	}
}

func TestSyncUnknownSession(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.manager.Sync(context.Background(), billing.SyncRequest{SessionID: "nope"})
	if err != billing.ErrSessionNotFound {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}
