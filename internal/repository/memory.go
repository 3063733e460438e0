package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/murphlabs/murph-billing/internal/billing"
	"github.com/murphlabs/murph-billing/internal/model"
)

// MemoryStore is an in-process implementation of every billing store
// interface.  It backs the development deployment (no DB_HOST
// configured) and the package tests.  A single RWMutex is enough here:
// the ledger and the session manager already serialize logically
// conflicting operations, so the store only has to keep individual
// calls atomic.
type MemoryStore struct {
	mu          sync.RWMutex
	wallets     map[string]model.Wallet
	holds       map[string]model.Hold
	sessions    map[string]model.BillingSession
	settlements map[string]model.Settlement
	pricing     map[string]model.CoursePricing
	courses     map[string]model.Course
	journal     []model.WalletTransaction
	nextTxID    uint64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:     map[string]model.Wallet{},
		holds:       map[string]model.Hold{},
		sessions:    map[string]model.BillingSession{},
		settlements: map[string]model.Settlement{},
		pricing:     map[string]model.CoursePricing{},
		courses:     map[string]model.Course{},
		nextTxID:    1,
	}
}

// SeedCourses loads catalog entries, replacing any existing ones with
// the same id.  Used at startup for the demo catalog.
func (s *MemoryStore) SeedCourses(courses []model.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range courses {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		s.courses[c.ID] = c
	}
}

// ----- billing.WalletStore -----

func (s *MemoryStore) GetWallet(_ context.Context, userID string) (model.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[userID]
	if !ok {
		return model.Wallet{}, billing.ErrWalletNotFound
	}
	return w, nil
}

func (s *MemoryStore) GetHold(_ context.Context, holdID string) (model.Hold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.holds[holdID]
	if !ok {
		return model.Hold{}, billing.ErrHoldNotFound
	}
	return h, nil
}

// memWalletTx buffers the writes of one money movement.  InTx applies
// them only after the whole movement has succeeded, so a failing step
// leaves the maps untouched.
type memWalletTx struct {
	s   *MemoryStore
	ops []func()
}

func (t *memWalletTx) PutWallet(_ context.Context, w model.Wallet) error {
	t.ops = append(t.ops, func() { t.s.wallets[w.UserID] = w })
	return nil
}

func (t *memWalletTx) InsertHold(_ context.Context, h model.Hold) error {
	t.ops = append(t.ops, func() { t.s.holds[h.ID] = h })
	return nil
}

func (t *memWalletTx) UpdateHold(_ context.Context, h model.Hold) error {
	if _, ok := t.s.holds[h.ID]; !ok {
		return billing.ErrHoldNotFound
	}
	t.ops = append(t.ops, func() { t.s.holds[h.ID] = h })
	return nil
}

func (t *memWalletTx) AppendTransaction(_ context.Context, tx model.WalletTransaction) error {
	t.ops = append(t.ops, func() {
		tx.ID = t.s.nextTxID
		t.s.nextTxID++
		t.s.journal = append(t.s.journal, tx)
	})
	return nil
}

// InTx runs fn with a buffered transaction under the store lock.  The
// buffered writes are applied only when fn returns nil.
func (s *MemoryStore) InTx(_ context.Context, fn func(billing.WalletTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memWalletTx{s: s}
	if err := fn(tx); err != nil {
		return err
	}
	for _, op := range tx.ops {
		op()
	}
	return nil
}

func (s *MemoryStore) TransactionsByUser(_ context.Context, userID string, limit int) ([]model.WalletTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.WalletTransaction
	for i := len(s.journal) - 1; i >= 0; i-- {
		if s.journal[i].UserID != userID {
			continue
		}
		out = append(out, s.journal[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ----- billing.SessionStore -----

func (s *MemoryStore) InsertSession(_ context.Context, sess model.BillingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (model.BillingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return model.BillingSession{}, billing.ErrSessionNotFound
	}
	return sess, nil
}

func (s *MemoryStore) UpdateSession(_ context.Context, sess model.BillingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return billing.ErrSessionNotFound
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *MemoryStore) PaidSessionsByUser(_ context.Context, userID string) ([]model.BillingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.BillingSession
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.State == model.SessionPaid {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *MemoryStore) PaidSessionsIdleSince(_ context.Context, cutoff time.Time) ([]model.BillingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.BillingSession
	for _, sess := range s.sessions {
		if sess.State == model.SessionPaid && sess.LastSyncAt.Before(cutoff) {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *MemoryStore) PutSettlement(_ context.Context, st model.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settlements[st.SessionID] = st
	return nil
}

func (s *MemoryStore) GetSettlement(_ context.Context, sessionID string) (model.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.settlements[sessionID]
	if !ok {
		return model.Settlement{}, billing.ErrSettlementNotFound
	}
	return st, nil
}

// ----- billing.CourseCatalog / billing.PricingStore -----

func (s *MemoryStore) GetCourse(_ context.Context, courseID string) (model.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.courses[courseID]
	if !ok {
		return model.Course{}, billing.ErrCourseNotFound
	}
	return c, nil
}

func (s *MemoryStore) GetPricing(_ context.Context, courseID string) (model.CoursePricing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pricing[courseID]
	if !ok {
		return model.CoursePricing{}, billing.ErrCourseNotFound
	}
	return p, nil
}

func (s *MemoryStore) PutPricing(_ context.Context, p model.CoursePricing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pricing[p.CourseID] = p
	return nil
}

// ----- analytics -----

// EarningsByTeacher aggregates settled charges per course for the
// courses owned by one teacher.
func (s *MemoryStore) EarningsByTeacher(_ context.Context, teacherID string) ([]model.CourseEarnings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byCourse := map[string]*model.CourseEarnings{}
	for _, c := range s.courses {
		if c.TeacherID == teacherID {
			byCourse[c.ID] = &model.CourseEarnings{CourseID: c.ID, Title: c.Title}
		}
	}
	for _, sess := range s.sessions {
		e, ok := byCourse[sess.CourseID]
		if !ok || sess.State != model.SessionEnded {
			continue
		}
		st, ok := s.settlements[sess.ID]
		if !ok {
			continue
		}
		e.Sessions++
		e.TotalSeconds += st.DurationSeconds
		e.TotalCharged = billing.Round2(e.TotalCharged + st.AmountCharged)
	}

	out := make([]model.CourseEarnings, 0, len(byCourse))
	for _, e := range byCourse {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourseID < out[j].CourseID })
	return out, nil
}
