package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/murphlabs/murph-billing/internal/billing"
	"github.com/murphlabs/murph-billing/internal/model"
	"github.com/murphlabs/murph-billing/internal/repository"
)

func testPolicy() billing.PricingPolicy {
	return billing.PricingPolicy{
		LockFraction:           0.5,
		RatePerStar:            0.5,
		DefaultPricePerMinute:  2.0,
		RatingMin:              3.0,
		RatingMax:              5.0,
		DefaultDurationMinutes: 60,
	}
}

func seededStore() *repository.MemoryStore {
	mem := repository.NewMemoryStore()
	mem.SeedCourses([]model.Course{
		{ID: "course-101", Title: "Algebra Foundations", TeacherID: "teacher-1", DurationMinutes: 90, CreatedAt: time.Now().UTC()},
	})
	return mem
}

func TestResolvePinsPricing(t *testing.T) {
	ctx := context.Background()
	mem := seededStore()
	r := billing.NewPricingResolver(testPolicy(), mem, mem)

	p, err := r.Resolve(ctx, "course-101")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.Rating < 3.0 || p.Rating > 5.0 {
		t.Fatalf("rating %v outside [3,5]", p.Rating)
	}
	if want := billing.Round2(p.Rating * 0.5); p.PricePerMinute != want {
		t.Fatalf("price = %v, want rating*0.5 = %v", p.PricePerMinute, want)
	}
	if p.TotalDurationMinutes != 90 {
		t.Fatalf("duration = %v, want catalog 90", p.TotalDurationMinutes)
	}
	if want := billing.Round2(0.5 * 90 * p.PricePerMinute); p.LockAmount != want {
		t.Fatalf("lock = %v, want %v", p.LockAmount, want)
	}

	// Same resolver returns the identical pinned values.
	again, err := r.Resolve(ctx, "course-101")
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if again != p {
		t.Fatalf("second resolve %+v differs from first %+v", again, p)
	}

	// A fresh resolver over the same store reads the stored pin rather
	// than recomputing.
	r2 := billing.NewPricingResolver(testPolicy(), mem, mem)
	fresh, err := r2.Resolve(ctx, "course-101")
	if err != nil {
		t.Fatalf("resolve from fresh resolver: %v", err)
	}
	if fresh != p {
		t.Fatalf("fresh resolver %+v differs from pinned %+v", fresh, p)
	}
}

func TestResolveUnknownCourseUsesDefaultDuration(t *testing.T) {
	mem := repository.NewMemoryStore()
	r := billing.NewPricingResolver(testPolicy(), mem, mem)
	p, err := r.Resolve(context.Background(), "not-in-catalog")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.TotalDurationMinutes != 60 {
		t.Fatalf("duration = %v, want default 60", p.TotalDurationMinutes)
	}
}

func TestRawVideoPricing(t *testing.T) {
	r := billing.NewPricingResolver(testPolicy(), repository.NewMemoryStore(), repository.NewMemoryStore())

	tests := []struct {
		name            string
		durationSeconds float64
		wantMinutes     float64
		wantLock        float64
	}{
		{"ten minute video", 600, 10, 10},   // 0.5 * 10 * 2.0
		{"rounds up to whole minutes", 90, 2, 2},
		{"unknown duration falls back", 0, 60, 60},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := r.RawVideo(tc.durationSeconds)
			if p.PricePerMinute != 2.0 {
				t.Fatalf("price = %v, want default 2.0", p.PricePerMinute)
			}
			if p.TotalDurationMinutes != tc.wantMinutes {
				t.Fatalf("minutes = %v, want %v", p.TotalDurationMinutes, tc.wantMinutes)
			}
			if p.LockAmount != tc.wantLock {
				t.Fatalf("lock = %v, want %v", p.LockAmount, tc.wantLock)
			}
		})
	}
}

func TestCostHelpers(t *testing.T) {
	if got := billing.Cost(300, 2.0); got != 10 {
		t.Fatalf("Cost(300s @ 2.0/min) = %v, want 10", got)
	}
	if got := billing.Cost(90, 2.0); got != 3 {
		t.Fatalf("Cost(90s @ 2.0/min) = %v, want 3", got)
	}
	if got := billing.ClampedCost(6000, 2.0, 25); got != 25 {
		t.Fatalf("clamped cost = %v, want lock 25", got)
	}
	if got := billing.ClampedCost(60, 2.0, 25); got != 2 {
		t.Fatalf("clamped cost = %v, want 2", got)
	}
	if got := billing.Round2(1.23456); got != 1.23 {
		t.Fatalf("Round2(1.23456) = %v, want 1.23", got)
	}
}
