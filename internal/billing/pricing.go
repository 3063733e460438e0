package billing

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/murphlabs/murph-billing/internal/model"
)

// PricingPolicy holds the business policy values that drive pricing.
// These are configuration, not constants: the lock fraction and the
// rating-to-price slope are deployment decisions.
type PricingPolicy struct {
	// LockFraction of the full-course cost is escrowed up front.
	LockFraction float64
	// RatePerStar maps a course rating to its per-minute price:
	// price_per_minute = rating × RatePerStar.
	RatePerStar float64
	// DefaultPricePerMinute applies to raw videos with no course.
	DefaultPricePerMinute float64
	// RatingMin and RatingMax bound the assigned course rating.
	RatingMin, RatingMax float64
	// DefaultDurationMinutes is used when a course is not in the
	// catalog and no duration is otherwise known.
	DefaultDurationMinutes float64
}

// PricingResolver computes and pins the effective pricing of a course.
// Resolution is deterministic and memoized: the first lookup assigns
// the rating, derives the per-minute rate and the lock amount, and
// persists the result; every later lookup returns the exact same
// values.
type PricingResolver struct {
	policy  PricingPolicy
	catalog CourseCatalog
	store   PricingStore

	mu sync.Mutex // serializes first-time resolution per process
}

// NewPricingResolver wires a resolver to its catalog and pricing store.
func NewPricingResolver(policy PricingPolicy, catalog CourseCatalog, store PricingStore) *PricingResolver {
	return &PricingResolver{policy: policy, catalog: catalog, store: store}
}

// Resolve returns the pinned pricing for a course, computing and
// persisting it on first access.
func (r *PricingResolver) Resolve(ctx context.Context, courseID string) (model.CoursePricing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, err := r.store.GetPricing(ctx, courseID); err == nil {
		return p, nil
	} else if err != ErrCourseNotFound {
		return model.CoursePricing{}, err
	}

	duration := r.policy.DefaultDurationMinutes
	if c, err := r.catalog.GetCourse(ctx, courseID); err == nil {
		duration = c.DurationMinutes
	} else if err != ErrCourseNotFound {
		return model.CoursePricing{}, err
	}

	rating := r.ratingFor(courseID)
	price := Round2(rating * r.policy.RatePerStar)
	p := model.CoursePricing{
		CourseID:             courseID,
		Rating:               rating,
		PricePerMinute:       price,
		TotalDurationMinutes: duration,
		LockAmount:           Round2(r.policy.LockFraction * duration * price),
	}
	if err := r.store.PutPricing(ctx, p); err != nil {
		return model.CoursePricing{}, err
	}
	return p, nil
}

// RawVideo derives pricing for a standalone video with no course id.
// The duration is the playback duration rounded up to whole minutes and
// the rate is the configured default.
func (r *PricingResolver) RawVideo(durationSeconds float64) model.CoursePricing {
	minutes := math.Ceil(durationSeconds / 60.0)
	if minutes < 1 {
		minutes = r.policy.DefaultDurationMinutes
	}
	price := r.policy.DefaultPricePerMinute
	return model.CoursePricing{
		Rating:               0,
		PricePerMinute:       price,
		TotalDurationMinutes: minutes,
		LockAmount:           Round2(r.policy.LockFraction * minutes * price),
	}
}

// ratingFor derives a reproducible rating in [RatingMin, RatingMax]
// from the course id.  Hashing instead of random assignment keeps the
// rating stable across restarts without a write on the read path.
func (r *PricingResolver) ratingFor(courseID string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(courseID))
	frac := float64(h.Sum32()%1000) / 999.0
	rating := r.policy.RatingMin + frac*(r.policy.RatingMax-r.policy.RatingMin)
	return math.Round(rating*10) / 10
}
