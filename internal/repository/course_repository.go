package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/murphlabs/murph-billing/internal/billing"
	"github.com/murphlabs/murph-billing/internal/model"
)

// CourseRepo provides MySQL-backed access to the course catalog and the
// pinned course pricing.  It implements billing.CourseCatalog and
// billing.PricingStore.
type CourseRepo struct {
	db *sql.DB
}

// NewCourseRepo returns a CourseRepo bound to the provided database.
func NewCourseRepo(db *sql.DB) *CourseRepo { return &CourseRepo{db: db} }

// GetCourse fetches a catalog entry or billing.ErrCourseNotFound.
func (r *CourseRepo) GetCourse(ctx context.Context, courseID string) (model.Course, error) {
	const q = `SELECT id, title, teacher_id, duration_minutes, created_at FROM courses WHERE id = ?`
	var c model.Course
	err := r.db.QueryRowContext(ctx, q, courseID).
		Scan(&c.ID, &c.Title, &c.TeacherID, &c.DurationMinutes, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return model.Course{}, billing.ErrCourseNotFound
	}
	return c, err
}

// SeedCourses inserts catalog entries, ignoring ones that already
// exist.  Used at startup for the demo catalog.
func (r *CourseRepo) SeedCourses(ctx context.Context, courses []model.Course) error {
	const q = `INSERT INTO courses (id, title, teacher_id, duration_minutes, created_at)
	           VALUES (?, ?, ?, ?, ?)
	           ON DUPLICATE KEY UPDATE id = id`
	for _, c := range courses {
		ts := c.CreatedAt
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		if _, err := r.db.ExecContext(ctx, q, c.ID, c.Title, c.TeacherID, c.DurationMinutes, ts.UTC()); err != nil {
			return err
		}
	}
	return nil
}

// GetPricing fetches pinned pricing or billing.ErrCourseNotFound when
// the course has never been resolved.
func (r *CourseRepo) GetPricing(ctx context.Context, courseID string) (model.CoursePricing, error) {
	const q = `SELECT course_id, rating, price_per_minute, total_duration_minutes, lock_amount
	           FROM course_pricing WHERE course_id = ?`
	var p model.CoursePricing
	err := r.db.QueryRowContext(ctx, q, courseID).
		Scan(&p.CourseID, &p.Rating, &p.PricePerMinute, &p.TotalDurationMinutes, &p.LockAmount)
	if err == sql.ErrNoRows {
		return model.CoursePricing{}, billing.ErrCourseNotFound
	}
	return p, err
}

// PutPricing pins resolved pricing.  Resolution is idempotent, so an
// existing row is left untouched: first write wins.
func (r *CourseRepo) PutPricing(ctx context.Context, p model.CoursePricing) error {
	const q = `INSERT INTO course_pricing (course_id, rating, price_per_minute, total_duration_minutes, lock_amount)
	           VALUES (?, ?, ?, ?, ?)
	           ON DUPLICATE KEY UPDATE course_id = course_id`
	_, err := r.db.ExecContext(ctx, q, p.CourseID, p.Rating, p.PricePerMinute, p.TotalDurationMinutes, p.LockAmount)
	return err
}
