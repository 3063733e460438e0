package model

import "time"

// Course is a catalog entry.  Only the fields the billing core needs are
// modelled here; lesson lists, descriptions and media assets belong to
// the content service and are out of scope.
//
// Fields:
//  ID              – course identifier as used by the frontend.
//  Title           – display title.
//  TeacherID       – user who owns the course (earnings analytics).
//  DurationMinutes – total runtime of the course content.
//  CreatedAt       – when the course was added to the catalog.
type Course struct {
	ID              string    // courses.id
	Title           string    // courses.title
	TeacherID       string    // courses.teacher_id
	DurationMinutes float64   // courses.duration_minutes
	CreatedAt       time.Time // courses.created_at
}

// CoursePricing is the resolved, pinned pricing of a course.  Resolution
// is idempotent: the first lookup assigns the rating and derives the
// per-minute rate and lock amount, and every later lookup returns the
// same values.
type CoursePricing struct {
	CourseID             string  `json:"course_id"`
	Rating               float64 `json:"rating"`
	PricePerMinute       float64 `json:"price_per_minute"`
	TotalDurationMinutes float64 `json:"total_duration_minutes"`
	LockAmount           float64 `json:"lock_amount"`
}
