package model

// CourseEarnings is one row of a teacher's earnings summary: how much
// was charged across all settled sessions of one course.
type CourseEarnings struct {
	CourseID     string  `json:"course_id"`
	Title        string  `json:"title"`
	Sessions     int     `json:"sessions"`
	TotalSeconds float64 `json:"total_seconds"`
	TotalCharged float64 `json:"total_charged"`
}
