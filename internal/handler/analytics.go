package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/murphlabs/murph-billing/internal/billing"
	"github.com/murphlabs/murph-billing/internal/model"
)

// EarningsSource aggregates settled charges per course for one teacher.
// Both the MySQL session repo and the in-memory store implement it.
type EarningsSource interface {
	EarningsByTeacher(ctx context.Context, teacherID string) ([]model.CourseEarnings, error)
}

// TeacherHandler serves the teacher analytics dashboard endpoints.
// All routes assume JWT authentication and the TEACHER role have been
// enforced by middleware.
type TeacherHandler struct {
	Earnings EarningsSource
}

// NewTeacherHandler constructs a TeacherHandler.
func NewTeacherHandler(src EarningsSource) *TeacherHandler {
	if src == nil {
		panic("nil earnings source passed to NewTeacherHandler")
	}
	return &TeacherHandler{Earnings: src}
}

// GetEarnings handles GET /v1/teacher/earnings.  It returns per-course
// totals of settled charges for the authenticated teacher's courses.
func (h *TeacherHandler) GetEarnings(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	rows, err := h.Earnings.EarningsByTeacher(c.Request().Context(), strconv.FormatUint(uid, 10))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "earnings lookup failed"})
	}
	total := 0.0
	for _, r := range rows {
		total += r.TotalCharged
	}
	return c.JSON(http.StatusOK, echo.Map{
		"courses":       rows,
		"total_charged": billing.Round2(total),
	})
}
