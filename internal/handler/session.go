package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/murphlabs/murph-billing/internal/billing"
	"github.com/murphlabs/murph-billing/internal/config"
	"github.com/murphlabs/murph-billing/internal/metrics"
)

// SessionHandler exposes the billing session lifecycle over HTTP.  The
// paths and payload shapes match what the Murph frontend sends; the
// server-resolved pricing is authoritative for settlement while any
// client-sent rate is informational only.
type SessionHandler struct {
	Manager *billing.SessionManager
	Pricing *billing.PricingResolver
	Cfg     config.BillingConfig
}

// NewSessionHandler constructs a SessionHandler.  All dependencies must
// be non-nil.
func NewSessionHandler(m *billing.SessionManager, p *billing.PricingResolver, cfg config.BillingConfig) *SessionHandler {
	if m == nil || p == nil {
		panic("nil dependency passed to NewSessionHandler")
	}
	return &SessionHandler{Manager: m, Pricing: p, Cfg: cfg}
}

// ----- DTOs -----

type startReq struct {
	UserID          string  `json:"user_id"`
	VideoID         string  `json:"video_id"`
	CourseID        string  `json:"course_id"`
	SessionID       string  `json:"session_id"`
	LockAmount      float64 `json:"lock_amount"`
	PricePerMinute  float64 `json:"price_per_minute"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type previewReq struct {
	UserID   string `json:"user_id"`
	VideoID  string `json:"video_id"`
	CourseID string `json:"course_id"`
}

type syncReq struct {
	SessionID          string                  `json:"session_id"`
	AccumulatedSeconds float64                 `json:"accumulated_seconds"`
	Events             []billing.PlaybackEvent `json:"events"`
}

type endReq struct {
	UserID          string  `json:"user_id"`
	SessionID       string  `json:"session_id"`
	DurationSeconds float64 `json:"duration_seconds"`
	PricePerMinute  float64 `json:"price_per_minute"`
	LockedAmount    float64 `json:"locked_amount"`
}

// StartSession handles POST /session/start.  It drives the
// AWAITING_HOLD → PAID transition: authoritative pricing is resolved,
// the lock amount is escrowed and metering begins.  An insufficient
// balance returns 402 and is never retried server-side; the client
// shows the top-up prompt.
func (h *SessionHandler) StartSession(c echo.Context) error {
	var req startReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.VideoID = strings.TrimSpace(req.VideoID)
	if req.UserID == "" || req.VideoID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id and video_id are required"})
	}

	id, err := h.Manager.Start(c.Request().Context(), billing.StartRequest{
		UserID:          req.UserID,
		VideoID:         req.VideoID,
		CourseID:        strings.TrimSpace(req.CourseID),
		SessionID:       strings.TrimSpace(req.SessionID),
		LockAmount:      req.LockAmount,
		PricePerMinute:  req.PricePerMinute,
		DurationSeconds: req.DurationSeconds,
	})
	switch {
	case err == nil:
	case err == billing.ErrInsufficientFunds:
		metrics.InsufficientFunds.Inc()
		return c.JSON(http.StatusPaymentRequired, echo.Map{"error": "insufficient funds"})
	case err == billing.ErrSessionNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
	case err == billing.ErrSessionNotPayable:
		return c.JSON(http.StatusConflict, echo.Map{"error": "session already ended"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start session"})
	}
	metrics.SessionsStarted.Inc()
	return c.JSON(http.StatusCreated, echo.Map{"session_id": id})
}

// PreviewSession handles POST /session/preview.  It registers a free
// PREVIEW session so that the server can track the pay-gate threshold;
// nothing watched before the gate is ever billed.
func (h *SessionHandler) PreviewSession(c echo.Context) error {
	var req previewReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.VideoID) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id and video_id are required"})
	}
	s, err := h.Manager.BeginPreview(c.Request().Context(), req.UserID, req.VideoID, req.CourseID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create session"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"session_id":            s.ID,
		"preview_limit_seconds": h.Cfg.PreviewLimitSeconds,
	})
}

// SyncSession handles POST /session/sync, the client's periodic
// metering push.  Accumulated time only ever grows: the server merges
// with max(server, client), so a late or duplicated delivery is
// harmless.  The client fires these without awaiting acknowledgement
// and retries on the next tick, so failures here never stop playback.
func (h *SessionHandler) SyncSession(c echo.Context) error {
	var req syncReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "session_id is required"})
	}
	s, cost, err := h.Manager.Sync(c.Request().Context(), billing.SyncRequest{
		SessionID:          req.SessionID,
		AccumulatedSeconds: req.AccumulatedSeconds,
		Events:             req.Events,
	})
	if err != nil {
		if err == billing.ErrSessionNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "sync failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"session_id":          s.ID,
		"state":               s.State,
		"accumulated_seconds": s.AccumulatedSeconds,
		"current_cost":        cost,
	})
}

// EndSession handles POST /session/end: the PAID → ENDED transition.
// The settlement is idempotent, so a duplicate end (or the exit beacon
// racing this call) returns the identical result and charges the wallet
// exactly once.
func (h *SessionHandler) EndSession(c echo.Context) error {
	var req endReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	return h.endSession(c, req, billing.EndReasonExplicit)
}

// EndSessionBeacon handles POST /session/end-beacon.  Beacons arrive
// with no custom headers and possibly a text/plain content type, so the
// body is decoded manually.  The response is advisory only: the page is
// already closing and nobody reads it.
func (h *SessionHandler) EndSessionBeacon(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<16))
	if err != nil {
		return c.NoContent(http.StatusAccepted)
	}
	var req endReq
	if err := json.Unmarshal(body, &req); err != nil || req.SessionID == "" {
		return c.NoContent(http.StatusAccepted)
	}
	return h.endSession(c, req, billing.EndReasonBeacon)
}

func (h *SessionHandler) endSession(c echo.Context, req endReq, reason string) error {
	if req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "session_id is required"})
	}
	st, err := h.Manager.End(c.Request().Context(), req.SessionID, req.DurationSeconds, reason)
	if err != nil {
		if err == billing.ErrSessionNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to end session"})
	}
	return c.JSON(http.StatusOK, st)
}

// GetSession handles GET /session/:id and returns the session state
// with its live cost for UI polling.
func (h *SessionHandler) GetSession(c echo.Context) error {
	s, cost, err := h.Manager.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if err == billing.ErrSessionNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"session_id":          s.ID,
		"state":               s.State,
		"course_id":           s.CourseID,
		"accumulated_seconds": s.AccumulatedSeconds,
		"price_per_minute":    s.PricePerMinute,
		"locked_amount":       s.LockedAmount,
		"current_cost":        cost,
	})
}

// GetPricing handles GET /session/pricing/:course_id.  The first call
// pins the course's rating, rate and lock amount; later calls return
// the identical values.
func (h *SessionHandler) GetPricing(c echo.Context) error {
	courseID := c.Param("course_id")
	if courseID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "course_id is required"})
	}
	p, err := h.Pricing.Resolve(c.Request().Context(), courseID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "pricing resolution failed"})
	}
	return c.JSON(http.StatusOK, p)
}
