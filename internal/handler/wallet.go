package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/murphlabs/murph-billing/internal/billing"
	"github.com/murphlabs/murph-billing/internal/config"
)

// WalletHandler exposes wallet balance and top-up endpoints.  The
// /api/wallet paths are the open contract the frontend calls with an
// explicit user_id; the /v1 journal endpoint is JWT-protected and
// derives the user from the token.
type WalletHandler struct {
	Ledger *billing.Ledger
	Cfg    config.BillingConfig
}

// NewWalletHandler constructs a WalletHandler.
func NewWalletHandler(l *billing.Ledger, cfg config.BillingConfig) *WalletHandler {
	if l == nil {
		panic("nil ledger passed to NewWalletHandler")
	}
	return &WalletHandler{Ledger: l, Cfg: cfg}
}

type balanceReq struct {
	UserID string `json:"user_id"`
}

type topUpReq struct {
	UserID string  `json:"user_id"`
	Amount float64 `json:"amount"`
}

// Balance handles POST /api/wallet/balance.  The wallet is created with
// the default balance on first reference.
func (h *WalletHandler) Balance(c echo.Context) error {
	var req balanceReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id is required"})
	}
	bal, err := h.Ledger.GetBalance(c.Request().Context(), strings.TrimSpace(req.UserID))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "balance lookup failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"balance": bal})
}

// BalancePublic handles GET /api/wallet/balance-public, the anonymous
// variant: it reports the default balance a fresh wallet would start
// with, without creating anything.
func (h *WalletHandler) BalancePublic(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"balance": billing.Round2(h.Cfg.DefaultWalletBalance)})
}

// TopUp handles POST /api/wallet/topup.  Payment mechanics happen
// upstream; only the resulting balance increase reaches the ledger.
func (h *WalletHandler) TopUp(c echo.Context) error {
	var req topUpReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id is required"})
	}
	bal, err := h.Ledger.TopUp(c.Request().Context(), strings.TrimSpace(req.UserID), req.Amount)
	if err != nil {
		if err == billing.ErrInvalidAmount {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount must be positive"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "top-up failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"balance": bal})
}

// Transactions handles GET /v1/wallet/transactions and returns the
// authenticated user's wallet journal, newest first.
func (h *WalletHandler) Transactions(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	txs, err := h.Ledger.Transactions(c.Request().Context(), strconv.FormatUint(uid, 10), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "journal lookup failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": txs})
}
