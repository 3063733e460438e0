package router_test

import (
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/murphlabs/murph-billing/internal/handler"
	"github.com/murphlabs/murph-billing/internal/router"
)

func registeredPaths(e *echo.Echo) map[string]bool {
	paths := map[string]bool{}
	for _, r := range e.Routes() {
		paths[r.Method+" "+r.Path] = true
	}
	return paths
}

func TestAuthRoutes(t *testing.T) {
	e := echo.New()
	router.RegisterAuth(e, &handler.AuthHandler{}, &handler.WalletHandler{}, &handler.TeacherHandler{}, "secret")

	paths := registeredPaths(e)
	for _, want := range []string{
		"POST /v1/auth/register",
		"POST /v1/auth/login",
		"POST /v1/auth/refresh",
		"POST /v1/auth/refresh-access",
		"POST /v1/auth/logout",
		"GET /v1/me",
		"GET /v1/wallet/transactions",
		"GET /v1/teacher/earnings",
	} {
		if !paths[want] {
			t.Errorf("route %s not registered", want)
		}
	}
	// Logout lives under /v1/auth only.
	if paths["POST /v1/logout"] {
		t.Error("POST /v1/logout should not be registered")
	}
}

func TestSessionRoutes(t *testing.T) {
	e := echo.New()
	router.RegisterSession(e, &handler.SessionHandler{}, &handler.WalletHandler{}, nil)

	paths := registeredPaths(e)
	for _, want := range []string{
		"POST /session/preview",
		"POST /session/start",
		"POST /session/sync",
		"POST /session/end",
		"POST /session/end-beacon",
		"GET /session/pricing/:course_id",
		"GET /session/:id",
		"POST /api/wallet/balance",
		"GET /api/wallet/balance-public",
		"POST /api/wallet/topup",
	} {
		if !paths[want] {
			t.Errorf("route %s not registered", want)
		}
	}
}
