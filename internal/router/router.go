package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/murphlabs/murph-billing/internal/handler"    // import the handlers that implement business logic
	"github.com/murphlabs/murph-billing/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance: the health check and the Prometheus scrape
// endpoint.
func RegisterRoutes(e *echo.Echo) {
	// The health endpoint can be used by load balancers or monitoring
	// systems to verify that the service is up and running.
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterSession registers the billing session lifecycle and wallet
// endpoints.  These paths form the open contract the video player calls
// directly; the player identifies the user in the request body, so no
// JWT middleware is applied here.  The optional cachePricing middleware
// (Redis response cache) is applied to the pricing endpoint only, since
// resolved pricing is immutable once pinned.
func RegisterSession(e *echo.Echo, s *handler.SessionHandler, w *handler.WalletHandler, cachePricing echo.MiddlewareFunc) {
	g := e.Group("/session")
	// Register a POST endpoint to open a free preview session.
	g.POST("/preview", s.PreviewSession)
	// Register a POST endpoint to place the hold and start metered playback.
	g.POST("/start", s.StartSession)
	// Register a POST endpoint for the periodic watch-time sync.
	g.POST("/sync", s.SyncSession)
	// Register a POST endpoint for explicit session end with settlement.
	g.POST("/end", s.EndSession)
	// Register a POST endpoint for the page-exit beacon variant of end.
	g.POST("/end-beacon", s.EndSessionBeacon)
	// Resolved pricing is stable per course, so cache it when Redis is up.
	if cachePricing != nil {
		g.GET("/pricing/:course_id", s.GetPricing, cachePricing)
	} else {
		g.GET("/pricing/:course_id", s.GetPricing)
	}
	// Register a GET endpoint to inspect one session's state and live cost.
	g.GET("/:id", s.GetSession)

	wg := e.Group("/api/wallet")
	// Register a POST endpoint that returns (and lazily creates) a wallet balance.
	wg.POST("/balance", w.Balance)
	// Register a GET endpoint that reports the starting balance without creating a wallet.
	wg.GET("/balance-public", w.BalancePublic)
	// Register a POST endpoint to credit a wallet after an upstream payment.
	wg.POST("/topup", w.TopUp)
}

// RegisterAuth registers all authentication-related routes and applies the
// necessary middleware.  Unauthenticated operations live under /v1/auth,
// while protected endpoints live under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, w *handler.WalletHandler, t *handler.TeacherHandler, jwtSecret string) {
	// Create a route group under the /v1/auth prefix for operations that do
	// not require an existing session (register, login, refresh).  Each of
	// these handlers is responsible for generating or exchanging tokens.
	g := e.Group("/v1/auth")
	// Register a POST endpoint to handle user registration at /v1/auth/register.
	g.POST("/register", a.Register)
	// Register a POST endpoint to handle user login at /v1/auth/login.
	g.POST("/login", a.Login)
	// Register a POST endpoint to refresh access tokens at /v1/auth/refresh. This rotates the refresh token.
	g.POST("/refresh", a.Refresh)
	// Register a POST endpoint to issue a new access token without rotating the refresh token.
	g.POST("/refresh-access", a.RefreshAccess)
	// Logout does not require JWT authentication.  The handler accepts a
	// JSON body containing a `refresh_token` and will invalidate that
	// token.  If the token is valid, a 204 response is returned; otherwise
	// 400/401/500 are possible depending on the error.
	g.POST("/logout", a.Logout)

	// Create another group for routes that require a valid access token.  All
	// handlers registered on this group will execute the JWTAuth middleware
	// before being invoked.  Protected endpoints live under /v1.
	auth := e.Group("/v1")
	// Apply the JWTAuth middleware to the protected group using the provided secret.
	auth.Use(middleware.JWTAuth(jwtSecret))
	// Both roles may hit the general authenticated endpoints.  The
	// middleware rejects requests with missing or unknown roles.
	auth.Use(middleware.RequireRole("STUDENT", "TEACHER"))
	// Register a GET endpoint at /v1/me that returns the authenticated user's information.
	auth.GET("/me", a.Me)
	// Register a GET endpoint that returns the caller's wallet journal.
	auth.GET("/wallet/transactions", w.Transactions)

	// Teacher analytics require the TEACHER role on top of a valid token.
	tg := e.Group("/v1/teacher")
	tg.Use(middleware.JWTAuth(jwtSecret))
	tg.Use(middleware.RequireRole("TEACHER"))
	tg.GET("/earnings", t.GetEarnings)
}
