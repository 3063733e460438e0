package main // Entry point package

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/murphlabs/murph-billing/internal/billing"
	"github.com/murphlabs/murph-billing/internal/config"
	"github.com/murphlabs/murph-billing/internal/database"
	"github.com/murphlabs/murph-billing/internal/handler"
	"github.com/murphlabs/murph-billing/internal/metrics"
	"github.com/murphlabs/murph-billing/internal/middleware"
	"github.com/murphlabs/murph-billing/internal/model"
	"github.com/murphlabs/murph-billing/internal/queue"
	"github.com/murphlabs/murph-billing/internal/repository"
	"github.com/murphlabs/murph-billing/internal/router"
	queue_publisher "github.com/murphlabs/murph-billing/internal/service"
)

// stores groups the persistence interfaces the billing core runs on.
// They are either all backed by MySQL or all by the in-memory store.
type stores struct {
	wallets  billing.WalletStore
	sessions billing.SessionStore
	catalog  billing.CourseCatalog
	pricing  billing.PricingStore
	earnings handler.EarningsSource
}

func main() {
	_ = godotenv.Load() // Load .env when present; real env always wins

	cfg := config.Load()
	e := echo.New()

	st, db := buildStores(cfg)
	if db != nil {
		defer db.Close()
	}

	ledger := billing.NewLedger(st.wallets, cfg.Billing.DefaultWalletBalance)
	resolver := billing.NewPricingResolver(billing.PricingPolicy{
		LockFraction:           cfg.Billing.LockFraction,
		RatePerStar:            cfg.Billing.RatePerStar,
		DefaultPricePerMinute:  cfg.Billing.DefaultPricePerMinute,
		RatingMin:              cfg.Billing.RatingMin,
		RatingMax:              cfg.Billing.RatingMax,
		DefaultDurationMinutes: cfg.Billing.DefaultDurationMinutes,
	}, st.catalog, st.pricing)

	brokerEnabled := os.Getenv("RABBITMQ_URL") != "" || os.Getenv("AMQP_URL") != ""
	onSettled := func(s model.BillingSession, stl model.Settlement, reason string) {
		metrics.SessionsSettled.WithLabelValues(reason).Inc()
		metrics.AmountCharged.Add(stl.AmountCharged)
		metrics.AmountRefunded.Add(stl.Refund)
		if !brokerEnabled {
			return
		}
		ev := queue.SessionSettledEvent{
			SessionID:       s.ID,
			UserID:          s.UserID,
			VideoID:         s.VideoID,
			CourseID:        s.CourseID,
			Reason:          reason,
			DurationSeconds: stl.DurationSeconds,
			PricePerMinute:  stl.PricePerMinute,
			AmountLocked:    stl.AmountLocked,
			AmountCharged:   stl.AmountCharged,
			Refund:          stl.Refund,
			SettledAt:       time.Now().UTC().Format(time.RFC3339),
		}
		// Publish off the request path; settlement must not wait on the broker.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = queue_publisher.PublishSessionSettled(ctx, ev)
		}()
	}

	manager := billing.NewSessionManager(st.sessions, ledger, resolver, billing.ManagerConfig{
		PreviewLimitSeconds:  cfg.Billing.PreviewLimitSeconds,
		SeekThresholdSeconds: cfg.Billing.SeekThresholdSeconds,
		IdleTimeout:          cfg.Billing.IdleTimeout,
		ReapInterval:         cfg.Billing.ReapInterval,
	}, onSettled)
	go manager.RunReaper(context.Background())

	if brokerEnabled {
		go func() {
			if err := queue.StartSettlementConsumer(); err != nil {
				log.Printf("settlement-consumer: stopped: %v", err)
			}
		}()
	}

	// Redis is optional: when it is unreachable the rate limiter and the
	// pricing response cache are simply disabled.
	var cachePricing echo.MiddlewareFunc
	if rdb := config.NewRedisClient(); rdb != nil {
		e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
		cachePricing = middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
	} else {
		log.Println("redis unavailable; rate limiting and response cache disabled")
	}

	sessionHandler := handler.NewSessionHandler(manager, resolver, cfg.Billing)
	walletHandler := handler.NewWalletHandler(ledger, cfg.Billing)

	router.RegisterRoutes(e)
	router.RegisterSession(e, sessionHandler, walletHandler, cachePricing)

	// Account and teacher-dashboard routes need the user store, which
	// only exists when MySQL is configured.
	if db != nil {
		authHandler := handler.NewAuthHandler(cfg, repository.NewUserRepo(db), repository.NewTokenRepo(db))
		teacherHandler := handler.NewTeacherHandler(st.earnings)
		router.RegisterAuth(e, authHandler, walletHandler, teacherHandler, cfg.JWTSecret)
	}

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}

// buildStores selects the persistence backend.  With DB_HOST set the
// service runs on MySQL (schema is created if missing); otherwise it
// falls back to the in-memory store seeded with the demo catalog,
// which is enough for local development against the frontend.
func buildStores(cfg config.Config) (stores, *sql.DB) {
	if !cfg.UseDatabase() {
		log.Println("DB_HOST not set; using in-memory store")
		mem := repository.NewMemoryStore()
		mem.SeedCourses(demoCourses())
		return stores{wallets: mem, sessions: mem, catalog: mem, pricing: mem, earnings: mem}, nil
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database open failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("schema init failed: %v", err)
	}

	courses := repository.NewCourseRepo(db)
	if err := courses.SeedCourses(ctx, demoCourses()); err != nil {
		log.Printf("course seed failed: %v", err)
	}
	sessionsRepo := repository.NewSessionRepo(db)
	return stores{
		wallets:  repository.NewWalletRepo(db),
		sessions: sessionsRepo,
		catalog:  courses,
		pricing:  courses,
		earnings: sessionsRepo,
	}, db
}

// demoCourses is the development catalog matching the frontend's
// sample content.  Production deployments replace it by inserting
// real courses into the courses table.
func demoCourses() []model.Course {
	now := time.Now().UTC()
	return []model.Course{
		{ID: "course-101", Title: "Algebra Foundations", TeacherID: "teacher-1", DurationMinutes: 90, CreatedAt: now},
		{ID: "course-102", Title: "Intro to Piano", TeacherID: "teacher-1", DurationMinutes: 60, CreatedAt: now},
		{ID: "course-103", Title: "Conversational Spanish", TeacherID: "teacher-2", DurationMinutes: 120, CreatedAt: now},
		{ID: "course-104", Title: "Watercolor Basics", TeacherID: "teacher-2", DurationMinutes: 45, CreatedAt: now},
	}
}
