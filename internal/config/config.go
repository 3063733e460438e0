package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.  Database settings are optional: when
// DB_HOST is unset the server runs against the in-memory store, which
// is what the frontend dev setup at localhost:8000 expects.
type Config struct {
	Env            string // application environment (e.g. "dev", "prod")
	Port           string // HTTP port to listen on
	DBUser         string // database username (optional; empty disables MySQL)
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // database name
	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time-to-live in minutes
	RefreshTTLDays int    // refresh token time-to-live in days
	BcryptCost     int    // bcrypt cost for password hashing

	Billing BillingConfig // metered billing policy values
}

// BillingConfig carries the billing business policy.  These are policy
// values observed only as constants in the consuming client, so they
// are deliberately configuration rather than hardcoded numbers.
type BillingConfig struct {
	PreviewLimitSeconds    float64       // free preview window before the pay gate
	LockFraction           float64       // fraction of full-course cost escrowed up front
	RatePerStar            float64       // price_per_minute = rating × RatePerStar
	DefaultPricePerMinute  float64       // rate for raw videos with no course
	RatingMin              float64       // lower bound of assigned course ratings
	RatingMax              float64       // upper bound of assigned course ratings
	DefaultWalletBalance   float64       // balance granted on first wallet reference
	DefaultDurationMinutes float64       // duration assumed for unknown courses
	SeekThresholdSeconds   float64       // forward jump that flags a seek event
	IdleTimeout            time.Duration // PAID session reaped after this long without a sync
	ReapInterval           time.Duration // how often the idle reaper runs
}

// Load reads configuration values from environment variables and
// returns a Config.  Every value has a development default; only a
// production deployment (APP_ENV=prod) must provide its own JWT secret.
func Load() Config {
	cfg := Config{
		Env:            envStr("APP_ENV", "dev"),
		Port:           envStr("APP_PORT", "8000"),
		DBUser:         os.Getenv("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"),
		DBHost:         os.Getenv("DB_HOST"),
		DBPort:         envStr("DB_PORT", "3306"),
		DBName:         envStr("DB_NAME", "murph"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		AccessTTLMin:   envInt("ACCESS_TOKEN_TTL_MIN", 15),
		RefreshTTLDays: envInt("REFRESH_TOKEN_TTL_DAYS", 30),
		BcryptCost:     envInt("BCRYPT_COST", 10),
		Billing:        LoadBillingConfig(),
	}
	if cfg.JWTSecret == "" {
		if cfg.Env == "prod" {
			log.Fatal("missing required env var: JWT_SECRET")
		}
		cfg.JWTSecret = "murph-dev-secret"
	}
	return cfg
}

// LoadBillingConfig reads the billing policy from environment
// variables, using the observed platform defaults when unset.
func LoadBillingConfig() BillingConfig {
	return BillingConfig{
		PreviewLimitSeconds:    envFloat("PREVIEW_LIMIT_SECONDS", 120),
		LockFraction:           envFloat("LOCK_FRACTION", 0.5),
		RatePerStar:            envFloat("PRICE_RATE_PER_STAR", 0.5),
		DefaultPricePerMinute:  envFloat("DEFAULT_PRICE_PER_MINUTE", 2.0),
		RatingMin:              envFloat("RATING_MIN", 3.0),
		RatingMax:              envFloat("RATING_MAX", 5.0),
		DefaultWalletBalance:   envFloat("DEFAULT_WALLET_BALANCE", 100),
		DefaultDurationMinutes: envFloat("DEFAULT_COURSE_DURATION_MIN", 60),
		SeekThresholdSeconds:   envFloat("SEEK_THRESHOLD_SECONDS", 5),
		IdleTimeout:            envDur("SESSION_IDLE_TIMEOUT", 90*time.Second),
		ReapInterval:           envDur("SESSION_REAP_INTERVAL", 30*time.Second),
	}
}

// UseDatabase reports whether MySQL is configured.  Without it the
// server runs on the in-memory store: sessions and wallets do not
// survive a restart, which is acceptable for development.
func (c Config) UseDatabase() bool { return c.DBHost != "" }

// envFloat reads a float env var, falling back to the default on
// missing or malformed values.
func envFloat(k string, d float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return d
}
