// Package config provides application configuration loaded from environment
// variables. Call MustLoad() once in main(); everything downstream receives
// the *Config by injection.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sub-config structs
// ──────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        // e.g. "8080"
	Env          string        // "development" | "production"
	ReadTimeout  time.Duration // default 10s
	WriteTimeout time.Duration // default 10s
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	DSN             string        // full postgres DSN
	MaxOpenConns    int           // default 25
	MaxIdleConns    int           // default 10
	ConnMaxLifetime time.Duration // default 5m
}

// JWTConfig holds bearer-token verification settings. Token issuance lives
// in the identity service; this server only verifies.
type JWTConfig struct {
	AccessSecret string // must be set
}

// AuctionConfig holds the weekly window boundary and bid-admission tunables.
type AuctionConfig struct {
	Timezone     string // IANA name, default "Europe/London"
	OpenWeekday  int    // 0=Sunday … 6=Saturday; default 1 (Monday)
	OpenHour     int    // default 1  (01:00)
	CloseWeekday int    // default 0 (Sunday)
	CloseHour    int    // default 23 (23:00)

	MaxBidRetries int // CAS retry budget per bid, default 3
	BatchSize     int // scheduler page size, default 100
	MaxBatches    int // scheduler per-pass page cap, default 50
}

// PaymentConfig holds payment processor settings.
type PaymentConfig struct {
	StripeBaseURL   string        // override for tests; default api.stripe.com
	StripeSecretKey string        // must be set in production
	Currency        string        // default "gbp"
	Timeout         time.Duration // default 10s
}

// NotifyConfig holds notification sink settings.
type NotifyConfig struct {
	WebhookURL string        // "" = log-only sink
	OperatorID string        // uuid of the operator notification recipient
	Timeout    time.Duration // default 5s
}

// SchedulerConfig gates the lifecycle run triggers.
type SchedulerConfig struct {
	RunSecret      string        // shared secret for the external cron trigger
	TickerEnabled  bool          // also run an in-process ticker
	TickerInterval time.Duration // default 2m
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object for the entire application.
type Config struct {
	Server    ServerConfig
	DB        DBConfig
	JWT       JWTConfig
	Auction   AuctionConfig
	Payment   PaymentConfig
	Notify    NotifyConfig
	Scheduler SchedulerConfig
}

// IsProd returns true when running in the production environment.
func (c *Config) IsProd() bool {
	return c.Server.Env == "production"
}

// Validate checks that all required configuration values are present and
// valid. Returns every validation error encountered, joined.
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.AccessSecret == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET must be set"))
	}
	if c.Scheduler.RunSecret == "" {
		errs = append(errs, errors.New("SCHEDULER_RUN_SECRET must be set"))
	}
	if c.IsProd() {
		if c.DB.DSN == "" {
			errs = append(errs, errors.New("DATABASE_DSN must be set in production"))
		}
		if c.Payment.StripeSecretKey == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY must be set in production"))
		}
	}

	if c.Auction.OpenWeekday < 0 || c.Auction.OpenWeekday > 6 ||
		c.Auction.CloseWeekday < 0 || c.Auction.CloseWeekday > 6 {
		errs = append(errs, fmt.Errorf(
			"auction weekdays must be 0-6, got open=%d close=%d",
			c.Auction.OpenWeekday, c.Auction.CloseWeekday))
	}
	if c.Auction.OpenHour < 0 || c.Auction.OpenHour > 23 ||
		c.Auction.CloseHour < 0 || c.Auction.CloseHour > 23 {
		errs = append(errs, fmt.Errorf(
			"auction hours must be 0-23, got open=%d close=%d",
			c.Auction.OpenHour, c.Auction.CloseHour))
	}
	if c.Auction.MaxBidRetries < 1 {
		errs = append(errs, fmt.Errorf("AUCTION_MAX_BID_RETRIES must be ≥ 1, got %d", c.Auction.MaxBidRetries))
	}
	if c.Auction.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("AUCTION_BATCH_SIZE must be ≥ 1, got %d", c.Auction.BatchSize))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// MustLoad loads and validates configuration. Intended for use in main().
// Panics on any error so misconfiguration is caught immediately at boot.
func MustLoad() *Config {
	cfg, err := load()
	if err != nil {
		panic(fmt.Sprintf("config: failed to load: %v", err))
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: validation failed: %v", err))
	}
	return cfg
}

// Load loads configuration without validating. Useful for tests that build a
// partial config.
func Load() (*Config, error) {
	return load()
}

// ──────────────────────────────────────────────────────────────────────────────
// Internal loader
// ──────────────────────────────────────────────────────────────────────────────

func load() (*Config, error) {
	cfg := &Config{}

	// ── Server ────────────────────────────────────────────────────────────────
	cfg.Server = ServerConfig{
		Port:         getEnv("SERVER_PORT", "8080"),
		Env:          getEnv("ENVIRONMENT", "development"),
		ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
	}

	// ── Database ──────────────────────────────────────────────────────────────
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		// Build DSN from individual components for convenience in dev
		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_NAME", "saleyard_auctions"),
			getEnv("DB_SSLMODE", "disable"),
		)
	}

	maxOpen, err := getInt("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS: %w", err)
	}
	maxIdle, err := getInt("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_IDLE_CONNS: %w", err)
	}

	cfg.DB = DBConfig{
		DSN:             dsn,
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	// ── JWT ───────────────────────────────────────────────────────────────────
	cfg.JWT = JWTConfig{
		AccessSecret: getEnv("JWT_ACCESS_SECRET", ""),
	}

	// ── Auction ───────────────────────────────────────────────────────────────
	openWD, err := getInt("AUCTION_OPEN_WEEKDAY", 1)
	if err != nil {
		return nil, fmt.Errorf("AUCTION_OPEN_WEEKDAY: %w", err)
	}
	openH, err := getInt("AUCTION_OPEN_HOUR", 1)
	if err != nil {
		return nil, fmt.Errorf("AUCTION_OPEN_HOUR: %w", err)
	}
	closeWD, err := getInt("AUCTION_CLOSE_WEEKDAY", 0)
	if err != nil {
		return nil, fmt.Errorf("AUCTION_CLOSE_WEEKDAY: %w", err)
	}
	closeH, err := getInt("AUCTION_CLOSE_HOUR", 23)
	if err != nil {
		return nil, fmt.Errorf("AUCTION_CLOSE_HOUR: %w", err)
	}
	retries, err := getInt("AUCTION_MAX_BID_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("AUCTION_MAX_BID_RETRIES: %w", err)
	}
	batch, err := getInt("AUCTION_BATCH_SIZE", 100)
	if err != nil {
		return nil, fmt.Errorf("AUCTION_BATCH_SIZE: %w", err)
	}
	maxBatches, err := getInt("AUCTION_MAX_BATCHES", 50)
	if err != nil {
		return nil, fmt.Errorf("AUCTION_MAX_BATCHES: %w", err)
	}

	cfg.Auction = AuctionConfig{
		Timezone:      getEnv("AUCTION_TIMEZONE", "Europe/London"),
		OpenWeekday:   openWD,
		OpenHour:      openH,
		CloseWeekday:  closeWD,
		CloseHour:     closeH,
		MaxBidRetries: retries,
		BatchSize:     batch,
		MaxBatches:    maxBatches,
	}

	// ── Payment ───────────────────────────────────────────────────────────────
	cfg.Payment = PaymentConfig{
		StripeBaseURL:   getEnv("STRIPE_BASE_URL", ""),
		StripeSecretKey: getEnv("STRIPE_SECRET_KEY", ""),
		Currency:        getEnv("PAYMENT_CURRENCY", "gbp"),
		Timeout:         getDuration("PAYMENT_TIMEOUT", 10*time.Second),
	}

	// ── Notify ────────────────────────────────────────────────────────────────
	cfg.Notify = NotifyConfig{
		WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		OperatorID: getEnv("NOTIFY_OPERATOR_ID", ""),
		Timeout:    getDuration("NOTIFY_TIMEOUT", 5*time.Second),
	}

	// ── Scheduler ─────────────────────────────────────────────────────────────
	cfg.Scheduler = SchedulerConfig{
		RunSecret:      getEnv("SCHEDULER_RUN_SECRET", ""),
		TickerEnabled:  getBool("SCHEDULER_TICKER_ENABLED", true),
		TickerInterval: getDuration("SCHEDULER_TICKER_INTERVAL", 2*time.Minute),
	}

	return cfg, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper functions
// ──────────────────────────────────────────────────────────────────────────────

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

// getDuration parses an env var as a Go duration string (e.g. "15m", "2s").
// Falls back to defaultVal if the variable is unset or empty.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
