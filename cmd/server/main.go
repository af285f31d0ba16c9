// Package main is the entry point for the saleyard weekly auction API
// server. It wires together the repositories and services and starts the
// HTTP server alongside the WebSocket hub and the lifecycle scheduler.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/saleyard/auctions/internal/api"
	"github.com/saleyard/auctions/internal/config"
	"github.com/saleyard/auctions/internal/domain"
	"github.com/saleyard/auctions/internal/notify"
	"github.com/saleyard/auctions/internal/payment"
	"github.com/saleyard/auctions/internal/repository"
	"github.com/saleyard/auctions/internal/scheduler"
	"github.com/saleyard/auctions/internal/service"
	"github.com/saleyard/auctions/internal/ws"
)

func main() {
	// ── 1. Config + logger ────────────────────────────────────────────────────
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting saleyard auction server", "env", cfg.Server.Env, "port", cfg.Server.Port)

	// ── 2. Database ───────────────────────────────────────────────────────────
	db, err := sqlx.Connect("postgres", cfg.DB.DSN)
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	if err = db.Ping(); err != nil {
		logger.Error("database ping failed", "err", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// ── 3. Migrations ─────────────────────────────────────────────────────────
	if err = runMigrations(db, "migrations"); err != nil {
		logger.Error("migrations failed", "err", err)
		os.Exit(1)
	}
	logger.Info("migrations applied")

	// ── 4. Repositories ───────────────────────────────────────────────────────
	listingRepo := repository.NewListingRepository(db)
	bidRepo := repository.NewBidRepository(db)
	txnRepo := repository.NewTransactionRepository(db)

	// ── 5. External collaborators ─────────────────────────────────────────────
	processor := payment.NewStripeClient(payment.StripeConfig{
		BaseURL:   cfg.Payment.StripeBaseURL,
		SecretKey: cfg.Payment.StripeSecretKey,
		Timeout:   cfg.Payment.Timeout,
	})

	var sink notify.Sink
	if cfg.Notify.WebhookURL != "" {
		sink = notify.NewWebhookSink(cfg.Notify.WebhookURL, cfg.Notify.Timeout)
	} else {
		sink = &notify.LogSink{Logger: logger}
	}

	clock := domain.SystemClock

	// ── 6. Services ───────────────────────────────────────────────────────────
	bidSvc := service.NewBidService(listingRepo, processor, sink, clock, cfg, logger)
	captureSvc := service.NewCaptureService(listingRepo, bidRepo, txnRepo, processor, sink, clock, cfg, logger)
	lifecycleSvc := service.NewLifecycleService(listingRepo, captureSvc, sink, clock, cfg, logger)

	// ── 7. WebSocket hub ──────────────────────────────────────────────────────
	jwtSecret := []byte(cfg.JWT.AccessSecret)
	var allowedOrigins []string
	if ori := os.Getenv("WS_ALLOWED_ORIGINS"); ori != "" {
		for _, o := range strings.Split(ori, ",") {
			allowedOrigins = append(allowedOrigins, strings.TrimSpace(o))
		}
	}
	hub := ws.NewHub(jwtSecret, allowedOrigins)

	// Wire the hub into the services via their broadcaster interfaces
	bidSvc.SetBroadcaster(hub)
	lifecycleSvc.SetBroadcaster(hub)

	// ── 8. Root context + signal handling ─────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go hub.Run()
	logger.Info("websocket hub started")

	// ── 9. Scheduler ──────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(lifecycleSvc, cfg, logger)
	sched.Start(ctx)

	// ── 10. HTTP router + server ──────────────────────────────────────────────
	router := api.SetupRouter(api.RouterDeps{
		BidSvc:       bidSvc,
		LifecycleSvc: lifecycleSvc,
		ListingRepo:  listingRepo,
		BidRepo:      bidRepo,
		Clock:        clock,
		Hub:          hub,
		Cfg:          cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
			stop() // trigger graceful shutdown
		}
	}()

	// ── 11. Graceful shutdown ─────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received, draining connections…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "err", err)
	}

	db.Close()
	logger.Info("server stopped cleanly")
}

// runMigrations reads all *.sql files from dir, sorted by name, and executes
// them sequentially. Idempotent: SQL files should use IF NOT EXISTS / ON CONFLICT.
func runMigrations(db *sqlx.DB, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("runMigrations: read dir %q: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("runMigrations: read %q: %w", f, err)
		}
		if _, err = db.Exec(string(data)); err != nil {
			return fmt.Errorf("runMigrations: exec %q: %w", f, err)
		}
		slog.Info("migration applied", "file", filepath.Base(f))
	}
	return nil
}
