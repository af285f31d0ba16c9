// Package scheduler runs the optional in-process ticker that drives the
// auction lifecycle. The authoritative trigger in production is an external
// cron hitting the secret-gated run endpoint; the ticker is a belt-and-braces
// fallback and the default in development. Both paths call the same
// LifecycleService.Run, which is overlap-safe.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/saleyard/auctions/internal/config"
	"github.com/saleyard/auctions/internal/service"
)

// Scheduler owns the lifecycle ticker goroutine. Call Start(ctx) once from
// main(); cancel the context to shut it down gracefully.
type Scheduler struct {
	lifecycle *service.LifecycleService
	cfg       *config.Config
	logger    *slog.Logger

	mu      sync.Mutex
	running bool // one run at a time within this process
}

// NewScheduler creates a Scheduler.
func NewScheduler(lifecycle *service.LifecycleService, cfg *config.Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		lifecycle: lifecycle,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start launches the ticker goroutine when enabled. Returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.cfg.Scheduler.TickerEnabled {
		s.logger.Info("scheduler ticker disabled, relying on external trigger")
		return
	}
	go s.tickerLoop(ctx)
	s.logger.Info("scheduler started", "interval", s.cfg.Scheduler.TickerInterval)
}

// tickerLoop fires a lifecycle run every TickerInterval until ctx is
// cancelled. A run also fires immediately at startup so listings are not left
// stale across a restart.
func (s *Scheduler) tickerLoop(ctx context.Context) {
	defer s.recoverAndLog("tickerLoop")

	s.runOnce(ctx)

	ticker := time.NewTicker(s.cfg.Scheduler.TickerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("tickerLoop: shutting down")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce executes a single lifecycle run, skipping if one is already in
// flight in this process. Cross-process overlap is handled by the
// status-conditional transitions inside the run itself.
func (s *Scheduler) runOnce(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Debug("lifecycle run already in flight, skipping tick")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()
	defer s.recoverAndLog("runOnce")

	if _, err := s.lifecycle.Run(ctx); err != nil {
		s.logger.Error("tickerLoop: lifecycle run failed", "err", err)
	}
}

// recoverAndLog is deferred inside scheduler goroutines to catch unexpected
// panics, log them, and keep the process alive.
func (s *Scheduler) recoverAndLog(loop string) {
	if r := recover(); r != nil {
		s.logger.Error("PANIC recovered in scheduler loop",
			"loop", loop, "panic", r)
	}
}
