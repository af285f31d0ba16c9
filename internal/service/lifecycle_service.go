package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/saleyard/auctions/internal/config"
	"github.com/saleyard/auctions/internal/domain"
	"github.com/saleyard/auctions/internal/notify"
	"github.com/saleyard/auctions/internal/ws"
)

// WinnerCapturer charges and settles one completed listing.
// Implemented by CaptureService.
type WinnerCapturer interface {
	CaptureWinner(ctx context.Context, l *domain.Listing) CaptureOutcome
}

// CloseBroadcaster is the slice of the WS hub the lifecycle run needs.
type CloseBroadcaster interface {
	BroadcastListingClosed(msg ws.ListingClosedMessage)
}

// RunError records a per-listing failure inside a lifecycle run. One bad row
// never aborts the pass.
type RunError struct {
	ListingID uuid.UUID `json:"listing_id"`
	Stage     string    `json:"stage"` // "promote" | "close" | "relist"
	Err       string    `json:"error"`
}

// RunReport summarises one lifecycle run for the trigger response and logs.
type RunReport struct {
	StartedAt time.Time        `json:"started_at"`
	Promoted  int              `json:"promoted"`
	Completed int              `json:"completed"`
	NotSold   int              `json:"not_sold"`
	Relisted  int              `json:"relisted"`
	Captures  []CaptureOutcome `json:"captures,omitempty"`
	Errors    []RunError       `json:"errors,omitempty"`
}

// ──────────────────────────────────────────────────────────────────────────────
// LifecycleService
// ──────────────────────────────────────────────────────────────────────────────

// LifecycleService advances listings through the weekly auction cycle. A run
// makes three passes: promote due queued listings to live, close live listings
// whose end has passed, then capture payment from the winners of completed
// listings. The capture pass covers both the listings closed in this run and
// any listing still sitting in completed from an earlier run (declined charge,
// crash between close and capture), so every run is a fresh capture attempt
// under the same listing-scoped idempotency key.
//
// Runs are idempotent and overlap-safe without any cross-process lock: every
// transition is conditional on the row's current status, so when two triggers
// race (cron and ticker, or two instances) each listing is moved exactly once
// and the loser of the race just skips it.
type LifecycleService struct {
	listings    ListingStore
	capturer    WinnerCapturer
	sink        notify.Sink
	clock       domain.Clock
	cfg         *config.Config
	windowCfg   domain.WindowConfig
	logger      *slog.Logger
	broadcaster CloseBroadcaster // injected after the WS hub is built; may be nil
}

// NewLifecycleService creates a LifecycleService. The auction timezone is
// resolved once here; an unknown IANA name falls back to UTC.
func NewLifecycleService(
	listings ListingStore,
	capturer WinnerCapturer,
	sink notify.Sink,
	clock domain.Clock,
	cfg *config.Config,
	logger *slog.Logger,
) *LifecycleService {
	wc := domain.DefaultWindowConfig()
	if loc, err := time.LoadLocation(cfg.Auction.Timezone); err == nil {
		wc.Location = loc
	} else {
		logger.Warn("unknown auction timezone, using UTC", "timezone", cfg.Auction.Timezone)
		wc.Location = time.UTC
	}
	wc.OpenWeekday = time.Weekday(cfg.Auction.OpenWeekday)
	wc.OpenHour = cfg.Auction.OpenHour
	wc.CloseWeekday = time.Weekday(cfg.Auction.CloseWeekday)
	wc.CloseHour = cfg.Auction.CloseHour

	return &LifecycleService{
		listings:  listings,
		capturer:  capturer,
		sink:      sink,
		clock:     clock,
		cfg:       cfg,
		windowCfg: wc,
		logger:    logger,
	}
}

// SetBroadcaster injects the WS hub dependency post-construction.
func (s *LifecycleService) SetBroadcaster(b CloseBroadcaster) { s.broadcaster = b }

// CurrentWindow exposes the configured weekly window for the given instant.
func (s *LifecycleService) CurrentWindow(now time.Time) domain.Window {
	return domain.ComputeWindow(now, s.windowCfg)
}

// Run executes one full lifecycle pass and reports what it did.
func (s *LifecycleService) Run(ctx context.Context) (*RunReport, error) {
	now := s.clock.Now()
	report := &RunReport{StartedAt: now}

	s.logger.Info("lifecycle run started", "now", now)

	s.promoteDue(ctx, now, report)
	completed := s.closeEnded(ctx, now, report)

	attempted := make(map[uuid.UUID]bool, len(completed))
	for _, l := range completed {
		attempted[l.ID] = true
		outcome := s.capturer.CaptureWinner(ctx, l)
		report.Captures = append(report.Captures, outcome)
	}
	s.captureStranded(ctx, attempted, report)

	s.logger.Info("lifecycle run finished",
		"promoted", report.Promoted,
		"completed", report.Completed,
		"not_sold", report.NotSold,
		"relisted", report.Relisted,
		"captures", len(report.Captures),
		"errors", len(report.Errors),
	)
	return report, nil
}

// promoteDue moves queued listings whose start time has arrived to live.
// Pages with offset 0 throughout: promoted rows leave the queued set, so the
// next page is always the remaining head. MaxBatches bounds the loop when rows
// fail to move.
func (s *LifecycleService) promoteDue(ctx context.Context, now time.Time, report *RunReport) {
	batch := s.cfg.Auction.BatchSize
	for i := 0; i < s.cfg.Auction.MaxBatches; i++ {
		page, err := s.listings.ListQueuedDue(ctx, now, batch, 0)
		if err != nil {
			s.logger.Error("list queued listings failed", "err", err)
			report.Errors = append(report.Errors, RunError{Stage: "promote", Err: err.Error()})
			return
		}
		for _, l := range page {
			ok, err := s.listings.Promote(ctx, l.ID)
			if err != nil {
				report.Errors = append(report.Errors, RunError{ListingID: l.ID, Stage: "promote", Err: err.Error()})
				continue
			}
			if ok {
				report.Promoted++
			}
		}
		if len(page) < batch {
			return
		}
	}
	s.logger.Warn("promote pass hit the batch cap", "max_batches", s.cfg.Auction.MaxBatches)
}

// closeEnded closes live listings whose auction end has passed and returns the
// ones that completed with a winner (reserve met).
func (s *LifecycleService) closeEnded(ctx context.Context, now time.Time, report *RunReport) []*domain.Listing {
	var completed []*domain.Listing

	batch := s.cfg.Auction.BatchSize
	for i := 0; i < s.cfg.Auction.MaxBatches; i++ {
		page, err := s.listings.ListLiveEnded(ctx, now, batch, 0)
		if err != nil {
			s.logger.Error("list ended listings failed", "err", err)
			report.Errors = append(report.Errors, RunError{Stage: "close", Err: err.Error()})
			return completed
		}
		for _, l := range page {
			done, err := s.closeOne(ctx, now, l, report)
			if err != nil {
				report.Errors = append(report.Errors, RunError{ListingID: l.ID, Stage: "close", Err: err.Error()})
				continue
			}
			if done != nil {
				completed = append(completed, done)
			}
		}
		if len(page) < batch {
			return completed
		}
	}
	s.logger.Warn("close pass hit the batch cap", "max_batches", s.cfg.Auction.MaxBatches)
	return completed
}

// closeOne resolves a single ended listing: completed when the reserve was
// met, otherwise relisted into the next window or marked not sold. Returns
// the listing when it completed with a winner.
func (s *LifecycleService) closeOne(ctx context.Context, now time.Time, l *domain.Listing, report *RunReport) (*domain.Listing, error) {
	switch {
	case l.HasBid() && l.ReserveMet():
		ok, err := s.listings.MarkCompleted(ctx, l.ID)
		if err != nil {
			return nil, fmt.Errorf("mark completed: %w", err)
		}
		if !ok {
			return nil, nil // another run got there first
		}
		report.Completed++
		s.broadcastClosed(l, string(domain.StatusCompleted))
		return l, nil

	case l.RelistUntilSold:
		// Requeue into the soonest window that has not yet opened. When the
		// close lands in the dead gap the rolled-forward current window is
		// still ahead of us and the item runs again next cycle, not the one
		// after.
		w := domain.ComputeWindow(now, s.windowCfg)
		start, end := w.CurrentStart, w.CurrentEnd
		if !now.Before(start) {
			start, end = w.NextStart, w.NextEnd
		}
		ok, err := s.listings.Requeue(ctx, l.ID, start, end)
		if err != nil {
			return nil, fmt.Errorf("requeue: %w", err)
		}
		if !ok {
			return nil, nil
		}
		report.Relisted++
		s.broadcastClosed(l, string(domain.StatusQueued))
		go s.notifyRelisted(l, start)
		return nil, nil

	default:
		ok, err := s.listings.MarkNotSold(ctx, l.ID)
		if err != nil {
			return nil, fmt.Errorf("mark not sold: %w", err)
		}
		if !ok {
			return nil, nil
		}
		report.NotSold++
		s.broadcastClosed(l, string(domain.StatusNotSold))
		go s.notifyNotSold(l)
		return nil, nil
	}
}

// captureStranded retries winner capture for listings left in completed by an
// earlier run — a declined charge, or a crash between close and capture.
// Listings captured earlier in this run are skipped; everything else is a
// fresh attempt, safe because the charge key is listing-scoped and the
// transaction store keeps one record per listing. Pages are collected before
// capturing so that rows leaving the set (marked sold) cannot shift the
// offsets mid-scan.
func (s *LifecycleService) captureStranded(ctx context.Context, attempted map[uuid.UUID]bool, report *RunReport) {
	batch := s.cfg.Auction.BatchSize
	var stranded []*domain.Listing
	for i := 0; i < s.cfg.Auction.MaxBatches; i++ {
		page, err := s.listings.ListCompleted(ctx, batch, i*batch)
		if err != nil {
			s.logger.Error("list completed listings failed", "err", err)
			report.Errors = append(report.Errors, RunError{Stage: "capture", Err: err.Error()})
			return
		}
		stranded = append(stranded, page...)
		if len(page) < batch {
			break
		}
	}

	for _, l := range stranded {
		if attempted[l.ID] {
			continue
		}
		s.logger.Info("retrying capture for completed listing", "listing", l.ID)
		outcome := s.capturer.CaptureWinner(ctx, l)
		report.Captures = append(report.Captures, outcome)
	}
}

func (s *LifecycleService) broadcastClosed(l *domain.Listing, status string) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastListingClosed(ws.ListingClosedMessage{
		Type:      ws.MsgTypeListingClosed,
		ListingID: l.ID,
		Status:    status,
		FinalBid:  l.CurrentBid,
		Timestamp: s.clock.Now(),
	})
}

func (s *LifecycleService) notifyRelisted(l *domain.Listing, nextStart time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.sink.Send(ctx, notify.Message{
		RecipientID: l.SellerID,
		Subject:     "Your listing has been relisted",
		Body: fmt.Sprintf("%q did not meet its reserve and will run again in the next auction, starting %s.",
			l.Title, nextStart.Format(time.RFC1123)),
	})
	if err != nil {
		s.logger.Warn("relist notification failed", "listing", l.ID, "err", err)
	}
}

func (s *LifecycleService) notifyNotSold(l *domain.Listing) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.sink.Send(ctx, notify.Message{
		RecipientID: l.SellerID,
		Subject:     "Your auction has ended",
		Body:        fmt.Sprintf("%q did not sell this week.", l.Title),
	})
	if err != nil {
		s.logger.Warn("not-sold notification failed", "listing", l.ID, "err", err)
	}
}
