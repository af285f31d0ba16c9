package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/saleyard/auctions/internal/domain"
	"github.com/saleyard/auctions/internal/payment"
	"github.com/saleyard/auctions/internal/service"
	"github.com/shopspring/decimal"
)

// fakeCapturer records which listings were handed to winner capture. With a
// store attached it also marks the listing sold, the way a successful real
// capture does.
type fakeCapturer struct {
	mu       sync.Mutex
	captured []uuid.UUID
	store    *fakeStore
}

func (f *fakeCapturer) CaptureWinner(ctx context.Context, l *domain.Listing) service.CaptureOutcome {
	f.mu.Lock()
	f.captured = append(f.captured, l.ID)
	f.mu.Unlock()
	if f.store != nil && l.HighestBidderID != nil && l.CurrentBid != nil {
		_, _ = f.store.MarkSold(ctx, l.ID, *l.HighestBidderID, *l.CurrentBid)
	}
	return service.CaptureOutcome{ListingID: l.ID, Charged: true}
}

func newLifecycle(store *fakeStore, cap service.WinnerCapturer, now time.Time) *service.LifecycleService {
	return service.NewLifecycleService(store, cap, &fakeSink{},
		domain.FixedClock{T: now}, testConfig(), testLogger())
}

// ── Promotion ─────────────────────────────────────────────────────────────────

func TestRun_PromotesDueListings(t *testing.T) {
	now := time.Date(2025, 6, 9, 1, 30, 0, 0, time.UTC)
	store := newFakeStore()

	due := liveListing(now)
	due.Status = domain.StatusQueued
	start := now.Add(-time.Minute)
	due.AuctionStart = &start
	store.put(due)

	future := liveListing(now)
	future.Status = domain.StatusQueued
	later := now.Add(time.Hour)
	future.AuctionStart = &later
	store.put(future)

	unscheduled := liveListing(now)
	unscheduled.Status = domain.StatusQueued
	unscheduled.AuctionStart = nil
	store.put(unscheduled)

	svc := newLifecycle(store, &fakeCapturer{}, now)
	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Promoted != 1 {
		t.Errorf("Promoted = %d, want 1", report.Promoted)
	}
	if got := store.get(t, due.ID).Status; got != domain.StatusLive {
		t.Errorf("due listing status = %s, want live", got)
	}
	if got := store.get(t, future.ID).Status; got != domain.StatusQueued {
		t.Errorf("future listing status = %s, want still queued", got)
	}
	if got := store.get(t, unscheduled.ID).Status; got != domain.StatusQueued {
		t.Errorf("unscheduled listing status = %s, want still queued (never promoted)", got)
	}
}

// ── Closing ───────────────────────────────────────────────────────────────────

func endedListing(now time.Time) *domain.Listing {
	l := liveListing(now)
	end := now.Add(-time.Minute)
	l.AuctionEnd = &end
	return l
}

func TestRun_ReserveMetCompletesAndCaptures(t *testing.T) {
	now := time.Date(2025, 6, 15, 23, 5, 0, 0, time.UTC)
	store := newFakeStore()
	l := endedListing(now) // reserve 150
	l.ApplyBid(uuid.New(), decimal.NewFromInt(160), now.Add(-time.Hour))
	store.put(l)

	cap := &fakeCapturer{}
	svc := newLifecycle(store, cap, now)
	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Completed != 1 {
		t.Errorf("Completed = %d, want 1", report.Completed)
	}
	if len(cap.captured) != 1 || cap.captured[0] != l.ID {
		t.Errorf("captured = %v, want [%s]", cap.captured, l.ID)
	}
	if len(report.Captures) != 1 {
		t.Errorf("report.Captures = %d entries, want 1", len(report.Captures))
	}
	if got := store.get(t, l.ID).Status; got != domain.StatusCompleted {
		t.Errorf("listing status = %s, want completed", got)
	}
}

func TestRun_ReserveNotMetGoesNotSold(t *testing.T) {
	now := time.Date(2025, 6, 15, 23, 5, 0, 0, time.UTC)
	store := newFakeStore()
	// Start 100, reserve 150, bids reached 130: closes without a sale.
	l := endedListing(now)
	l.ApplyBid(uuid.New(), decimal.NewFromInt(105), now.Add(-2*time.Hour))
	l.ApplyBid(uuid.New(), decimal.NewFromInt(130), now.Add(-time.Hour))
	store.put(l)

	cap := &fakeCapturer{}
	svc := newLifecycle(store, cap, now)
	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.NotSold != 1 || report.Completed != 0 {
		t.Errorf("report = %+v, want exactly one not_sold", report)
	}
	if len(cap.captured) != 0 {
		t.Error("reserve-not-met listing must never reach winner capture")
	}
	if got := store.get(t, l.ID).Status; got != domain.StatusNotSold {
		t.Errorf("listing status = %s, want not_sold", got)
	}
}

func TestRun_NoBidsGoesNotSold(t *testing.T) {
	now := time.Date(2025, 6, 15, 23, 5, 0, 0, time.UTC)
	store := newFakeStore()
	l := endedListing(now)
	store.put(l)

	svc := newLifecycle(store, &fakeCapturer{}, now)
	report, _ := svc.Run(context.Background())
	if report.NotSold != 1 {
		t.Errorf("NotSold = %d, want 1", report.NotSold)
	}
}

// ── Relisting ─────────────────────────────────────────────────────────────────

func TestRun_RelistUntilSoldRequeues(t *testing.T) {
	now := time.Date(2025, 6, 15, 23, 5, 0, 0, time.UTC)
	store := newFakeStore()
	l := endedListing(now)
	l.RelistUntilSold = true
	l.ApplyBid(uuid.New(), decimal.NewFromInt(130), now.Add(-time.Hour)) // under reserve
	store.put(l)

	svc := newLifecycle(store, &fakeCapturer{}, now)
	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Relisted != 1 {
		t.Errorf("Relisted = %d, want 1", report.Relisted)
	}

	requeued := store.get(t, l.ID)
	if requeued.Status != domain.StatusQueued {
		t.Fatalf("status = %s, want queued", requeued.Status)
	}
	if requeued.CurrentBid != nil || requeued.BidCount != 0 || requeued.HighestBidderID != nil {
		t.Errorf("bid state not reset: %+v", requeued)
	}
	if requeued.AuctionStart == nil || !requeued.AuctionStart.After(now) {
		t.Errorf("AuctionStart = %v, want strictly after the close that relisted it", requeued.AuctionStart)
	}
	if requeued.AuctionEnd == nil || !requeued.AuctionEnd.After(*requeued.AuctionStart) {
		t.Errorf("AuctionEnd = %v, want after AuctionStart", requeued.AuctionEnd)
	}

	// Closing at 23:05 UTC is 00:05 Monday in London: the rolled-forward
	// current window (opening 01:00 that morning) is still ahead, so the
	// item runs again in it rather than sitting out a week.
	w := svc.CurrentWindow(now)
	if !requeued.AuctionStart.Equal(w.CurrentStart) {
		t.Errorf("relisted into %s, want soonest unopened window start %s", requeued.AuctionStart, w.CurrentStart)
	}
}

func TestRun_RelistMidWindowUsesNextWindow(t *testing.T) {
	// A listing that ends while a window is still running must requeue into
	// the following window, never the already-open one.
	now := time.Date(2025, 6, 11, 12, 0, 0, 0, time.UTC) // Wednesday, mid-window
	store := newFakeStore()
	l := endedListing(now)
	l.RelistUntilSold = true
	store.put(l)

	svc := newLifecycle(store, &fakeCapturer{}, now)
	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	requeued := store.get(t, l.ID)
	w := svc.CurrentWindow(now)
	if requeued.AuctionStart == nil || !requeued.AuctionStart.Equal(w.NextStart) {
		t.Errorf("relisted into %v, want next window start %s", requeued.AuctionStart, w.NextStart)
	}
	if !requeued.AuctionStart.After(now) {
		t.Errorf("AuctionStart = %v, want strictly after now", requeued.AuctionStart)
	}
}

// ── Idempotence and isolation ─────────────────────────────────────────────────

func TestRun_SecondRunIsNoOp(t *testing.T) {
	now := time.Date(2025, 6, 15, 23, 5, 0, 0, time.UTC)
	store := newFakeStore()
	l := endedListing(now)
	l.ApplyBid(uuid.New(), decimal.NewFromInt(160), now.Add(-time.Hour))
	store.put(l)

	cap := &fakeCapturer{store: store}
	svc := newLifecycle(store, cap, now)

	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Promoted != 0 || second.Completed != 0 || second.NotSold != 0 || second.Relisted != 0 {
		t.Errorf("second run moved listings again: %+v", second)
	}
	if len(cap.captured) != 1 {
		t.Errorf("captured %d times across two runs, want 1", len(cap.captured))
	}
}

// ── Capture retry across runs ─────────────────────────────────────────────────

func TestRun_CapturesStrandedCompleted(t *testing.T) {
	// A listing left in completed by an earlier run (crash between close and
	// capture) is picked up by the next run without a fresh close event.
	now := time.Date(2025, 6, 15, 23, 5, 0, 0, time.UTC)
	store := newFakeStore()
	l := endedListing(now)
	l.ApplyBid(uuid.New(), decimal.NewFromInt(160), now.Add(-time.Hour))
	l.Status = domain.StatusCompleted
	store.put(l)

	cap := &fakeCapturer{}
	svc := newLifecycle(store, cap, now)
	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Completed != 0 {
		t.Errorf("Completed = %d, want 0 (nothing closed this run)", report.Completed)
	}
	if len(cap.captured) != 1 || cap.captured[0] != l.ID {
		t.Errorf("captured = %v, want [%s]", cap.captured, l.ID)
	}
}

func TestRun_RetriesDeclinedChargeNextRun(t *testing.T) {
	now := time.Date(2025, 6, 15, 23, 5, 0, 0, time.UTC)
	store := newFakeStore()
	proc := newFakeProcessor()
	proc.chargeErr = &payment.ChargeError{Code: "card_declined", Message: "Your card was declined."}
	l, _ := completedListing(t, store, now, 160, 200)

	captureSvc := newCaptureService(store, proc, now)
	svc := newLifecycle(store, captureSvc, now)

	first, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if len(first.Captures) != 1 || first.Captures[0].Error == "" {
		t.Fatalf("first run Captures = %+v, want one failed attempt", first.Captures)
	}
	if got := store.get(t, l.ID).Status; got != domain.StatusCompleted {
		t.Fatalf("listing status after declined charge = %s, want completed", got)
	}

	// The card works next time; the next run must re-attempt on its own.
	proc.chargeErr = nil
	second, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(second.Captures) != 1 || !second.Captures[0].Charged {
		t.Fatalf("second run Captures = %+v, want one successful capture", second.Captures)
	}
	if got := store.get(t, l.ID).Status; got != domain.StatusSold {
		t.Errorf("listing status = %s, want sold", got)
	}
	if store.txnCount() != 1 || proc.chargeCount() != 1 {
		t.Errorf("txns = %d, charges = %d, want 1 and 1", store.txnCount(), proc.chargeCount())
	}

	// Once sold the listing leaves the retry set.
	third, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("third Run: %v", err)
	}
	if len(third.Captures) != 0 {
		t.Errorf("third run Captures = %+v, want none", third.Captures)
	}
}

func TestRun_ListFailureReported(t *testing.T) {
	now := time.Date(2025, 6, 15, 23, 5, 0, 0, time.UTC)
	store := newFakeStore()
	store.listErr = context.DeadlineExceeded

	svc := newLifecycle(store, &fakeCapturer{}, now)
	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run should report, not fail: %v", err)
	}
	if len(report.Errors) == 0 {
		t.Error("store failure missing from report.Errors")
	}
}
