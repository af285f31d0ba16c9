package service_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/saleyard/auctions/internal/config"
	"github.com/saleyard/auctions/internal/domain"
	"github.com/saleyard/auctions/internal/notify"
	"github.com/saleyard/auctions/internal/payment"
	"github.com/shopspring/decimal"
)

// ── Shared test plumbing ──────────────────────────────────────────────────────

func testConfig() *config.Config {
	return &config.Config{
		Auction: config.AuctionConfig{
			Timezone:      "Europe/London",
			OpenWeekday:   1,
			OpenHour:      1,
			CloseWeekday:  0,
			CloseHour:     23,
			MaxBidRetries: 3,
			BatchSize:     100,
			MaxBatches:    50,
		},
		Payment: config.PaymentConfig{Currency: "gbp"},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

// ── In-memory store ───────────────────────────────────────────────────────────

// fakeStore implements ListingStore, BidStore, and TransactionStore against
// maps, mirroring the conditional-write semantics of the SQL repositories.
type fakeStore struct {
	mu       sync.Mutex
	listings map[uuid.UUID]*domain.Listing
	bids     []*domain.Bid
	txns     map[uuid.UUID]*domain.Transaction
	nextSeq  int64

	// conflictsLeft makes RecordBid fail with ErrWriteConflict that many
	// times before succeeding, to exercise the retry loop.
	conflictsLeft int

	listErr error // injected failure for the list queries
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		listings: make(map[uuid.UUID]*domain.Listing),
		txns:     make(map[uuid.UUID]*domain.Transaction),
	}
}

func (f *fakeStore) put(l *domain.Listing) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *l
	f.listings[l.ID] = &cp
}

func (f *fakeStore) get(t *testing.T, id uuid.UUID) *domain.Listing {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.listings[id]
	if !ok {
		t.Fatalf("listing %s not in store", id)
	}
	cp := *l
	return &cp
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.listings[id]
	if !ok {
		return nil, domain.ErrListingNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeStore) RecordBid(_ context.Context, l *domain.Listing, b *domain.Bid) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return domain.ErrWriteConflict
	}
	stored, ok := f.listings[l.ID]
	if !ok || stored.Status != domain.StatusLive || stored.Version != l.Version {
		return domain.ErrWriteConflict
	}
	cp := *l
	cp.Version++
	f.listings[l.ID] = &cp
	l.Version++

	f.nextSeq++
	b.Seq = f.nextSeq
	bc := *b
	f.bids = append(f.bids, &bc)
	return nil
}

func (f *fakeStore) ListQueuedDue(_ context.Context, now time.Time, limit, offset int) ([]*domain.Listing, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Listing
	for _, l := range f.listings {
		if l.Status == domain.StatusQueued && l.AuctionStart != nil && !l.AuctionStart.After(now) {
			cp := *l
			out = append(out, &cp)
		}
	}
	return page(out, limit, offset), nil
}

func (f *fakeStore) ListLiveEnded(_ context.Context, now time.Time, limit, offset int) ([]*domain.Listing, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Listing
	for _, l := range f.listings {
		if l.Status == domain.StatusLive && l.AuctionEnd != nil && !l.AuctionEnd.After(now) {
			cp := *l
			out = append(out, &cp)
		}
	}
	return page(out, limit, offset), nil
}

func (f *fakeStore) ListCompleted(_ context.Context, limit, offset int) ([]*domain.Listing, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Listing
	for _, l := range f.listings {
		if l.Status == domain.StatusCompleted {
			cp := *l
			out = append(out, &cp)
		}
	}
	return page(out, limit, offset), nil
}

func page(in []*domain.Listing, limit, offset int) []*domain.Listing {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if len(in) > limit {
		in = in[:limit]
	}
	return in
}

func (f *fakeStore) transition(id uuid.UUID, from, to domain.ListingStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.listings[id]
	if !ok || l.Status != from {
		return false, nil
	}
	l.Status = to
	l.Version++
	return true, nil
}

func (f *fakeStore) Promote(_ context.Context, id uuid.UUID) (bool, error) {
	return f.transition(id, domain.StatusQueued, domain.StatusLive)
}

func (f *fakeStore) MarkCompleted(_ context.Context, id uuid.UUID) (bool, error) {
	return f.transition(id, domain.StatusLive, domain.StatusCompleted)
}

func (f *fakeStore) MarkNotSold(_ context.Context, id uuid.UUID) (bool, error) {
	return f.transition(id, domain.StatusLive, domain.StatusNotSold)
}

func (f *fakeStore) Requeue(_ context.Context, id uuid.UUID, windowStart, windowEnd time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.listings[id]
	if !ok || l.Status != domain.StatusLive {
		return false, nil
	}
	l.Status = domain.StatusQueued
	l.AuctionStart = &windowStart
	l.AuctionEnd = &windowEnd
	l.ResetBidState()
	l.Version++
	return true, nil
}

func (f *fakeStore) MarkSold(_ context.Context, id, buyerID uuid.UUID, salePrice decimal.Decimal) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.listings[id]
	if !ok || l.Status != domain.StatusCompleted {
		return false, nil
	}
	l.Status = domain.StatusSold
	l.BuyerID = &buyerID
	l.SoldPrice = &salePrice
	l.Version++
	return true, nil
}

func (f *fakeStore) ListByListing(_ context.Context, listingID uuid.UUID) ([]*domain.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Bid
	for _, b := range f.bids {
		if b.ListingID == listingID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) Create(_ context.Context, t *domain.Transaction) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.txns[t.ListingID]; exists {
		return false, nil
	}
	cp := *t
	f.txns[t.ListingID] = &cp
	return true, nil
}

func (f *fakeStore) txnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.txns)
}

// ── Fake payment processor ────────────────────────────────────────────────────

type fakeProcessor struct {
	mu            sync.Mutex
	noMethod      bool
	chargeErr     error
	charges       map[string]payment.Charge // by idempotency key
	attempts      int
	customerCalls int
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{charges: make(map[string]payment.Charge)}
}

func (p *fakeProcessor) FindOrCreateCustomer(_ context.Context, userID uuid.UUID) (*payment.Customer, error) {
	p.mu.Lock()
	p.customerCalls++
	p.mu.Unlock()
	return &payment.Customer{ID: "cus_" + userID.String()[:8]}, nil
}

func (p *fakeProcessor) DefaultMethod(_ context.Context, customerID string) (*payment.Method, error) {
	if p.noMethod {
		return nil, payment.ErrNoPaymentMethod
	}
	return &payment.Method{ID: "pm_test"}, nil
}

func (p *fakeProcessor) CreateCharge(_ context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.chargeErr != nil {
		return nil, p.chargeErr
	}
	// Idempotent replay: the same key returns the original charge.
	if ch, ok := p.charges[req.IdempotencyKey]; ok {
		return &ch, nil
	}
	ch := payment.Charge{ID: "ch_" + uuid.NewString()[:8], Status: "succeeded"}
	p.charges[req.IdempotencyKey] = ch
	return &ch, nil
}

func (p *fakeProcessor) chargeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.charges)
}

func (p *fakeProcessor) customerCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.customerCalls
}

// ── Fake notification sink ────────────────────────────────────────────────────

type fakeSink struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (s *fakeSink) Send(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}
