package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/saleyard/auctions/internal/config"
	"github.com/saleyard/auctions/internal/domain"
	"github.com/saleyard/auctions/internal/notify"
	"github.com/saleyard/auctions/internal/payment"
	"github.com/saleyard/auctions/internal/ws"
)

// Broadcaster is the minimal interface BidService needs from the WS hub.
// Declared here so the service package does not import the hub implementation.
type Broadcaster interface {
	BroadcastBidAccepted(msg ws.BidAcceptedMessage)
}

// ──────────────────────────────────────────────────────────────────────────────
// BidService
// ──────────────────────────────────────────────────────────────────────────────

// BidService validates and records bids against live listings: minimum
// increment enforcement, payment-method gating, and the soft-close extension.
//
// Concurrency model: each call is an independent unit of work; correctness
// under concurrent bids rests on the store serialising conflicting writes to
// the same listing (version compare-and-swap in ListingStore.RecordBid). No
// in-process lock spans requests, so the service is safe to run as multiple
// stateless instances.
type BidService struct {
	listings    ListingStore
	processor   payment.Processor
	sink        notify.Sink
	clock       domain.Clock
	cfg         *config.Config
	logger      *slog.Logger
	broadcaster Broadcaster // injected after the WS hub is built; may be nil
}

// NewBidService creates a BidService.
func NewBidService(
	listings ListingStore,
	processor payment.Processor,
	sink notify.Sink,
	clock domain.Clock,
	cfg *config.Config,
	logger *slog.Logger,
) *BidService {
	return &BidService{
		listings:  listings,
		processor: processor,
		sink:      sink,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// SetBroadcaster injects the WS hub dependency post-construction.
func (s *BidService) SetBroadcaster(b Broadcaster) { s.broadcaster = b }

// ──────────────────────────────────────────────────────────────────────────────
// PlaceBid
// ──────────────────────────────────────────────────────────────────────────────

// PlaceBid admits a single bid. Preconditions are checked in order, each
// with a distinct error:
//
//  1. listing exists and is live          → ErrListingNotFound / ErrListingNotLive
//  2. auction end strictly in the future  → ErrAuctionEnded
//  3. bidder has a payment method on file → ErrPaymentMethodRequired
//  4. amount is a positive whole number   → ErrInvalidAmount
//  5. amount ≥ base + increment(base)     → *BidTooLowError (carries the minimum)
//
// On success the immutable bid row is appended and the listing's cached bid
// state updated atomically; a bid landing within the trailing soft-close band
// re-extends auction_end to now + SoftCloseWindow. Store write races are
// retried a bounded number of times before surfacing ErrWriteConflict.
// Notifications and the WS broadcast are best-effort and never roll back an
// accepted bid.
func (s *BidService) PlaceBid(ctx context.Context, req domain.PlaceBidRequest) (*domain.BidResult, error) {
	// Admit under bounded CAS retries. The payment-method gate only runs on
	// the first attempt: it is independent of the write race, and a retry must
	// not make a second processor round trip.
	var result *domain.BidResult
	var err error
	for attempt := 1; attempt <= s.cfg.Auction.MaxBidRetries; attempt++ {
		result, err = s.tryPlaceBid(ctx, req, attempt == 1)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrWriteConflict) {
			return nil, err
		}
		s.logger.Debug("bid write conflict, retrying",
			"listing", req.ListingID, "attempt", attempt)
	}
	if err != nil {
		// Retries exhausted: transient, surfaced to the bidder — never dropped.
		return nil, fmt.Errorf("bid_service.PlaceBid: %w", err)
	}

	// Best-effort side effects.
	go s.postBidAsync(result)

	return result, nil
}

// tryPlaceBid runs one admission attempt against a fresh read of the listing.
// Preconditions are checked in the documented order, so the listing's state
// is settled before any processor call is made.
func (s *BidService) tryPlaceBid(ctx context.Context, req domain.PlaceBidRequest, gatePayment bool) (*domain.BidResult, error) {
	l, err := s.listings.GetByID(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}
	if !l.IsLive() {
		return nil, domain.ErrListingNotLive
	}

	now := s.clock.Now()
	if l.AuctionEnd == nil || !now.Before(*l.AuctionEnd) {
		return nil, domain.ErrAuctionEnded
	}

	if gatePayment {
		if err := s.requirePaymentMethod(ctx, req.BidderID); err != nil {
			return nil, err
		}
	}

	if !req.Amount.IsPositive() || !req.Amount.IsInteger() {
		return nil, domain.ErrInvalidAmount
	}

	minimum := l.NextMinimumBid()
	if req.Amount.LessThan(minimum) {
		return nil, &domain.BidTooLowError{Minimum: minimum}
	}

	extended := l.ApplyBid(req.BidderID, req.Amount, now)

	bid := &domain.Bid{
		ID:        uuid.New(),
		ListingID: l.ID,
		BidderID:  req.BidderID,
		Amount:    req.Amount,
		PlacedAt:  now,
	}
	if err := s.listings.RecordBid(ctx, l, bid); err != nil {
		return nil, err
	}

	return &domain.BidResult{Listing: l, Bid: bid, Extended: extended}, nil
}

// requirePaymentMethod resolves the bidder's processor customer and confirms
// a verified payment method is on file.
func (s *BidService) requirePaymentMethod(ctx context.Context, bidderID uuid.UUID) error {
	cust, err := s.processor.FindOrCreateCustomer(ctx, bidderID)
	if err != nil {
		return fmt.Errorf("bid_service.PlaceBid: resolve customer: %w", err)
	}
	if _, err := s.processor.DefaultMethod(ctx, cust.ID); err != nil {
		if errors.Is(err, payment.ErrNoPaymentMethod) {
			return domain.ErrPaymentMethodRequired
		}
		return fmt.Errorf("bid_service.PlaceBid: list payment methods: %w", err)
	}
	return nil
}

// postBidAsync notifies bidder and seller and broadcasts the accepted bid.
// Runs in a goroutine; failures are logged, never propagated.
func (s *BidService) postBidAsync(result *domain.BidResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l, bid := result.Listing, result.Bid

	s.notify(ctx, bid.BidderID, "Bid received",
		fmt.Sprintf("Your bid of %s on %q is the highest bid.", bid.Amount, l.Title))
	s.notify(ctx, l.SellerID, "New bid on your listing",
		fmt.Sprintf("%q has a new highest bid of %s.", l.Title, bid.Amount))

	if s.broadcaster != nil {
		s.broadcaster.BroadcastBidAccepted(ws.BidAcceptedMessage{
			Type:       ws.MsgTypeBidAccepted,
			ListingID:  l.ID,
			Amount:     bid.Amount,
			BidCount:   l.BidCount,
			NextBid:    l.NextMinimumBid(),
			AuctionEnd: *l.AuctionEnd,
			Extended:   result.Extended,
			Timestamp:  bid.PlacedAt,
		})
	}
}

func (s *BidService) notify(ctx context.Context, recipient uuid.UUID, subject, body string) {
	err := s.sink.Send(ctx, notify.Message{RecipientID: recipient, Subject: subject, Body: body})
	if err != nil {
		s.logger.Warn("notification failed", "recipient", recipient, "subject", subject, "err", err)
	}
}
