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
)

// Skip reasons reported in CaptureOutcome.SkipReason.
const (
	SkipNoBidHistory    = "no bids found in history"
	SkipNoBuyerIdentity = "winning bid missing buyer identity"
	SkipNoBidAmount     = "winning bid missing amount"
	SkipNoPaymentMethod = "winner has no payment method on file"
)

// CaptureOutcome is the per-listing result of a winner capture attempt.
// Exactly one of Charged / SkipReason / Error describes what happened:
// charged and settled, skipped for a structural reason, or failed with the
// processor's error (IntentID preserved for reconciliation).
type CaptureOutcome struct {
	ListingID     uuid.UUID  `json:"listing_id"`
	Charged       bool       `json:"charged"`
	SkipReason    string     `json:"skip_reason,omitempty"`
	Error         string     `json:"error,omitempty"`
	ChargeID      string     `json:"charge_id,omitempty"`
	IntentID      string     `json:"intent_id,omitempty"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
}

// ──────────────────────────────────────────────────────────────────────────────
// CaptureService
// ──────────────────────────────────────────────────────────────────────────────

// CaptureService charges the winner of a newly completed listing and records
// the settlement. Double-charging is prevented structurally: the charge is
// created under an idempotency key scoped to the listing id, and the
// transaction store enforces one record per listing. There is no retry loop
// in here — a failed capture is retried by the next scheduler run under the
// same idempotency key, which is safe.
type CaptureService struct {
	listings  ListingStore
	bids      BidStore
	txns      TransactionStore
	processor payment.Processor
	sink      notify.Sink
	clock     domain.Clock
	cfg       *config.Config
	logger    *slog.Logger
}

// NewCaptureService creates a CaptureService.
func NewCaptureService(
	listings ListingStore,
	bids BidStore,
	txns TransactionStore,
	processor payment.Processor,
	sink notify.Sink,
	clock domain.Clock,
	cfg *config.Config,
	logger *slog.Logger,
) *CaptureService {
	return &CaptureService{
		listings:  listings,
		bids:      bids,
		txns:      txns,
		processor: processor,
		sink:      sink,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// IdempotencyKey returns the listing-scoped key a winner charge is created
// under. Stable across scheduler runs so a retried capture never
// double-charges.
func IdempotencyKey(listingID uuid.UUID) string {
	return "winner-charge-" + listingID.String()
}

// CaptureWinner determines the winning bid, charges the winner, and records
// the settlement for one completed listing. Never panics the batch: every
// failure mode is reported in the outcome.
func (s *CaptureService) CaptureWinner(ctx context.Context, l *domain.Listing) CaptureOutcome {
	out := CaptureOutcome{ListingID: l.ID}

	// ── 1. Re-derive the winning bid from the immutable history ──────────────
	// The cached current_bid/highest_bidder fields are cross-checked, not
	// trusted: the last history row in store-assigned order is the bid that
	// produced the final current_bid.
	history, err := s.bids.ListByListing(ctx, l.ID)
	if err != nil {
		out.Error = fmt.Sprintf("load bid history: %v", err)
		return out
	}
	if len(history) == 0 {
		out.SkipReason = SkipNoBidHistory
		return out
	}
	winning := history[len(history)-1]

	if l.CurrentBid != nil && !winning.Amount.Equal(*l.CurrentBid) {
		s.logger.Warn("cached current_bid disagrees with bid history; history wins",
			"listing", l.ID, "cached", l.CurrentBid, "history", winning.Amount)
	}
	if winning.BidderID == uuid.Nil {
		out.SkipReason = SkipNoBuyerIdentity
		return out
	}
	if !winning.Amount.IsPositive() {
		out.SkipReason = SkipNoBidAmount
		return out
	}

	// ── 2. Resolve the winner's payment method ───────────────────────────────
	cust, err := s.processor.FindOrCreateCustomer(ctx, winning.BidderID)
	if err != nil {
		out.Error = fmt.Sprintf("resolve customer: %v", err)
		return out
	}
	method, err := s.processor.DefaultMethod(ctx, cust.ID)
	if err != nil {
		if errors.Is(err, payment.ErrNoPaymentMethod) {
			out.SkipReason = SkipNoPaymentMethod
			return out
		}
		out.Error = fmt.Sprintf("list payment methods: %v", err)
		return out
	}

	// ── 3. Charge under the listing-scoped idempotency key ───────────────────
	chargeAmount := winning.Amount.Add(l.BuyerSurcharge)
	charge, err := s.processor.CreateCharge(ctx, payment.ChargeRequest{
		CustomerID:     cust.ID,
		MethodID:       method.ID,
		Amount:         chargeAmount,
		Currency:       s.cfg.Payment.Currency,
		Description:    fmt.Sprintf("Winning bid: %s", l.Title),
		IdempotencyKey: IdempotencyKey(l.ID),
		Metadata: map[string]string{
			"listing_id": l.ID.String(),
			"bid_id":     winning.ID.String(),
		},
	})
	if err != nil {
		// Listing stays completed; the next run retries with the same key.
		var chargeErr *payment.ChargeError
		if errors.As(err, &chargeErr) {
			out.Error = chargeErr.Message
			out.IntentID = chargeErr.IntentID
		} else {
			out.Error = err.Error()
		}
		return out
	}
	out.Charged = true
	out.ChargeID = charge.ID

	// ── 4. Settle and record, exactly once ───────────────────────────────────
	settlement, err := domain.Settle(winning.Amount, domain.SettleOptions{
		FlatFee:      l.FlatFee,
		RateOverride: l.CommissionOverride,
	})
	if err != nil {
		out.Error = fmt.Sprintf("settle: %v", err)
		return out
	}

	txn := &domain.Transaction{
		ID:               uuid.New(),
		ListingID:        l.ID,
		SellerID:         l.SellerID,
		BuyerID:          winning.BidderID,
		SalePrice:        winning.Amount,
		CommissionRate:   settlement.CommissionRate,
		CommissionAmount: settlement.CommissionAmount,
		FlatFee:          settlement.FlatFee,
		SellerPayout:     settlement.SellerPayout,
		PaymentStatus:    domain.PaymentPaid,
		FulfilmentStatus: domain.FulfilmentPendingDispatch,
		ChargeID:         charge.ID,
		IdempotencyKey:   IdempotencyKey(l.ID),
		CreatedAt:        s.clock.Now(),
	}
	created, err := s.txns.Create(ctx, txn)
	if err != nil {
		out.Error = fmt.Sprintf("record transaction: %v", err)
		return out
	}
	if !created {
		// An earlier capture already settled this listing; the charge above
		// was an idempotent replay, not a second payment. MarkSold is still
		// attempted in case that earlier run failed between recording the
		// transaction and moving the listing.
		s.logger.Info("transaction already exists, capture is a replay", "listing", l.ID)
		s.markSold(ctx, l.ID, winning)
		return out
	}
	id := txn.ID
	out.TransactionID = &id

	s.markSold(ctx, l.ID, winning)

	go s.postSaleAsync(l, winning, settlement)

	return out
}

// markSold moves the listing out of completed. A failure here is logged, not
// returned: the transaction row already exists, so the next run's capture
// replays and tries again.
func (s *CaptureService) markSold(ctx context.Context, listingID uuid.UUID, winning *domain.Bid) {
	if ok, err := s.listings.MarkSold(ctx, listingID, winning.BidderID, winning.Amount); err != nil {
		s.logger.Error("mark sold failed after charge", "listing", listingID, "err", err)
	} else if !ok {
		s.logger.Info("listing already left completed state", "listing", listingID)
	}
}

// postSaleAsync notifies buyer, seller, and operator after a successful sale.
// Failures are logged, never propagated.
func (s *CaptureService) postSaleAsync(l *domain.Listing, winning *domain.Bid, settlement domain.Settlement) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.send(ctx, winning.BidderID, "You won the auction",
		fmt.Sprintf("You won %q for %s. Payment has been taken.", l.Title, winning.Amount))
	s.send(ctx, l.SellerID, "Your item sold",
		fmt.Sprintf("%q sold for %s. Your payout is %s.", l.Title, winning.Amount, settlement.SellerPayout))

	if op, err := uuid.Parse(s.cfg.Notify.OperatorID); err == nil {
		s.send(ctx, op, "Sale completed",
			fmt.Sprintf("Listing %s sold for %s (commission %s).", l.ID, winning.Amount, settlement.CommissionAmount))
	}
}

func (s *CaptureService) send(ctx context.Context, recipient uuid.UUID, subject, body string) {
	err := s.sink.Send(ctx, notify.Message{RecipientID: recipient, Subject: subject, Body: body})
	if err != nil {
		s.logger.Warn("notification failed", "recipient", recipient, "subject", subject, "err", err)
	}
}
