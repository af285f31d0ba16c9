// Package domain defines the core business entities and types for the
// saleyard weekly auction system.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// ListingStatus represents the lifecycle state of a listing.
type ListingStatus string

const (
	StatusPendingApproval ListingStatus = "pending_approval" // submitted, awaiting review
	StatusQueued          ListingStatus = "queued"           // approved, waiting for its auction window
	StatusLive            ListingStatus = "live"             // accepting bids
	StatusCompleted       ListingStatus = "completed"        // window closed with a qualifying bid; awaiting capture
	StatusNotSold         ListingStatus = "not_sold"         // window closed without a qualifying bid
	StatusSold            ListingStatus = "sold"             // winner charged, transaction recorded
	StatusRejected        ListingStatus = "rejected"         // failed review
)

// IsValid returns true if the status is one of the recognised states.
func (s ListingStatus) IsValid() bool {
	switch s {
	case StatusPendingApproval, StatusQueued, StatusLive,
		StatusCompleted, StatusNotSold, StatusSold, StatusRejected:
		return true
	}
	return false
}

// SoftCloseWindow is the trailing band in which an accepted bid re-extends the
// auction end time, and the length of that extension.
const SoftCloseWindow = 5 * time.Minute

// ──────────────────────────────────────────────────────────────────────────────
// Minimum increment schedule
// ──────────────────────────────────────────────────────────────────────────────

// incrementTier maps an upper bound (exclusive) on the current base price to
// the minimum bid increment that applies below it.
type incrementTier struct {
	below     int64
	increment int64
}

// incrementSchedule is ordered ascending; the final tier applies to any base
// at or above the last bound.
var incrementSchedule = []incrementTier{
	{below: 100, increment: 5},
	{below: 500, increment: 10},
	{below: 1_000, increment: 25},
	{below: 5_000, increment: 50},
	{below: 10_000, increment: 100},
	{below: 25_000, increment: 250},
	{below: 50_000, increment: 500},
}

// topIncrement applies at or above the last scheduled bound.
var topIncrement = decimal.NewFromInt(1_000)

// MinIncrement returns the minimum bid increment for a given base price.
func MinIncrement(base decimal.Decimal) decimal.Decimal {
	for _, tier := range incrementSchedule {
		if base.LessThan(decimal.NewFromInt(tier.below)) {
			return decimal.NewFromInt(tier.increment)
		}
	}
	return topIncrement
}

// ──────────────────────────────────────────────────────────────────────────────
// Listing
// ──────────────────────────────────────────────────────────────────────────────

// Listing represents one item for sale in a weekly auction window.
//
// The bid-state fields (CurrentBid, BidCount, HighestBidderID, LastBidTime,
// AuctionEnd) are a derived cache of the latest accepted Bid, kept in sync by
// the bid admission service under the Version guard. Version is bumped on
// every bid-state write so concurrent writers serialise via compare-and-swap.
type Listing struct {
	ID       uuid.UUID `json:"id"        db:"id"`
	SellerID uuid.UUID `json:"seller_id" db:"seller_id"`
	Title    string    `json:"title"     db:"title"`

	Status ListingStatus `json:"status" db:"status"`

	StartingPrice decimal.Decimal  `json:"starting_price" db:"starting_price"`
	ReservePrice  decimal.Decimal  `json:"reserve_price"  db:"reserve_price"` // 0 = no reserve
	BuyNowPrice   *decimal.Decimal `json:"buy_now_price"  db:"buy_now_price"`

	CurrentBid      *decimal.Decimal `json:"current_bid"       db:"current_bid"`
	BidCount        int              `json:"bid_count"         db:"bid_count"`
	HighestBidderID *uuid.UUID       `json:"highest_bidder_id" db:"highest_bidder_id"`
	LastBidTime     *time.Time       `json:"last_bid_time"     db:"last_bid_time"`

	AuctionStart *time.Time `json:"auction_start" db:"auction_start"`
	AuctionEnd   *time.Time `json:"auction_end"   db:"auction_end"` // mutable: soft close extends it

	RelistUntilSold bool `json:"relist_until_sold" db:"relist_until_sold"`

	// Per-listing fee overrides. CommissionOverride replaces the tiered rate
	// entirely when set; FlatFee is deducted from the seller payout;
	// BuyerSurcharge is added to the winner's charge.
	CommissionOverride *decimal.Decimal `json:"commission_override" db:"commission_override"`
	FlatFee            decimal.Decimal  `json:"flat_fee"            db:"flat_fee"`
	BuyerSurcharge     decimal.Decimal  `json:"buyer_surcharge"     db:"buyer_surcharge"`

	BuyerID   *uuid.UUID       `json:"buyer_id"   db:"buyer_id"`
	SoldPrice *decimal.Decimal `json:"sold_price" db:"sold_price"`

	Version   int64     `json:"-"          db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsLive returns true while the listing is in the bidding state.
func (l *Listing) IsLive() bool {
	return l.Status == StatusLive
}

// CanAcceptBids returns true when the listing is live and its window is still
// open at the given instant. The end is strictly exclusive.
func (l *Listing) CanAcceptBids(now time.Time) bool {
	if !l.IsLive() || l.AuctionEnd == nil {
		return false
	}
	if l.AuctionStart != nil && now.Before(*l.AuctionStart) {
		return false
	}
	return now.Before(*l.AuctionEnd)
}

// BidBase returns the price a new bid is measured against: the current bid
// when one exists, otherwise the starting price.
func (l *Listing) BidBase() decimal.Decimal {
	if l.CurrentBid != nil {
		return *l.CurrentBid
	}
	return l.StartingPrice
}

// NextMinimumBid returns the lowest amount the next bid may carry.
func (l *Listing) NextMinimumBid() decimal.Decimal {
	base := l.BidBase()
	return base.Add(MinIncrement(base))
}

// HasBid returns true when at least one bid has been accepted.
func (l *Listing) HasBid() bool {
	return l.CurrentBid != nil && l.CurrentBid.IsPositive()
}

// ReserveMet reports whether the current bid satisfies the reserve price.
// A reserve of zero (or below) means any bid qualifies.
func (l *Listing) ReserveMet() bool {
	if !l.HasBid() {
		return false
	}
	if !l.ReservePrice.IsPositive() {
		return true
	}
	return l.CurrentBid.GreaterThanOrEqual(l.ReservePrice)
}

// ApplyBid mutates the cached bid-state fields for an accepted bid and
// returns true when the soft-close rule extended the auction end time.
// The caller persists the mutation with a compare-and-swap on Version.
func (l *Listing) ApplyBid(bidderID uuid.UUID, amount decimal.Decimal, now time.Time) bool {
	amt := amount
	l.CurrentBid = &amt
	l.BidCount++
	bidder := bidderID
	l.HighestBidderID = &bidder
	ts := now
	l.LastBidTime = &ts

	if l.AuctionEnd != nil && l.AuctionEnd.Sub(now) <= SoftCloseWindow {
		extended := now.Add(SoftCloseWindow)
		l.AuctionEnd = &extended
		return true
	}
	return false
}

// ResetBidState clears every bid-derived field. Used when an unsold listing
// is requeued into a future window.
func (l *Listing) ResetBidState() {
	l.CurrentBid = nil
	l.BidCount = 0
	l.HighestBidderID = nil
	l.LastBidTime = nil
}
