package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bid is an immutable record of one accepted bid. Rows are append-only:
// never mutated or deleted. Seq is assigned by the store in insertion order
// and is the authoritative ordering for winner derivation — client-supplied
// timestamps are informational only (clock skew can disagree with Seq).
type Bid struct {
	ID        uuid.UUID       `json:"id"         db:"id"`
	ListingID uuid.UUID       `json:"listing_id" db:"listing_id"`
	BidderID  uuid.UUID       `json:"bidder_id"  db:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"     db:"amount"`
	PlacedAt  time.Time       `json:"placed_at"  db:"placed_at"`
	Seq       int64           `json:"seq"        db:"seq"`
}

// PlaceBidRequest carries the validated inputs for placing a bid.
type PlaceBidRequest struct {
	ListingID uuid.UUID
	BidderID  uuid.UUID
	Amount    decimal.Decimal
}

// BidResult is returned to the caller after a successful admission.
type BidResult struct {
	Listing  *Listing `json:"listing"`
	Bid      *Bid     `json:"bid"`
	Extended bool     `json:"extended"` // soft close moved auction_end
}
