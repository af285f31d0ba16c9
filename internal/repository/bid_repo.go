package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/saleyard/auctions/internal/domain"
)

// BidRepository reads the append-only bid history. Bids are written only by
// ListingRepository.RecordBid, inside the same transaction as the listing's
// cached bid-state update; nothing ever mutates or deletes a bid row.
type BidRepository struct {
	db *sqlx.DB
}

// NewBidRepository creates a new BidRepository.
func NewBidRepository(db *sqlx.DB) *BidRepository {
	return &BidRepository{db: db}
}

// ListByListing returns a listing's full bid history in store-assigned order.
// Seq, not the client-visible timestamp, is the authoritative ordering: the
// last row is the bid that produced the listing's final current_bid.
func (r *BidRepository) ListByListing(ctx context.Context, listingID uuid.UUID) ([]*domain.Bid, error) {
	var bids []*domain.Bid
	err := r.db.SelectContext(ctx, &bids,
		`SELECT * FROM bids WHERE listing_id = $1 ORDER BY seq ASC`,
		listingID)
	if err != nil {
		return nil, fmt.Errorf("bid_repo.ListByListing: %w", err)
	}
	return bids, nil
}

// ListByListingPage returns a page of a listing's bid history, newest first.
// Serves the public bid-history endpoint; winner derivation uses the full
// ordered history from ListByListing instead.
func (r *BidRepository) ListByListingPage(ctx context.Context, listingID uuid.UUID, limit, offset int) ([]*domain.Bid, error) {
	var bids []*domain.Bid
	err := r.db.SelectContext(ctx, &bids,
		`SELECT * FROM bids WHERE listing_id = $1 ORDER BY seq DESC LIMIT $2 OFFSET $3`,
		listingID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("bid_repo.ListByListingPage: %w", err)
	}
	return bids, nil
}

// ListByBidder returns a bidder's history across listings, paginated.
func (r *BidRepository) ListByBidder(ctx context.Context, bidderID uuid.UUID, limit, offset int) ([]*domain.Bid, error) {
	var bids []*domain.Bid
	err := r.db.SelectContext(ctx, &bids,
		`SELECT * FROM bids WHERE bidder_id = $1 ORDER BY seq DESC LIMIT $2 OFFSET $3`,
		bidderID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("bid_repo.ListByBidder: %w", err)
	}
	return bids, nil
}
