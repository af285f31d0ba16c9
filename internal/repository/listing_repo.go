// Package repository implements the document-store collaborator on
// PostgreSQL: get-by-id, conditional (versioned) updates, and bounded
// paginated range queries.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/saleyard/auctions/internal/domain"
	"github.com/shopspring/decimal"
)

// ListingRepository handles all database operations for Listings.
//
// Bid-state writes are guarded by the listing's version column: an UPDATE
// that matches zero rows lost the race and surfaces domain.ErrWriteConflict.
// Status transitions are conditional on the current persisted status, so
// overlapping scheduler runs simply skip rows another run already moved.
type ListingRepository struct {
	db *sqlx.DB
}

// NewListingRepository creates a new ListingRepository.
func NewListingRepository(db *sqlx.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// Create inserts a new listing row. Used by the seller-submission boundary
// and by tests; the core mutates listings it did not create.
func (r *ListingRepository) Create(ctx context.Context, l *domain.Listing) error {
	query := `
		INSERT INTO listings
			(id, seller_id, title, status, starting_price, reserve_price, buy_now_price,
			 current_bid, bid_count, highest_bidder_id, last_bid_time,
			 auction_start, auction_end, relist_until_sold,
			 commission_override, flat_fee, buyer_surcharge,
			 buyer_id, sold_price, version, created_at, updated_at)
		VALUES
			(:id, :seller_id, :title, :status, :starting_price, :reserve_price, :buy_now_price,
			 :current_bid, :bid_count, :highest_bidder_id, :last_bid_time,
			 :auction_start, :auction_end, :relist_until_sold,
			 :commission_override, :flat_fee, :buyer_surcharge,
			 :buyer_id, :sold_price, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, l); err != nil {
		return fmt.Errorf("listing_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches a listing by its primary key.
func (r *ListingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Listing, error) {
	var l domain.Listing
	err := r.db.GetContext(ctx, &l, `SELECT * FROM listings WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrListingNotFound
		}
		return nil, fmt.Errorf("listing_repo.GetByID: %w", err)
	}
	return &l, nil
}

// RecordBid atomically persists an accepted bid: the listing's cached
// bid-state fields are updated under a compare-and-swap on version, and the
// immutable bid row is appended in the same transaction. Returns
// domain.ErrWriteConflict when a concurrent bid won the version race; the
// caller re-reads and retries. The bid's store-assigned Seq is filled in on
// success.
func (r *ListingRepository) RecordBid(ctx context.Context, l *domain.Listing, b *domain.Bid) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("listing_repo.RecordBid: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE listings
		SET current_bid       = $1,
		    bid_count         = $2,
		    highest_bidder_id = $3,
		    last_bid_time     = $4,
		    auction_end       = $5,
		    version           = version + 1,
		    updated_at        = now()
		WHERE id = $6 AND status = 'live' AND version = $7`,
		l.CurrentBid, l.BidCount, l.HighestBidderID, l.LastBidTime, l.AuctionEnd,
		l.ID, l.Version)
	if err != nil {
		return fmt.Errorf("listing_repo.RecordBid: update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = domain.ErrWriteConflict
		return err
	}

	err = tx.GetContext(ctx, &b.Seq, `
		INSERT INTO bids (id, listing_id, bidder_id, amount, placed_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING seq`,
		b.ID, b.ListingID, b.BidderID, b.Amount, b.PlacedAt)
	if err != nil {
		return fmt.Errorf("listing_repo.RecordBid: append bid: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("listing_repo.RecordBid: commit: %w", err)
	}
	l.Version++
	return nil
}

// ListQueuedDue returns queued listings whose window has started, paginated.
// Listings with no auction_start are never returned (and never promoted).
func (r *ListingRepository) ListQueuedDue(ctx context.Context, now time.Time, limit, offset int) ([]*domain.Listing, error) {
	var listings []*domain.Listing
	err := r.db.SelectContext(ctx, &listings, `
		SELECT * FROM listings
		WHERE status = 'queued' AND auction_start IS NOT NULL AND auction_start <= $1
		ORDER BY auction_start ASC
		LIMIT $2 OFFSET $3`,
		now, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing_repo.ListQueuedDue: %w", err)
	}
	return listings, nil
}

// ListLiveEnded returns live listings whose window has ended, paginated.
func (r *ListingRepository) ListLiveEnded(ctx context.Context, now time.Time, limit, offset int) ([]*domain.Listing, error) {
	var listings []*domain.Listing
	err := r.db.SelectContext(ctx, &listings, `
		SELECT * FROM listings
		WHERE status = 'live' AND auction_end IS NOT NULL AND auction_end <= $1
		ORDER BY auction_end ASC
		LIMIT $2 OFFSET $3`,
		now, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing_repo.ListLiveEnded: %w", err)
	}
	return listings, nil
}

// ListCompleted returns listings in the completed state, paginated. These are
// awaiting winner capture; a listing only leaves this set when MarkSold runs.
func (r *ListingRepository) ListCompleted(ctx context.Context, limit, offset int) ([]*domain.Listing, error) {
	var listings []*domain.Listing
	err := r.db.SelectContext(ctx, &listings, `
		SELECT * FROM listings
		WHERE status = 'completed'
		ORDER BY auction_end ASC NULLS LAST, id
		LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing_repo.ListCompleted: %w", err)
	}
	return listings, nil
}

// Promote moves a queued listing to live. Returns false when another run got
// there first (or the listing left the queued state).
func (r *ListingRepository) Promote(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE listings
		SET status = 'live', version = version + 1, updated_at = now()
		WHERE id = $1 AND status = 'queued' AND auction_start IS NOT NULL`,
		id)
	if err != nil {
		return false, fmt.Errorf("listing_repo.Promote: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkCompleted moves a live listing to completed (qualifying bid at close).
func (r *ListingRepository) MarkCompleted(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.transition(ctx, "listing_repo.MarkCompleted", id, domain.StatusLive, domain.StatusCompleted)
}

// MarkNotSold moves a live listing to not_sold (terminal until manual relist).
func (r *ListingRepository) MarkNotSold(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.transition(ctx, "listing_repo.MarkNotSold", id, domain.StatusLive, domain.StatusNotSold)
}

func (r *ListingRepository) transition(ctx context.Context, op string, id uuid.UUID, from, to domain.ListingStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE listings
		SET status = $1, version = version + 1, updated_at = now()
		WHERE id = $2 AND status = $3`,
		to, id, from)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Requeue moves an unsold live listing back to queued in a future window,
// clearing every bid-state field.
func (r *ListingRepository) Requeue(ctx context.Context, id uuid.UUID, windowStart, windowEnd time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE listings
		SET status            = 'queued',
		    auction_start     = $1,
		    auction_end       = $2,
		    current_bid       = NULL,
		    bid_count         = 0,
		    highest_bidder_id = NULL,
		    last_bid_time     = NULL,
		    version           = version + 1,
		    updated_at        = now()
		WHERE id = $3 AND status = 'live'`,
		windowStart, windowEnd, id)
	if err != nil {
		return false, fmt.Errorf("listing_repo.Requeue: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkSold records the winner and sale price on a completed listing.
func (r *ListingRepository) MarkSold(ctx context.Context, id, buyerID uuid.UUID, salePrice decimal.Decimal) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE listings
		SET status     = 'sold',
		    buyer_id   = $1,
		    sold_price = $2,
		    version    = version + 1,
		    updated_at = now()
		WHERE id = $3 AND status = 'completed'`,
		buyerID, salePrice, id)
	if err != nil {
		return false, fmt.Errorf("listing_repo.MarkSold: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Approve moves a pending listing into the queue for the given window.
func (r *ListingRepository) Approve(ctx context.Context, id uuid.UUID, windowStart, windowEnd time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE listings
		SET status        = 'queued',
		    auction_start = $1,
		    auction_end   = $2,
		    version       = version + 1,
		    updated_at    = now()
		WHERE id = $3 AND status = 'pending_approval'`,
		windowStart, windowEnd, id)
	if err != nil {
		return fmt.Errorf("listing_repo.Approve: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrListingNotPending
	}
	return nil
}

// Reject marks a pending listing as rejected.
func (r *ListingRepository) Reject(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE listings
		SET status = 'rejected', version = version + 1, updated_at = now()
		WHERE id = $1 AND status = 'pending_approval'`,
		id)
	if err != nil {
		return fmt.Errorf("listing_repo.Reject: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrListingNotPending
	}
	return nil
}
