package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/saleyard/auctions/internal/domain"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Store interfaces — declared here, in the consumer package, so the services
// depend on behaviour rather than on the repository implementations and can
// be tested against in-memory fakes.
// ──────────────────────────────────────────────────────────────────────────────

// ListingStore is the slice of the document store the services need for
// listings. Implemented by repository.ListingRepository.
type ListingStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Listing, error)

	// RecordBid atomically applies the listing's mutated bid-state fields
	// (compare-and-swap on Version) and appends the immutable bid row.
	// Returns domain.ErrWriteConflict when a concurrent bid won the race.
	RecordBid(ctx context.Context, l *domain.Listing, b *domain.Bid) error

	ListQueuedDue(ctx context.Context, now time.Time, limit, offset int) ([]*domain.Listing, error)
	ListLiveEnded(ctx context.Context, now time.Time, limit, offset int) ([]*domain.Listing, error)

	// ListCompleted returns listings awaiting winner capture: closed with a
	// qualifying bid but not yet sold. Scanned every run so a failed capture
	// is retried.
	ListCompleted(ctx context.Context, limit, offset int) ([]*domain.Listing, error)

	// Transitions are conditional on the listing's current persisted status;
	// false means another run already moved the row and it should be skipped.
	Promote(ctx context.Context, id uuid.UUID) (bool, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) (bool, error)
	MarkNotSold(ctx context.Context, id uuid.UUID) (bool, error)
	Requeue(ctx context.Context, id uuid.UUID, windowStart, windowEnd time.Time) (bool, error)
	MarkSold(ctx context.Context, id, buyerID uuid.UUID, salePrice decimal.Decimal) (bool, error)
}

// BidStore reads the append-only bid history.
type BidStore interface {
	ListByListing(ctx context.Context, listingID uuid.UUID) ([]*domain.Bid, error)
}

// TransactionStore creates settlement records exactly once per listing.
type TransactionStore interface {
	Create(ctx context.Context, t *domain.Transaction) (created bool, err error)
}
