package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/saleyard/auctions/internal/domain"
)

// TransactionRepository persists settlement records. A unique index on
// listing_id makes creation structurally exactly-once: the second writer for
// the same listing observes created=false instead of inserting a duplicate.
type TransactionRepository struct {
	db *sqlx.DB
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts the transaction unless one already exists for the listing.
// Returns created=false (and no error) when a prior capture won the race.
func (r *TransactionRepository) Create(ctx context.Context, t *domain.Transaction) (bool, error) {
	res, err := r.db.NamedExecContext(ctx, `
		INSERT INTO transactions
			(id, listing_id, seller_id, buyer_id,
			 sale_price, commission_rate, commission_amount, flat_fee, seller_payout,
			 payment_status, fulfilment_status, charge_id, idempotency_key, created_at)
		VALUES
			(:id, :listing_id, :seller_id, :buyer_id,
			 :sale_price, :commission_rate, :commission_amount, :flat_fee, :seller_payout,
			 :payment_status, :fulfilment_status, :charge_id, :idempotency_key, :created_at)
		ON CONFLICT (listing_id) DO NOTHING`,
		t)
	if err != nil {
		return false, fmt.Errorf("transaction_repo.Create: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetByListing fetches the settlement record for a listing, if any.
func (r *TransactionRepository) GetByListing(ctx context.Context, listingID uuid.UUID) (*domain.Transaction, error) {
	var t domain.Transaction
	err := r.db.GetContext(ctx, &t, `SELECT * FROM transactions WHERE listing_id = $1`, listingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("transaction_repo.GetByListing: %w", err)
	}
	return &t, nil
}
