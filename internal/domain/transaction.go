package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus tracks whether the winner's charge has been collected.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// FulfilmentStatus tracks the dispatch/receipt lifecycle after a sale.
// Updated by flows outside this core; created as pending_dispatch.
type FulfilmentStatus string

const (
	FulfilmentPendingDispatch FulfilmentStatus = "pending_dispatch"
	FulfilmentDispatched      FulfilmentStatus = "dispatched"
	FulfilmentReceived        FulfilmentStatus = "received"
)

// Transaction records the fee-split outcome of a sale. Created exactly once
// per listing (the store enforces a unique listing id) by winner capture.
type Transaction struct {
	ID        uuid.UUID `json:"id"         db:"id"`
	ListingID uuid.UUID `json:"listing_id" db:"listing_id"`
	SellerID  uuid.UUID `json:"seller_id"  db:"seller_id"`
	BuyerID   uuid.UUID `json:"buyer_id"   db:"buyer_id"`

	SalePrice        decimal.Decimal `json:"sale_price"        db:"sale_price"`
	CommissionRate   decimal.Decimal `json:"commission_rate"   db:"commission_rate"`
	CommissionAmount decimal.Decimal `json:"commission_amount" db:"commission_amount"`
	FlatFee          decimal.Decimal `json:"flat_fee"          db:"flat_fee"`
	SellerPayout     decimal.Decimal `json:"seller_payout"     db:"seller_payout"`

	PaymentStatus    PaymentStatus    `json:"payment_status"    db:"payment_status"`
	FulfilmentStatus FulfilmentStatus `json:"fulfilment_status" db:"fulfilment_status"`

	// ChargeID is the payment processor's identifier for the captured charge;
	// IdempotencyKey is the listing-scoped key the charge was created under.
	ChargeID       string `json:"charge_id"       db:"charge_id"`
	IdempotencyKey string `json:"idempotency_key" db:"idempotency_key"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
