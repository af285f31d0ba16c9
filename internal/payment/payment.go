// Package payment defines the external payment processor collaborator and a
// Stripe-backed implementation. The core only depends on the Processor
// interface; tests substitute an in-memory fake.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNoPaymentMethod is returned when the customer has no verified payment
// method on file. Distinct so callers can route the user to remediation
// instead of reporting a generic failure.
var ErrNoPaymentMethod = errors.New("no payment method on file")

// Customer is the processor-side record for a platform user.
type Customer struct {
	ID string `json:"id"`
}

// Method is a stored payment method attached to a customer.
type Method struct {
	ID    string `json:"id"`
	Brand string `json:"brand"`
	Last4 string `json:"last4"`
}

// ChargeRequest describes a create-and-confirm charge. The idempotency key
// makes a retried request have effect at most once: the processor replays
// the original outcome rather than charging again.
type ChargeRequest struct {
	CustomerID     string
	MethodID       string
	Amount         decimal.Decimal // whole currency units
	Currency       string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

// Charge is the processor's view of a captured payment.
type Charge struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ChargeError carries the processor's failure detail, including the partial
// intent id needed for manual reconciliation. A charge that errors after the
// request was sent may still have happened; the caller must retry with the
// same idempotency key to learn the outcome, never assume "did not happen".
type ChargeError struct {
	Code     string
	Message  string
	IntentID string
}

func (e *ChargeError) Error() string {
	if e.IntentID != "" {
		return fmt.Sprintf("charge failed (%s): %s [intent %s]", e.Code, e.Message, e.IntentID)
	}
	return fmt.Sprintf("charge failed (%s): %s", e.Code, e.Message)
}

// Processor is the payment collaborator consumed by the core.
type Processor interface {
	// FindOrCreateCustomer resolves the processor customer for a platform
	// user, creating one on first use.
	FindOrCreateCustomer(ctx context.Context, userID uuid.UUID) (*Customer, error)

	// DefaultMethod returns the customer's verified payment method, or
	// ErrNoPaymentMethod when none is on file.
	DefaultMethod(ctx context.Context, customerID string) (*Method, error)

	// CreateCharge creates and confirms a charge. Safe to retry with the
	// same idempotency key.
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
}
