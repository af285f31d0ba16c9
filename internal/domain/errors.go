package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors — compare with errors.Is()
// ──────────────────────────────────────────────────────────────────────────────

// Listing errors
var (
	// ErrListingNotFound is returned when no listing matches the given id.
	ErrListingNotFound = errors.New("listing not found")

	// ErrListingNotLive is returned when a bid is attempted on a listing that
	// is not in StatusLive.
	ErrListingNotLive = errors.New("listing is not open for bidding")

	// ErrAuctionEnded is returned when a bid arrives after the listing's
	// auction window has closed.
	ErrAuctionEnded = errors.New("auction has already ended")

	// ErrListingNotPending is returned when an approve/reject action targets a
	// listing that is no longer awaiting review.
	ErrListingNotPending = errors.New("listing is not awaiting review")
)

// Bid errors
var (
	// ErrInvalidAmount is returned when a bid amount is not a positive whole
	// number of currency units.
	ErrInvalidAmount = errors.New("bid amount must be a positive whole number")

	// ErrBidTooLow is the target for BidTooLowError; compare with errors.Is.
	ErrBidTooLow = errors.New("bid is below the minimum for this listing")

	// ErrPaymentMethodRequired is returned when the bidder has no verified
	// payment method on file with the payment processor. Distinct from a
	// validation failure so callers can redirect to remediation.
	ErrPaymentMethodRequired = errors.New("a verified payment method is required to bid")
)

// Settlement errors
var (
	// ErrInvalidSalePrice is returned by Settle for negative or non-integer
	// sale prices (and negative flat fees).
	ErrInvalidSalePrice = errors.New("sale price must be a non-negative whole number")

	// ErrAlreadySettled is returned when a transaction already exists for a
	// listing that is being captured again.
	ErrAlreadySettled = errors.New("listing has already been settled")

	// ErrTransactionNotFound is returned when no settlement record exists for
	// the listing.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Infrastructure errors
var (
	// ErrWriteConflict is returned when a conditional store write lost a race
	// with a concurrent writer. Safe to retry a bounded number of times.
	ErrWriteConflict = errors.New("write conflict: listing was modified concurrently")

	// ErrRunSecretInvalid is returned when a scheduler run is triggered
	// without the shared secret.
	ErrRunSecretInvalid = errors.New("scheduler run secret missing or invalid")

	// ErrUnauthorized is returned when a valid bearer token is not present.
	ErrUnauthorized = errors.New("unauthorized")
)

// ──────────────────────────────────────────────────────────────────────────────
// BidTooLowError — carries the corrective minimum for the caller's UI
// ──────────────────────────────────────────────────────────────────────────────

// BidTooLowError reports a bid below the tier-appropriate minimum along with
// the lowest acceptable amount.
type BidTooLowError struct {
	Minimum decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid is below the minimum: next bid must be at least %s", e.Minimum)
}

// Is lets errors.Is(err, ErrBidTooLow) match a BidTooLowError.
func (e *BidTooLowError) Is(target error) bool {
	return target == ErrBidTooLow
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates
// ──────────────────────────────────────────────────────────────────────────────

// notFoundErrors collects the "entity not found" sentinels so IsNotFound
// stays in sync automatically.
var notFoundErrors = []error{
	ErrListingNotFound,
	ErrTransactionNotFound,
}

// IsNotFound returns true when err (or any error in its chain) is an "entity
// not found" error. Use this to translate domain errors to HTTP 404 responses.
func IsNotFound(err error) bool {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsValidation returns true for caller errors that should never be logged as
// system faults.
func IsValidation(err error) bool {
	validationErrors := []error{
		ErrInvalidAmount,
		ErrBidTooLow,
		ErrInvalidSalePrice,
		ErrListingNotLive,
		ErrAuctionEnded,
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict returns true for errors that represent a state conflict.
func IsConflict(err error) bool {
	conflictErrors := []error{
		ErrListingNotLive,
		ErrListingNotPending,
		ErrAlreadySettled,
		ErrWriteConflict,
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsTransient returns true for infrastructure errors worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrWriteConflict)
}
