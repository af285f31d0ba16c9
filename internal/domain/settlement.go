package domain

import (
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Settlement calculator
// ──────────────────────────────────────────────────────────────────────────────

// commissionTier maps an inclusive upper bound on the sale price to the
// commission percentage that applies at or below it.
type commissionTier struct {
	upTo int64
	rate int64 // percent
}

// commissionSchedule is ordered ascending; the final tier applies above the
// last bound.
var commissionSchedule = []commissionTier{
	{upTo: 4_999, rate: 10},
	{upTo: 9_999, rate: 8},
	{upTo: 24_999, rate: 7},
	{upTo: 49_999, rate: 6},
}

// topCommissionRate applies above the last scheduled bound.
var topCommissionRate = decimal.NewFromInt(5)

// CommissionRateFor returns the default tiered commission percentage for a
// sale price.
func CommissionRateFor(salePrice decimal.Decimal) decimal.Decimal {
	for _, tier := range commissionSchedule {
		if salePrice.LessThanOrEqual(decimal.NewFromInt(tier.upTo)) {
			return decimal.NewFromInt(tier.rate)
		}
	}
	return topCommissionRate
}

// SettleOptions carries per-listing overrides for the fee split.
type SettleOptions struct {
	// FlatFee is deducted from the seller payout after commission. Zero value
	// means no flat fee.
	FlatFee decimal.Decimal

	// RateOverride, when set, replaces the tiered commission rate entirely
	// (percentage, e.g. 7.5).
	RateOverride *decimal.Decimal
}

// Settlement is the fee split for one sale.
type Settlement struct {
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	FlatFee          decimal.Decimal `json:"flat_fee"`
	SellerPayout     decimal.Decimal `json:"seller_payout"`
}

// Settle turns a sale price into commission, fees, and seller payout.
// Pure function of its inputs.
//
// salePrice must be a non-negative whole number of currency units; anything
// else is a caller error, never silently rounded. The payout floor is zero:
// fees never drive the seller payout negative.
func Settle(salePrice decimal.Decimal, opts SettleOptions) (Settlement, error) {
	if salePrice.IsNegative() || !salePrice.IsInteger() {
		return Settlement{}, ErrInvalidSalePrice
	}
	if opts.FlatFee.IsNegative() {
		return Settlement{}, ErrInvalidSalePrice
	}

	rate := CommissionRateFor(salePrice)
	if opts.RateOverride != nil {
		rate = *opts.RateOverride
	}

	hundred := decimal.NewFromInt(100)
	commission := salePrice.Mul(rate).Div(hundred).Round(0)

	payout := salePrice.Sub(commission).Sub(opts.FlatFee)
	if payout.IsNegative() {
		payout = decimal.Zero
	}

	return Settlement{
		CommissionRate:   rate,
		CommissionAmount: commission,
		FlatFee:          opts.FlatFee,
		SellerPayout:     payout,
	}, nil
}
