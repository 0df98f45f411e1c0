package coupon

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Discount computes the effective discount for the given order amount:
// min(percentage x amount, max_discount), never negative, rounded to 2
// decimal places. Pure, no side effects.
//
// Inactive coupons yield ErrNotFound; an order amount below the coupon's
// minimum yields *MinimumAmountError carrying the threshold.
func (c *Coupon) Discount(orderAmount decimal.Decimal) (decimal.Decimal, error) {
	if !c.IsActive {
		return decimal.Zero, ErrNotFound
	}
	if orderAmount.LessThan(c.MinimumOrderAmount) {
		return decimal.Zero, &MinimumAmountError{Minimum: c.MinimumOrderAmount}
	}

	amount := orderAmount.Mul(c.DiscountPercentage).Div(hundred)
	amount = decimal.Min(amount, c.MaxDiscount)
	// Percentage and amount are both validated non-negative at the storage
	// layer, but a zero max_discount must still floor the result.
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2), nil
}
