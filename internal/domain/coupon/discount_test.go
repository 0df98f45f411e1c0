package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testCoupon(percentage, maxDiscount, minimum string) *Coupon {
	return &Coupon{
		ID:                 1,
		Code:               "SAVE20",
		DiscountPercentage: dec(percentage),
		MaxDiscount:        dec(maxDiscount),
		UsageLimit:         UsageOneTime,
		MinimumOrderAmount: dec(minimum),
		IsActive:           true,
	}
}

func TestDiscount(t *testing.T) {
	tests := []struct {
		name   string
		coupon *Coupon
		amount string
		want   string
	}{
		{
			name:   "percentage below cap",
			coupon: testCoupon("20", "200.00", "0"),
			amount: "500.00",
			want:   "100.00",
		},
		{
			name:   "capped at max discount",
			coupon: testCoupon("20", "200.00", "0"),
			amount: "5000.00",
			want:   "200.00",
		},
		{
			name:   "exactly at cap boundary",
			coupon: testCoupon("20", "200.00", "0"),
			amount: "1000.00",
			want:   "200.00",
		},
		{
			name:   "zero percentage",
			coupon: testCoupon("0", "200.00", "0"),
			amount: "500.00",
			want:   "0.00",
		},
		{
			name:   "zero max discount floors the result",
			coupon: testCoupon("20", "0", "0"),
			amount: "500.00",
			want:   "0.00",
		},
		{
			name:   "rounds to two decimal places",
			coupon: testCoupon("15", "500.00", "0"),
			amount: "99.99",
			want:   "15.00", // 14.9985 rounds up
		},
		{
			name:   "minimum amount met exactly",
			coupon: testCoupon("20", "200.00", "500.00"),
			amount: "500.00",
			want:   "100.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.coupon.Discount(dec(tt.amount))
			require.NoError(t, err)
			assert.True(t, dec(tt.want).Equal(got), "got %s, want %s", got, tt.want)
		})
	}
}

func TestDiscount_Inactive(t *testing.T) {
	c := testCoupon("20", "200.00", "0")
	c.IsActive = false

	_, err := c.Discount(dec("500.00"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDiscount_BelowMinimum(t *testing.T) {
	c := testCoupon("20", "200.00", "500.00")

	_, err := c.Discount(dec("499.99"))

	var minErr *MinimumAmountError
	require.ErrorAs(t, err, &minErr)
	assert.True(t, dec("500.00").Equal(minErr.Minimum))
	assert.Equal(t, "minimum order amount is 500.00", minErr.Error())
}

func TestDiscount_NeverNegative(t *testing.T) {
	// A corrupt negative max_discount must not turn the discount into a
	// surcharge.
	c := testCoupon("20", "-50.00", "0")

	got, err := c.Discount(dec("500.00"))
	require.NoError(t, err)
	assert.True(t, got.IsZero(), "got %s, want 0", got)
}
