// Package coupon implements coupon rules: discount arithmetic, per-user
// eligibility, and the usage log consulted during checkout.
package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// UsageLimit enumerates how often a single user may redeem a coupon.
type UsageLimit string

const (
	// UsageOneTime permits exactly one redemption per user, ever.
	UsageOneTime UsageLimit = "one_time"
	// UsageOnePerDay permits one redemption per user per rolling 24 hours.
	UsageOnePerDay UsageLimit = "one_per_day"
)

var (
	// ErrNotFound is returned when a coupon code does not exist or is inactive.
	// Unknown and inactive codes are indistinguishable to callers.
	ErrNotFound = errors.New("coupon not found or inactive")
	// ErrAlreadyUsed is returned when a one_time coupon was redeemed before
	// by the same user, regardless of how long ago.
	ErrAlreadyUsed = errors.New("coupon already used")
	// ErrCodeExists is returned when creating a coupon with a duplicate code.
	ErrCodeExists = errors.New("coupon code already exists")
)

// MinimumAmountError rejects a coupon applied to an order below its
// minimum order amount. The threshold is carried for UI messaging.
type MinimumAmountError struct {
	Minimum decimal.Decimal
}

func (e *MinimumAmountError) Error() string {
	return fmt.Sprintf("minimum order amount is %s", e.Minimum.StringFixed(2))
}

// RateLimitedError rejects a one_per_day coupon redeemed within the last
// 24 hours by the same user.
type RateLimitedError struct {
	NextEligibleAt time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("coupon can be used once in 24 hours, next eligible at %s", e.NextEligibleAt.UTC().Format(time.RFC3339))
}

// Coupon is an admin-created discount rule.
type Coupon struct {
	ID                 int64
	Code               string
	DiscountPercentage decimal.Decimal
	MaxDiscount        decimal.Decimal
	UsageLimit         UsageLimit
	MinimumOrderAmount decimal.Decimal
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Usage is one redemption event. Rows are append-only: they are never
// updated or deleted by any checkout path.
type Usage struct {
	ID       int64
	UserID   int64
	CouponID int64
	Limit    UsageLimit
	UsedAt   time.Time
}

// Repository provides coupon lookup and administration.
type Repository interface {
	// FindByCode returns the active coupon with the given code, or
	// ErrNotFound. Matching is case-insensitive.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// Create inserts a new coupon; ErrCodeExists on duplicate code.
	Create(ctx context.Context, c *Coupon) error
	// List returns every coupon, active or not.
	List(ctx context.Context) ([]Coupon, error)
}

// UsageLog reads the redemption history consulted by eligibility checks.
// Recording happens inside the order placement transaction, not here.
type UsageLog interface {
	// LastUsage returns the most recent redemption of the coupon by the
	// user, or nil when the user never redeemed it.
	LastUsage(ctx context.Context, userID, couponID int64) (*Usage, error)
}
