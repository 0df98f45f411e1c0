package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/go-faster/errors"

	"github.com/giftible/marketplace/internal/domain/coupon"
)

const (
	findCouponByCodeSQL = `SELECT id, code, discount_percentage, max_discount, usage_limit,
			minimum_order_amount, is_active, created_at, updated_at
		FROM coupons WHERE UPPER(code) = UPPER($1) AND is_active = TRUE`

	createCouponSQL = `INSERT INTO coupons
			(code, discount_percentage, max_discount, usage_limit, minimum_order_amount, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	listCouponsSQL = `SELECT id, code, discount_percentage, max_discount, usage_limit,
			minimum_order_amount, is_active, created_at, updated_at
		FROM coupons ORDER BY created_at DESC`

	lastCouponUsageSQL = `SELECT id, user_id, coupon_id, usage_limit, used_at
		FROM coupon_usages
		WHERE user_id = $1 AND coupon_id = $2
		ORDER BY used_at DESC
		LIMIT 1`
)

var (
	_ coupon.Repository = (*CouponRepository)(nil)
	_ coupon.UsageLog   = (*CouponRepository)(nil)
)

// CouponRepository implements coupon.Repository and coupon.UsageLog
// backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up an active coupon by its code (case-insensitive).
// Returns coupon.ErrNotFound for unknown or inactive codes alike.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := from(ctx, r.pool).Query(ctx, findCouponByCodeSQL, code)
	if err != nil {
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}
	return &c, nil
}

// Create inserts a new coupon; coupon.ErrCodeExists on duplicate code.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	err := from(ctx, r.pool).QueryRow(ctx, createCouponSQL,
		c.Code, c.DiscountPercentage, c.MaxDiscount, string(c.UsageLimit),
		c.MinimumOrderAmount, c.IsActive,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return coupon.ErrCodeExists
		}
		return errors.Wrapf(err, "create coupon %q", c.Code)
	}
	return nil
}

// List returns every coupon, newest first.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := from(ctx, r.pool).Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// LastUsage returns the user's most recent redemption of the coupon, or
// nil when there is none.
func (r *CouponRepository) LastUsage(ctx context.Context, userID, couponID int64) (*coupon.Usage, error) {
	var (
		u     coupon.Usage
		limit string
	)
	err := from(ctx, r.pool).QueryRow(ctx, lastCouponUsageSQL, userID, couponID).
		Scan(&u.ID, &u.UserID, &u.CouponID, &limit, &u.UsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "find last coupon usage")
	}
	u.Limit = coupon.UsageLimit(limit)
	return &u, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c     coupon.Coupon
		limit string
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.DiscountPercentage, &c.MaxDiscount, &limit,
		&c.MinimumOrderAmount, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	c.UsageLimit = coupon.UsageLimit(limit)
	return c, err
}
