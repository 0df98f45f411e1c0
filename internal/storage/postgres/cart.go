package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/go-faster/errors"

	"github.com/giftible/marketplace/internal/domain/cart"
)

// Cart lines join the live product so prices are current at read time.
// The LEFT JOIN keeps lines whose product vanished or was delisted; they
// come back with Available=false so checkout can abort on them.
const cartItemsSQL = `SELECT
		ci.product_id,
		COALESCE(p.name, ''),
		COALESCE(p.ngo_id, 0),
		COALESCE(p.price, 0),
		ci.quantity,
		COALESCE(p.is_live, FALSE)
	FROM cart_items ci
	JOIN carts c ON c.id = ci.cart_id
	LEFT JOIN products p ON p.id = ci.product_id
	WHERE c.user_id = $1
	ORDER BY ci.id`

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Items returns the user's cart lines with live product data joined in.
func (r *CartRepository) Items(ctx context.Context, userID int64) ([]cart.Line, error) {
	rows, err := from(ctx, r.pool).Query(ctx, cartItemsSQL, userID)
	if err != nil {
		return nil, errors.Wrap(err, "query cart items")
	}
	return pgx.CollectRows(rows, scanCartLine)
}

func scanCartLine(row pgx.CollectableRow) (cart.Line, error) {
	var (
		l     cart.Line
		price decimal.Decimal
	)
	err := row.Scan(&l.ProductID, &l.ProductName, &l.NGOID, &price, &l.Quantity, &l.Available)
	l.UnitPrice = price
	return l, err
}
