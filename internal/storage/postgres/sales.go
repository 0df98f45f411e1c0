package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/go-faster/errors"

	"github.com/giftible/marketplace/internal/domain/finance"
)

// All sales aggregates consider only items whose parent order carries a
// verified payment. Scope parameters use 0 as "no filter".
const (
	grossSalesSQL = `SELECT COALESCE(SUM(oi.price * oi.quantity), 0)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.payment_id IS NOT NULL
		  AND ($1 = 0 OR oi.ngo_id = $1)
		  AND ($2 = 0 OR oi.product_id = $2)`

	cancelledSalesSQL = `SELECT COALESCE(SUM(oi.price * oi.quantity), 0)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.payment_id IS NOT NULL
		  AND oi.status = 'Cancelled'
		  AND ($1 = 0 OR oi.ngo_id = $1)
		  AND ($2 = 0 OR oi.product_id = $2)`

	monthlySalesSQL = `SELECT date_trunc('month', o.created_at) AS month,
			COALESCE(SUM(oi.price * oi.quantity) FILTER (WHERE oi.status <> 'Cancelled'), 0) AS sales
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.payment_id IS NOT NULL
		  AND o.created_at >= date_trunc('month', now()) - make_interval(months => $2 - 1)
		  AND ($1 = 0 OR oi.ngo_id = $1)
		GROUP BY 1
		ORDER BY 1`

	productSalesInRangeSQL = `SELECT p.id, p.name, COALESCE(u.ngo_name, ''),
			COALESCE(SUM(oi.price * oi.quantity), 0) AS total
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		JOIN products p ON p.id = oi.product_id
		JOIN users u ON u.id = oi.ngo_id
		WHERE o.payment_id IS NOT NULL
		  AND oi.status <> 'Cancelled'
		  AND o.created_at >= $1 AND o.created_at <= $2
		  AND ($3 = 0 OR oi.ngo_id = $3)
		GROUP BY p.id, p.name, u.ngo_name
		ORDER BY total DESC
		LIMIT $4 OFFSET $5`

	findNGOSQL = `SELECT COALESCE(ngo_name, first_name || ' ' || last_name)
		FROM users WHERE id = $1 AND role = 'ngo'`
)

var (
	_ finance.SalesRepository = (*SalesRepository)(nil)
	_ finance.Directory       = (*SalesRepository)(nil)
)

// SalesRepository implements the sales aggregates and the NGO directory
// backed by PostgreSQL.
type SalesRepository struct {
	pool *pgxpool.Pool
}

// NewSalesRepository returns a SalesRepository that uses the given pool.
func NewSalesRepository(pool *pgxpool.Pool) *SalesRepository {
	return &SalesRepository{pool: pool}
}

// GrossSales sums price x quantity over the scope, cancelled included.
func (r *SalesRepository) GrossSales(ctx context.Context, scope finance.Scope) (decimal.Decimal, error) {
	return r.sum(ctx, grossSalesSQL, scope)
}

// CancelledSales sums price x quantity over the scope's cancelled items.
func (r *SalesRepository) CancelledSales(ctx context.Context, scope finance.Scope) (decimal.Decimal, error) {
	return r.sum(ctx, cancelledSalesSQL, scope)
}

func (r *SalesRepository) sum(ctx context.Context, sql string, scope finance.Scope) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := from(ctx, r.pool).QueryRow(ctx, sql, scope.NGOID, scope.ProductID).Scan(&total)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "sum sales")
	}
	return total, nil
}

// MonthlySales returns net sales per month over the trailing window.
func (r *SalesRepository) MonthlySales(ctx context.Context, ngoID int64, months int) ([]finance.MonthlyBucket, error) {
	rows, err := from(ctx, r.pool).Query(ctx, monthlySalesSQL, ngoID, months)
	if err != nil {
		return nil, errors.Wrap(err, "query monthly sales")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (finance.MonthlyBucket, error) {
		var b finance.MonthlyBucket
		err := row.Scan(&b.Month, &b.Sales)
		return b, err
	})
}

// ProductSalesInRange returns the per-product net breakdown in the range.
func (r *SalesRepository) ProductSalesInRange(ctx context.Context, f finance.RangeFilter) ([]finance.ProductSales, error) {
	rows, err := from(ctx, r.pool).Query(ctx, productSalesInRangeSQL,
		f.From, f.To, f.NGOID, f.Limit, f.Offset)
	if err != nil {
		return nil, errors.Wrap(err, "query product sales")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (finance.ProductSales, error) {
		var p finance.ProductSales
		err := row.Scan(&p.ProductID, &p.Name, &p.NGOName, &p.Total)
		return p, err
	})
}

// FindNGO returns the NGO's display name, or finance.ErrNGONotFound.
func (r *SalesRepository) FindNGO(ctx context.Context, id int64) (string, error) {
	var name string
	err := from(ctx, r.pool).QueryRow(ctx, findNGOSQL, id).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", finance.ErrNGONotFound
		}
		return "", errors.Wrapf(err, "find ngo %d", id)
	}
	return name, nil
}
