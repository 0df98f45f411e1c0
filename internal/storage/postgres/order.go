package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/go-faster/errors"

	"github.com/giftible/marketplace/internal/domain/coupon"
	"github.com/giftible/marketplace/internal/domain/order"
)

const (
	existingOrderSQL = `SELECT id FROM orders WHERE gateway_order_id = $1`

	addressOwnedSQL = `SELECT EXISTS (SELECT 1 FROM addresses WHERE id = $1 AND user_id = $2)`

	insertOrderSQL = `INSERT INTO orders (user_id, address_id, total_amount, gateway_order_id, payment_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (gateway_order_id) DO NOTHING
		RETURNING id`

	lockCartSQL = `SELECT ci.id FROM cart_items ci
		JOIN carts c ON c.id = ci.cart_id
		WHERE c.user_id = $1
		FOR UPDATE OF ci`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, product_id, ngo_id, quantity, price, status)
		VALUES ($1, $2, $3, $4, $5, $6)`

	insertCouponUsageSQL = `INSERT INTO coupon_usages (user_id, coupon_id, usage_limit, used_at)
		VALUES ($1, $2, $3, $4)`

	clearCartLinesSQL = `DELETE FROM cart_items USING carts,
			unnest($2::bigint[], $3::int[]) AS placed (product_id, quantity)
		WHERE cart_items.cart_id = carts.id
		  AND carts.user_id = $1
		  AND cart_items.product_id = placed.product_id
		  AND cart_items.quantity = placed.quantity`

	getItemSQL = `SELECT oi.id, oi.order_id, oi.product_id, oi.ngo_id, o.user_id,
			oi.quantity, oi.price, oi.status, COALESCE(oi.cancellation_reason, ''),
			oi.created_at, oi.updated_at
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE oi.id = $1`

	updateItemStatusSQL = `UPDATE order_items
		SET status = $3,
		    cancellation_reason = CASE WHEN $4 = '' THEN cancellation_reason ELSE $4 END,
		    updated_at = now()
		WHERE id = $1 AND status = $2`

	listOrdersByUserSQL = `SELECT id, user_id, address_id, total_amount, gateway_order_id,
			COALESCE(payment_id, ''), created_at, updated_at
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC`

	getOrderSQL = `SELECT id, user_id, address_id, total_amount, gateway_order_id,
			COALESCE(payment_id, ''), created_at, updated_at
		FROM orders WHERE id = $1`

	listItemsByOrdersSQL = `SELECT oi.id, oi.order_id, oi.product_id, oi.ngo_id, o.user_id,
			oi.quantity, oi.price, oi.status, COALESCE(oi.cancellation_reason, ''),
			oi.created_at, oi.updated_at
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.id`

	listItemsByNGOSQL = `SELECT oi.id, oi.order_id, oi.product_id, oi.ngo_id, o.user_id,
			oi.quantity, oi.price, oi.status, COALESCE(oi.cancellation_reason, ''),
			oi.created_at, oi.updated_at
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE oi.ngo_id = $1
		ORDER BY oi.created_at DESC`
)

var (
	_ order.PlacementStore = (*OrderRepository)(nil)
	_ order.Repository     = (*OrderRepository)(nil)
)

// OrderRepository implements order persistence backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Place commits a placement in one transaction: the order header, its
// items, the coupon usage, and the removal of the placed cart lines.
//
// Idempotency rides on the gateway_order_id unique constraint: a retry
// sees the conflict, reads the existing order id, and writes nothing.
// Cart cleanup deletes only the exact (product, quantity) pairs that were
// placed: a line added concurrently for a different product survives, and
// so does a line whose quantity changed after the snapshot was taken.
func (r *OrderRepository) Place(ctx context.Context, p *order.Placement) (int64, bool, error) {
	var (
		orderID int64
		created bool
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		// The shipping address must belong to the buyer; an id pointing at
		// another user's address aborts before anything is written.
		var owned bool
		if err := tx.QueryRow(ctx, addressOwnedSQL, p.Order.AddressID, p.Order.UserID).Scan(&owned); err != nil {
			return errors.Wrap(err, "check address ownership")
		}
		if !owned {
			return order.ErrAddressNotOwned
		}

		err := tx.QueryRow(ctx, insertOrderSQL,
			p.Order.UserID, p.Order.AddressID, p.Order.TotalAmount,
			p.Order.GatewayOrderID, p.Order.PaymentID,
		).Scan(&orderID)
		if errors.Is(err, pgx.ErrNoRows) {
			// Same gateway order was committed before: idempotent replay.
			if err := tx.QueryRow(ctx, existingOrderSQL, p.Order.GatewayOrderID).Scan(&orderID); err != nil {
				return errors.Wrap(err, "load existing order")
			}
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "insert order")
		}
		created = true

		// Hold the cart rows until commit so a concurrent add-to-cart
		// cannot interleave with the delete below.
		if _, err := tx.Exec(ctx, lockCartSQL, p.Order.UserID); err != nil {
			return errors.Wrap(err, "lock cart")
		}

		productIDs := make([]int64, len(p.Items))
		quantities := make([]int, len(p.Items))
		for i, item := range p.Items {
			productIDs[i] = item.ProductID
			quantities[i] = item.Quantity
			if _, err := tx.Exec(ctx, insertOrderItemSQL,
				orderID, item.ProductID, item.NGOID, item.Quantity, item.Price, string(item.Status),
			); err != nil {
				return errors.Wrapf(err, "insert order item for product %d", item.ProductID)
			}
		}

		if p.Usage != nil {
			_, err := tx.Exec(ctx, insertCouponUsageSQL,
				p.Usage.UserID, p.Usage.CouponID, string(p.Usage.Limit), p.Usage.UsedAt)
			if err != nil {
				if isUniqueViolation(err, "coupon_usages_one_time_uidx") {
					return coupon.ErrAlreadyUsed
				}
				return errors.Wrap(err, "record coupon usage")
			}
		}

		if _, err := tx.Exec(ctx, clearCartLinesSQL, p.Order.UserID, productIDs, quantities); err != nil {
			return errors.Wrap(err, "clear cart")
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return orderID, created, nil
}

// FindByGatewayOrderID returns the id of the order placed for the
// gateway order, or order.ErrNotFound.
func (r *OrderRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (int64, error) {
	var orderID int64
	err := from(ctx, r.pool).QueryRow(ctx, existingOrderSQL, gatewayOrderID).Scan(&orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, order.ErrNotFound
		}
		return 0, errors.Wrap(err, "find order by gateway order id")
	}
	return orderID, nil
}

// GetItem returns an item with its parent order's owner, or ErrNotFound.
func (r *OrderRepository) GetItem(ctx context.Context, itemID int64) (*order.Item, error) {
	rows, err := from(ctx, r.pool).Query(ctx, getItemSQL, itemID)
	if err != nil {
		return nil, errors.Wrapf(err, "get order item %d", itemID)
	}

	item, err := pgx.CollectExactlyOneRow(rows, scanOrderItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order item %d", itemID)
	}
	return &item, nil
}

// UpdateItemStatus transitions an item with a compare-and-set on the
// expected current status.
func (r *OrderRepository) UpdateItemStatus(ctx context.Context, itemID int64, fromStatus, to order.Status, reason string) error {
	tag, err := from(ctx, r.pool).Exec(ctx, updateItemStatusSQL,
		itemID, string(fromStatus), string(to), reason)
	if err != nil {
		return errors.Wrapf(err, "update order item %d", itemID)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrConflict
	}
	return nil
}

// ListByUser returns the user's orders with items, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]order.Order, error) {
	rows, err := from(ctx, r.pool).Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetByID returns one order with items, or ErrNotFound.
func (r *OrderRepository) GetByID(ctx context.Context, orderID int64) (*order.Order, error) {
	rows, err := from(ctx, r.pool).Query(ctx, getOrderSQL, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %d", orderID)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %d", orderID)
	}

	orders := []order.Order{o}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListItemsByNGO returns the items the NGO is fulfilling, newest first.
func (r *OrderRepository) ListItemsByNGO(ctx context.Context, ngoID int64) ([]order.Item, error) {
	rows, err := from(ctx, r.pool).Query(ctx, listItemsByNGOSQL, ngoID)
	if err != nil {
		return nil, errors.Wrap(err, "list ngo items")
	}
	return pgx.CollectRows(rows, scanOrderItem)
}

func (r *OrderRepository) attachItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	byID := make(map[int64]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	rows, err := from(ctx, r.pool).Query(ctx, listItemsByOrdersSQL, ids)
	if err != nil {
		return errors.Wrap(err, "list order items")
	}
	items, err := pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return errors.Wrap(err, "list order items")
	}

	for _, item := range items {
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o     order.Order
		total decimal.Decimal
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.AddressID, &total, &o.GatewayOrderID,
		&o.PaymentID, &o.CreatedAt, &o.UpdatedAt,
	)
	o.TotalAmount = total
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var (
		item   order.Item
		price  decimal.Decimal
		status string
	)
	err := row.Scan(
		&item.ID, &item.OrderID, &item.ProductID, &item.NGOID, &item.OrderUserID,
		&item.Quantity, &price, &status, &item.CancellationReason,
		&item.CreatedAt, &item.UpdatedAt,
	)
	item.Price = price
	item.Status = order.Status(status)
	return item, err
}
