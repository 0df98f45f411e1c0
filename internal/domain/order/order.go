// Package order holds the checkout core: the order aggregate, the
// per-item fulfillment status machine, and the placement engine that
// turns a verified payment plus a cart snapshot into persisted state.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/giftible/marketplace/internal/domain/coupon"
)

// Sentinel errors shared across order operations.
var (
	// ErrNotFound is returned for orders and order items that do not exist
	// or that the caller is not allowed to see. The two cases are
	// indistinguishable so callers cannot probe other users' orders.
	ErrNotFound = errors.New("order not found")
	// ErrReasonRequired is returned when a cancellation carries no reason.
	ErrReasonRequired = errors.New("cancellation reason required")
	// ErrAddressNotOwned is returned when a placement names a shipping
	// address that does not exist or belongs to another user.
	ErrAddressNotOwned = errors.New("address not found for this user")
	// ErrConflict is returned when a status update lost a concurrent race;
	// the caller should re-read the item and retry.
	ErrConflict = errors.New("order item was modified concurrently")
)

// ProductNotFoundError aborts an entire placement when a cart line
// references a product that no longer exists. No partial order may be
// created from a cart that cannot be fully delivered.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// Order is the immutable checkout header. It carries no status of its own:
// fulfillment state lives on the items, and an aggregate view is derived
// read-only via DerivedStatus.
type Order struct {
	ID             int64
	UserID         int64
	AddressID      int64
	TotalAmount    decimal.Decimal
	GatewayOrderID string
	PaymentID      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Items          []Item
}

// Item is the unit of fulfillment. Price and NGOID are frozen at placement
// time and never re-read from the live product.
type Item struct {
	ID                 int64
	OrderID            int64
	ProductID          int64
	NGOID              int64
	OrderUserID        int64
	Quantity           int
	Price              decimal.Decimal
	Status             Status
	CancellationReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Subtotal returns Price x Quantity for the item.
func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Placement is the full unit of work committed atomically at checkout:
// the order header, its items, the coupon redemption (when a coupon was
// applied), and the destruction of the cart lines it was built from.
type Placement struct {
	Order Order
	Items []Item
	Usage *coupon.Usage
}

// PlacementStore commits placements.
type PlacementStore interface {
	// Place atomically inserts the order and its items, records the coupon
	// usage, and deletes the user's cart items. The cart rows are locked
	// for the duration so concurrent cart mutations cannot be lost.
	//
	// Placement is idempotent by gateway order id: when an order with the
	// same GatewayOrderID already exists, Place returns its id with
	// created=false and changes nothing.
	Place(ctx context.Context, p *Placement) (orderID int64, created bool, err error)
	// FindByGatewayOrderID returns the id of the order committed for the
	// gateway order, or ErrNotFound. Lets a retry recover its order id
	// after the original placement already consumed the cart.
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (int64, error)
}

// Repository reads persisted orders and items.
type Repository interface {
	// GetItem returns the item with its parent order's owner joined in,
	// or ErrNotFound.
	GetItem(ctx context.Context, itemID int64) (*Item, error)
	// UpdateItemStatus transitions an item from its expected current
	// status, bumping updated_at. reason is persisted only for
	// cancellations. Returns ErrConflict when the item is no longer in
	// the expected status.
	UpdateItemStatus(ctx context.Context, itemID int64, from, to Status, reason string) error
	// ListByUser returns the user's orders, newest first, items included.
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
	// GetByID returns one order with items, or ErrNotFound.
	GetByID(ctx context.Context, orderID int64) (*Order, error)
	// ListItemsByNGO returns the items an NGO is fulfilling, newest first.
	ListItemsByNGO(ctx context.Context, ngoID int64) ([]Item, error)
}
