// Package cart reads a user's open cart and turns it into an immutable
// priced snapshot for checkout and display.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrEmptyCart is returned by checkout flows when the user's cart has no
// items. Display flows treat an empty cart as a benign empty snapshot.
var ErrEmptyCart = errors.New("cart is empty")

// Line is a single cart line joined to the live product at read time.
// UnitPrice and NGOID are the values frozen onto the order item if this
// snapshot is placed.
type Line struct {
	ProductID   int64
	ProductName string
	NGOID       int64
	UnitPrice   decimal.Decimal
	Quantity    int
	// Available is false when the referenced product has been removed or
	// delisted since it was added to the cart. Checkout must abort on an
	// unavailable line; display flows render it as unavailable.
	Available bool
}

// Subtotal returns UnitPrice x Quantity for the line.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Snapshot is the cart's priced state at a single moment.
type Snapshot struct {
	UserID  int64
	Lines   []Line
	Total   decimal.Decimal
	TakenAt time.Time
}

// Empty reports whether the snapshot has no lines.
func (s *Snapshot) Empty() bool {
	return len(s.Lines) == 0
}

// Repository reads cart contents. Mutation of cart lines happens inside
// the order placement transaction, not through this interface.
type Repository interface {
	// Items returns the user's cart lines joined to live product data.
	// A missing or empty cart yields an empty slice, not an error.
	Items(ctx context.Context, userID int64) ([]Line, error)
}

// Service produces snapshots from the repository.
type Service struct {
	carts Repository
	now   func() time.Time
}

// NewService creates a cart Service.
func NewService(carts Repository) *Service {
	return &Service{carts: carts, now: time.Now}
}

// Snapshot reads the user's cart and computes its total from live product
// prices. An empty cart returns an empty snapshot; checkout callers must
// reject it with ErrEmptyCart, display callers render it as-is.
func (s *Service) Snapshot(ctx context.Context, userID int64) (*Snapshot, error) {
	lines, err := s.carts.Items(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "read cart")
	}

	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}

	return &Snapshot{
		UserID:  userID,
		Lines:   lines,
		Total:   total.Round(2),
		TakenAt: s.now(),
	}, nil
}
