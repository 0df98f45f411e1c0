// Package finance derives sales aggregates from the settled order graph
// and governs the payout lifecycle they gate.
package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// PayoutStatus is the lifecycle state of a payout request.
type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "Pending"
	PayoutCompleted PayoutStatus = "Completed"
	PayoutRejected  PayoutStatus = "Rejected"
)

var (
	// ErrPayoutNotFound is returned for unknown payout ids.
	ErrPayoutNotFound = errors.New("payout not found")
	// ErrAlreadyProcessed is returned when processing a payout that has
	// already been completed or rejected.
	ErrAlreadyProcessed = errors.New("payout already processed")
	// ErrNGONotFound is returned when an NGO-scoped query names an account
	// that does not exist or is not an NGO.
	ErrNGONotFound = errors.New("ngo not found")
	// ErrInvalidPayoutAmount is returned for non-positive payout requests.
	ErrInvalidPayoutAmount = errors.New("payout amount must be positive")
)

// InsufficientBalanceError rejects a payout request exceeding the NGO's
// pending balance at check time.
type InsufficientBalanceError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("requested amount %s exceeds pending balance %s",
		e.Requested.StringFixed(2), e.Available.StringFixed(2))
}

// Payout is one payout request by an NGO.
type Payout struct {
	ID          int64
	NGOID       int64
	NGOName     string
	Amount      decimal.Decimal
	Status      PayoutStatus
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// Scope narrows a sales aggregate. Zero values widen: an empty Scope is
// platform-wide, NGOID alone is one seller, ProductID alone is one product.
type Scope struct {
	NGOID     int64
	ProductID int64
}

// MonthlyBucket is net sales for one calendar month.
type MonthlyBucket struct {
	Month time.Time
	Sales decimal.Decimal
}

// ProductSales is the per-product breakdown for date-range reports.
type ProductSales struct {
	ProductID int64
	Name      string
	NGOName   string
	Total     decimal.Decimal
}

// RangeFilter bounds a date-range sales report. To is inclusive of the
// whole end day.
type RangeFilter struct {
	From   time.Time
	To     time.Time
	NGOID  int64
	Limit  int
	Offset int
}

// HistoryFilter bounds a payout history listing.
type HistoryFilter struct {
	From  time.Time
	To    time.Time
	NGOID int64
}

// SalesRepository aggregates order items whose parent order carries a
// verified payment (payment_id present).
type SalesRepository interface {
	// GrossSales sums price x quantity over the scope, cancelled items
	// included.
	GrossSales(ctx context.Context, scope Scope) (decimal.Decimal, error)
	// CancelledSales sums price x quantity over the scope's Cancelled items.
	CancelledSales(ctx context.Context, scope Scope) (decimal.Decimal, error)
	// MonthlySales returns net sales per month for the trailing window,
	// oldest bucket first. ngoID 0 means platform-wide.
	MonthlySales(ctx context.Context, ngoID int64, months int) ([]MonthlyBucket, error)
	// ProductSalesInRange returns the per-product net sales breakdown,
	// highest total first.
	ProductSalesInRange(ctx context.Context, f RangeFilter) ([]ProductSales, error)
}

// PayoutRepository persists payouts and serializes per-NGO payout activity.
type PayoutRepository interface {
	// CompletedTotal sums the NGO's Completed payouts. Rejected and
	// Pending payouts never count.
	CompletedTotal(ctx context.Context, ngoID int64) (decimal.Decimal, error)
	// Create inserts a Pending payout and fills its id and created_at.
	Create(ctx context.Context, p *Payout) error
	// Get returns one payout or ErrPayoutNotFound.
	Get(ctx context.Context, id int64) (*Payout, error)
	// MarkProcessed transitions a Pending payout to Completed or Rejected
	// and stamps processed_at. Returns ErrAlreadyProcessed when the payout
	// left Pending concurrently.
	MarkProcessed(ctx context.Context, id int64, status PayoutStatus, processedAt time.Time) error
	// ListPending returns all Pending payouts, oldest first.
	ListPending(ctx context.Context) ([]Payout, error)
	// History returns payouts matching the filter, newest first.
	History(ctx context.Context, f HistoryFilter) ([]Payout, error)
	// Locked runs fn inside a transaction holding the NGO's advisory
	// lock. Repository calls made with fn's context join the transaction,
	// so balance checks and the write they gate are serialized per NGO.
	Locked(ctx context.Context, ngoID int64, fn func(ctx context.Context) error) error
}

// Directory resolves NGO accounts.
type Directory interface {
	// FindNGO returns the NGO's display name, or ErrNGONotFound.
	FindNGO(ctx context.Context, id int64) (string, error)
}
