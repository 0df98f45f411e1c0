package finance

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/giftible/marketplace/internal/domain/auth"
)

// Service computes the reconciliation metrics and runs the payout
// workflow on top of them.
type Service struct {
	sales   SalesRepository
	payouts PayoutRepository
	ngos    Directory
	now     func() time.Time
}

// NewService creates a finance Service.
func NewService(sales SalesRepository, payouts PayoutRepository, ngos Directory) *Service {
	return &Service{sales: sales, payouts: payouts, ngos: ngos, now: time.Now}
}

// GrossSales returns the scope's paid sales including cancelled items.
func (s *Service) GrossSales(ctx context.Context, scope Scope) (decimal.Decimal, error) {
	return s.sales.GrossSales(ctx, scope)
}

// NetSales returns gross sales minus the value of cancelled items. This
// is the figure dashboards show and payout eligibility is computed from.
// Sequential on purpose: it also runs inside payout transactions, where
// the context-carried tx must not be shared across goroutines.
func (s *Service) NetSales(ctx context.Context, scope Scope) (decimal.Decimal, error) {
	gross, err := s.sales.GrossSales(ctx, scope)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "gross sales")
	}
	cancelled, err := s.sales.CancelledSales(ctx, scope)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "cancelled sales")
	}
	return gross.Sub(cancelled), nil
}

// NetSalesForNGO returns the NGO's net sales, rejecting ids that do not
// belong to an NGO account.
func (s *Service) NetSalesForNGO(ctx context.Context, ngoID int64) (decimal.Decimal, error) {
	if _, err := s.ngos.FindNGO(ctx, ngoID); err != nil {
		return decimal.Zero, err
	}
	return s.NetSales(ctx, Scope{NGOID: ngoID})
}

// PendingPayout returns max(net sales - completed payouts, 0) for the NGO.
// Never negative, even when manual adjustments push completed payouts past
// net sales.
func (s *Service) PendingPayout(ctx context.Context, ngoID int64) (decimal.Decimal, error) {
	if _, err := s.ngos.FindNGO(ctx, ngoID); err != nil {
		return decimal.Zero, err
	}
	return s.pendingPayout(ctx, ngoID)
}

// pendingPayout computes the balance without the NGO existence check, so
// it can run inside payout transactions that already resolved the NGO.
func (s *Service) pendingPayout(ctx context.Context, ngoID int64) (decimal.Decimal, error) {
	net, err := s.NetSales(ctx, Scope{NGOID: ngoID})
	if err != nil {
		return decimal.Zero, err
	}
	paid, err := s.payouts.CompletedTotal(ctx, ngoID)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "completed payouts")
	}

	pending := net.Sub(paid)
	if pending.IsNegative() {
		return decimal.Zero, nil
	}
	return pending, nil
}

// MonthlySales returns the net sales trend, one bucket per month.
func (s *Service) MonthlySales(ctx context.Context, ngoID int64, months int) ([]MonthlyBucket, error) {
	if months <= 0 {
		months = 6
	}
	return s.sales.MonthlySales(ctx, ngoID, months)
}

// ProductSalesInRange returns the per-product breakdown for the range.
// An omitted end bound defaults to now, so open-ended reports include
// everything up to the present instead of comparing against the zero time.
func (s *Service) ProductSalesInRange(ctx context.Context, f RangeFilter) ([]ProductSales, error) {
	if f.To.IsZero() {
		f.To = s.now()
	}
	if f.From.After(f.To) {
		return nil, errors.New("start date must be before end date")
	}
	if f.Limit <= 0 {
		f.Limit = 10
	}
	return s.sales.ProductSalesInRange(ctx, f)
}

// RequestPayout creates a Pending payout for the NGO after checking the
// balance under the NGO's advisory lock. Two concurrent requests for the
// same NGO serialize on the lock, so both cannot pass the check against
// the same balance.
func (s *Service) RequestPayout(ctx context.Context, caller auth.Identity, amount decimal.Decimal) (*Payout, error) {
	if err := caller.Require(auth.CapRequestPayout); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidPayoutAmount
	}

	ngoID := caller.UserID
	name, err := s.ngos.FindNGO(ctx, ngoID)
	if err != nil {
		return nil, err
	}

	payout := &Payout{
		NGOID:   ngoID,
		NGOName: name,
		Amount:  amount.Round(2),
		Status:  PayoutPending,
	}
	err = s.payouts.Locked(ctx, ngoID, func(ctx context.Context) error {
		pending, err := s.pendingPayout(ctx, ngoID)
		if err != nil {
			return err
		}
		if payout.Amount.GreaterThan(pending) {
			return &InsufficientBalanceError{Requested: payout.Amount, Available: pending}
		}
		return s.payouts.Create(ctx, payout)
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}

// ProcessPayout completes or rejects a Pending payout. Approval re-checks
// the balance under the NGO's advisory lock: the request-time check is
// advisory only, and the invariant (completed payouts never exceed net
// sales) must hold at the moment of approval.
func (s *Service) ProcessPayout(ctx context.Context, caller auth.Identity, payoutID int64, approved bool) (*Payout, error) {
	if err := caller.Require(auth.CapProcessPayout); err != nil {
		return nil, err
	}

	payout, err := s.payouts.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status != PayoutPending {
		return nil, ErrAlreadyProcessed
	}

	processedAt := s.now()
	status := PayoutRejected
	if approved {
		status = PayoutCompleted
	}

	err = s.payouts.Locked(ctx, payout.NGOID, func(ctx context.Context) error {
		if approved {
			pending, err := s.pendingPayout(ctx, payout.NGOID)
			if err != nil {
				return err
			}
			if payout.Amount.GreaterThan(pending) {
				return &InsufficientBalanceError{Requested: payout.Amount, Available: pending}
			}
		}
		return s.payouts.MarkProcessed(ctx, payoutID, status, processedAt)
	})
	if err != nil {
		return nil, err
	}

	payout.Status = status
	payout.ProcessedAt = &processedAt
	return payout, nil
}

// PendingPayouts lists all Pending requests for the admin review queue.
func (s *Service) PendingPayouts(ctx context.Context, caller auth.Identity) ([]Payout, error) {
	if err := caller.Require(auth.CapProcessPayout); err != nil {
		return nil, err
	}
	return s.payouts.ListPending(ctx)
}

// PayoutHistory lists payouts in the window. NGOs see only their own
// history regardless of the requested filter.
func (s *Service) PayoutHistory(ctx context.Context, caller auth.Identity, f HistoryFilter) ([]Payout, error) {
	if caller.Role == auth.RoleNGO {
		f.NGOID = caller.UserID
	} else if err := caller.Require(auth.CapProcessPayout); err != nil {
		return nil, err
	}
	if !f.To.IsZero() && f.From.After(f.To) {
		return nil, errors.New("start date must be before end date")
	}
	return s.payouts.History(ctx, f)
}
