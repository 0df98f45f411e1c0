package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/giftible/marketplace/internal/domain/auth"
	"github.com/giftible/marketplace/internal/domain/cart"
	"github.com/giftible/marketplace/internal/domain/coupon"
	"github.com/giftible/marketplace/internal/domain/payment"
)

// Validation errors for placement input.
var (
	ErrInvalidAddress = errors.New("address id required")
	ErrMissingPayment = errors.New("payment id, gateway order id, and signature required")
	ErrInvalidAmount  = errors.New("amount must be positive")
)

// PlaceRequest is the checkout input. Amount is the gateway-charged total
// as stated by the caller; it is trusted only after the signature over the
// gateway order it belongs to has been verified.
type PlaceRequest struct {
	AddressID      int64
	CouponCode     string
	PaymentID      string
	GatewayOrderID string
	Amount         decimal.Decimal
	Signature      string
}

// PlaceResult is the checkout output.
type PlaceResult struct {
	OrderID int64
	// AlreadyPlaced is true when a retry carried a gateway order id that
	// was committed before; nothing was created this time.
	AlreadyPlaced bool
	// Discount is the coupon discount computed against the cart snapshot,
	// zero when no coupon was applied.
	Discount decimal.Decimal
}

// Service is the order placement engine: verify payment, snapshot the
// cart, validate the coupon, and commit everything in one transaction.
type Service struct {
	gateway     payment.Gateway
	carts       *cart.Service
	coupons     coupon.Repository
	eligibility *coupon.Eligibility
	store       PlacementStore
}

// NewService creates the placement engine.
func NewService(
	gateway payment.Gateway,
	carts *cart.Service,
	coupons coupon.Repository,
	eligibility *coupon.Eligibility,
	store PlacementStore,
) *Service {
	return &Service{
		gateway:     gateway,
		carts:       carts,
		coupons:     coupons,
		eligibility: eligibility,
		store:       store,
	}
}

// PlaceOrder runs the checkout pipeline for the calling user.
//
// The signature check fails closed: no state is touched unless the gateway
// attests the payment. After that the entire placement is one transaction,
// so a failure at any later step leaves no partial order behind.
func (s *Service) PlaceOrder(ctx context.Context, caller auth.Identity, req PlaceRequest) (*PlaceResult, error) {
	if err := caller.Require(auth.CapPlaceOrder); err != nil {
		return nil, err
	}
	if req.AddressID <= 0 {
		return nil, ErrInvalidAddress
	}
	if req.PaymentID == "" || req.GatewayOrderID == "" || req.Signature == "" {
		return nil, ErrMissingPayment
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	if !s.gateway.VerifySignature(req.GatewayOrderID, req.PaymentID, req.Signature) {
		return nil, payment.ErrVerificationFailed
	}

	snap, err := s.carts.Snapshot(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if snap.Empty() {
		// A retry after a successful placement finds the cart already
		// consumed. Resolve it by gateway order id before rejecting, so
		// a client that lost the first response can recover its order.
		orderID, err := s.store.FindByGatewayOrderID(ctx, req.GatewayOrderID)
		if err == nil {
			return &PlaceResult{OrderID: orderID, AlreadyPlaced: true, Discount: decimal.Zero}, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, cart.ErrEmptyCart
	}

	discount := decimal.Zero
	var usage *coupon.Usage
	if req.CouponCode != "" {
		c, err := s.coupons.FindByCode(ctx, req.CouponCode)
		if err != nil {
			return nil, err
		}
		if err := s.eligibility.Check(ctx, caller.UserID, c); err != nil {
			return nil, err
		}
		discount, err = c.Discount(snap.Total)
		if err != nil {
			return nil, err
		}
		usage = &coupon.Usage{
			UserID:   caller.UserID,
			CouponID: c.ID,
			Limit:    c.UsageLimit,
			UsedAt:   snap.TakenAt,
		}
	}

	items := make([]Item, len(snap.Lines))
	for i, line := range snap.Lines {
		// One dead line aborts the whole placement: the user paid for the
		// full cart and must not receive a silently shortened order.
		if !line.Available {
			return nil, &ProductNotFoundError{ProductID: line.ProductID}
		}
		items[i] = Item{
			ProductID: line.ProductID,
			NGOID:     line.NGOID,
			Quantity:  line.Quantity,
			Price:     line.UnitPrice,
			Status:    StatusPending,
		}
	}

	orderID, created, err := s.store.Place(ctx, &Placement{
		Order: Order{
			UserID:         caller.UserID,
			AddressID:      req.AddressID,
			TotalAmount:    req.Amount.Round(2),
			GatewayOrderID: req.GatewayOrderID,
			PaymentID:      req.PaymentID,
		},
		Items: items,
		Usage: usage,
	})
	if err != nil {
		return nil, errors.Wrap(err, "commit placement")
	}

	return &PlaceResult{
		OrderID:       orderID,
		AlreadyPlaced: !created,
		Discount:      discount,
	}, nil
}
