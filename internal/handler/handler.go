// Package handler exposes the marketplace core over JSON HTTP: checkout
// and coupons, order placement and fulfillment, sales reports, and the
// payout workflow.
package handler

import (
	"net/http"

	"github.com/giftible/marketplace/internal/domain/cart"
	"github.com/giftible/marketplace/internal/domain/coupon"
	"github.com/giftible/marketplace/internal/domain/finance"
	"github.com/giftible/marketplace/internal/domain/order"
	"github.com/giftible/marketplace/internal/domain/payment"
)

// Handler holds the domain services behind the API routes.
type Handler struct {
	carts       *cart.Service
	coupons     coupon.Repository
	eligibility *coupon.Eligibility
	gateway     payment.Gateway
	orders      *order.Service
	statuses    *order.StatusService
	orderReads  order.Repository
	finance     *finance.Service
}

// New constructs a Handler with the required domain dependencies.
func New(
	carts *cart.Service,
	coupons coupon.Repository,
	eligibility *coupon.Eligibility,
	gateway payment.Gateway,
	orders *order.Service,
	statuses *order.StatusService,
	orderReads order.Repository,
	fin *finance.Service,
) *Handler {
	return &Handler{
		carts:       carts,
		coupons:     coupons,
		eligibility: eligibility,
		gateway:     gateway,
		orders:      orders,
		statuses:    statuses,
		orderReads:  orderReads,
		finance:     fin,
	}
}

// Routes registers every API route on mux. Authentication is applied by
// the caller around the whole mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	// Payments.
	mux.HandleFunc("POST /api/payments/order", h.createPaymentOrder)
	mux.HandleFunc("POST /api/payments/verify", h.verifyPayment)

	// Checkout and coupons.
	mux.HandleFunc("POST /api/checkout/apply-coupon", h.applyCoupon)
	mux.HandleFunc("GET /api/checkout/cart-summary", h.cartSummary)
	mux.HandleFunc("POST /api/checkout/coupons", h.createCoupon)
	mux.HandleFunc("GET /api/checkout/coupons", h.listCoupons)

	// Orders and fulfillment.
	mux.HandleFunc("POST /api/orders", h.placeOrder)
	mux.HandleFunc("GET /api/orders", h.listOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	mux.HandleFunc("GET /api/orders/ngo/items", h.listNGOItems)
	mux.HandleFunc("PATCH /api/orders/items/{id}/status", h.advanceItem)
	mux.HandleFunc("POST /api/orders/items/{id}/cancel", h.cancelItem)

	// Sales reports.
	mux.HandleFunc("GET /api/sales/total", h.totalSales)
	mux.HandleFunc("GET /api/sales/ngo/{id}", h.ngoSales)
	mux.HandleFunc("GET /api/sales/product/{id}", h.productSales)
	mux.HandleFunc("GET /api/sales/monthly", h.monthlySales)
	mux.HandleFunc("GET /api/sales/range", h.rangeSales)

	// Payouts.
	mux.HandleFunc("POST /api/payouts", h.requestPayout)
	mux.HandleFunc("GET /api/payouts", h.payoutHistory)
	mux.HandleFunc("GET /api/payouts/pending", h.pendingPayouts)
	mux.HandleFunc("POST /api/payouts/{id}/process", h.processPayout)
}
