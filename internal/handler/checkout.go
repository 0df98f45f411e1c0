package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/giftible/marketplace/internal/domain/auth"
	"github.com/giftible/marketplace/internal/domain/cart"
	"github.com/giftible/marketplace/internal/domain/coupon"
)

type applyCouponRequest struct {
	Code string `json:"code"`
}

type couponPreviewResponse struct {
	Code       string          `json:"code"`
	Discount   decimal.Decimal `json:"discount"`
	Total      decimal.Decimal `json:"total"`
	FinalTotal decimal.Decimal `json:"final_total"`
	Message    string          `json:"message"`
}

// applyCoupon previews a coupon against the caller's current cart. It
// never records a redemption; usage is written only at placement.
func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	var req applyCouponRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "coupon code required")
		return
	}

	snap, err := h.carts.Snapshot(r.Context(), id.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if snap.Empty() {
		respondError(w, r, cart.ErrEmptyCart)
		return
	}

	preview, err := h.previewCoupon(r, id, req.Code, snap.Total)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// previewCoupon runs lookup, eligibility, and discount math for a code
// against the given cart total.
func (h *Handler) previewCoupon(r *http.Request, id auth.Identity, code string, total decimal.Decimal) (*couponPreviewResponse, error) {
	c, err := h.coupons.FindByCode(r.Context(), code)
	if err != nil {
		return nil, err
	}
	if err := h.eligibility.Check(r.Context(), id.UserID, c); err != nil {
		return nil, err
	}
	discount, err := c.Discount(total)
	if err != nil {
		return nil, err
	}
	return &couponPreviewResponse{
		Code:       c.Code,
		Discount:   discount,
		Total:      total,
		FinalTotal: total.Sub(discount),
		Message:    "coupon applied",
	}, nil
}

type cartSummaryResponse struct {
	Items      []cartItemView  `json:"items"`
	Total      decimal.Decimal `json:"total"`
	Discount   decimal.Decimal `json:"discount"`
	FinalTotal decimal.Decimal `json:"final_total"`
}

type cartItemView struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Available bool            `json:"available"`
}

// cartSummary returns the caller's priced cart, optionally with a coupon
// applied via the ?coupon= query parameter.
func (h *Handler) cartSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	snap, err := h.carts.Snapshot(r.Context(), id.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	discount := decimal.Zero
	if code := r.URL.Query().Get("coupon"); code != "" && !snap.Empty() {
		preview, err := h.previewCoupon(r, id, code, snap.Total)
		if err != nil {
			respondError(w, r, err)
			return
		}
		discount = preview.Discount
	}

	items := make([]cartItemView, len(snap.Lines))
	for i, l := range snap.Lines {
		items[i] = cartItemView{
			ProductID: l.ProductID,
			Name:      l.ProductName,
			Price:     l.UnitPrice,
			Quantity:  l.Quantity,
			Subtotal:  l.Subtotal(),
			Available: l.Available,
		}
	}

	writeJSON(w, http.StatusOK, cartSummaryResponse{
		Items:      items,
		Total:      snap.Total,
		Discount:   discount,
		FinalTotal: snap.Total.Sub(discount),
	})
}

type createCouponRequest struct {
	Code               string          `json:"code"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	MaxDiscount        decimal.Decimal `json:"max_discount"`
	UsageLimit         string          `json:"usage_limit"`
	MinimumOrderAmount decimal.Decimal `json:"minimum_order_amount"`
}

type couponView struct {
	ID                 int64           `json:"id"`
	Code               string          `json:"code"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	MaxDiscount        decimal.Decimal `json:"max_discount"`
	UsageLimit         string          `json:"usage_limit"`
	MinimumOrderAmount decimal.Decimal `json:"minimum_order_amount"`
	IsActive           bool            `json:"is_active"`
}

func couponToView(c coupon.Coupon) couponView {
	return couponView{
		ID:                 c.ID,
		Code:               c.Code,
		DiscountPercentage: c.DiscountPercentage,
		MaxDiscount:        c.MaxDiscount,
		UsageLimit:         string(c.UsageLimit),
		MinimumOrderAmount: c.MinimumOrderAmount,
		IsActive:           c.IsActive,
	}
}

// createCoupon creates a coupon. Admin only.
func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	if err := id.Require(auth.CapManageCoupons); err != nil {
		respondError(w, r, err)
		return
	}

	var req createCouponRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	limit := coupon.UsageLimit(req.UsageLimit)
	if req.Code == "" || (limit != coupon.UsageOneTime && limit != coupon.UsageOnePerDay) {
		writeError(w, http.StatusUnprocessableEntity, "code and a valid usage_limit are required")
		return
	}
	if req.DiscountPercentage.IsNegative() || req.DiscountPercentage.GreaterThan(decimal.NewFromInt(100)) {
		writeError(w, http.StatusUnprocessableEntity, "discount_percentage must be between 0 and 100")
		return
	}
	if req.MaxDiscount.IsNegative() || req.MinimumOrderAmount.IsNegative() {
		writeError(w, http.StatusUnprocessableEntity, "amounts must not be negative")
		return
	}

	c := &coupon.Coupon{
		Code:               req.Code,
		DiscountPercentage: req.DiscountPercentage,
		MaxDiscount:        req.MaxDiscount,
		UsageLimit:         limit,
		MinimumOrderAmount: req.MinimumOrderAmount,
		IsActive:           true,
	}
	if err := h.coupons.Create(r.Context(), c); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, couponToView(*c))
}

// listCoupons lists every coupon. Admin only.
func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	if err := id.Require(auth.CapManageCoupons); err != nil {
		respondError(w, r, err)
		return
	}

	coupons, err := h.coupons.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	views := make([]couponView, len(coupons))
	for i, c := range coupons {
		views[i] = couponToView(c)
	}
	writeJSON(w, http.StatusOK, views)
}
