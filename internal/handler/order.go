package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/giftible/marketplace/internal/domain/auth"
	"github.com/giftible/marketplace/internal/domain/order"
)

type placeOrderRequest struct {
	AddressID      int64           `json:"address_id"`
	CouponCode     string          `json:"coupon_code"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentID      string          `json:"payment_id"`
	GatewayOrderID string          `json:"gateway_order_id"`
	Signature      string          `json:"signature"`
}

type placeOrderResponse struct {
	OrderID       int64           `json:"order_id"`
	AlreadyPlaced bool            `json:"already_placed"`
	Discount      decimal.Decimal `json:"discount"`
}

// placeOrder runs checkout for the caller's cart. Retries with the same
// gateway order id return the original order with 200 instead of 201.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.orders.PlaceOrder(r.Context(), id, order.PlaceRequest{
		AddressID:      req.AddressID,
		CouponCode:     req.CouponCode,
		PaymentID:      req.PaymentID,
		GatewayOrderID: req.GatewayOrderID,
		Amount:         req.Amount,
		Signature:      req.Signature,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.AlreadyPlaced {
		status = http.StatusOK
	}
	writeJSON(w, status, placeOrderResponse{
		OrderID:       result.OrderID,
		AlreadyPlaced: result.AlreadyPlaced,
		Discount:      result.Discount,
	})
}

type orderItemView struct {
	ID                 int64           `json:"id"`
	ProductID          int64           `json:"product_id"`
	NGOID              int64           `json:"ngo_id"`
	Quantity           int             `json:"quantity"`
	Price              decimal.Decimal `json:"price"`
	Status             string          `json:"status"`
	CancellationReason string          `json:"cancellation_reason,omitempty"`
}

type orderView struct {
	ID             int64           `json:"id"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	GatewayOrderID string          `json:"gateway_order_id"`
	Status         string          `json:"status"`
	CreatedAt      string          `json:"created_at"`
	Items          []orderItemView `json:"items"`
}

func orderToView(o order.Order) orderView {
	items := make([]orderItemView, len(o.Items))
	for i, item := range o.Items {
		items[i] = itemToView(item)
	}
	return orderView{
		ID:             o.ID,
		TotalAmount:    o.TotalAmount,
		GatewayOrderID: o.GatewayOrderID,
		Status:         o.DerivedStatus(),
		CreatedAt:      o.CreatedAt.Format(time.RFC3339),
		Items:          items,
	}
}

func itemToView(item order.Item) orderItemView {
	return orderItemView{
		ID:                 item.ID,
		ProductID:          item.ProductID,
		NGOID:              item.NGOID,
		Quantity:           item.Quantity,
		Price:              item.Price,
		Status:             string(item.Status),
		CancellationReason: item.CancellationReason,
	}
}

// listOrders returns the caller's own orders, newest first.
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	orders, err := h.orderReads.ListByUser(r.Context(), id.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	views := make([]orderView, len(orders))
	for i, o := range orders {
		views[i] = orderToView(o)
	}
	writeJSON(w, http.StatusOK, views)
}

// getOrder returns one of the caller's orders. Orders owned by anyone
// else answer 404.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	orderID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := h.orderReads.GetByID(r.Context(), orderID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if o.UserID != id.UserID {
		respondError(w, r, order.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, orderToView(*o))
}

// listNGOItems returns the items the calling NGO is fulfilling.
func (h *Handler) listNGOItems(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	if err := id.Require(auth.CapFulfillItem); err != nil {
		respondError(w, r, err)
		return
	}

	items, err := h.orderReads.ListItemsByNGO(r.Context(), id.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	views := make([]orderItemView, len(items))
	for i, item := range items {
		views[i] = itemToView(item)
	}
	writeJSON(w, http.StatusOK, views)
}

type advanceItemRequest struct {
	Status string `json:"status"`
}

// advanceItem moves an order item one step forward in its lifecycle.
func (h *Handler) advanceItem(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	itemID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	var req advanceItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.statuses.Advance(r.Context(), id, itemID, order.Status(req.Status)); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

type cancelItemRequest struct {
	Reason string `json:"reason"`
}

// cancelItem cancels an order item with the caller's reason.
func (h *Handler) cancelItem(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	itemID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	var req cancelItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.statuses.Cancel(r.Context(), id, itemID, req.Reason); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(order.StatusCancelled)})
}

// pathID parses the {id} path segment.
func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}
