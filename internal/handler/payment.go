package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/giftible/marketplace/internal/domain/payment"
)

type createPaymentOrderRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type paymentOrderResponse struct {
	OrderID     string `json:"order_id"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// createPaymentOrder registers a payment order with the gateway for the
// given amount. The returned order id is later echoed back at checkout.
func (h *Handler) createPaymentOrder(w http.ResponseWriter, r *http.Request) {
	if _, ok := caller(w, r); !ok {
		return
	}

	var req createPaymentOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Amount.IsPositive() {
		respondError(w, r, payment.ErrInvalidAmount)
		return
	}

	gw, err := h.gateway.CreateOrder(r.Context(), req.Amount)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, paymentOrderResponse{
		OrderID:     gw.OrderID,
		AmountMinor: gw.AmountMinor,
		Currency:    gw.Currency,
	})
}

type verifyPaymentRequest struct {
	GatewayOrderID string `json:"gateway_order_id"`
	PaymentID      string `json:"payment_id"`
	Signature      string `json:"signature"`
}

// verifyPayment checks a payment signature without placing an order.
func (h *Handler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	if _, ok := caller(w, r); !ok {
		return
	}

	var req verifyPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.GatewayOrderID == "" || req.PaymentID == "" || req.Signature == "" {
		writeError(w, http.StatusBadRequest, "gateway_order_id, payment_id, and signature are required")
		return
	}

	if !h.gateway.VerifySignature(req.GatewayOrderID, req.PaymentID, req.Signature) {
		respondError(w, r, payment.ErrVerificationFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}
