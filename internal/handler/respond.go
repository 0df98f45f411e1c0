package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/giftible/marketplace/internal/domain/auth"
	"github.com/giftible/marketplace/internal/domain/cart"
	"github.com/giftible/marketplace/internal/domain/coupon"
	"github.com/giftible/marketplace/internal/domain/finance"
	"github.com/giftible/marketplace/internal/domain/order"
	"github.com/giftible/marketplace/internal/domain/payment"
)

// errorResponse is the uniform error body.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Code: status, Message: message})
}

// respondError maps a domain error to an HTTP status and writes the error
// body. Unmapped errors become opaque 500s; the cause is logged, not leaked.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	if status, msg := mapError(err); status != 0 {
		writeError(w, status, msg)
		return
	}
	zctx.From(r.Context()).Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// mapError returns the HTTP status for a known domain error, or 0 when the
// error is not a client-facing one.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, err.Error()

	// Not-found covers genuinely missing rows and rows the caller may not
	// see; the two are indistinguishable on the wire.
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, finance.ErrPayoutNotFound),
		errors.Is(err, finance.ErrNGONotFound):
		return http.StatusNotFound, err.Error()

	case errors.Is(err, coupon.ErrAlreadyUsed),
		errors.Is(err, coupon.ErrCodeExists),
		errors.Is(err, order.ErrConflict),
		errors.Is(err, finance.ErrAlreadyProcessed):
		return http.StatusConflict, err.Error()

	case errors.Is(err, payment.ErrVerificationFailed):
		return http.StatusBadRequest, err.Error()

	case errors.Is(err, cart.ErrEmptyCart),
		errors.Is(err, order.ErrReasonRequired),
		errors.Is(err, order.ErrInvalidAddress),
		errors.Is(err, order.ErrAddressNotOwned),
		errors.Is(err, order.ErrMissingPayment),
		errors.Is(err, order.ErrInvalidAmount),
		errors.Is(err, payment.ErrInvalidAmount),
		errors.Is(err, finance.ErrInvalidPayoutAmount):
		return http.StatusUnprocessableEntity, err.Error()
	}

	var (
		rateLimited *coupon.RateLimitedError
		minAmount   *coupon.MinimumAmountError
		productGone *order.ProductNotFoundError
		badFlow     *order.InvalidTransitionError
		noCancel    *order.CancellationNotAllowedError
		lowBalance  *finance.InsufficientBalanceError
	)
	switch {
	case errors.As(err, &rateLimited):
		return http.StatusConflict, rateLimited.Error()
	case errors.As(err, &minAmount):
		return http.StatusUnprocessableEntity, minAmount.Error()
	case errors.As(err, &productGone):
		return http.StatusUnprocessableEntity, productGone.Error()
	case errors.As(err, &badFlow):
		return http.StatusUnprocessableEntity, badFlow.Error()
	case errors.As(err, &noCancel):
		return http.StatusUnprocessableEntity, noCancel.Error()
	case errors.As(err, &lowBalance):
		return http.StatusUnprocessableEntity, lowBalance.Error()
	}

	return 0, ""
}

// decodeJSON parses the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	return nil
}
