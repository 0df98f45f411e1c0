package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/giftible/marketplace/internal/domain/finance"
)

type requestPayoutRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type payoutView struct {
	ID          int64           `json:"id"`
	NGOID       int64           `json:"ngo_id"`
	NGOName     string          `json:"ngo_name"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	CreatedAt   string          `json:"created_at"`
	ProcessedAt string          `json:"processed_at,omitempty"`
}

func payoutToView(p finance.Payout) payoutView {
	v := payoutView{
		ID:        p.ID,
		NGOID:     p.NGOID,
		NGOName:   p.NGOName,
		Amount:    p.Amount,
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
	if p.ProcessedAt != nil {
		v.ProcessedAt = p.ProcessedAt.Format(time.RFC3339)
	}
	return v
}

// requestPayout creates a Pending payout for the calling NGO's balance.
func (h *Handler) requestPayout(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	var req requestPayoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payout, err := h.finance.RequestPayout(r.Context(), id, req.Amount)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payoutToView(*payout))
}

// payoutHistory lists payouts in the requested window. NGOs see only
// their own; admins may filter with ?ngo_id= or see everything.
func (h *Handler) payoutHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	from, to, err := dateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payouts, err := h.finance.PayoutHistory(r.Context(), id, finance.HistoryFilter{
		From:  from,
		To:    to,
		NGOID: queryInt64(r, "ngo_id"),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payoutsToViews(payouts))
}

// pendingPayouts lists the admin review queue, oldest first.
func (h *Handler) pendingPayouts(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	payouts, err := h.finance.PendingPayouts(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payoutsToViews(payouts))
}

type processPayoutRequest struct {
	Approved bool `json:"approved"`
}

// processPayout completes or rejects a Pending payout.
func (h *Handler) processPayout(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	payoutID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payout id")
		return
	}

	var req processPayoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payout, err := h.finance.ProcessPayout(r.Context(), id, payoutID, req.Approved)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payoutToView(*payout))
}

func payoutsToViews(payouts []finance.Payout) []payoutView {
	views := make([]payoutView, len(payouts))
	for i, p := range payouts {
		views[i] = payoutToView(p)
	}
	return views
}
