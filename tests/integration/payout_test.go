//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

// seedNGOBalance places the seeded cart as an order, giving NGO 2 a net
// sales balance of 450.00 (product 1 x1).
func seedNGOBalance(t *testing.T) {
	t.Helper()

	token := bearerToken(t, customerID, "user")
	resp := doPost(t, "/api/orders", placement("order_payout_seed", "", cartTotal), token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("seed placement status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
}

func TestRequestPayout_WithinBalance(t *testing.T) {
	resetCheckoutState(t)
	seedNGOBalance(t)
	token := bearerToken(t, ngoID, "ngo")

	resp := doPost(t, "/api/payouts", payoutRequest{Amount: "300.00"}, token)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	payout := decodeJSON[payoutResponse](t, resp)
	if payout.Status != "Pending" {
		t.Fatalf("status = %q, want Pending", payout.Status)
	}
	if !decimal.RequireFromString(payout.Amount).Equal(decimal.RequireFromString("300.00")) {
		t.Fatalf("amount = %s, want 300.00", payout.Amount)
	}
}

func TestRequestPayout_ExceedsBalance(t *testing.T) {
	resetCheckoutState(t)
	seedNGOBalance(t)
	token := bearerToken(t, ngoID, "ngo")

	resp := doPost(t, "/api/payouts", payoutRequest{Amount: "500.00"}, token)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
	if n := countRows(t, `SELECT count(*) FROM payouts`); n != 0 {
		t.Fatalf("payouts = %d, want 0", n)
	}
}

// Two pending payouts that individually fit the balance but together exceed
// it: concurrent approvals serialize on the NGO's advisory lock, so exactly
// one completes.
func TestProcessPayout_ConcurrentApprovalsRespectBalance(t *testing.T) {
	resetCheckoutState(t)
	seedNGOBalance(t)

	ngoToken := bearerToken(t, ngoID, "ngo")
	adminToken := bearerToken(t, adminID, "admin")

	payoutIDs := make([]int64, 2)
	for i := range payoutIDs {
		resp := doPost(t, "/api/payouts", payoutRequest{Amount: "300.00"}, ngoToken)
		if resp.StatusCode != http.StatusCreated {
			resp.Body.Close()
			t.Fatalf("payout request %d status = %d, want %d", i, resp.StatusCode, http.StatusCreated)
		}
		payoutIDs[i] = decodeJSON[payoutResponse](t, resp).ID
		resp.Body.Close()
	}

	statuses := make([]int, len(payoutIDs))
	var wg sync.WaitGroup
	for i, payoutID := range payoutIDs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			path := fmt.Sprintf("/api/payouts/%d/process", payoutID)
			resp, err := post(path, processPayoutRequest{Approved: true}, adminToken)
			if err != nil {
				return
			}
			defer resp.Body.Close()
			statuses[i] = resp.StatusCode
		}()
	}
	wg.Wait()

	approved := 0
	for _, status := range statuses {
		if status == http.StatusOK {
			approved++
		}
	}
	if approved != 1 {
		t.Fatalf("approvals = %d (statuses %v), want exactly 1", approved, statuses)
	}

	if n := countRows(t, `SELECT count(*) FROM payouts WHERE status = 'Completed'`); n != 1 {
		t.Fatalf("completed payouts = %d, want 1", n)
	}
	if n := countRows(t, `SELECT count(*) FROM payouts WHERE status = 'Pending'`); n != 1 {
		t.Fatalf("pending payouts = %d, want 1", n)
	}
}
