//go:build integration

package integration

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"
)

// The seeded cart totals 1050.00: product 1 (450.00) x1 + product 3
// (300.00) x2. FESTIVE25 caps at 250.00, leaving 800.00 to charge.
const (
	cartTotal     = "1050.00"
	festiveTotal  = "800.00"
	festiveCoupon = "FESTIVE25"
)

func placement(gatewayOrderID, coupon, amount string) placeOrderRequest {
	paymentID := "pay_" + gatewayOrderID
	return placeOrderRequest{
		AddressID:      addressID,
		CouponCode:     coupon,
		Amount:         amount,
		PaymentID:      paymentID,
		GatewayOrderID: gatewayOrderID,
		Signature:      paymentSignature(gatewayOrderID, paymentID),
	}
}

func TestPlaceOrder_CreatesOrderAndClearsCart(t *testing.T) {
	resetCheckoutState(t)
	token := bearerToken(t, customerID, "user")

	resp := doPost(t, "/api/orders", placement("order_basic", "", cartTotal), token)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	placed := decodeJSON[placeOrderResponse](t, resp)
	if placed.OrderID <= 0 {
		t.Fatalf("order id = %d, want positive", placed.OrderID)
	}
	if placed.AlreadyPlaced {
		t.Fatal("already_placed = true on first placement")
	}

	if n := countRows(t, `SELECT count(*) FROM order_items WHERE order_id = $1`, placed.OrderID); n != 2 {
		t.Fatalf("order items = %d, want 2", n)
	}
	if n := countRows(t,
		`SELECT count(*) FROM cart_items
		 WHERE cart_id = (SELECT id FROM carts WHERE user_id = $1)`, customerID); n != 0 {
		t.Fatalf("cart items after placement = %d, want 0", n)
	}
}

// A client that lost the first response retries with the same gateway order
// id. The cart is already consumed by then; the retry must still resolve to
// the original order instead of failing on the empty cart.
func TestPlaceOrder_RetryAfterSuccessReturnsSameOrder(t *testing.T) {
	resetCheckoutState(t)
	token := bearerToken(t, customerID, "user")
	body := placement("order_retry", "", cartTotal)

	first := doPost(t, "/api/orders", body, token)
	defer first.Body.Close()
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("first placement status = %d, want %d", first.StatusCode, http.StatusCreated)
	}
	placed := decodeJSON[placeOrderResponse](t, first)

	retry := doPost(t, "/api/orders", body, token)
	defer retry.Body.Close()
	if retry.StatusCode != http.StatusOK {
		t.Fatalf("retry status = %d, want %d", retry.StatusCode, http.StatusOK)
	}
	recovered := decodeJSON[placeOrderResponse](t, retry)
	if !recovered.AlreadyPlaced {
		t.Fatal("retry already_placed = false, want true")
	}
	if recovered.OrderID != placed.OrderID {
		t.Fatalf("retry order id = %d, want %d", recovered.OrderID, placed.OrderID)
	}

	if n := countRows(t, `SELECT count(*) FROM orders`); n != 1 {
		t.Fatalf("orders after retry = %d, want 1", n)
	}
}

// Two racing placements both carrying a one_time coupon: the partial unique
// index on coupon_usages must let exactly one through.
func TestPlaceOrder_OneTimeCouponRedeemedOnce(t *testing.T) {
	resetCheckoutState(t)
	token := bearerToken(t, customerID, "user")

	bodies := []placeOrderRequest{
		placement("order_race_a", festiveCoupon, festiveTotal),
		placement("order_race_b", festiveCoupon, festiveTotal),
	}

	statuses := make([]int, len(bodies))
	var wg sync.WaitGroup
	for i, body := range bodies {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := post("/api/orders", body, token)
			if err != nil {
				return
			}
			defer resp.Body.Close()
			statuses[i] = resp.StatusCode
		}()
	}
	wg.Wait()

	created := 0
	for _, status := range statuses {
		if status == http.StatusCreated {
			created++
		}
	}
	if created != 1 {
		t.Fatalf("placements created = %d (statuses %v), want exactly 1", created, statuses)
	}

	if n := countRows(t, `SELECT count(*) FROM orders`); n != 1 {
		t.Fatalf("orders = %d, want 1", n)
	}
	if n := countRows(t,
		`SELECT count(*) FROM coupon_usages cu
		 JOIN coupons c ON c.id = cu.coupon_id
		 WHERE c.code = $1 AND cu.user_id = $2`, festiveCoupon, customerID); n != 1 {
		t.Fatalf("coupon usages = %d, want 1", n)
	}
}

// A cart line whose quantity changes while the placement is committing
// belongs to the next order, not this one. Placement clears only the
// (product, quantity) pairs it actually charged for.
func TestPlaceOrder_KeepsLineBumpedDuringPlacement(t *testing.T) {
	resetCheckoutState(t)
	ctx := context.Background()
	token := bearerToken(t, customerID, "user")

	// Hold a row lock on the product-1 line so the placement blocks after
	// it has taken its cart snapshot.
	tx, err := db.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`SELECT id FROM cart_items
		 WHERE product_id = 1 AND cart_id = (SELECT id FROM carts WHERE user_id = $1)
		 FOR UPDATE`, customerID); err != nil {
		t.Fatalf("lock cart line: %v", err)
	}

	done := make(chan int, 1)
	go func() {
		resp, err := post("/api/orders", placement("order_bump", "", cartTotal), token)
		if err != nil {
			done <- 0
			return
		}
		defer resp.Body.Close()
		done <- resp.StatusCode
	}()

	// Wait until the placement transaction is parked on the row lock.
	deadline := time.Now().Add(10 * time.Second)
	for {
		n := countRows(t,
			`SELECT count(*) FROM pg_stat_activity
			 WHERE wait_event_type = 'Lock' AND query ILIKE '%FOR UPDATE%'
			   AND pid <> pg_backend_pid()`)
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("placement never blocked on the cart lock")
		}
		time.Sleep(50 * time.Millisecond)
	}

	// Bump the quantity and release the lock; the placement resumes with
	// its quantity-1 snapshot.
	if _, err := tx.Exec(ctx,
		`UPDATE cart_items SET quantity = 3
		 WHERE product_id = 1 AND cart_id = (SELECT id FROM carts WHERE user_id = $1)`,
		customerID); err != nil {
		t.Fatalf("bump quantity: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if status := <-done; status != http.StatusCreated {
		t.Fatalf("placement status = %d, want %d", status, http.StatusCreated)
	}

	// Product 3 (unchanged) is cleared; the bumped product-1 line survives
	// with its new quantity.
	var quantity int
	err = db.QueryRow(ctx,
		`SELECT quantity FROM cart_items
		 WHERE product_id = 1 AND cart_id = (SELECT id FROM carts WHERE user_id = $1)`,
		customerID).Scan(&quantity)
	if err != nil {
		t.Fatalf("bumped line missing after placement: %v", err)
	}
	if quantity != 3 {
		t.Fatalf("surviving quantity = %d, want 3", quantity)
	}
	if n := countRows(t,
		`SELECT count(*) FROM cart_items
		 WHERE cart_id = (SELECT id FROM carts WHERE user_id = $1)`, customerID); n != 1 {
		t.Fatalf("cart items after placement = %d, want 1", n)
	}
}

func TestPlaceOrder_RejectsForeignAddress(t *testing.T) {
	resetCheckoutState(t)
	ctx := context.Background()
	token := bearerToken(t, customerID, "user")

	var foreignAddressID int64
	err := db.QueryRow(ctx,
		`INSERT INTO addresses (user_id, full_name, address_line, city, state, pincode)
		 VALUES ($1, 'Someone Else', '12 Other St', 'Pune', 'MH', '411001')
		 RETURNING id`, adminID).Scan(&foreignAddressID)
	if err != nil {
		t.Fatalf("insert address: %v", err)
	}
	defer db.Exec(ctx, `DELETE FROM addresses WHERE id = $1`, foreignAddressID)

	body := placement("order_foreign_addr", "", cartTotal)
	body.AddressID = foreignAddressID

	resp := doPost(t, "/api/orders", body, token)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
	if n := countRows(t, `SELECT count(*) FROM orders`); n != 0 {
		t.Fatalf("orders = %d, want 0", n)
	}
}
