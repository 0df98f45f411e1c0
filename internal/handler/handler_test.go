package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giftible/marketplace/internal/domain/auth"
	"github.com/giftible/marketplace/internal/domain/cart"
	"github.com/giftible/marketplace/internal/domain/coupon"
	"github.com/giftible/marketplace/internal/domain/finance"
	"github.com/giftible/marketplace/internal/domain/order"
	"github.com/giftible/marketplace/internal/domain/payment"
)

// --- Mock implementations ---

type mockCartRepo struct {
	lines []cart.Line
}

func (m *mockCartRepo) Items(context.Context, int64) ([]cart.Line, error) {
	return m.lines, nil
}

type mockCouponRepo struct {
	coupon *coupon.Coupon
	usage  *coupon.Usage
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	if m.coupon == nil || m.coupon.Code != code {
		return nil, coupon.ErrNotFound
	}
	return m.coupon, nil
}

func (m *mockCouponRepo) Create(_ context.Context, c *coupon.Coupon) error {
	c.ID = 1
	return nil
}

func (m *mockCouponRepo) List(context.Context) ([]coupon.Coupon, error) {
	if m.coupon == nil {
		return nil, nil
	}
	return []coupon.Coupon{*m.coupon}, nil
}

func (m *mockCouponRepo) LastUsage(context.Context, int64, int64) (*coupon.Usage, error) {
	return m.usage, nil
}

type mockGateway struct {
	valid bool
}

func (m *mockGateway) CreateOrder(context.Context, decimal.Decimal) (*payment.GatewayOrder, error) {
	return &payment.GatewayOrder{OrderID: "order_abc", AmountMinor: 102000, Currency: "INR"}, nil
}

func (m *mockGateway) VerifySignature(string, string, string) bool { return m.valid }

type mockPlacementStore struct {
	orderID int64
}

func (m *mockPlacementStore) Place(context.Context, *order.Placement) (int64, bool, error) {
	return m.orderID, true, nil
}

func (m *mockPlacementStore) FindByGatewayOrderID(context.Context, string) (int64, error) {
	return 0, order.ErrNotFound
}

type mockOrderRepo struct {
	item   *order.Item
	orders []order.Order
}

func (m *mockOrderRepo) GetItem(_ context.Context, itemID int64) (*order.Item, error) {
	if m.item == nil || m.item.ID != itemID {
		return nil, order.ErrNotFound
	}
	it := *m.item
	return &it, nil
}

func (m *mockOrderRepo) UpdateItemStatus(context.Context, int64, order.Status, order.Status, string) error {
	return nil
}

func (m *mockOrderRepo) ListByUser(context.Context, int64) ([]order.Order, error) {
	return m.orders, nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, orderID int64) (*order.Order, error) {
	for i := range m.orders {
		if m.orders[i].ID == orderID {
			return &m.orders[i], nil
		}
	}
	return nil, order.ErrNotFound
}

func (m *mockOrderRepo) ListItemsByNGO(context.Context, int64) ([]order.Item, error) {
	if m.item == nil {
		return nil, nil
	}
	return []order.Item{*m.item}, nil
}

// --- Test server ---

const testSecret = "test-signing-secret"

type fixture struct {
	carts   *mockCartRepo
	coupons *mockCouponRepo
	gateway *mockGateway
	orders  *mockOrderRepo
	store   *mockPlacementStore
	server  *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		carts:   &mockCartRepo{},
		coupons: &mockCouponRepo{},
		gateway: &mockGateway{valid: true},
		orders:  &mockOrderRepo{},
		store:   &mockPlacementStore{orderID: 42},
	}

	cartSvc := cart.NewService(f.carts)
	eligibility := coupon.NewEligibility(f.coupons)
	orderSvc := order.NewService(f.gateway, cartSvc, f.coupons, eligibility, f.store)
	statusSvc := order.NewStatusService(f.orders)
	financeSvc := finance.NewService(&stubSales{}, &stubPayouts{}, &stubDirectory{})

	h := New(cartSvc, f.coupons, eligibility, f.gateway, orderSvc, statusSvc, f.orders, financeSvc)
	authn := NewAuthenticator([]byte(testSecret))

	mux := http.NewServeMux()
	h.Routes(mux)

	f.server = httptest.NewServer(authn.Middleware(mux))
	t.Cleanup(f.server.Close)
	return f
}

type stubSales struct{}

func (stubSales) GrossSales(context.Context, finance.Scope) (decimal.Decimal, error) {
	return decimal.RequireFromString("1000.00"), nil
}

func (stubSales) CancelledSales(context.Context, finance.Scope) (decimal.Decimal, error) {
	return decimal.RequireFromString("100.00"), nil
}

func (stubSales) MonthlySales(context.Context, int64, int) ([]finance.MonthlyBucket, error) {
	return nil, nil
}

func (stubSales) ProductSalesInRange(context.Context, finance.RangeFilter) ([]finance.ProductSales, error) {
	return nil, nil
}

type stubPayouts struct{}

func (stubPayouts) CompletedTotal(context.Context, int64) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (stubPayouts) Create(_ context.Context, p *finance.Payout) error {
	p.ID = 1
	p.CreatedAt = time.Now()
	return nil
}

func (stubPayouts) Get(context.Context, int64) (*finance.Payout, error) {
	return nil, finance.ErrPayoutNotFound
}

func (stubPayouts) MarkProcessed(context.Context, int64, finance.PayoutStatus, time.Time) error {
	return nil
}

func (stubPayouts) ListPending(context.Context) ([]finance.Payout, error) { return nil, nil }

func (stubPayouts) History(context.Context, finance.HistoryFilter) ([]finance.Payout, error) {
	return nil, nil
}

func (stubPayouts) Locked(ctx context.Context, _ int64, fn func(context.Context) error) error {
	return fn(ctx)
}

type stubDirectory struct{}

func (stubDirectory) FindNGO(_ context.Context, id int64) (string, error) {
	if id != 2 {
		return "", finance.ErrNGONotFound
	}
	return "Hope Foundation", nil
}

func token(t *testing.T, userID string, role auth.Role) string {
	t.Helper()

	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: string(role),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (f *fixture) do(t *testing.T, method, path, bearer, body string) *http.Response {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// --- Tests ---

func TestAuth_MissingToken(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/orders", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_BadToken(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/orders", "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body := decodeBody[errorResponse](t, resp)
	assert.Equal(t, http.StatusUnauthorized, body.Code)
}

func TestAuth_WrongSigningKey(t *testing.T) {
	f := newFixture(t)

	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: "user",
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	resp := f.do(t, http.MethodGet, "/api/orders", forged, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCartSummary(t *testing.T) {
	f := newFixture(t)
	f.carts.lines = []cart.Line{
		{ProductID: 7, ProductName: "Scarf", NGOID: 2, UnitPrice: decimal.RequireFromString("450.00"), Quantity: 2, Available: true},
	}

	resp := f.do(t, http.MethodGet, "/api/checkout/cart-summary", token(t, "1", auth.RoleUser), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[cartSummaryResponse](t, resp)
	require.Len(t, body.Items, 1)
	assert.True(t, decimal.RequireFromString("900.00").Equal(body.Total))
	assert.True(t, body.Items[0].Available)
}

func TestApplyCoupon(t *testing.T) {
	f := newFixture(t)
	f.carts.lines = []cart.Line{
		{ProductID: 7, NGOID: 2, UnitPrice: decimal.RequireFromString("500.00"), Quantity: 1, Available: true},
	}
	f.coupons.coupon = &coupon.Coupon{
		ID:                 9,
		Code:               "SAVE20",
		DiscountPercentage: decimal.NewFromInt(20),
		MaxDiscount:        decimal.RequireFromString("200.00"),
		UsageLimit:         coupon.UsageOneTime,
		IsActive:           true,
	}

	resp := f.do(t, http.MethodPost, "/api/checkout/apply-coupon",
		token(t, "1", auth.RoleUser), `{"code":"SAVE20"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[couponPreviewResponse](t, resp)
	assert.True(t, decimal.RequireFromString("100.00").Equal(body.Discount))
	assert.True(t, decimal.RequireFromString("400.00").Equal(body.FinalTotal))
}

func TestApplyCoupon_Unknown(t *testing.T) {
	f := newFixture(t)
	f.carts.lines = []cart.Line{
		{ProductID: 7, NGOID: 2, UnitPrice: decimal.RequireFromString("500.00"), Quantity: 1, Available: true},
	}

	resp := f.do(t, http.MethodPost, "/api/checkout/apply-coupon",
		token(t, "1", auth.RoleUser), `{"code":"NOPE"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPlaceOrder_Endpoint(t *testing.T) {
	f := newFixture(t)
	f.carts.lines = []cart.Line{
		{ProductID: 7, NGOID: 2, UnitPrice: decimal.RequireFromString("500.00"), Quantity: 1, Available: true},
	}

	resp := f.do(t, http.MethodPost, "/api/orders", token(t, "1", auth.RoleUser),
		`{"address_id":1,"amount":"500.00","payment_id":"pay_1","gateway_order_id":"order_1","signature":"sig"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody[placeOrderResponse](t, resp)
	assert.Equal(t, int64(42), body.OrderID)
}

func TestPlaceOrder_BadSignature(t *testing.T) {
	f := newFixture(t)
	f.gateway.valid = false
	f.carts.lines = []cart.Line{
		{ProductID: 7, NGOID: 2, UnitPrice: decimal.RequireFromString("500.00"), Quantity: 1, Available: true},
	}

	resp := f.do(t, http.MethodPost, "/api/orders", token(t, "1", auth.RoleUser),
		`{"address_id":1,"amount":"500.00","payment_id":"pay_1","gateway_order_id":"order_1","signature":"bad"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPlaceOrder_ForbiddenForNGO(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/orders", token(t, "2", auth.RoleNGO),
		`{"address_id":1,"amount":"500.00","payment_id":"pay_1","gateway_order_id":"order_1","signature":"sig"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestGetOrder_ForeignOrderHidden(t *testing.T) {
	f := newFixture(t)
	f.orders.orders = []order.Order{{ID: 5, UserID: 99}}

	resp := f.do(t, http.MethodGet, "/api/orders/5", token(t, "1", auth.RoleUser), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdvanceItem_InvalidJump(t *testing.T) {
	f := newFixture(t)
	f.orders.item = &order.Item{ID: 10, NGOID: 2, OrderUserID: 1, Status: order.StatusPending}

	resp := f.do(t, http.MethodPatch, "/api/orders/items/10/status",
		token(t, "2", auth.RoleNGO), `{"status":"Delivered"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := decodeBody[errorResponse](t, resp)
	assert.Contains(t, body.Message, "invalid transition")
}

func TestCancelItem_ReasonRequired(t *testing.T) {
	f := newFixture(t)
	f.orders.item = &order.Item{ID: 10, NGOID: 2, OrderUserID: 1, Status: order.StatusPending}

	resp := f.do(t, http.MethodPost, "/api/orders/items/10/cancel",
		token(t, "1", auth.RoleUser), `{"reason":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestCreateCoupon_AdminOnly(t *testing.T) {
	f := newFixture(t)

	body := `{"code":"NEW10","discount_percentage":"10","max_discount":"100.00","usage_limit":"one_time","minimum_order_amount":"0"}`

	resp := f.do(t, http.MethodPost, "/api/checkout/coupons", token(t, "1", auth.RoleUser), body)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/checkout/coupons", token(t, "4", auth.RoleAdmin), body)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestTotalSales_AdminOnly(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/sales/total", token(t, "2", auth.RoleNGO), "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/sales/total", token(t, "4", auth.RoleAdmin), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[salesResponse](t, resp)
	assert.True(t, decimal.RequireFromString("900.00").Equal(body.NetSales))
}

func TestNGOSales_ForeignNGOHidden(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/sales/ngo/3", token(t, "2", auth.RoleNGO), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/sales/ngo/2", token(t, "2", auth.RoleNGO), "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestPayout_Endpoint(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/payouts", token(t, "2", auth.RoleNGO), `{"amount":"100.00"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody[payoutView](t, resp)
	assert.Equal(t, "Pending", body.Status)
	assert.Equal(t, "Hope Foundation", body.NGOName)
}

func TestRequestPayout_InsufficientBalance(t *testing.T) {
	f := newFixture(t)

	// Net sales in the stub is 900; asking for more must fail.
	resp := f.do(t, http.MethodPost, "/api/payouts", token(t, "2", auth.RoleNGO), `{"amount":"5000.00"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := decodeBody[errorResponse](t, resp)
	assert.Contains(t, body.Message, "exceeds pending balance")
}
