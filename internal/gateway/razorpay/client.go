// Package razorpay implements the payment.Gateway contract against the
// Razorpay Orders API. Signature verification is local: HMAC-SHA256 over
// "order_id|payment_id" keyed with the API secret.
package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/giftible/marketplace/internal/domain/payment"
)

const defaultBaseURL = "https://api.razorpay.com/v1"

var _ payment.Gateway = (*Client)(nil)

// Client talks to the Razorpay REST API using key id/secret basic auth.
type Client struct {
	keyID     string
	keySecret string
	baseURL   string
	http      *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL, used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a Razorpay client.
func New(keyID, keySecret string, opts ...Option) *Client {
	c := &Client{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   defaultBaseURL,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type createOrderRequest struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Receipt        string `json:"receipt"`
	PaymentCapture int    `json:"payment_capture"`
}

type createOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// CreateOrder registers a payment order with Razorpay. The amount is given
// in major units and converted to the smallest currency unit (paise).
func (c *Client) CreateOrder(ctx context.Context, amount decimal.Decimal) (*payment.GatewayOrder, error) {
	if !amount.IsPositive() {
		return nil, payment.ErrInvalidAmount
	}

	body := createOrderRequest{
		Amount:         amount.Mul(decimal.NewFromInt(100)).IntPart(),
		Currency:       "INR",
		Receipt:        "rcpt_" + uuid.New().String(),
		PaymentCapture: 1,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "encode order request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "build order request")
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call gateway")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("gateway order creation failed: status %d: %s", resp.StatusCode, snippet)
	}

	var out createOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode gateway response")
	}

	return &payment.GatewayOrder{
		OrderID:     out.ID,
		AmountMinor: out.Amount,
		Currency:    out.Currency,
	}, nil
}

// VerifySignature authenticates a completed payment. The expected signature
// is HMAC-SHA256("<order_id>|<payment_id>", keySecret) hex-encoded; the
// comparison is constant-time.
func (c *Client) VerifySignature(gatewayOrderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.keySecret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
