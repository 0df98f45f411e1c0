// Package payment defines the contract consumed from the external payment
// gateway. Creating a payment order and verifying a payment signature are
// the only two capabilities the core depends on.
package payment

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount is returned for non-positive payment amounts.
	ErrInvalidAmount = errors.New("payment amount must be positive")
	// ErrVerificationFailed is returned when a payment signature does not
	// match. This is a hard rejection: no order may be created after it.
	ErrVerificationFailed = errors.New("payment verification failed")
)

// GatewayOrder is the gateway's handle for a payment to be collected.
type GatewayOrder struct {
	// OrderID is the gateway-issued external order id.
	OrderID string
	// AmountMinor is the charged amount in the smallest currency unit.
	AmountMinor int64
	// Currency is the ISO currency code the gateway charged in.
	Currency string
}

// Gateway is the external payment collaborator.
type Gateway interface {
	// CreateOrder registers a payment order for the given positive amount
	// (major units) and returns the gateway's handle for it.
	CreateOrder(ctx context.Context, amount decimal.Decimal) (*GatewayOrder, error)

	// VerifySignature reports whether signature authenticates the
	// (gatewayOrderID, paymentID) pair. A false result must fail closed.
	VerifySignature(gatewayOrderID, paymentID, signature string) bool
}
