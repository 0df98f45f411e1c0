// Package auth defines caller identity, roles, and the capability policy
// that gates every privileged operation in the marketplace core.
package auth

import "github.com/go-faster/errors"

// Role is the coarse account type carried in the access token.
type Role string

const (
	RoleUser  Role = "user"
	RoleNGO   Role = "ngo"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleNGO, RoleAdmin:
		return true
	}
	return false
}

// Identity is the resolved caller of a request.
type Identity struct {
	UserID int64
	Role   Role
}

// Capability names a single permitted action.
type Capability string

const (
	// CapPlaceOrder allows checking out the caller's own cart.
	CapPlaceOrder Capability = "order:place"
	// CapCancelOwnItem allows cancelling an item on the caller's own order.
	CapCancelOwnItem Capability = "order_item:cancel_own"
	// CapFulfillItem allows advancing or cancelling items sold by the caller's NGO.
	CapFulfillItem Capability = "order_item:fulfill"
	// CapViewSales allows reading sales aggregates.
	CapViewSales Capability = "sales:view"
	// CapRequestPayout allows requesting a payout for the caller's NGO balance.
	CapRequestPayout Capability = "payout:request"
	// CapProcessPayout allows approving or rejecting payout requests.
	CapProcessPayout Capability = "payout:process"
	// CapManageCoupons allows creating and listing coupons.
	CapManageCoupons Capability = "coupon:manage"
)

// ErrForbidden is returned when the caller's role does not grant the
// required capability. No state is changed on this error.
var ErrForbidden = errors.New("forbidden")

// Administrators do not appear for order-item capabilities on purpose:
// they manage NGOs, products, and payouts, never individual fulfillment.
var grants = map[Role]map[Capability]struct{}{
	RoleUser: {
		CapPlaceOrder:    {},
		CapCancelOwnItem: {},
	},
	RoleNGO: {
		CapFulfillItem:   {},
		CapViewSales:     {},
		CapRequestPayout: {},
	},
	RoleAdmin: {
		CapViewSales:     {},
		CapProcessPayout: {},
		CapManageCoupons: {},
	},
}

// Allow reports whether the identity holds the given capability.
func (id Identity) Allow(c Capability) bool {
	caps, ok := grants[id.Role]
	if !ok {
		return false
	}
	_, ok = caps[c]
	return ok
}

// Require returns ErrForbidden unless the identity holds the capability.
func (id Identity) Require(c Capability) error {
	if !id.Allow(c) {
		return ErrForbidden
	}
	return nil
}
