package order

import (
	"context"
	"fmt"
	"strings"

	"github.com/giftible/marketplace/internal/domain/auth"
)

// Status is the fulfillment state of a single order item.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
	StatusCancelled  Status = "Cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// forward is the strict adjacency table for the happy path. Cancellation
// is not listed here: it is a side transition with its own role gating.
var forward = map[Status]Status{
	StatusPending:    StatusProcessing,
	StatusProcessing: StatusShipped,
	StatusShipped:    StatusDelivered,
}

// CanAdvanceTo reports whether s -> next is a legal single forward step.
// Jumps (Pending -> Delivered) are rejected.
func (s Status) CanAdvanceTo(next Status) bool {
	return forward[s] == next
}

// InvalidTransitionError rejects a transition outside the adjacency table
// or out of a terminal state.
type InvalidTransitionError struct {
	From, To Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// CancellationNotAllowedError rejects a cancellation the caller's role
// does not permit in the item's current state.
type CancellationNotAllowedError struct {
	Status Status
}

func (e *CancellationNotAllowedError) Error() string {
	return fmt.Sprintf("item in status %s can no longer be cancelled", e.Status)
}

// StatusService applies role-gated lifecycle transitions to order items.
type StatusService struct {
	orders Repository
}

// NewStatusService creates a StatusService over the given repository.
func NewStatusService(orders Repository) *StatusService {
	return &StatusService{orders: orders}
}

// Advance moves an item one step forward (Processing, Shipped, Delivered).
// Only the fulfilling NGO may advance, and only on its own items; items
// belonging to other NGOs are reported as ErrNotFound, not Forbidden, so
// their existence is not leaked.
func (s *StatusService) Advance(ctx context.Context, caller auth.Identity, itemID int64, next Status) error {
	if err := caller.Require(auth.CapFulfillItem); err != nil {
		return err
	}
	if !next.Valid() || next == StatusCancelled {
		return &InvalidTransitionError{To: next}
	}

	item, err := s.orders.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.NGOID != caller.UserID {
		return ErrNotFound
	}
	if item.Status.Terminal() || !item.Status.CanAdvanceTo(next) {
		return &InvalidTransitionError{From: item.Status, To: next}
	}

	return s.orders.UpdateItemStatus(ctx, itemID, item.Status, next, "")
}

// Cancel moves an item to Cancelled with the caller's reason, persisted
// verbatim and never overwritten.
//
// The owning customer may cancel while the item is Pending or Processing.
// The fulfilling NGO may cancel any of its items before Delivered.
// Administrators hold no cancellation capability in this subsystem.
func (s *StatusService) Cancel(ctx context.Context, caller auth.Identity, itemID int64, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired
	}

	item, err := s.orders.GetItem(ctx, itemID)
	if err != nil {
		return err
	}

	switch {
	case caller.Allow(auth.CapCancelOwnItem) && item.OrderUserID == caller.UserID:
		if item.Status != StatusPending && item.Status != StatusProcessing {
			return &CancellationNotAllowedError{Status: item.Status}
		}
	case caller.Allow(auth.CapFulfillItem) && item.NGOID == caller.UserID:
		if item.Status.Terminal() {
			return &CancellationNotAllowedError{Status: item.Status}
		}
	default:
		// Neither the owning customer nor the fulfilling NGO: hide the item.
		return ErrNotFound
	}

	return s.orders.UpdateItemStatus(ctx, itemID, item.Status, StatusCancelled, reason)
}

// DerivedStatus projects an aggregate display status from the order's
// items. It is computed on read and never stored, so item state remains
// the single source of truth.
func (o *Order) DerivedStatus() string {
	if len(o.Items) == 0 {
		return string(StatusPending)
	}

	var pending, processing, shipped, delivered, cancelled int
	for _, item := range o.Items {
		switch item.Status {
		case StatusPending:
			pending++
		case StatusProcessing:
			processing++
		case StatusShipped:
			shipped++
		case StatusDelivered:
			delivered++
		case StatusCancelled:
			cancelled++
		}
	}

	active := len(o.Items) - cancelled
	switch {
	case active == 0:
		return string(StatusCancelled)
	case delivered == active:
		return string(StatusDelivered)
	case delivered > 0 || shipped > 0:
		if shipped+delivered == active {
			return string(StatusShipped)
		}
		return "Partially Shipped"
	case processing > 0:
		return string(StatusProcessing)
	default:
		return string(StatusPending)
	}
}
