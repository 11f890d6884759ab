package order

import (
	"errors"
	"fmt"
	"strings"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusPacked    Status = "PACKED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

var (
	ErrUnknownStatus  = errors.New("unknown order status")
	ErrInvalidStatus  = errors.New("invalid order status transition")
	ErrTerminalStatus = errors.New("order is already in a final status")
	ErrCannotCancel   = errors.New("order can only be cancelled while pending or confirmed")
)

// validTransitions defines every status change the backend accepts.
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusPacked, StatusShipped, StatusCancelled},
	StatusPacked:    {StatusDelivered},
	StatusShipped:   {StatusDelivered},
	StatusDelivered: {}, // terminal state
	StatusCancelled: {}, // terminal state
}

// advanceTo is the seller's single "next step" per status.
var advanceTo = map[Status]Status{
	StatusPending:   StatusConfirmed,
	StatusConfirmed: StatusShipped,
	StatusPacked:    StatusDelivered,
	StatusShipped:   StatusDelivered,
}

func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s Status) String() string {
	return string(s)
}

// CanTransitionTo checks if an order in s may move to target.
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// ValidateTransition returns nil when from -> to is legal, otherwise the
// most specific domain error.
func ValidateTransition(from, to Status) error {
	switch {
	case !from.Valid():
		return fmt.Errorf("%w: %q", ErrUnknownStatus, from)
	case !to.Valid():
		return fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	case from.CanTransitionTo(to):
		return nil
	case to == StatusCancelled:
		return fmt.Errorf("%w: order is %s", ErrCannotCancel, from)
	case from.IsTerminal():
		return fmt.Errorf("%w: %s", ErrTerminalStatus, from)
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, from, to)
	}
}

// Advance returns the status a seller moves an order to next.
func Advance(s Status) (Status, error) {
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	next, ok := advanceTo[s]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTerminalStatus, s)
	}
	return next, nil
}

// Cancel returns StatusCancelled when s may be cancelled.
func Cancel(s Status) (Status, error) {
	if err := ValidateTransition(s, StatusCancelled); err != nil {
		return "", err
	}
	return StatusCancelled, nil
}

func CanAdvance(s Status) bool {
	_, err := Advance(s)
	return err == nil
}

func CanCancel(s Status) bool {
	return s.CanTransitionTo(StatusCancelled)
}

// Actions describes which seller buttons are enabled for an order.
type Actions struct {
	CanAdvance   bool   `json:"can_advance"`
	Next         Status `json:"next,omitempty"`
	AdvanceLabel string `json:"advance_label,omitempty"`
	CanCancel    bool   `json:"can_cancel"`
}

func ActionsFor(s Status) Actions {
	a := Actions{CanCancel: CanCancel(s)}
	if next, err := Advance(s); err == nil {
		a.CanAdvance = true
		a.Next = next
		a.AdvanceLabel = advanceLabels[next]
	}
	return a
}

var advanceLabels = map[Status]string{
	StatusConfirmed: "Confirm order",
	StatusShipped:   "Mark as shipped",
	StatusDelivered: "Mark as delivered",
}

// BuyerStatus is the buyer-facing vocabulary. PACKED and SHIPPED both read as on_the_way.
func BuyerStatus(s Status) string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusPacked, StatusShipped:
		return "on_the_way"
	case StatusDelivered:
		return "delivered"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// SellerLabel is the label shown in the seller's order management list.
func SellerLabel(s Status) string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusConfirmed:
		return "Confirmed"
	case StatusPacked, StatusShipped:
		return "Out for delivery"
	case StatusDelivered:
		return "Delivered"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// ParseStatus accepts the canonical names in any case and the buyer's on_the_way.
func ParseStatus(raw string) (Status, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if normalized == "ON_THE_WAY" {
		return StatusShipped, nil
	}
	s := Status(normalized)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	return s, nil
}
