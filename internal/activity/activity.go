// Package activity publishes what happened in a session (orders placed,
// status changes, rolled-back cart mutations) for analytics. It is
// write-only telemetry: nothing in the engine reads these events back.
package activity

import (
	"context"
	"time"

	"github.com/example/storefront-sync/internal/domain/order"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	EventOrderPlaced            = "OrderPlaced"
	EventOrderStatusChanged     = "OrderStatusChanged"
	EventCartMutationRolledBack = "CartMutationRolledBack"
)

type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	UserID     string    `json:"user_id"`
	Data       any       `json:"data"`
	OccurredAt time.Time `json:"occurred_at"`
}

type OrderPlaced struct {
	OrderID       string              `json:"order_id"`
	ShopID        string              `json:"shop_id"`
	PaymentMethod order.PaymentMethod `json:"payment_method"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
	ItemCount     int                 `json:"item_count"`
}

type OrderStatusChanged struct {
	OrderID string       `json:"order_id"`
	ShopID  string       `json:"shop_id"`
	From    order.Status `json:"from"`
	To      order.Status `json:"to"`
}

type CartMutationRolledBack struct {
	Operation string `json:"operation"`
	Reason    string `json:"reason"`
}

// NewEvent stamps an event with an id and the current time. key groups
// related events (order id, cart owner) on the wire.
func NewEvent(eventType, key, userID string, data any) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		Key:        key,
		UserID:     userID,
		Data:       data,
		OccurredAt: time.Now(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Emit publishes e and only logs a failure; activity never changes the
// outcome of the operation that produced it.
func Emit(ctx context.Context, p Publisher, log logrus.FieldLogger, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		log.WithError(err).WithField("event", e.Type).Warn("Failed to publish activity event")
	}
}
