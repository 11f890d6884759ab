package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/storefront-sync/internal/domain/address"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCOD  PaymentMethod = "COD"
	PaymentCard PaymentMethod = "CARD"
	PaymentUPI  PaymentMethod = "UPI"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrInvalidPaymentMethod = errors.New("payment method must be one of COD, CARD, UPI")
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCOD, PaymentCard, PaymentUPI:
		return true
	}
	return false
}

func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToUpper(strings.TrimSpace(raw)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: got %q", ErrInvalidPaymentMethod, raw)
	}
	return m, nil
}

type Order struct {
	ID            string          `json:"order_id"`
	UserID        string          `json:"user_id,omitempty"`
	ShopID        string          `json:"shop_id"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Status        Status          `json:"order_status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	ItemCount     int             `json:"item_count"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Item is an order line. PriceAtTime is fixed when the order is created.
type Item struct {
	ID          string          `json:"order_item_id"`
	ProductID   string          `json:"product_id"`
	Name        string          `json:"name,omitempty"`
	Quantity    int             `json:"quantity"`
	PriceAtTime decimal.Decimal `json:"price_at_time"`
}

func (i Item) LineTotal() decimal.Decimal {
	return i.PriceAtTime.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Payment struct {
	Method PaymentMethod   `json:"method"`
	Status string          `json:"status"`
	Amount decimal.Decimal `json:"amount"`
}

// Details is the full order view returned by getOrderDetails.
type Details struct {
	Order   Order           `json:"order"`
	Items   []Item          `json:"items"`
	Address address.Address `json:"address"`
	Payment Payment         `json:"payment"`
}

// Find looks an order up by id.
func Find(orders []Order, id string) (Order, bool) {
	for _, o := range orders {
		if o.ID == id {
			return o, true
		}
	}
	return Order{}, false
}
