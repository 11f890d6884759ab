package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePaymentMethod(t *testing.T) {
	m, err := ParsePaymentMethod("upi")
	require.NoError(t, err)
	assert.Equal(t, PaymentUPI, m)

	_, err = ParsePaymentMethod("paypal")
	assert.ErrorIs(t, err, ErrInvalidPaymentMethod)
}

func TestItem_LineTotalUsesPriceAtTime(t *testing.T) {
	item := Item{ProductID: "7", Quantity: 3, PriceAtTime: decimal.RequireFromString("19.99")}

	assert.Equal(t, "59.97", item.LineTotal().StringFixed(2))
}

func TestFind(t *testing.T) {
	orders := []Order{{ID: "o1"}, {ID: "o2", Status: StatusShipped}}

	got, ok := Find(orders, "o2")
	require.True(t, ok)
	assert.Equal(t, StatusShipped, got.Status)

	_, ok = Find(orders, "o3")
	assert.False(t, ok)
}
