package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/example/storefront-sync/internal/auth"
	"github.com/example/storefront-sync/internal/domain/address"
	"github.com/example/storefront-sync/internal/domain/cart"
	"github.com/example/storefront-sync/internal/domain/order"
	"github.com/example/storefront-sync/internal/gateway/mocks"
	"github.com/example/storefront-sync/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, role, shopID string) (*session.Session, *mocks.MockGateway) {
	t.Helper()
	gw := mocks.NewMockGateway("user-1")
	gw.AddProduct(cart.Product{ID: "7", ShopID: "shop-1", Name: "Cold Brew", SellingPrice: mocks.Price(5), StockQuantity: 10})
	_, err := gw.AddAddress(context.Background(), address.Fields{FullName: "Asha Rao", Phone: "9000000001", Line1: "12 Lake Rd", City: "Pune"})
	require.NoError(t, err)

	token, _, err := auth.NewJWTService("cli-test-secret", time.Hour).GenerateAccessToken("user-1", "asha@example.com", role, shopID)
	require.NoError(t, err)
	s, err := session.New(gw, token)
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background()))
	return s, gw
}

func TestRun_AddAndPlace(t *testing.T) {
	s, gw := newTestSession(t, auth.RoleBuyer, "")
	ctx := context.Background()
	var out bytes.Buffer

	require.NoError(t, run(ctx, s, &out, []string{"add", "7", "2"}))
	assert.Contains(t, out.String(), "Cold Brew")
	assert.Contains(t, out.String(), "10.00")

	out.Reset()
	require.NoError(t, run(ctx, s, &out, []string{"place", "-", "cod"}))
	assert.Contains(t, out.String(), "Placed order order-")
	assert.Len(t, gw.Orders, 1)

	out.Reset()
	require.NoError(t, run(ctx, s, &out, []string{"cart"}))
	assert.Equal(t, "Cart is empty\n", out.String())
}

func TestRun_Errors(t *testing.T) {
	s, _ := newTestSession(t, auth.RoleBuyer, "")
	ctx := context.Background()
	var out bytes.Buffer

	assert.ErrorIs(t, run(ctx, s, &out, []string{"update", "item-1"}), errUsage)
	assert.Error(t, run(ctx, s, &out, []string{"add", "7", "two"}))
	assert.ErrorIs(t, run(ctx, s, &out, []string{"place", "-", "cheque"}), order.ErrInvalidPaymentMethod)
	assert.Error(t, run(ctx, s, &out, []string{"advance", "order-1"}))
	assert.Error(t, run(ctx, s, &out, []string{"dance"}))
}

func TestRun_SellerAdvance(t *testing.T) {
	s, gw := newTestSession(t, auth.RoleSeller, "shop-1")
	gw.ShopOrders["shop-1"] = []order.Order{{ID: "order-9", ShopID: "shop-1", Status: order.StatusPending}}
	_, err := s.Orders.FetchShopOrders(context.Background(), "shop-1")
	require.NoError(t, err)
	var out bytes.Buffer

	require.NoError(t, run(context.Background(), s, &out, []string{"advance", "order-9"}))

	assert.Equal(t, "Order order-9 is now Confirmed\n", out.String())
}
