package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/storefront-sync/internal/apperr"
	"github.com/example/storefront-sync/internal/auth"
	"github.com/example/storefront-sync/internal/devserver"
	"github.com/example/storefront-sync/internal/domain/address"
	"github.com/example/storefront-sync/internal/domain/order"
	"github.com/example/storefront-sync/internal/gateway"
	"github.com/example/storefront-sync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backend struct {
	url   string
	store *devserver.Store
	jwt   *auth.JWTService
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	store := devserver.NewStore()
	require.NoError(t, devserver.Seed(store))
	jwtService := auth.NewJWTService("gateway-test-secret-0123456789abcdef", time.Hour)
	srv := httptest.NewServer(devserver.NewServer(store, jwtService, logging.Discard()).Handler())
	t.Cleanup(srv.Close)
	return &backend{url: srv.URL, store: store, jwt: jwtService}
}

func (b *backend) client(t *testing.T, email, password string) *gateway.HTTPGateway {
	t.Helper()
	account, err := b.store.Authenticate(email, password)
	require.NoError(t, err)
	token, _, err := b.jwt.GenerateAccessToken(account.ID, account.Email, account.Role, account.ShopID)
	require.NoError(t, err)
	return gateway.NewHTTPGateway(b.url, token, 5*time.Second, logging.Discard())
}

func home() address.Fields {
	return address.Fields{FullName: "Asha Rao", Phone: "9000000001", Line1: "12 Lake Rd", City: "Pune", Country: "IN"}
}

// ============================================
// Against the dev backend
// ============================================

func TestHTTPGateway_Cart(t *testing.T) {
	b := newBackend(t)
	gw := b.client(t, devserver.BuyerEmail, devserver.BuyerPassword)
	ctx := context.Background()

	c, err := gw.GetCart(ctx)
	require.NoError(t, err)
	assert.True(t, c.ID.IsSome())
	assert.True(t, c.IsEmpty())

	res, err := gw.AddCartItem(ctx, "prod-1", 2)
	require.NoError(t, err)
	item, ok := res.Item.Get()
	require.True(t, ok)
	assert.False(t, res.Cart.IsSome())
	assert.Equal(t, "prod-1", item.ProductID)
	assert.Equal(t, 2, item.Quantity)

	c, err = gw.UpdateCartItem(ctx, item.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Summary.ItemCount)
	assert.Equal(t, "13.50", c.Summary.Total.StringFixed(2))
	assert.Equal(t, "4.50", c.Items[0].Product.Price().StringFixed(2))

	c, err = gw.RemoveCartItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	_, err = gw.AddCartItem(ctx, "prod-2", 1)
	require.NoError(t, err)
	require.NoError(t, gw.ClearCart(ctx))
	c, err = gw.GetCart(ctx)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestHTTPGateway_RejectionCarriesServerMessage(t *testing.T) {
	b := newBackend(t)
	gw := b.client(t, devserver.BuyerEmail, devserver.BuyerPassword)

	_, err := gw.AddCartItem(context.Background(), "prod-5", 50)

	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrRejected)
	assert.Equal(t, apperr.KindTransport, apperr.KindOf(err))
	assert.Contains(t, apperr.Message(err, "fallback"), "only 5 left")
}

func TestHTTPGateway_Addresses(t *testing.T) {
	b := newBackend(t)
	gw := b.client(t, devserver.BuyerEmail, devserver.BuyerPassword)
	ctx := context.Background()

	def, err := gw.GetDefaultAddress(ctx)
	require.NoError(t, err)
	assert.False(t, def.IsSome())

	list, err := gw.GetAddresses(ctx)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	first, err := gw.AddAddress(ctx, home())
	require.NoError(t, err)
	assert.True(t, first.IsDefault)

	f := home()
	f.Line1 = "4 Tech Park"
	second, err := gw.AddAddress(ctx, f)
	require.NoError(t, err)

	require.NoError(t, gw.SetDefaultAddress(ctx, second.ID))
	def, err = gw.GetDefaultAddress(ctx)
	require.NoError(t, err)
	got, ok := def.Get()
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID)

	require.NoError(t, gw.RemoveAddress(ctx, first.ID))
	list, err = gw.GetAddresses(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	err = gw.SetDefaultAddress(ctx, "missing")
	assert.ErrorIs(t, err, gateway.ErrRejected)
}

func TestHTTPGateway_OrderLifecycle(t *testing.T) {
	b := newBackend(t)
	buyer := b.client(t, devserver.BuyerEmail, devserver.BuyerPassword)
	seller := b.client(t, devserver.SellerEmail, devserver.SellerPassword)
	ctx := context.Background()

	addr, err := buyer.AddAddress(ctx, home())
	require.NoError(t, err)
	_, err = buyer.AddCartItem(ctx, "prod-3", 2)
	require.NoError(t, err)

	placed, err := buyer.PlaceOrder(ctx, gateway.PlaceOrderRequest{ShopID: "shop-1", PaymentMethod: order.PaymentCard, AddressID: addr.ID})
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, placed.Status)
	assert.Equal(t, "13.98", placed.TotalAmount.StringFixed(2))

	orders, err := buyer.GetOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, placed.ID, orders[0].ID)

	d, err := buyer.GetOrderDetails(ctx, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, addr.ID, d.Address.ID)
	require.Len(t, d.Items, 1)
	assert.Equal(t, "6.99", d.Items[0].PriceAtTime.StringFixed(2))

	shopOrders, err := seller.GetShopOrders(ctx, "shop-1")
	require.NoError(t, err)
	require.Len(t, shopOrders, 1)

	require.NoError(t, seller.UpdateOrderStatus(ctx, "shop-1", placed.ID, order.StatusConfirmed))

	err = seller.UpdateOrderStatus(ctx, "shop-1", placed.ID, order.StatusPending)
	assert.ErrorIs(t, err, gateway.ErrRejected)

	err = buyer.UpdateOrderStatus(ctx, "shop-1", placed.ID, order.StatusShipped)
	assert.ErrorIs(t, err, gateway.ErrRejected)

	d, err = buyer.GetOrderDetails(ctx, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, d.Order.Status)
}

// ============================================
// Wire behaviour
// ============================================

func TestHTTPGateway_SendsTokenAndRequestID(t *testing.T) {
	var authHeader, requestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		requestID = r.Header.Get(gateway.RequestIDHeader)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": []any{}})
	}))
	defer srv.Close()

	gw := gateway.NewHTTPGateway(srv.URL, "tok-123", time.Second, logging.Discard())
	_, err := gw.GetOrders(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", authHeader)
	assert.Len(t, requestID, 36)
}

func TestHTTPGateway_EnvelopeFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		wantMsg string
	}{
		{"success false on 200", http.StatusOK, `{"success":false,"message":"Cart locked"}`, gateway.ErrRejected, "Cart locked"},
		{"server error", http.StatusInternalServerError, `{"success":false,"message":"boom"}`, gateway.ErrRejected, "boom"},
		{"non-json error", http.StatusBadGateway, `<html>bad gateway</html>`, gateway.ErrRejected, apperr.DefaultMessage},
		{"missing data", http.StatusOK, `{"success":true,"data":null}`, gateway.ErrMissingData, apperr.DefaultMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			gw := gateway.NewHTTPGateway(srv.URL, "", time.Second, logging.Discard())
			_, err := gw.GetCart(context.Background())

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantMsg, apperr.Message(err, ""))
		})
	}
}

func TestHTTPGateway_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	gw := gateway.NewHTTPGateway(url, "", time.Second, logging.Discard())
	_, err := gw.GetCart(context.Background())

	assert.ErrorIs(t, err, gateway.ErrUnavailable)
}

func TestHTTPGateway_AddCartItemAcceptsWholeCart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{"cart_id":"c-1","user_id":"u-1","items":[
			{"item_id":"i-1","product_id":"p-1","quantity":2,"product":{"product_id":"p-1","selling_price":"2.50"}}
		],"summary":{"item_count":2,"total":"5"}}}`))
	}))
	defer srv.Close()

	gw := gateway.NewHTTPGateway(srv.URL, "", time.Second, logging.Discard())
	res, err := gw.AddCartItem(context.Background(), "p-1", 2)

	require.NoError(t, err)
	assert.False(t, res.Item.IsSome())
	c, ok := res.Cart.Get()
	require.True(t, ok)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "i-1", c.Items[0].ID)
}
