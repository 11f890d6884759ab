// Package gateway defines the remote operations the synchronizers consume
// and a REST implementation of them.
package gateway

import (
	"context"
	"errors"

	"github.com/example/storefront-sync/internal/domain/address"
	"github.com/example/storefront-sync/internal/domain/cart"
	"github.com/example/storefront-sync/internal/domain/order"
	"github.com/example/storefront-sync/internal/opt"
)

// Operation names, used in errors and logs.
const (
	OpGetCart           = "getCart"
	OpAddCartItem       = "addCartItem"
	OpUpdateCartItem    = "updateCartItem"
	OpRemoveCartItem    = "removeCartItem"
	OpClearCart         = "clearCart"
	OpGetAddresses      = "getAddresses"
	OpGetDefaultAddress = "getDefaultAddress"
	OpAddAddress        = "addAddress"
	OpSetDefaultAddress = "setDefaultAddress"
	OpRemoveAddress     = "removeAddress"
	OpPlaceOrder        = "placeOrder"
	OpGetOrders         = "getOrders"
	OpGetOrderDetails   = "getOrderDetails"
	OpGetShopOrders     = "getShopOrders"
	OpUpdateOrderStatus = "updateOrderStatus"
)

var (
	ErrUnavailable = errors.New("gateway unavailable")
	ErrRejected    = errors.New("request rejected by server")
	ErrMissingData = errors.New("response carried no data")
)

type CartGateway interface {
	GetCart(ctx context.Context) (cart.Cart, error)
	AddCartItem(ctx context.Context, productID string, quantity int) (AddCartItemResult, error)
	UpdateCartItem(ctx context.Context, itemID string, quantity int) (cart.Cart, error)
	RemoveCartItem(ctx context.Context, itemID string) (cart.Cart, error)
	ClearCart(ctx context.Context) error
}

type AddressGateway interface {
	GetAddresses(ctx context.Context) ([]address.Address, error)
	GetDefaultAddress(ctx context.Context) (opt.Value[address.Address], error)
	AddAddress(ctx context.Context, fields address.Fields) (address.Address, error)
	SetDefaultAddress(ctx context.Context, addressID string) error
	RemoveAddress(ctx context.Context, addressID string) error
}

type OrderGateway interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (order.Order, error)
	GetOrders(ctx context.Context) ([]order.Order, error)
	GetOrderDetails(ctx context.Context, orderID string) (order.Details, error)
	GetShopOrders(ctx context.Context, shopID string) ([]order.Order, error)
	UpdateOrderStatus(ctx context.Context, shopID, orderID string, status order.Status) error
}

// Gateway is the full remote contract.
type Gateway interface {
	CartGateway
	AddressGateway
	OrderGateway
}

// AddCartItemResult is either the created line or the whole updated cart,
// depending on what the server chose to return.
type AddCartItemResult struct {
	Item opt.Value[cart.Item]
	Cart opt.Value[cart.Cart]
}

type PlaceOrderRequest struct {
	ShopID        string              `json:"shop_id"`
	PaymentMethod order.PaymentMethod `json:"payment_method"`
	AddressID     string              `json:"address_id,omitempty"`
}

// Envelope is the wire shape of every response.
type Envelope[T any] struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Data    opt.Value[T] `json:"data"`
}
