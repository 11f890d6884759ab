package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/storefront-sync/internal/apperr"
	"github.com/example/storefront-sync/internal/domain/address"
	"github.com/example/storefront-sync/internal/domain/cart"
	"github.com/example/storefront-sync/internal/domain/order"
	"github.com/example/storefront-sync/internal/opt"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader carries a per-call id so client and server logs line up.
const RequestIDHeader = "X-Request-ID"

// HTTPGateway talks to the storefront REST backend. Transport timeouts are
// owned here; the synchronizers never impose their own.
type HTTPGateway struct {
	baseURL string
	token   string
	client  *http.Client
	log     logrus.FieldLogger
}

func NewHTTPGateway(baseURL, token string, timeout time.Duration, logger logrus.FieldLogger) *HTTPGateway {
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		log:     logger.WithField("component", "gateway"),
	}
}

var _ Gateway = (*HTTPGateway)(nil)

// Cart

func (g *HTTPGateway) GetCart(ctx context.Context) (cart.Cart, error) {
	return required[cart.Cart](ctx, g, OpGetCart, http.MethodGet, "/cart", nil)
}

func (g *HTTPGateway) AddCartItem(ctx context.Context, productID string, quantity int) (AddCartItemResult, error) {
	body := map[string]any{"product_id": productID, "quantity": quantity}
	raw, err := required[json.RawMessage](ctx, g, OpAddCartItem, http.MethodPost, "/cart/items", body)
	if err != nil {
		return AddCartItemResult{}, err
	}
	return decodeAddResult(raw)
}

func (g *HTTPGateway) UpdateCartItem(ctx context.Context, itemID string, quantity int) (cart.Cart, error) {
	body := map[string]any{"quantity": quantity}
	return required[cart.Cart](ctx, g, OpUpdateCartItem, http.MethodPut, "/cart/items/"+url.PathEscape(itemID), body)
}

func (g *HTTPGateway) RemoveCartItem(ctx context.Context, itemID string) (cart.Cart, error) {
	return required[cart.Cart](ctx, g, OpRemoveCartItem, http.MethodDelete, "/cart/items/"+url.PathEscape(itemID), nil)
}

func (g *HTTPGateway) ClearCart(ctx context.Context) error {
	_, err := call[json.RawMessage](ctx, g, OpClearCart, http.MethodDelete, "/cart", nil)
	return err
}

// Addresses

func (g *HTTPGateway) GetAddresses(ctx context.Context) ([]address.Address, error) {
	list, err := call[[]address.Address](ctx, g, OpGetAddresses, http.MethodGet, "/addresses", nil)
	if err != nil {
		return nil, err
	}
	return list.OrElse([]address.Address{}), nil
}

func (g *HTTPGateway) GetDefaultAddress(ctx context.Context) (opt.Value[address.Address], error) {
	return call[address.Address](ctx, g, OpGetDefaultAddress, http.MethodGet, "/addresses/default", nil)
}

func (g *HTTPGateway) AddAddress(ctx context.Context, fields address.Fields) (address.Address, error) {
	return required[address.Address](ctx, g, OpAddAddress, http.MethodPost, "/addresses", fields)
}

func (g *HTTPGateway) SetDefaultAddress(ctx context.Context, addressID string) error {
	_, err := call[json.RawMessage](ctx, g, OpSetDefaultAddress, http.MethodPut,
		"/addresses/"+url.PathEscape(addressID)+"/default", nil)
	return err
}

func (g *HTTPGateway) RemoveAddress(ctx context.Context, addressID string) error {
	_, err := call[json.RawMessage](ctx, g, OpRemoveAddress, http.MethodDelete,
		"/addresses/"+url.PathEscape(addressID), nil)
	return err
}

// Orders

func (g *HTTPGateway) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (order.Order, error) {
	return required[order.Order](ctx, g, OpPlaceOrder, http.MethodPost, "/orders", req)
}

func (g *HTTPGateway) GetOrders(ctx context.Context) ([]order.Order, error) {
	list, err := call[[]order.Order](ctx, g, OpGetOrders, http.MethodGet, "/orders", nil)
	if err != nil {
		return nil, err
	}
	return list.OrElse([]order.Order{}), nil
}

func (g *HTTPGateway) GetOrderDetails(ctx context.Context, orderID string) (order.Details, error) {
	return required[order.Details](ctx, g, OpGetOrderDetails, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil)
}

func (g *HTTPGateway) GetShopOrders(ctx context.Context, shopID string) ([]order.Order, error) {
	list, err := call[[]order.Order](ctx, g, OpGetShopOrders, http.MethodGet,
		"/shops/"+url.PathEscape(shopID)+"/orders", nil)
	if err != nil {
		return nil, err
	}
	return list.OrElse([]order.Order{}), nil
}

func (g *HTTPGateway) UpdateOrderStatus(ctx context.Context, shopID, orderID string, status order.Status) error {
	path := "/shops/" + url.PathEscape(shopID) + "/orders/" + url.PathEscape(orderID) + "/status"
	_, err := call[json.RawMessage](ctx, g, OpUpdateOrderStatus, http.MethodPut, path,
		map[string]any{"status": status})
	return err
}

// required is call for operations whose success always carries data.
func required[T any](ctx context.Context, g *HTTPGateway, op, method, path string, body any) (T, error) {
	data, err := call[T](ctx, g, op, method, path, body)
	if err != nil {
		var zero T
		return zero, err
	}
	v, ok := data.Get()
	if !ok {
		var zero T
		return zero, apperr.Transport(op, "", ErrMissingData)
	}
	return v, nil
}

// call performs one request and unwraps the envelope. Every failure comes back
// as an apperr transport error carrying the server message when there is one.
func call[T any](ctx context.Context, g *HTTPGateway, op, method, path string, body any) (opt.Value[T], error) {
	requestID := uuid.New().String()
	log := g.log.WithFields(logrus.Fields{"op": op, "request_id": requestID})

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return opt.None[T](), apperr.Transport(op, "", fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return opt.None[T](), apperr.Transport(op, "", fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		log.WithError(err).Warn("request failed")
		return opt.None[T](), apperr.Transport(op, "", fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	defer resp.Body.Close()

	var env Envelope[T]
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)
	log = log.WithFields(logrus.Fields{"status": resp.StatusCode, "elapsed": time.Since(start)})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || (decodeErr == nil && !env.Success) {
		log.WithField("message", env.Message).Warn("request rejected")
		return opt.None[T](), apperr.Transport(op, env.Message,
			fmt.Errorf("%w (status %d)", ErrRejected, resp.StatusCode))
	}
	if decodeErr != nil {
		log.WithError(decodeErr).Warn("undecodable response")
		return opt.None[T](), apperr.Transport(op, "", fmt.Errorf("decode response: %w", decodeErr))
	}

	log.Debug("request completed")
	return env.Data, nil
}

// decodeAddResult tells a cart apart from a single line by its items field.
func decodeAddResult(raw json.RawMessage) (AddCartItemResult, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return AddCartItemResult{}, apperr.Transport(OpAddCartItem, "", fmt.Errorf("decode response: %w", err))
	}
	if _, isCart := probe["items"]; isCart {
		var c cart.Cart
		if err := json.Unmarshal(raw, &c); err != nil {
			return AddCartItemResult{}, apperr.Transport(OpAddCartItem, "", fmt.Errorf("decode cart: %w", err))
		}
		return AddCartItemResult{Cart: opt.Some(c)}, nil
	}
	var item cart.Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return AddCartItemResult{}, apperr.Transport(OpAddCartItem, "", fmt.Errorf("decode item: %w", err))
	}
	return AddCartItemResult{Item: opt.Some(item)}, nil
}
