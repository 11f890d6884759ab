// Package ordersync places orders from the current cart and keeps the buyer
// and seller order views.
package ordersync

import (
	"context"
	"errors"

	"github.com/example/storefront-sync/internal/activity"
	"github.com/example/storefront-sync/internal/apperr"
	"github.com/example/storefront-sync/internal/cartsync"
	"github.com/example/storefront-sync/internal/domain/address"
	"github.com/example/storefront-sync/internal/domain/cart"
	"github.com/example/storefront-sync/internal/domain/order"
	"github.com/example/storefront-sync/internal/gateway"
	"github.com/example/storefront-sync/internal/logging"
	"github.com/example/storefront-sync/internal/opt"
	"github.com/example/storefront-sync/internal/optimistic"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoAddress     = errors.New("select a delivery address before placing the order")
	ErrEmptyCart     = errors.New("cart is empty")
	ErrMultiShopCart = errors.New("cart holds products from more than one shop")
	ErrShopMismatch  = errors.New("cart items do not belong to the requested shop")
	ErrNoShop        = errors.New("cannot determine the shop for this cart")
)

const (
	msgPlaceFailed   = "Could not place your order"
	msgOrdersFailed  = "Could not load your orders"
	msgDetailsFailed = "Could not load the order"
	msgShopFailed    = "Could not load shop orders"
	msgStatusFailed  = "Could not update the order status"
)

// Carts is the part of the cart synchronizer the orchestrator reads and refreshes.
type Carts interface {
	Cart() cart.Cart
	Fetch(ctx context.Context, opts ...cartsync.FetchOption) (cart.Cart, error)
}

// Addresses is the part of the address synchronizer the orchestrator reads and refreshes.
type Addresses interface {
	Selected() opt.Value[address.Address]
	Fetch(ctx context.Context) error
}

type State struct {
	Orders     []order.Order
	ShopOrders []order.Order
	Current    opt.Value[order.Details]
	LastPlaced opt.Value[order.Order]
	Loading    bool
	Err        string

	inFlight int
}

// PlaceOrderResult is a placed order plus any follow-up refresh that failed.
// Warnings never mean the order itself failed.
type PlaceOrderResult struct {
	Order    order.Order
	Warnings []error
}

type Orchestrator struct {
	gw        gateway.OrderGateway
	carts     Carts
	addresses Addresses
	userID    string
	log       logrus.FieldLogger
	publisher activity.Publisher

	state *optimistic.Store[State]
}

type Option func(*Orchestrator)

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Orchestrator) { o.log = l }
}

func WithPublisher(p activity.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func New(gw gateway.OrderGateway, carts Carts, addresses Addresses, userID string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gw:        gw,
		carts:     carts,
		addresses: addresses,
		userID:    userID,
		log:       logging.Discard(),
		publisher: activity.Nop{},
		state:     optimistic.NewStore(State{Orders: []order.Order{}, ShopOrders: []order.Order{}}),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.WithFields(logrus.Fields{"component": "order", "user_id": userID})
	return o
}

func (o *Orchestrator) State() State {
	return o.state.Load()
}

func (o *Orchestrator) Subscribe(fn func(State)) (cancel func()) {
	return o.state.Subscribe(fn)
}

// PlaceOrder turns the current cart into an order for shopID. An empty
// shopID means "the shop of the cart's products".
func (o *Orchestrator) PlaceOrder(ctx context.Context, shopID string, method order.PaymentMethod) (*PlaceOrderResult, error) {
	const op = "order.place"

	req, err := o.checkout(shopID, method)
	if err != nil {
		return nil, apperr.Validation(op, err)
	}

	o.track(1)
	placed, err := o.gw.PlaceOrder(ctx, req)
	o.track(-1)
	if err != nil {
		o.log.WithError(err).WithField("shop_id", req.ShopID).Warn("Failed to place order")
		o.setErr(apperr.Message(err, msgPlaceFailed))
		return nil, err
	}

	o.state.Update(func(st State) State {
		st.LastPlaced = opt.Some(placed)
		st.Orders = append([]order.Order{placed}, st.Orders...)
		st.Err = ""
		return st
	})
	o.log.WithFields(logrus.Fields{
		"order_id": placed.ID,
		"shop_id":  placed.ShopID,
		"total":    placed.TotalAmount.StringFixed(2),
	}).Info("Order placed")
	activity.Emit(ctx, o.publisher, o.log, activity.NewEvent(
		activity.EventOrderPlaced, placed.ID, o.userID,
		activity.OrderPlaced{
			OrderID:       placed.ID,
			ShopID:        placed.ShopID,
			PaymentMethod: placed.PaymentMethod,
			TotalAmount:   placed.TotalAmount,
			ItemCount:     placed.ItemCount,
		},
	))

	result := &PlaceOrderResult{Order: placed}
	if _, err := o.carts.Fetch(ctx); err != nil {
		o.log.WithError(err).Warn("Cart refresh after order failed")
		result.Warnings = append(result.Warnings, apperr.Refresh(op, err))
	}
	if err := o.addresses.Fetch(ctx); err != nil {
		o.log.WithError(err).Warn("Address refresh after order failed")
		result.Warnings = append(result.Warnings, apperr.Refresh(op, err))
	}
	return result, nil
}

func (o *Orchestrator) checkout(shopID string, method order.PaymentMethod) (gateway.PlaceOrderRequest, error) {
	deliverTo, ok := o.addresses.Selected().Get()
	if !ok {
		return gateway.PlaceOrderRequest{}, ErrNoAddress
	}
	c := o.carts.Cart()
	if c.IsEmpty() {
		return gateway.PlaceOrderRequest{}, ErrEmptyCart
	}
	if !method.Valid() {
		return gateway.PlaceOrderRequest{}, order.ErrInvalidPaymentMethod
	}

	shops := c.ShopIDs()
	switch {
	case len(shops) > 1:
		return gateway.PlaceOrderRequest{}, ErrMultiShopCart
	case len(shops) == 1 && shopID == "":
		shopID = shops[0]
	case len(shops) == 1 && shopID != shops[0]:
		return gateway.PlaceOrderRequest{}, ErrShopMismatch
	case shopID == "":
		return gateway.PlaceOrderRequest{}, ErrNoShop
	}

	return gateway.PlaceOrderRequest{
		ShopID:        shopID,
		PaymentMethod: method,
		AddressID:     deliverTo.ID,
	}, nil
}

// FetchOrders loads the buyer's order history. A failure keeps the previous list.
func (o *Orchestrator) FetchOrders(ctx context.Context) ([]order.Order, error) {
	o.track(1)
	defer o.track(-1)

	orders, err := o.gw.GetOrders(ctx)
	if err != nil {
		o.log.WithError(err).Warn("Failed to fetch orders")
		o.setErr(apperr.Message(err, msgOrdersFailed))
		return o.State().Orders, err
	}
	o.state.Update(func(st State) State {
		st.Orders = orders
		st.Err = ""
		return st
	})
	return orders, nil
}

// FetchOrderDetails loads one order and makes it the current order.
func (o *Orchestrator) FetchOrderDetails(ctx context.Context, orderID string) (order.Details, error) {
	if orderID == "" {
		return order.Details{}, apperr.Validation("order.details", order.ErrOrderNotFound)
	}

	o.track(1)
	defer o.track(-1)

	d, err := o.gw.GetOrderDetails(ctx, orderID)
	if err != nil {
		o.log.WithError(err).WithField("order_id", orderID).Warn("Failed to fetch order details")
		o.setErr(apperr.Message(err, msgDetailsFailed))
		return order.Details{}, err
	}
	o.state.Update(func(st State) State {
		st.Current = opt.Some(d)
		st.Err = ""
		return st
	})
	return d, nil
}

// FetchShopOrders loads the orders a seller's shop has received.
func (o *Orchestrator) FetchShopOrders(ctx context.Context, shopID string) ([]order.Order, error) {
	o.track(1)
	defer o.track(-1)

	orders, err := o.gw.GetShopOrders(ctx, shopID)
	if err != nil {
		o.log.WithError(err).WithField("shop_id", shopID).Warn("Failed to fetch shop orders")
		o.setErr(apperr.Message(err, msgShopFailed))
		return o.State().ShopOrders, err
	}
	o.state.Update(func(st State) State {
		st.ShopOrders = orders
		st.Err = ""
		return st
	})
	return orders, nil
}

// Advance moves a shop order to its next status.
func (o *Orchestrator) Advance(ctx context.Context, shopID, orderID string) (order.Order, error) {
	return o.transition(ctx, "order.advance", shopID, orderID, order.Advance)
}

// Cancel cancels a shop order that has not been packed or shipped yet.
func (o *Orchestrator) Cancel(ctx context.Context, shopID, orderID string) (order.Order, error) {
	return o.transition(ctx, "order.cancel", shopID, orderID, order.Cancel)
}

func (o *Orchestrator) transition(
	ctx context.Context,
	op, shopID, orderID string,
	next func(order.Status) (order.Status, error),
) (order.Order, error) {
	current, ok := order.Find(o.State().ShopOrders, orderID)
	if !ok {
		return order.Order{}, apperr.Validation(op, order.ErrOrderNotFound)
	}
	to, err := next(current.Status)
	if err != nil {
		return current, apperr.Validation(op, err)
	}

	o.track(1)
	err = o.gw.UpdateOrderStatus(ctx, shopID, orderID, to)
	o.track(-1)
	if err != nil {
		o.log.WithError(err).WithFields(logrus.Fields{"order_id": orderID, "to": to}).Warn("Failed to update order status")
		o.setErr(apperr.Message(err, msgStatusFailed))
		return current, err
	}

	o.log.WithFields(logrus.Fields{"order_id": orderID, "from": current.Status, "to": to}).Info("Order status updated")
	activity.Emit(ctx, o.publisher, o.log, activity.NewEvent(
		activity.EventOrderStatusChanged, orderID, o.userID,
		activity.OrderStatusChanged{OrderID: orderID, ShopID: shopID, From: current.Status, To: to},
	))

	updated := current
	updated.Status = to
	o.state.Update(func(st State) State {
		shopOrders := make([]order.Order, len(st.ShopOrders))
		for i, so := range st.ShopOrders {
			if so.ID == orderID {
				so.Status = to
			}
			shopOrders[i] = so
		}
		st.ShopOrders = shopOrders
		if d, ok := st.Current.Get(); ok && d.Order.ID == orderID {
			d.Order.Status = to
			st.Current = opt.Some(d)
		}
		st.Err = ""
		return st
	})

	orders, err := o.FetchShopOrders(ctx, shopID)
	if err != nil {
		return updated, apperr.Refresh(op, err)
	}
	if fresh, ok := order.Find(orders, orderID); ok {
		updated = fresh
	}
	return updated, nil
}

func (o *Orchestrator) track(delta int) {
	o.state.Update(func(st State) State {
		st.inFlight += delta
		st.Loading = st.inFlight > 0
		return st
	})
}

func (o *Orchestrator) setErr(msg string) {
	o.state.Update(func(st State) State {
		st.Err = msg
		return st
	})
}
