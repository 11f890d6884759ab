package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/storefront-sync/internal/apperr"
	"github.com/example/storefront-sync/internal/domain/address"
	"github.com/example/storefront-sync/internal/domain/cart"
	"github.com/example/storefront-sync/internal/domain/order"
	"github.com/example/storefront-sync/internal/gateway"
	"github.com/example/storefront-sync/internal/opt"
	"github.com/shopspring/decimal"
)

// MockGateway is an in-memory stand-in for the remote backend. It keeps
// authoritative state the way a server would, records every call, and lets
// tests inject failures or run hooks while a call is "in flight".
type MockGateway struct {
	mu sync.Mutex

	Cart       cart.Cart
	Products   map[string]cart.Product
	Addresses  []address.Address
	Orders     []order.Order
	ShopOrders map[string][]order.Order
	Details    map[string]order.Details

	// For tracking calls in tests
	Calls []Call
	// Errs makes an operation fail with the given error without touching state.
	Errs map[string]error
	// Hooks run before an operation resolves, e.g. to observe optimistic state.
	Hooks map[string]func()

	nextID int
}

// Call records one gateway invocation.
type Call struct {
	Op   string
	Args []any
}

var _ gateway.Gateway = (*MockGateway)(nil)

func NewMockGateway(userID string) *MockGateway {
	return &MockGateway{
		Cart:       cart.New(opt.Some("cart-"+userID), userID, nil),
		Products:   make(map[string]cart.Product),
		ShopOrders: make(map[string][]order.Order),
		Details:    make(map[string]order.Details),
		Errs:       make(map[string]error),
		Hooks:      make(map[string]func()),
	}
}

// FailOn makes op return err until cleared with FailOn(op, nil).
func (m *MockGateway) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.Errs, op)
		return
	}
	m.Errs[op] = err
}

// OnCall registers fn to run while op is in flight.
func (m *MockGateway) OnCall(op string, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Hooks[op] = fn
}

func (m *MockGateway) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// ResetCalls forgets the recorded calls, e.g. after fixture setup.
func (m *MockGateway) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

func (m *MockGateway) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// AddProduct registers a product so added lines carry its snapshot.
func (m *MockGateway) AddProduct(p cart.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Products[p.ID] = p
}

// SetCart replaces the authoritative cart.
func (m *MockGateway) SetCart(items ...cart.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cart = m.Cart.WithItems(items)
}

// begin records the call, runs its hook and reports any injected error.
func (m *MockGateway) begin(op string, args ...any) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, Call{Op: op, Args: args})
	hook := m.Hooks[op]
	err := m.Errs[op]
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return err
}

func (m *MockGateway) newID(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func rejected(op, message string) error {
	return apperr.Transport(op, message, gateway.ErrRejected)
}

// Cart

func (m *MockGateway) GetCart(ctx context.Context) (cart.Cart, error) {
	if err := m.begin(gateway.OpGetCart); err != nil {
		return cart.Cart{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return cart.Normalize(m.Cart), nil
}

func (m *MockGateway) AddCartItem(ctx context.Context, productID string, quantity int) (gateway.AddCartItemResult, error) {
	if err := m.begin(gateway.OpAddCartItem, productID, quantity); err != nil {
		return gateway.AddCartItemResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	items := make([]cart.Item, 0, len(m.Cart.Items)+1)
	var added cart.Item
	for _, item := range m.Cart.Items {
		if item.ProductID == productID {
			item.Quantity += quantity
			added = item
		}
		items = append(items, item)
	}
	if added.ID == "" {
		product, ok := m.Products[productID]
		if !ok {
			product = cart.Product{ID: productID}
		}
		added = cart.Item{ID: m.newID("item"), ProductID: productID, Quantity: quantity, Product: product}
		items = append(items, added)
	}
	m.Cart = m.Cart.WithItems(items)
	return gateway.AddCartItemResult{Item: opt.Some(added)}, nil
}

func (m *MockGateway) UpdateCartItem(ctx context.Context, itemID string, quantity int) (cart.Cart, error) {
	if err := m.begin(gateway.OpUpdateCartItem, itemID, quantity); err != nil {
		return cart.Cart{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Cart.Find(itemID); !ok {
		return cart.Cart{}, rejected(gateway.OpUpdateCartItem, "Cart item not found")
	}
	m.Cart = m.Cart.SetQuantity(itemID, quantity)
	return m.Cart, nil
}

func (m *MockGateway) RemoveCartItem(ctx context.Context, itemID string) (cart.Cart, error) {
	if err := m.begin(gateway.OpRemoveCartItem, itemID); err != nil {
		return cart.Cart{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Cart.Find(itemID); !ok {
		return cart.Cart{}, rejected(gateway.OpRemoveCartItem, "Cart item not found")
	}
	m.Cart = m.Cart.Without(itemID)
	return m.Cart, nil
}

func (m *MockGateway) ClearCart(ctx context.Context) error {
	if err := m.begin(gateway.OpClearCart); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cart = m.Cart.Cleared()
	return nil
}

// Addresses

func (m *MockGateway) GetAddresses(ctx context.Context) ([]address.Address, error) {
	if err := m.begin(gateway.OpGetAddresses); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]address.Address, len(m.Addresses))
	copy(out, m.Addresses)
	return out, nil
}

func (m *MockGateway) GetDefaultAddress(ctx context.Context) (opt.Value[address.Address], error) {
	if err := m.begin(gateway.OpGetDefaultAddress); err != nil {
		return opt.None[address.Address](), err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.Addresses {
		if a.IsDefault {
			return opt.Some(a), nil
		}
	}
	return opt.None[address.Address](), nil
}

func (m *MockGateway) AddAddress(ctx context.Context, fields address.Fields) (address.Address, error) {
	if err := m.begin(gateway.OpAddAddress, fields); err != nil {
		return address.Address{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a := address.Address{
		ID:         m.newID("addr"),
		FullName:   fields.FullName,
		Phone:      fields.Phone,
		Line1:      fields.Line1,
		Line2:      fields.Line2,
		City:       fields.City,
		State:      fields.State,
		PostalCode: fields.PostalCode,
		Country:    fields.Country,
		IsDefault:  fields.MakeDefault || len(m.Addresses) == 0,
	}
	if a.IsDefault {
		m.clearDefault()
	}
	m.Addresses = append(m.Addresses, a)
	return a, nil
}

func (m *MockGateway) SetDefaultAddress(ctx context.Context, addressID string) error {
	if err := m.begin(gateway.OpSetDefaultAddress, addressID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := address.Find(m.Addresses, addressID); !ok {
		return rejected(gateway.OpSetDefaultAddress, "Address not found")
	}
	m.clearDefault()
	for i := range m.Addresses {
		if m.Addresses[i].ID == addressID {
			m.Addresses[i].IsDefault = true
		}
	}
	return nil
}

func (m *MockGateway) RemoveAddress(ctx context.Context, addressID string) error {
	if err := m.begin(gateway.OpRemoveAddress, addressID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := make([]address.Address, 0, len(m.Addresses))
	for _, a := range m.Addresses {
		if a.ID != addressID {
			kept = append(kept, a)
		}
	}
	m.Addresses = kept
	return nil
}

func (m *MockGateway) clearDefault() {
	next := make([]address.Address, len(m.Addresses))
	for i, a := range m.Addresses {
		a.IsDefault = false
		next[i] = a
	}
	m.Addresses = next
}

// Orders

func (m *MockGateway) PlaceOrder(ctx context.Context, req gateway.PlaceOrderRequest) (order.Order, error) {
	if err := m.begin(gateway.OpPlaceOrder, req); err != nil {
		return order.Order{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Cart.IsEmpty() {
		return order.Order{}, rejected(gateway.OpPlaceOrder, "Cart is empty")
	}

	now := time.Now()
	o := order.Order{
		ID:            m.newID("order"),
		UserID:        m.Cart.UserID,
		ShopID:        req.ShopID,
		PaymentMethod: req.PaymentMethod,
		Status:        order.StatusPending,
		TotalAmount:   m.Cart.Summary.Total,
		ItemCount:     m.Cart.Summary.ItemCount,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	items := make([]order.Item, 0, len(m.Cart.Items))
	for _, line := range m.Cart.Items {
		items = append(items, order.Item{
			ID:          m.newID("order-item"),
			ProductID:   line.ProductID,
			Name:        line.Product.Name,
			Quantity:    line.Quantity,
			PriceAtTime: line.Product.Price(),
		})
	}
	deliverTo, _ := address.Find(m.Addresses, req.AddressID)
	m.Details[o.ID] = order.Details{
		Order:   o,
		Items:   items,
		Address: deliverTo,
		Payment: order.Payment{Method: req.PaymentMethod, Status: "PENDING", Amount: o.TotalAmount},
	}
	m.Orders = append(m.Orders, o)
	m.ShopOrders[req.ShopID] = append(m.ShopOrders[req.ShopID], o)
	m.Cart = m.Cart.Cleared()
	return o, nil
}

func (m *MockGateway) GetOrders(ctx context.Context) ([]order.Order, error) {
	if err := m.begin(gateway.OpGetOrders); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]order.Order, len(m.Orders))
	copy(out, m.Orders)
	return out, nil
}

func (m *MockGateway) GetOrderDetails(ctx context.Context, orderID string) (order.Details, error) {
	if err := m.begin(gateway.OpGetOrderDetails, orderID); err != nil {
		return order.Details{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.Details[orderID]
	if !ok {
		return order.Details{}, rejected(gateway.OpGetOrderDetails, "Order not found")
	}
	if o, found := order.Find(m.Orders, orderID); found {
		d.Order = o
	}
	return d, nil
}

func (m *MockGateway) GetShopOrders(ctx context.Context, shopID string) ([]order.Order, error) {
	if err := m.begin(gateway.OpGetShopOrders, shopID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]order.Order, len(m.ShopOrders[shopID]))
	copy(out, m.ShopOrders[shopID])
	return out, nil
}

func (m *MockGateway) UpdateOrderStatus(ctx context.Context, shopID, orderID string, status order.Status) error {
	if err := m.begin(gateway.OpUpdateOrderStatus, shopID, orderID, status); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	for i := range m.ShopOrders[shopID] {
		if m.ShopOrders[shopID][i].ID == orderID {
			m.ShopOrders[shopID][i].Status = status
			found = true
		}
	}
	if !found {
		return rejected(gateway.OpUpdateOrderStatus, "Order not found")
	}
	for i := range m.Orders {
		if m.Orders[i].ID == orderID {
			m.Orders[i].Status = status
		}
	}
	return nil
}

// Price is a test helper for a product with a selling price.
func Price(v int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromInt(v))
}
