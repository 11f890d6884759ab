package devserver

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/storefront-sync/internal/auth"
	"github.com/example/storefront-sync/internal/domain/address"
	"github.com/example/storefront-sync/internal/domain/cart"
	"github.com/example/storefront-sync/internal/domain/order"
	"github.com/example/storefront-sync/internal/opt"
	"github.com/google/uuid"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrOutOfStock      = errors.New("not enough stock")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrShopMismatch    = errors.New("cart items do not belong to this shop")
	ErrForbidden       = errors.New("not allowed to access this resource")
	ErrEmailTaken      = errors.New("email already registered")
)

// Account is a seeded login. Sellers own exactly one shop.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	ShopID       string
}

type userCart struct {
	id    string
	items []cart.Item
}

// Store is the dev backend's whole database: everything lives in memory
// behind one mutex and is lost on restart.
type Store struct {
	mu sync.Mutex

	products  map[string]cart.Product
	accounts  map[string]Account
	carts     map[string]*userCart
	addresses map[string][]address.Address
	orders    map[string]*record
	hasher    *auth.Hasher
	now       func() time.Time
}

type StoreOption func(*Store)

// WithHasher sets the password policy for accounts.
func WithHasher(h *auth.Hasher) StoreOption {
	return func(s *Store) { s.hasher = h }
}

// record is an order plus who placed it.
type record struct {
	userID  string
	details order.Details
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		products:  make(map[string]cart.Product),
		accounts:  make(map[string]Account),
		carts:     make(map[string]*userCart),
		addresses: make(map[string][]address.Address),
		orders:    make(map[string]*record),
		hasher:    auth.DefaultHasher(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Products

func (s *Store) PutProduct(p cart.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *Store) Products() []cart.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]cart.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Accounts

func (s *Store) CreateAccount(email, password, role, shopID string) (Account, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.accounts[email]; taken {
		return Account{}, ErrEmailTaken
	}
	a := Account{ID: uuid.NewString(), Email: email, PasswordHash: hash, Role: role, ShopID: shopID}
	s.accounts[email] = a
	return a, nil
}

func (s *Store) Authenticate(email, password string) (Account, error) {
	s.mu.Lock()
	a, ok := s.accounts[email]
	s.mu.Unlock()
	if !ok {
		return Account{}, auth.ErrInvalidCredentials
	}
	if err := s.hasher.Verify(a.PasswordHash, password); err != nil {
		return Account{}, err
	}
	return a, nil
}

// Cart

func (s *Store) cartOf(userID string) *userCart {
	c, ok := s.carts[userID]
	if !ok {
		c = &userCart{id: uuid.NewString()}
		s.carts[userID] = c
	}
	return c
}

func (s *Store) snapshot(userID string, c *userCart) cart.Cart {
	// lines always carry the live product snapshot
	items := make([]cart.Item, len(c.items))
	for i, item := range c.items {
		if p, ok := s.products[item.ProductID]; ok {
			item.Product = p
		}
		items[i] = item
	}
	return cart.New(opt.Some(c.id), userID, items)
}

func (s *Store) Cart(userID string) cart.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(userID, s.cartOf(userID))
}

// AddItem merges quantity into the line for productID, creating it if needed.
func (s *Store) AddItem(userID, productID string, quantity int) (cart.Item, error) {
	if quantity <= 0 {
		return cart.Item{}, cart.ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return cart.Item{}, ErrProductNotFound
	}

	c := s.cartOf(userID)
	for i := range c.items {
		if c.items[i].ProductID != productID {
			continue
		}
		if err := checkStock(p, c.items[i].Quantity+quantity); err != nil {
			return cart.Item{}, err
		}
		c.items[i].Quantity += quantity
		c.items[i].Product = p
		return c.items[i], nil
	}

	if err := checkStock(p, quantity); err != nil {
		return cart.Item{}, err
	}
	item := cart.Item{ID: uuid.NewString(), ProductID: productID, Quantity: quantity, Product: p}
	c.items = append(c.items, item)
	return item, nil
}

func (s *Store) UpdateItem(userID, itemID string, quantity int) (cart.Cart, error) {
	if quantity <= 0 {
		return cart.Cart{}, cart.ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cartOf(userID)
	for i := range c.items {
		if c.items[i].ID != itemID {
			continue
		}
		if err := checkStock(s.products[c.items[i].ProductID], quantity); err != nil {
			return cart.Cart{}, err
		}
		c.items[i].Quantity = quantity
		return s.snapshot(userID, c), nil
	}
	return cart.Cart{}, cart.ErrItemNotFound
}

func (s *Store) RemoveItem(userID, itemID string) (cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cartOf(userID)
	for i := range c.items {
		if c.items[i].ID == itemID {
			c.items = append(c.items[:i:i], c.items[i+1:]...)
			return s.snapshot(userID, c), nil
		}
	}
	return cart.Cart{}, cart.ErrItemNotFound
}

func (s *Store) ClearCart(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cartOf(userID).items = nil
}

func checkStock(p cart.Product, quantity int) error {
	if quantity > p.StockQuantity {
		return fmt.Errorf("%w: only %d left", ErrOutOfStock, p.StockQuantity)
	}
	return nil
}

// Addresses

func (s *Store) Addresses(userID string) []address.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.addresses[userID]
	out := make([]address.Address, len(list))
	copy(out, list)
	return out
}

func (s *Store) DefaultAddress(userID string) (address.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return defaultOf(s.addresses[userID])
}

func defaultOf(list []address.Address) (address.Address, bool) {
	for _, a := range list {
		if a.IsDefault {
			return a, true
		}
	}
	return address.Address{}, false
}

// AddAddress stores a new address. The first address of a user, or one
// created with MakeDefault, becomes the only default.
func (s *Store) AddAddress(userID string, f address.Fields) (address.Address, error) {
	if err := f.Validate(); err != nil {
		return address.Address{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.addresses[userID]
	a := address.Address{
		ID:         uuid.NewString(),
		FullName:   f.FullName,
		Phone:      f.Phone,
		Line1:      f.Line1,
		Line2:      f.Line2,
		City:       f.City,
		State:      f.State,
		PostalCode: f.PostalCode,
		Country:    f.Country,
		IsDefault:  f.MakeDefault || len(list) == 0,
	}
	if a.IsDefault {
		list = withDefault(list, "")
	}
	s.addresses[userID] = append(list, a)
	return a, nil
}

func (s *Store) SetDefaultAddress(userID, addressID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.addresses[userID]
	if _, ok := address.Find(list, addressID); !ok {
		return address.ErrAddressNotFound
	}
	s.addresses[userID] = withDefault(list, addressID)
	return nil
}

// RemoveAddress deletes an address. Removing the default promotes the
// oldest remaining address.
func (s *Store) RemoveAddress(userID, addressID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.addresses[userID]
	removed, ok := address.Find(list, addressID)
	if !ok {
		return address.ErrAddressNotFound
	}

	kept := make([]address.Address, 0, len(list)-1)
	for _, a := range list {
		if a.ID != addressID {
			kept = append(kept, a)
		}
	}
	if removed.IsDefault && len(kept) > 0 {
		kept = withDefault(kept, kept[0].ID)
	}
	s.addresses[userID] = kept
	return nil
}

// withDefault returns a copy of list where only id is the default.
func withDefault(list []address.Address, id string) []address.Address {
	out := make([]address.Address, len(list))
	for i, a := range list {
		a.IsDefault = a.ID == id
		out[i] = a
	}
	return out
}

// Orders

// PlaceOrder turns the user's cart into an order for shopID. Prices are
// captured per line at this moment, stock is taken and the cart is emptied.
func (s *Store) PlaceOrder(userID, shopID string, method order.PaymentMethod, addressID string) (order.Order, error) {
	if !method.Valid() {
		return order.Order{}, order.ErrInvalidPaymentMethod
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.cartOf(userID)
	snap := s.snapshot(userID, c)
	if snap.IsEmpty() {
		return order.Order{}, ErrEmptyCart
	}
	for _, line := range snap.Items {
		if line.Product.ShopID != shopID {
			return order.Order{}, ErrShopMismatch
		}
		if err := checkStock(line.Product, line.Quantity); err != nil {
			return order.Order{}, fmt.Errorf("%s: %w", line.Product.Name, err)
		}
	}

	list := s.addresses[userID]
	deliverTo, ok := address.Find(list, addressID)
	if addressID == "" {
		deliverTo, ok = defaultOf(list)
	}
	if !ok {
		return order.Order{}, address.ErrAddressNotFound
	}

	now := s.now()
	o := order.Order{
		ID:            uuid.NewString(),
		UserID:        userID,
		ShopID:        shopID,
		PaymentMethod: method,
		Status:        order.StatusPending,
		TotalAmount:   snap.Summary.Total,
		ItemCount:     snap.Summary.ItemCount,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	items := make([]order.Item, 0, len(snap.Items))
	for _, line := range snap.Items {
		items = append(items, order.Item{
			ID:          uuid.NewString(),
			ProductID:   line.ProductID,
			Name:        line.Product.Name,
			Quantity:    line.Quantity,
			PriceAtTime: line.Product.Price(),
		})
		p := s.products[line.ProductID]
		p.StockQuantity -= line.Quantity
		s.products[line.ProductID] = p
	}

	s.orders[o.ID] = &record{
		userID: userID,
		details: order.Details{
			Order:   o,
			Items:   items,
			Address: deliverTo,
			Payment: order.Payment{Method: method, Status: "PENDING", Amount: o.TotalAmount},
		},
	}
	c.items = nil
	return o, nil
}

// Orders lists a buyer's orders, newest first.
func (s *Store) Orders(userID string) []order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(func(r *record) bool { return r.userID == userID })
}

func (s *Store) ShopOrders(shopID string) []order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(func(r *record) bool { return r.details.Order.ShopID == shopID })
}

func (s *Store) collect(match func(*record) bool) []order.Order {
	out := make([]order.Order, 0)
	for _, r := range s.orders {
		if match(r) {
			out = append(out, r.details.Order)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// OrderDetails is visible to the buyer and to the shop that received the order.
func (s *Store) OrderDetails(viewer *auth.Claims, orderID string) (order.Details, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.orders[orderID]
	if !ok {
		return order.Details{}, order.ErrOrderNotFound
	}
	if r.userID != viewer.UserID && !(viewer.IsSeller() && viewer.ShopID == r.details.Order.ShopID) {
		return order.Details{}, ErrForbidden
	}
	return r.details, nil
}

// UpdateOrderStatus applies a seller's status change after checking it
// against the order state machine. Cancelling returns the stock.
func (s *Store) UpdateOrderStatus(shopID, orderID string, to order.Status) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.orders[orderID]
	if !ok || r.details.Order.ShopID != shopID {
		return order.Order{}, order.ErrOrderNotFound
	}
	if err := order.ValidateTransition(r.details.Order.Status, to); err != nil {
		return order.Order{}, err
	}

	if to == order.StatusCancelled {
		for _, item := range r.details.Items {
			p := s.products[item.ProductID]
			p.StockQuantity += item.Quantity
			s.products[item.ProductID] = p
		}
		r.details.Payment.Status = "CANCELLED"
	}
	if to == order.StatusDelivered && r.details.Payment.Method == order.PaymentCOD {
		r.details.Payment.Status = "PAID"
	}
	r.details.Order.Status = to
	r.details.Order.UpdatedAt = s.now()
	return r.details.Order, nil
}
