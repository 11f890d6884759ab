package cart

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/storefront-sync/internal/opt"
	"github.com/shopspring/decimal"
)

// TempIDPrefix marks line ids minted locally before the server has issued one.
const TempIDPrefix = "temp-"

var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidProduct  = errors.New("product_id is required")
	ErrItemNotFound    = errors.New("cart item not found")
	ErrItemPending     = errors.New("cart item is still being added")
)

// Product is the product snapshot embedded in a cart line.
type Product struct {
	ID            string              `json:"product_id"`
	ShopID        string              `json:"shop_id"`
	Name          string              `json:"name"`
	ImageURL      string              `json:"image_url,omitempty"`
	SellingPrice  decimal.NullDecimal `json:"selling_price"`
	BasePrice     decimal.NullDecimal `json:"base_price"`
	StockQuantity int                 `json:"stock_quantity"`
}

// Price is the selling price, else the base price, else zero.
func (p Product) Price() decimal.Decimal {
	if p.SellingPrice.Valid {
		return p.SellingPrice.Decimal
	}
	if p.BasePrice.Valid {
		return p.BasePrice.Decimal
	}
	return decimal.Zero
}

type Item struct {
	ID        string  `json:"item_id"`
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Product   Product `json:"product"`
}

// Confirmed reports whether the line carries a server-issued id.
func (i Item) Confirmed() bool {
	return !IsTempID(i.ID)
}

func (i Item) LineTotal() decimal.Decimal {
	return i.Product.Price().Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Summary struct {
	ItemCount int             `json:"item_count"`
	Total     decimal.Decimal `json:"total"`
}

// Cart is an immutable snapshot. Every modifier returns a new Cart whose
// Summary has been recomputed from its Items.
type Cart struct {
	ID      opt.Value[string] `json:"cart_id"`
	UserID  string            `json:"user_id"`
	Items   []Item            `json:"items"`
	Summary Summary           `json:"summary"`
}

// New builds a cart from items, copying the slice and deriving the summary.
func New(id opt.Value[string], userID string, items []Item) Cart {
	copied := make([]Item, len(items))
	copy(copied, items)
	return Cart{
		ID:      id,
		UserID:  userID,
		Items:   copied,
		Summary: Summarize(copied),
	}
}

// Empty is the explicit empty cart: no items and a zero summary.
func Empty(userID string) Cart {
	return New(opt.None[string](), userID, nil)
}

// Normalize re-derives the summary of a cart received from elsewhere so the
// summary invariant holds no matter what the sender computed.
func Normalize(c Cart) Cart {
	return New(c.ID, c.UserID, c.Items)
}

// Summarize computes item_count = Σ quantity and total = round(Σ quantity × price, 2).
func Summarize(items []Item) Summary {
	count := 0
	total := decimal.Zero
	for _, item := range items {
		count += item.Quantity
		total = total.Add(item.LineTotal())
	}
	return Summary{ItemCount: count, Total: total.Round(2)}
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c Cart) Find(itemID string) (Item, bool) {
	for _, item := range c.Items {
		if item.ID == itemID {
			return item, true
		}
	}
	return Item{}, false
}

func (c Cart) FindByProduct(productID string) (Item, bool) {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return Item{}, false
}

// WithItems returns a copy of c holding items.
func (c Cart) WithItems(items []Item) Cart {
	return New(c.ID, c.UserID, items)
}

// MergeAdd adds quantity of p: an existing line for the product grows,
// otherwise a new line with a temporary id is appended.
func (c Cart) MergeAdd(p Product, quantity int, now time.Time) Cart {
	items := make([]Item, 0, len(c.Items)+1)
	merged := false
	for _, item := range c.Items {
		if !merged && item.ProductID == p.ID {
			item.Quantity += quantity
			merged = true
		}
		items = append(items, item)
	}
	if !merged {
		items = append(items, Item{
			ID:        TempID(p.ID, now),
			ProductID: p.ID,
			Quantity:  quantity,
			Product:   p,
		})
	}
	return c.WithItems(items)
}

// SetQuantity rewrites the quantity of one line.
func (c Cart) SetQuantity(itemID string, quantity int) Cart {
	items := make([]Item, len(c.Items))
	for i, item := range c.Items {
		if item.ID == itemID {
			item.Quantity = quantity
		}
		items[i] = item
	}
	return c.WithItems(items)
}

// Without filters one line out.
func (c Cart) Without(itemID string) Cart {
	items := make([]Item, 0, len(c.Items))
	for _, item := range c.Items {
		if item.ID != itemID {
			items = append(items, item)
		}
	}
	return c.WithItems(items)
}

// Cleared keeps the cart identity but drops every line.
func (c Cart) Cleared() Cart {
	return New(c.ID, c.UserID, nil)
}

// ShopIDs returns the distinct shops the cart's products belong to, in line order.
func (c Cart) ShopIDs() []string {
	seen := make(map[string]bool)
	var shops []string
	for _, item := range c.Items {
		shop := item.Product.ShopID
		if shop == "" || seen[shop] {
			continue
		}
		seen[shop] = true
		shops = append(shops, shop)
	}
	return shops
}

// HasPendingItems reports whether any line still carries a temporary id.
func (c Cart) HasPendingItems() bool {
	for _, item := range c.Items {
		if !item.Confirmed() {
			return true
		}
	}
	return false
}

// TempID mints a temporary line id of the form temp-<product_id>-<unix millis>.
func TempID(productID string, now time.Time) string {
	return fmt.Sprintf("%s%s-%d", TempIDPrefix, productID, now.UnixMilli())
}

func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}
