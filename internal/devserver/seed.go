package devserver

import (
	"github.com/example/storefront-sync/internal/auth"
	"github.com/example/storefront-sync/internal/domain/cart"
	"github.com/shopspring/decimal"
)

// Seeded logins. Passwords are for local development only.
const (
	BuyerEmail     = "buyer@example.com"
	BuyerPassword  = "buyer-password"
	SellerEmail    = "seller@example.com"
	SellerPassword = "seller-password"
	SellerShopID   = "shop-1"
)

func price(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

var seedProducts = []cart.Product{
	{ID: "prod-1", ShopID: "shop-1", Name: "Cold Brew Coffee", SellingPrice: price("4.50"), BasePrice: price("5.00"), StockQuantity: 40},
	{ID: "prod-2", ShopID: "shop-1", Name: "Almond Croissant", BasePrice: price("3.25"), StockQuantity: 25},
	{ID: "prod-3", ShopID: "shop-1", Name: "Sourdough Loaf", SellingPrice: price("6.99"), StockQuantity: 10},
	{ID: "prod-4", ShopID: "shop-2", Name: "Ceramic Mug", SellingPrice: price("12.00"), StockQuantity: 15},
	{ID: "prod-5", ShopID: "shop-2", Name: "Pour-over Kettle", SellingPrice: price("39.90"), BasePrice: price("45.00"), StockQuantity: 5},
}

// Seed fills s with the demo catalogue and accounts.
func Seed(s *Store) error {
	for _, p := range seedProducts {
		s.PutProduct(p)
	}

	accounts := []struct {
		email, password, role, shopID string
	}{
		{BuyerEmail, BuyerPassword, auth.RoleBuyer, ""},
		{SellerEmail, SellerPassword, auth.RoleSeller, SellerShopID},
		{"seller2@example.com", "seller2-password", auth.RoleSeller, "shop-2"},
	}
	for _, a := range accounts {
		if _, err := s.CreateAccount(a.email, a.password, a.role, a.shopID); err != nil {
			return err
		}
	}
	return nil
}
