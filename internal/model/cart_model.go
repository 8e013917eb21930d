package model

import "github.com/shopspring/decimal"

// Cart is the per-profile staging container. Created lazily on the first
// add and never deleted.
type Cart struct {
	CartID    int64 `json:"cart_id"`
	ProfileID int64 `json:"user_profile_id"`
}

// CartMovie is what the cart endpoints expose (cart item joined with its
// movie). Price is the current catalog price, not a frozen one: cart
// contents are mutable and the total must track the catalog until checkout.
type CartMovie struct {
	CartItemID int64           `json:"cart_item_id"`
	MovieID    int64           `json:"movie_id"`
	Name       string          `json:"name"`
	Year       int             `json:"year"`
	Price      decimal.Decimal `json:"price"`
}

// CartResponse is returned by GET /cart/items/.
type CartResponse struct {
	Items      []CartMovie     `json:"items"`
	TotalPrice decimal.Decimal `json:"total_price"`
}
