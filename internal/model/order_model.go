package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "PENDING"
	OrderStatusPaid     OrderStatus = "PAID"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

// Order is an immutable snapshot of the cart at creation time.
// TotalAmount must always equal the sum of its items' price_at_order;
// the reconciler re-establishes that before requesting money.
type Order struct {
	OrderID     int64           `json:"order_id"`
	ProfileID   int64           `json:"user_profile_id"`
	Status      OrderStatus     `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   time.Time       `json:"created_at"`
	Items       []OrderItem     `json:"items,omitempty"`
}

// OrderItem freezes the movie price as it was when the order was built.
type OrderItem struct {
	OrderItemID  int64           `json:"order_item_id"`
	OrderID      int64           `json:"order_id"`
	MovieID      int64           `json:"movie_id"`
	PriceAtOrder decimal.Decimal `json:"price_at_order"`
}

// OrderItemDetail is an order item joined with the current catalog row.
// MovieExists is false when the movie was deleted after the order was built;
// such items get pruned before a checkout session is created.
type OrderItemDetail struct {
	OrderItemID  int64           `json:"order_item_id"`
	MovieID      int64           `json:"movie_id"`
	PriceAtOrder decimal.Decimal `json:"price_at_order"`
	MovieExists  bool            `json:"-"`
	MovieName    string          `json:"movie_name,omitempty"`
	MoviePrice   decimal.Decimal `json:"movie_price"`
}

// AdminOrderFilter narrows the admin order listing.
type AdminOrderFilter struct {
	UserEmail    string
	CreatedAfter *time.Time
	Status       OrderStatus
	Offset       int
	Limit        int
}
