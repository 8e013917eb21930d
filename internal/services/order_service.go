package services

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/sohail-eng/online-cinema/internal/apperrors"
	"github.com/sohail-eng/online-cinema/internal/model"
)

type OrderStore interface {
	EligibleCartItems(ctx context.Context, profileID int64) ([]model.CartMovie, error)
	CreateWithItems(ctx context.Context, profileID int64, total decimal.Decimal, items []model.CartMovie) (*model.Order, error)
	GetForProfile(ctx context.Context, profileID, orderID int64) (*model.Order, error)
	List(ctx context.Context, profileID int64, offset, limit int) ([]model.Order, int, error)
	AdminList(ctx context.Context, f model.AdminOrderFilter) ([]model.Order, int, error)
	DeletePending(ctx context.Context, profileID, orderID int64) error
}

type OrderService struct {
	Orders OrderStore

	// PermitEmptyOrders keeps the historical behavior of snapshotting an
	// empty eligible set into a zero-amount order. Off by default: an order
	// with nothing to charge is almost never what the caller meant.
	PermitEmptyOrders bool
}

func NewOrderService(orders OrderStore) *OrderService {
	return &OrderService{Orders: orders}
}

// Create snapshots the actor's purchasable cart items into a pending order.
// Item prices are frozen at this instant; the order and all of its items
// commit atomically or not at all.
func (s *OrderService) Create(ctx context.Context, actor Actor) (*model.Order, error) {
	items, err := s.Orders.EligibleCartItems(ctx, actor.ProfileID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 && !s.PermitEmptyOrders {
		return nil, apperrors.ErrEmptyOrder
	}

	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Price)
	}
	return s.Orders.CreateWithItems(ctx, actor.ProfileID, total, items)
}

// Detail returns one of the actor's own orders.
func (s *OrderService) Detail(ctx context.Context, actor Actor, orderID int64) (*model.Order, error) {
	return s.Orders.GetForProfile(ctx, actor.ProfileID, orderID)
}

// List returns a page of the actor's orders.
func (s *OrderService) List(ctx context.Context, actor Actor, offset, limit int) ([]model.Order, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.Orders.List(ctx, actor.ProfileID, offset, limit)
}

// AdminList returns orders across users, moderator tier and above.
func (s *OrderService) AdminList(ctx context.Context, actor Actor, f model.AdminOrderFilter) ([]model.Order, int, error) {
	if !actor.Role.AtLeast(model.RoleModerator) {
		return nil, 0, apperrors.ErrPermissionDenied
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.Orders.AdminList(ctx, f)
}

// Refuse deletes the actor's order while it is still pending; its items
// cascade. A paid or canceled order cannot be refused.
func (s *OrderService) Refuse(ctx context.Context, actor Actor, orderID int64) error {
	return s.Orders.DeletePending(ctx, actor.ProfileID, orderID)
}
