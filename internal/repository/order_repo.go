package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sohail-eng/online-cinema/internal/apperrors"
	"github.com/sohail-eng/online-cinema/internal/model"
)

type OrderRepository struct {
	DB *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{DB: db}
}

// EligibleCartItems returns the profile's cart items that are not yet covered
// by a paid order or a successful payment. Order creation and the cart's
// "already purchased" check share this predicate, so the two can never
// disagree about what is purchasable.
func (r *OrderRepository) EligibleCartItems(ctx context.Context, profileID int64) ([]model.CartMovie, error) {
	query := `
		SELECT ci.cart_item_id, m.movie_id, m.name, m.year, m.price
		FROM cart_items ci
		JOIN carts c ON c.cart_id = ci.cart_id
		JOIN movies m ON m.movie_id = ci.movie_id
		WHERE c.user_profile_id = $1
		  AND NOT EXISTS (
			SELECT 1
			FROM order_items oi
			JOIN orders o ON o.order_id = oi.order_id
			WHERE o.user_profile_id = $1
			  AND oi.movie_id = ci.movie_id
			  AND (
				o.status = 'PAID'
				OR EXISTS (
					SELECT 1 FROM payments p
					WHERE p.order_id = o.order_id AND p.status = 'SUCCESSFUL'
				)
			  )
		  )
		ORDER BY ci.cart_item_id
	`
	rows, err := r.DB.Query(ctx, query, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.CartMovie
	for rows.Next() {
		var it model.CartMovie
		if err := rows.Scan(&it.CartItemID, &it.MovieID, &it.Name, &it.Year, &it.Price); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// CreateWithItems inserts the order and all of its items in one transaction.
// A failure anywhere rolls the whole snapshot back; a partial item set must
// never survive.
func (r *OrderRepository) CreateWithItems(ctx context.Context, profileID int64, total decimal.Decimal, items []model.CartMovie) (*model.Order, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	order := &model.Order{
		ProfileID:   profileID,
		Status:      model.OrderStatusPending,
		TotalAmount: total,
	}
	insertOrder := `
		INSERT INTO orders (user_profile_id, status, total_amount)
		VALUES ($1, 'PENDING', $2)
		RETURNING order_id, created_at
	`
	if err := tx.QueryRow(ctx, insertOrder, profileID, total).Scan(&order.OrderID, &order.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	if len(items) > 0 {
		var sb strings.Builder
		args := make([]interface{}, 0, len(items)*3)
		sb.WriteString("INSERT INTO order_items (order_id, movie_id, price_at_order) VALUES ")
		for i, it := range items {
			if i > 0 {
				sb.WriteString(",")
			}
			pi := i*3 + 1
			sb.WriteString(fmt.Sprintf("($%d,$%d,$%d)", pi, pi+1, pi+2))
			args = append(args, order.OrderID, it.MovieID, it.Price)
		}
		sb.WriteString(" RETURNING order_item_id, order_id, movie_id, price_at_order")

		rows, err := tx.Query(ctx, sb.String(), args...)
		if err != nil {
			return nil, fmt.Errorf("insert order items: %w", err)
		}
		for rows.Next() {
			var oi model.OrderItem
			if err := rows.Scan(&oi.OrderItemID, &oi.OrderID, &oi.MovieID, &oi.PriceAtOrder); err != nil {
				rows.Close()
				return nil, err
			}
			order.Items = append(order.Items, oi)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return order, nil
}

// GetByID returns an order without owner scoping; the reconciler resolves
// orders named in webhook metadata this way.
func (r *OrderRepository) GetByID(ctx context.Context, orderID int64) (*model.Order, error) {
	query := `SELECT order_id, user_profile_id, status, total_amount, created_at FROM orders WHERE order_id=$1`
	var o model.Order
	err := r.DB.QueryRow(ctx, query, orderID).Scan(
		&o.OrderID, &o.ProfileID, &o.Status, &o.TotalAmount, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

// GetForProfile returns one of the profile's orders with its items.
func (r *OrderRepository) GetForProfile(ctx context.Context, profileID, orderID int64) (*model.Order, error) {
	query := `
		SELECT order_id, user_profile_id, status, total_amount, created_at
		FROM orders
		WHERE order_id=$1 AND user_profile_id=$2
	`
	var o model.Order
	err := r.DB.QueryRow(ctx, query, orderID, profileID).Scan(
		&o.OrderID, &o.ProfileID, &o.Status, &o.TotalAmount, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrOrderNotFound
		}
		return nil, err
	}
	if o.Items, err = r.Items(ctx, o.OrderID); err != nil {
		return nil, err
	}
	return &o, nil
}

// Items returns the order's line items.
func (r *OrderRepository) Items(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	query := `
		SELECT order_item_id, order_id, movie_id, price_at_order
		FROM order_items
		WHERE order_id=$1
		ORDER BY order_item_id
	`
	rows, err := r.DB.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var oi model.OrderItem
		if err := rows.Scan(&oi.OrderItemID, &oi.OrderID, &oi.MovieID, &oi.PriceAtOrder); err != nil {
			return nil, err
		}
		items = append(items, oi)
	}
	return items, rows.Err()
}

// List returns a page of the profile's orders plus the total count.
func (r *OrderRepository) List(ctx context.Context, profileID int64, offset, limit int) ([]model.Order, int, error) {
	query := `
		SELECT order_id, user_profile_id, status, total_amount, created_at
		FROM orders
		WHERE user_profile_id=$1
		ORDER BY order_id DESC
		OFFSET $2 LIMIT $3
	`
	rows, err := r.DB.Query(ctx, query, profileID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	orders, err := scanOrders(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE user_profile_id=$1`, profileID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// AdminList returns orders across all users, filtered by owner email
// substring, creation-date lower bound and status.
func (r *OrderRepository) AdminList(ctx context.Context, f model.AdminOrderFilter) ([]model.Order, int, error) {
	where := []string{"TRUE"}
	args := []interface{}{}

	if f.UserEmail != "" {
		args = append(args, f.UserEmail)
		where = append(where, fmt.Sprintf("u.email ILIKE '%%' || $%d || '%%'", len(args)))
	}
	if f.CreatedAfter != nil {
		args = append(args, *f.CreatedAfter)
		where = append(where, fmt.Sprintf("o.created_at >= $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("o.status = $%d", len(args)))
	}

	base := `
		FROM orders o
		JOIN user_profiles up ON up.profile_id = o.user_profile_id
		JOIN users u ON u.user_id = up.user_id
		WHERE ` + strings.Join(where, " AND ")

	countArgs := make([]interface{}, len(args))
	copy(countArgs, args)

	args = append(args, f.Offset)
	offsetIdx := len(args)
	args = append(args, f.Limit)
	limitIdx := len(args)

	query := `SELECT o.order_id, o.user_profile_id, o.status, o.total_amount, o.created_at ` + base +
		fmt.Sprintf(" ORDER BY o.order_id DESC OFFSET $%d LIMIT $%d", offsetIdx, limitIdx)

	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	orders, err := scanOrders(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) `+base, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// DeletePending removes the profile's order only while it is still pending.
// Items cascade. Refusing a paid or canceled order is an invalid-state error,
// not a delete.
func (r *OrderRepository) DeletePending(ctx context.Context, profileID, orderID int64) error {
	tag, err := r.DB.Exec(ctx,
		`DELETE FROM orders WHERE order_id=$1 AND user_profile_id=$2 AND status='PENDING'`,
		orderID, profileID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var status model.OrderStatus
	err = r.DB.QueryRow(ctx,
		`SELECT status FROM orders WHERE order_id=$1 AND user_profile_id=$2`,
		orderID, profileID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrOrderNotFound
	}
	if err != nil {
		return err
	}
	return apperrors.ErrInvalidOrderState
}

// GetPayable resolves an order that may still be charged: it must belong to
// the profile and have no successful payment yet.
func (r *OrderRepository) GetPayable(ctx context.Context, profileID, orderID int64) (*model.Order, error) {
	query := `
		SELECT o.order_id, o.user_profile_id, o.status, o.total_amount, o.created_at
		FROM orders o
		WHERE o.order_id=$1 AND o.user_profile_id=$2
		  AND NOT EXISTS (
			SELECT 1 FROM payments p
			WHERE p.order_id = o.order_id AND p.status = 'SUCCESSFUL'
		  )
	`
	var o model.Order
	err := r.DB.QueryRow(ctx, query, orderID, profileID).Scan(
		&o.OrderID, &o.ProfileID, &o.Status, &o.TotalAmount, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

// ItemsWithCatalog returns the order's items left-joined with the catalog so
// the reconciler can spot items whose movie no longer exists.
func (r *OrderRepository) ItemsWithCatalog(ctx context.Context, orderID int64) ([]model.OrderItemDetail, error) {
	query := `
		SELECT oi.order_item_id, oi.movie_id, oi.price_at_order,
		       m.movie_id IS NOT NULL, COALESCE(m.name, ''), COALESCE(m.price, 0)
		FROM order_items oi
		LEFT JOIN movies m ON m.movie_id = oi.movie_id
		WHERE oi.order_id=$1
		ORDER BY oi.order_item_id
	`
	rows, err := r.DB.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.OrderItemDetail
	for rows.Next() {
		var d model.OrderItemDetail
		if err := rows.Scan(&d.OrderItemID, &d.MovieID, &d.PriceAtOrder, &d.MovieExists, &d.MovieName, &d.MoviePrice); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

// PruneItems deletes the given items and persists the recomputed total, as
// one unit. Re-establishes total_amount == Σ price_at_order before any money
// is requested.
func (r *OrderRepository) PruneItems(ctx context.Context, orderID int64, itemIDs []int64, newTotal decimal.Decimal) error {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if len(itemIDs) > 0 {
		if _, err := tx.Exec(ctx,
			`DELETE FROM order_items WHERE order_id=$1 AND order_item_id = ANY($2)`,
			orderID, itemIDs,
		); err != nil {
			return fmt.Errorf("delete order items: %w", err)
		}
	}
	if _, err := tx.Exec(ctx,
		`UPDATE orders SET total_amount=$1 WHERE order_id=$2`,
		newTotal, orderID,
	); err != nil {
		return fmt.Errorf("update total: %w", err)
	}
	return tx.Commit(ctx)
}

func scanOrders(rows pgx.Rows) ([]model.Order, error) {
	defer rows.Close()
	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.OrderID, &o.ProfileID, &o.Status, &o.TotalAmount, &o.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
