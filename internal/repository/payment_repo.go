package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sohail-eng/online-cinema/internal/apperrors"
	"github.com/sohail-eng/online-cinema/internal/model"
)

// PaymentRepository is the append-only settlement ledger.
type PaymentRepository struct {
	DB *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{DB: db}
}

const uniqueViolation = "23505"

// GetByExternalID looks up a payment by the processor's event id.
// Returns nil, nil when no such payment exists.
func (r *PaymentRepository) GetByExternalID(ctx context.Context, externalID string) (*model.Payment, error) {
	query := `
		SELECT payment_id, user_profile_id, order_id, status, amount, external_payment_id, created_at
		FROM payments
		WHERE external_payment_id=$1
	`
	var p model.Payment
	err := r.DB.QueryRow(ctx, query, externalID).Scan(
		&p.PaymentID, &p.ProfileID, &p.OrderID, &p.Status, &p.Amount, &p.ExternalPaymentID, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// CreateWithOrderStatus inserts the payment row and moves the order to the
// corresponding status in one transaction. The UNIQUE constraint on
// external_payment_id is the final arbiter for concurrent deliveries of the
// same event; a violation surfaces as ErrDuplicateEvent, which callers treat
// as the already-processed no-op path.
func (r *PaymentRepository) CreateWithOrderStatus(ctx context.Context, p *model.Payment, orderStatus model.OrderStatus) error {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	insert := `
		INSERT INTO payments (user_profile_id, order_id, status, amount, external_payment_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING payment_id, created_at
	`
	err = tx.QueryRow(ctx, insert, p.ProfileID, p.OrderID, p.Status, p.Amount, p.ExternalPaymentID).
		Scan(&p.PaymentID, &p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperrors.ErrDuplicateEvent
		}
		return fmt.Errorf("insert payment: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE orders SET status=$1 WHERE order_id=$2`, orderStatus, p.OrderID); err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	return tx.Commit(ctx)
}

// InsertItems writes the payment's line items. ON CONFLICT DO NOTHING makes
// the repair job safe to re-run over partially written payments.
func (r *PaymentRepository) InsertItems(ctx context.Context, paymentID int64, items []model.PaymentItem) error {
	if len(items) == 0 {
		return nil
	}
	var sb strings.Builder
	args := make([]interface{}, 0, len(items)*3)
	sb.WriteString("INSERT INTO payment_items (payment_id, order_item_id, price_at_payment) VALUES ")
	for i, it := range items {
		if i > 0 {
			sb.WriteString(",")
		}
		pi := i*3 + 1
		sb.WriteString(fmt.Sprintf("($%d,$%d,$%d)", pi, pi+1, pi+2))
		args = append(args, paymentID, it.OrderItemID, it.PriceAtPayment)
	}
	sb.WriteString(" ON CONFLICT (payment_id, order_item_id) DO NOTHING")
	_, err := r.DB.Exec(ctx, sb.String(), args...)
	return err
}

// Items returns the payment's line items.
func (r *PaymentRepository) Items(ctx context.Context, paymentID int64) ([]model.PaymentItem, error) {
	query := `
		SELECT payment_item_id, payment_id, order_item_id, price_at_payment
		FROM payment_items
		WHERE payment_id=$1
		ORDER BY payment_item_id
	`
	rows, err := r.DB.Query(ctx, query, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.PaymentItem
	for rows.Next() {
		var it model.PaymentItem
		if err := rows.Scan(&it.PaymentItemID, &it.PaymentID, &it.OrderItemID, &it.PriceAtPayment); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetByID returns a payment with its items, unscoped; the service layer
// enforces ownership.
func (r *PaymentRepository) GetByID(ctx context.Context, paymentID int64) (*model.Payment, error) {
	query := `
		SELECT payment_id, user_profile_id, order_id, status, amount, external_payment_id, created_at
		FROM payments
		WHERE payment_id=$1
	`
	var p model.Payment
	err := r.DB.QueryRow(ctx, query, paymentID).Scan(
		&p.PaymentID, &p.ProfileID, &p.OrderID, &p.Status, &p.Amount, &p.ExternalPaymentID, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrPaymentNotFound
		}
		return nil, err
	}
	if p.Items, err = r.Items(ctx, p.PaymentID); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListByProfile returns a page of the profile's payments plus the total count.
func (r *PaymentRepository) ListByProfile(ctx context.Context, profileID int64, offset, limit int) ([]model.Payment, int, error) {
	query := `
		SELECT payment_id, user_profile_id, order_id, status, amount, external_payment_id, created_at
		FROM payments
		WHERE user_profile_id=$1
		ORDER BY payment_id DESC
		OFFSET $2 LIMIT $3
	`
	rows, err := r.DB.Query(ctx, query, profileID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	payments, err := scanPayments(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE user_profile_id=$1`, profileID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// AdminList returns payments across all users, filtered by owner email
// substring, creation-date lower bound and status.
func (r *PaymentRepository) AdminList(ctx context.Context, f model.AdminPaymentFilter) ([]model.Payment, int, error) {
	where := []string{"TRUE"}
	args := []interface{}{}

	if f.UserEmail != "" {
		args = append(args, f.UserEmail)
		where = append(where, fmt.Sprintf("u.email ILIKE '%%' || $%d || '%%'", len(args)))
	}
	if f.CreatedAfter != nil {
		args = append(args, *f.CreatedAfter)
		where = append(where, fmt.Sprintf("p.created_at >= $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("p.status = $%d", len(args)))
	}

	base := `
		FROM payments p
		JOIN user_profiles up ON up.profile_id = p.user_profile_id
		JOIN users u ON u.user_id = up.user_id
		WHERE ` + strings.Join(where, " AND ")

	countArgs := make([]interface{}, len(args))
	copy(countArgs, args)

	args = append(args, f.Offset)
	offsetIdx := len(args)
	args = append(args, f.Limit)
	limitIdx := len(args)

	query := `SELECT p.payment_id, p.user_profile_id, p.order_id, p.status, p.amount, p.external_payment_id, p.created_at ` +
		base + fmt.Sprintf(" ORDER BY p.payment_id DESC OFFSET $%d LIMIT $%d", offsetIdx, limitIdx)

	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	payments, err := scanPayments(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) `+base, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// ItemMismatch describes a settled payment whose item count does not match
// its order's item count.
type ItemMismatch struct {
	PaymentID int64
	OrderID   int64
	Expected  int
	Actual    int
}

// ItemMismatches scans the ledger for payments left without a full set of
// payment items, e.g. after a crash between the payment commit and the item
// fan-out.
func (r *PaymentRepository) ItemMismatches(ctx context.Context) ([]ItemMismatch, error) {
	query := `
		SELECT p.payment_id, p.order_id,
		       COUNT(DISTINCT oi.order_item_id) AS expected,
		       COUNT(DISTINCT pi.payment_item_id) AS actual
		FROM payments p
		LEFT JOIN order_items oi ON oi.order_id = p.order_id
		LEFT JOIN payment_items pi ON pi.payment_id = p.payment_id
		GROUP BY p.payment_id, p.order_id
		HAVING COUNT(DISTINCT oi.order_item_id) <> COUNT(DISTINCT pi.payment_item_id)
	`
	rows, err := r.DB.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ItemMismatch
	for rows.Next() {
		var m ItemMismatch
		if err := rows.Scan(&m.PaymentID, &m.OrderID, &m.Expected, &m.Actual); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MissingItems builds the payment items a partially written payment still
// lacks, priced at the current catalog price (falling back to price_at_order
// when the movie is gone).
func (r *PaymentRepository) MissingItems(ctx context.Context, paymentID int64) ([]model.PaymentItem, error) {
	query := `
		SELECT oi.order_item_id, COALESCE(m.price, oi.price_at_order)
		FROM payments p
		JOIN order_items oi ON oi.order_id = p.order_id
		LEFT JOIN movies m ON m.movie_id = oi.movie_id
		WHERE p.payment_id=$1
		  AND NOT EXISTS (
			SELECT 1 FROM payment_items pi
			WHERE pi.payment_id = p.payment_id AND pi.order_item_id = oi.order_item_id
		  )
		ORDER BY oi.order_item_id
	`
	rows, err := r.DB.Query(ctx, query, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.PaymentItem
	for rows.Next() {
		var it model.PaymentItem
		it.PaymentID = paymentID
		if err := rows.Scan(&it.OrderItemID, &it.PriceAtPayment); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanPayments(rows pgx.Rows) ([]model.Payment, error) {
	defer rows.Close()
	var payments []model.Payment
	for rows.Next() {
		var p model.Payment
		if err := rows.Scan(&p.PaymentID, &p.ProfileID, &p.OrderID, &p.Status, &p.Amount, &p.ExternalPaymentID, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
