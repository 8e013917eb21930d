package services

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	st "github.com/sohail-eng/online-cinema/external/stripe"
	"github.com/sohail-eng/online-cinema/internal/apperrors"
	"github.com/sohail-eng/online-cinema/internal/model"
	"github.com/sohail-eng/online-cinema/internal/repository"
)

// Webhook event kinds this system models. Anything else is acknowledged
// without side effects.
const (
	eventCheckoutCompleted = "checkout.session.completed"
	eventPaymentFailed     = "payment_intent.payment_failed"
	eventChargeRefunded    = "charge.refunded"
)

// Session metadata keys. The processor echoes these back on settlement.
const (
	metaOrderID     = "order_id"
	metaProfileID   = "user_profile_id"
	metaTotalAmount = "total_amount"
)

type PaymentOrderStore interface {
	GetPayable(ctx context.Context, profileID, orderID int64) (*model.Order, error)
	GetByID(ctx context.Context, orderID int64) (*model.Order, error)
	ItemsWithCatalog(ctx context.Context, orderID int64) ([]model.OrderItemDetail, error)
	PruneItems(ctx context.Context, orderID int64, itemIDs []int64, newTotal decimal.Decimal) error
}

type PaymentLedgerStore interface {
	GetByExternalID(ctx context.Context, externalID string) (*model.Payment, error)
	CreateWithOrderStatus(ctx context.Context, p *model.Payment, orderStatus model.OrderStatus) error
	InsertItems(ctx context.Context, paymentID int64, items []model.PaymentItem) error
	GetByID(ctx context.Context, paymentID int64) (*model.Payment, error)
	ListByProfile(ctx context.Context, profileID int64, offset, limit int) ([]model.Payment, int, error)
	AdminList(ctx context.Context, f model.AdminPaymentFilter) ([]model.Payment, int, error)
	ItemMismatches(ctx context.Context) ([]repository.ItemMismatch, error)
	MissingItems(ctx context.Context, paymentID int64) ([]model.PaymentItem, error)
}

type CheckoutProvider interface {
	CreateSession(ctx context.Context, req st.SessionRequest) (string, error)
}

type EventVerifier interface {
	VerifyEvent(payload []byte, sigHeader string) (st.Event, error)
}

type PaymentService struct {
	Orders    PaymentOrderStore
	Payments  PaymentLedgerStore
	Ownership OwnershipStore
	Provider  CheckoutProvider
	Verifier  EventVerifier
	Log       *zap.Logger
}

func NewPaymentService(
	orders PaymentOrderStore,
	payments PaymentLedgerStore,
	ownership OwnershipStore,
	provider CheckoutProvider,
	verifier EventVerifier,
	log *zap.Logger,
) *PaymentService {
	return &PaymentService{
		Orders:    orders,
		Payments:  payments,
		Ownership: ownership,
		Provider:  provider,
		Verifier:  verifier,
		Log:       log,
	}
}

// CreateCheckoutSession resolves a still-chargeable order, self-heals any
// drift in its items, and requests a redirect URL from the processor.
// Nothing local is mutated when the processor call fails; the order stays
// pending and the user can retry.
func (s *PaymentService) CreateCheckoutSession(ctx context.Context, actor Actor, orderID int64) (string, error) {
	order, err := s.Orders.GetPayable(ctx, actor.ProfileID, orderID)
	if err != nil {
		return "", err
	}

	surviving, err := s.pruneOrderItems(ctx, order)
	if err != nil {
		return "", err
	}
	if len(surviving) == 0 {
		return "", apperrors.ErrEmptyOrder
	}

	total := decimal.Zero
	lineItems := make([]st.LineItem, 0, len(surviving))
	for _, it := range surviving {
		total = total.Add(it.PriceAtOrder)
		lineItems = append(lineItems, st.LineItem{
			Name:       it.MovieName,
			UnitAmount: it.MoviePrice.Shift(2).IntPart(),
			Quantity:   1,
		})
	}

	return s.Provider.CreateSession(ctx, st.SessionRequest{
		ClientReferenceID: uuid.NewString(),
		LineItems:         lineItems,
		Metadata: map[string]string{
			metaProfileID:   strconv.FormatInt(order.ProfileID, 10),
			metaOrderID:     strconv.FormatInt(order.OrderID, 10),
			metaTotalAmount: total.StringFixed(2),
		},
	})
}

// pruneOrderItems drops items whose movie left the catalog, collapses
// duplicate movies to one item, and drops movies the user has independently
// purchased through another order. Whenever anything changes, or the stored
// total disagrees with the surviving items, the total is recomputed and
// persisted so the order invariant holds before money is requested.
func (s *PaymentService) pruneOrderItems(ctx context.Context, order *model.Order) ([]model.OrderItemDetail, error) {
	details, err := s.Orders.ItemsWithCatalog(ctx, order.OrderID)
	if err != nil {
		return nil, err
	}
	if len(details) == 0 {
		// An itemless order must carry a zero total; repair it if it drifted.
		if !order.TotalAmount.IsZero() {
			if err := s.Orders.PruneItems(ctx, order.OrderID, nil, decimal.Zero); err != nil {
				return nil, err
			}
			order.TotalAmount = decimal.Zero
		}
		return nil, nil
	}

	var pruneIDs []int64
	seen := make(map[int64]bool, len(details))
	var candidates []model.OrderItemDetail
	candidateIDs := make([]int64, 0, len(details))

	for _, d := range details {
		if !d.MovieExists || seen[d.MovieID] {
			pruneIDs = append(pruneIDs, d.OrderItemID)
			continue
		}
		seen[d.MovieID] = true
		candidates = append(candidates, d)
		candidateIDs = append(candidateIDs, d.MovieID)
	}

	// The order itself has no successful payment at this point, so anything
	// the ownership query reports was bought through another order.
	ownedIDs, err := s.Ownership.PurchasedMovieIDs(ctx, order.ProfileID, candidateIDs)
	if err != nil {
		return nil, err
	}
	owned := make(map[int64]bool, len(ownedIDs))
	for _, id := range ownedIDs {
		owned[id] = true
	}

	var surviving []model.OrderItemDetail
	total := decimal.Zero
	for _, d := range candidates {
		if owned[d.MovieID] {
			pruneIDs = append(pruneIDs, d.OrderItemID)
			continue
		}
		surviving = append(surviving, d)
		total = total.Add(d.PriceAtOrder)
	}

	if len(pruneIDs) > 0 || !total.Equal(order.TotalAmount) {
		if !total.Equal(order.TotalAmount) && len(pruneIDs) == 0 {
			s.Log.Warn("order total drifted from its items",
				zap.Int64("order_id", order.OrderID),
				zap.String("stored_total", order.TotalAmount.String()),
				zap.String("computed_total", total.String()),
			)
		}
		if err := s.Orders.PruneItems(ctx, order.OrderID, pruneIDs, total); err != nil {
			return nil, err
		}
		order.TotalAmount = total
	}
	return surviving, nil
}

// HandleWebhook is the asynchronous settlement entry point. Delivery is
// at-least-once and unordered; the external event id deduplicates replays,
// with the unique constraint on it as the final arbiter for races.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	ev, err := s.Verifier.VerifyEvent(payload, sigHeader)
	if err != nil {
		return err
	}

	var paymentStatus model.PaymentStatus
	var orderStatus model.OrderStatus
	switch ev.Kind {
	case eventCheckoutCompleted:
		paymentStatus, orderStatus = model.PaymentStatusSuccessful, model.OrderStatusPaid
	case eventPaymentFailed:
		paymentStatus, orderStatus = model.PaymentStatusCanceled, model.OrderStatusCanceled
	case eventChargeRefunded:
		paymentStatus, orderStatus = model.PaymentStatusRefunded, model.OrderStatusCanceled
	default:
		s.Log.Debug("ignoring unmodeled webhook event", zap.String("kind", ev.Kind), zap.String("event_id", ev.ID))
		return nil
	}

	existing, err := s.Payments.GetByExternalID(ctx, ev.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		s.Log.Info("webhook redelivery, already processed",
			zap.String("event_id", ev.ID),
			zap.Int64("payment_id", existing.PaymentID),
		)
		return nil
	}

	orderID, err := metadataInt64(ev.Metadata, metaOrderID)
	if err != nil {
		return err
	}
	profileID, err := metadataInt64(ev.Metadata, metaProfileID)
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(ev.Metadata[metaTotalAmount])
	if err != nil {
		return apperrors.ErrInvalidPayload
	}

	order, err := s.Orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}

	payment := &model.Payment{
		ProfileID:         profileID,
		OrderID:           order.OrderID,
		Status:            paymentStatus,
		Amount:            amount,
		ExternalPaymentID: ev.ID,
	}
	if err := s.Payments.CreateWithOrderStatus(ctx, payment, orderStatus); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateEvent) {
			s.Log.Info("webhook race lost to a concurrent delivery", zap.String("event_id", ev.ID))
			return nil
		}
		return err
	}

	// Fan the settlement out into one payment item per order item, at the
	// current catalog price. The payment is already committed; a failure
	// here leaves a settled payment without line items, which the repair
	// job can regenerate, so alert and acknowledge instead of making the
	// processor retry into the idempotency no-op.
	details, err := s.Orders.ItemsWithCatalog(ctx, order.OrderID)
	if err == nil {
		items := make([]model.PaymentItem, 0, len(details))
		for _, d := range details {
			price := d.MoviePrice
			if !d.MovieExists {
				price = d.PriceAtOrder
			}
			items = append(items, model.PaymentItem{
				PaymentID:      payment.PaymentID,
				OrderItemID:    d.OrderItemID,
				PriceAtPayment: price,
			})
		}
		err = s.Payments.InsertItems(ctx, payment.PaymentID, items)
	}
	if err != nil {
		s.Log.Error("settled payment is missing payment items",
			zap.Int64("payment_id", payment.PaymentID),
			zap.Int64("order_id", order.OrderID),
			zap.String("event_id", ev.ID),
			zap.Error(err),
		)
	}
	return nil
}

// RepairPaymentItems regenerates missing payment items for any payment whose
// item count disagrees with its order. Safe to re-run.
func (s *PaymentService) RepairPaymentItems(ctx context.Context) (int, error) {
	mismatches, err := s.Payments.ItemMismatches(ctx)
	if err != nil {
		return 0, err
	}
	repaired := 0
	for _, m := range mismatches {
		missing, err := s.Payments.MissingItems(ctx, m.PaymentID)
		if err != nil {
			return repaired, err
		}
		if len(missing) == 0 {
			continue
		}
		if err := s.Payments.InsertItems(ctx, m.PaymentID, missing); err != nil {
			return repaired, err
		}
		s.Log.Info("regenerated payment items",
			zap.Int64("payment_id", m.PaymentID),
			zap.Int64("order_id", m.OrderID),
			zap.Int("added", len(missing)),
		)
		repaired++
	}
	return repaired, nil
}

// List returns a page of the actor's payments.
func (s *PaymentService) List(ctx context.Context, actor Actor, offset, limit int) ([]model.Payment, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.Payments.ListByProfile(ctx, actor.ProfileID, offset, limit)
}

// Detail returns one payment; only its owner or a moderator may see it.
func (s *PaymentService) Detail(ctx context.Context, actor Actor, paymentID int64) (*model.Payment, error) {
	p, err := s.Payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.ProfileID != actor.ProfileID && !actor.Role.AtLeast(model.RoleModerator) {
		return nil, apperrors.ErrPermissionDenied
	}
	return p, nil
}

// AdminList returns payments across users, moderator tier and above.
func (s *PaymentService) AdminList(ctx context.Context, actor Actor, f model.AdminPaymentFilter) ([]model.Payment, int, error) {
	if !actor.Role.AtLeast(model.RoleModerator) {
		return nil, 0, apperrors.ErrPermissionDenied
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.Payments.AdminList(ctx, f)
}

func metadataInt64(md map[string]string, key string) (int64, error) {
	v, err := strconv.ParseInt(md[key], 10, 64)
	if err != nil || v <= 0 {
		return 0, apperrors.ErrInvalidPayload
	}
	return v, nil
}
