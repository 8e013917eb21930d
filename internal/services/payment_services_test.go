package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	st "github.com/sohail-eng/online-cinema/external/stripe"
	"github.com/sohail-eng/online-cinema/internal/apperrors"
	"github.com/sohail-eng/online-cinema/internal/model"
	"github.com/sohail-eng/online-cinema/internal/repository"
)

type fakePaymentOrders struct {
	orders  map[int64]*model.Order
	settled map[int64]bool // order ids that already have a successful payment
	items   map[int64][]model.OrderItemDetail

	prunedItemIDs []int64
	pruneCalls    int
}

func newFakePaymentOrders() *fakePaymentOrders {
	return &fakePaymentOrders{
		orders:  map[int64]*model.Order{},
		settled: map[int64]bool{},
		items:   map[int64][]model.OrderItemDetail{},
	}
}

func (f *fakePaymentOrders) GetPayable(_ context.Context, profileID, orderID int64) (*model.Order, error) {
	o, ok := f.orders[orderID]
	if !ok || o.ProfileID != profileID || f.settled[orderID] {
		return nil, apperrors.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakePaymentOrders) GetByID(_ context.Context, orderID int64) (*model.Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, apperrors.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakePaymentOrders) ItemsWithCatalog(_ context.Context, orderID int64) ([]model.OrderItemDetail, error) {
	return f.items[orderID], nil
}

func (f *fakePaymentOrders) PruneItems(_ context.Context, orderID int64, itemIDs []int64, newTotal decimal.Decimal) error {
	f.pruneCalls++
	f.prunedItemIDs = append(f.prunedItemIDs, itemIDs...)
	drop := make(map[int64]bool, len(itemIDs))
	for _, id := range itemIDs {
		drop[id] = true
	}
	var kept []model.OrderItemDetail
	for _, d := range f.items[orderID] {
		if !drop[d.OrderItemID] {
			kept = append(kept, d)
		}
	}
	f.items[orderID] = kept
	f.orders[orderID].TotalAmount = newTotal
	return nil
}

type fakeLedger struct {
	orders *fakePaymentOrders

	byExternal map[string]*model.Payment
	payments   []*model.Payment
	itemsByID  map[int64][]model.PaymentItem

	insertItemsErr error
	hideFromLookup bool
	mismatches     []repository.ItemMismatch
	missing        map[int64][]model.PaymentItem
}

func newFakeLedger(orders *fakePaymentOrders) *fakeLedger {
	return &fakeLedger{
		orders:     orders,
		byExternal: map[string]*model.Payment{},
		itemsByID:  map[int64][]model.PaymentItem{},
		missing:    map[int64][]model.PaymentItem{},
	}
}

func (f *fakeLedger) GetByExternalID(_ context.Context, externalID string) (*model.Payment, error) {
	if f.hideFromLookup {
		return nil, nil
	}
	return f.byExternal[externalID], nil
}

func (f *fakeLedger) CreateWithOrderStatus(_ context.Context, p *model.Payment, orderStatus model.OrderStatus) error {
	if _, dup := f.byExternal[p.ExternalPaymentID]; dup {
		return apperrors.ErrDuplicateEvent
	}
	p.PaymentID = int64(len(f.payments) + 1)
	p.CreatedAt = time.Now()
	f.payments = append(f.payments, p)
	f.byExternal[p.ExternalPaymentID] = p
	if o, ok := f.orders.orders[p.OrderID]; ok {
		o.Status = orderStatus
	}
	if p.Status == model.PaymentStatusSuccessful {
		f.orders.settled[p.OrderID] = true
	}
	return nil
}

func (f *fakeLedger) InsertItems(_ context.Context, paymentID int64, items []model.PaymentItem) error {
	if f.insertItemsErr != nil {
		return f.insertItemsErr
	}
	f.itemsByID[paymentID] = append(f.itemsByID[paymentID], items...)
	return nil
}

func (f *fakeLedger) GetByID(_ context.Context, paymentID int64) (*model.Payment, error) {
	for _, p := range f.payments {
		if p.PaymentID == paymentID {
			return p, nil
		}
	}
	return nil, apperrors.ErrPaymentNotFound
}

func (f *fakeLedger) ListByProfile(_ context.Context, profileID int64, _, _ int) ([]model.Payment, int, error) {
	var out []model.Payment
	for _, p := range f.payments {
		if p.ProfileID == profileID {
			out = append(out, *p)
		}
	}
	return out, len(out), nil
}

func (f *fakeLedger) AdminList(_ context.Context, _ model.AdminPaymentFilter) ([]model.Payment, int, error) {
	out := make([]model.Payment, 0, len(f.payments))
	for _, p := range f.payments {
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (f *fakeLedger) ItemMismatches(_ context.Context) ([]repository.ItemMismatch, error) {
	return f.mismatches, nil
}

func (f *fakeLedger) MissingItems(_ context.Context, paymentID int64) ([]model.PaymentItem, error) {
	return f.missing[paymentID], nil
}

type fakeProvider struct {
	url   string
	err   error
	calls int
	last  st.SessionRequest
}

func (f *fakeProvider) CreateSession(_ context.Context, req st.SessionRequest) (string, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type fakeVerifier struct {
	ev  st.Event
	err error
}

func (f *fakeVerifier) VerifyEvent(_ []byte, _ string) (st.Event, error) {
	return f.ev, f.err
}

type paymentFixture struct {
	svc       *PaymentService
	orders    *fakePaymentOrders
	ledger    *fakeLedger
	ownership *fakeOwnership
	provider  *fakeProvider
	verifier  *fakeVerifier
}

func newPaymentFixture() *paymentFixture {
	orders := newFakePaymentOrders()
	ledger := newFakeLedger(orders)
	ownership := &fakeOwnership{owned: map[int64][]int64{}}
	provider := &fakeProvider{url: "https://checkout.example/s/abc"}
	verifier := &fakeVerifier{}
	return &paymentFixture{
		svc:       NewPaymentService(orders, ledger, ownership, provider, verifier, zap.NewNop()),
		orders:    orders,
		ledger:    ledger,
		ownership: ownership,
		provider:  provider,
		verifier:  verifier,
	}
}

func (fx *paymentFixture) seedOrder(orderID, profileID int64, items ...model.OrderItemDetail) {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.PriceAtOrder)
	}
	fx.orders.orders[orderID] = &model.Order{
		OrderID:     orderID,
		ProfileID:   profileID,
		Status:      model.OrderStatusPending,
		TotalAmount: total,
		CreatedAt:   time.Now(),
	}
	fx.orders.items[orderID] = items
}

func detail(itemID, movieID int64, priceAtOrder, currentPrice string, exists bool) model.OrderItemDetail {
	return model.OrderItemDetail{
		OrderItemID:  itemID,
		MovieID:      movieID,
		PriceAtOrder: price(priceAtOrder),
		MovieExists:  exists,
		MovieName:    "movie",
		MoviePrice:   price(currentPrice),
	}
}

func TestCheckoutSessionHappyPath(t *testing.T) {
	fx := newPaymentFixture()
	fx.seedOrder(1, 10,
		detail(1, 1, "9.99", "9.99", true),
		detail(2, 2, "4.50", "4.50", true),
	)

	url, err := fx.svc.CreateCheckoutSession(context.Background(), Actor{ProfileID: 10, Role: model.RoleUser}, 1)
	require.NoError(t, err)
	require.Equal(t, "https://checkout.example/s/abc", url)
	require.Equal(t, 0, fx.orders.pruneCalls)

	req := fx.provider.last
	require.NotEmpty(t, req.ClientReferenceID)
	require.Equal(t, "1", req.Metadata["order_id"])
	require.Equal(t, "10", req.Metadata["user_profile_id"])
	require.Equal(t, "14.49", req.Metadata["total_amount"])
	require.Len(t, req.LineItems, 2)
	require.Equal(t, int64(999), req.LineItems[0].UnitAmount)
	require.Equal(t, int64(450), req.LineItems[1].UnitAmount)
}

func TestCheckoutSessionUnknownOrder(t *testing.T) {
	fx := newPaymentFixture()
	_, err := fx.svc.CreateCheckoutSession(context.Background(), Actor{ProfileID: 10, Role: model.RoleUser}, 404)
	require.ErrorIs(t, err, apperrors.ErrOrderNotFound)
	require.Equal(t, 0, fx.provider.calls)
}

func TestCheckoutSessionOrderOwnership(t *testing.T) {
	fx := newPaymentFixture()
	fx.seedOrder(1, 10, detail(1, 1, "9.99", "9.99", true))

	_, err := fx.svc.CreateCheckoutSession(context.Background(), Actor{ProfileID: 11, Role: model.RoleUser}, 1)
	require.ErrorIs(t, err, apperrors.ErrOrderNotFound)
}

func TestCheckoutSessionPrunesStaleMovies(t *testing.T) {
	fx := newPaymentFixture()
	fx.seedOrder(1, 10,
		detail(1, 1, "9.99", "9.99", true),
		detail(2, 2, "4.50", "0", false), // movie deleted after order creation
	)

	_, err := fx.svc.CreateCheckoutSession(context.Background(), Actor{ProfileID: 10, Role: model.RoleUser}, 1)
	require.NoError(t, err)
	require.Equal(t, []int64{2}, fx.orders.prunedItemIDs)
	require.True(t, fx.orders.orders[1].TotalAmount.Equal(price("9.99")))
	require.Len(t, fx.provider.last.LineItems, 1)
	require.Equal(t, "9.99", fx.provider.last.Metadata["total_amount"])
}

func TestCheckoutSessionCollapsesDuplicates(t *testing.T) {
	fx := newPaymentFixture()
	fx.seedOrder(1, 10,
		detail(1, 1, "9.99", "9.99", true),
		detail(2, 1, "9.99", "9.99", true),
	)

	_, err := fx.svc.CreateCheckoutSession(context.Background(), Actor{ProfileID: 10, Role: model.RoleUser}, 1)
	require.NoError(t, err)
	require.Equal(t, []int64{2}, fx.orders.prunedItemIDs)
	require.Len(t, fx.provider.last.LineItems, 1)
	require.Equal(t, "9.99", fx.provider.last.Metadata["total_amount"])
}

func TestCheckoutSessionPrunesIndependentlyPurchased(t *testing.T) {
	fx := newPaymentFixture()
	fx.seedOrder(1, 10,
		detail(1, 1, "9.99", "9.99", true),
		detail(2, 2, "4.50", "4.50", true),
	)
	fx.ownership.owned[10] = []int64{2} // bought through another order meanwhile

	_, err := fx.svc.CreateCheckoutSession(context.Background(), Actor{ProfileID: 10, Role: model.RoleUser}, 1)
	require.NoError(t, err)
	require.Equal(t, []int64{2}, fx.orders.prunedItemIDs)
	require.Equal(t, "9.99", fx.provider.last.Metadata["total_amount"])
}

func TestCheckoutSessionCanceledOrderStaysChargeable(t *testing.T) {
	fx := newPaymentFixture()
	fx.seedOrder(1, 10, detail(1, 1, "9.99", "9.99", true))
	fx.orders.orders[1].Status = model.OrderStatusCanceled

	// Only a successful payment blocks checkout; a canceled order with no
	// settlement can be retried.
	url, err := fx.svc.CreateCheckoutSession(context.Background(), Actor{ProfileID: 10, Role: model.RoleUser}, 1)
	require.NoError(t, err)
	require.NotEmpty(t, url)

	fx.orders.settled[1] = true
	_, err = fx.svc.CreateCheckoutSession(context.Background(), Actor{ProfileID: 10, Role: model.RoleUser}, 1)
	require.ErrorIs(t, err, apperrors.ErrOrderNotFound)
}

func TestCheckoutSessionItemlessOrderTotalRepaired(t *testing.T) {
	fx := newPaymentFixture()
	fx.seedOrder(1, 10)
	fx.orders.orders[1].TotalAmount = price("9.99") // drifted: no items back it

	_, err := fx.svc.CreateCheckoutSession(context.Background(), Actor{ProfileID: 10, Role: model.RoleUser}, 1)
	require.ErrorIs(t, err, apperrors.ErrEmptyOrder)
	require.Equal(t, 1, fx.orders.pruneCalls)
	require.True(t, fx.orders.orders[1].TotalAmount.IsZero())
}

func TestCheckoutSessionAllItemsPruned(t *testing.T) {
	fx := newPaymentFixture()
	fx.seedOrder(1, 10, detail(1, 1, "9.99", "0", false))

	_, err := fx.svc.CreateCheckoutSession(context.Background(), Actor{ProfileID: 10, Role: model.RoleUser}, 1)
	require.ErrorIs(t, err, apperrors.ErrEmptyOrder)
	require.Equal(t, 0, fx.provider.calls)
	require.True(t, fx.orders.orders[1].TotalAmount.IsZero(), "total must be reconciled even when nothing survives")
}

func TestCheckoutSessionProviderFailureLeavesOrderIntact(t *testing.T) {
	fx := newPaymentFixture()
	fx.seedOrder(1, 10, detail(1, 1, "9.99", "9.99", true))
	fx.provider.err = apperrors.ErrCheckoutCreation

	_, err := fx.svc.CreateCheckoutSession(context.Background(), Actor{ProfileID: 10, Role: model.RoleUser}, 1)
	require.ErrorIs(t, err, apperrors.ErrCheckoutCreation)
	require.Equal(t, model.OrderStatusPending, fx.orders.orders[1].Status)
	require.Empty(t, fx.ledger.payments)
}

func completedEvent(id string) st.Event {
	return st.Event{
		ID:   id,
		Kind: "checkout.session.completed",
		Metadata: map[string]string{
			"order_id":        "1",
			"user_profile_id": "10",
			"total_amount":    "9.99",
		},
	}
}

func TestWebhookCompletedSettlesOrder(t *testing.T) {
	fx := newPaymentFixture()
	fx.seedOrder(1, 10, detail(1, 1, "9.99", "12.00", true))
	fx.verifier.ev = completedEvent("evt_1")

	require.NoError(t, fx.svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))

	require.Len(t, fx.ledger.payments, 1)
	p := fx.ledger.payments[0]
	require.Equal(t, model.PaymentStatusSuccessful, p.Status)
	require.Equal(t, int64(1), p.OrderID)
	require.Equal(t, int64(10), p.ProfileID)
	require.Equal(t, "evt_1", p.ExternalPaymentID)
	require.True(t, p.Amount.Equal(price("9.99")))
	require.Equal(t, model.OrderStatusPaid, fx.orders.orders[1].Status)

	// Payment items record the catalog price at settlement time, which may
	// have moved since the order froze its own price.
	items := fx.ledger.itemsByID[p.PaymentID]
	require.Len(t, items, 1)
	require.Equal(t, int64(1), items[0].OrderItemID)
	require.True(t, items[0].PriceAtPayment.Equal(price("12.00")))
}

func TestWebhookRedeliveryIsNoOp(t *testing.T) {
	fx := newPaymentFixture()
	fx.seedOrder(1, 10, detail(1, 1, "9.99", "9.99", true))
	fx.verifier.ev = completedEvent("evt_1")

	require.NoError(t, fx.svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
	require.NoError(t, fx.svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
	require.NoError(t, fx.svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))

	require.Len(t, fx.ledger.payments, 1)
	require.Len(t, fx.ledger.itemsByID[1], 1)
	require.Equal(t, model.OrderStatusPaid, fx.orders.orders[1].Status)
}

func TestWebhookConstraintRaceIsNoOp(t *testing.T) {
	fx := newPaymentFixture()
	fx.seedOrder(1, 10, detail(1, 1, "9.99", "9.99", true))
	fx.verifier.ev = completedEvent("evt_1")

	require.NoError(t, fx.svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))

	// Simulate the pre-check missing a concurrent insert: the lookup says the
	// event is new, then the unique constraint rejects the row.
	fx.ledger.hideFromLookup = true
	err := fx.svc.HandleWebhook(context.Background(), []byte("{}"), "sig")
	require.NoError(t, err)
	require.Len(t, fx.ledger.payments, 1)
	require.Len(t, fx.ledger.itemsByID[1], 1)
}

func TestWebhookFailedEvent(t *testing.T) {
	fx := newPaymentFixture()
	fx.seedOrder(1, 10, detail(1, 1, "9.99", "9.99", true))
	fx.verifier.ev = st.Event{
		ID:   "evt_fail",
		Kind: "payment_intent.payment_failed",
		Metadata: map[string]string{
			"order_id":        "1",
			"user_profile_id": "10",
			"total_amount":    "9.99",
		},
	}

	require.NoError(t, fx.svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
	require.Len(t, fx.ledger.payments, 1)
	require.Equal(t, model.PaymentStatusCanceled, fx.ledger.payments[0].Status)
	require.Equal(t, model.OrderStatusCanceled, fx.orders.orders[1].Status)
}

func TestWebhookRefundAppendsToLedger(t *testing.T) {
	fx := newPaymentFixture()
	fx.seedOrder(1, 10, detail(1, 1, "9.99", "9.99", true))

	fx.verifier.ev = completedEvent("evt_pay")
	require.NoError(t, fx.svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))

	fx.verifier.ev = st.Event{
		ID:   "evt_refund",
		Kind: "charge.refunded",
		Metadata: map[string]string{
			"order_id":        "1",
			"user_profile_id": "10",
			"total_amount":    "9.99",
		},
	}
	require.NoError(t, fx.svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))

	require.Len(t, fx.ledger.payments, 2, "refund appends a row, it never rewrites one")
	require.Equal(t, model.PaymentStatusSuccessful, fx.ledger.payments[0].Status)
	require.Equal(t, model.PaymentStatusRefunded, fx.ledger.payments[1].Status)
	require.Equal(t, model.OrderStatusCanceled, fx.orders.orders[1].Status)
}

func TestWebhookUnmodeledEventIgnored(t *testing.T) {
	fx := newPaymentFixture()
	fx.verifier.ev = st.Event{ID: "evt_x", Kind: "customer.created"}

	require.NoError(t, fx.svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
	require.Empty(t, fx.ledger.payments)
}

func TestWebhookBadSignature(t *testing.T) {
	fx := newPaymentFixture()
	fx.verifier.err = apperrors.ErrInvalidSignature

	err := fx.svc.HandleWebhook(context.Background(), []byte("{}"), "bad")
	require.ErrorIs(t, err, apperrors.ErrInvalidSignature)
	require.Empty(t, fx.ledger.payments)
}

func TestWebhookBadMetadata(t *testing.T) {
	fx := newPaymentFixture()
	fx.seedOrder(1, 10, detail(1, 1, "9.99", "9.99", true))

	for name, md := range map[string]map[string]string{
		"missing order id": {"user_profile_id": "10", "total_amount": "9.99"},
		"garbage amount":   {"order_id": "1", "user_profile_id": "10", "total_amount": "a lot"},
		"zero profile":     {"order_id": "1", "user_profile_id": "0", "total_amount": "9.99"},
	} {
		fx.verifier.ev = st.Event{ID: "evt_bad", Kind: "checkout.session.completed", Metadata: md}
		err := fx.svc.HandleWebhook(context.Background(), []byte("{}"), "sig")
		require.ErrorIs(t, err, apperrors.ErrInvalidPayload, name)
	}
	require.Empty(t, fx.ledger.payments)
}

func TestWebhookUnknownOrder(t *testing.T) {
	fx := newPaymentFixture()
	fx.verifier.ev = completedEvent("evt_orphan")

	err := fx.svc.HandleWebhook(context.Background(), []byte("{}"), "sig")
	require.ErrorIs(t, err, apperrors.ErrOrderNotFound)
}

func TestWebhookItemFanOutFailureStillAcks(t *testing.T) {
	fx := newPaymentFixture()
	fx.seedOrder(1, 10, detail(1, 1, "9.99", "9.99", true))
	fx.verifier.ev = completedEvent("evt_1")
	fx.ledger.insertItemsErr = errors.New("insert payment items: connection reset")

	require.NoError(t, fx.svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
	require.Len(t, fx.ledger.payments, 1, "the payment itself must stay committed")
	require.Empty(t, fx.ledger.itemsByID[1])
}

func TestRepairPaymentItems(t *testing.T) {
	fx := newPaymentFixture()
	fx.ledger.payments = []*model.Payment{
		{PaymentID: 1, OrderID: 1, ProfileID: 10, Status: model.PaymentStatusSuccessful},
	}
	fx.ledger.mismatches = []repository.ItemMismatch{
		{PaymentID: 1, OrderID: 1, Expected: 1, Actual: 0},
	}
	fx.ledger.missing[1] = []model.PaymentItem{
		{OrderItemID: 1, PriceAtPayment: price("9.99")},
	}

	repaired, err := fx.svc.RepairPaymentItems(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, repaired)
	require.Len(t, fx.ledger.itemsByID[1], 1)

	// Second run finds nothing left to do.
	fx.ledger.mismatches = nil
	repaired, err = fx.svc.RepairPaymentItems(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, repaired)
}

func TestPaymentDetailVisibility(t *testing.T) {
	fx := newPaymentFixture()
	fx.ledger.payments = []*model.Payment{
		{PaymentID: 1, OrderID: 1, ProfileID: 10, Status: model.PaymentStatusSuccessful},
	}

	_, err := fx.svc.Detail(context.Background(), Actor{ProfileID: 11, Role: model.RoleUser}, 1)
	require.ErrorIs(t, err, apperrors.ErrPermissionDenied)

	p, err := fx.svc.Detail(context.Background(), Actor{ProfileID: 10, Role: model.RoleUser}, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), p.PaymentID)

	_, err = fx.svc.Detail(context.Background(), Actor{ProfileID: 11, Role: model.RoleModerator}, 1)
	require.NoError(t, err)

	_, err = fx.svc.Detail(context.Background(), Actor{ProfileID: 10, Role: model.RoleUser}, 404)
	require.ErrorIs(t, err, apperrors.ErrPaymentNotFound)
}

func TestPaymentAdminListRoleGate(t *testing.T) {
	fx := newPaymentFixture()
	_, _, err := fx.svc.AdminList(context.Background(), Actor{ProfileID: 10, Role: model.RoleUser}, model.AdminPaymentFilter{})
	require.ErrorIs(t, err, apperrors.ErrPermissionDenied)

	_, _, err = fx.svc.AdminList(context.Background(), Actor{ProfileID: 10, Role: model.RoleAdmin}, model.AdminPaymentFilter{})
	require.NoError(t, err)
}
