package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusSuccessful PaymentStatus = "SUCCESSFUL"
	PaymentStatusCanceled   PaymentStatus = "CANCELED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

// Payment is one ledger entry per processor callback. The ledger is
// append-only: a refund adds a new row, it never touches the successful one.
// ExternalPaymentID is the processor event id and deduplicates redeliveries.
type Payment struct {
	PaymentID         int64           `json:"payment_id"`
	ProfileID         int64           `json:"user_profile_id"`
	OrderID           int64           `json:"order_id"`
	Status            PaymentStatus   `json:"status"`
	Amount            decimal.Decimal `json:"amount"`
	ExternalPaymentID string          `json:"external_payment_id"`
	CreatedAt         time.Time       `json:"created_at"`
	Items             []PaymentItem   `json:"items,omitempty"`
}

// PaymentItem records the price of one settled order item at payment time.
// It may differ from price_at_order if the catalog price moved between order
// creation and settlement; both are kept.
type PaymentItem struct {
	PaymentItemID  int64           `json:"payment_item_id"`
	PaymentID      int64           `json:"payment_id"`
	OrderItemID    int64           `json:"order_item_id"`
	PriceAtPayment decimal.Decimal `json:"price_at_payment"`
}

// AdminPaymentFilter narrows the admin payment listing.
type AdminPaymentFilter struct {
	UserEmail    string
	CreatedAfter *time.Time
	Status       PaymentStatus
	Offset       int
	Limit        int
}
