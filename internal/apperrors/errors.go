// Package apperrors is the closed set of failure values the service layer
// returns. Handlers translate them to HTTP statuses in exactly one place;
// nothing else inspects error strings.
package apperrors

import "errors"

var (
	ErrMovieNotFound    = errors.New("movie was not found")
	ErrCartNotFound     = errors.New("cart was not found")
	ErrCartItemNotFound = errors.New("movie is not in the cart")
	ErrOrderNotFound    = errors.New("order was not found")
	ErrPaymentNotFound  = errors.New("payment was not found")

	ErrPermissionDenied = errors.New("permission denied")

	// ErrAlreadyOwnedOrStaged covers both duplicate cart entries and movies
	// already covered by a settled purchase.
	ErrAlreadyOwnedOrStaged = errors.New("movie is already purchased or in the cart")

	ErrEmptyOrder        = errors.New("order has no items")
	ErrInvalidOrderState = errors.New("order is not in a state that allows this")

	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")

	ErrCheckoutCreation = errors.New("checkout session creation failed")

	// ErrDuplicateEvent marks a webhook redelivery. Callers downgrade it to a
	// successful no-op; it must never reach a client as a failure.
	ErrDuplicateEvent = errors.New("payment event already processed")
)
