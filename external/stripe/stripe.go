// Package stripe wraps the processor SDK behind the two operations this
// system depends on: creating a checkout session and verifying a signed
// webhook event.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/sohail-eng/online-cinema/internal/apperrors"
)

// LineItem is one priced row of a checkout session. UnitAmount is in cents.
type LineItem struct {
	Name       string
	UnitAmount int64
	Quantity   int64
}

// SessionRequest carries everything the processor needs to build a session.
// Metadata is opaque to the processor and echoed back on settlement.
type SessionRequest struct {
	ClientReferenceID string
	LineItems         []LineItem
	Metadata          map[string]string
}

// Event is a verified webhook event. Kind is the processor's event type
// string; Metadata is what was attached to the session at creation time.
type Event struct {
	ID       string
	Kind     string
	Metadata map[string]string
}

// Client creates checkout sessions with a bounded timeout per call.
type Client struct {
	api        *client.API
	successURL string
	cancelURL  string
	timeout    time.Duration
}

func NewClient(secretKey, successURL, cancelURL string, timeout time.Duration) *Client {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &Client{
		api:        api,
		successURL: successURL,
		cancelURL:  cancelURL,
		timeout:    timeout,
	}
}

// CreateSession requests a checkout session and returns the redirect URL.
func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripego.CheckoutSessionParams{
		Mode:              stripego.String(string(stripego.CheckoutSessionModePayment)),
		SuccessURL:        stripego.String(c.successURL),
		CancelURL:         stripego.String(c.cancelURL),
		ClientReferenceID: stripego.String(req.ClientReferenceID),
	}
	params.Context = ctx
	for _, li := range req.LineItems {
		params.LineItems = append(params.LineItems, &stripego.CheckoutSessionLineItemParams{
			PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
				Currency: stripego.String(string(stripego.CurrencyUSD)),
				ProductData: &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripego.String(li.Name),
				},
				UnitAmount: stripego.Int64(li.UnitAmount),
			},
			Quantity: stripego.Int64(li.Quantity),
		})
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrCheckoutCreation, err)
	}
	return sess.URL, nil
}

// Verifier checks webhook signatures against the signing secret.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// VerifyEvent verifies the signature header before parsing the body. The
// processor retries on non-2xx, so the distinction matters: a bad signature
// must never be acknowledged.
func (v *Verifier) VerifyEvent(payload []byte, sigHeader string) (Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, sigHeader, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) ||
			errors.Is(err, webhook.ErrInvalidHeader) ||
			errors.Is(err, webhook.ErrNoValidSignature) ||
			errors.Is(err, webhook.ErrTooOld) {
			return Event{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidSignature, err)
		}
		return Event{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidPayload, err)
	}

	var obj struct {
		Metadata map[string]string `json:"metadata"`
	}
	if ev.Data != nil && len(ev.Data.Raw) > 0 {
		if err := json.Unmarshal(ev.Data.Raw, &obj); err != nil {
			return Event{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidPayload, err)
		}
	}
	return Event{ID: ev.ID, Kind: string(ev.Type), Metadata: obj.Metadata}, nil
}
