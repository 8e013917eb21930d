package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sohail-eng/online-cinema/internal/apperrors"
)

const testSigningSecret = "whsec_test_secret"

// sign builds the v1 signature header the processor would attach.
func sign(t *testing.T, payload []byte, secret string, at time.Time) string {
	t.Helper()
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func eventPayload() []byte {
	return []byte(`{
		"id": "evt_123",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"metadata": {
					"order_id": "1",
					"user_profile_id": "10",
					"total_amount": "9.99"
				}
			}
		}
	}`)
}

func TestVerifyEvent(t *testing.T) {
	v := NewVerifier(testSigningSecret)
	payload := eventPayload()

	ev, err := v.VerifyEvent(payload, sign(t, payload, testSigningSecret, time.Now()))
	require.NoError(t, err)
	require.Equal(t, "evt_123", ev.ID)
	require.Equal(t, "checkout.session.completed", ev.Kind)
	require.Equal(t, "1", ev.Metadata["order_id"])
	require.Equal(t, "10", ev.Metadata["user_profile_id"])
	require.Equal(t, "9.99", ev.Metadata["total_amount"])
}

func TestVerifyEventBadSignature(t *testing.T) {
	v := NewVerifier(testSigningSecret)
	payload := eventPayload()

	cases := map[string]string{
		"empty header":  "",
		"garbage":       "t=abc,v1=zzz",
		"wrong secret":  sign(t, payload, "whsec_other", time.Now()),
		"stale":         sign(t, payload, testSigningSecret, time.Now().Add(-time.Hour)),
		"tampered body": sign(t, append(payload, ' '), testSigningSecret, time.Now()),
	}
	for name, header := range cases {
		_, err := v.VerifyEvent(payload, header)
		require.ErrorIs(t, err, apperrors.ErrInvalidSignature, name)
	}
}

func TestVerifyEventBadBody(t *testing.T) {
	v := NewVerifier(testSigningSecret)
	payload := []byte(`{"id": "evt_1", "type":`)

	_, err := v.VerifyEvent(payload, sign(t, payload, testSigningSecret, time.Now()))
	require.Error(t, err)
	require.NotErrorIs(t, err, apperrors.ErrInvalidSignature, "a signed but malformed body is a payload problem")
}

func TestVerifyEventWithoutMetadata(t *testing.T) {
	v := NewVerifier(testSigningSecret)
	payload := []byte(`{"id": "evt_9", "type": "customer.created", "data": {"object": {}}}`)

	ev, err := v.VerifyEvent(payload, sign(t, payload, testSigningSecret, time.Now()))
	require.NoError(t, err)
	require.Equal(t, "customer.created", ev.Kind)
	require.Empty(t, ev.Metadata)
}
