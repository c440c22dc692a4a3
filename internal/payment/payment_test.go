package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-admission/internal/clock"
	"github.com/Shivanand-hulikatti/event-admission/internal/config"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
)

const secret = "whsec_test"

var now = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func TestVerifier(t *testing.T) {
	t.Parallel()
	v := NewVerifier(secret, 5*time.Minute, clock.NewFixed(now))
	body := []byte(`{"id":"evt_1","type":"checkout.completed","reference":"cs_1","client_reference":"pay_1","amount":2500}`)

	t.Run("accepts a valid signature", func(t *testing.T) {
		ev, err := v.Verify(body, Sign(secret, now, body))
		require.NoError(t, err)
		assert.Equal(t, model.PaymentEventCompleted, ev.Type)
		assert.Equal(t, "cs_1", ev.Reference)
		assert.Equal(t, "pay_1", ev.ClientReference)
		assert.Equal(t, int64(2500), ev.AmountCents)
	})

	t.Run("accepts any matching v1 during secret rotation", func(t *testing.T) {
		other := Sign("old_secret", now, body)
		good := Sign(secret, now, body)
		header := other + ",v1=" + strings.SplitN(good, "v1=", 2)[1]
		_, err := v.Verify(body, header)
		require.NoError(t, err)
	})

	cases := map[string]string{
		"missing header":   "",
		"garbage":          "nonsense",
		"wrong secret":     Sign("other", now, body),
		"tampered body":    Sign(secret, now, []byte(`{"type":"checkout.completed"}`)),
		"stale timestamp":  Sign(secret, now.Add(-10*time.Minute), body),
		"future timestamp": Sign(secret, now.Add(10*time.Minute), body),
		"non-hex":          "t=1772388000,v1=zz",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(body, header)
			require.ErrorIs(t, err, model.ErrExternalPayload)
		})
	}

	t.Run("rejects signed but malformed body", func(t *testing.T) {
		bad := []byte(`{"type":`)
		_, err := v.Verify(bad, Sign(secret, now, bad))
		require.ErrorIs(t, err, model.ErrExternalPayload)

		noRef := []byte(`{"type":"checkout.completed"}`)
		_, err = v.Verify(noRef, Sign(secret, now, noRef))
		require.ErrorIs(t, err, model.ErrExternalPayload)
	})

	t.Run("unknown types need no reference", func(t *testing.T) {
		other := []byte(`{"id":"evt_9","type":"customer.updated"}`)
		ev, err := v.Verify(other, Sign(secret, now, other))
		require.NoError(t, err)
		assert.Equal(t, model.PaymentEventType("customer.updated"), ev.Type)
	})

	t.Run("zero tolerance skips the clock", func(t *testing.T) {
		lax := NewVerifier(secret, 0, clock.NewFixed(now))
		_, err := lax.Verify(body, Sign(secret, now.Add(-48*time.Hour), body))
		require.NoError(t, err)
	})
}

func TestClientCreateCheckoutSession(t *testing.T) {
	var got sessionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "pay_1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_1","url":"https://pay.test/cs_1"}`))
	}))
	defer srv.Close()

	c := NewClient(config.Payment{BaseURL: srv.URL + "/", APIKey: "sk_test", Currency: "usd", Timeout: time.Second})
	session, err := c.CreateCheckoutSession(context.Background(), model.CheckoutSessionRequest{
		PaymentID:   "pay_1",
		AmountCents: 2500,
		Description: "Registration: Gala",
		CustomerRef: "user-1",
		SuccessURL:  "https://club.test/ok",
		CancelURL:   "https://club.test/cancel",
		Metadata:    model.PaymentMetadata{EventID: "ev-1", EventSlug: "gala", EventTitle: "Gala"},
	})
	require.NoError(t, err)

	assert.Equal(t, "cs_1", session.Reference)
	assert.Equal(t, "https://pay.test/cs_1", session.RedirectURL)
	assert.Equal(t, "pay_1", got.ClientReference)
	assert.Equal(t, int64(2500), got.Amount)
	assert.Equal(t, "usd", got.Currency)
	assert.Equal(t, "gala", got.Metadata.EventSlug)
}

func TestClientSurfacesProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"message":"amount too small"}}`))
	}))
	defer srv.Close()

	c := NewClient(config.Payment{BaseURL: srv.URL, APIKey: "sk_test", Currency: "usd"})
	_, err := c.CreateCheckoutSession(context.Background(), model.CheckoutSessionRequest{PaymentID: "pay_1", AmountCents: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount too small")
}
