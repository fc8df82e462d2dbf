package processor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const intentSucceeded = `{
  "id": "evt_1",
  "object": "event",
  "api_version": "2020-08-27",
  "type": "payment_intent.succeeded",
  "data": {
    "object": {
      "id": "pi_123",
      "object": "payment_intent",
      "amount": 2900,
      "currency": "usd",
      "status": "succeeded",
      "created": 1772359200,
      "receipt_email": "Ada@Example.com",
      "customer": "cus_1",
      "payment_method": "pm_1",
      "metadata": {"reference": "chk_ref_1", "subscription_id": "sub-1"}
    }
  }
}`

func TestStripeParseWebhook(t *testing.T) {
	s := NewStripe(newTestBase(DefaultRetryPolicy()), StripeConfig{SecretKey: "sk", WebhookSecret: "whsec_test"})
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(intentSucceeded),
		Secret:    "whsec_test",
		Timestamp: time.Now(),
	})
	h := http.Header{}
	h.Set("Stripe-Signature", signed.Header)

	evt, err := s.ParseWebhook(signed.Payload, h)
	require.NoError(t, err)
	require.NotNil(t, evt.Transaction)
	tx := evt.Transaction
	assert.Equal(t, "chk_ref_1", tx.Reference)
	assert.Equal(t, "pi_123", tx.PaymentID)
	assert.EqualValues(t, 2900, tx.Amount)
	assert.Equal(t, "USD", tx.Currency)
	assert.Equal(t, "ada@example.com", tx.Email)
	assert.Equal(t, "pm_1", tx.AuthorizationCode)
	assert.Equal(t, "cus_1", tx.CustomerCode)
	assert.True(t, tx.Succeeded)
	assert.Equal(t, "sub-1", tx.Metadata["subscription_id"])
}

func TestStripeParseWebhookRejectsBadSignature(t *testing.T) {
	s := NewStripe(newTestBase(DefaultRetryPolicy()), StripeConfig{WebhookSecret: "whsec_test"})
	h := http.Header{}
	h.Set("Stripe-Signature", "t=1,v1=deadbeef")
	_, err := s.ParseWebhook([]byte(intentSucceeded), h)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestStripeAPI(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/payment_intents/pi_123", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Stripe-Version"))
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","amount":2900,"currency":"usd","status":"processing"}`))
	})
	mux.HandleFunc("POST /v1/subscriptions", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "cus_1", r.PostForm.Get("customer"))
		assert.Equal(t, "price_1", r.PostForm.Get("items[0][price]"))
		assert.Equal(t, "pm_1", r.PostForm.Get("default_payment_method"))
		_, _ = w.Write([]byte(`{"id":"sub_1","object":"subscription"}`))
	})
	mux.HandleFunc("DELETE /v1/subscriptions/sub_missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such subscription"}}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx := context.Background()
	s := NewStripe(newTestBase(DefaultRetryPolicy()), StripeConfig{SecretKey: "sk_test", BaseURL: server.URL})

	tx, err := s.VerifyTransaction(ctx, "pi_123")
	require.NoError(t, err)
	assert.False(t, tx.Succeeded)
	assert.Equal(t, "pi_123", tx.Reference)

	id, err := s.CreateSubscription(ctx, SubscriptionRequest{CustomerCode: "cus_1", PlanCode: "price_1", Authorization: "pm_1"})
	require.NoError(t, err)
	assert.Equal(t, "sub_1", id)

	err = s.CancelSubscription(ctx, "sub_missing")
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusNotFound, upstream.StatusCode)
	assert.Equal(t, "No such subscription", upstream.Message)
}
