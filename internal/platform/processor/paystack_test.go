package processor

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chargeSuccess = `{
  "event": "charge.success",
  "data": {
    "id": 302961,
    "status": "success",
    "reference": "ref_abc",
    "amount": 2900,
    "currency": "ngn",
    "paid_at": "2026-03-01T10:00:00.000Z",
    "metadata": {"subscription_id": "sub-1", "attempt": 2},
    "customer": {"email": "Ada@Example.com", "customer_code": "CUS_1"},
    "authorization": {"authorization_code": "AUTH_1", "reusable": true}
  }
}`

func sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPaystackParseWebhook(t *testing.T) {
	p := NewPaystack(newTestBase(DefaultRetryPolicy()), PaystackConfig{SecretKey: "sk_test"})
	body := []byte(chargeSuccess)

	h := http.Header{}
	h.Set("x-paystack-signature", sign("sk_test", body))
	evt, err := p.ParseWebhook(body, h)
	require.NoError(t, err)
	require.NotNil(t, evt.Transaction)

	tx := evt.Transaction
	assert.Equal(t, "charge.success", evt.Type)
	assert.Equal(t, "ref_abc", tx.Reference)
	assert.EqualValues(t, 2900, tx.Amount)
	assert.Equal(t, "NGN", tx.Currency)
	assert.Equal(t, "ada@example.com", tx.Email)
	assert.True(t, tx.Succeeded)
	assert.Equal(t, "AUTH_1", tx.AuthorizationCode)
	assert.Equal(t, "CUS_1", tx.CustomerCode)
	assert.Equal(t, map[string]string{"subscription_id": "sub-1", "attempt": "2"}, tx.Metadata)
}

func TestPaystackParseWebhookRejectsBadSignature(t *testing.T) {
	p := NewPaystack(newTestBase(DefaultRetryPolicy()), PaystackConfig{SecretKey: "sk_test"})
	h := http.Header{}
	h.Set("x-paystack-signature", sign("other", []byte(chargeSuccess)))
	_, err := p.ParseWebhook([]byte(chargeSuccess), h)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = p.ParseWebhook([]byte(chargeSuccess), http.Header{})
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestPaystackIgnoresOtherEvents(t *testing.T) {
	p := NewPaystack(newTestBase(DefaultRetryPolicy()), PaystackConfig{SecretKey: "sk_test"})
	body := []byte(`{"event":"subscription.create","data":{}}`)
	h := http.Header{}
	h.Set("x-paystack-signature", sign("sk_test", body))
	evt, err := p.ParseWebhook(body, h)
	require.NoError(t, err)
	assert.Nil(t, evt.Transaction)
}

func TestFlattenMetadataVariants(t *testing.T) {
	assert.Nil(t, flattenMetadata(json.RawMessage(`""`)))
	assert.Equal(t, map[string]string{"subscription_id": "s"}, flattenMetadata(json.RawMessage(`"{\"subscription_id\":\"s\"}"`)))
	assert.Equal(t, map[string]string{}, flattenMetadata(json.RawMessage(`{"nested":{"a":1}}`)))
}

func TestPaystackAPI(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /transaction/verify/ref_abc", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		var evt struct {
			Data json.RawMessage `json:"data"`
		}
		_ = json.Unmarshal([]byte(chargeSuccess), &evt)
		_, _ = w.Write([]byte(`{"status":true,"message":"Verification successful","data":` + string(evt.Data) + `}`))
	})
	mux.HandleFunc("POST /subscription", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"customer": "CUS_1", "plan": "PLN_1", "authorization": "AUTH_1"}, body)
		_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"subscription_code":"SUB_1"}}`))
	})
	mux.HandleFunc("GET /subscription/SUB_1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"email_token":"tok"}}`))
	})
	mux.HandleFunc("POST /subscription/disable", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"code": "SUB_1", "token": "tok"}, body)
		_, _ = w.Write([]byte(`{"status":true,"message":"Subscription disabled successfully"}`))
	})
	mux.HandleFunc("GET /transaction/verify/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":false,"message":"Transaction reference not found"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx := context.Background()
	p := NewPaystack(newTestBase(DefaultRetryPolicy()), PaystackConfig{SecretKey: "sk_test", BaseURL: server.URL})

	tx, err := p.VerifyTransaction(ctx, "ref_abc")
	require.NoError(t, err)
	assert.True(t, tx.Succeeded)
	assert.EqualValues(t, 2900, tx.Amount)

	code, err := p.CreateSubscription(ctx, SubscriptionRequest{CustomerCode: "CUS_1", PlanCode: "PLN_1", Authorization: "AUTH_1"})
	require.NoError(t, err)
	assert.Equal(t, "SUB_1", code)

	require.NoError(t, p.CancelSubscription(ctx, "SUB_1"))

	_, err = p.VerifyTransaction(ctx, "missing")
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "Transaction reference not found", upstream.Message)
}

func TestPaystackWithoutKey(t *testing.T) {
	p := NewPaystack(newTestBase(DefaultRetryPolicy()), PaystackConfig{})
	_, err := p.VerifyTransaction(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
