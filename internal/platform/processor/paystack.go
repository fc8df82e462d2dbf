package processor

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fatflowers/paysettle/pkg/types"
)

const paystackAPIBase = "https://api.paystack.co"

const paystackSignatureHeader = "X-Paystack-Signature"

type PaystackConfig struct {
	SecretKey string
	BaseURL   string
}

type Paystack struct {
	base      *BaseClient
	secretKey string
	baseURL   string
}

func NewPaystack(base *BaseClient, cfg PaystackConfig) *Paystack {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = paystackAPIBase
	}
	return &Paystack{base: base, secretKey: cfg.SecretKey, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (p *Paystack) Provider() types.PaymentProvider { return types.PaymentProviderPaystack }

// paystackEnvelope is the {status, message, data} wrapper of every response.
type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackTransaction struct {
	ID        int64           `json:"id"`
	Status    string          `json:"status"`
	Reference string          `json:"reference"`
	Amount    int64           `json:"amount"`
	Currency  string          `json:"currency"`
	PaidAt    *time.Time      `json:"paid_at"`
	Metadata  json.RawMessage `json:"metadata"`
	Customer  struct {
		Email        string `json:"email"`
		CustomerCode string `json:"customer_code"`
	} `json:"customer"`
	Authorization struct {
		AuthorizationCode string `json:"authorization_code"`
		Reusable          bool   `json:"reusable"`
	} `json:"authorization"`
}

func (t *paystackTransaction) normalize() *Transaction {
	tx := &Transaction{
		Provider:     types.PaymentProviderPaystack,
		Reference:    t.Reference,
		PaymentID:    fmt.Sprint(t.ID),
		Amount:       t.Amount,
		Currency:     strings.ToUpper(t.Currency),
		Succeeded:    t.Status == "success",
		Email:        strings.ToLower(t.Customer.Email),
		Metadata:     flattenMetadata(t.Metadata),
		CustomerCode: t.Customer.CustomerCode,
	}
	if t.Authorization.Reusable {
		tx.AuthorizationCode = t.Authorization.AuthorizationCode
	}
	if t.PaidAt != nil {
		tx.PaidAt = *t.PaidAt
	}
	return tx
}

// flattenMetadata keeps scalar metadata values as strings. Paystack sends
// metadata as an object, a JSON-encoded string, or an empty string.
func flattenMetadata(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil || s == "" {
			return nil
		}
		if json.Unmarshal([]byte(s), &obj) != nil {
			return nil
		}
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64, bool:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

func (p *Paystack) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	var tx paystackTransaction
	if err := p.call(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &tx); err != nil {
		return nil, fmt.Errorf("failed to verify paystack transaction %s: %w", reference, err)
	}
	return tx.normalize(), nil
}

func (p *Paystack) CreateSubscription(ctx context.Context, req SubscriptionRequest) (string, error) {
	body := map[string]string{
		"customer":      req.CustomerCode,
		"plan":          req.PlanCode,
		"authorization": req.Authorization,
	}
	var out struct {
		SubscriptionCode string `json:"subscription_code"`
	}
	if err := p.call(ctx, http.MethodPost, "/subscription", body, &out); err != nil {
		return "", fmt.Errorf("failed to create paystack subscription: %w", err)
	}
	if out.SubscriptionCode == "" {
		return "", fmt.Errorf("paystack returned no subscription code")
	}
	return out.SubscriptionCode, nil
}

// CancelSubscription disables the subscription. Paystack needs the email
// token, so the subscription is fetched first.
func (p *Paystack) CancelSubscription(ctx context.Context, code string) error {
	var sub struct {
		EmailToken string `json:"email_token"`
	}
	if err := p.call(ctx, http.MethodGet, "/subscription/"+url.PathEscape(code), nil, &sub); err != nil {
		return fmt.Errorf("failed to fetch paystack subscription %s: %w", code, err)
	}
	body := map[string]string{"code": code, "token": sub.EmailToken}
	if err := p.call(ctx, http.MethodPost, "/subscription/disable", body, nil); err != nil {
		return fmt.Errorf("failed to disable paystack subscription %s: %w", code, err)
	}
	return nil
}

func (p *Paystack) ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error) {
	if p.secretKey == "" {
		return nil, ErrNotConfigured
	}
	if !p.validSignature(payload, header.Get(paystackSignatureHeader)) {
		return nil, ErrInvalidSignature
	}
	var evt struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("failed to decode paystack event: %w", err)
	}
	out := &WebhookEvent{Provider: types.PaymentProviderPaystack, Type: evt.Event}
	if evt.Event != "charge.success" {
		return out, nil
	}
	var tx paystackTransaction
	if err := json.Unmarshal(evt.Data, &tx); err != nil {
		return nil, fmt.Errorf("failed to decode paystack charge: %w", err)
	}
	out.Transaction = tx.normalize()
	return out, nil
}

// validSignature checks the hex HMAC-SHA512 of the raw body.
func (p *Paystack) validSignature(payload []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(p.secretKey))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func (p *Paystack) call(ctx context.Context, method, path string, in any, out any) error {
	if p.secretKey == "" {
		return ErrNotConfigured
	}
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := p.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env paystackEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return &UpstreamError{Provider: "paystack", StatusCode: resp.StatusCode, Message: "undecodable response", Err: err}
	}
	if resp.StatusCode >= 400 || !env.Status {
		return &UpstreamError{Provider: "paystack", StatusCode: resp.StatusCode, Message: env.Message, Err: fmt.Errorf("request rejected")}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
