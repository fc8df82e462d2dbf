package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/fatflowers/paysettle/pkg/types"
)

const stripeAPIBase = "https://api.stripe.com"

const stripeSignatureHeader = "Stripe-Signature"

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
}

// Stripe talks to the REST API through BaseClient and uses stripe-go for
// webhook verification and resource decoding.
type Stripe struct {
	base          *BaseClient
	secretKey     string
	webhookSecret string
	baseURL       string
}

func NewStripe(base *BaseClient, cfg StripeConfig) *Stripe {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	return &Stripe{
		base:          base,
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
	}
}

func (s *Stripe) Provider() types.PaymentProvider { return types.PaymentProviderStripe }

func normalizeIntent(pi *stripe.PaymentIntent) *Transaction {
	tx := &Transaction{
		Provider:  types.PaymentProviderStripe,
		Reference: pi.ID,
		PaymentID: pi.ID,
		Amount:    pi.Amount,
		Currency:  strings.ToUpper(string(pi.Currency)),
		Succeeded: pi.Status == stripe.PaymentIntentStatusSucceeded,
		Email:     strings.ToLower(pi.ReceiptEmail),
		Metadata:  pi.Metadata,
	}
	if ref := pi.Metadata["reference"]; ref != "" {
		tx.Reference = ref
	}
	if tx.Email == "" {
		tx.Email = strings.ToLower(pi.Metadata["email"])
	}
	if pi.PaymentMethod != nil {
		tx.AuthorizationCode = pi.PaymentMethod.ID
	}
	if pi.Customer != nil {
		tx.CustomerCode = pi.Customer.ID
	}
	if pi.Created > 0 {
		tx.PaidAt = time.Unix(pi.Created, 0).UTC()
	}
	return tx
}

func (s *Stripe) ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error) {
	if s.webhookSecret == "" {
		return nil, ErrNotConfigured
	}
	evt, err := webhook.ConstructEventWithOptions(payload, header.Get(stripeSignatureHeader), s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	out := &WebhookEvent{Provider: types.PaymentProviderStripe, Type: string(evt.Type)}
	if string(evt.Type) != "payment_intent.succeeded" || evt.Data == nil {
		return out, nil
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("failed to decode payment intent: %w", err)
	}
	out.Transaction = normalizeIntent(&pi)
	return out, nil
}

// VerifyTransaction looks the reference up as a payment intent id.
func (s *Stripe) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	var pi stripe.PaymentIntent
	if err := s.call(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(reference), nil, &pi); err != nil {
		return nil, fmt.Errorf("failed to retrieve payment intent %s: %w", reference, err)
	}
	return normalizeIntent(&pi), nil
}

func (s *Stripe) CreateSubscription(ctx context.Context, req SubscriptionRequest) (string, error) {
	form := url.Values{}
	form.Set("customer", req.CustomerCode)
	form.Set("items[0][price]", req.PlanCode)
	if req.Authorization != "" {
		form.Set("default_payment_method", req.Authorization)
	}
	var sub stripe.Subscription
	if err := s.call(ctx, http.MethodPost, "/v1/subscriptions", form, &sub); err != nil {
		return "", fmt.Errorf("failed to create stripe subscription: %w", err)
	}
	if sub.ID == "" {
		return "", errors.New("stripe returned no subscription id")
	}
	return sub.ID, nil
}

func (s *Stripe) CancelSubscription(ctx context.Context, code string) error {
	if err := s.call(ctx, http.MethodDelete, "/v1/subscriptions/"+url.PathEscape(code), nil, nil); err != nil {
		return fmt.Errorf("failed to cancel stripe subscription %s: %w", code, err)
	}
	return nil
}

type stripeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Stripe) call(ctx context.Context, method, path string, form url.Values, out any) error {
	if s.secretKey == "" {
		return ErrNotConfigured
	}
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)

	resp, err := s.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var e stripeErrorResponse
		_ = json.Unmarshal(raw, &e)
		return &UpstreamError{Provider: "stripe", StatusCode: resp.StatusCode, Message: e.Error.Message, Err: fmt.Errorf("%s", e.Error.Code)}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
