// Package processor adapts payment processor APIs to the settlement engine:
// webhook verification and parsing, transaction lookup, and the best-effort
// subscription create and cancel calls made after activation.
package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fatflowers/paysettle/pkg/types"
)

var (
	ErrUnsupportedProvider = errors.New("processor: unsupported provider")
	ErrInvalidSignature    = errors.New("processor: invalid webhook signature")
	ErrNotConfigured       = errors.New("processor: credentials not configured")
)

// Transaction is a processor-side payment normalized for correlation.
// Amount is in minor units.
type Transaction struct {
	Provider          types.PaymentProvider `json:"provider"`
	Reference         string                `json:"reference"`
	PaymentID         string                `json:"payment_id"`
	Amount            int64                 `json:"amount"`
	Currency          string                `json:"currency"`
	Succeeded         bool                  `json:"succeeded"`
	Email             string                `json:"email,omitempty"`
	Metadata          map[string]string     `json:"metadata,omitempty"`
	AuthorizationCode string                `json:"-"`
	CustomerCode      string                `json:"customer_code,omitempty"`
	PaidAt            time.Time             `json:"paid_at"`
}

// WebhookEvent is a verified inbound notification. Transaction is set only
// for events that settle a payment.
type WebhookEvent struct {
	Provider    types.PaymentProvider
	Type        string
	Transaction *Transaction
}

type SubscriptionRequest struct {
	CustomerCode  string
	PlanCode      string
	Authorization string
}

type Processor interface {
	Provider() types.PaymentProvider
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (string, error)
	CancelSubscription(ctx context.Context, code string) error
	VerifyTransaction(ctx context.Context, reference string) (*Transaction, error)
	// ParseWebhook verifies the signature before decoding anything.
	ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error)
}

type Registry struct {
	processors map[types.PaymentProvider]Processor
	fallback   types.PaymentProvider
}

func NewRegistry(fallback types.PaymentProvider, ps ...Processor) *Registry {
	r := &Registry{processors: make(map[types.PaymentProvider]Processor, len(ps)), fallback: fallback}
	for _, p := range ps {
		r.processors[p.Provider()] = p
	}
	return r
}

// Get resolves a processor. An empty provider selects the default one.
func (r *Registry) Get(provider types.PaymentProvider) (Processor, error) {
	if provider == "" {
		provider = r.fallback
	}
	p, ok := r.processors[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	return p, nil
}
