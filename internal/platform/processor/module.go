package processor

import (
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/fatflowers/paysettle/pkg/config"
)

// NewRegistryFromConfig registers every processor. One without credentials
// still answers ErrNotConfigured so misconfiguration is visible per request.
func NewRegistryFromConfig(cfg *cfgpkg.Config, l *zap.SugaredLogger) *Registry {
	httpClient := &http.Client{Timeout: 20 * time.Second}
	paystack := NewPaystack(NewBaseClient(httpClient, "paystack", DefaultRetryPolicy()), PaystackConfig{
		SecretKey: cfg.Paystack.SecretKey,
		BaseURL:   cfg.Paystack.BaseURL,
	})
	stripeProc := NewStripe(NewBaseClient(httpClient, "stripe", DefaultRetryPolicy()), StripeConfig{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	})
	if cfg.Paystack.SecretKey == "" {
		l.Warnw("paystack secret key not configured")
	}
	if cfg.Stripe.SecretKey == "" {
		l.Warnw("stripe secret key not configured")
	}
	return NewRegistry(cfg.DefaultProvider, paystack, stripeProc)
}

var Module = fx.Options(
	fx.Provide(NewRegistryFromConfig),
)
