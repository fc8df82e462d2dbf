// Package correlation decides which pending subscription an inbound payment
// belongs to. The Matcher ranks candidates from several independent signals
// and the Validator re-checks the chosen one against fresh state.
package correlation

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidCorrelation = errors.New("correlation: invalid record")

// Correlation is the normalized view of an inbound payment. Amount is in
// minor units.
type Correlation struct {
	Reference string            `json:"reference" validate:"required,max=128"`
	Amount    int64             `json:"amount" validate:"gt=0"`
	Currency  string            `json:"currency" validate:"required,len=3"`
	Email     string            `json:"email,omitempty" validate:"omitempty,email"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	PaymentID string            `json:"payment_id,omitempty"`
}

// Normalize trims the record and upper-cases the currency.
func (c *Correlation) Normalize() {
	c.Reference = strings.TrimSpace(c.Reference)
	c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
}

// MetadataSubscriptionID returns the subscription id checkout embedded in the
// processor metadata, if any.
func (c *Correlation) MetadataSubscriptionID() string {
	for _, k := range []string{"subscription_id", "subscriptionId"} {
		if v := strings.TrimSpace(c.Metadata[k]); v != "" {
			return v
		}
	}
	return ""
}

// Match is a ranked candidate. It is never persisted except as operator
// context on an unmatched payment.
type Match struct {
	SubscriptionID string   `json:"subscription_id"`
	Confidence     int      `json:"confidence"`
	MatchReasons   []string `json:"match_reasons"`
	Warnings       []string `json:"warnings,omitempty"`
	Priority       int      `json:"priority"`
}

func newValidate() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}
