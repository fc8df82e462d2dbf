package correlation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fatflowers/paysettle/internal/app/store"
	"github.com/fatflowers/paysettle/internal/models"
	"github.com/fatflowers/paysettle/internal/platform/cache"
	"github.com/fatflowers/paysettle/pkg/config"
	"github.com/fatflowers/paysettle/pkg/logctx"
	"github.com/fatflowers/paysettle/pkg/metrics"
	"github.com/fatflowers/paysettle/pkg/money"
	"github.com/fatflowers/paysettle/pkg/types"
)

const (
	hintKeyPrefix = "payment_ref:"

	metadataTolerance = 0.05
	amountTolerance   = 0.02

	userLayerLimit   = 3
	amountLayerLimit = 5

	WarningManualReview = "manual review recommended"
)

var (
	lowerPriceFactor = decimal.NewFromFloat(1 + amountTolerance)
	upperPriceFactor = decimal.NewFromFloat(1 - amountTolerance)
)

// HintKey is the cache key checkout writes for a payment reference.
func HintKey(reference string) string {
	return hintKeyPrefix + reference
}

// Resolution is the full outcome of a match attempt. Match is nil when no
// candidate was accepted; Ambiguous tells a tie apart from no signal at all.
type Resolution struct {
	Match      *Match  `json:"match,omitempty"`
	Candidates []Match `json:"candidates"`
	Ambiguous  bool    `json:"ambiguous"`
}

type Matcher struct {
	store    store.Store
	hints    cache.Store
	hintTTL  time.Duration
	validate *validator.Validate
	log      *zap.SugaredLogger
}

func NewMatcher(st store.Store, hints cache.Store, cfg *config.Config, log *zap.SugaredLogger) *Matcher {
	return &Matcher{
		store:    st,
		hints:    hints,
		hintTTL:  cfg.Engine.ReferenceHintTTL,
		validate: newValidate(),
		log:      log,
	}
}

// RememberReference stores the reference to subscription mapping read by the
// exact-mapping layer.
func (m *Matcher) RememberReference(ctx context.Context, reference, subscriptionID string) error {
	reference = strings.TrimSpace(reference)
	if reference == "" || subscriptionID == "" {
		return fmt.Errorf("%w: reference and subscription id are required", ErrInvalidCorrelation)
	}
	if err := m.hints.Set(ctx, HintKey(reference), []byte(subscriptionID), m.hintTTL); err != nil {
		return fmt.Errorf("failed to store reference hint: %w", err)
	}
	return nil
}

// FindBestMatch returns the accepted candidate or nil.
func (m *Matcher) FindBestMatch(ctx context.Context, c Correlation) (*Match, error) {
	res, err := m.Resolve(ctx, c)
	if err != nil {
		return nil, err
	}
	return res.Match, nil
}

// Resolve gathers candidates from every signal layer and applies the
// selection rule.
func (m *Matcher) Resolve(ctx context.Context, c Correlation) (*Resolution, error) {
	start := time.Now()
	lg := logctx.FromCtx(ctx, m.log).With("reference", c.Reference)

	c.Normalize()
	// A malformed payer email only disables the email-based layer.
	if c.Email != "" && m.validate.Var(c.Email, "email") != nil {
		lg.Warnw("ignoring malformed payer email")
		c.Email = ""
	}
	if err := m.validate.Struct(c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCorrelation, err)
	}

	var candidates []Match
	layers := []func(context.Context, Correlation) ([]Match, error){
		m.exactMapping,
		m.metadataSubscription,
		m.userAmount,
	}
	for _, layer := range layers {
		found, err := layer(ctx, c)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, found...)
	}
	if len(candidates) == 0 {
		found, err := m.amountOnly(ctx, c)
		if err != nil {
			return nil, err
		}
		candidates = found
	}

	candidates = rank(dedupe(candidates))
	res := selectMatch(candidates)

	outcome := "matched"
	switch {
	case res.Ambiguous:
		outcome = "ambiguous"
	case res.Match == nil:
		outcome = "none"
	}
	metrics.IncOutcome("match", outcome)
	metrics.ObserveProcess("matcher", outcome, start)
	lg.Debugw("correlation resolved", "outcome", outcome, "candidates", len(candidates))
	return res, nil
}

// exactMapping reads the checkout hint. A hint cache outage only removes
// this signal; the remaining layers still run.
func (m *Matcher) exactMapping(ctx context.Context, c Correlation) ([]Match, error) {
	raw, found, err := m.hints.Get(ctx, HintKey(c.Reference))
	if err != nil {
		logctx.FromCtx(ctx, m.log).Warnw("reference hint lookup failed", "reference", c.Reference, "err", err)
		return nil, nil
	}
	if !found || len(raw) == 0 {
		return nil, nil
	}
	sub, err := m.incompleteSubscription(ctx, string(raw))
	if err != nil || sub == nil {
		return nil, err
	}
	return []Match{{
		SubscriptionID: sub.ID,
		Confidence:     100,
		Priority:       1000,
		MatchReasons:   []string{"exact reference mapping"},
	}}, nil
}

func (m *Matcher) metadataSubscription(ctx context.Context, c Correlation) ([]Match, error) {
	id := c.MetadataSubscriptionID()
	if id == "" {
		return nil, nil
	}
	sub, err := m.incompleteSubscription(ctx, id)
	if err != nil || sub == nil {
		return nil, err
	}

	var warnings []string
	if c.Email != "" {
		user, err := m.store.GetUser(ctx, sub.UserID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			warnings = append(warnings, "subscription owner not found")
		case err != nil:
			return nil, fmt.Errorf("failed to load subscription owner: %w", err)
		case !strings.EqualFold(user.Email, c.Email):
			warnings = append(warnings, "email mismatch")
		}
	}
	if sub.Plan != nil && !money.WithinTolerance(money.ToMinor(sub.Plan.Price), c.Amount, metadataTolerance) {
		warnings = append(warnings, "amount outside 5% tolerance")
	}

	confidence := 95
	if len(warnings) > 0 {
		confidence = 85
	}
	return []Match{{
		SubscriptionID: sub.ID,
		Confidence:     confidence,
		Priority:       900 - 50*len(warnings),
		MatchReasons:   []string{"subscription id in payment metadata"},
		Warnings:       warnings,
	}}, nil
}

func (m *Matcher) userAmount(ctx context.Context, c Correlation) ([]Match, error) {
	if c.Email == "" {
		return nil, nil
	}
	user, err := m.store.FindUserByEmail(ctx, c.Email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	subs, err := m.store.ListSubscriptions(ctx, store.SubscriptionQuery{
		UserID:   user.ID,
		Statuses: []types.SubscriptionStatus{types.SubscriptionStatusIncomplete},
		Limit:    userLayerLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list user subscriptions: %w", err)
	}

	var out []Match
	for i, sub := range subs {
		if sub.Plan == nil {
			continue
		}
		expected := money.ToMinor(sub.Plan.Price)
		if !money.WithinTolerance(expected, c.Amount, amountTolerance) {
			continue
		}
		confidence, reason := 70, "user email and approximate amount"
		if expected == c.Amount {
			confidence, reason = 80, "user email and exact amount"
		}
		out = append(out, Match{
			SubscriptionID: sub.ID,
			Confidence:     confidence,
			Priority:       800 - 100*i,
			MatchReasons:   []string{reason},
		})
	}
	return out, nil
}

// amountOnly searches by plan price and currency. The store filters on a
// price window derived from the tolerance; the exact relative check is
// repeated here in minor units.
func (m *Matcher) amountOnly(ctx context.Context, c Correlation) ([]Match, error) {
	paid := money.FromMinor(c.Amount)
	minPrice := paid.Div(lowerPriceFactor).RoundFloor(2)
	maxPrice := paid.Div(upperPriceFactor).RoundCeil(2)
	subs, err := m.store.ListSubscriptions(ctx, store.SubscriptionQuery{
		Statuses: []types.SubscriptionStatus{types.SubscriptionStatusIncomplete},
		Currency: c.Currency,
		PriceMin: &minPrice,
		PriceMax: &maxPrice,
		Limit:    amountLayerLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search subscriptions by amount: %w", err)
	}

	var out []Match
	for i, sub := range subs {
		if sub.Plan == nil || !strings.EqualFold(sub.Plan.Currency, c.Currency) {
			continue
		}
		expected := money.ToMinor(sub.Plan.Price)
		if !money.WithinTolerance(expected, c.Amount, amountTolerance) {
			continue
		}
		confidence, reason := 50, "approximate amount and currency"
		if expected == c.Amount {
			confidence, reason = 60, "exact amount and currency"
		}
		out = append(out, Match{
			SubscriptionID: sub.ID,
			Confidence:     confidence,
			Priority:       500 - 50*i,
			MatchReasons:   []string{reason},
		})
	}
	return out, nil
}

// incompleteSubscription returns nil without error when the subscription is
// missing or no longer awaiting payment.
func (m *Matcher) incompleteSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	sub, err := m.store.GetSubscription(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription %s: %w", id, err)
	}
	if sub.Status != types.SubscriptionStatusIncomplete {
		return nil, nil
	}
	return sub, nil
}

// dedupe keeps one entry per subscription: the highest priority one, with the
// reasons and warnings of the others merged in.
func dedupe(cands []Match) []Match {
	grouped := lo.GroupBy(cands, func(c Match) string { return c.SubscriptionID })
	out := make([]Match, 0, len(grouped))
	for _, group := range grouped {
		best := lo.MaxBy(group, func(a, b Match) bool {
			if a.Priority != b.Priority {
				return a.Priority > b.Priority
			}
			return a.Confidence > b.Confidence
		})
		for _, g := range group {
			best.MatchReasons = append(best.MatchReasons, g.MatchReasons...)
			best.Warnings = append(best.Warnings, g.Warnings...)
		}
		best.MatchReasons = lo.Uniq(best.MatchReasons)
		best.Warnings = lo.Uniq(best.Warnings)
		out = append(out, best)
	}
	return out
}

func rank(cands []Match) []Match {
	slices.SortStableFunc(cands, func(a, b Match) int {
		if a.Priority != b.Priority {
			return b.Priority - a.Priority
		}
		if a.Confidence != b.Confidence {
			return b.Confidence - a.Confidence
		}
		return strings.Compare(a.SubscriptionID, b.SubscriptionID)
	})
	return cands
}

// selectMatch expects ranked candidates.
func selectMatch(cands []Match) *Resolution {
	res := &Resolution{Candidates: cands}
	if len(cands) == 0 {
		return res
	}
	top := cands[0]
	switch {
	case top.Confidence >= 70:
		res.Match = &top
	case top.Confidence >= 50:
		rivals := lo.CountBy(cands[1:], func(c Match) bool { return c.Confidence >= 50 })
		if rivals > 0 {
			res.Ambiguous = true
			return res
		}
		top.Warnings = append(slices.Clone(top.Warnings), WarningManualReview)
		res.Match = &top
	}
	return res
}
