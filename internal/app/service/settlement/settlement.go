// Package settlement turns an inbound payment into an activation, or parks
// it in the unmatched queue for an operator when it cannot be attributed
// safely.
package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/paysettle/internal/app/service/activation"
	"github.com/fatflowers/paysettle/internal/app/service/audit"
	"github.com/fatflowers/paysettle/internal/app/service/correlation"
	"github.com/fatflowers/paysettle/internal/app/store"
	"github.com/fatflowers/paysettle/internal/models"
	"github.com/fatflowers/paysettle/pkg/logctx"
	"github.com/fatflowers/paysettle/pkg/metrics"
	"github.com/fatflowers/paysettle/pkg/types"
)

type Outcome string

const (
	OutcomeActivated     Outcome = "activated"
	OutcomeAlreadyActive Outcome = "already_active"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeUnmatched     Outcome = "unmatched"
	OutcomeRejected      Outcome = "rejected"
	OutcomeRetry         Outcome = "retry"
)

var (
	ErrUnmatchedNotFound = errors.New("settlement: unmatched payment not found")
	ErrAlreadyResolved   = errors.New("settlement: unmatched payment already resolved")
	ErrInvalidFilter     = errors.New("settlement: invalid filter")
)

// Request is one settled payment. SubscriptionID skips matching when the
// caller already knows the owner.
type Request struct {
	Correlation        correlation.Correlation
	SubscriptionID     string
	Provider           types.PaymentProvider
	AuthorizationCode  string
	ProviderCustomerID string
	PaidAt             time.Time
	Source             types.ActivationSource
}

type Result struct {
	Outcome        Outcome            `json:"outcome"`
	SubscriptionID string             `json:"subscription_id,omitempty"`
	Match          *correlation.Match `json:"match,omitempty"`
	Reason         string             `json:"reason,omitempty"`
	Activation     *activation.Result `json:"activation,omitempty"`
	UnmatchedID    string             `json:"unmatched_id,omitempty"`
}

// Retryable reports whether the sender should redeliver later.
func (r *Result) Retryable() bool { return r.Outcome == OutcomeRetry }

type Service struct {
	store      store.Store
	matcher    *correlation.Matcher
	validator  *correlation.Validator
	activation *activation.Service
	audit      *audit.Service
	log        *zap.SugaredLogger
}

func NewService(st store.Store, matcher *correlation.Matcher, validator *correlation.Validator, act *activation.Service, auditSvc *audit.Service, log *zap.SugaredLogger) *Service {
	return &Service{store: st, matcher: matcher, validator: validator, activation: act, audit: auditSvc, log: log}
}

// Settle attributes the payment to a subscription and activates it.
func (s *Service) Settle(ctx context.Context, req Request) (res *Result, err error) {
	start := time.Now()
	c := req.Correlation
	c.Normalize()
	lg := logctx.FromCtx(ctx, s.log).With("reference", c.Reference, "source", req.Source)
	defer func() {
		outcome := "error"
		if err == nil {
			outcome = string(res.Outcome)
		}
		metrics.IncOutcome("settle", outcome)
		metrics.ObserveProcess("settlement", outcome, start)
	}()

	match, err := s.knownOwner(ctx, req.SubscriptionID, c.Reference)
	if err != nil {
		return nil, err
	}
	if match == nil {
		resolution, err := s.matcher.Resolve(ctx, c)
		if err != nil {
			return nil, err
		}
		if resolution.Match == nil {
			reason := lo.Ternary(resolution.Ambiguous, types.UnmatchedReasonAmbiguous, types.UnmatchedReasonNoMatch)
			return s.park(ctx, req, c, reason, "", resolution.Candidates)
		}
		match = resolution.Match
	}
	lg = lg.With("subscription_id", match.SubscriptionID, "confidence", match.Confidence)

	verdict, err := s.validator.Validate(ctx, *match, c)
	if err != nil {
		return nil, err
	}
	if !verdict.IsValid {
		if verdict.Duplicate {
			lg.Infow("duplicate payment delivery ignored")
			return &Result{Outcome: OutcomeDuplicate, SubscriptionID: match.SubscriptionID, Match: match, Reason: verdict.Reason}, nil
		}
		lg.Infow("match rejected by validator", "reason", verdict.Reason)
		res, err := s.park(ctx, req, c, types.UnmatchedReasonRejected, verdict.Reason, []correlation.Match{*match})
		if res != nil {
			res.Outcome = OutcomeRejected
			res.Match = match
		}
		return res, err
	}

	act, err := s.activation.Activate(ctx, activation.Request{
		SubscriptionID: match.SubscriptionID,
		Source:         req.Source,
		Payment:        paymentData(req, c),
	})
	if err != nil {
		return nil, err
	}
	res = &Result{SubscriptionID: match.SubscriptionID, Match: match, Activation: act}
	switch {
	case act.Success && act.Replayed:
		res.Outcome = OutcomeDuplicate
	case act.Success && act.AlreadyActive:
		res.Outcome = OutcomeAlreadyActive
	case act.Success:
		res.Outcome = OutcomeActivated
	case act.Reason == types.ActivationFailureLockTimeout:
		res.Outcome = OutcomeRetry
		res.Reason = string(act.Reason)
	default:
		parked, err := s.park(ctx, req, c, types.UnmatchedReasonRejected, string(act.Reason), []correlation.Match{*match})
		if err != nil {
			return nil, err
		}
		res.Outcome = OutcomeRejected
		res.Reason = string(act.Reason)
		res.UnmatchedID = parked.UnmatchedID
	}
	return res, nil
}

// knownOwner short-circuits matching when the caller names the subscription
// or the reference is already settled. The latter lets the validator see a
// redelivery as a duplicate instead of an unmatched payment.
func (s *Service) knownOwner(ctx context.Context, subscriptionID, reference string) (*correlation.Match, error) {
	if subscriptionID != "" {
		return &correlation.Match{
			SubscriptionID: subscriptionID,
			Confidence:     100,
			Priority:       1000,
			MatchReasons:   []string{"explicit subscription id"},
		}, nil
	}
	payment, err := s.store.GetPaymentByRef(ctx, reference)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment by reference: %w", err)
	}
	if payment.Status != types.PaymentStatusSucceeded {
		return nil, nil
	}
	return &correlation.Match{
		SubscriptionID: payment.SubscriptionID,
		Confidence:     100,
		Priority:       1000,
		MatchReasons:   []string{"payment reference already recorded"},
	}, nil
}

// park enqueues the payment for manual linking.
func (s *Service) park(ctx context.Context, req Request, c correlation.Correlation, reason types.UnmatchedReason, detail string, candidates []correlation.Match) (*Result, error) {
	lg := logctx.FromCtx(ctx, s.log).With("reference", c.Reference)
	raw, err := json.Marshal(lo.Ternary(candidates == nil, []correlation.Match{}, candidates))
	if err != nil {
		return nil, fmt.Errorf("failed to encode candidates: %w", err)
	}
	entry := &models.UnmatchedPayment{
		Reference:         c.Reference,
		Provider:          req.Provider,
		PaymentID:         c.PaymentID,
		Amount:            c.Amount,
		Currency:          c.Currency,
		Email:             c.Email,
		AuthorizationCode: lo.EmptyableToPtr(req.AuthorizationCode),
		Metadata:          lo.MapValues(c.Metadata, func(v string, _ string) any { return v }),
		Reason:            reason,
		Detail:            detail,
		Candidates:        raw,
		Status:            types.UnmatchedPaymentStatusOpen,
	}
	created, err := s.store.UpsertUnmatchedPayment(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue unmatched payment: %w", err)
	}
	lg.Warnw("payment queued for manual review", "reason", reason, "detail", detail, "candidates", len(candidates))
	if created {
		s.audit.Record(ctx, audit.Entry{
			Action:     audit.ActionPaymentUnmatched,
			Resource:   "payment",
			ResourceID: c.Reference,
			Details:    map[string]any{"reason": string(reason), "detail": detail, "amount": c.Amount, "currency": c.Currency},
		})
	}
	return &Result{Outcome: OutcomeUnmatched, Reason: lo.CoalesceOrEmpty(detail, string(reason)), UnmatchedID: entry.ID}, nil
}

// Link attaches a queued payment to the subscription an operator picked.
// The validator is skipped on purpose: the operator is the validation. The
// activation state machine still enforces status and reference ownership.
func (s *Service) Link(ctx context.Context, unmatchedID, subscriptionID, operatorID string) (*activation.Result, error) {
	entry, err := s.store.GetUnmatchedPayment(ctx, unmatchedID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnmatchedNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load unmatched payment: %w", err)
	}
	if entry.Status == types.UnmatchedPaymentStatusResolved {
		return nil, ErrAlreadyResolved
	}

	act, err := s.activation.Activate(ctx, activation.Request{
		SubscriptionID: subscriptionID,
		Source:         types.ActivationSourceOperatorLink,
		Payment: activation.PaymentData{
			Reference:         entry.Reference,
			Amount:            entry.Amount,
			Currency:          entry.Currency,
			Provider:          entry.Provider,
			ProviderPaymentID: entry.PaymentID,
			AuthorizationCode: lo.FromPtr(entry.AuthorizationCode),
		},
	})
	if err != nil || !act.Success {
		return act, err
	}

	entry.Status = types.UnmatchedPaymentStatusResolved
	entry.ResolvedSubscriptionID = lo.ToPtr(subscriptionID)
	entry.OperatorID = lo.EmptyableToPtr(operatorID)
	entry.ResolvedAt = lo.ToPtr(time.Now().UTC())
	if err := s.store.UpdateUnmatchedPayment(ctx, entry); err != nil {
		// The activation is committed; a retried link replays it.
		return nil, fmt.Errorf("failed to resolve unmatched payment: %w", err)
	}
	s.audit.Record(ctx, audit.Entry{
		UserID:     operatorID,
		Action:     audit.ActionUnmatchedPaymentLinked,
		Resource:   "unmatched_payment",
		ResourceID: entry.ID,
		Details:    map[string]any{"subscription_id": subscriptionID, "reference": entry.Reference},
	})
	return act, nil
}

// List scans the operator queue.
func (s *Service) List(ctx context.Context, q store.UnmatchedQuery) ([]*models.UnmatchedPayment, int64, error) {
	for _, f := range q.Filters {
		if err := f.Validate(store.UnmatchedFilterFields); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
	}
	return s.store.ListUnmatchedPayments(ctx, q)
}

func paymentData(req Request, c correlation.Correlation) activation.PaymentData {
	return activation.PaymentData{
		Reference:          c.Reference,
		Amount:             c.Amount,
		Currency:           c.Currency,
		Provider:           req.Provider,
		ProviderPaymentID:  c.PaymentID,
		AuthorizationCode:  req.AuthorizationCode,
		ProviderCustomerID: req.ProviderCustomerID,
		PaidAt:             req.PaidAt,
	}
}

var Module = fx.Options(
	fx.Provide(NewService),
)
