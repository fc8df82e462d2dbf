package store

import (
	"context"
	"errors"
	"time"

	"github.com/fatflowers/paysettle/internal/models"
	"github.com/fatflowers/paysettle/pkg/types"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound  = errors.New("store: record not found")
	ErrDuplicate = errors.New("store: duplicate record")
)

// SubscriptionQuery selects subscriptions newest first.
type SubscriptionQuery struct {
	UserID   string
	Statuses []types.SubscriptionStatus
	// Currency and the price bounds apply to the subscription's plan. Bounds
	// are inclusive and in major units.
	Currency string
	PriceMin *decimal.Decimal
	PriceMax *decimal.Decimal
	// Unlinked keeps only subscriptions without a provider subscription id.
	Unlinked bool
	// Renewing drops subscriptions scheduled to cancel at period end.
	Renewing bool
	Limit    int
}

type UnmatchedQuery struct {
	Filters types.CommonFilters
	Limit   int
	Offset  int
}

// UnmatchedFilterFields are the columns an operator may filter the queue on.
var UnmatchedFilterFields = []string{"status", "reason", "provider", "reference", "email", "currency", "created_at"}

type DailyCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// Store is the relational port used by the engine. Implementations must make
// Transaction atomic; reads through the tx argument see the transaction's own
// writes, and GetSubscriptionForUpdate holds the row until commit.
type Store interface {
	Transaction(ctx context.Context, fn func(tx Store) error) error

	GetSubscription(ctx context.Context, id string) (*models.Subscription, error)
	GetSubscriptionForUpdate(ctx context.Context, id string) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context, q SubscriptionQuery) ([]*models.Subscription, error)
	UpdateSubscription(ctx context.Context, sub *models.Subscription) error
	CountSubscriptionsByStatus(ctx context.Context) (map[types.SubscriptionStatus]int64, error)

	GetPlan(ctx context.Context, id string) (*models.Plan, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)

	GetPaymentByRef(ctx context.Context, ref string) (*models.Payment, error)
	CreatePayment(ctx context.Context, p *models.Payment) error
	UpdatePayment(ctx context.Context, p *models.Payment) error
	// LatestLinkablePayment returns the newest succeeded payment of the
	// subscription that carries an authorization code.
	LatestLinkablePayment(ctx context.Context, subscriptionID string) (*models.Payment, error)

	AppendHistory(ctx context.Context, h *models.SubscriptionHistory) error
	HasHistorySince(ctx context.Context, subscriptionID string, action types.HistoryAction, since time.Time) (bool, error)
	ListHistory(ctx context.Context, subscriptionID string) ([]*models.SubscriptionHistory, error)
	CountHistoryByDay(ctx context.Context, action types.HistoryAction, from, to time.Time) ([]DailyCount, error)

	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
	SaveNotificationLog(ctx context.Context, entry *models.PaymentNotificationLog) error

	// UpsertUnmatchedPayment enqueues by reference. An open entry is refreshed
	// in place; a resolved one is left untouched and reported as not created.
	UpsertUnmatchedPayment(ctx context.Context, u *models.UnmatchedPayment) (created bool, err error)
	GetUnmatchedPayment(ctx context.Context, id string) (*models.UnmatchedPayment, error)
	UpdateUnmatchedPayment(ctx context.Context, u *models.UnmatchedPayment) error
	ListUnmatchedPayments(ctx context.Context, q UnmatchedQuery) ([]*models.UnmatchedPayment, int64, error)
}
