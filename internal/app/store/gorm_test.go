package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fatflowers/paysettle/internal/models"
	"github.com/fatflowers/paysettle/pkg/types"
)

var errNoDatabase = errors.New("no database in dry run")

// dryPool satisfies gorm without a server; DryRun never reaches it except to
// begin and commit transactions.
type dryPool struct{}

func (dryPool) PrepareContext(context.Context, string) (*sql.Stmt, error) {
	return nil, errNoDatabase
}

func (dryPool) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, errNoDatabase
}

func (dryPool) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errNoDatabase
}

func (dryPool) QueryRowContext(context.Context, string, ...any) *sql.Row { return nil }

func (dryPool) BeginTx(context.Context, *sql.TxOptions) (gorm.ConnPool, error) {
	return &dryTx{}, nil
}

type dryTx struct{ dryPool }

func (dryTx) Commit() error   { return nil }
func (dryTx) Rollback() error { return nil }

// newDryStore returns a postgres-dialect store that records the SQL it would
// have run, with bound values inlined.
func newDryStore(t *testing.T) (*GormStore, *[]string) {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: dryPool{}}), &gorm.Config{
		DryRun:                 true,
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Discard,
	})
	require.NoError(t, err)

	var stmts []string
	record := func(d *gorm.DB) {
		stmts = append(stmts, d.Dialector.Explain(d.Statement.SQL.String(), d.Statement.Vars...))
	}
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:record", record))
	require.NoError(t, db.Callback().Row().After("gorm:row").Register("test:record", record))
	require.NoError(t, db.Callback().Create().After("gorm:create").Register("test:record", record))
	require.NoError(t, db.Callback().Update().After("gorm:update").Register("test:record", record))
	return NewGormStore(db), &stmts
}

func TestMapErr(t *testing.T) {
	assert.NoError(t, mapErr(nil))
	assert.ErrorIs(t, mapErr(gorm.ErrRecordNotFound), ErrNotFound)
	assert.ErrorIs(t, mapErr(fmt.Errorf("wrapped: %w", gorm.ErrRecordNotFound)), ErrNotFound)

	dup := mapErr(&pgconn.PgError{Code: "23505", ConstraintName: "idx_payment_provider_payment_ref"})
	assert.ErrorIs(t, dup, ErrDuplicate)
	var pgErr *pgconn.PgError
	assert.True(t, errors.As(dup, &pgErr))

	other := errors.New("connection refused")
	assert.Equal(t, other, mapErr(other))
}

func TestListSubscriptionsSQL(t *testing.T) {
	st, stmts := newDryStore(t)
	low, high := decimal.RequireFromString("10.5"), decimal.RequireFromString("50")

	_, err := st.ListSubscriptions(context.Background(), SubscriptionQuery{
		UserID:   "u1",
		Statuses: []types.SubscriptionStatus{types.SubscriptionStatusActive},
		Currency: "ngn",
		PriceMin: &low,
		PriceMax: &high,
		Unlinked: true,
		Renewing: true,
		Limit:    5,
	})
	require.NoError(t, err)
	require.Len(t, *stmts, 1)
	q := (*stmts)[0]
	for _, want := range []string{
		`FROM "subscription" JOIN plan ON plan.id = subscription.plan_id`,
		`subscription.user_id = 'u1'`,
		`subscription.status IN ('active')`,
		`(subscription.provider_subscription_id IS NULL OR subscription.provider_subscription_id = '')`,
		`subscription.cancel_at_period_end = false`,
		`UPPER(plan.currency) = 'NGN'`,
		`plan.price >= '10.5'`,
		`plan.price <= '50'`,
		`ORDER BY subscription.created_at desc, subscription.id desc`,
		`LIMIT 5`,
	} {
		assert.Contains(t, q, want)
	}
}

func TestListSubscriptionsSQLWithoutFilters(t *testing.T) {
	st, stmts := newDryStore(t)

	_, err := st.ListSubscriptions(context.Background(), SubscriptionQuery{})
	require.NoError(t, err)
	require.Len(t, *stmts, 1)
	q := (*stmts)[0]
	assert.NotContains(t, q, "JOIN plan")
	assert.NotContains(t, q, "cancel_at_period_end")
	assert.NotContains(t, q, "LIMIT")
}

func TestGetSubscriptionForUpdateLocksRow(t *testing.T) {
	st, stmts := newDryStore(t)

	_, err := st.GetSubscriptionForUpdate(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, *stmts, 1)
	assert.Contains(t, (*stmts)[0], `id = 's1'`)
	assert.True(t, strings.HasSuffix((*stmts)[0], "FOR UPDATE"), (*stmts)[0])
}

func TestCountHistoryByDaySQL(t *testing.T) {
	st, stmts := newDryStore(t)
	from := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	_, err := st.CountHistoryByDay(context.Background(), types.HistoryActionActivated, from, from.AddDate(0, 0, 7))
	require.ErrorIs(t, err, gorm.ErrDryRunModeUnsupported)
	require.Len(t, *stmts, 1)
	q := (*stmts)[0]
	assert.Contains(t, q, `to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') as date, count(*) as count`)
	assert.Contains(t, q, `FROM "subscription_history"`)
	assert.Contains(t, q, `action = 'activated' AND created_at >= '2026-07-01 00:00:00' AND created_at < '2026-07-08 00:00:00'`)
	assert.Contains(t, q, "GROUP BY")
	assert.Contains(t, q, "ORDER BY date")
}

func TestCountSubscriptionsByStatusSQL(t *testing.T) {
	st, stmts := newDryStore(t)

	_, err := st.CountSubscriptionsByStatus(context.Background())
	require.ErrorIs(t, err, gorm.ErrDryRunModeUnsupported)
	require.Len(t, *stmts, 1)
	assert.Contains(t, (*stmts)[0], `SELECT status, count(*) as count FROM "subscription" GROUP BY`)
}

func TestUpsertUnmatchedPaymentSQL(t *testing.T) {
	st, stmts := newDryStore(t)

	_, err := st.UpsertUnmatchedPayment(context.Background(), &models.UnmatchedPayment{
		Reference: "ref-1",
		Provider:  types.PaymentProviderPaystack,
		Amount:    500000,
		Currency:  "NGN",
		Reason:    types.UnmatchedReasonNoMatch,
	})
	require.NoError(t, err)
	// Dry run cannot see a missing row, so the lookup is followed by a write.
	require.Len(t, *stmts, 2)
	assert.Contains(t, (*stmts)[0], `FROM "unmatched_payment" WHERE reference = 'ref-1'`)
	assert.True(t, strings.HasSuffix((*stmts)[0], "FOR UPDATE"), (*stmts)[0])
	assert.True(t, strings.HasPrefix((*stmts)[1], `INSERT INTO "unmatched_payment"`), (*stmts)[1])
	assert.Contains(t, (*stmts)[1], `'ref-1'`)
}

func TestListUnmatchedPaymentsSQL(t *testing.T) {
	st, stmts := newDryStore(t)

	_, _, err := st.ListUnmatchedPayments(context.Background(), UnmatchedQuery{
		Filters: types.CommonFilters{
			{Field: "status", Operator: types.CommonFilterOperatorEq, Values: []any{"open"}},
			{Field: "currency", Operator: types.CommonFilterOperatorIn, Values: []any{"NGN", "USD"}},
		},
		Limit:  10,
		Offset: 20,
	})
	require.NoError(t, err)
	require.Len(t, *stmts, 2)
	assert.Contains(t, (*stmts)[0], `SELECT count(*) FROM "unmatched_payment" WHERE ("status" = 'open' AND "currency" IN ('NGN','USD'))`)
	assert.Contains(t, (*stmts)[1], `ORDER BY created_at desc, id desc LIMIT 10 OFFSET 20`)

	*stmts = nil
	_, _, err = st.ListUnmatchedPayments(context.Background(), UnmatchedQuery{
		Filters: types.CommonFilters{{Field: "authorization_code", Operator: types.CommonFilterOperatorEq, Values: []any{"x"}}},
	})
	require.Error(t, err)
	assert.Empty(t, *stmts)
}
