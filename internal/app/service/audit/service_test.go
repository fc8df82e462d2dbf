package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/paysettle/internal/app/store"
	"github.com/fatflowers/paysettle/internal/app/store/memstore"
	"github.com/fatflowers/paysettle/internal/models"
)

func TestRecordWritesAuditLog(t *testing.T) {
	st := memstore.New()
	svc := New(st, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Record(ctx, Entry{
		UserID:     "u1",
		Action:     ActionSubscriptionActivated,
		Resource:   "subscription",
		ResourceID: "s1",
		Details:    map[string]any{"source": "webhook"},
	})

	logs := st.AuditLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "u1", logs[0].UserID)
	assert.Equal(t, ActionSubscriptionActivated, logs[0].Action)
	assert.Equal(t, "webhook", logs[0].Details["source"])
	assert.NotEmpty(t, logs[0].ID)
}

type failingStore struct {
	store.Store
}

func (failingStore) CreateAuditLog(context.Context, *models.AuditLog) error {
	return errors.New("db down")
}

func TestRecordSwallowsSinkFailure(t *testing.T) {
	svc := New(failingStore{}, zap.NewNop().Sugar())
	assert.NotPanics(t, func() {
		svc.Record(context.Background(), Entry{Action: ActionSubscriptionCanceled, ResourceID: "s1"})
	})
}

func TestSaveNotification(t *testing.T) {
	st := memstore.New()
	svc := New(st, zap.NewNop().Sugar())

	svc.SaveNotification(context.Background(), nil)
	svc.SaveNotification(context.Background(), &models.PaymentNotificationLog{
		Provider:  "paystack",
		EventType: "charge.success",
		Reference: "ref-1",
		Status:    models.PaymentNotificationLogStatusReceived,
	})
	svc.Flush()

	logs := st.NotificationLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "ref-1", logs[0].Reference)
	assert.Equal(t, models.PaymentNotificationLogStatusReceived, logs[0].Status)
}
