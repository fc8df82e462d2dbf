// Package enginetest wires the engine's in-memory drivers for tests.
package enginetest

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fatflowers/paysettle/internal/app/store/memstore"
	"github.com/fatflowers/paysettle/internal/models"
	"github.com/fatflowers/paysettle/internal/platform/cache"
	"github.com/fatflowers/paysettle/internal/platform/lock"
	"github.com/fatflowers/paysettle/internal/platform/processor"
	"github.com/fatflowers/paysettle/pkg/config"
	"github.com/fatflowers/paysettle/pkg/types"
)

type Fixture struct {
	Config    *config.Config
	Log       *zap.SugaredLogger
	Store     *memstore.Store
	Cache     *cache.MemoryStore
	Locker    *lock.MemoryLocker
	Processor *FakeProcessor
	Registry  *processor.Registry
}

func New() *Fixture {
	cfg := &config.Config{
		Env: config.EnvDev,
		Lock: config.LockConfig{
			Driver:         config.DriverMemory,
			LeaseTTL:       time.Minute,
			AcquireTimeout: 200 * time.Millisecond,
			RetryInterval:  2 * time.Millisecond,
		},
		Cache: config.CacheConfig{Driver: config.DriverMemory},
		Engine: config.EngineConfig{
			IdempotencyTTL:         10 * time.Minute,
			ReferenceHintTTL:       24 * time.Hour,
			RecentActivationWindow: 60 * time.Second,
		},
		DefaultProvider: types.PaymentProviderPaystack,
	}
	fp := NewFakeProcessor(types.PaymentProviderPaystack)
	return &Fixture{
		Config:    cfg,
		Log:       zap.NewNop().Sugar(),
		Store:     memstore.New(),
		Cache:     cache.NewMemoryStore(),
		Locker:    lock.NewMemoryLocker(cfg.Lock.LeaseTTL, cfg.Lock.RetryInterval),
		Processor: fp,
		Registry:  processor.NewRegistry(types.PaymentProviderPaystack, fp),
	}
}

// Plan seeds a plan priced in major units.
func (f *Fixture) Plan(id, price, currency string) models.Plan {
	p := models.Plan{
		ID:               id,
		Name:             id,
		Price:            decimal.RequireFromString(price),
		Currency:         currency,
		Interval:         "monthly",
		ProviderPlanCode: "PLN_" + id,
	}
	f.Store.PutPlan(p)
	return p
}

func (f *Fixture) User(id, email string) models.User {
	u := models.User{ID: id, Email: email, Name: id}
	f.Store.PutUser(u)
	return u
}

// Subscription seeds a subscription created at the given time.
func (f *Fixture) Subscription(id, userID, planID string, status types.SubscriptionStatus, createdAt time.Time) models.Subscription {
	s := models.Subscription{
		ID:        id,
		UserID:    userID,
		PlanID:    planID,
		Status:    status,
		Provider:  types.PaymentProviderPaystack,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	f.Store.PutSubscription(s)
	return s
}

// FakeProcessor records calls and returns canned answers.
type FakeProcessor struct {
	provider types.PaymentProvider

	mu        sync.Mutex
	CreateErr error
	CancelErr error
	Code      string
	Created   []processor.SubscriptionRequest
	// CreateDeadlines holds the context deadline of each create call.
	CreateDeadlines []time.Time
	Canceled        []string
	Transactions    map[string]*processor.Transaction
	Event           *processor.WebhookEvent
	ParseErr        error
}

func NewFakeProcessor(p types.PaymentProvider) *FakeProcessor {
	return &FakeProcessor{provider: p, Code: "SUB_fake", Transactions: map[string]*processor.Transaction{}}
}

func (f *FakeProcessor) Provider() types.PaymentProvider { return f.provider }

func (f *FakeProcessor) CreateSubscription(ctx context.Context, req processor.SubscriptionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Created = append(f.Created, req)
	deadline, _ := ctx.Deadline()
	f.CreateDeadlines = append(f.CreateDeadlines, deadline)
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	return f.Code, nil
}

func (f *FakeProcessor) CancelSubscription(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Canceled = append(f.Canceled, code)
	return f.CancelErr
}

func (f *FakeProcessor) VerifyTransaction(ctx context.Context, reference string) (*processor.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.Transactions[reference]
	if !ok {
		return nil, &processor.UpstreamError{Provider: string(f.provider), StatusCode: http.StatusNotFound, Message: "Transaction reference not found"}
	}
	return tx, nil
}

func (f *FakeProcessor) ParseWebhook(payload []byte, header http.Header) (*processor.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ParseErr != nil {
		return nil, f.ParseErr
	}
	return f.Event, nil
}

// CreatedCount is safe to call while the processor is in use.
func (f *FakeProcessor) CreatedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Created)
}
