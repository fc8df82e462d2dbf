// Package memstore is an in-process implementation of store.Store. All
// operations are serialized; a transaction works on a private copy of the
// data that replaces the shared copy only when fn returns nil.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatflowers/paysettle/internal/app/store"
	"github.com/fatflowers/paysettle/internal/models"
	"github.com/fatflowers/paysettle/pkg/tool"
	"github.com/fatflowers/paysettle/pkg/types"
	"github.com/samber/lo"
)

type state struct {
	subscriptions map[string]models.Subscription
	plans         map[string]models.Plan
	users         map[string]models.User
	payments      map[string]models.Payment // keyed by provider_payment_ref
	history       []models.SubscriptionHistory
	audits        []models.AuditLog
	notifications map[string]models.PaymentNotificationLog
	unmatched     map[string]models.UnmatchedPayment
}

func newState() *state {
	return &state{
		subscriptions: map[string]models.Subscription{},
		plans:         map[string]models.Plan{},
		users:         map[string]models.User{},
		payments:      map[string]models.Payment{},
		notifications: map[string]models.PaymentNotificationLog{},
		unmatched:     map[string]models.UnmatchedPayment{},
	}
}

func (s *state) clone() *state {
	return &state{
		subscriptions: cloneMap(s.subscriptions),
		plans:         cloneMap(s.plans),
		users:         cloneMap(s.users),
		payments:      cloneMap(s.payments),
		history:       slices.Clone(s.history),
		audits:        slices.Clone(s.audits),
		notifications: cloneMap(s.notifications),
		unmatched:     cloneMap(s.unmatched),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// SetClock overrides the timestamp source for CreatedAt/UpdatedAt.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) view() *view {
	return &view{st: s.st, now: s.now}
}

func (s *Store) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	working := s.st.clone()
	if err := fn(&view{st: working, now: s.now}); err != nil {
		return err
	}
	s.st = working
	return nil
}

func locked[T any](s *Store, fn func(v *view) (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.view())
}

func lockedErr(s *Store, fn func(v *view) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.view())
}

func (s *Store) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	return locked(s, func(v *view) (*models.Subscription, error) { return v.GetSubscription(ctx, id) })
}

func (s *Store) GetSubscriptionForUpdate(ctx context.Context, id string) (*models.Subscription, error) {
	return locked(s, func(v *view) (*models.Subscription, error) { return v.GetSubscriptionForUpdate(ctx, id) })
}

func (s *Store) ListSubscriptions(ctx context.Context, q store.SubscriptionQuery) ([]*models.Subscription, error) {
	return locked(s, func(v *view) ([]*models.Subscription, error) { return v.ListSubscriptions(ctx, q) })
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	return lockedErr(s, func(v *view) error { return v.UpdateSubscription(ctx, sub) })
}

func (s *Store) CountSubscriptionsByStatus(ctx context.Context) (map[types.SubscriptionStatus]int64, error) {
	return locked(s, func(v *view) (map[types.SubscriptionStatus]int64, error) { return v.CountSubscriptionsByStatus(ctx) })
}

func (s *Store) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	return locked(s, func(v *view) (*models.Plan, error) { return v.GetPlan(ctx, id) })
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	return locked(s, func(v *view) (*models.User, error) { return v.GetUser(ctx, id) })
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return locked(s, func(v *view) (*models.User, error) { return v.FindUserByEmail(ctx, email) })
}

func (s *Store) GetPaymentByRef(ctx context.Context, ref string) (*models.Payment, error) {
	return locked(s, func(v *view) (*models.Payment, error) { return v.GetPaymentByRef(ctx, ref) })
}

func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	return lockedErr(s, func(v *view) error { return v.CreatePayment(ctx, p) })
}

func (s *Store) UpdatePayment(ctx context.Context, p *models.Payment) error {
	return lockedErr(s, func(v *view) error { return v.UpdatePayment(ctx, p) })
}

func (s *Store) LatestLinkablePayment(ctx context.Context, subscriptionID string) (*models.Payment, error) {
	return locked(s, func(v *view) (*models.Payment, error) { return v.LatestLinkablePayment(ctx, subscriptionID) })
}

func (s *Store) AppendHistory(ctx context.Context, h *models.SubscriptionHistory) error {
	return lockedErr(s, func(v *view) error { return v.AppendHistory(ctx, h) })
}

func (s *Store) HasHistorySince(ctx context.Context, subscriptionID string, action types.HistoryAction, since time.Time) (bool, error) {
	return locked(s, func(v *view) (bool, error) { return v.HasHistorySince(ctx, subscriptionID, action, since) })
}

func (s *Store) ListHistory(ctx context.Context, subscriptionID string) ([]*models.SubscriptionHistory, error) {
	return locked(s, func(v *view) ([]*models.SubscriptionHistory, error) { return v.ListHistory(ctx, subscriptionID) })
}

func (s *Store) CountHistoryByDay(ctx context.Context, action types.HistoryAction, from, to time.Time) ([]store.DailyCount, error) {
	return locked(s, func(v *view) ([]store.DailyCount, error) { return v.CountHistoryByDay(ctx, action, from, to) })
}

func (s *Store) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	return lockedErr(s, func(v *view) error { return v.CreateAuditLog(ctx, entry) })
}

func (s *Store) SaveNotificationLog(ctx context.Context, entry *models.PaymentNotificationLog) error {
	return lockedErr(s, func(v *view) error { return v.SaveNotificationLog(ctx, entry) })
}

func (s *Store) UpsertUnmatchedPayment(ctx context.Context, u *models.UnmatchedPayment) (bool, error) {
	return locked(s, func(v *view) (bool, error) { return v.UpsertUnmatchedPayment(ctx, u) })
}

func (s *Store) GetUnmatchedPayment(ctx context.Context, id string) (*models.UnmatchedPayment, error) {
	return locked(s, func(v *view) (*models.UnmatchedPayment, error) { return v.GetUnmatchedPayment(ctx, id) })
}

func (s *Store) UpdateUnmatchedPayment(ctx context.Context, u *models.UnmatchedPayment) error {
	return lockedErr(s, func(v *view) error { return v.UpdateUnmatchedPayment(ctx, u) })
}

func (s *Store) ListUnmatchedPayments(ctx context.Context, q store.UnmatchedQuery) ([]*models.UnmatchedPayment, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListUnmatchedPayments(ctx, q)
}

// Seeding helpers used by tests and local fixtures. Checkout owns these rows
// in production so they are not part of store.Store.

func (s *Store) PutPlan(p models.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.plans[p.ID] = p
}

func (s *Store) PutUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Email = strings.ToLower(u.Email)
	s.st.users[u.ID] = u
}

func (s *Store) PutSubscription(sub models.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.now()
	}
	sub.Plan = nil
	s.st.subscriptions[sub.ID] = sub
}

func (s *Store) PutPayment(p models.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.payments[p.ProviderPaymentRef] = p
}

func (s *Store) PutHistory(h models.SubscriptionHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.history = append(s.st.history, h)
}

// Payments returns every stored payment.
func (s *Store) Payments() []models.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Values(s.st.payments)
}

func (s *Store) AuditLogs() []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.audits)
}

func (s *Store) NotificationLogs() []models.PaymentNotificationLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Values(s.st.notifications)
}

// view implements store.Store over one state without locking; the owning
// Store or Transaction holds the mutex.
type view struct {
	st  *state
	now func() time.Time
}

func (v *view) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(v)
}

func (v *view) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	sub, ok := v.st.subscriptions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if p, ok := v.st.plans[sub.PlanID]; ok {
		sub.Plan = &p
	}
	return &sub, nil
}

func (v *view) GetSubscriptionForUpdate(ctx context.Context, id string) (*models.Subscription, error) {
	sub, ok := v.st.subscriptions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sub, nil
}

func (v *view) ListSubscriptions(ctx context.Context, q store.SubscriptionQuery) ([]*models.Subscription, error) {
	var out []*models.Subscription
	for _, sub := range v.st.subscriptions {
		if q.UserID != "" && sub.UserID != q.UserID {
			continue
		}
		if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, sub.Status) {
			continue
		}
		if q.Unlinked && sub.Linked() {
			continue
		}
		if q.Renewing && sub.CancelAtPeriodEnd {
			continue
		}
		plan, hasPlan := v.st.plans[sub.PlanID]
		if q.Currency != "" || q.PriceMin != nil || q.PriceMax != nil {
			if !hasPlan {
				continue
			}
			if q.Currency != "" && !strings.EqualFold(plan.Currency, q.Currency) {
				continue
			}
			if q.PriceMin != nil && plan.Price.LessThan(*q.PriceMin) {
				continue
			}
			if q.PriceMax != nil && plan.Price.GreaterThan(*q.PriceMax) {
				continue
			}
		}
		if hasPlan {
			sub.Plan = &plan
		}
		out = append(out, &sub)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (v *view) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	if _, ok := v.st.subscriptions[sub.ID]; !ok {
		return store.ErrNotFound
	}
	sub.UpdatedAt = v.now()
	row := *sub
	row.Plan = nil
	v.st.subscriptions[sub.ID] = row
	return nil
}

func (v *view) CountSubscriptionsByStatus(ctx context.Context) (map[types.SubscriptionStatus]int64, error) {
	out := map[types.SubscriptionStatus]int64{}
	for _, sub := range v.st.subscriptions {
		out[sub.Status]++
	}
	return out, nil
}

func (v *view) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	p, ok := v.st.plans[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (v *view) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, ok := v.st.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (v *view) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range v.st.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (v *view) GetPaymentByRef(ctx context.Context, ref string) (*models.Payment, error) {
	p, ok := v.st.payments[ref]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (v *view) CreatePayment(ctx context.Context, p *models.Payment) error {
	if _, ok := v.st.payments[p.ProviderPaymentRef]; ok {
		return fmt.Errorf("%w: payment reference %s", store.ErrDuplicate, p.ProviderPaymentRef)
	}
	if p.ID == "" {
		p.ID = tool.GenerateUUIDV7()
	}
	now := v.now()
	p.CreatedAt, p.UpdatedAt = now, now
	v.st.payments[p.ProviderPaymentRef] = *p
	return nil
}

func (v *view) UpdatePayment(ctx context.Context, p *models.Payment) error {
	existing, ok := v.st.payments[p.ProviderPaymentRef]
	if !ok || existing.ID != p.ID {
		return store.ErrNotFound
	}
	p.UpdatedAt = v.now()
	v.st.payments[p.ProviderPaymentRef] = *p
	return nil
}

func (v *view) LatestLinkablePayment(ctx context.Context, subscriptionID string) (*models.Payment, error) {
	var best *models.Payment
	for _, p := range v.st.payments {
		if p.SubscriptionID != subscriptionID || p.Status != types.PaymentStatusSucceeded {
			continue
		}
		if p.AuthorizationCode == nil || *p.AuthorizationCode == "" {
			continue
		}
		if best == nil || p.CreatedAt.After(best.CreatedAt) {
			best = &p
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return best, nil
}

func (v *view) AppendHistory(ctx context.Context, h *models.SubscriptionHistory) error {
	if h.ID == "" {
		h.ID = tool.GenerateUUIDV7()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = v.now()
	}
	v.st.history = append(v.st.history, *h)
	return nil
}

func (v *view) HasHistorySince(ctx context.Context, subscriptionID string, action types.HistoryAction, since time.Time) (bool, error) {
	return lo.ContainsBy(v.st.history, func(h models.SubscriptionHistory) bool {
		return h.SubscriptionID == subscriptionID && h.Action == action && !h.CreatedAt.Before(since)
	}), nil
}

func (v *view) ListHistory(ctx context.Context, subscriptionID string) ([]*models.SubscriptionHistory, error) {
	var out []*models.SubscriptionHistory
	for _, h := range v.st.history {
		if h.SubscriptionID == subscriptionID {
			out = append(out, &h)
		}
	}
	return out, nil
}

func (v *view) CountHistoryByDay(ctx context.Context, action types.HistoryAction, from, to time.Time) ([]store.DailyCount, error) {
	counts := map[string]int64{}
	for _, h := range v.st.history {
		if h.Action != action || h.CreatedAt.Before(from) || !h.CreatedAt.Before(to) {
			continue
		}
		counts[h.CreatedAt.UTC().Format(time.DateOnly)]++
	}
	out := make([]store.DailyCount, 0, len(counts))
	for d, c := range counts {
		out = append(out, store.DailyCount{Date: d, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (v *view) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = tool.GenerateUUIDV7()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = v.now()
	}
	v.st.audits = append(v.st.audits, *entry)
	return nil
}

func (v *view) SaveNotificationLog(ctx context.Context, entry *models.PaymentNotificationLog) error {
	if entry.ID == "" {
		entry.ID = tool.GenerateUUIDV7()
	}
	now := v.now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	v.st.notifications[entry.ID] = *entry
	return nil
}

func (v *view) UpsertUnmatchedPayment(ctx context.Context, u *models.UnmatchedPayment) (bool, error) {
	now := v.now()
	for id, existing := range v.st.unmatched {
		if existing.Reference != u.Reference {
			continue
		}
		if existing.Status == types.UnmatchedPaymentStatusResolved {
			*u = existing
			return false, nil
		}
		u.ID = id
		u.Status = existing.Status
		u.CreatedAt = existing.CreatedAt
		u.UpdatedAt = now
		v.st.unmatched[id] = *u
		return false, nil
	}
	if u.ID == "" {
		u.ID = tool.GenerateUUIDV7()
	}
	u.Status = types.UnmatchedPaymentStatusOpen
	u.CreatedAt, u.UpdatedAt = now, now
	v.st.unmatched[u.ID] = *u
	return true, nil
}

func (v *view) GetUnmatchedPayment(ctx context.Context, id string) (*models.UnmatchedPayment, error) {
	u, ok := v.st.unmatched[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (v *view) UpdateUnmatchedPayment(ctx context.Context, u *models.UnmatchedPayment) error {
	if _, ok := v.st.unmatched[u.ID]; !ok {
		return store.ErrNotFound
	}
	u.UpdatedAt = v.now()
	v.st.unmatched[u.ID] = *u
	return nil
}

func (v *view) ListUnmatchedPayments(ctx context.Context, q store.UnmatchedQuery) ([]*models.UnmatchedPayment, int64, error) {
	for _, f := range q.Filters {
		if err := f.Validate(store.UnmatchedFilterFields); err != nil {
			return nil, 0, err
		}
	}
	var out []*models.UnmatchedPayment
	for _, u := range v.st.unmatched {
		ok, err := matchAll(u, q.Filters)
		if err != nil {
			return nil, 0, err
		}
		if ok {
			out = append(out, &u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	total := int64(len(out))
	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil, total, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, total, nil
}

// matchAll evaluates string-valued eq, not_eq and in filters. Other
// operators are rejected.
func matchAll(u models.UnmatchedPayment, filters types.CommonFilters) (bool, error) {
	for _, f := range filters {
		var actual string
		switch f.Field {
		case "status":
			actual = string(u.Status)
		case "reason":
			actual = string(u.Reason)
		case "provider":
			actual = string(u.Provider)
		case "reference":
			actual = u.Reference
		case "email":
			actual = u.Email
		case "currency":
			actual = u.Currency
		default:
			return false, fmt.Errorf("memstore: unsupported filter field %s", f.Field)
		}
		values := lo.Map(f.Values, func(v any, _ int) string { return fmt.Sprint(v) })
		switch f.Operator {
		case types.CommonFilterOperatorEq:
			if actual != values[0] {
				return false, nil
			}
		case types.CommonFilterOperatorNotEq:
			if actual == values[0] {
				return false, nil
			}
		case types.CommonFilterOperatorIn:
			if !slices.Contains(values, actual) {
				return false, nil
			}
		default:
			return false, fmt.Errorf("memstore: unsupported filter operator %s", f.Operator)
		}
	}
	return true, nil
}
