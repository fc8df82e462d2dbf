package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fatflowers/paysettle/internal/models"
	"github.com/fatflowers/paysettle/pkg/tool"
	"github.com/fatflowers/paysettle/pkg/types"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.db.WithContext(ctx).Preload("Plan").Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, mapErr(err)
	}
	return &sub, nil
}

func (s *GormStore) GetSubscriptionForUpdate(ctx context.Context, id string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&sub).Error; err != nil {
		return nil, mapErr(err)
	}
	return &sub, nil
}

func (s *GormStore) ListSubscriptions(ctx context.Context, q SubscriptionQuery) ([]*models.Subscription, error) {
	tx := s.db.WithContext(ctx).Model(&models.Subscription{}).Preload("Plan")
	if q.UserID != "" {
		tx = tx.Where("subscription.user_id = ?", q.UserID)
	}
	if len(q.Statuses) > 0 {
		tx = tx.Where("subscription.status IN ?", q.Statuses)
	}
	if q.Unlinked {
		tx = tx.Where("(subscription.provider_subscription_id IS NULL OR subscription.provider_subscription_id = '')")
	}
	if q.Renewing {
		tx = tx.Where("subscription.cancel_at_period_end = ?", false)
	}
	if q.Currency != "" || q.PriceMin != nil || q.PriceMax != nil {
		tx = tx.Joins("JOIN plan ON plan.id = subscription.plan_id")
		if q.Currency != "" {
			tx = tx.Where("UPPER(plan.currency) = ?", strings.ToUpper(q.Currency))
		}
		if q.PriceMin != nil {
			tx = tx.Where("plan.price >= ?", *q.PriceMin)
		}
		if q.PriceMax != nil {
			tx = tx.Where("plan.price <= ?", *q.PriceMax)
		}
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var subs []*models.Subscription
	if err := tx.Order("subscription.created_at desc, subscription.id desc").Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *GormStore) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	res := s.db.WithContext(ctx).Omit(clause.Associations).Save(sub)
	if res.Error != nil {
		return mapErr(res.Error)
	}
	return nil
}

func (s *GormStore) CountSubscriptionsByStatus(ctx context.Context) (map[types.SubscriptionStatus]int64, error) {
	var rows []struct {
		Status types.SubscriptionStatus
		Count  int64
	}
	if err := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[types.SubscriptionStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

func (s *GormStore) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	var plan models.Plan
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error; err != nil {
		return nil, mapErr(err)
	}
	return &plan, nil
}

func (s *GormStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (s *GormStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&u).Error; err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (s *GormStore) GetPaymentByRef(ctx context.Context, ref string) (*models.Payment, error) {
	var p models.Payment
	if err := s.db.WithContext(ctx).Where("provider_payment_ref = ?", ref).First(&p).Error; err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (s *GormStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	if p.ID == "" {
		p.ID = tool.GenerateUUIDV7()
	}
	return mapErr(s.db.WithContext(ctx).Create(p).Error)
}

func (s *GormStore) UpdatePayment(ctx context.Context, p *models.Payment) error {
	return mapErr(s.db.WithContext(ctx).Save(p).Error)
}

func (s *GormStore) LatestLinkablePayment(ctx context.Context, subscriptionID string) (*models.Payment, error) {
	var p models.Payment
	if err := s.db.WithContext(ctx).
		Where("subscription_id = ? AND status = ? AND authorization_code IS NOT NULL AND authorization_code <> ''",
			subscriptionID, types.PaymentStatusSucceeded).
		Order("created_at desc").
		First(&p).Error; err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (s *GormStore) AppendHistory(ctx context.Context, h *models.SubscriptionHistory) error {
	if h.ID == "" {
		h.ID = tool.GenerateUUIDV7()
	}
	return mapErr(s.db.WithContext(ctx).Create(h).Error)
}

func (s *GormStore) HasHistorySince(ctx context.Context, subscriptionID string, action types.HistoryAction, since time.Time) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.SubscriptionHistory{}).
		Where("subscription_id = ? AND action = ? AND created_at >= ?", subscriptionID, action, since).
		Limit(1).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GormStore) ListHistory(ctx context.Context, subscriptionID string) ([]*models.SubscriptionHistory, error) {
	var rows []*models.SubscriptionHistory
	if err := s.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at asc, id asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *GormStore) CountHistoryByDay(ctx context.Context, action types.HistoryAction, from, to time.Time) ([]DailyCount, error) {
	var rows []DailyCount
	if err := s.db.WithContext(ctx).Model(&models.SubscriptionHistory{}).
		Select("to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') as date, count(*) as count").
		Where("action = ? AND created_at >= ? AND created_at < ?", action, from, to).
		Group("date").
		Order("date").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *GormStore) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = tool.GenerateUUIDV7()
	}
	return mapErr(s.db.WithContext(ctx).Create(entry).Error)
}

func (s *GormStore) SaveNotificationLog(ctx context.Context, entry *models.PaymentNotificationLog) error {
	if entry.ID == "" {
		entry.ID = tool.GenerateUUIDV7()
	}
	return mapErr(s.db.WithContext(ctx).Save(entry).Error)
}

func (s *GormStore) UpsertUnmatchedPayment(ctx context.Context, u *models.UnmatchedPayment) (bool, error) {
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.UnmatchedPayment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("reference = ?", u.Reference).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if u.ID == "" {
				u.ID = tool.GenerateUUIDV7()
			}
			u.Status = types.UnmatchedPaymentStatusOpen
			created = true
			return tx.Create(u).Error
		}
		if err != nil {
			return err
		}
		if existing.Status == types.UnmatchedPaymentStatusResolved {
			*u = existing
			return nil
		}
		u.ID = existing.ID
		u.Status = existing.Status
		u.CreatedAt = existing.CreatedAt
		return tx.Save(u).Error
	})
	return created, mapErr(err)
}

func (s *GormStore) GetUnmatchedPayment(ctx context.Context, id string) (*models.UnmatchedPayment, error) {
	var u models.UnmatchedPayment
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (s *GormStore) UpdateUnmatchedPayment(ctx context.Context, u *models.UnmatchedPayment) error {
	return mapErr(s.db.WithContext(ctx).Save(u).Error)
}

func (s *GormStore) ListUnmatchedPayments(ctx context.Context, q UnmatchedQuery) ([]*models.UnmatchedPayment, int64, error) {
	for _, f := range q.Filters {
		if err := f.Validate(UnmatchedFilterFields); err != nil {
			return nil, 0, err
		}
	}
	base := s.db.WithContext(ctx).Model(&models.UnmatchedPayment{}).Clauses(clause.Where{Exprs: []clause.Expression{q.Filters}})
	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []*models.UnmatchedPayment
	tx := base.Session(&gorm.Session{}).Order("created_at desc, id desc")
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return errors.Join(ErrDuplicate, err)
	}
	return err
}
