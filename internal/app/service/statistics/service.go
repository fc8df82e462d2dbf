package statistics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"

	"github.com/fatflowers/paysettle/internal/app/store"
	"github.com/fatflowers/paysettle/pkg/types"
)

type StatisticType string

const (
	// Current subscription counts, one item per status.
	StatisticTypeSubscriptionStatusCount StatisticType = "subscription_status_count"
	// Daily activations and cancellations from subscription history.
	StatisticTypeDailyActivationCount   StatisticType = "daily_activation_count"
	StatisticTypeDailyCancellationCount StatisticType = "daily_cancellation_count"
)

const defaultRangeDays = 30

var ErrInvalidDataItem = errors.New("statistics: invalid data item id")

type SubscriptionStatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type SubscriptionStatisticRequest struct {
	// From and To bound the daily series, To exclusive. Zero values select
	// the last 30 days.
	From      time.Time                        `json:"from"`
	To        time.Time                        `json:"to"`
	DataItems []*SubscriptionStatisticDataItem `json:"data_items"`
}

func (r *SubscriptionStatisticRequest) window(now time.Time) (time.Time, time.Time) {
	to := r.To
	if to.IsZero() {
		to = now
	}
	from := r.From
	if from.IsZero() {
		from = to.AddDate(0, 0, -defaultRangeDays)
	}
	return from, to
}

type SubscriptionStatisticResponseDataItem struct {
	Date  string `json:"date,omitempty"`
	Label string `json:"label,omitempty"`
	Value int64  `json:"value"`
}

type SubscriptionStatisticResponse struct {
	DataItems map[StatisticType][]SubscriptionStatisticResponseDataItem `json:"data_items"`
}

// Service provides statistics operations
type Service struct {
	store store.Store
	now   func() time.Time
}

func New(st store.Store) *Service { return &Service{store: st, now: time.Now} }

func (s *Service) getSubscriptionStatusCount(ctx context.Context, _ *SubscriptionStatisticRequest) ([]SubscriptionStatisticResponseDataItem, error) {
	counts, err := s.store.CountSubscriptionsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	statuses := []types.SubscriptionStatus{
		types.SubscriptionStatusIncomplete,
		types.SubscriptionStatusActive,
		types.SubscriptionStatusPastDue,
		types.SubscriptionStatusCanceled,
	}
	return lo.Map(statuses, func(st types.SubscriptionStatus, _ int) SubscriptionStatisticResponseDataItem {
		return SubscriptionStatisticResponseDataItem{Label: string(st), Value: counts[st]}
	}), nil
}

func (s *Service) getDailyHistoryCount(ctx context.Context, request *SubscriptionStatisticRequest, actions ...types.HistoryAction) ([]SubscriptionStatisticResponseDataItem, error) {
	from, to := request.window(s.now())
	byDate := map[string]int64{}
	for _, action := range actions {
		days, err := s.store.CountHistoryByDay(ctx, action, from, to)
		if err != nil {
			return nil, err
		}
		for _, d := range days {
			byDate[d.Date] += d.Count
		}
	}
	results := lo.MapToSlice(byDate, func(date string, n int64) SubscriptionStatisticResponseDataItem {
		return SubscriptionStatisticResponseDataItem{Date: date, Value: n}
	})
	sort.Slice(results, func(i, j int) bool { return results[i].Date > results[j].Date })
	return results, nil
}

func (s *Service) getSubscriptionStatistic(ctx context.Context, request *SubscriptionStatisticRequest, dataItem *SubscriptionStatisticDataItem) ([]SubscriptionStatisticResponseDataItem, error) {
	switch dataItem.ID {
	case StatisticTypeSubscriptionStatusCount:
		return s.getSubscriptionStatusCount(ctx, request)
	case StatisticTypeDailyActivationCount:
		return s.getDailyHistoryCount(ctx, request, types.HistoryActionActivated)
	case StatisticTypeDailyCancellationCount:
		return s.getDailyHistoryCount(ctx, request, types.HistoryActionCanceled, types.HistoryActionCancelScheduled)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidDataItem, dataItem.ID)
	}
}

// GetSubscriptionStatistic computes every requested item concurrently. The
// first failing item fails the whole request.
func (s *Service) GetSubscriptionStatistic(ctx context.Context, request *SubscriptionStatisticRequest) (*SubscriptionStatisticResponse, error) {
	series := make([][]SubscriptionStatisticResponseDataItem, len(request.DataItems))
	g, gctx := errgroup.WithContext(ctx)
	for i, item := range request.DataItems {
		g.Go(func() error {
			res, err := s.getSubscriptionStatistic(gctx, request, item)
			if err != nil {
				return err
			}
			series[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make(map[StatisticType][]SubscriptionStatisticResponseDataItem, len(request.DataItems))
	for i, item := range request.DataItems {
		results[item.ID] = series[i]
	}
	return &SubscriptionStatisticResponse{DataItems: results}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
