package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/fatflowers/paysettle/internal/app/service/activation"
	"github.com/fatflowers/paysettle/internal/app/service/settlement"
	"github.com/fatflowers/paysettle/internal/app/service/statistics"
	"github.com/fatflowers/paysettle/internal/app/store"
	"github.com/fatflowers/paysettle/internal/models"
	"github.com/fatflowers/paysettle/pkg/response"
	"github.com/fatflowers/paysettle/pkg/types"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type ListUnmatchedPaymentRequest struct {
	Filters types.CommonFilters `json:"filters"`
	From    int                 `json:"from"`
	Size    int                 `json:"size"`
}

type ListUnmatchedPaymentResponse struct {
	Items []*models.UnmatchedPayment `json:"items"`
	Total int64                      `json:"total"`
}

// @Summary      List unmatched payments (Admin)
// @Description  Scans the operator queue of payments that could not be attributed to a subscription.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body handlers.ListUnmatchedPaymentRequest true "Filters and pagination"
// @Success      200  {object}  handlers.RespListUnmatchedPayment
// @Router       /api/v1/admin/unmatched_payment/list [post]
func ApiListUnmatchedPayments(svc *settlement.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListUnmatchedPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortBadRequest(c, err)
			return
		}
		size := lo.Ternary(req.Size <= 0, defaultPageSize, min(req.Size, maxPageSize))
		items, total, err := svc.List(c.Request.Context(), store.UnmatchedQuery{
			Filters: req.Filters,
			Limit:   size,
			Offset:  max(req.From, 0),
		})
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&ListUnmatchedPaymentResponse{Items: items, Total: total}))
	}
}

type LinkUnmatchedPaymentRequest struct {
	ID             string `json:"id" binding:"required"`
	SubscriptionID string `json:"subscription_id" binding:"required"`
	OperatorID     string `json:"operator_id" binding:"required"`
}

// @Summary      Link unmatched payment (Admin)
// @Description  Activates the chosen subscription with a queued payment and resolves the queue entry.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body handlers.LinkUnmatchedPaymentRequest true "Queue entry and target subscription"
// @Success      200  {object}  handlers.RespActivation
// @Failure      409  {object}  handlers.RespActivation
// @Router       /api/v1/admin/unmatched_payment/link [post]
func ApiLinkUnmatchedPayment(svc *settlement.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LinkUnmatchedPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortBadRequest(c, err)
			return
		}
		res, err := svc.Link(c.Request.Context(), req.ID, req.SubscriptionID, req.OperatorID)
		if err != nil {
			abortWithError(c, err)
			return
		}
		if !res.Success {
			code := activationFailureCode(res)
			c.JSON(code.HTTPStatus(), response.ErrorT(code, res))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func activationFailureCode(res *activation.Result) response.APIResponseCode {
	switch res.Reason {
	case types.ActivationFailureLockTimeout:
		return response.APIResponseCodeRetry
	case types.ActivationFailureSubscriptionNotFound:
		return response.APIResponseCodeNotFound
	}
	return response.APIResponseCodeConflict
}

type SubscriptionStatisticQuery struct {
	From time.Time `form:"from" time_format:"2006-01-02" time_utc:"1"`
	To   time.Time `form:"to" time_format:"2006-01-02" time_utc:"1"`
	// Items is a comma separated list of statistic types; empty selects all.
	Items string `form:"items"`
}

var allStatisticTypes = []statistics.StatisticType{
	statistics.StatisticTypeSubscriptionStatusCount,
	statistics.StatisticTypeDailyActivationCount,
	statistics.StatisticTypeDailyCancellationCount,
}

func (q SubscriptionStatisticQuery) request() *statistics.SubscriptionStatisticRequest {
	ids := allStatisticTypes
	if q.Items != "" {
		ids = lo.Uniq(lo.FilterMap(strings.Split(q.Items, ","), func(s string, _ int) (statistics.StatisticType, bool) {
			s = strings.TrimSpace(s)
			return statistics.StatisticType(s), s != ""
		}))
	}
	return &statistics.SubscriptionStatisticRequest{
		From: q.From,
		To:   q.To,
		DataItems: lo.Map(ids, func(id statistics.StatisticType, _ int) *statistics.SubscriptionStatisticDataItem {
			return &statistics.SubscriptionStatisticDataItem{ID: id}
		}),
	}
}

// @Summary      Subscription statistics (Admin)
// @Description  Subscription counts per status and daily activation and cancellation counts.
// @Tags         Admin
// @Produce      json
// @Param        from   query string false "First day, YYYY-MM-DD"
// @Param        to     query string false "Day after the last one, YYYY-MM-DD"
// @Param        items  query string false "Comma separated statistic types"
// @Success      200  {object}  handlers.RespSubscriptionStatistic
// @Router       /api/v1/admin/subscription_statistic [get]
func ApiGetSubscriptionStatistic(svc *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q SubscriptionStatisticQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			abortBadRequest(c, err)
			return
		}
		res, err := svc.GetSubscriptionStatistic(c.Request.Context(), q.request())
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterAdminRoutes(r gin.IRouter, settle *settlement.Service, stats *statistics.Service) {
	r.POST("/unmatched_payment/list", ApiListUnmatchedPayments(settle))
	r.POST("/unmatched_payment/link", ApiLinkUnmatchedPayment(settle))
	r.GET("/subscription_statistic", ApiGetSubscriptionStatistic(stats))
}
