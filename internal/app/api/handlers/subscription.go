package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/fatflowers/paysettle/internal/app/service/cancellation"
	"github.com/fatflowers/paysettle/internal/app/service/correlation"
	"github.com/fatflowers/paysettle/internal/app/service/proration"
	"github.com/fatflowers/paysettle/pkg/response"
	"github.com/fatflowers/paysettle/pkg/types"
)

type CancelSubscriptionRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// @Summary      Cancel subscription
// @Description  Cancels the user's most recent active or pending subscription. Pending ones end immediately, active ones at the end of the billing period.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        request body handlers.CancelSubscriptionRequest true "User to cancel for"
// @Success      200  {object}  handlers.RespCancellation
// @Failure      404  {object}  handlers.RespCancellation
// @Failure      503  {object}  handlers.RespCancellation
// @Router       /api/v2/subscription/cancel [post]
func ApiCancelSubscription(svc *cancellation.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CancelSubscriptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortBadRequest(c, err)
			return
		}
		res, err := svc.Cancel(c.Request.Context(), req.UserID)
		if err != nil {
			abortWithError(c, err)
			return
		}
		if !res.Success {
			code := response.APIResponseCodeNotFound
			if res.Reason == types.CancellationFailureLockTimeout {
				code = response.APIResponseCodeRetry
			}
			c.JSON(code.HTTPStatus(), response.ErrorT(code, res))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type ProrationRequest struct {
	OldPrice    decimal.Decimal `json:"old_price" swaggertype:"string" example:"50.00"`
	NewPrice    decimal.Decimal `json:"new_price" swaggertype:"string" example:"100.00"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
	// ChangeDate defaults to now.
	ChangeDate time.Time `json:"change_date"`
}

// @Summary      Prorate plan change
// @Description  Computes the credit for the unused part of the old plan and the charge for the new one. A negative amount is a credit.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        request body handlers.ProrationRequest true "Prices and billing period"
// @Success      200  {object}  handlers.RespProration
// @Failure      400  {object}  handlers.RespOK
// @Router       /api/v2/subscription/proration [post]
func ApiProration() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ProrationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortBadRequest(c, err)
			return
		}
		if req.OldPrice.IsNegative() || req.NewPrice.IsNegative() {
			abortBadRequest(c, errors.New("prices must not be negative"))
			return
		}
		res, err := proration.Calculate(req.OldPrice, req.NewPrice, req.PeriodStart, req.PeriodEnd, req.ChangeDate)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type CheckoutReferenceRequest struct {
	Reference      string `json:"reference" binding:"required"`
	SubscriptionID string `json:"subscription_id" binding:"required"`
}

// @Summary      Register checkout reference
// @Description  Remembers which subscription a checkout reference was issued for so the webhook can be matched exactly.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body handlers.CheckoutReferenceRequest true "Reference and subscription"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v2/checkout/reference [post]
func ApiCheckoutReference(m *correlation.Matcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CheckoutReferenceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortBadRequest(c, err)
			return
		}
		if err := m.RememberReference(c.Request.Context(), req.Reference, req.SubscriptionID); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterSubscriptionRoutes(r gin.IRouter, svc *cancellation.Service) {
	r.POST("/cancel", ApiCancelSubscription(svc))
	r.POST("/proration", ApiProration())
}

func RegisterCheckoutRoutes(r gin.IRouter, m *correlation.Matcher) {
	r.POST("/reference", ApiCheckoutReference(m))
}
