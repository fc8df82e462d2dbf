package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	nh "github.com/fatflowers/paysettle/internal/app/service/notification_handler"
	"github.com/fatflowers/paysettle/pkg/logctx"
	"github.com/fatflowers/paysettle/pkg/response"
	"github.com/fatflowers/paysettle/pkg/types"
)

const maxWebhookBody = 1 << 20

// respondSettled answers 503 when the settlement asked for a redelivery and
// 200 for everything else, including duplicates and parked payments.
func respondSettled(c *gin.Context, res *nh.Result) {
	if res.Settlement != nil && res.Settlement.Retryable() {
		c.JSON(http.StatusServiceUnavailable, response.ErrorT(response.APIResponseCodeRetry, res))
		return
	}
	c.JSON(http.StatusOK, response.OKT(res))
}

// @Summary      Payment processor webhook
// @Description  Verifies the processor signature, journals the notification and settles the payment it carries.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        provider path string true "Payment provider" Enums(paystack, stripe)
// @Param        payload body object true "Raw processor event"
// @Success      200  {object}  handlers.RespNotification
// @Failure      400  {object}  handlers.RespOK
// @Failure      503  {object}  handlers.RespNotification
// @Router       /api/v2/payment/webhook/{provider} [post]
func ApiPaymentWebhook(h *nh.NotificationHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		provider := types.PaymentProvider(c.Param("provider"))
		lg := logctx.FromGin(c, h.Logger).With("provider", provider)
		lg.Infow("webhook_received")

		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			abortBadRequest(c, err)
			return
		}
		res, err := h.HandleNotification(c.Request.Context(), provider, payload, c.Request.Header)
		if err != nil {
			lg.Warnw("webhook_handle_error", "error", err.Error())
			abortWithError(c, err)
			return
		}
		lg.Infow("webhook_handled", "event_type", res.EventType, "ignored", res.Ignored)
		respondSettled(c, res)
	}
}

type VerifyPaymentRequest struct {
	Provider       types.PaymentProvider `json:"provider"`
	Reference      string                `json:"reference" binding:"required"`
	SubscriptionID string                `json:"subscription_id"`
}

// @Summary      Verify payment
// @Description  Looks the reference up at the processor and settles it when the payment succeeded.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body handlers.VerifyPaymentRequest true "Payment reference"
// @Success      200  {object}  handlers.RespNotification
// @Failure      404  {object}  handlers.RespOK
// @Router       /api/v2/payment/verify [post]
func ApiVerifyPayment(h *nh.NotificationHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VerifyPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortBadRequest(c, err)
			return
		}
		res, err := h.HandleVerification(c.Request.Context(), req.Provider, req.Reference, req.SubscriptionID)
		if err != nil {
			logctx.FromGin(c, h.Logger).Warnw("verify_payment_error", "reference", req.Reference, "error", err.Error())
			abortWithError(c, err)
			return
		}
		respondSettled(c, res)
	}
}

func RegisterPaymentRoutes(r gin.IRouter, h *nh.NotificationHandler) {
	r.POST("/webhook/:provider", ApiPaymentWebhook(h))
	r.POST("/verify", ApiVerifyPayment(h))
}
