package handlers

import (
	"github.com/fatflowers/paysettle/internal/app/service/activation"
	"github.com/fatflowers/paysettle/internal/app/service/cancellation"
	nh "github.com/fatflowers/paysettle/internal/app/service/notification_handler"
	"github.com/fatflowers/paysettle/internal/app/service/proration"
	"github.com/fatflowers/paysettle/internal/app/service/statistics"
	"github.com/fatflowers/paysettle/pkg/response"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

type RespNotification struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    nh.Result                `json:"data"`
}

type RespCancellation struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    cancellation.Result      `json:"data"`
}

type RespProration struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    proration.Result         `json:"data"`
}

type RespActivation struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    activation.Result        `json:"data"`
}

// RespListUnmatchedPayment wraps ListUnmatchedPaymentResponse in the standard envelope.
type RespListUnmatchedPayment struct {
	Code    response.APIResponseCode     `json:"code"`
	Message string                       `json:"message"`
	Data    ListUnmatchedPaymentResponse `json:"data"`
}

// RespSubscriptionStatistic wraps SubscriptionStatisticResponse in the standard envelope.
type RespSubscriptionStatistic struct {
	Code    response.APIResponseCode                 `json:"code"`
	Message string                                   `json:"message"`
	Data    statistics.SubscriptionStatisticResponse `json:"data"`
}
