package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fatflowers/paysettle/internal/app/service/correlation"
	"github.com/fatflowers/paysettle/internal/app/service/proration"
	"github.com/fatflowers/paysettle/internal/app/service/settlement"
	"github.com/fatflowers/paysettle/internal/app/service/statistics"
	"github.com/fatflowers/paysettle/internal/platform/processor"
	"github.com/fatflowers/paysettle/pkg/response"
)

// errorCode maps service errors onto envelope codes. Anything unknown is an
// infrastructure failure and answers 500 so processors redeliver.
func errorCode(err error) response.APIResponseCode {
	var upstream *processor.UpstreamError
	switch {
	case errors.Is(err, processor.ErrInvalidSignature),
		errors.Is(err, correlation.ErrInvalidCorrelation),
		errors.Is(err, proration.ErrInvalidPeriod),
		errors.Is(err, settlement.ErrInvalidFilter),
		errors.Is(err, statistics.ErrInvalidDataItem):
		return response.APIResponseCodeBadRequest
	case errors.Is(err, processor.ErrUnsupportedProvider),
		errors.Is(err, settlement.ErrUnmatchedNotFound):
		return response.APIResponseCodeNotFound
	case errors.Is(err, settlement.ErrAlreadyResolved):
		return response.APIResponseCodeConflict
	case errors.As(err, &upstream) && upstream.StatusCode == http.StatusNotFound:
		return response.APIResponseCodeNotFound
	}
	return response.APIResponseCodeError
}

func abortWithError(c *gin.Context, err error) {
	code := errorCode(err)
	_ = c.Error(err)
	c.JSON(code.HTTPStatus(), response.ErrorMsg(code, err.Error()))
}

func abortBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, response.ErrorMsg(response.APIResponseCodeBadRequest, err.Error()))
}
