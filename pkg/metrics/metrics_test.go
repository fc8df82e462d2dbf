package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusinessHelpersNoopBeforeRegistration(t *testing.T) {
	m := &Metric{Name: "unregistered", Type: TypeCounterVec, Args: []string{"operation", "outcome"}}
	assert.Nil(t, m.MetricCollector)
	assert.NotPanics(t, func() {
		ObserveProcess("activation", "ok", time.Now())
		IncOutcome("activation", "activated")
		ObserveLockWait("subscription:activate", true, time.Now())
	})
}

func TestNewMetricCounterVec(t *testing.T) {
	c := NewMetric(&Metric{Name: "outcome_test_total", Type: TypeCounterVec, Args: []string{"operation", "outcome"}}, "test")
	cv, ok := c.(*prometheus.CounterVec)
	require.True(t, ok)
	cv.WithLabelValues("settlement", "unmatched").Inc()
	cv.WithLabelValues("settlement", "unmatched").Inc()
	assert.Equal(t, float64(2), testutil.ToFloat64(cv.WithLabelValues("settlement", "unmatched")))
}

func TestComputeApproximateRequestSize(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/v2/payment/verify", strings.NewReader(`{"reference":"r"}`))
	r.Header.Set("Content-Type", "application/json")
	size := computeApproximateRequestSize(r)
	assert.Greater(t, size, len("/api/v2/payment/verify")+len(`{"reference":"r"}`))
}

func TestMiddlewareRecordsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	p := NewPrometheus(NewPrometheusOptions{
		Subsystem:               "mwtest",
		Registry:                reg,
		ReqCntURLLabelMappingFn: func(c *gin.Context) string { return c.FullPath() },
	})
	r := gin.New()
	p.Use(r)
	r.POST("/api/v2/payment/webhook/:provider", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, provider := range []string{"paystack", "stripe"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v2/payment/webhook/"+provider, nil))
	}
	assert.Equal(t, float64(2), testutil.ToFloat64(p.reqCnt.WithLabelValues("200", http.MethodPost, "/api/v2/payment/webhook/:provider")))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mwtest_req_total")
}

func TestBusinessMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheus(NewPrometheusOptions{Subsystem: "biztest", Registry: reg, MetricsList: BusinessMetrics})

	IncOutcome("settle", "activated")
	c, ok := MetricsEngineOutcome.MetricCollector.(*prometheus.CounterVec)
	require.True(t, ok)
	assert.Equal(t, float64(1), testutil.ToFloat64(c.WithLabelValues("settle", "activated")))
}
