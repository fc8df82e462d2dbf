package metrics

// Request instrumentation follows github.com/zsais/go-gin-prometheus with the
// push gateway and the referer label removed.

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var reqLabels = []string{"code", "method", "url"}

var reqCnt = &Metric{
	ID:          "reqCnt",
	Name:        "req_total",
	Description: "How many HTTP requests processed, partitioned by status code and HTTP method.",
	Type:        TypeCounterVec,
	Args:        reqLabels,
}

var reqDur = &Metric{
	ID:          "reqDur",
	Name:        "req_dur_ms",
	Description: "The HTTP request latencies in milliseconds.",
	Type:        TypeHistogramVec,
	Args:        reqLabels,
}

var resSz = &Metric{
	ID:          "resSz",
	Name:        "resp_sz_bytes",
	Description: "The HTTP response sizes in bytes.",
	Type:        TypeSummaryVec,
	Args:        reqLabels,
}

var reqSz = &Metric{
	ID:          "reqSz",
	Name:        "req_sz_bytes",
	Description: "The HTTP request sizes in bytes.",
	Type:        TypeSummaryVec,
	Args:        reqLabels,
}

var standardMetrics = []*Metric{reqCnt, reqDur, resSz, reqSz}

const defaultMetricPath = "/metrics"

// URLLabelFn controls the cardinality of the "url" label. Routes with path
// parameters should map to their template, e.g. c.FullPath().
type URLLabelFn func(c *gin.Context) string

type Prometheus struct {
	reqCnt       *prometheus.CounterVec
	reqDur       *prometheus.HistogramVec
	reqSz, resSz *prometheus.SummaryVec

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	urlLabel   URLLabelFn
	log        *zap.SugaredLogger

	MetricsList []*Metric
	MetricsPath string

	listenAddress string
	server        *http.Server
}

type NewPrometheusOptions struct {
	Subsystem               string
	MetricsList             []*Metric
	MetricsPath             string
	ReqCntURLLabelMappingFn URLLabelFn
	Logger                  *zap.SugaredLogger
	// Registry defaults to the process-wide prometheus registry.
	Registry *prometheus.Registry
}

// NewPrometheus registers the standard HTTP metrics plus options.MetricsList.
// A metric that is already registered is reused.
func NewPrometheus(options NewPrometheusOptions) *Prometheus {
	p := &Prometheus{
		registerer:  prometheus.DefaultRegisterer,
		gatherer:    prometheus.DefaultGatherer,
		urlLabel:    options.ReqCntURLLabelMappingFn,
		log:         options.Logger,
		MetricsList: append(append([]*Metric{}, options.MetricsList...), standardMetrics...),
		MetricsPath: options.MetricsPath,
	}
	if options.Registry != nil {
		p.registerer, p.gatherer = options.Registry, options.Registry
	}
	if p.MetricsPath == "" {
		p.MetricsPath = defaultMetricPath
	}
	if p.urlLabel == nil {
		p.urlLabel = func(c *gin.Context) string { return c.Request.URL.Path }
	}
	if p.log == nil {
		p.log = zap.NewNop().Sugar()
	}
	p.registerMetrics(options.Subsystem)
	return p
}

func (p *Prometheus) registerMetrics(subsystem string) {
	for _, def := range p.MetricsList {
		metric := NewMetric(def, subsystem)
		if metric == nil {
			p.log.Errorf("%s has unknown metric type %q", def.Name, def.Type)
			continue
		}
		if err := p.registerer.Register(metric); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				p.log.Errorf("%s could not be registered in Prometheus, err=%v", def.Name, err)
				continue
			}
			metric = already.ExistingCollector
		}
		switch def {
		case reqCnt:
			p.reqCnt = metric.(*prometheus.CounterVec)
		case reqDur:
			p.reqDur = metric.(*prometheus.HistogramVec)
		case resSz:
			p.resSz = metric.(*prometheus.SummaryVec)
		case reqSz:
			p.reqSz = metric.(*prometheus.SummaryVec)
		}
		def.MetricCollector = metric
	}
}

// SetListenAddress serves the metrics path on a separate listener instead of
// the instrumented engine. Start and Shutdown manage that listener.
func (p *Prometheus) SetListenAddress(address string) {
	p.listenAddress = address
}

// Use adds the middleware to e and mounts the metrics path on e unless a
// separate listen address is set.
func (p *Prometheus) Use(e *gin.Engine) {
	e.Use(p.HandlerFunc())
	if p.listenAddress == "" {
		e.GET(p.MetricsPath, p.metricsHandler())
	}
}

func (p *Prometheus) Start() {
	if p.listenAddress == "" {
		return
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET(p.MetricsPath, p.metricsHandler())
	p.server = &http.Server{Addr: p.listenAddress, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.log.Errorf("metrics server error: %v", err)
		}
	}()
}

func (p *Prometheus) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	return p.server.Shutdown(ctx)
}

func (p *Prometheus) metricsHandler() gin.HandlerFunc {
	h := promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// HandlerFunc defines handler function for middleware
func (p *Prometheus) HandlerFunc() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == p.MetricsPath {
			c.Next()
			return
		}

		start := time.Now()
		reqSize := computeApproximateRequestSize(c.Request)

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		url := p.urlLabel(c)
		if p.reqDur != nil {
			p.reqDur.WithLabelValues(status, c.Request.Method, url).Observe(MillisecondsSince(start))
		}
		if p.reqCnt != nil {
			p.reqCnt.WithLabelValues(status, c.Request.Method, url).Inc()
		}
		if p.reqSz != nil {
			p.reqSz.WithLabelValues(status, c.Request.Method, url).Observe(float64(reqSize))
		}
		if p.resSz != nil {
			p.resSz.WithLabelValues(status, c.Request.Method, url).Observe(float64(c.Writer.Size()))
		}
	}
}
