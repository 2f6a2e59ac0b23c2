package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the process registry and the counters the billing engine and
// HTTP layer record into.
type Metrics struct {
	registry *prometheus.Registry

	billingOps   *prometheus.CounterVec
	creditsSpent prometheus.Counter
	aiCostUSD    prometheus.Counter

	httpRequests *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		billingOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_operations_total",
			Help: "Billing engine operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		creditsSpent: factory.NewCounter(prometheus.CounterOpts{
			Name: "credits_spent_total",
			Help: "Credits deducted by successful billing operations.",
		}),
		aiCostUSD: factory.NewCounter(prometheus.CounterOpts{
			Name: "ai_cost_usd_total",
			Help: "Estimated provider cost in USD across recorded AI calls.",
		}),
		httpRequests: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route, method and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordBillingOp(op, outcome string) {
	m.billingOps.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) RecordCreditsSpent(amount int64) {
	if amount > 0 {
		m.creditsSpent.Add(float64(amount))
	}
}

func (m *Metrics) RecordAICost(usd float64) {
	if usd > 0 {
		m.aiCostUSD.Add(usd)
	}
}

// GinMiddleware records per-route latency. The route template is used, not
// the raw path, to keep cardinality bounded.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.
			WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
