// Package metrics exposes the Prometheus collectors of the service.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DiamondsSpent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lumina_diamonds_spent_total",
		Help: "Diamonds deducted from balances, by action.",
	}, []string{"action"})

	DiamondsGranted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lumina_diamonds_granted_total",
		Help: "Diamonds added to balances, by source.",
	}, []string{"source"})

	TransitionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lumina_wallet_rejections_total",
		Help: "Balance transitions refused by the policy, by reason.",
	}, []string{"reason"})

	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lumina_provider_requests_total",
		Help: "Requests sent to the AI provider, by capability and outcome.",
	}, []string{"capability", "outcome"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lumina_provider_request_seconds",
		Help:    "Latency of AI provider requests.",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
	}, []string{"capability"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lumina_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})
)

// ObserveProvider records one provider call.
func ObserveProvider(capability string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ProviderRequests.WithLabelValues(capability, outcome).Inc()
	ProviderLatency.WithLabelValues(capability).Observe(time.Since(started).Seconds())
}

// Middleware counts requests by matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Handler serves /metrics.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
