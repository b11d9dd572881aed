package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var httpMetricsSingleton = sync.OnceValue(func() *httpMetrics {
	return &httpMetrics{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matrikkel",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served by the ops API",
		}, []string{"method", "route", "status"}),
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "matrikkel",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency of the ops API",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
})

// Metrics counts requests and observes their latency per route. Unmatched
// requests share one route label so arbitrary paths cannot grow the series.
func Metrics() gin.HandlerFunc {
	m := httpMetricsSingleton()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
