package oracle

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	oracleResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oracle_resolutions_total",
		Help: "Total resolutions by API (server/client) and outcome.",
	}, []string{"api", "outcome"})

	oracleCacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oracle_cache_hits_total",
		Help: "Total resolution cache hits by API.",
	}, []string{"api"})

	oracleRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oracle_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	oracleRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oracle_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		oracleRequestsTotal.WithLabelValues(method, path, status).Inc()
		oracleRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// recordResolution records one resolution attempt.
func recordResolution(api, outcome string) {
	oracleResolutionsTotal.WithLabelValues(api, outcome).Inc()
}

// recordCacheHit records a resolution served from the cache.
func recordCacheHit(api string) {
	oracleCacheHitsTotal.WithLabelValues(api).Inc()
}
