// Package middleware contains the shared Gin middleware for the gateway's
// HTTP layer.
//
// This file exposes Prometheus instrumentation for gateway traffic. Labels
// are kept low-cardinality: the registered route (not the raw URL), the
// method, and the status code. Cache behavior gets its own counter keyed by
// the X-Cache tier tag so hit rates are visible per tier.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// edgeReqs counts requests by method, route path, and status code.
	edgeReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_http_requests_total",
			Help: "Total number of HTTP requests handled by the gateway.",
		},
		[]string{"method", "path", "status"},
	)

	// edgeLat records request duration in seconds by method and route path.
	// Status is omitted to keep histogram cardinality lower.
	edgeLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edge_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// edgeInflight gauges currently processing requests.
	edgeInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "edge_http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// edgeCacheResults counts responses per cache tier tag (D1-HIT, KV-HIT,
	// HIT, MISS, STALE). Responses without an X-Cache header are not counted.
	edgeCacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_cache_results_total",
			Help: "Responses served per cache tier tag.",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(edgeReqs, edgeLat, edgeInflight, edgeCacheResults)
}

// Metrics returns a Gin middleware that instruments requests with Prometheus.
//
// Usage:
//
//	r := gin.New()
//	r.Use(middleware.Metrics())
//	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
//
// The "path" label uses c.FullPath() to avoid unbounded cardinality from raw
// URLs, falling back to the raw path when no route matched.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		edgeInflight.Inc()
		defer edgeInflight.Dec()

		c.Next()

		dur := time.Since(start).Seconds()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		edgeReqs.WithLabelValues(method, path, status).Inc()
		edgeLat.WithLabelValues(method, path).Observe(dur)
		if tier := c.Writer.Header().Get("X-Cache"); tier != "" {
			edgeCacheResults.WithLabelValues(tier).Inc()
		}
	}
}
