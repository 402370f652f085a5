package middleware

import (
	"strconv" // Status code labels
	"time"    // Request latency

	"github.com/gin-gonic/gin"                       // Gin web framework
	"github.com/prometheus/client_golang/prometheus" // Timers
	"github.com/sirupsen/logrus"                     // Logging library

	"payment_broker/internal/metrics" // Collectors
)

// MetricsMiddleware counts requests and observes latency per route template
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		endpoint := c.FullPath() // Route template, keeps label cardinality bounded
		if endpoint == "" {
			endpoint = "unmatched" // 404s share one label
		}
		timer := prometheus.NewTimer(metrics.HTTPLatency.WithLabelValues(c.Request.Method, endpoint))
		c.Next() // Run the handler
		timer.ObserveDuration()
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// LoggerMiddleware logs each request through logrus so redaction hooks apply
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now() // Request start
		c.Next()            // Run the handler
		entry := logrus.WithFields(logrus.Fields{
			"method":     c.Request.Method,                 // HTTP method
			"path":       c.Request.URL.Path,               // Path without query, which may carry tokens
			"status":     c.Writer.Status(),                // Response status
			"latency_ms": time.Since(start).Milliseconds(), // Duration
			"client_ip":  c.ClientIP(),                     // Caller
		})
		if c.Writer.Status() >= 500 {
			entry.Error("Request failed") // Server side failure
			return
		}
		entry.Info("Request handled")
	}
}
