package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mailwatch/internal/monitoring"
)

// MonitoringMiddleware 监控中间件
type MonitoringMiddleware struct {
	metrics *monitoring.Metrics
}

// NewMonitoringMiddleware 创建监控中间件
func NewMonitoringMiddleware(metrics *monitoring.Metrics) *MonitoringMiddleware {
	return &MonitoringMiddleware{metrics: metrics}
}

// HTTPMetrics HTTP 指标中间件
func (mm *MonitoringMiddleware) HTTPMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// 处理请求
		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		mm.metrics.RecordHTTPRequest(
			c.Request.Method,
			endpoint,
			strconv.Itoa(status),
			duration,
		)

		if status >= 500 {
			mm.metrics.RecordError("http_error", "http")
		}
		if status == 429 {
			mm.metrics.RecordRateLimitBlock(endpoint)
		}
	}
}
