package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mailwatch/internal/domain"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 生命周期指标
	EmailsTracked    prometheus.Counter
	EmailTransitions *prometheus.CounterVec
	FallbackMatches  prometheus.Counter
	DroppedEvents    prometheus.Counter

	// 回调指标
	WebhookEvents *prometheus.CounterVec

	// 维护指标
	StuckRemediated prometheus.Counter
	RecordsCleaned  prometheus.Counter

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		// HTTP 请求指标
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailwatch_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailwatch_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		// 生命周期指标
		EmailsTracked: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailwatch_emails_tracked_total",
				Help: "Total number of outgoing emails tracked",
			},
		),

		EmailTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailwatch_email_transitions_total",
				Help: "Total number of email status transitions",
			},
			[]string{"status"},
		),

		FallbackMatches: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailwatch_fallback_matches_total",
				Help: "Total number of completion events matched without a Message-ID",
			},
		),

		DroppedEvents: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailwatch_dropped_events_total",
				Help: "Total number of completion events with no matching record",
			},
		),

		// 回调指标
		WebhookEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailwatch_webhook_events_total",
				Help: "Total number of webhook status updates applied",
			},
			[]string{"status"},
		),

		// 维护指标
		StuckRemediated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailwatch_stuck_remediated_total",
				Help: "Total number of stuck emails force-failed",
			},
		),

		RecordsCleaned: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailwatch_records_cleaned_total",
				Help: "Total number of email logs removed by retention cleanup",
			},
		),

		// 错误指标
		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailwatch_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailwatch_panics_total",
				Help: "Total number of panics",
			},
		),

		// 限流指标
		RateLimitBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailwatch_rate_limit_blocks_total",
				Help: "Total number of rate limit blocks",
			},
			[]string{"endpoint"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordTracked 记录新追踪的邮件
func (m *Metrics) RecordTracked() {
	m.EmailsTracked.Inc()
}

// RecordTransition 记录状态变更
func (m *Metrics) RecordTransition(status domain.Status) {
	m.EmailTransitions.WithLabelValues(string(status)).Inc()
}

// RecordFallbackMatch 记录回退匹配命中
func (m *Metrics) RecordFallbackMatch() {
	m.FallbackMatches.Inc()
}

// RecordDroppedEvent 记录无处可归的完成事件
func (m *Metrics) RecordDroppedEvent() {
	m.DroppedEvents.Inc()
}

// RecordWebhookEvent 记录已应用的回调事件
func (m *Metrics) RecordWebhookEvent(status string) {
	m.WebhookEvents.WithLabelValues(status).Inc()
}

// RecordStuckRemediated 记录卡死修复数量
func (m *Metrics) RecordStuckRemediated(count int) {
	m.StuckRemediated.Add(float64(count))
}

// RecordCleanup 记录清理删除数量
func (m *Metrics) RecordCleanup(deleted int) {
	m.RecordsCleaned.Add(float64(deleted))
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(endpoint string) {
	m.RateLimitBlocks.WithLabelValues(endpoint).Inc()
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
