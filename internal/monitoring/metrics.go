package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 校验指标
	ValidationsTotal   *prometheus.CounterVec // 按风险级别
	FindingsTotal      *prometheus.CounterVec // 按类别与级别
	ValidationDuration prometheus.Histogram

	// 速率限制指标
	RateLimitChecks     *prometheus.CounterVec // 按结果（allowed/denied）
	RateLimitDenials    *prometheus.CounterVec // 按原因（cooldown/window/burst）
	CooldownTransitions prometheus.Counter

	// 垃圾邮件与黑名单指标
	SpamChecksTotal prometheus.Counter
	SpamFlagged     prometheus.Counter
	BlacklistHits   prometheus.Counter

	// 发送指标
	SendsTotal *prometheus.CounterVec // 按结果（delivered/rejected/...）

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter
}

// NewMetrics 创建监控指标并注册到默认注册表
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry 创建监控指标并注册到指定注册表，测试中传入独立注册表
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailguard_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailguard_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		ValidationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailguard_validations_total",
				Help: "Total number of email validations by risk level",
			},
			[]string{"risk_level"},
		),
		FindingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailguard_findings_total",
				Help: "Total number of threat findings by category and severity",
			},
			[]string{"category", "severity"},
		),
		ValidationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mailguard_validation_duration_seconds",
				Help:    "Full-envelope validation duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
		),
		RateLimitChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailguard_ratelimit_checks_total",
				Help: "Total number of rate limit checks by result",
			},
			[]string{"result"},
		),
		RateLimitDenials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailguard_ratelimit_denials_total",
				Help: "Total number of rate limit denials by cause",
			},
			[]string{"cause"},
		),
		CooldownTransitions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailguard_cooldown_transitions_total",
				Help: "Total number of senders transitioned into cooldown",
			},
		),
		SpamChecksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailguard_spam_checks_total",
				Help: "Total number of spam content checks",
			},
		),
		SpamFlagged: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailguard_spam_flagged_total",
				Help: "Total number of messages flagged as spam",
			},
		),
		BlacklistHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailguard_blacklist_hits_total",
				Help: "Total number of blacklisted recipient hits",
			},
		),
		SendsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailguard_sends_total",
				Help: "Total number of outbound send attempts by outcome",
			},
			[]string{"outcome"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailguard_errors_total",
				Help: "Total number of errors by type and component",
			},
			[]string{"type", "component"},
		),
		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailguard_panics_total",
				Help: "Total number of recovered panics",
			},
		),
	}
}

// RecordHTTPRequest 记录一次 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordValidation 记录一次信封校验及其全部发现
func (m *Metrics) RecordValidation(riskLevel string, findings map[string]map[string]int, duration time.Duration) {
	m.ValidationsTotal.WithLabelValues(riskLevel).Inc()
	m.ValidationDuration.Observe(duration.Seconds())
	for category, bySeverity := range findings {
		for severity, count := range bySeverity {
			m.FindingsTotal.WithLabelValues(category, severity).Add(float64(count))
		}
	}
}

// RecordRateLimitCheck 记录一次速率检查结果
func (m *Metrics) RecordRateLimitCheck(allowed bool, cause string) {
	if allowed {
		m.RateLimitChecks.WithLabelValues("allowed").Inc()
		return
	}
	m.RateLimitChecks.WithLabelValues("denied").Inc()
	if cause != "" {
		m.RateLimitDenials.WithLabelValues(cause).Inc()
	}
}

// RecordError 记录一次错误
func (m *Metrics) RecordError(errType, component string) {
	m.ErrorsTotal.WithLabelValues(errType, component).Inc()
}

// RecordPanic 记录一次 panic 恢复
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}
