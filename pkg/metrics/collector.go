package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 业务指标
	participationTransitions *prometheus.CounterVec
	settlementsTotal         *prometheus.CounterVec
	paybackTransitions       *prometheus.CounterVec
	couponIssues             *prometheus.CounterVec
	eventsPublished          *prometheus.CounterVec

	// 缓存指标
	cacheHitsTotal   *prometheus.CounterVec
	cacheMissesTotal *prometheus.CounterVec
}

func newCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		participationTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reward_participation_transitions_total",
				Help: "Participation status transitions by target status and outcome",
			},
			[]string{"status", "outcome"},
		),
		settlementsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reward_settlements_total",
				Help: "Settlement runs by mission type and outcome",
			},
			[]string{"mission_type", "outcome"},
		),
		paybackTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reward_payback_transitions_total",
				Help: "Payback status transitions",
			},
			[]string{"source", "status"},
		),
		couponIssues: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reward_coupon_issues_total",
				Help: "Coupon issuance attempts by result",
			},
			[]string{"result"},
		),
		eventsPublished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reward_events_published_total",
				Help: "Domain events published by topic and outcome",
			},
			[]string{"topic", "outcome"},
		),
		cacheHitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"key_prefix"},
		),
		cacheMissesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"key_prefix"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Collector) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, getStatusCategory(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordTransition 记录参与状态流转，outcome 为 applied / noop / error
func (m *Collector) RecordTransition(status, outcome string) {
	m.participationTransitions.WithLabelValues(status, outcome).Inc()
}

// RecordSettlement 记录结算结果
func (m *Collector) RecordSettlement(missionType string, err error) {
	m.settlementsTotal.WithLabelValues(missionType, outcomeOf(err)).Inc()
}

// RecordPayback 记录返现状态变化
func (m *Collector) RecordPayback(source, status string) {
	m.paybackTransitions.WithLabelValues(source, status).Inc()
}

// RecordCouponIssue 记录发券结果，result 为 issued 或跳过原因
func (m *Collector) RecordCouponIssue(result string) {
	m.couponIssues.WithLabelValues(result).Inc()
}

// RecordEvent 记录事件发布
func (m *Collector) RecordEvent(topic string, err error) {
	m.eventsPublished.WithLabelValues(topic, outcomeOf(err)).Inc()
}

// RecordCache 记录缓存命中
func (m *Collector) RecordCache(keyPrefix string, hit bool) {
	if hit {
		m.cacheHitsTotal.WithLabelValues(keyPrefix).Inc()
		return
	}
	m.cacheMissesTotal.WithLabelValues(keyPrefix).Inc()
}

func outcomeOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// getStatusCategory 获取状态分类
func getStatusCategory(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

var (
	globalCollector *Collector
	once            sync.Once
)

// GetGlobalCollector 获取全局指标收集器，注册到默认 Registerer，只初始化一次
func GetGlobalCollector() *Collector {
	once.Do(func() {
		globalCollector = newCollector(prometheus.DefaultRegisterer)
	})
	return globalCollector
}

// NewTestCollector 使用独立 Registry，测试中可重复创建
func NewTestCollector() (*Collector, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return newCollector(reg), reg
}
