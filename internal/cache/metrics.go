package cache

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 汇总缓存命中与上游耗时指标。
type Metrics struct {
	requests *prometheus.CounterVec
	upstream *prometheus.HistogramVec
}

// NewMetrics 创建并注册指标；reg 为空时不注册，适合测试。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "release_hub_cache_requests_total",
			Help: "Read-through cache lookups by resource and outcome.",
		}, []string{"resource", "status"}),
		upstream: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "release_hub_upstream_request_duration_seconds",
			Help:    "Latency of upstream API requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint", "status"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.upstream)
	}
	return m
}

// ObserveLookup 记录一次缓存查询，status 为 hit/miss/error。
func (m *Metrics) ObserveLookup(resource, status string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(resource, status).Inc()
}

// ObserveUpstream 记录一次上游请求耗时；status 为 0 表示传输失败。
func (m *Metrics) ObserveUpstream(endpoint string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := strconv.Itoa(status)
	if status == 0 {
		label = "error"
	}
	m.upstream.WithLabelValues(endpoint, label).Observe(elapsed.Seconds())
}
