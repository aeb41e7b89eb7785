// Package metrics 持有服务自己的 Prometheus registry。所有方法对 nil 接收者安全。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics Prometheus 指标集合
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 指标
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	// 检索指标
	retrievalBranch *prometheus.CounterVec
	rerankDegraded  prometheus.Counter
	leafFailures    *prometheus.CounterVec

	// 入库指标
	ingestions *prometheus.CounterVec
}

// New 创建并注册全部指标
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "tutor"
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	m.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	m.retrievalBranch = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retrieval_branch_total",
		Help:      "Retrieval turns by orchestrator branch",
	}, []string{"branch"})

	m.rerankDegraded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rerank_degraded_total",
		Help:      "Rerank calls that fell back to the original order",
	})

	m.leafFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retrieval_leaf_failures_total",
		Help:      "Soft failures of retrieval leaves",
	}, []string{"leaf"})

	m.ingestions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingestions_total",
		Help:      "Document ingestions by final status",
	}, []string{"status"})

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.retrievalBranch,
		m.rerankDegraded,
		m.leafFailures,
		m.ingestions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler 返回 /metrics 的处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 暴露底层 registry，主要供测试使用
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveHTTP(method, path, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, path, status).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

func (m *Metrics) RetrievalBranch(branch string) {
	if m == nil {
		return
	}
	m.retrievalBranch.WithLabelValues(branch).Inc()
}

func (m *Metrics) RerankDegraded() {
	if m == nil {
		return
	}
	m.rerankDegraded.Inc()
}

// LeafFailure 记录 lexical / vector / embedding 的软失败
func (m *Metrics) LeafFailure(leaf string) {
	if m == nil {
		return
	}
	m.leafFailures.WithLabelValues(leaf).Inc()
}

func (m *Metrics) Ingestion(status string) {
	if m == nil {
		return
	}
	m.ingestions.WithLabelValues(status).Inc()
}
