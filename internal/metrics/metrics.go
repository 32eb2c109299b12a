// Package metrics 定义服务的 Prometheus 指标。
//
// 所有记录方法对 nil 接收者安全，未启用指标时可直接传 nil。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "apparel_shop"

// Metrics 持有全部指标向量及其注册表
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	stockMutations *prometheus.CounterVec
	stockClamped   *prometheus.CounterVec
	alertsOpened   *prometheus.CounterVec
	alertsResolved prometheus.Counter

	ordersCreated     prometheus.Counter
	orderTransitions  *prometheus.CounterVec
	orderNumberErrors *prometheus.CounterVec

	eventsPublished   *prometheus.CounterVec
	reconcileMessages *prometheus.CounterVec
	rateLimited       *prometheus.CounterVec
}

// New 创建独立注册表并注册所有指标
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		stockMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stock", Name: "mutations_total",
			Help: "Committed stock ledger mutations by change type.",
		}, []string{"change_type"}),
		stockClamped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stock", Name: "clamped_total",
			Help: "Stock mutations clamped at zero.",
		}, []string{"change_type"}),
		alertsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stock", Name: "alerts_opened_total",
			Help: "Stock alerts opened by type.",
		}, []string{"alert_type"}),
		alertsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stock", Name: "alerts_resolved_total",
			Help: "Stock alerts resolved.",
		}),
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "orders", Name: "created_total",
			Help: "Orders created.",
		}),
		orderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "orders", Name: "transitions_total",
			Help: "Order status transitions.",
		}, []string{"from", "to"}),
		orderNumberErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "orders", Name: "number_allocation_issues_total",
			Help: "Order number allocation retries and degraded fallbacks.",
		}, []string{"kind"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "events", Name: "published_total",
			Help: "Domain events published by routing key and outcome.",
		}, []string{"routing_key", "outcome"}),
		reconcileMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "events", Name: "reconcile_messages_total",
			Help: "Ledger reconciliation messages by outcome.",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}, []string{"route"}),
	}

	reg.MustRegister(
		m.httpRequests, m.httpDuration,
		m.stockMutations, m.stockClamped, m.alertsOpened, m.alertsResolved,
		m.ordersCreated, m.orderTransitions, m.orderNumberErrors,
		m.eventsPublished, m.reconcileMessages, m.rateLimited,
	)
	return m
}

// Handler 返回 /metrics 端点
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry 返回底层注册表（测试中读取指标值）
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveHTTP(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(seconds)
}

func (m *Metrics) StockMutation(changeType string, clamped bool) {
	if m == nil {
		return
	}
	m.stockMutations.WithLabelValues(changeType).Inc()
	if clamped {
		m.stockClamped.WithLabelValues(changeType).Inc()
	}
}

func (m *Metrics) AlertOpened(alertType string) {
	if m == nil {
		return
	}
	m.alertsOpened.WithLabelValues(alertType).Inc()
}

func (m *Metrics) AlertResolved() {
	if m == nil {
		return
	}
	m.alertsResolved.Inc()
}

func (m *Metrics) OrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

func (m *Metrics) OrderTransition(from, to string) {
	if m == nil {
		return
	}
	m.orderTransitions.WithLabelValues(from, to).Inc()
}

// OrderNumberIssue kind 取 retry 或 degraded
func (m *Metrics) OrderNumberIssue(kind string) {
	if m == nil {
		return
	}
	m.orderNumberErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) EventPublished(routingKey string, err error) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(routingKey, outcome(err)).Inc()
}

func (m *Metrics) ReconcileMessage(result string) {
	if m == nil {
		return
	}
	m.reconcileMessages.WithLabelValues(result).Inc()
}

func (m *Metrics) RateLimited(route string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(route).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
