package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes server counters in Prometheus format on its own registry.
type Metrics struct {
	registry   *prometheus.Registry
	requests   *prometheus.CounterVec
	signIns    *prometheus.CounterVec
	todoWrites *prometheus.CounterVec
	snapshots  prometheus.Counter
	listeners  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todos_http_requests_total",
			Help: "HTTP requests by route pattern and status class.",
		}, []string{"route", "class"}),
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todos_sign_ins_total",
			Help: "Sign in attempts by method and outcome.",
		}, []string{"method", "outcome"}),
		todoWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todos_writes_total",
			Help: "Todo writes by operation.",
		}, []string{"op"}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todos_snapshots_sent_total",
			Help: "Full-list snapshots pushed to listeners.",
		}),
		listeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "todos_listeners",
			Help: "Open websocket listeners.",
		}),
	}
	m.registry.MustRegister(
		m.requests,
		m.signIns,
		m.todoWrites,
		m.snapshots,
		m.listeners,
		collectors.NewGoCollector(),
	)
	return m
}

// RecordRequest counts a finished request by route and status class.
func (m *Metrics) RecordRequest(route string, status int) {
	class := "2xx"
	switch {
	case status >= 500:
		class = "5xx"
	case status >= 400:
		class = "4xx"
	case status >= 300:
		class = "3xx"
	case status < 200:
		class = "1xx"
	}
	m.requests.WithLabelValues(route, class).Inc()
}

// RecordSignIn counts a sign in attempt.
func (m *Metrics) RecordSignIn(method, outcome string) {
	m.signIns.WithLabelValues(method, outcome).Inc()
}

// RecordTodoWrite counts a create, update or delete.
func (m *Metrics) RecordTodoWrite(op string) {
	m.todoWrites.WithLabelValues(op).Inc()
}

// RecordSnapshot counts a snapshot frame sent to a listener.
func (m *Metrics) RecordSnapshot() {
	m.snapshots.Inc()
}

// ListenerOpened and ListenerClosed track open websocket listeners.
func (m *Metrics) ListenerOpened() { m.listeners.Inc() }
func (m *Metrics) ListenerClosed() { m.listeners.Dec() }

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
