// Package metrics exposes the broker's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/remoteview/broker/internal/common/config"
)

type Metrics struct {
	registry    *prometheus.Registry
	namespace   string
	httpReqCnt  *prometheus.CounterVec
	httpDur     *prometheus.HistogramVec
	sessions    *prometheus.GaugeVec
	envelopeCnt *prometheus.CounterVec
	envelopeDur *prometheus.HistogramVec
	deliveryCnt *prometheus.CounterVec
	historyLen  prometheus.Gauge
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	// Register standard process and Go collectors
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total"}, []string{"method", "route", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "http_request_duration_seconds", Buckets: cfg.Buckets}, []string{"method", "route", "status"})
	r.MustRegister(httpReqCnt, httpDur)

	sessions := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "sessions_connected"}, []string{"role"})
	envelopeCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "envelopes_total"}, []string{"type", "outcome"})
	envelopeDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "envelope_duration_seconds", Buckets: cfg.Buckets}, []string{"type"})
	deliveryCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "deliveries_total"}, []string{"scope", "outcome"})
	historyLen := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "chat_history_length"})
	r.MustRegister(sessions, envelopeCnt, envelopeDur, deliveryCnt, historyLen)

	return &Metrics{
		registry:    r,
		namespace:   ns,
		httpReqCnt:  httpReqCnt,
		httpDur:     httpDur,
		sessions:    sessions,
		envelopeCnt: envelopeCnt,
		envelopeDur: envelopeDur,
		deliveryCnt: deliveryCnt,
		historyLen:  historyLen,
	}
}

// SessionConnected adjusts the connected-session gauge for a role.
func (m *Metrics) SessionConnected(role string) {
	m.sessions.WithLabelValues(role).Inc()
}

// SessionDisconnected adjusts the connected-session gauge for a role.
func (m *Metrics) SessionDisconnected(role string) {
	m.sessions.WithLabelValues(role).Dec()
}

// EnvelopeDone records one processed inbound envelope.
func (m *Metrics) EnvelopeDone(msgType, outcome string, since time.Time) {
	m.envelopeCnt.WithLabelValues(msgType, outcome).Inc()
	m.envelopeDur.WithLabelValues(msgType).Observe(time.Since(since).Seconds())
}

// DeliveryOK records one successful unicast/broadcast delivery.
func (m *Metrics) DeliveryOK(scope string) {
	m.deliveryCnt.WithLabelValues(scope, "ok").Inc()
}

// DeliveryFailed records one skipped recipient.
func (m *Metrics) DeliveryFailed(scope string) {
	m.deliveryCnt.WithLabelValues(scope, "failed").Inc()
}

// HistoryLen records the current chat history length.
func (m *Metrics) HistoryLen(n int) {
	m.historyLen.Set(float64(n))
}

// Middleware instruments HTTP requests served by gin.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the scrape endpoint handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
