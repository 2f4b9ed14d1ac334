// Package metrics provides Prometheus metrics for the ingress fabric.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Connection state gauge values, matching the adapter state machines'
// Disconnected..Failed progression.
const (
	StateDisconnected  = 0
	StateOpening       = 1
	StateAuthenticated = 2
	StateRunning       = 3
	StateFailed        = 4
)

// Metrics holds all Prometheus metrics for the ingress fabric.
type Metrics struct {
	QueueDepth           prometheus.Gauge
	QueueCapacity        prometheus.Gauge
	AdapterConnState     *prometheus.GaugeVec
	TimerPoolSize        prometheus.Gauge
	WakeSleepTableSize   prometheus.Gauge
	ThreadActivitySize   prometheus.Gauge
	GuardVerdictsTotal   *prometheus.CounterVec
	WebhookRequestsTotal *prometheus.CounterVec
	MessagesForwarded    *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatmesh_outbound_queue_depth",
			Help: "Current number of messages buffered in the outbound bus.",
		}),
		QueueCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatmesh_outbound_queue_capacity",
			Help: "Configured capacity of the outbound bus.",
		}),
		AdapterConnState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chatmesh_adapter_connection_state",
			Help: "Adapter connection state: 0=Disconnected 1=Opening 2=Authenticated 3=Running 4=Failed.",
		}, []string{"adapter"}),
		TimerPoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatmesh_timer_pool_size",
			Help: "Number of scheduled inactivity timers.",
		}),
		WakeSleepTableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatmesh_wakesleep_table_size",
			Help: "Number of threads tracked by the wake/sleep engine.",
		}),
		ThreadActivitySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatmesh_thread_activity_size",
			Help: "Number of threads tracked by the thread activity tracker.",
		}),
		GuardVerdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatmesh_guard_verdicts_total",
			Help: "Total prompt guard verdicts by outcome.",
		}, []string{"verdict"}),
		WebhookRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatmesh_webhook_requests_total",
			Help: "Total webhook ingress requests by vendor and status.",
		}, []string{"vendor", "status"}),
		MessagesForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatmesh_messages_forwarded_total",
			Help: "Total ChannelMessages enqueued by source adapter.",
		}, []string{"channel"}),
		registry: reg,
	}

	reg.MustRegister(
		m.QueueDepth,
		m.QueueCapacity,
		m.AdapterConnState,
		m.TimerPoolSize,
		m.WakeSleepTableSize,
		m.ThreadActivitySize,
		m.GuardVerdictsTotal,
		m.WebhookRequestsTotal,
		m.MessagesForwarded,
	)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetAdapterState records an adapter's connection state.
func (m *Metrics) SetAdapterState(adapter string, state int) {
	m.AdapterConnState.WithLabelValues(adapter).Set(float64(state))
}

// RecordGuardVerdict increments the guard verdict counter.
func (m *Metrics) RecordGuardVerdict(verdict string) {
	m.GuardVerdictsTotal.WithLabelValues(verdict).Inc()
}

// RecordWebhookRequest increments the webhook request counter.
func (m *Metrics) RecordWebhookRequest(vendor, status string) {
	m.WebhookRequestsTotal.WithLabelValues(vendor, status).Inc()
}

// RecordMessageForwarded increments the forwarded-message counter.
func (m *Metrics) RecordMessageForwarded(channel string) {
	m.MessagesForwarded.WithLabelValues(channel).Inc()
}
