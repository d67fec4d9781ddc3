package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DropEmpty     = "empty"
	DropMalformed = "malformed"
)

type Metrics struct {
	Connections    prometheus.Gauge
	MessagesStored *prometheus.CounterVec
	Deliveries     prometheus.Counter
	SendsDropped   *prometheus.CounterVec
	SendFailures   prometheus.Counter
	registry       *prometheus.Registry
}

// New registers the relay's collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Active websocket connections",
		}),
		MessagesStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_messages_stored_total",
			Help: "Messages persisted, by path",
		}, []string{"path"}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "message:new events queued to live connections",
		}),
		SendsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_sends_dropped_total",
			Help: "Inbound events dropped without persisting, by reason",
		}, []string{"reason"}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_send_failures_total",
			Help: "Sends that failed to persist",
		}),
		registry: reg,
	}
	reg.MustRegister(
		m.Connections, m.MessagesStored, m.Deliveries, m.SendsDropped, m.SendFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
