package echoserver

import (
	"github.com/prometheus/client_golang/prometheus"
)

//Metrics counts echo server traffic. A nil *Metrics records nothing.
type Metrics struct {
	connections *prometheus.CounterVec
	active      *prometheus.GaugeVec
	messages    *prometheus.CounterVec
	bytes       *prometheus.CounterVec
}

//NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsweb",
			Subsystem: "echoserver",
			Name:      "connections_total",
			Help:      "Websocket connections accepted.",
		}, []string{"endpoint"}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wsweb",
			Subsystem: "echoserver",
			Name:      "connections_active",
			Help:      "Websocket connections currently open.",
		}, []string{"endpoint"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsweb",
			Subsystem: "echoserver",
			Name:      "messages_total",
			Help:      "Websocket messages by direction.",
		}, []string{"endpoint", "direction"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsweb",
			Subsystem: "echoserver",
			Name:      "bytes_total",
			Help:      "Websocket payload bytes by direction.",
		}, []string{"endpoint", "direction"}),
	}

	for _, c := range []prometheus.Collector{m.connections, m.active, m.messages, m.bytes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) connected(endpoint string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(endpoint).Inc()
	m.active.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) disconnected(endpoint string) {
	if m == nil {
		return
	}
	m.active.WithLabelValues(endpoint).Dec()
}

func (m *Metrics) sent(endpoint string, n int) {
	m.message(endpoint, "sent", n)
}

func (m *Metrics) received(endpoint string, n int) {
	m.message(endpoint, "received", n)
}

func (m *Metrics) message(endpoint, direction string, n int) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(endpoint, direction).Inc()
	m.bytes.WithLabelValues(endpoint, direction).Add(float64(n))
}
