// Package metrics exposes relay counters and gauges for Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "relay"

// Message results
const (
	ResultRouted        = "routed"
	ResultRateLimited   = "rate_limited"
	ResultDropped       = "dropped"
	ResultProtocolError = "protocol_error"
	ResultAuthError     = "auth_error"
)

// Reaped kinds
const (
	KindConnection = "connection"
	KindPairCode   = "pair_code"
	KindTrustToken = "trust_token"
)

type Metrics struct {
	connections  prometheus.Gauge
	sessions     prometheus.Gauge
	remotes      prometheus.Gauge
	messages     *prometheus.CounterVec
	pairing      *prometheus.CounterVec
	reaped       *prometheus.CounterVec
	sendFailures prometheus.Counter
}

// New registers the relay collectors on reg. A nil *Metrics is valid and
// records nothing.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Registered host sessions.",
		}),
		remotes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "remotes",
			Help:      "Remote connections attached to a session.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound non-handshake messages by outcome.",
		}, []string{"result"}),
		pairing: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairing_total",
			Help:      "Pairing and session validation attempts by outcome.",
		}, []string{"outcome"}),
		reaped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaped_total",
			Help:      "Entries removed by the liveness sweep.",
		}, []string{"kind"}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Outbound frames that could not be queued.",
		}),
	}

	reg.MustRegister(
		m.connections, m.sessions, m.remotes,
		m.messages, m.pairing, m.reaped, m.sendFailures,
	)
	return m
}

func (m *Metrics) SetSizes(connections, sessions, remotes int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(connections))
	m.sessions.Set(float64(sessions))
	m.remotes.Set(float64(remotes))
}

func (m *Metrics) Message(result string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(result).Inc()
}

func (m *Metrics) Pairing(outcome string) {
	if m == nil {
		return
	}
	m.pairing.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Reaped(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reaped.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) SendFailure() {
	if m == nil {
		return
	}
	m.sendFailures.Inc()
}
