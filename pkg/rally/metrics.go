package rally

import "github.com/prometheus/client_golang/prometheus"

// Ping outcomes recorded by Submit.
const (
	outcomeSent           = "sent"
	outcomeNotInitialized = "not_initialized"
	outcomeDevMode        = "dev_mode"
	outcomePaused         = "paused"
	outcomeInvalidKey     = "invalid_key"
	outcomeTransportError = "transport_error"
	outcomeUnsupported    = "unsupported"
)

// Rejection reasons recorded by the dispatchers.
const (
	reasonSender      = "sender"
	reasonUnknownType = "unknown_type"
	reasonRateLimited = "rate_limited"
	reasonForbidden   = "forbidden"
)

// Metrics holds the counters a Rally instance updates.
type Metrics struct {
	pings       *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rally",
			Name:      "pings_total",
			Help:      "Telemetry submissions by outcome.",
		}, []string{"outcome"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rally",
			Name:      "rejected_messages_total",
			Help:      "Inbound messages rejected before or during dispatch.",
		}, []string{"channel", "reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rally",
			Name:      "state_transitions_total",
			Help:      "Run-state changes by resulting state.",
		}, []string{"state"}),
	}
	if reg != nil {
		reg.MustRegister(m.pings, m.rejected, m.transitions)
	}
	return m
}

func (m *Metrics) ping(outcome string) {
	m.pings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) reject(ch Channel, reason string) {
	m.rejected.WithLabelValues(string(ch), reason).Inc()
}

func (m *Metrics) transition(s RunState) {
	m.transitions.WithLabelValues(s.String()).Inc()
}
