package transport

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	outcomeOK      = "ok"
	outcomeError   = "error"
	outcomeTimeout = "timeout"

	outcomeHandled   = "handled"
	outcomeDefault   = "default"
	outcomeUnhandled = "unhandled"
)

type metrics struct {
	requests *prometheus.CounterVec
	inbound  *prometheus.CounterVec
}

func newMetrics(registerer prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "widget_api",
			Name:      "requests_total",
			Help:      "Requests sent to the host by action and outcome.",
		}, []string{"action", "outcome"}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "widget_api",
			Name:      "inbound_requests_total",
			Help:      "Requests received from the host by action and how they were answered.",
		}, []string{"action", "outcome"}),
	}
	if registerer != nil {
		registerer.MustRegister(m.requests, m.inbound)
	}
	return m
}
