package transport

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type clientOptions struct {
	timeout    time.Duration
	registerer prometheus.Registerer
	logger     *logrus.Entry
}

// ClientOption are supplied to NewClient.
type ClientOption func(*clientOptions)

// WithTimeout sets how long SendRequest waits for the host's response.
// Defaults to 10 seconds.
func WithTimeout(duration time.Duration) ClientOption {
	return func(options *clientOptions) {
		options.timeout = duration
	}
}

// WithMetrics registers the client's counters with registerer.
func WithMetrics(registerer prometheus.Registerer) ClientOption {
	return func(options *clientOptions) {
		options.registerer = registerer
	}
}

// WithLogger sets the logger of the client.
func WithLogger(logger *logrus.Entry) ClientOption {
	return func(options *clientOptions) {
		options.logger = logger
	}
}
