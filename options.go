package widgettoolkit

import (
	"time"

	"github.com/sirupsen/logrus"
)

const defaultOpenIDLeeway = 30 * time.Second

type options struct {
	supportStandalone bool
	clock             func() time.Time
	openIDLeeway      time.Duration
	logger            *logrus.Entry
}

// Option configures a WidgetAPI, see WithSupportStandalone, WithClock,
// WithOpenIDLeeway and WithLogger.
type Option func(*options)

// WithSupportStandalone allows the widget to run outside of a client. Without
// it the io.element.requires_client capability is requested initially.
func WithSupportStandalone(supportStandalone bool) Option {
	return func(o *options) {
		o.supportStandalone = supportStandalone
	}
}

// WithClock replaces time.Now, e.g. to step past the OpenID token expiry in tests.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithOpenIDLeeway sets how long before its expiry a cached OpenID token is
// considered stale. Defaults to 30 seconds.
func WithOpenIDLeeway(leeway time.Duration) Option {
	return func(o *options) {
		o.openIDLeeway = leeway
	}
}

// WithLogger sets the logger. By default the logger is taken from the context
// passed to Create.
func WithLogger(logger *logrus.Entry) Option {
	return func(o *options) {
		o.logger = logger
	}
}
