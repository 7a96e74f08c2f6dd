/* Copyright 2023 Nordeck IT + Consulting GmbH
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package widgettoolkit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/matrix-org/util"
	"github.com/nordeck/matrix-widget-toolkit-sub000/capabilities"
	"github.com/nordeck/matrix-widget-toolkit-sub000/spec"
	"github.com/sirupsen/logrus"
)

// InitState is the stage of the handshake with the host.
type InitState int

const (
	StateCreated InitState = iota
	StateStarting
	StateAwaitingReady
	StateAwaitingModalConfig
	StateReady
	StateFailed
)

func (s InitState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateAwaitingReady:
		return "awaiting ready"
	case StateAwaitingModalConfig:
		return "awaiting modal config"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// WidgetAPI is the widget side of the widget API: it negotiates capabilities
// with the host client and reads, writes and observes events through it.
type WidgetAPI struct {
	transport           Transport
	params              WidgetParameters
	initialCapabilities []string
	logger              *logrus.Entry
	bus                 *broadcastBus
	negotiations        negotiationState
	openID              *openIDProvider

	mu           sync.Mutex
	state        InitState
	initErr      error
	widgetConfig *WidgetConfig
}

// NewWidgetAPI creates a WidgetAPI that still has to be initialized, see
// Create.
func NewWidgetAPI(
	transport Transport, params WidgetParameters, initial []capabilities.Identifier, opts ...Option,
) *WidgetAPI {
	o := options{
		clock:        time.Now,
		openIDLeeway: defaultOpenIDLeeway,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger := o.logger.WithField("widget_id", params.WidgetID)

	w := &WidgetAPI{
		transport:           transport,
		params:              params,
		initialCapabilities: initialCapabilityList(initial, o.supportStandalone),
		logger:              logger,
		bus:                 newBroadcastBus(transport, logger),
	}
	w.openID = &openIDProvider{
		fetch:  w.fetchOpenIDToken,
		clock:  o.clock,
		leeway: o.openIDLeeway,
	}
	return w
}

// Create builds a WidgetAPI and initializes it. The logger of ctx is used
// unless WithLogger is given.
func Create(
	ctx context.Context, transport Transport, params WidgetParameters, initial []capabilities.Identifier, opts ...Option,
) (*WidgetAPI, error) {
	opts = append([]Option{WithLogger(util.GetLogger(ctx))}, opts...)
	w := NewWidgetAPI(transport, params, initial, opts...)
	if err := w.Initialize(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// State returns the current handshake state.
func (w *WidgetAPI) State() InitState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *WidgetAPI) setState(s InitState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
	w.logger.WithField("state", s.String()).Debug("Widget API state changed")
}

// Initialize performs the handshake: it requests the initial capabilities,
// starts the transport and waits for the host to be ready and, for modal
// widgets, for the modal configuration. It does not guarantee that the
// capabilities were approved, check HasInitialCapabilities afterwards.
//
// A failed WidgetAPI stays failed; every later call returns the first error.
func (w *WidgetAPI) Initialize(ctx context.Context) error {
	w.mu.Lock()
	switch w.state {
	case StateReady:
		w.mu.Unlock()
		return nil
	case StateFailed:
		err := w.initErr
		w.mu.Unlock()
		return err
	case StateCreated:
	default:
		w.mu.Unlock()
		return errors.New("widgettoolkit: initialization already in progress")
	}
	w.mu.Unlock()

	w.setState(StateStarting)

	var config *exchange
	if w.IsModal() {
		config = newExchange(func(b Broadcast) bool {
			_, ok := b.(WidgetConfigBroadcast)
			return ok
		})
		unsubscribe := w.bus.subscribe(spec.ActionWidgetConfig, config)
		defer unsubscribe()
	}

	w.transport.RequestCapabilities(w.initialCapabilities)
	if err := w.transport.Start(ctx); err != nil {
		return w.fail(StateStarting, err)
	}

	w.setState(StateAwaitingReady)
	if err := w.transport.WaitReady(ctx); err != nil {
		return w.fail(StateAwaitingReady, err)
	}

	if config != nil {
		w.setState(StateAwaitingModalConfig)
		b, err := config.wait(ctx)
		if err != nil {
			return w.fail(StateAwaitingModalConfig, err)
		}
		cfg := b.(WidgetConfigBroadcast).Config
		w.mu.Lock()
		w.widgetConfig = &cfg
		w.mu.Unlock()
	}

	w.setState(StateReady)
	w.logger.WithField("has_initial_capabilities", w.HasInitialCapabilities()).Info("Widget API ready")
	return nil
}

func (w *WidgetAPI) fail(state InitState, err error) error {
	initErr := InitializationError{State: state, Err: err}
	w.mu.Lock()
	w.state = StateFailed
	w.initErr = initErr
	w.mu.Unlock()
	w.logger.WithError(err).WithField("state", state.String()).Error("Widget API initialization failed")
	return initErr
}

// WidgetID returns the id the host assigned to this widget.
func (w *WidgetAPI) WidgetID() string {
	return w.params.WidgetID
}

// WidgetParameters returns the parameters the widget was started with.
func (w *WidgetAPI) WidgetParameters() WidgetParameters {
	return w.params
}

// IsModal reports whether the widget runs as a modal of another widget.
func (w *WidgetAPI) IsModal() bool {
	return w.params.IsModal()
}

// WidgetConfig returns the configuration a modal widget received during
// initialization, or nil for other widgets.
func (w *WidgetAPI) WidgetConfig() *WidgetConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.widgetConfig
}
