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

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-set/v3"
	widgettoolkit "github.com/nordeck/matrix-widget-toolkit-sub000"
	"github.com/nordeck/matrix-widget-toolkit-sub000/spec"
	"github.com/sirupsen/logrus"
)

const requestTimeout = 10 * time.Second

// SupportedAPIVersions are the widget API versions this client speaks.
var SupportedAPIVersions = []string{
	"0.0.1", "0.0.2",
	"org.matrix.msc2762", "org.matrix.msc2871", "org.matrix.msc2873", "org.matrix.msc2931",
	"org.matrix.msc2974", "org.matrix.msc2876", "org.matrix.msc3819", "org.matrix.msc3869",
	"org.matrix.msc3973", "org.matrix.msc4039",
}

var (
	// ErrNotDispatching is returned by Reply for a request whose handlers
	// already returned.
	ErrNotDispatching = errors.New("transport: request is not being dispatched")
	// ErrAlreadyReplied is returned by Reply for a request that was answered.
	ErrAlreadyReplied = errors.New("transport: request was already answered")
)

type handlerEntry struct {
	id      uint64
	handler func(*widgettoolkit.Request)
}

// inbound is a toWidget request while its handlers run.
type inbound struct {
	envelope *Envelope
	replied  bool
}

// Client is the widget side of a widget API connection. It implements
// widgettoolkit.Transport.
type Client struct {
	port     Port
	widgetID string
	timeout  time.Duration
	logger   *logrus.Entry
	metrics  *metrics

	startOnce sync.Once
	closeOnce sync.Once
	stop      context.CancelFunc
	done      chan struct{}
	err       error

	ready     chan struct{}
	readyOnce sync.Once

	mu         sync.Mutex
	nextID     uint64
	pending    map[string]chan *Envelope
	handlers   map[string][]handlerEntry
	inflight   map[string]*inbound
	requested  []string
	requestSet *set.Set[string]
	approved   *set.Set[string]
}

// NewClient makes a Client for the widget widgetID talking to its host over
// port. Nothing is read from port until Start is called.
func NewClient(port Port, widgetID string, options ...ClientOption) *Client {
	opts := &clientOptions{
		timeout: requestTimeout,
	}
	for _, option := range options {
		option(opts)
	}
	if opts.logger == nil {
		opts.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{
		port:       port,
		widgetID:   widgetID,
		timeout:    opts.timeout,
		logger:     opts.logger.WithField("widget_id", widgetID),
		metrics:    newMetrics(opts.registerer),
		done:       make(chan struct{}),
		ready:      make(chan struct{}),
		pending:    make(map[string]chan *Envelope),
		handlers:   make(map[string][]handlerEntry),
		inflight:   make(map[string]*inbound),
		requestSet: set.New[string](0),
		approved:   set.New[string](0),
	}
}

// Start begins reading from the port. The client keeps running after ctx is
// done, until Close is called or the port fails.
func (c *Client) Start(ctx context.Context) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.startOnce.Do(func() {
		loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c.mu.Lock()
		c.stop = cancel
		c.mu.Unlock()
		go c.readLoop(loopCtx)
	})
	return nil
}

// Close stops the client and closes the port. Outstanding requests fail
// with ErrClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		stop := c.stop
		c.mu.Unlock()
		if stop != nil {
			stop()
		}
		err = c.port.Close()
		c.shutdown(ErrClosed)
	})
	return err
}

func (c *Client) shutdown(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return
	default:
	}
	c.err = err
	close(c.done)
}

// Done is closed once the client stopped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the client stopped, or nil while it runs.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		frame, err := c.port.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, ErrClosed) {
				c.logger.WithError(err).Warn("Widget API port failed")
			}
			c.shutdown(err)
			return
		}
		env, err := ParseEnvelope(frame)
		if err != nil {
			c.logger.WithError(err).Warn("Dropping malformed widget API frame")
			continue
		}
		if env.WidgetID != "" && env.WidgetID != c.widgetID {
			c.logger.WithField("other_widget_id", env.WidgetID).Debug("Dropping frame for another widget")
			continue
		}
		switch {
		case env.API == spec.FromWidget && env.IsResponse():
			c.handleResponse(env)
		case env.API == spec.ToWidget && !env.IsResponse():
			c.handleRequest(ctx, env)
		}
	}
}

func (c *Client) handleResponse(env *Envelope) {
	c.mu.Lock()
	ch, ok := c.pending[env.RequestID]
	delete(c.pending, env.RequestID)
	c.mu.Unlock()
	if !ok {
		c.logger.WithField("request_id", env.RequestID).Debug("Dropping response to unknown request")
		return
	}
	ch <- env
}

// handleRequest runs the handlers of an inbound request and answers it if
// none of them did.
func (c *Client) handleRequest(ctx context.Context, env *Envelope) {
	switch env.Action {
	case spec.ActionCapabilities:
		c.mu.Lock()
		requested := append([]string{}, c.requested...)
		c.mu.Unlock()
		c.respond(ctx, env, map[string][]string{"capabilities": requested}, outcomeDefault)
		return
	case spec.ActionSupportedAPIVersions:
		c.respond(ctx, env, map[string][]string{"supported_versions": SupportedAPIVersions}, outcomeDefault)
		return
	case spec.ActionNotifyCapabilities:
		var notify struct {
			Approved []string `json:"approved"`
		}
		if err := json.Unmarshal(env.Data, &notify); err != nil {
			c.logger.WithError(err).Warn("Malformed capabilities notification")
		}
		c.mu.Lock()
		c.approved = set.From(notify.Approved)
		c.mu.Unlock()
		c.readyOnce.Do(func() { close(c.ready) })
	}

	in := &inbound{envelope: env}
	c.mu.Lock()
	c.inflight[env.RequestID] = in
	entries := append([]handlerEntry(nil), c.handlers[env.Action]...)
	c.mu.Unlock()

	req := &widgettoolkit.Request{RequestID: env.RequestID, Action: env.Action, Data: env.Data}
	for _, e := range entries {
		e.handler(req)
	}

	c.mu.Lock()
	delete(c.inflight, env.RequestID)
	replied := in.replied
	c.mu.Unlock()
	if replied {
		c.metrics.inbound.WithLabelValues(env.Action, outcomeHandled).Inc()
		return
	}

	switch env.Action {
	case spec.ActionNotifyCapabilities, spec.ActionThemeChange, spec.ActionLanguageChange:
		c.respond(ctx, env, struct{}{}, outcomeDefault)
	default:
		c.logger.WithField("action", env.Action).Debug("No handler answered the request")
		c.respond(ctx, env, spec.NewErrorResponse("Unknown or unsupported action: %s", env.Action), outcomeUnhandled)
	}
}

func (c *Client) respond(ctx context.Context, env *Envelope, response interface{}, outcome string) {
	if err := c.writeResponse(ctx, env, response); err != nil {
		c.logger.WithError(err).WithField("action", env.Action).Warn("Failed to answer request")
	}
	c.metrics.inbound.WithLabelValues(env.Action, outcome).Inc()
}

func (c *Client) writeResponse(ctx context.Context, env *Envelope, response interface{}) error {
	raw, err := json.Marshal(response)
	if err != nil {
		return err
	}
	out := *env
	out.WidgetID = c.widgetID
	out.Response = raw
	frame, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return c.port.Send(ctx, frame)
}

// Reply answers an inbound request. It has to be called while the request's
// handlers run and succeeds only once per request.
func (c *Client) Reply(req *widgettoolkit.Request, response interface{}) error {
	c.mu.Lock()
	in, ok := c.inflight[req.RequestID]
	if !ok {
		c.mu.Unlock()
		return ErrNotDispatching
	}
	if in.replied {
		c.mu.Unlock()
		return ErrAlreadyReplied
	}
	in.replied = true
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.writeResponse(ctx, in.envelope, response)
}

// Subscribe registers handler for inbound requests with the given action.
// Handlers run on the client's read goroutine, one request at a time.
func (c *Client) Subscribe(action string, handler func(*widgettoolkit.Request)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.handlers[action] = append(c.handlers[action], handlerEntry{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			entries := c.handlers[action]
			for i, e := range entries {
				if e.id == id {
					c.handlers[action] = append(entries[:i:i], entries[i+1:]...)
					break
				}
			}
			if len(c.handlers[action]) == 0 {
				delete(c.handlers, action)
			}
		})
	}
}

// SendRequest sends a fromWidget request and waits for the response. Error
// responses are returned as spec.WidgetError.
func (c *Client) SendRequest(ctx context.Context, action string, data interface{}) (spec.RawJSON, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("transport: encoding %s request: %w", action, err)
	}
	env := Envelope{
		API:       spec.FromWidget,
		WidgetID:  c.widgetID,
		RequestID: uuid.NewString(),
		Action:    action,
		Data:      raw,
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}

	ch := make(chan *Envelope, 1)
	c.mu.Lock()
	c.pending[env.RequestID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, env.RequestID)
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err = c.port.Send(ctx, frame); err != nil {
		c.metrics.requests.WithLabelValues(action, outcomeError).Inc()
		return nil, err
	}

	select {
	case res := <-ch:
		if err = responseError(res.Response); err != nil {
			c.metrics.requests.WithLabelValues(action, outcomeError).Inc()
			return nil, err
		}
		c.metrics.requests.WithLabelValues(action, outcomeOK).Inc()
		return res.Response, nil
	case <-c.done:
		c.metrics.requests.WithLabelValues(action, outcomeError).Inc()
		return nil, ErrClosed
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.metrics.requests.WithLabelValues(action, outcomeTimeout).Inc()
			c.logger.WithFields(logrus.Fields{
				"action":     action,
				"request_id": env.RequestID,
			}).Warn("Widget API request timed out")
		} else {
			c.metrics.requests.WithLabelValues(action, outcomeError).Inc()
		}
		return nil, ctx.Err()
	}
}

// RequestCapabilities adds capabilities to the set requested from the host.
func (c *Client) RequestCapabilities(capabilities []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, capability := range capabilities {
		if c.requestSet.Insert(capability) {
			c.requested = append(c.requested, capability)
		}
	}
}

// UpdateRequestedCapabilities asks the host to approve the requested
// capabilities that are not approved yet. The host answers with a
// notify_capabilities request.
func (c *Client) UpdateRequestedCapabilities(ctx context.Context) error {
	c.mu.Lock()
	missing := make([]string, 0, len(c.requested))
	for _, capability := range c.requested {
		if !c.approved.Contains(capability) {
			missing = append(missing, capability)
		}
	}
	c.mu.Unlock()

	_, err := c.SendRequest(ctx, spec.ActionRequestCapabilities, map[string][]string{"capabilities": missing})
	return err
}

// HasCapability reports whether the host approved capability.
func (c *Client) HasCapability(capability string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.approved.Contains(capability)
}

// WaitReady blocks until the host sent its first capabilities notification.
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ widgettoolkit.Transport = (*Client)(nil)
