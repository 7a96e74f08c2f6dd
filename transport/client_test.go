package transport

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	widgettoolkit "github.com/nordeck/matrix-widget-toolkit-sub000"
	"github.com/nordeck/matrix-widget-toolkit-sub000/spec"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const testWidgetID = "widget-1"

// host is the far end of a pipe, speaking raw envelopes.
type host struct {
	t    *testing.T
	port Port
}

func newTestClient(t *testing.T, options ...ClientOption) (*Client, *host) {
	t.Helper()
	widgetPort, hostPort := Pipe()
	c := NewClient(widgetPort, testWidgetID, options...)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c, &host{t: t, port: hostPort}
}

func (h *host) read() *Envelope {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	frame, err := h.port.Receive(ctx)
	require.NoError(h.t, err)
	env, err := ParseEnvelope(frame)
	require.NoError(h.t, err)
	return env
}

func (h *host) write(env Envelope) {
	h.t.Helper()
	frame, err := json.Marshal(env)
	require.NoError(h.t, err)
	require.NoError(h.t, h.port.Send(context.Background(), frame))
}

func (h *host) request(requestID, action string, data interface{}) {
	h.t.Helper()
	h.write(Envelope{
		API:       spec.ToWidget,
		WidgetID:  testWidgetID,
		RequestID: requestID,
		Action:    action,
		Data:      spec.MustMarshal(data),
	})
}

func (h *host) respond(req *Envelope, response interface{}) {
	h.t.Helper()
	out := *req
	out.Response = spec.MustMarshal(response)
	h.write(out)
}

type result struct {
	raw spec.RawJSON
	err error
}

func sendAsync(c *Client, action string, data interface{}) <-chan result {
	ch := make(chan result, 1)
	go func() {
		raw, err := c.SendRequest(context.Background(), action, data)
		ch <- result{raw, err}
	}()
	return ch
}

func await(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("request did not finish")
		return result{}
	}
}

func TestSendRequestRoundTrip(t *testing.T) {
	registry := prometheus.NewRegistry()
	c, h := newTestClient(t, WithMetrics(registry))

	done := sendAsync(c, spec.ActionGetMediaConfig, map[string]int{"a": 1})
	req := h.read()
	assert.Equal(t, spec.FromWidget, req.API)
	assert.Equal(t, testWidgetID, req.WidgetID)
	assert.Equal(t, spec.ActionGetMediaConfig, req.Action)
	assert.NotEmpty(t, req.RequestID)
	assert.JSONEq(t, `{"a":1}`, string(req.Data))

	h.respond(req, map[string]int{"m.upload.size": 1000})
	r := await(t, done)
	require.NoError(t, r.err)
	assert.JSONEq(t, `{"m.upload.size":1000}`, string(r.raw))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.requests.WithLabelValues(spec.ActionGetMediaConfig, outcomeOK)))
}

func TestSendRequestErrorResponse(t *testing.T) {
	c, h := newTestClient(t)

	done := sendAsync(c, spec.ActionSendEvent, map[string]string{"type": "m.room.message"})
	h.respond(h.read(), spec.NewErrorResponse("Not allowed"))

	r := await(t, done)
	var widgetErr spec.WidgetError
	require.True(t, errors.As(r.err, &widgetErr))
	assert.Equal(t, "Not allowed", widgetErr.Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.requests.WithLabelValues(spec.ActionSendEvent, outcomeError)))
}

func TestSendRequestTimeout(t *testing.T) {
	c, h := newTestClient(t, WithTimeout(20*time.Millisecond))

	done := sendAsync(c, spec.ActionGetOpenID, struct{}{})
	h.read()

	r := await(t, done)
	assert.ErrorIs(t, r.err, context.DeadlineExceeded)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.requests.WithLabelValues(spec.ActionGetOpenID, outcomeTimeout)))
}

func TestCloseFailsPendingRequests(t *testing.T) {
	c, h := newTestClient(t)

	done := sendAsync(c, spec.ActionGetOpenID, struct{}{})
	h.read()
	require.NoError(t, c.Close())

	r := await(t, done)
	assert.ErrorIs(t, r.err, ErrClosed)
	assert.ErrorIs(t, c.Err(), ErrClosed)
	assert.ErrorIs(t, c.Start(context.Background()), ErrClosed)
}

func TestCapabilitiesAnsweredWithRequestedList(t *testing.T) {
	c, h := newTestClient(t)
	c.RequestCapabilities([]string{"a", "b", "a"})
	c.RequestCapabilities([]string{"c"})

	h.request("cap-1", spec.ActionCapabilities, struct{}{})
	res := h.read()
	assert.Equal(t, "cap-1", res.RequestID)
	assert.Equal(t, spec.ToWidget, res.API)
	assert.JSONEq(t, `{"capabilities":["a","b","c"]}`, string(res.Response))
}

func TestNotifyCapabilitiesMakesReady(t *testing.T) {
	c, h := newTestClient(t)
	c.RequestCapabilities([]string{"a", "b"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, c.WaitReady(ctx), context.DeadlineExceeded)
	cancel()

	h.request("n-1", spec.ActionNotifyCapabilities, map[string][]string{
		"requested": {"a", "b"},
		"approved":  {"a"},
	})
	res := h.read()
	assert.JSONEq(t, `{}`, string(res.Response))

	require.NoError(t, c.WaitReady(context.Background()))
	assert.True(t, c.HasCapability("a"))
	assert.False(t, c.HasCapability("b"))

	done := make(chan error, 1)
	go func() { done <- c.UpdateRequestedCapabilities(context.Background()) }()
	update := h.read()
	assert.Equal(t, spec.ActionRequestCapabilities, update.Action)
	assert.JSONEq(t, `{"capabilities":["b"]}`, string(update.Data))
	h.respond(update, struct{}{})
	require.NoError(t, <-done)
}

func TestReplyIsGuarded(t *testing.T) {
	c, h := newTestClient(t)

	type replies struct{ first, second error }
	got := make(chan replies, 1)
	var kept *widgettoolkit.Request
	c.Subscribe(spec.ActionSendEventBroadcast, func(req *widgettoolkit.Request) {
		kept = req
		first := c.Reply(req, map[string]bool{"ok": true})
		second := c.Reply(req, struct{}{})
		got <- replies{first, second}
	})

	h.request("ev-1", spec.ActionSendEventBroadcast, map[string]string{"type": "m.room.message"})
	res := h.read()
	assert.JSONEq(t, `{"ok":true}`, string(res.Response))

	r := <-got
	assert.NoError(t, r.first)
	assert.ErrorIs(t, r.second, ErrAlreadyReplied)
	assert.ErrorIs(t, c.Reply(kept, struct{}{}), ErrNotDispatching)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.inbound.WithLabelValues(spec.ActionSendEventBroadcast, outcomeHandled)))
}

func TestUnhandledRequestGetsErrorResponse(t *testing.T) {
	c, h := newTestClient(t)

	unsubscribe := c.Subscribe(spec.ActionButtonClicked, func(*widgettoolkit.Request) {})
	unsubscribe()
	unsubscribe()

	h.request("b-1", spec.ActionButtonClicked, map[string]string{"id": "ok"})
	res := h.read()
	assert.Equal(t, "Unknown or unsupported action: "+spec.ActionButtonClicked,
		gjson.GetBytes(res.Response, "error.message").String())
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.inbound.WithLabelValues(spec.ActionButtonClicked, outcomeUnhandled)))
}

func TestFramesForOtherWidgetsAreIgnored(t *testing.T) {
	_, h := newTestClient(t)

	h.write(Envelope{API: spec.ToWidget, WidgetID: "other", RequestID: "x", Action: spec.ActionCapabilities})
	h.request("mine", spec.ActionCapabilities, struct{}{})
	assert.Equal(t, "mine", h.read().RequestID)
}

func TestPipeClose(t *testing.T) {
	a, b := Pipe()
	require.NoError(t, a.Send(context.Background(), []byte("x")))
	frame, err := b.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), frame)

	require.NoError(t, b.Close())
	assert.ErrorIs(t, a.Send(context.Background(), []byte("y")), ErrClosed)
	_, err = a.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
