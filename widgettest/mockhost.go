// Copyright 2024 Nordeck IT + Consulting GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package widgettest provides a mock host client implementing
// widgettoolkit.Transport, for testing widgets without a client.
package widgettest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hashicorp/go-set/v3"
	"github.com/matrix-org/util"
	widgettoolkit "github.com/nordeck/matrix-widget-toolkit-sub000"
	"github.com/nordeck/matrix-widget-toolkit-sub000/spec"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Defaults of a MockHost.
const (
	UserID     = "@user-id:example.com"
	RoomID     = "!room-id:example.com"
	ServerName = "example.com"
)

// A Call is one request the widget sent to the host.
type Call struct {
	Action string
	Data   spec.RawJSON
}

// A Reply is the widget's answer to a broadcast.
type Reply struct {
	RequestID string
	Action    string
	Response  spec.RawJSON
}

// Handler serves a widget request instead of the mock's built-in behaviour.
type Handler func(data spec.RawJSON) (interface{}, error)

// ApprovalPolicy decides which of the requested capabilities the host approves.
type ApprovalPolicy func(requested []string) []string

// ApproveAll approves every capability.
func ApproveAll(requested []string) []string { return requested }

// Deny returns a policy approving everything except denied.
func Deny(denied ...string) ApprovalPolicy {
	d := set.From(denied)
	return func(requested []string) []string {
		var approved []string
		for _, c := range requested {
			if !d.Contains(c) {
				approved = append(approved, c)
			}
		}
		return approved
	}
}

// Option configures a MockHost.
type Option func(*MockHost)

// WithUser sets the user the widget acts as.
func WithUser(userID string) Option {
	return func(h *MockHost) { h.userID = userID }
}

// WithRoom sets the room the widget is embedded in.
func WithRoom(roomID string) Option {
	return func(h *MockHost) { h.roomID = roomID }
}

// WithApprovalPolicy replaces ApproveAll.
func WithApprovalPolicy(policy ApprovalPolicy) Option {
	return func(h *MockHost) { h.policy = policy }
}

// WithManualApproval holds capability updates until ApprovePending is called.
func WithManualApproval() Option {
	return func(h *MockHost) { h.manualApproval = true }
}

// WithManualReady keeps the host from becoming ready on Start, see SetReady
// and FailReady.
func WithManualReady() Option {
	return func(h *MockHost) { h.manualReady = true }
}

// WithWidgetConfig makes the host send config to a modal widget once it is
// ready.
func WithWidgetConfig(config widgettoolkit.WidgetConfig) Option {
	return func(h *MockHost) { h.widgetConfig = &config }
}

// WithoutEcho stops the host from broadcasting the events the widget sends.
func WithoutEcho() Option {
	return func(h *MockHost) { h.noEcho = true }
}

// MockHost is an in-memory host client. It stores the events the widget sends
// and echoes them back like a client does, serves reads from that store and
// approves capabilities according to its policy. Broadcasts are delivered
// synchronously on the goroutine emitting them.
type MockHost struct {
	userID         string
	roomID         string
	policy         ApprovalPolicy
	manualApproval bool
	manualReady    bool
	noEcho         bool
	widgetConfig   *widgettoolkit.WidgetConfig
	store          eventStore

	ready     chan struct{}
	readyOnce sync.Once
	readyErr  error

	mu            sync.Mutex
	started       bool
	nextID        uint64
	handlers      map[string][]handlerEntry
	custom        map[string]Handler
	replyErrors   map[string]error
	inflight      map[string]*inflightRequest
	calls         []Call
	replies       []Reply
	requested     []string
	requestedSet  *set.Set[string]
	approved      *set.Set[string]
	pending       [][]string
	updates       int
	openIDState   string
	openIDToken   widgettoolkit.OpenIDToken
	openIDRequest string
}

type handlerEntry struct {
	id      uint64
	handler func(*widgettoolkit.Request)
}

type inflightRequest struct {
	replied bool
}

// New makes a MockHost.
func New(options ...Option) *MockHost {
	h := &MockHost{
		userID:       UserID,
		roomID:       RoomID,
		policy:       ApproveAll,
		ready:        make(chan struct{}),
		handlers:     make(map[string][]handlerEntry),
		custom:       make(map[string]Handler),
		replyErrors:  make(map[string]error),
		inflight:     make(map[string]*inflightRequest),
		requestedSet: set.New[string](0),
		approved:     set.New[string](0),
		openIDState:  "allowed",
		openIDToken: widgettoolkit.OpenIDToken{
			AccessToken:      "access-token",
			ExpiresIn:        3600,
			MatrixServerName: ServerName,
			TokenType:        "Bearer",
		},
	}
	for _, option := range options {
		option(h)
	}
	return h
}

// Parameters returns widget parameters for a widget embedded by this host.
func (h *MockHost) Parameters(widgetID string) widgettoolkit.WidgetParameters {
	return widgettoolkit.WidgetParameters{
		WidgetID:         widgetID,
		UserID:           h.userID,
		RoomID:           h.roomID,
		WidgetURL:        "https://widget.example.com/",
		IsOpenedByClient: true,
	}
}

// Start approves the capabilities requested so far and becomes ready, unless
// WithManualReady was given.
func (h *MockHost) Start(ctx context.Context) error {
	h.mu.Lock()
	h.started = true
	h.mu.Unlock()
	if !h.manualReady {
		h.SetReady()
	}
	return nil
}

// SetReady runs the initial capability exchange and ends every WaitReady.
func (h *MockHost) SetReady() {
	h.readyOnce.Do(func() {
		h.mu.Lock()
		requested := append([]string(nil), h.requested...)
		h.mu.Unlock()
		h.approve(requested)
		close(h.ready)
		if h.widgetConfig != nil {
			h.Emit(spec.ActionWidgetConfig, h.widgetConfig)
		}
	})
}

// FailReady makes every WaitReady return err.
func (h *MockHost) FailReady(err error) {
	h.readyOnce.Do(func() {
		h.readyErr = err
		close(h.ready)
	})
}

// WaitReady implements widgettoolkit.Transport.
func (h *MockHost) WaitReady(ctx context.Context) error {
	select {
	case <-h.ready:
		return h.readyErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Started reports whether the widget called Start.
func (h *MockHost) Started() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

// Subscribe implements widgettoolkit.Transport.
func (h *MockHost) Subscribe(action string, handler func(*widgettoolkit.Request)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.handlers[action] = append(h.handlers[action], handlerEntry{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			entries := h.handlers[action]
			for i, e := range entries {
				if e.id == id {
					h.handlers[action] = append(entries[:i:i], entries[i+1:]...)
					break
				}
			}
		})
	}
}

// Subscribers returns the number of handlers subscribed for action.
func (h *MockHost) Subscribers(action string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handlers[action])
}

// Reply implements widgettoolkit.Transport. It fails for requests that are
// not being dispatched or were already answered, and with the error set by
// FailReplies.
func (h *MockHost) Reply(req *widgettoolkit.Request, response interface{}) error {
	raw, err := json.Marshal(response)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	in, ok := h.inflight[req.RequestID]
	if !ok {
		return fmt.Errorf("widgettest: reply to %s request %s outside of dispatch", req.Action, req.RequestID)
	}
	if in.replied {
		return fmt.Errorf("widgettest: %s request %s answered twice", req.Action, req.RequestID)
	}
	in.replied = true
	h.replies = append(h.replies, Reply{RequestID: req.RequestID, Action: req.Action, Response: raw})
	return h.replyErrors[req.Action]
}

// FailReplies makes replies to broadcasts of action fail with err.
func (h *MockHost) FailReplies(action string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.replyErrors[action] = err
}

// Replies returns the widget's answers to broadcasts of action.
func (h *MockHost) Replies(action string) []Reply {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Reply
	for _, r := range h.replies {
		if r.Action == action {
			out = append(out, r)
		}
	}
	return out
}

// Emit broadcasts action to the widget and reports whether the widget
// answered it.
func (h *MockHost) Emit(action string, data interface{}) bool {
	raw, err := json.Marshal(data)
	if err != nil {
		panic(fmt.Sprintf("widgettest: encoding %s broadcast: %s", action, err))
	}
	h.mu.Lock()
	h.nextID++
	req := &widgettoolkit.Request{
		RequestID: fmt.Sprintf("widgettest-%d", h.nextID),
		Action:    action,
		Data:      raw,
	}
	in := &inflightRequest{}
	h.inflight[req.RequestID] = in
	entries := append([]handlerEntry(nil), h.handlers[action]...)
	h.mu.Unlock()

	for _, e := range entries {
		e.handler(req)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.inflight, req.RequestID)
	return in.replied
}

// EmitEvent stores a room or state event and broadcasts it. Missing ids,
// sender and room are filled in.
func (h *MockHost) EmitEvent(event widgettoolkit.RoomEvent) widgettoolkit.RoomEvent {
	event = h.AddEvent(event)
	h.Emit(spec.ActionSendEventBroadcast, event)
	return event
}

// AddEvent stores an event without broadcasting it.
func (h *MockHost) AddEvent(event widgettoolkit.RoomEvent) widgettoolkit.RoomEvent {
	if event.EventID == "" {
		event.EventID = NewEventID(ServerName)
	}
	if event.Sender == "" {
		event.Sender = h.userID
	}
	if event.RoomID == "" {
		event.RoomID = h.roomID
	}
	if event.OriginServerTS == 0 {
		event.OriginServerTS = nowMillis()
	}
	if event.Content == nil {
		event.Content = spec.RawJSON("{}")
	}
	h.store.put(event)
	return event
}

// EmitToDevice broadcasts a to-device message.
func (h *MockHost) EmitToDevice(message widgettoolkit.ToDeviceMessage) bool {
	return h.Emit(spec.ActionSendToDeviceBroadcast, message)
}

// EmitButtonClicked tells a modal widget that one of its buttons was clicked.
func (h *MockHost) EmitButtonClicked(buttonID string) bool {
	return h.Emit(spec.ActionButtonClicked, map[string]string{"id": buttonID})
}

// EmitCloseModal tells the opener that its modal was closed with data.
func (h *MockHost) EmitCloseModal(data interface{}) bool {
	return h.Emit(spec.ActionCloseModal, data)
}

// EmitOpenIDCredentials delivers the token of an OpenID request the host
// answered with state "request".
func (h *MockHost) EmitOpenIDCredentials(state string) bool {
	h.mu.Lock()
	token := h.openIDToken
	originalRequestID := h.openIDRequest
	h.mu.Unlock()
	return h.Emit(spec.ActionOpenIDCredentials, widgettoolkit.OpenIDCredentialsBroadcast{
		State:             state,
		OriginalRequestID: originalRequestID,
		OpenIDToken:       token,
	})
}

// SetOpenID sets how get_openid is answered: "allowed" with token,
// "blocked", or "request" with the token to follow in EmitOpenIDCredentials.
func (h *MockHost) SetOpenID(state string, token widgettoolkit.OpenIDToken) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.openIDState = state
	h.openIDToken = token
}

// Handle serves action with handler from now on.
func (h *MockHost) Handle(action string, handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.custom[action] = handler
}

// FailAction makes requests of action fail with a host error.
func (h *MockHost) FailAction(action, message string) {
	h.Handle(action, func(spec.RawJSON) (interface{}, error) {
		return nil, spec.WidgetError{Message: message}
	})
}

// Calls returns the requests of action the widget sent, or all of them for
// an empty action.
func (h *MockHost) Calls(action string) []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Call
	for _, c := range h.calls {
		if action == "" || c.Action == action {
			out = append(out, c)
		}
	}
	return out
}

// SendRequest implements widgettoolkit.Transport.
func (h *MockHost) SendRequest(ctx context.Context, action string, data interface{}) (spec.RawJSON, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.calls = append(h.calls, Call{Action: action, Data: raw})
	handler := h.custom[action]
	h.mu.Unlock()

	if handler != nil {
		res, err := handler(raw)
		if err != nil {
			return nil, err
		}
		return json.Marshal(res)
	}
	return h.serve(action, raw)
}

func (h *MockHost) serve(action string, data spec.RawJSON) (spec.RawJSON, error) {
	switch action {
	case spec.ActionSendEvent:
		return h.sendEvent(data)
	case spec.ActionReadEvents:
		return json.Marshal(map[string]interface{}{"events": h.store.read(data, h.roomID)})
	case spec.ActionReadRelations:
		return json.Marshal(map[string]interface{}{"chunk": h.store.relations(data, h.roomID)})
	case spec.ActionGetOpenID:
		return h.getOpenID()
	case spec.ActionUserDirectorySearch:
		return spec.RawJSON(`{"limited":false,"results":[]}`), nil
	case spec.ActionGetMediaConfig:
		return spec.RawJSON(`{"m.upload.size":10485760}`), nil
	case spec.ActionUploadFile:
		return sjson.SetBytes([]byte(`{}`), "content_uri", "mxc://"+ServerName+"/"+util.RandomString(16))
	}
	return spec.RawJSON(`{}`), nil
}

func (h *MockHost) sendEvent(data spec.RawJSON) (spec.RawJSON, error) {
	event := widgettoolkit.RoomEvent{
		Type:    gjson.GetBytes(data, "type").String(),
		RoomID:  gjson.GetBytes(data, "room_id").String(),
		Content: spec.RawJSON(gjson.GetBytes(data, "content").Raw),
	}
	if stateKey := gjson.GetBytes(data, "state_key"); stateKey.Exists() {
		key := stateKey.String()
		event.StateKey = &key
	}
	if h.noEcho {
		event = h.AddEvent(event)
	} else {
		event = h.EmitEvent(event)
	}
	res, err := sjson.SetBytes([]byte(`{}`), "room_id", event.RoomID)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(res, "event_id", event.EventID)
}

func (h *MockHost) getOpenID() (spec.RawJSON, error) {
	h.mu.Lock()
	state, token := h.openIDState, h.openIDToken
	h.nextID++
	h.openIDRequest = fmt.Sprintf("openid-%d", h.nextID)
	requestID := h.openIDRequest
	h.mu.Unlock()

	res := widgettoolkit.OpenIDCredentialsBroadcast{State: state, OriginalRequestID: requestID}
	if state == "allowed" {
		res.OpenIDToken = token
	}
	return json.Marshal(res)
}

// RequestCapabilities implements widgettoolkit.Transport.
func (h *MockHost) RequestCapabilities(capabilities []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range capabilities {
		if h.requestedSet.Insert(c) {
			h.requested = append(h.requested, c)
		}
	}
}

// Requested returns the capabilities the widget requested, in order.
func (h *MockHost) Requested() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.requested...)
}

// UpdateRequestedCapabilities implements widgettoolkit.Transport. The host
// answers with a notify_capabilities broadcast, right away or, with
// WithManualApproval, on ApprovePending.
func (h *MockHost) UpdateRequestedCapabilities(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	h.updates++
	var unapproved []string
	for _, c := range h.requested {
		if !h.approved.Contains(c) {
			unapproved = append(unapproved, c)
		}
	}
	h.calls = append(h.calls, Call{
		Action: spec.ActionRequestCapabilities,
		Data:   spec.MustMarshal(map[string][]string{"capabilities": unapproved}),
	})
	handler := h.custom[spec.ActionRequestCapabilities]
	if h.manualApproval {
		h.pending = append(h.pending, unapproved)
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	if handler != nil {
		if _, err := handler(spec.MustMarshal(map[string][]string{"capabilities": unapproved})); err != nil {
			return err
		}
	}
	h.approve(unapproved)
	return nil
}

// Updates returns how often the widget called UpdateRequestedCapabilities.
func (h *MockHost) Updates() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.updates
}

// PendingApprovals returns the number of capability updates waiting for
// ApprovePending.
func (h *MockHost) PendingApprovals() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// ApprovePending answers the oldest held capability update. It reports
// whether there was one.
func (h *MockHost) ApprovePending() bool {
	h.mu.Lock()
	if len(h.pending) == 0 {
		h.mu.Unlock()
		return false
	}
	requested := h.pending[0]
	h.pending = h.pending[1:]
	h.mu.Unlock()
	h.approve(requested)
	return true
}

// approve applies the policy to requested and broadcasts the result.
func (h *MockHost) approve(requested []string) {
	granted := h.policy(requested)
	h.mu.Lock()
	for _, c := range granted {
		h.approved.Insert(c)
	}
	approved := h.approved.Slice()
	h.mu.Unlock()
	if requested == nil {
		requested = []string{}
	}
	h.Emit(spec.ActionNotifyCapabilities, widgettoolkit.NotifyCapabilitiesBroadcast{
		Requested: requested,
		Approved:  approved,
	})
}

// Grant approves capabilities without a negotiation.
func (h *MockHost) Grant(capabilities ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range capabilities {
		h.approved.Insert(c)
	}
}

// HasCapability implements widgettoolkit.Transport.
func (h *MockHost) HasCapability(capability string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.approved.Contains(capability)
}

var _ widgettoolkit.Transport = (*MockHost)(nil)
