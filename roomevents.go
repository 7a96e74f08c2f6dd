package widgettoolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/nordeck/matrix-widget-toolkit-sub000/spec"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// maxReadLimit asks the host for everything it has. It is the largest integer
// a JavaScript host can represent exactly.
const maxReadLimit = 1<<53 - 1

// SendOptions select the room an event is sent to. The current room is used
// when RoomID is empty.
type SendOptions struct {
	RoomID string
}

// StateOptions address a state event.
type StateOptions struct {
	RoomID   string
	StateKey string
}

// StateEventFilter narrows which state events are read or observed.
type StateEventFilter struct {
	// StateKey restricts results to one state key. Nil means any.
	StateKey *string
	// RoomIDs restricts results to these rooms. Nil means the current room,
	// []string{spec.AnyRoom} every room the user can see.
	RoomIDs []string
}

// RoomEventFilter narrows which room events are read or observed.
type RoomEventFilter struct {
	// MessageType restricts m.room.message events to one msgtype.
	MessageType string
	// RoomIDs works as in StateEventFilter.
	RoomIDs []string
}

// roomScope decides whether an event's room is covered by a room id filter.
type roomScope struct {
	any   bool
	rooms map[string]struct{}
}

func (w *WidgetAPI) roomScope(roomIDs []string) (roomScope, bool) {
	if roomIDs == nil {
		if w.params.RoomID == "" {
			return roomScope{}, false
		}
		return roomScope{rooms: map[string]struct{}{w.params.RoomID: {}}}, true
	}
	s := roomScope{rooms: make(map[string]struct{}, len(roomIDs))}
	for _, id := range roomIDs {
		if id == spec.AnyRoom {
			s.any = true
		}
		s.rooms[id] = struct{}{}
	}
	return s, true
}

func (s roomScope) contains(roomID string) bool {
	if s.any {
		return true
	}
	_, ok := s.rooms[roomID]
	return ok
}

// withRoomIDs adds the room_ids filter of a read request.
func withRoomIDs(payload []byte, roomIDs []string) ([]byte, error) {
	if roomIDs == nil {
		return payload, nil
	}
	for _, id := range roomIDs {
		if id == spec.AnyRoom {
			return sjson.SetBytes(payload, "room_ids", spec.AnyRoom)
		}
	}
	return sjson.SetBytes(payload, "room_ids", roomIDs)
}

func (w *WidgetAPI) sendEvent(ctx context.Context, data interface{}) error {
	_, err := w.transport.SendRequest(ctx, spec.ActionSendEvent, data)
	return err
}

// targetRoom resolves the room a send goes to. It fails when neither the
// options nor the widget parameters name one.
func (w *WidgetAPI) targetRoom(operation, roomID string) (string, error) {
	if roomID != "" {
		return roomID, nil
	}
	if w.params.RoomID == "" {
		return "", MissingRoomContextError{Operation: operation}
	}
	return w.params.RoomID, nil
}

// SendRoomEvent sends a room event and returns it as the host echoed it back.
//
// The echo is recognised by sender, type and room only. Two concurrent sends
// of the same type to the same room may therefore each return the other's
// event.
func (w *WidgetAPI) SendRoomEvent(ctx context.Context, eventType string, content interface{}, opts SendOptions) (*RoomEvent, error) {
	roomID, err := w.targetRoom("SendRoomEvent", opts.RoomID)
	if err != nil {
		return nil, err
	}
	isEcho := func(b Broadcast) bool {
		e, ok := b.(SendEventBroadcast)
		return ok && e.Event.Sender == w.params.UserID && e.Event.Type == eventType &&
			e.Event.RoomID == roomID && e.Event.StateKey == nil
	}
	request := struct {
		Type    string      `json:"type"`
		Content interface{} `json:"content"`
		RoomID  string      `json:"room_id,omitempty"`
	}{eventType, content, opts.RoomID}
	b, err := correlate(ctx, w.bus, spec.ActionSendEventBroadcast, isEcho, func(ctx context.Context) error {
		return w.sendEvent(ctx, request)
	})
	if err != nil {
		return nil, err
	}
	event := b.(SendEventBroadcast).Event
	return &event, nil
}

// SendStateEvent sends a state event and returns it as the host echoed it
// back. The same caveat as for SendRoomEvent applies.
func (w *WidgetAPI) SendStateEvent(ctx context.Context, eventType string, content interface{}, opts StateOptions) (*RoomEvent, error) {
	roomID, err := w.targetRoom("SendStateEvent", opts.RoomID)
	if err != nil {
		return nil, err
	}
	isEcho := func(b Broadcast) bool {
		e, ok := b.(SendEventBroadcast)
		return ok && e.Event.Sender == w.params.UserID && e.Event.Type == eventType &&
			e.Event.RoomID == roomID && e.Event.StateKey != nil && *e.Event.StateKey == opts.StateKey
	}
	request := struct {
		Type     string      `json:"type"`
		Content  interface{} `json:"content"`
		StateKey string      `json:"state_key"`
		RoomID   string      `json:"room_id,omitempty"`
	}{eventType, content, opts.StateKey, opts.RoomID}
	b, err := correlate(ctx, w.bus, spec.ActionSendEventBroadcast, isEcho, func(ctx context.Context) error {
		return w.sendEvent(ctx, request)
	})
	if err != nil {
		return nil, err
	}
	event := b.(SendEventBroadcast).Event
	return &event, nil
}

func (w *WidgetAPI) readEvents(ctx context.Context, payload []byte) ([]RoomEvent, error) {
	raw, err := w.transport.SendRequest(ctx, spec.ActionReadEvents, spec.RawJSON(payload))
	if err != nil {
		return nil, err
	}
	var res struct {
		Events []RoomEvent `json:"events"`
	}
	if err = json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("widgettoolkit: bad read_events response: %w", err)
	}
	return res.Events, nil
}

// ReceiveStateEvents reads the current state events of a type.
func (w *WidgetAPI) ReceiveStateEvents(ctx context.Context, eventType string, filter StateEventFilter) ([]RoomEvent, error) {
	payload, err := json.Marshal(struct {
		Type  string `json:"type"`
		Limit int64  `json:"limit"`
	}{eventType, maxReadLimit})
	if err != nil {
		return nil, err
	}
	// state_key true selects any state key.
	if filter.StateKey != nil {
		payload, err = sjson.SetBytes(payload, "state_key", *filter.StateKey)
	} else {
		payload, err = sjson.SetBytes(payload, "state_key", true)
	}
	if err != nil {
		return nil, err
	}
	if payload, err = withRoomIDs(payload, filter.RoomIDs); err != nil {
		return nil, err
	}
	return w.readEvents(ctx, payload)
}

// ReceiveSingleStateEvent reads one state event. A missing event is not an
// error: it returns nil.
func (w *WidgetAPI) ReceiveSingleStateEvent(ctx context.Context, eventType, stateKey string) (*RoomEvent, error) {
	events, err := w.ReceiveStateEvents(ctx, eventType, StateEventFilter{StateKey: &stateKey})
	if err != nil || len(events) == 0 {
		return nil, err
	}
	return &events[0], nil
}

// ReceiveRoomEvents reads the room events of a type the host knows about.
func (w *WidgetAPI) ReceiveRoomEvents(ctx context.Context, eventType string, filter RoomEventFilter) ([]RoomEvent, error) {
	payload, err := json.Marshal(struct {
		Type        string `json:"type"`
		Limit       int64  `json:"limit"`
		MessageType string `json:"msgtype,omitempty"`
	}{eventType, maxReadLimit, filter.MessageType})
	if err != nil {
		return nil, err
	}
	if payload, err = withRoomIDs(payload, filter.RoomIDs); err != nil {
		return nil, err
	}
	return w.readEvents(ctx, payload)
}

func eventID(e RoomEvent) string { return e.EventID }

// ObserveStateEvents yields the current state events of a type, then every
// matching state event the host broadcasts, until the loop is left or ctx is
// done. A failed history read ends the stream with its error.
func (w *WidgetAPI) ObserveStateEvents(ctx context.Context, eventType string, filter StateEventFilter) iter.Seq2[RoomEvent, error] {
	scope, ok := w.roomScope(filter.RoomIDs)
	if !ok {
		return failedStream[RoomEvent](MissingRoomContextError{Operation: "ObserveStateEvents"})
	}
	convert := func(b Broadcast) (RoomEvent, bool) {
		e, ok := b.(SendEventBroadcast)
		if !ok || e.Event.Type != eventType || e.Event.StateKey == nil || !scope.contains(e.Event.RoomID) {
			return RoomEvent{}, false
		}
		if filter.StateKey != nil && *e.Event.StateKey != *filter.StateKey {
			return RoomEvent{}, false
		}
		return e.Event, true
	}
	history := func(ctx context.Context) ([]RoomEvent, error) {
		return w.ReceiveStateEvents(ctx, eventType, filter)
	}
	return observe(ctx, w.bus, spec.ActionSendEventBroadcast, history, convert, eventID)
}

// ObserveRoomEvents yields the room events of a type the host knows about,
// then every matching room event it broadcasts, until the loop is left or ctx
// is done.
func (w *WidgetAPI) ObserveRoomEvents(ctx context.Context, eventType string, filter RoomEventFilter) iter.Seq2[RoomEvent, error] {
	scope, ok := w.roomScope(filter.RoomIDs)
	if !ok {
		return failedStream[RoomEvent](MissingRoomContextError{Operation: "ObserveRoomEvents"})
	}
	convert := func(b Broadcast) (RoomEvent, bool) {
		e, ok := b.(SendEventBroadcast)
		if !ok || e.Event.Type != eventType || e.Event.StateKey != nil || !scope.contains(e.Event.RoomID) {
			return RoomEvent{}, false
		}
		if filter.MessageType != "" && gjson.GetBytes(e.Event.Content, "msgtype").String() != filter.MessageType {
			return RoomEvent{}, false
		}
		return e.Event, true
	}
	history := func(ctx context.Context) ([]RoomEvent, error) {
		return w.ReceiveRoomEvents(ctx, eventType, filter)
	}
	return observe(ctx, w.bus, spec.ActionSendEventBroadcast, history, convert, eventID)
}

// RelationDirection is the pagination direction of ReadEventRelations.
type RelationDirection string

const (
	Forwards  RelationDirection = "f"
	Backwards RelationDirection = "b"
)

// RelationsOptions narrow and paginate ReadEventRelations.
type RelationsOptions struct {
	RoomID       string
	From         string
	RelationType string
	EventType    string
	Limit        int
	Direction    RelationDirection
}

// ReadEventRelations reads one page of the events relating to eventID.
func (w *WidgetAPI) ReadEventRelations(ctx context.Context, eventID string, opts RelationsOptions) (*RelationsResult, error) {
	request := struct {
		EventID   string            `json:"event_id"`
		RoomID    string            `json:"room_id,omitempty"`
		RelType   string            `json:"rel_type,omitempty"`
		EventType string            `json:"event_type,omitempty"`
		Limit     int               `json:"limit,omitempty"`
		From      string            `json:"from,omitempty"`
		Direction RelationDirection `json:"direction,omitempty"`
	}{eventID, opts.RoomID, opts.RelationType, opts.EventType, opts.Limit, opts.From, opts.Direction}
	raw, err := w.transport.SendRequest(ctx, spec.ActionReadRelations, request)
	if err != nil {
		return nil, err
	}
	var res struct {
		Chunk     []RoomEvent `json:"chunk"`
		NextBatch string      `json:"next_batch"`
	}
	if err = json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("widgettoolkit: bad read_relations response: %w", err)
	}
	return &RelationsResult{Chunk: res.Chunk, NextToken: res.NextBatch}, nil
}

// SendToDeviceMessage sends to-device messages. content maps user ids to
// device ids (or "*") to message contents.
func (w *WidgetAPI) SendToDeviceMessage(
	ctx context.Context, eventType string, encrypted bool, content map[string]map[string]interface{},
) error {
	request := struct {
		Type      string                            `json:"type"`
		Encrypted bool                              `json:"encrypted"`
		Messages  map[string]map[string]interface{} `json:"messages"`
	}{eventType, encrypted, content}
	_, err := w.transport.SendRequest(ctx, spec.ActionSendToDevice, request)
	return err
}

// ObserveToDeviceMessages yields the to-device messages of a type received
// from now on. There is no history for to-device messages.
func (w *WidgetAPI) ObserveToDeviceMessages(ctx context.Context, eventType string) iter.Seq2[ToDeviceMessage, error] {
	convert := func(b Broadcast) (ToDeviceMessage, bool) {
		m, ok := b.(ToDeviceBroadcast)
		return m.Message, ok && m.Message.Type == eventType
	}
	return observe[ToDeviceMessage](ctx, w.bus, spec.ActionSendToDeviceBroadcast, nil, convert, nil)
}
