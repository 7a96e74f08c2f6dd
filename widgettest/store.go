package widgettest

import (
	"fmt"
	"sync"
	"time"

	"github.com/matrix-org/util"
	widgettoolkit "github.com/nordeck/matrix-widget-toolkit-sub000"
	"github.com/nordeck/matrix-widget-toolkit-sub000/spec"
	"github.com/tidwall/gjson"
)

// eventStore holds the room timeline and the current room state the mock
// host serves to read requests.
type eventStore struct {
	mu       sync.Mutex
	timeline []widgettoolkit.RoomEvent
	state    []widgettoolkit.RoomEvent
}

// put stores an event. A state event replaces the previous state event with
// the same room, type and state key.
func (s *eventStore) put(event widgettoolkit.RoomEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.StateKey == nil {
		s.timeline = append(s.timeline, event)
		return
	}
	for i, existing := range s.state {
		if existing.RoomID == event.RoomID && existing.Type == event.Type && *existing.StateKey == *event.StateKey {
			s.state[i] = event
			return
		}
	}
	s.state = append(s.state, event)
}

// read answers an org.matrix.msc2876.read_events request.
func (s *eventStore) read(request spec.RawJSON, currentRoom string) []widgettoolkit.RoomEvent {
	eventType := gjson.GetBytes(request, "type").String()
	stateKey := gjson.GetBytes(request, "state_key")
	msgtype := gjson.GetBytes(request, "msgtype").String()
	limit := gjson.GetBytes(request, "limit").Int()

	inRoom := roomFilter(gjson.GetBytes(request, "room_ids"), currentRoom)

	s.mu.Lock()
	defer s.mu.Unlock()
	source := s.timeline
	if stateKey.Exists() {
		source = s.state
	}
	events := []widgettoolkit.RoomEvent{}
	for _, e := range source {
		if e.Type != eventType || !inRoom(e.RoomID) {
			continue
		}
		if stateKey.Type == gjson.String && *e.StateKey != stateKey.String() {
			continue
		}
		if msgtype != "" && gjson.GetBytes(e.Content, "msgtype").String() != msgtype {
			continue
		}
		events = append(events, e)
	}
	if limit > 0 && int64(len(events)) > limit {
		events = events[int64(len(events))-limit:]
	}
	return events
}

// relations answers an org.matrix.msc3869.read_relations request. Results
// come in a single page.
func (s *eventStore) relations(request spec.RawJSON, currentRoom string) []widgettoolkit.RoomEvent {
	eventID := gjson.GetBytes(request, "event_id").String()
	relType := gjson.GetBytes(request, "rel_type").String()
	eventType := gjson.GetBytes(request, "event_type").String()
	roomID := gjson.GetBytes(request, "room_id").String()
	if roomID == "" {
		roomID = currentRoom
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	chunk := []widgettoolkit.RoomEvent{}
	for _, e := range append(append([]widgettoolkit.RoomEvent(nil), s.timeline...), s.state...) {
		relation := gjson.GetBytes(e.Content, `m\.relates_to`)
		if e.RoomID != roomID || relation.Get("event_id").String() != eventID {
			continue
		}
		if relType != "" && relation.Get("rel_type").String() != relType {
			continue
		}
		if eventType != "" && e.Type != eventType {
			continue
		}
		chunk = append(chunk, e)
	}
	return chunk
}

func roomFilter(roomIDs gjson.Result, currentRoom string) func(string) bool {
	switch {
	case !roomIDs.Exists():
		return func(roomID string) bool { return roomID == currentRoom }
	case roomIDs.Type == gjson.String && roomIDs.String() == spec.AnyRoom:
		return func(string) bool { return true }
	}
	allowed := map[string]bool{}
	roomIDs.ForEach(func(_, value gjson.Result) bool {
		allowed[value.String()] = true
		return true
	})
	return func(roomID string) bool { return allowed[roomID] }
}

// NewEventID returns a fresh event id on the given server.
func NewEventID(serverName string) string {
	return fmt.Sprintf("$%s:%s", util.RandomString(16), serverName)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
