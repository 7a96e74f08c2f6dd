package capabilities

import (
	"fmt"
	"strings"
)

// Direction is whether an event capability allows sending or receiving.
type Direction string

const (
	Send    Direction = "send"
	Receive Direction = "receive"
)

// Kind distinguishes the event families an event capability can cover.
type Kind string

const (
	KindRoomEvent  Kind = "room"
	KindStateEvent Kind = "state"
	KindToDevice   Kind = "to_device"
)

const (
	eventPrefix    = "org.matrix.msc2762."
	toDevicePrefix = "org.matrix.msc3819."
	roomMessage    = "m.room.message"
)

// EventCapability grants sending or receiving one event type, optionally
// narrowed to a state key (state events) or a msgtype (m.room.message).
type EventCapability struct {
	Direction Direction
	Kind      Kind
	EventType string
	// Key is the state key for state events and the msgtype for room
	// messages. Nil means any.
	Key *string
}

// ForStateEvent builds "org.matrix.msc2762.<dir>.state_event:<type>[#<stateKey>]".
func ForStateEvent(direction Direction, eventType string, stateKey *string) EventCapability {
	return EventCapability{Direction: direction, Kind: KindStateEvent, EventType: eventType, Key: stateKey}
}

// ForRoomEvent builds "org.matrix.msc2762.<dir>.event:<type>".
func ForRoomEvent(direction Direction, eventType string) EventCapability {
	return EventCapability{Direction: direction, Kind: KindRoomEvent, EventType: eventType}
}

// ForRoomMessageEvent builds "org.matrix.msc2762.<dir>.event:m.room.message[#<msgtype>]".
func ForRoomMessageEvent(direction Direction, msgType *string) EventCapability {
	return EventCapability{Direction: direction, Kind: KindRoomEvent, EventType: roomMessage, Key: msgType}
}

// ForToDeviceEvent builds "org.matrix.msc3819.<dir>.to_device:<type>".
func ForToDeviceEvent(direction Direction, eventType string) EventCapability {
	return EventCapability{Direction: direction, Kind: KindToDevice, EventType: eventType}
}

// Raw renders the capability identifier.
func (c EventCapability) Raw() string {
	var b strings.Builder
	switch c.Kind {
	case KindToDevice:
		fmt.Fprintf(&b, "%s%s.to_device:%s", toDevicePrefix, c.Direction, c.EventType)
		return b.String()
	case KindStateEvent:
		fmt.Fprintf(&b, "%s%s.state_event:%s", eventPrefix, c.Direction, c.EventType)
	default:
		fmt.Fprintf(&b, "%s%s.event:%s", eventPrefix, c.Direction, c.EventType)
	}
	if c.Key != nil && (c.Kind == KindStateEvent || c.EventType == roomMessage) {
		b.WriteByte('#')
		b.WriteString(*c.Key)
	}
	return b.String()
}

func (c EventCapability) String() string { return c.Raw() }

// ParseEventCapability is the inverse of EventCapability.Raw. It returns false
// for identifiers that are not event capabilities.
func ParseEventCapability(raw string) (EventCapability, bool) {
	var c EventCapability
	var rest string
	switch {
	case strings.HasPrefix(raw, toDevicePrefix):
		rest = strings.TrimPrefix(raw, toDevicePrefix)
	case strings.HasPrefix(raw, eventPrefix):
		rest = strings.TrimPrefix(raw, eventPrefix)
	default:
		return c, false
	}
	head, target, found := strings.Cut(rest, ":")
	if !found || target == "" {
		return c, false
	}
	dir, kind, found := strings.Cut(head, ".")
	if !found {
		return c, false
	}
	c.Direction = Direction(dir)
	if c.Direction != Send && c.Direction != Receive {
		return c, false
	}
	switch {
	case kind == "to_device" && strings.HasPrefix(raw, toDevicePrefix):
		c.Kind = KindToDevice
		c.EventType = target
		return c, true
	case kind == "state_event" && strings.HasPrefix(raw, eventPrefix):
		c.Kind = KindStateEvent
	case kind == "event" && strings.HasPrefix(raw, eventPrefix):
		c.Kind = KindRoomEvent
	default:
		return c, false
	}
	eventType, key, hasKey := strings.Cut(target, "#")
	c.EventType = eventType
	if hasKey && (c.Kind == KindStateEvent || eventType == roomMessage) {
		c.Key = &key
	} else if hasKey {
		c.EventType = target
	}
	return c, true
}

// FindEventCapabilities returns the event capabilities among raw identifiers.
func FindEventCapabilities(raws []string) []EventCapability {
	var found []EventCapability
	for _, raw := range raws {
		if c, ok := ParseEventCapability(raw); ok {
			found = append(found, c)
		}
	}
	return found
}
