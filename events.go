package widgettoolkit

import (
	"github.com/nordeck/matrix-widget-toolkit-sub000/spec"
)

// RoomEvent is an event as the host client hands it to widgets. State events
// carry a StateKey, which may be the empty string; room events have none.
type RoomEvent struct {
	Type           string       `json:"type"`
	Sender         string       `json:"sender"`
	EventID        string       `json:"event_id"`
	RoomID         string       `json:"room_id"`
	OriginServerTS int64        `json:"origin_server_ts"`
	Content        spec.RawJSON `json:"content"`
	StateKey       *string      `json:"state_key,omitempty"`
	Unsigned       spec.RawJSON `json:"unsigned,omitempty"`
}

// IsState reports whether the event is a state event.
func (e RoomEvent) IsState() bool {
	return e.StateKey != nil
}

// DecodeContent unmarshals the event content into v.
func (e RoomEvent) DecodeContent(v interface{}) error {
	return e.Content.Decode(v)
}

// ToDeviceMessage is a to-device event delivered to this device.
type ToDeviceMessage struct {
	Type      string       `json:"type"`
	Sender    string       `json:"sender"`
	Encrypted bool         `json:"encrypted"`
	Content   spec.RawJSON `json:"content"`
}

// RelationsResult is one page of events related to a parent event.
type RelationsResult struct {
	Chunk []RoomEvent
	// NextToken continues pagination in the requested direction. It is empty
	// on the last page.
	NextToken string
}

// UserDirectoryResult is a page of the user directory search.
type UserDirectoryResult struct {
	Limited bool                 `json:"limited"`
	Results []UserDirectoryEntry `json:"results"`
}

// UserDirectoryEntry is a user returned by the user directory search.
type UserDirectoryEntry struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// MediaConfig is the homeserver's media repository configuration.
type MediaConfig struct {
	// UploadSize is the maximum upload size in bytes, if the server announces one.
	UploadSize *int64 `json:"m.upload.size,omitempty"`
}

// ModalButtonKind styles a modal button.
type ModalButtonKind string

const (
	ModalButtonPrimary   ModalButtonKind = "m.primary"
	ModalButtonSecondary ModalButtonKind = "m.secondary"
	ModalButtonWarning   ModalButtonKind = "m.warning"
	ModalButtonDanger    ModalButtonKind = "m.danger"
	ModalButtonLink      ModalButtonKind = "m.link"
)

// ModalButton is a button the host renders below a modal widget.
type ModalButton struct {
	ID       string          `json:"id"`
	Label    string          `json:"label"`
	Kind     ModalButtonKind `json:"kind"`
	Disabled bool            `json:"disabled,omitempty"`
}

// WidgetConfig is the configuration a modal widget receives from its host:
// the modal's own definition plus whatever data the opener attached.
type WidgetConfig struct {
	Type    string        `json:"type"`
	URL     string        `json:"url"`
	Name    string        `json:"name"`
	Buttons []ModalButton `json:"buttons,omitempty"`
	Data    spec.RawJSON  `json:"data,omitempty"`
}
