// Package capabilities builds and parses the opaque capability identifiers a
// widget negotiates with its host client, e.g.
// "org.matrix.msc2762.receive.state_event:m.room.name".
package capabilities

import "strings"

// An Identifier is anything that can be reduced to a raw capability string.
type Identifier interface {
	Raw() string
}

// Capability is a raw capability identifier.
type Capability string

func (c Capability) Raw() string { return string(c) }

const (
	AlwaysOnScreen      Capability = "m.always_on_screen"
	Sticker             Capability = "m.sticker"
	Screenshot          Capability = "m.capability.screenshot"
	Navigate            Capability = "org.matrix.msc2931.navigate"
	ReadRelations       Capability = "org.matrix.msc3869.read_relations"
	UserDirectorySearch Capability = "org.matrix.msc3973.user_directory_search"
	UploadFile          Capability = "org.matrix.msc4039.upload_file"
	DownloadFile        Capability = "org.matrix.msc4039.download_file"
	// RequiresClient marks a widget that must not be run standalone.
	RequiresClient Capability = "io.element.requires_client"
)

const (
	timelinePrefix = "org.matrix.msc2762.timeline:"
	anyRoom        = "*"
)

// Timeline grants access to events of rooms other than the current one.
// Pass "*" for every room the user can see.
func Timeline(roomID string) Capability {
	return Capability(timelinePrefix + roomID)
}

// AnyRoomTimeline is Timeline("*").
var AnyRoomTimeline = Timeline(anyRoom)

// IsTimeline reports whether raw is a timeline capability and returns the room
// it applies to.
func IsTimeline(raw string) (roomID string, ok bool) {
	if !strings.HasPrefix(raw, timelinePrefix) {
		return "", false
	}
	return strings.TrimPrefix(raw, timelinePrefix), true
}

// FromStrings turns raw strings into identifiers.
func FromStrings(raw ...string) []Identifier {
	ids := make([]Identifier, len(raw))
	for i, r := range raw {
		ids[i] = Capability(r)
	}
	return ids
}

// Raws maps identifiers to their raw strings, keeping order and duplicates.
func Raws(ids []Identifier) []string {
	raws := make([]string, len(ids))
	for i, id := range ids {
		raws[i] = id.Raw()
	}
	return raws
}
