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

package powerlevels

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/nordeck/matrix-widget-toolkit-sub000/spec"
)

// Level is a user's power level. In room version 12 and later the room
// creators outrank every numeric level; that is carried as a distinct value
// rather than a very large number, because only comparisons are meaningful.
type Level struct {
	creator bool
	value   int64
}

// Numeric returns a plain power level.
func Numeric(n int64) Level { return Level{value: n} }

// Creator is the level held by the creators of a room version 12+ room.
var Creator = Level{creator: true}

// IsCreator reports whether l is the creator sentinel.
func (l Level) IsCreator() bool { return l.creator }

// Value returns the numeric level. It is false for the creator sentinel.
func (l Level) Value() (int64, bool) {
	return l.value, !l.creator
}

// Compare returns -1, 0 or +1 when l is lower than, equal to or higher than o.
func (l Level) Compare(o Level) int {
	switch {
	case l.creator && o.creator:
		return 0
	case l.creator:
		return 1
	case o.creator:
		return -1
	case l.value < o.value:
		return -1
	case l.value > o.value:
		return 1
	}
	return 0
}

// AtLeast reports whether l satisfies a required numeric level.
func (l Level) AtLeast(required int64) bool {
	return l.Compare(Numeric(required)) >= 0
}

func (l Level) String() string {
	if l.creator {
		return "creator"
	}
	return strconv.FormatInt(l.value, 10)
}

// Room is the power related state of one room.
type Room struct {
	powerLevels *Content
	creators    map[string]struct{}
	// privilegedCreators is set for room versions where creators hold the
	// Creator level instead of a numeric one.
	privilegedCreators bool
}

type createContent struct {
	RoomVersion        string   `json:"room_version"`
	AdditionalCreators []string `json:"additional_creators"`
}

// NewRoom builds a Room from the m.room.power_levels content (nil when the
// room has none) and the m.room.create event's sender and content.
func NewRoom(powerLevels spec.RawJSON, createSender string, create spec.RawJSON) (*Room, error) {
	r := &Room{creators: map[string]struct{}{}}
	if len(powerLevels) > 0 {
		c, err := Parse(powerLevels)
		if err != nil {
			return nil, fmt.Errorf("powerlevels: unparsable power_levels content: %w", err)
		}
		r.powerLevels = c
	}
	if createSender != "" {
		r.creators[createSender] = struct{}{}
	}
	if len(create) > 0 {
		var cc createContent
		if err := json.Unmarshal(create, &cc); err != nil {
			return nil, fmt.Errorf("powerlevels: unparsable create content: %w", err)
		}
		r.privilegedCreators = creatorsPrivileged(cc.RoomVersion)
		if r.privilegedCreators {
			for _, c := range cc.AdditionalCreators {
				r.creators[c] = struct{}{}
			}
		}
	}
	return r, nil
}

// creatorsPrivileged reports whether the room version gives creators
// unlimited power: version 12 onwards, plus the hydra test version.
func creatorsPrivileged(roomVersion string) bool {
	if strings.HasPrefix(roomVersion, "org.matrix.hydra.") {
		return true
	}
	v, err := strconv.Atoi(roomVersion)
	return err == nil && v >= 12
}

// UserLevel returns the level of a user.
func (r *Room) UserLevel(userID string) Level {
	_, isCreator := r.creators[userID]
	if isCreator && r.privilegedCreators {
		return Creator
	}
	if r.powerLevels == nil {
		if isCreator {
			return Numeric(creatorLevel)
		}
		return Numeric(0)
	}
	return Numeric(r.powerLevels.userLevel(userID))
}

// HasActionPower reports whether the user may invite, kick, ban or redact.
func (r *Room) HasActionPower(userID string, action Action) bool {
	if r.powerLevels == nil {
		return true
	}
	return r.UserLevel(userID).AtLeast(r.powerLevels.ActionLevel(action))
}

// HasStateEventPower reports whether the user may send a state event.
func (r *Room) HasStateEventPower(userID, eventType string) bool {
	return r.hasEventPower(userID, eventType, true)
}

// HasRoomEventPower reports whether the user may send a room event.
func (r *Room) HasRoomEventPower(userID, eventType string) bool {
	return r.hasEventPower(userID, eventType, false)
}

func (r *Room) hasEventPower(userID, eventType string, isState bool) bool {
	if r.powerLevels == nil {
		return true
	}
	return r.UserLevel(userID).AtLeast(r.powerLevels.EventLevel(eventType, isState))
}

// Outranks reports whether user a has a strictly higher level than user b.
func (r *Room) Outranks(a, b string) bool {
	return r.UserLevel(a).Compare(r.UserLevel(b)) > 0
}
