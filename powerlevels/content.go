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

// Package powerlevels answers "may this user do that" questions over the
// m.room.power_levels and m.room.create state of a room.
package powerlevels

import (
	"encoding/json"
	"strconv"

	"github.com/nordeck/matrix-widget-toolkit-sub000/spec"
)

// Default levels from https://spec.matrix.org/v1.8/client-server-api/#mroompower_levels
const (
	defaultInviteLevel = 0
	defaultActionLevel = 50 // kick, ban and redact
	defaultEventLevel  = 0
	defaultStateLevel  = 50
	creatorLevel       = 100
)

// Action is a moderation action guarded by a dedicated power level.
type Action string

const (
	Invite Action = "invite"
	Kick   Action = "kick"
	Ban    Action = "ban"
	Redact Action = "redact"
)

// Content is the parsed content of a m.room.power_levels event.
type Content struct {
	inviteLevel       int64
	kickLevel         int64
	banLevel          int64
	redactLevel       int64
	userLevels        map[string]int64
	userDefaultLevel  int64
	eventLevels       map[string]int64
	eventDefaultLevel int64
	stateDefaultLevel int64
}

// Parse reads power level event content. Levels may be encoded as numbers or
// numeric strings, as older room versions allowed.
func Parse(content spec.RawJSON) (*Content, error) {
	c := &Content{}
	c.defaults()

	var raw struct {
		InviteLevel       levelJSONValue            `json:"invite"`
		KickLevel         levelJSONValue            `json:"kick"`
		BanLevel          levelJSONValue            `json:"ban"`
		RedactLevel       levelJSONValue            `json:"redact"`
		UserLevels        map[string]levelJSONValue `json:"users"`
		UsersDefaultLevel levelJSONValue            `json:"users_default"`
		EventLevels       map[string]levelJSONValue `json:"events"`
		StateDefaultLevel levelJSONValue            `json:"state_default"`
		EventDefaultLevel levelJSONValue            `json:"events_default"`
	}
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, err
	}
	raw.InviteLevel.assignIfExists(&c.inviteLevel)
	raw.KickLevel.assignIfExists(&c.kickLevel)
	raw.BanLevel.assignIfExists(&c.banLevel)
	raw.RedactLevel.assignIfExists(&c.redactLevel)
	raw.UsersDefaultLevel.assignIfExists(&c.userDefaultLevel)
	raw.StateDefaultLevel.assignIfExists(&c.stateDefaultLevel)
	raw.EventDefaultLevel.assignIfExists(&c.eventDefaultLevel)
	if len(raw.UserLevels) > 0 {
		c.userLevels = make(map[string]int64, len(raw.UserLevels))
		for k, v := range raw.UserLevels {
			c.userLevels[k] = v.value
		}
	}
	if len(raw.EventLevels) > 0 {
		c.eventLevels = make(map[string]int64, len(raw.EventLevels))
		for k, v := range raw.EventLevels {
			c.eventLevels[k] = v.value
		}
	}
	return c, nil
}

func (c *Content) defaults() {
	c.inviteLevel = defaultInviteLevel
	c.kickLevel = defaultActionLevel
	c.banLevel = defaultActionLevel
	c.redactLevel = defaultActionLevel
	c.eventDefaultLevel = defaultEventLevel
	c.stateDefaultLevel = defaultStateLevel
}

// userLevel is the numeric level of a user, ignoring creator privileges.
func (c *Content) userLevel(userID string) int64 {
	if level, ok := c.userLevels[userID]; ok {
		return level
	}
	return c.userDefaultLevel
}

// EventLevel returns the level needed to send an event. State events fall
// back to state_default, room events to events_default.
func (c *Content) EventLevel(eventType string, isState bool) int64 {
	if level, ok := c.eventLevels[eventType]; ok {
		return level
	}
	if isState {
		return c.stateDefaultLevel
	}
	return c.eventDefaultLevel
}

// ActionLevel returns the level needed to perform a moderation action.
func (c *Content) ActionLevel(action Action) int64 {
	switch action {
	case Invite:
		return c.inviteLevel
	case Kick:
		return c.kickLevel
	case Ban:
		return c.banLevel
	default:
		return c.redactLevel
	}
}

// A levelJSONValue is used for unmarshalling power levels from JSON that may
// hold numbers, numeric strings or floats.
type levelJSONValue struct {
	exists bool
	value  int64
}

func (v *levelJSONValue) UnmarshalJSON(data []byte) error {
	var intValue int64
	if err := json.Unmarshal(data, &intValue); err != nil {
		var stringValue string
		if err = json.Unmarshal(data, &stringValue); err == nil {
			if intValue, err = strconv.ParseInt(stringValue, 10, 64); err != nil {
				return err
			}
		} else {
			var floatValue float64
			if err = json.Unmarshal(data, &floatValue); err != nil {
				return err
			}
			intValue = int64(floatValue)
		}
	}
	v.exists = true
	v.value = intValue
	return nil
}

func (v *levelJSONValue) assignIfExists(to *int64) {
	if v.exists {
		*to = v.value
	}
}
