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

package widgettoolkit

import (
	"context"
	"fmt"

	"github.com/nordeck/matrix-widget-toolkit-sub000/powerlevels"
	"github.com/nordeck/matrix-widget-toolkit-sub000/spec"
)

// ReceiveRoomPowerLevels reads the m.room.power_levels and m.room.create state
// of the current room and returns them as a power level view. Both events need
// receive capabilities; a missing power levels event yields the defaults.
func (w *WidgetAPI) ReceiveRoomPowerLevels(ctx context.Context) (*powerlevels.Room, error) {
	if w.params.RoomID == "" {
		return nil, MissingRoomContextError{Operation: "ReceiveRoomPowerLevels"}
	}
	create, err := w.ReceiveSingleStateEvent(ctx, spec.MRoomCreate, "")
	if err != nil {
		return nil, err
	}
	pl, err := w.ReceiveSingleStateEvent(ctx, spec.MRoomPowerLevels, "")
	if err != nil {
		return nil, err
	}
	var (
		plContent, createContent spec.RawJSON
		createSender             string
	)
	if pl != nil {
		plContent = pl.Content
	}
	if create != nil {
		createSender, createContent = create.Sender, create.Content
	}
	room, err := powerlevels.NewRoom(plContent, createSender, createContent)
	if err != nil {
		return nil, fmt.Errorf("widgettoolkit: room %s: %w", w.params.RoomID, err)
	}
	return room, nil
}
