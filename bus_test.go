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

package widgettoolkit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nordeck/matrix-widget-toolkit-sub000/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	accept    bool
	delivered []Broadcast
	errs      []error
}

func (r *recordingListener) match(Broadcast) bool { return r.accept }

func (r *recordingListener) deliver(b Broadcast, err error) {
	r.delivered = append(r.delivered, b)
	r.errs = append(r.errs, err)
}

func TestBusRepliesOnceForSeveralMatches(t *testing.T) {
	ft := newFakeTransport()
	bus := newBroadcastBus(ft, testLogger())
	a, b, c := &recordingListener{accept: true}, &recordingListener{accept: true}, &recordingListener{}
	bus.subscribe(spec.ActionSendEventBroadcast, a)
	bus.subscribe(spec.ActionSendEventBroadcast, b)
	bus.subscribe(spec.ActionSendEventBroadcast, c)
	assert.Equal(t, 1, ft.subscriptions(spec.ActionSendEventBroadcast))

	ft.emit(spec.ActionSendEventBroadcast, roomEventJSON("m.room.message", "!r:b", "$1"))

	assert.Equal(t, 1, ft.replyCount())
	assert.Len(t, a.delivered, 1)
	assert.Len(t, b.delivered, 1)
	assert.Empty(t, c.delivered)
	assert.Equal(t, "$1", a.delivered[0].(SendEventBroadcast).Event.EventID)
}

func TestBusLeavesUnmatchedBroadcastsAlone(t *testing.T) {
	ft := newFakeTransport()
	bus := newBroadcastBus(ft, testLogger())
	bus.subscribe(spec.ActionSendEventBroadcast, &recordingListener{})

	ft.emit(spec.ActionSendEventBroadcast, roomEventJSON("m.room.message", "!r:b", "$1"))
	ft.emit(spec.ActionSendEventBroadcast, `not json`)

	assert.Equal(t, 0, ft.replyCount())
}

func TestBusPassesReplyErrorToListeners(t *testing.T) {
	ft := newFakeTransport()
	ft.replyErr = errors.New("reply failed")
	bus := newBroadcastBus(ft, testLogger())
	l := &recordingListener{accept: true}
	bus.subscribe(spec.ActionButtonClicked, l)

	ft.emit(spec.ActionButtonClicked, `{"id":"ok"}`)

	require.Len(t, l.errs, 1)
	assert.EqualError(t, l.errs[0], "reply failed")
}

func TestBusReleasesTransportSubscription(t *testing.T) {
	ft := newFakeTransport()
	bus := newBroadcastBus(ft, testLogger())
	first := bus.subscribe(spec.ActionButtonClicked, &recordingListener{})
	second := bus.subscribe(spec.ActionButtonClicked, &recordingListener{})

	first()
	first()
	assert.Equal(t, 1, bus.listenerCount(spec.ActionButtonClicked))
	assert.Equal(t, 1, ft.subscriptions(spec.ActionButtonClicked))

	second()
	assert.Equal(t, 0, bus.listenerCount(spec.ActionButtonClicked))
	assert.Equal(t, 0, ft.subscriptions(spec.ActionButtonClicked))
}

func isButton(id string) func(Broadcast) bool {
	return func(b Broadcast) bool {
		c, ok := b.(ButtonClickedBroadcast)
		return ok && c.ButtonID == id
	}
}

func TestCorrelateFirstMatchWins(t *testing.T) {
	ft := newFakeTransport()
	bus := newBroadcastBus(ft, testLogger())
	ctx := context.Background()

	got, err := correlate(ctx, bus, spec.ActionButtonClicked, isButton("ok"), func(context.Context) error {
		ft.emit(spec.ActionButtonClicked, `{"id":"cancel"}`)
		ft.emit(spec.ActionButtonClicked, `{"id":"ok"}`)
		ft.emit(spec.ActionButtonClicked, `{"id":"ok"}`)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, ButtonClickedBroadcast{ButtonID: "ok"}, got)
	assert.Equal(t, 1, ft.replyCount())
	assert.Equal(t, 0, bus.listenerCount(spec.ActionButtonClicked))
}

func TestCorrelateSendErrorReleasesSubscription(t *testing.T) {
	ft := newFakeTransport()
	bus := newBroadcastBus(ft, testLogger())
	boom := errors.New("boom")

	_, err := correlate(context.Background(), bus, spec.ActionButtonClicked, isButton("ok"), func(context.Context) error {
		return boom
	})
	assert.Equal(t, boom, err)
	assert.Equal(t, 0, ft.subscriptions(spec.ActionButtonClicked))
}

func TestCorrelateRejectsOnReplyError(t *testing.T) {
	ft := newFakeTransport()
	ft.replyErr = errors.New("reply failed")
	bus := newBroadcastBus(ft, testLogger())

	_, err := correlate(context.Background(), bus, spec.ActionButtonClicked, isButton("ok"), func(context.Context) error {
		ft.emit(spec.ActionButtonClicked, `{"id":"ok"}`)
		return nil
	})
	assert.EqualError(t, err, "reply failed")
}

func TestCorrelateHonoursContext(t *testing.T) {
	ft := newFakeTransport()
	bus := newBroadcastBus(ft, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := correlate(ctx, bus, spec.ActionButtonClicked, isButton("ok"), nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, ft.subscriptions(spec.ActionButtonClicked))
}

func TestExchangeMatchesOnce(t *testing.T) {
	ex := newExchange(func(Broadcast) bool { return true })
	require.True(t, ex.match(ButtonClickedBroadcast{ButtonID: "a"}))
	ex.deliver(ButtonClickedBroadcast{ButtonID: "a"}, nil)
	assert.False(t, ex.match(ButtonClickedBroadcast{ButtonID: "b"}))

	got, err := ex.wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ButtonClickedBroadcast{ButtonID: "a"}, got)
}
