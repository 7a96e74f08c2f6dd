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

func messageEvents(b Broadcast) (RoomEvent, bool) {
	e, ok := b.(SendEventBroadcast)
	return e.Event, ok && e.Event.Type == spec.MRoomMessage
}

func TestObserveDeliversHistoryThenLiveWithoutDuplicates(t *testing.T) {
	ft := newFakeTransport()
	bus := newBroadcastBus(ft, testLogger())
	history := func(context.Context) ([]RoomEvent, error) {
		// Broadcasts racing the history read.
		ft.emit(spec.ActionSendEventBroadcast, roomEventJSON(spec.MRoomMessage, "!r:b", "$2"))
		ft.emit(spec.ActionSendEventBroadcast, roomEventJSON(spec.MRoomTopic, "!r:b", "$x"))
		ft.emit(spec.ActionSendEventBroadcast, roomEventJSON(spec.MRoomMessage, "!r:b", "$3"))
		return []RoomEvent{{EventID: "$1"}, {EventID: "$2"}}, nil
	}

	var ids []string
	for e, err := range observe(context.Background(), bus, spec.ActionSendEventBroadcast, history, messageEvents, eventID) {
		require.NoError(t, err)
		ids = append(ids, e.EventID)
		if len(ids) == 3 {
			break
		}
	}
	assert.Equal(t, []string{"$1", "$2", "$3"}, ids)
	assert.Equal(t, 2, ft.replyCount())
	assert.Equal(t, 0, ft.subscriptions(spec.ActionSendEventBroadcast))
}

func TestObserveKeepsArrivalOrder(t *testing.T) {
	ft := newFakeTransport()
	bus := newBroadcastBus(ft, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := observe[RoomEvent](ctx, bus, spec.ActionSendEventBroadcast, nil, messageEvents, eventID)

	got := make(chan string)
	go func() {
		for e, err := range stream {
			if err != nil {
				return
			}
			got <- e.EventID
		}
	}()
	require.Eventually(t, func() bool {
		return ft.subscriptions(spec.ActionSendEventBroadcast) == 1
	}, time.Second, time.Millisecond)

	for _, id := range []string{"$a", "$b", "$c", "$d"} {
		ft.emit(spec.ActionSendEventBroadcast, roomEventJSON(spec.MRoomMessage, "!r:b", id))
	}
	for _, id := range []string{"$a", "$b", "$c", "$d"} {
		assert.Equal(t, id, <-got)
	}
}

func TestObserveFailsWhenHistoryFails(t *testing.T) {
	ft := newFakeTransport()
	bus := newBroadcastBus(ft, testLogger())
	boom := errors.New("read failed")
	history := func(context.Context) ([]RoomEvent, error) { return nil, boom }

	var errs []error
	for _, err := range observe(context.Background(), bus, spec.ActionSendEventBroadcast, history, messageEvents, eventID) {
		errs = append(errs, err)
	}
	assert.Equal(t, []error{boom}, errs)
	assert.Equal(t, 0, ft.subscriptions(spec.ActionSendEventBroadcast))
}

func TestObserveEndsWithContextError(t *testing.T) {
	ft := newFakeTransport()
	bus := newBroadcastBus(ft, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	var last error
	for _, err := range observe[RoomEvent](ctx, bus, spec.ActionSendEventBroadcast, nil, messageEvents, nil) {
		last = err
	}
	assert.ErrorIs(t, last, context.DeadlineExceeded)
}

func TestObserveFailsOnReplyError(t *testing.T) {
	ft := newFakeTransport()
	ft.replyErr = errors.New("reply failed")
	bus := newBroadcastBus(ft, testLogger())
	history := func(context.Context) ([]RoomEvent, error) {
		ft.emit(spec.ActionSendEventBroadcast, roomEventJSON(spec.MRoomMessage, "!r:b", "$1"))
		return nil, nil
	}

	var errs []error
	for _, err := range observe(context.Background(), bus, spec.ActionSendEventBroadcast, history, messageEvents, eventID) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "reply failed")
}

func TestFailedStream(t *testing.T) {
	var errs []error
	for _, err := range failedStream[RoomEvent](MissingRoomContextError{Operation: "X"}) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorAs(t, errs[0], &MissingRoomContextError{})
}
