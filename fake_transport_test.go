package widgettoolkit

import (
	"context"
	"fmt"
	"sync"

	"github.com/nordeck/matrix-widget-toolkit-sub000/spec"
	"github.com/sirupsen/logrus"
)

// fakeTransport records subscriptions and replies and lets tests emit
// broadcasts synchronously.
type fakeTransport struct {
	mu       sync.Mutex
	nextID   int
	handlers map[string]map[int]func(*Request)
	replies  []string
	replyErr error
	requests []string
	sendErr  error
	onSend   func(action string)
	approved map[string]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers: make(map[string]map[int]func(*Request)),
		approved: make(map[string]bool),
	}
}

func (f *fakeTransport) Start(context.Context) error { return nil }

func (f *fakeTransport) SendRequest(_ context.Context, action string, _ interface{}) (spec.RawJSON, error) {
	f.mu.Lock()
	f.requests = append(f.requests, action)
	err, onSend := f.sendErr, f.onSend
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if onSend != nil {
		onSend(action)
	}
	return spec.RawJSON(`{}`), nil
}

func (f *fakeTransport) Subscribe(action string, handler func(*Request)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	if f.handlers[action] == nil {
		f.handlers[action] = make(map[int]func(*Request))
	}
	f.handlers[action][id] = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers[action], id)
	}
}

func (f *fakeTransport) subscriptions(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers[action])
}

func (f *fakeTransport) Reply(req *Request, _ interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, req.RequestID)
	return f.replyErr
}

func (f *fakeTransport) replyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replies)
}

func (f *fakeTransport) RequestCapabilities([]string) {}

func (f *fakeTransport) UpdateRequestedCapabilities(context.Context) error { return nil }

func (f *fakeTransport) HasCapability(capability string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.approved[capability]
}

func (f *fakeTransport) WaitReady(context.Context) error { return nil }

// emit delivers a broadcast to every handler subscribed for action.
func (f *fakeTransport) emit(action, data string) {
	f.mu.Lock()
	f.nextID++
	req := &Request{RequestID: fmt.Sprintf("req-%d", f.nextID), Action: action, Data: spec.RawJSON(data)}
	var handlers []func(*Request)
	for _, h := range f.handlers[action] {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(req)
	}
}

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(logger)
}

func roomEventJSON(eventType, roomID, eventID string) string {
	return fmt.Sprintf(`{"type":%q,"room_id":%q,"event_id":%q,"sender":"@a:b","content":{}}`, eventType, roomID, eventID)
}
