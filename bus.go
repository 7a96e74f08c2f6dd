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
	"sync"

	"github.com/sirupsen/logrus"
)

// A listener takes part in dispatching broadcasts of one action. Dispatch is
// two phased: match is asked first, then every listener that matched is
// delivered the broadcast together with the outcome of the single reply the
// bus sent for it.
type listener interface {
	match(b Broadcast) bool
	deliver(b Broadcast, replyErr error)
}

type busEntry struct {
	id       uint64
	listener listener
}

// broadcastBus fans inbound broadcasts out to listeners keyed by action. It
// holds one transport subscription per action that has listeners, and drops
// it when the last listener of that action leaves.
type broadcastBus struct {
	transport Transport
	logger    *logrus.Entry

	mu          sync.Mutex
	nextID      uint64
	listeners   map[string][]busEntry
	unsubscribe map[string]func()
}

func newBroadcastBus(transport Transport, logger *logrus.Entry) *broadcastBus {
	return &broadcastBus{
		transport:   transport,
		logger:      logger,
		listeners:   make(map[string][]busEntry),
		unsubscribe: make(map[string]func()),
	}
}

// subscribe adds a listener for an action. The returned function is
// idempotent.
func (b *broadcastBus) subscribe(action string, l listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.listeners[action] = append(b.listeners[action], busEntry{id: id, listener: l})
	if _, ok := b.unsubscribe[action]; !ok {
		b.unsubscribe[action] = b.transport.Subscribe(action, b.dispatch)
	}

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(action, id) })
	}
}

func (b *broadcastBus) remove(action string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.listeners[action]
	for i, e := range entries {
		if e.id == id {
			entries = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) > 0 {
		b.listeners[action] = entries
		return
	}
	delete(b.listeners, action)
	if unsubscribe, ok := b.unsubscribe[action]; ok {
		delete(b.unsubscribe, action)
		unsubscribe()
	}
}

// listenerCount is the number of listeners registered for an action.
func (b *broadcastBus) listenerCount(action string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[action])
}

// dispatch handles one inbound request. The request is replied to exactly
// once when at least one listener matches it, and left alone otherwise so
// that the transport can treat it as unhandled.
func (b *broadcastBus) dispatch(req *Request) {
	broadcast, err := decodeBroadcast(req)
	if err != nil {
		b.logger.WithError(err).WithField("action", req.Action).Warn("Dropping undecodable broadcast")
		return
	}

	b.mu.Lock()
	entries := append([]busEntry(nil), b.listeners[req.Action]...)
	b.mu.Unlock()

	var matched []listener
	for _, e := range entries {
		if e.listener.match(broadcast) {
			matched = append(matched, e.listener)
		}
	}
	if len(matched) == 0 {
		b.logger.WithField("action", req.Action).Debug("Broadcast matched no listener")
		return
	}

	replyErr := b.transport.Reply(req, struct{}{})
	if replyErr != nil {
		b.logger.WithError(replyErr).WithField("action", req.Action).Warn("Failed to acknowledge broadcast")
	}
	for _, l := range matched {
		l.deliver(broadcast, replyErr)
	}
}
