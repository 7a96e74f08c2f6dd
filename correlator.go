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
	"sync/atomic"
)

// exchangeResult is the single outcome of an exchange.
type exchangeResult struct {
	broadcast Broadcast
	err       error
}

// An exchange waits for the first broadcast accepted by its predicate. Once a
// broadcast matched, every later one is refused, so at most one broadcast is
// ever acknowledged on its behalf.
type exchange struct {
	predicate func(Broadcast) bool
	claimed   atomic.Bool
	result    chan exchangeResult
}

func newExchange(predicate func(Broadcast) bool) *exchange {
	return &exchange{
		predicate: predicate,
		result:    make(chan exchangeResult, 1),
	}
}

func (e *exchange) match(b Broadcast) bool {
	if e.claimed.Load() || !e.predicate(b) {
		return false
	}
	return e.claimed.CompareAndSwap(false, true)
}

func (e *exchange) deliver(b Broadcast, replyErr error) {
	if replyErr != nil {
		e.result <- exchangeResult{err: replyErr}
		return
	}
	e.result <- exchangeResult{broadcast: b}
}

// wait blocks until the exchange resolves. There is no timeout: a host that
// never sends the expected broadcast leaves the caller waiting until ctx is
// done.
func (e *exchange) wait(ctx context.Context) (Broadcast, error) {
	select {
	case r := <-e.result:
		return r.broadcast, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// correlate registers predicate for broadcasts of action, then runs send, and
// returns the first matching broadcast. Subscribing before sending means a
// broadcast caused by send can never be missed. If send fails the
// subscription is dropped and its error returned as is.
func correlate(
	ctx context.Context, bus *broadcastBus, action string,
	predicate func(Broadcast) bool, send func(context.Context) error,
) (Broadcast, error) {
	ex := newExchange(predicate)
	unsubscribe := bus.subscribe(action, ex)
	defer unsubscribe()

	if send != nil {
		if err := send(ctx); err != nil {
			return nil, err
		}
	}
	return ex.wait(ctx)
}
