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
	"iter"
	"sync/atomic"

	"github.com/oleiade/lane/v2"
)

// liveFeed buffers the broadcasts accepted by convert until the consumer
// picks them up. The buffer is unbounded so the transport goroutine never
// blocks on a slow consumer.
type liveFeed[T any] struct {
	convert func(Broadcast) (T, bool)
	queue   *lane.Queue[T]
	signal  chan struct{}
	closed  atomic.Bool
	failed  atomic.Pointer[error]
	cancel  func()
}

func newLiveFeed[T any](bus *broadcastBus, action string, convert func(Broadcast) (T, bool)) *liveFeed[T] {
	f := &liveFeed[T]{
		convert: convert,
		queue:   lane.NewQueue[T](),
		signal:  make(chan struct{}, 1),
	}
	f.cancel = bus.subscribe(action, f)
	return f
}

func (f *liveFeed[T]) match(b Broadcast) bool {
	if f.closed.Load() {
		return false
	}
	_, ok := f.convert(b)
	return ok
}

func (f *liveFeed[T]) deliver(b Broadcast, replyErr error) {
	if replyErr != nil {
		f.failed.Store(&replyErr)
	} else if v, ok := f.convert(b); ok {
		f.queue.Enqueue(v)
	}
	select {
	case f.signal <- struct{}{}:
	default:
	}
}

// next returns the oldest buffered item, waiting for one if necessary.
func (f *liveFeed[T]) next(ctx context.Context) (T, error) {
	for {
		if v, ok := f.queue.Dequeue(); ok {
			return v, nil
		}
		if err := f.failed.Load(); err != nil {
			var zero T
			return zero, *err
		}
		select {
		case <-f.signal:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

func (f *liveFeed[T]) close() {
	f.closed.Store(true)
	f.cancel()
}

// observe builds a stream that first yields the items returned by history and
// then every item accepted by convert, in arrival order, until the consumer
// stops iterating or ctx is done. Each iteration is independent: it subscribes
// afresh and reads history again.
//
// The live subscription is opened before history is read so nothing broadcast
// in between is lost. Items identified by key that were already part of the
// history are not yielded a second time. history may be nil for streams
// without a snapshot.
func observe[T any](
	ctx context.Context,
	bus *broadcastBus,
	action string,
	history func(ctx context.Context) ([]T, error),
	convert func(Broadcast) (T, bool),
	key func(T) string,
) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		feed := newLiveFeed(bus, action, convert)
		defer feed.close()

		var zero T
		seen := map[string]struct{}{}
		if history != nil {
			items, err := history(ctx)
			if err != nil {
				yield(zero, err)
				return
			}
			for _, item := range items {
				if key != nil {
					if k := key(item); k != "" {
						seen[k] = struct{}{}
					}
				}
				if !yield(item, nil) {
					return
				}
			}
		}

		for {
			item, err := feed.next(ctx)
			if err != nil {
				yield(zero, err)
				return
			}
			if key != nil {
				if k := key(item); k != "" {
					if _, dup := seen[k]; dup {
						delete(seen, k)
						continue
					}
				}
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// failedStream yields err once and ends.
func failedStream[T any](err error) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		yield(zero, err)
	}
}
