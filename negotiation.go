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
	"sync"
)

// NegotiationPhase is the state of capability negotiation of a session.
type NegotiationPhase int

const (
	// NegotiationIdle means no capability request is outstanding.
	NegotiationIdle NegotiationPhase = iota
	// Negotiating means a request is waiting for the host's answer.
	Negotiating
)

func (p NegotiationPhase) String() string {
	if p == Negotiating {
		return "negotiating"
	}
	return "idle"
}

// negotiation is one outstanding capability request. done is closed when it
// finished, successfully or not.
type negotiation struct {
	done chan struct{}
	err  error
}

// negotiationState serialises capability requests: at most one negotiation
// is outstanding at any time. It is either Idle (current == nil) or
// Negotiating(current).
type negotiationState struct {
	mu      sync.Mutex
	current *negotiation
}

func (s *negotiationState) phase() NegotiationPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return NegotiationIdle
	}
	return Negotiating
}

// begin tries the transition Idle -> Negotiating. When a negotiation is
// already outstanding it is returned instead and the caller has to wait for
// it before trying again.
func (s *negotiationState) begin() (started, outstanding *negotiation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return nil, s.current
	}
	s.current = &negotiation{done: make(chan struct{})}
	return s.current, nil
}

// finish performs Negotiating(n) -> Idle and wakes up everyone waiting on n.
func (s *negotiationState) finish(n *negotiation, err error) {
	s.mu.Lock()
	if s.current == n {
		s.current = nil
	}
	s.mu.Unlock()
	n.err = err
	close(n.done)
}

// acquire waits until no other negotiation is outstanding and starts a new
// one. The outcome of negotiations started by other callers is ignored.
func (s *negotiationState) acquire(ctx context.Context) (*negotiation, error) {
	for {
		started, outstanding := s.begin()
		if started != nil {
			return started, nil
		}
		select {
		case <-outstanding.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
