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

	"github.com/nordeck/matrix-widget-toolkit-sub000/spec"
)

// Request is an inbound toWidget request delivered by a Transport. Every
// request a handler takes responsibility for must be answered with
// Transport.Reply before the handler returns.
type Request struct {
	RequestID string
	Action    string
	Data      spec.RawJSON
}

// Transport is the message channel between the widget and its host client.
// Implementations deliver handlers on their own goroutine and must not hold
// locks while doing so, since handlers may subscribe or unsubscribe.
type Transport interface {
	// Start begins delivering inbound requests.
	Start(ctx context.Context) error
	// SendRequest sends a fromWidget request and returns the host's response
	// payload. Error responses from the host are returned as spec.WidgetError.
	SendRequest(ctx context.Context, action string, data interface{}) (spec.RawJSON, error)
	// Subscribe registers a handler for inbound requests with the given
	// action. The returned function removes it again.
	Subscribe(action string, handler func(*Request)) (unsubscribe func())
	// Reply answers an inbound request.
	Reply(req *Request, response interface{}) error
	// RequestCapabilities adds capabilities to the set requested from the host.
	RequestCapabilities(capabilities []string)
	// UpdateRequestedCapabilities asks the host to evaluate capabilities that
	// were requested but not yet approved.
	UpdateRequestedCapabilities(ctx context.Context) error
	// HasCapability reports whether the host approved a raw capability.
	HasCapability(capability string) bool
	// WaitReady blocks until the host finished the initial capability exchange.
	WaitReady(ctx context.Context) error
}
