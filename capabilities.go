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

	"github.com/hashicorp/go-set/v3"
	"github.com/nordeck/matrix-widget-toolkit-sub000/capabilities"
	"github.com/nordeck/matrix-widget-toolkit-sub000/spec"
	"github.com/sirupsen/logrus"
)

// uniqueCapabilities reduces identifiers to raw strings, dropping duplicates
// and keeping the order in which they were first seen.
func uniqueCapabilities(ids []capabilities.Identifier) []string {
	seen := set.New[string](len(ids))
	raws := make([]string, 0, len(ids))
	for _, id := range ids {
		if raw := id.Raw(); seen.Insert(raw) {
			raws = append(raws, raw)
		}
	}
	return raws
}

// initialCapabilityList is what a session requests during its handshake.
func initialCapabilityList(ids []capabilities.Identifier, supportStandalone bool) []string {
	if !supportStandalone {
		ids = append(append([]capabilities.Identifier(nil), ids...), capabilities.RequiresClient)
	}
	return uniqueCapabilities(ids)
}

// HasCapabilities reports whether every capability is approved by the host.
func (w *WidgetAPI) HasCapabilities(ids []capabilities.Identifier) bool {
	return w.hasRawCapabilities(capabilities.Raws(ids))
}

func (w *WidgetAPI) hasRawCapabilities(raws []string) bool {
	for _, raw := range raws {
		if !w.transport.HasCapability(raw) {
			return false
		}
	}
	return true
}

// RequestCapabilities asks the host for capabilities and returns once the
// host approved all of them. Capabilities that are already approved are not
// requested again. Concurrent calls are serialised so the host never sees
// overlapping requests; a CapabilitiesRejectedError names the capabilities
// the host did not approve.
func (w *WidgetAPI) RequestCapabilities(ctx context.Context, ids []capabilities.Identifier) error {
	raws := uniqueCapabilities(ids)
	if w.hasRawCapabilities(raws) {
		return nil
	}

	n, err := w.negotiations.acquire(ctx)
	if err != nil {
		return err
	}
	err = w.negotiate(ctx, raws)
	w.negotiations.finish(n, err)
	return err
}

// negotiate runs one capability round trip. It must only be called while
// holding a negotiation.
func (w *WidgetAPI) negotiate(ctx context.Context, raws []string) error {
	// Someone else's negotiation may have granted them meanwhile.
	if w.hasRawCapabilities(raws) {
		return nil
	}

	isNotify := func(b Broadcast) bool {
		_, ok := b.(NotifyCapabilitiesBroadcast)
		return ok
	}
	b, err := correlate(ctx, w.bus, spec.ActionNotifyCapabilities, isNotify, func(ctx context.Context) error {
		w.transport.RequestCapabilities(raws)
		return w.transport.UpdateRequestedCapabilities(ctx)
	})
	if err != nil {
		return err
	}

	notify := b.(NotifyCapabilitiesBroadcast)
	approved := set.From(notify.Approved)
	var missing []string
	for _, raw := range raws {
		if !approved.Contains(raw) {
			missing = append(missing, raw)
		}
	}
	if len(missing) > 0 {
		w.logger.WithFields(logrus.Fields{
			"requested": raws,
			"missing":   missing,
		}).Warn("Host rejected capabilities")
		return CapabilitiesRejectedError{Missing: missing}
	}
	w.logger.WithField("capabilities", raws).Debug("Host approved capabilities")
	return nil
}

// NegotiationPhase reports whether a capability request is outstanding.
func (w *WidgetAPI) NegotiationPhase() NegotiationPhase {
	return w.negotiations.phase()
}

// HasInitialCapabilities reports whether the capabilities requested during
// initialization are approved.
func (w *WidgetAPI) HasInitialCapabilities() bool {
	return w.hasRawCapabilities(w.initialCapabilities)
}

// RerequestInitialCapabilities requests the initial capabilities again, e.g.
// after the user denied them the first time.
func (w *WidgetAPI) RerequestInitialCapabilities(ctx context.Context) error {
	return w.RequestCapabilities(ctx, capabilities.FromStrings(w.initialCapabilities...))
}
