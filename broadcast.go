package widgettoolkit

import (
	"encoding/json"
	"fmt"

	"github.com/nordeck/matrix-widget-toolkit-sub000/spec"
	"github.com/tidwall/gjson"
)

// Broadcast is an inbound toWidget message, decoded into the payload type of
// its action.
type Broadcast interface {
	Action() string
}

// SendEventBroadcast carries a room or state event the host observed.
type SendEventBroadcast struct {
	Event RoomEvent
}

// ToDeviceBroadcast carries a to-device message for this device.
type ToDeviceBroadcast struct {
	Message ToDeviceMessage
}

// NotifyCapabilitiesBroadcast reports the result of a capability negotiation.
type NotifyCapabilitiesBroadcast struct {
	Requested []string `json:"requested"`
	Approved  []string `json:"approved"`
}

// WidgetConfigBroadcast delivers the configuration of a modal widget.
type WidgetConfigBroadcast struct {
	Config WidgetConfig
}

// CloseModalBroadcast tells the opener that its modal was closed.
type CloseModalBroadcast struct {
	Data spec.RawJSON
}

// ButtonClickedBroadcast reports a click on one of the modal's buttons.
type ButtonClickedBroadcast struct {
	ButtonID string `json:"id"`
}

// OpenIDCredentialsBroadcast answers an OpenID request that needed the user's
// confirmation.
type OpenIDCredentialsBroadcast struct {
	State             string `json:"state"`
	OriginalRequestID string `json:"original_request_id"`
	OpenIDToken
}

func (SendEventBroadcast) Action() string          { return spec.ActionSendEventBroadcast }
func (ToDeviceBroadcast) Action() string           { return spec.ActionSendToDeviceBroadcast }
func (NotifyCapabilitiesBroadcast) Action() string { return spec.ActionNotifyCapabilities }
func (WidgetConfigBroadcast) Action() string       { return spec.ActionWidgetConfig }
func (CloseModalBroadcast) Action() string         { return spec.ActionCloseModal }
func (ButtonClickedBroadcast) Action() string      { return spec.ActionButtonClicked }
func (OpenIDCredentialsBroadcast) Action() string  { return spec.ActionOpenIDCredentials }

// decodeBroadcast turns an inbound request into its typed broadcast.
func decodeBroadcast(req *Request) (Broadcast, error) {
	data := []byte(req.Data)
	if len(data) == 0 {
		data = []byte("{}")
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("widgettoolkit: %s broadcast is not valid JSON", req.Action)
	}
	switch req.Action {
	case spec.ActionSendEventBroadcast:
		var b SendEventBroadcast
		if err := json.Unmarshal(data, &b.Event); err != nil {
			return nil, fmt.Errorf("widgettoolkit: bad send_event broadcast: %w", err)
		}
		return b, nil
	case spec.ActionSendToDeviceBroadcast:
		var b ToDeviceBroadcast
		if err := json.Unmarshal(data, &b.Message); err != nil {
			return nil, fmt.Errorf("widgettoolkit: bad send_to_device broadcast: %w", err)
		}
		return b, nil
	case spec.ActionNotifyCapabilities:
		var b NotifyCapabilitiesBroadcast
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("widgettoolkit: bad notify_capabilities broadcast: %w", err)
		}
		return b, nil
	case spec.ActionWidgetConfig:
		var b WidgetConfigBroadcast
		if err := json.Unmarshal(data, &b.Config); err != nil {
			return nil, fmt.Errorf("widgettoolkit: bad widget_config broadcast: %w", err)
		}
		return b, nil
	case spec.ActionCloseModal:
		return CloseModalBroadcast{Data: spec.RawJSON(data)}, nil
	case spec.ActionButtonClicked:
		return ButtonClickedBroadcast{ButtonID: gjson.GetBytes(data, "id").String()}, nil
	case spec.ActionOpenIDCredentials:
		var b OpenIDCredentialsBroadcast
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("widgettoolkit: bad openid_credentials broadcast: %w", err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("widgettoolkit: no broadcast type for action %q", req.Action)
}
