package transport

import (
	"encoding/json"

	"github.com/nordeck/matrix-widget-toolkit-sub000/spec"
	"github.com/tidwall/gjson"
)

// Envelope is one message of the widget API. Requests carry no Response; a
// response repeats the request with Response set.
type Envelope struct {
	API       spec.WidgetAPIVersion `json:"api"`
	WidgetID  string                `json:"widgetId"`
	RequestID string                `json:"requestId"`
	Action    string                `json:"action"`
	Data      spec.RawJSON          `json:"data"`
	Response  spec.RawJSON          `json:"response,omitempty"`
}

// IsResponse reports whether the envelope answers a request.
func (e *Envelope) IsResponse() bool {
	return len(e.Response) > 0
}

// ParseEnvelope decodes a frame.
func ParseEnvelope(frame []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(frame, &e); err != nil {
		return nil, err
	}
	if len(e.Data) == 0 || string(e.Data) == "null" {
		e.Data = spec.RawJSON("{}")
	}
	return &e, nil
}

// responseError returns the host's error if response is an error response.
func responseError(response spec.RawJSON) error {
	errObj := gjson.GetBytes(response, "error")
	if !errObj.IsObject() {
		return nil
	}
	var res spec.ErrorResponse
	if err := json.Unmarshal(response, &res); err != nil {
		return spec.WidgetError{Message: errObj.Get("message").String()}
	}
	return res.Error
}
