package widgettoolkit

import (
	"context"
	"errors"
	"iter"

	"github.com/nordeck/matrix-widget-toolkit-sub000/spec"
	"github.com/tidwall/gjson"
)

// ModalOptions configure a modal opened with OpenModal.
type ModalOptions struct {
	Buttons []ModalButton
	// Data is handed to the modal as part of its WidgetConfig.
	Data interface{}
}

func (w *WidgetAPI) requireModal(operation string, modal bool) error {
	if w.IsModal() != modal {
		return ModalModeError{Operation: operation, RequireModal: modal}
	}
	return nil
}

// OpenModal opens pathName of this widget as a modal dialog titled name and
// waits until it is closed. It returns the data the modal was closed with, or
// nil when the user dismissed it. Modals cannot open further modals.
func (w *WidgetAPI) OpenModal(ctx context.Context, pathName, name string, opts ModalOptions) (spec.RawJSON, error) {
	if err := w.requireModal("OpenModal", false); err != nil {
		return nil, err
	}
	url, err := WidgetRegistrationURL(w.params.WidgetURL, pathName)
	if err != nil {
		return nil, err
	}
	data := opts.Data
	if data == nil {
		data = struct{}{}
	}
	buttons := opts.Buttons
	if buttons == nil {
		buttons = []ModalButton{}
	}
	request := struct {
		Type    string        `json:"type"`
		URL     string        `json:"url"`
		Name    string        `json:"name"`
		Buttons []ModalButton `json:"buttons"`
		Data    interface{}   `json:"data"`
	}{"m.custom", url, name, buttons, data}

	isClose := func(b Broadcast) bool {
		_, ok := b.(CloseModalBroadcast)
		return ok
	}
	b, err := correlate(ctx, w.bus, spec.ActionCloseModal, isClose, func(ctx context.Context) error {
		_, err := w.transport.SendRequest(ctx, spec.ActionOpenModalWidget, request)
		return err
	})
	if err != nil {
		return nil, err
	}
	closed := b.(CloseModalBroadcast).Data
	if gjson.GetBytes(closed, gjson.Escape(spec.ModalExited)).Bool() {
		return nil, nil
	}
	return closed, nil
}

// CloseModal closes the modal this widget runs in, handing data to the
// opener. Nil data closes it as dismissed.
func (w *WidgetAPI) CloseModal(ctx context.Context, data interface{}) error {
	if err := w.requireModal("CloseModal", true); err != nil {
		return err
	}
	if data == nil {
		data = map[string]bool{spec.ModalExited: true}
	}
	_, err := w.transport.SendRequest(ctx, spec.ActionCloseModalWidget, data)
	return err
}

// SetModalButtonEnabled enables or disables one of the modal's buttons.
func (w *WidgetAPI) SetModalButtonEnabled(ctx context.Context, buttonID string, enabled bool) error {
	if err := w.requireModal("SetModalButtonEnabled", true); err != nil {
		return err
	}
	if buttonID == spec.ModalExitButton {
		return errors.New("widgettoolkit: the close button cannot be disabled")
	}
	request := struct {
		Button  string `json:"button"`
		Enabled bool   `json:"enabled"`
	}{buttonID, enabled}
	_, err := w.transport.SendRequest(ctx, spec.ActionSetModalButtonEnabled, request)
	return err
}

// ObserveModalButtons yields the ids of the modal buttons the user clicks.
func (w *WidgetAPI) ObserveModalButtons(ctx context.Context) (iter.Seq2[string, error], error) {
	if err := w.requireModal("ObserveModalButtons", true); err != nil {
		return nil, err
	}
	convert := func(b Broadcast) (string, bool) {
		c, ok := b.(ButtonClickedBroadcast)
		return c.ButtonID, ok
	}
	return observe[string](ctx, w.bus, spec.ActionButtonClicked, nil, convert, nil), nil
}
