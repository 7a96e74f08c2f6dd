package widgettoolkit

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/nordeck/matrix-widget-toolkit-sub000/spec"
)

// ModalWidgetIDPrefix is the prefix of the widget id hosts assign to widgets
// they open as a modal dialog.
const ModalWidgetIDPrefix = "modal-"

// WidgetParameters describe the embedding context of the widget. They are
// fixed for the lifetime of a WidgetAPI.
type WidgetParameters struct {
	WidgetID       string
	UserID         string
	DisplayName    string
	AvatarURL      string
	RoomID         string
	Theme          string
	ClientID       string
	ClientLanguage string
	// BaseURL is the homeserver base URL the client shares with the widget.
	BaseURL string
	// WidgetURL is the URL the widget was loaded from, without parameters.
	WidgetURL string
	// IsOpenedByClient is false when the page was opened directly in a
	// browser instead of being embedded by a client.
	IsOpenedByClient bool
}

// IsModal reports whether the widget was opened as a modal by another widget.
func (p WidgetParameters) IsModal() bool {
	return strings.HasPrefix(p.WidgetID, ModalWidgetIDPrefix)
}

// Parameter names used in widget URLs. Clients fill in the $-placeholders of
// the registration URL, see WidgetRegistrationURL.
var parameterTemplate = []struct{ name, placeholder string }{
	{"theme", "$org.matrix.msc2873.client_theme"},
	{"matrix_user_id", "$matrix_user_id"},
	{"matrix_display_name", "$matrix_display_name"},
	{"matrix_avatar_url", "$matrix_avatar_url"},
	{"matrix_room_id", "$matrix_room_id"},
	{"matrix_client_id", "$org.matrix.msc2873.client_id"},
	{"matrix_client_language", "$org.matrix.msc2873.client_language"},
	{"matrix_base_url", "$org.matrix.msc4039.matrix_base_url"},
}

// ParseWidgetParameters extracts the parameters from the widget's URL. The
// widget id travels in the query (set by the client), the user parameters in
// the query or in a "#/?..." fragment.
func ParseWidgetParameters(rawURL string) (WidgetParameters, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return WidgetParameters{}, fmt.Errorf("widgettoolkit: unparsable widget url: %w", err)
	}
	values := u.Query()
	if frag := u.EscapedFragment(); frag != "" {
		if _, query, found := strings.Cut(frag, "?"); found {
			fragValues, err := url.ParseQuery(query)
			if err != nil {
				return WidgetParameters{}, fmt.Errorf("widgettoolkit: unparsable widget url fragment: %w", err)
			}
			for k, v := range fragValues {
				if _, ok := values[k]; !ok {
					values[k] = v
				}
			}
		}
	}

	p := WidgetParameters{
		WidgetID:       values.Get("widgetId"),
		UserID:         values.Get("matrix_user_id"),
		DisplayName:    values.Get("matrix_display_name"),
		AvatarURL:      values.Get("matrix_avatar_url"),
		RoomID:         values.Get("matrix_room_id"),
		Theme:          values.Get("theme"),
		ClientID:       values.Get("matrix_client_id"),
		ClientLanguage: values.Get("matrix_client_language"),
		BaseURL:        values.Get("matrix_base_url"),
	}
	if p.UserID != "" {
		if _, err := spec.NewUserID(p.UserID); err != nil {
			return WidgetParameters{}, fmt.Errorf("widgettoolkit: %w", err)
		}
	}
	if p.RoomID != "" {
		if _, err := spec.NewRoomID(p.RoomID); err != nil {
			return WidgetParameters{}, fmt.Errorf("widgettoolkit: %w", err)
		}
	}
	p.IsOpenedByClient = p.WidgetID != "" && p.UserID != ""

	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""
	p.WidgetURL = u.String()
	return p, nil
}

// WidgetRegistrationURL returns the URL to register the widget with a client,
// with placeholders the client replaces with the parameters read by
// ParseWidgetParameters. pathName replaces the path of base.
func WidgetRegistrationURL(base, pathName string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("widgettoolkit: unparsable base url: %w", err)
	}
	if pathName != "" {
		u.Path = pathName
	}
	u.RawQuery = ""
	parts := make([]string, len(parameterTemplate))
	for i, p := range parameterTemplate {
		parts[i] = p.name + "=" + p.placeholder
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String() + "#/?" + strings.Join(parts, "&"), nil
}
