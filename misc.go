package widgettoolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/matrix-org/gomatrix"
	"github.com/nordeck/matrix-widget-toolkit-sub000/spec"
)

// matrixToPrefix is the only kind of link a host navigates to.
const matrixToPrefix = "https://matrix.to/#/"

// NavigateTo asks the host to open a matrix.to link, e.g. to switch rooms.
func (w *WidgetAPI) NavigateTo(ctx context.Context, uri string) error {
	if !strings.HasPrefix(uri, matrixToPrefix) {
		return InvalidNavigationURIError{URI: uri}
	}
	_, err := w.transport.SendRequest(ctx, spec.ActionNavigate, map[string]string{"uri": uri})
	return err
}

// SearchUserDirectory searches the homeserver's user directory. A limit of
// zero leaves the page size to the host.
func (w *WidgetAPI) SearchUserDirectory(ctx context.Context, searchTerm string, limit int) (*UserDirectoryResult, error) {
	request := struct {
		SearchTerm string `json:"search_term"`
		Limit      int    `json:"limit,omitempty"`
	}{searchTerm, limit}
	raw, err := w.transport.SendRequest(ctx, spec.ActionUserDirectorySearch, request)
	if err != nil {
		return nil, err
	}
	var res UserDirectoryResult
	if err = json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("widgettoolkit: bad user directory response: %w", err)
	}
	return &res, nil
}

// GetMediaConfig returns the media repository configuration of the homeserver.
func (w *WidgetAPI) GetMediaConfig(ctx context.Context) (*MediaConfig, error) {
	raw, err := w.transport.SendRequest(ctx, spec.ActionGetMediaConfig, struct{}{})
	if err != nil {
		return nil, err
	}
	var res MediaConfig
	if err = json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("widgettoolkit: bad media config response: %w", err)
	}
	return &res, nil
}

// UploadFile uploads file to the media repository and returns its mxc URI.
func (w *WidgetAPI) UploadFile(ctx context.Context, file []byte) (*gomatrix.RespMediaUpload, error) {
	raw, err := w.transport.SendRequest(ctx, spec.ActionUploadFile, struct {
		File []byte `json:"file"`
	}{file})
	if err != nil {
		return nil, err
	}
	var res gomatrix.RespMediaUpload
	if err = json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("widgettoolkit: bad upload response: %w", err)
	}
	return &res, nil
}
