package spec

import "fmt"

// WidgetError is the error envelope the host client puts into a response when a
// request could not be served: {"error": {"message": "..."}}.
type WidgetError struct {
	Message string `json:"message"`
	// MatrixAPIError is set by clients that forward homeserver failures.
	MatrixAPIError *MatrixAPIError `json:"matrix_api_error,omitempty"`
}

// MatrixAPIError is a homeserver error forwarded to the widget.
type MatrixAPIError struct {
	HTTPStatus int    `json:"http_status"`
	ErrCode    string `json:"errcode,omitempty"`
	Err        string `json:"error,omitempty"`
}

func (e WidgetError) Error() string {
	if e.MatrixAPIError != nil && e.MatrixAPIError.ErrCode != "" {
		return fmt.Sprintf("%s (%s: %s)", e.Message, e.MatrixAPIError.ErrCode, e.MatrixAPIError.Err)
	}
	return e.Message
}

// ErrorResponse is the response payload wrapping a WidgetError.
type ErrorResponse struct {
	Error WidgetError `json:"error"`
}

// NewErrorResponse builds the response a widget sends back for an inbound
// request it refuses.
func NewErrorResponse(format string, args ...interface{}) ErrorResponse {
	return ErrorResponse{Error: WidgetError{Message: fmt.Sprintf(format, args...)}}
}
