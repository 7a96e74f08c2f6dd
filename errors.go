package widgettoolkit

import (
	"errors"
	"fmt"
	"strings"
)

// CapabilitiesRejectedError is returned when the host did not approve every
// requested capability. The transport exchange itself succeeded.
type CapabilitiesRejectedError struct {
	// Missing lists the capabilities that were not approved, in request order.
	Missing []string
}

func (e CapabilitiesRejectedError) Error() string {
	return "Capabilities rejected: " + strings.Join(e.Missing, ", ")
}

// ModalModeError is returned by operations that are only valid inside a modal
// widget, or only valid outside of one.
type ModalModeError struct {
	Operation    string
	RequireModal bool
}

func (e ModalModeError) Error() string {
	if e.RequireModal {
		return fmt.Sprintf("widgettoolkit: %s can only be used in a modal widget", e.Operation)
	}
	return fmt.Sprintf("widgettoolkit: %s can't be used from within a modal widget", e.Operation)
}

// MissingRoomContextError is returned when an operation needs the current room
// but the widget was not given one.
type MissingRoomContextError struct {
	Operation string
}

func (e MissingRoomContextError) Error() string {
	return fmt.Sprintf("widgettoolkit: %s needs a room id but the widget has no room context", e.Operation)
}

// ErrInitializationFailed is matched by errors.Is for every error returned
// from Initialize once the widget failed to initialize.
var ErrInitializationFailed = errors.New("widgettoolkit: initialization failed")

// InitializationError records why and in which state initializing failed.
type InitializationError struct {
	State InitState
	Err   error
}

func (e InitializationError) Error() string {
	return fmt.Sprintf("widgettoolkit: initialization failed while %s: %s", e.State, e.Err)
}

func (e InitializationError) Unwrap() []error {
	return []error{ErrInitializationFailed, e.Err}
}

// InvalidNavigationURIError is returned by NavigateTo for URIs other than
// matrix.to links.
type InvalidNavigationURIError struct {
	URI string
}

func (e InvalidNavigationURIError) Error() string {
	return fmt.Sprintf("widgettoolkit: invalid matrix.to URI %q", e.URI)
}
