package errors

import (
	stderr "errors"
	"fmt"
)

// ProvisionError indicates that a workspace could not be created from its template.
type ProvisionError struct {
	Template  string
	Workspace string
	Err       error
}

// Error is an implementation of the error interface.
func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provisioning workspace %q from template %q: %v", e.Workspace, e.Template, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ProvisionError) Unwrap() error { return e.Err }

// LaunchError indicates that the analysis server executable could not be started.
type LaunchError struct {
	Path string
	Err  error
}

// Error is an implementation of the error interface.
func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching analysis server %q: %v", e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *LaunchError) Unwrap() error { return e.Err }

// ProtocolError indicates that an analysis server returned an error or a reply that could not be decoded.
type ProtocolError struct {
	Method string
	Err    error
}

// Error is an implementation of the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error on %q: %v", e.Method, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ProtocolError) Unwrap() error { return e.Err }

// ClientMessageError indicates an inbound client message that could not be understood.
type ClientMessageError struct {
	Method string
	Reason string
}

// Error is an implementation of the error interface.
func (e *ClientMessageError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("invalid client message: %s", e.Reason)
	}
	return fmt.Sprintf("invalid client message %q: %s", e.Method, e.Reason)
}

// IsClientMessageError reports whether the error chain contains a ClientMessageError.
func IsClientMessageError(e error) bool {
	var cm *ClientMessageError
	return stderr.As(e, &cm)
}

// IsProvisionError reports whether the error chain contains a ProvisionError.
func IsProvisionError(e error) bool {
	var pe *ProvisionError
	return stderr.As(e, &pe)
}

// IsLaunchError reports whether the error chain contains a LaunchError.
func IsLaunchError(e error) bool {
	var le *LaunchError
	return stderr.As(e, &le)
}
