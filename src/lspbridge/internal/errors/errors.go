package errors

import stderr "errors"

// New returns an error that formats as the given text.
// Each call to New returns a distinct error value even if the text is identical.
func New(msg string) error {
	return stderr.New(msg)
}

var (
	// ErrChannelClosed reports that the RPC channel to an analysis server is no longer usable.
	// Pending and future calls on a closed channel resolve with this error.
	ErrChannelClosed = New("rpc channel closed")
	// ErrSessionClosing reports that a session no longer accepts work.
	ErrSessionClosing = New("session is closing")
)

// IsChannelClosed reports whether the error chain contains ErrChannelClosed.
func IsChannelClosed(e error) bool {
	return stderr.Is(e, ErrChannelClosed)
}
