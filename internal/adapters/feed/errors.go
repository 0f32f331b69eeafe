package feed

import "errors"

// Sentinel kinds for feed errors.
var (
	// ErrTransport wraps dial and read failures on the feed connection.
	ErrTransport = errors.New("feed transport error")
	// ErrClosed is returned by Run once its context is cancelled.
	ErrClosed = errors.New("feed client closed")
)
