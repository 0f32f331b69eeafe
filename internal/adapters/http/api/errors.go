package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrNotReady         = errors.New("service not ready")
	ErrGatewayClosed    = errors.New("chat gateway not connected")
	ErrMethodNotAllowed = errors.New("method not allowed")
)
