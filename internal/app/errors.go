package service

import "errors"

// Sentinel errors returned by the service lifecycle.
var (
	// ErrStartup wraps failures that must stop the process, such as a
	// failed reconciliation sweep.
	ErrStartup = errors.New("service startup failed")
	// ErrStopped is returned once Stop has run; a Service is not restartable.
	ErrStopped = errors.New("service stopped")
)
