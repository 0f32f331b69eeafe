package run

import "errors"

// ErrMalformedPayload marks payloads that are not valid run telemetry.
var ErrMalformedPayload = errors.New("malformed run payload")
