package discord

import "errors"

// ErrRemoteCall wraps every failed Discord REST call.
var ErrRemoteCall = errors.New("discord call failed")

