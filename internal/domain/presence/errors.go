package presence

import "errors"

// ErrRemoteCall wraps chat platform failures during a transition.
var ErrRemoteCall = errors.New("remote call failed")
