package community

import "errors"

// ErrJanitorClosed is returned when a post arrives after Close.
var ErrJanitorClosed = errors.New("streams janitor closed")
