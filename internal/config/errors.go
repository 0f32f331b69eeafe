package config

import "errors"

var (
	// ErrInvalidConfig marks a configuration that loaded but failed validation.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig marks a file or environment source that could not be read.
	ErrLoadConfig = errors.New("load config failed")
	// ErrMissingCredential marks an unset Discord identifier; it always
	// travels together with ErrInvalidConfig.
	ErrMissingCredential = errors.New("missing discord credential")
)
