package services

import "errors"

var (
	// ErrDuplicateUser is returned when registering a username that is already taken.
	ErrDuplicateUser = errors.New("user already exists")
	// ErrInvalidCredentials covers both unknown usernames and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrValidation wraps input that fails a field rule; the wrapped message names the field.
	ErrValidation = errors.New("validation failed")
	// ErrExportsDisabled is returned by export operations when no object store is configured.
	ErrExportsDisabled = errors.New("task exports are disabled")
)
