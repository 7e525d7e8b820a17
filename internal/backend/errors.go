package backend

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrConflict           = errors.New("conflict")
)
