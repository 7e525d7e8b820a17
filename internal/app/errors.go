package app

import "errors"

var (
	ErrNotAuthenticated = errors.New("not signed in")
	ErrNoBoard          = errors.New("no board loaded")
	ErrPasswordMismatch = errors.New("new passwords do not match")
	ErrPasswordTooShort = errors.New("new password is too short")
	ErrPasswordRequired = errors.New("current password is required")
)
