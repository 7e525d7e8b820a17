package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransport wraps failures before any HTTP response was received.
	ErrTransport = errors.New("api transport failure")
	// ErrUnauthorized matches any 401 StatusError.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMalformedResponse reports a body that does not match the endpoint's shape.
	ErrMalformedResponse = errors.New("malformed api response")
)

// StatusError is returned for every non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Code       string
	Message    string
}

// Error implements error.
func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, msg)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

func malformed(what string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(what, args...))
}
