package domain

import "errors"

var (
	ErrInvalidID       = errors.New("invalid id")
	ErrInvalidName     = errors.New("invalid name")
	ErrTitleRequired   = errors.New("title is required")
	ErrInvalidPosition = errors.New("invalid position")
	ErrInvalidColumnID = errors.New("invalid column id")
	ErrInvalidCardKey  = errors.New("invalid card key")
	ErrInvalidPoints   = errors.New("invalid points")
	ErrInvalidModule   = errors.New("invalid module")
	ErrInvalidDigest   = errors.New("invalid notification digest")
	ErrInvalidEmail    = errors.New("invalid email")
)
