package service

import "errors"

var (
	// ErrInvalidURL is returned when a posted url is not absolute http(s).
	ErrInvalidURL = errors.New("invalid url, expected an absolute http or https url")
	// ErrEmptyDescription is returned when a link is posted without a description.
	ErrEmptyDescription = errors.New("description must not be empty")
	// ErrMissingCredentials is returned when login or signup lacks email or password.
	ErrMissingCredentials = errors.New("email and password are required")
	// ErrUnexpectedResult is returned when the server's result misses the selected fields.
	ErrUnexpectedResult = errors.New("unexpected result shape")
)
