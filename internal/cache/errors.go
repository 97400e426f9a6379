package cache

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCacheMiss matches any *MissingFieldError.
	ErrCacheMiss = errors.New("cache miss")
	// ErrUnknownFragment is returned when a spread names an undefined fragment.
	ErrUnknownFragment = errors.New("unknown fragment")
)

// MissingFieldError reports the first field a read could not satisfy.
type MissingFieldError struct {
	Path  []any
	Field string
}

func (e *MissingFieldError) Error() string {
	parts := make([]string, 0, len(e.Path)+1)
	for _, p := range e.Path {
		parts = append(parts, fmt.Sprint(p))
	}
	parts = append(parts, e.Field)
	return "cache: missing field " + strings.Join(parts, ".")
}

func (e *MissingFieldError) Is(target error) bool {
	return target == ErrCacheMiss
}
