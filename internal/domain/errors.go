package domain

import (
	"errors"
	"fmt"
)

// ErrUnsupportedVersion marks a campaign or policy with a version outside the supported set.
var ErrUnsupportedVersion = errors.New("unsupported version")

// LoadError is returned when an input file cannot be turned into a typed spec.
type LoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	msg := e.Reason
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Err }
