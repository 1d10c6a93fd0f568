package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRegistryLoad is wrapped by every registry fetch/parse failure.
	ErrRegistryLoad = errors.New("tracker registry load failed")
	// ErrMalformedEvent is wrapped by every per-event parse failure.
	ErrMalformedEvent = errors.New("malformed request event")
)

// RegistryLoadError describes a failed registry load. It unwraps to ErrRegistryLoad
// and to the underlying cause.
type RegistryLoadError struct {
	Source string
	Err    error
}

func (e *RegistryLoadError) Error() string {
	return fmt.Sprintf("%v from %s: %v", ErrRegistryLoad, e.Source, e.Err)
}

func (e *RegistryLoadError) Unwrap() []error { return []error{ErrRegistryLoad, e.Err} }

// MalformedEventError describes an event that could not be processed.
type MalformedEventError struct {
	URL string
	Err error
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("%v %q: %v", ErrMalformedEvent, e.URL, e.Err)
}

func (e *MalformedEventError) Unwrap() []error { return []error{ErrMalformedEvent, e.Err} }
