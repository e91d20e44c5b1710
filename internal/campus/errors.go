package campus

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCoordinate matches every *CoordinateError.
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	// ErrNetwork marks a failed document-store or routing call.
	ErrNetwork = errors.New("network error")
	// ErrJSONShape marks a routing response that decoded but had the wrong shape.
	// Callers treat it like ErrNetwork.
	ErrJSONShape = errors.New("unexpected json shape")
	// ErrPermissionDenied marks a refused location permission.
	ErrPermissionDenied = errors.New("location permission denied")

	errEmpty      = errors.New("empty value")
	errOutOfRange = errors.New("out of range")
)

// CoordinateError reports a POI whose latitude or longitude cannot be used.
type CoordinateError struct {
	ID    string
	Field string
	Value string
	Err   error
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("poi %s: invalid %s %q: %v", e.ID, e.Field, e.Value, e.Err)
}

func (e *CoordinateError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrInvalidCoordinate) match any CoordinateError.
func (e *CoordinateError) Is(target error) bool {
	return target == ErrInvalidCoordinate
}

// IsTransient reports whether err should surface as a one-shot notice
// rather than be skipped silently.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrJSONShape)
}
