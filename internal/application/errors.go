package application

import "errors"

var (
	// ErrUnauthenticated is returned when the session credential is
	// missing, invalid, or rejected by the provider after the single
	// reactive refresh. It is terminal for the request.
	ErrUnauthenticated = errors.New("application: unauthenticated")
	// ErrUnauthorized is returned when the acting user lacks permission
	// for an operation, such as updating another organizer's event.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested room, event, or
	// directory entry does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrConflict is returned when the requested room is not available
	// for the window. The caller is expected to re-query availability and
	// pick another room; the core never retries.
	ErrConflict = errors.New("application: room unavailable")
	// ErrAborted is returned when the caller canceled an in-flight query.
	// It marks an ignored outcome, not a failure: superseding requests
	// are expected to race.
	ErrAborted = errors.New("application: aborted")
)

// ValidationError captures field level validation issues that callers can
// surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}
