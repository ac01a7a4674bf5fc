package rest

import (
	"errors"
	"fmt"
)

// Domain-specific errors for hub REST operations.
var (
	// ErrRequestFailed is returned when a request cannot be built or sent.
	ErrRequestFailed = errors.New("rest: request failed")

	// ErrHTTPStatus is matched by StatusError via errors.Is.
	ErrHTTPStatus = errors.New("rest: unexpected HTTP status")

	// ErrInvalidService is returned for a service name not of the form domain.service.
	ErrInvalidService = errors.New("rest: service must be domain.service")
)

// StatusError carries a non-2xx response.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rest: unexpected HTTP status %s", e.Status)
}

// Is reports whether target is ErrHTTPStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrHTTPStatus
}

func asStatus(err error, target **StatusError) bool {
	return errors.As(err, target)
}
