package catalog

import "errors"

// Domain-specific errors for service catalog operations.
var (
	// ErrNoTransport is returned when neither socket nor REST is available.
	ErrNoTransport = errors.New("catalog: no transport available")

	// ErrLoadFailed is returned when the catalog request fails.
	ErrLoadFailed = errors.New("catalog: load failed")

	// ErrInvalidPayload is returned when the response is not a service catalog.
	ErrInvalidPayload = errors.New("catalog: invalid service catalog payload")
)
