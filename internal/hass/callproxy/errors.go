package callproxy

import "errors"

// Domain-specific errors for the call proxy.
var (
	// ErrNotReady is returned when the surface is read before the first scan.
	// Wait for the ready lifecycle phase before calling services.
	ErrNotReady = errors.New("callproxy: service surface not ready, wait for the ready phase")

	// ErrUnknownService is returned for a domain or service absent from the last scan.
	ErrUnknownService = errors.New("callproxy: unknown service")

	// ErrScanFailed wraps a catalog load failure.
	ErrScanFailed = errors.New("callproxy: scan failed")

	// ErrRESTUnavailable is returned when REST is selected but not configured.
	ErrRESTUnavailable = errors.New("callproxy: REST transport unavailable")

	// ErrSocketUnavailable is returned when the socket is selected but not configured.
	ErrSocketUnavailable = errors.New("callproxy: socket transport unavailable")
)
