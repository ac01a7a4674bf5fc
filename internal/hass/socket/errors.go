package socket

import "errors"

// Domain-specific errors for hub socket operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when sending on a disconnected client.
	ErrNotConnected = errors.New("socket: not connected")

	// ErrConnectionFailed is returned when the dial or handshake fails.
	ErrConnectionFailed = errors.New("socket: connection failed")

	// ErrAuthFailed is returned when the hub rejects the access token.
	ErrAuthFailed = errors.New("socket: authentication rejected")

	// ErrCommandFailed is returned when the hub answers a request with success=false.
	ErrCommandFailed = errors.New("socket: command failed")

	// ErrTimeout is returned when no result arrives within the request timeout.
	ErrTimeout = errors.New("socket: request timed out")

	// ErrClosed is returned for requests pending when the connection drops.
	ErrClosed = errors.New("socket: connection closed")

	// ErrInvalidMessage is returned when a message cannot be encoded as a JSON object.
	ErrInvalidMessage = errors.New("socket: message must encode to a JSON object")
)
