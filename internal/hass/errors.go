package hass

import "errors"

var (
	// ErrInvalidCommand indicates an MQTT command topic or payload could not be parsed.
	ErrInvalidCommand = errors.New("hass: invalid command")

	// ErrInvalidEvent indicates a socket event payload could not be decoded.
	ErrInvalidEvent = errors.New("hass: invalid event")

	// ErrRegistryUnavailable indicates the registry list could not be fetched.
	ErrRegistryUnavailable = errors.New("hass: entity registry unavailable")
)
