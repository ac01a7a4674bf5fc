package bootstrap

import "errors"

var (
	// ErrFetchExhausted is returned when no usable entity list arrived
	// within MaxAttempts. It is fatal to startup.
	ErrFetchExhausted = errors.New("bootstrap: entity fetch retries exhausted")

	// ErrNotEntityList is returned for a payload that is not a JSON array of states.
	ErrNotEntityList = errors.New("bootstrap: response is not an entity list")
)
