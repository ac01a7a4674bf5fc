package socket

import "encoding/json"

// Message types exchanged with the hub.
const (
	TypeAuthRequired    = "auth_required"
	TypeAuth            = "auth"
	TypeAuthOK          = "auth_ok"
	TypeAuthInvalid     = "auth_invalid"
	TypeResult          = "result"
	TypeEvent           = "event"
	TypeSubscribeEvents = "subscribe_events"
	TypePing            = "ping"
	TypePong            = "pong"
)

// Event types the runtime subscribes to.
const (
	EventStateChanged          = "state_changed"
	EventEntityRegistryUpdated = "entity_registry_updated"
)

// inbound is the union of every message the hub sends.
type inbound struct {
	ID      int64           `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *CommandError   `json:"error,omitempty"`
	Event   *Event          `json:"event,omitempty"`
	Message string          `json:"message,omitempty"`
}

// CommandError is the error body of a failed result.
type CommandError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Event is a hub bus event delivered over a subscription.
type Event struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	Origin    string          `json:"origin,omitempty"`
	TimeFired string          `json:"time_fired,omitempty"`
}

// StateChangedData is the payload of a state_changed event. States are left
// raw so callers decode into their own types.
type StateChangedData struct {
	EntityID string          `json:"entity_id"`
	NewState json.RawMessage `json:"new_state"`
	OldState json.RawMessage `json:"old_state"`
}

type authMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token"`
}

type subscribeMessage struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	EventType string `json:"event_type"`
}

type result struct {
	payload json.RawMessage
	err     error
}
