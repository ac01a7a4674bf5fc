package entity

import (
	"strings"
	"time"
)

// State is a snapshot of one entity as reported by the hub.
//
// Snapshots handed out by the Cache are shared, not copied. Treat them as
// read-only.
type State struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
	Context     *Context       `json:"context,omitempty"`
}

// Context identifies the hub-side origin of a state change.
type Context struct {
	ID       string  `json:"id"`
	ParentID *string `json:"parent_id"`
	UserID   *string `json:"user_id"`
}

// Domain returns the part of the entity id before the first dot.
func (s *State) Domain() string {
	if s == nil {
		return ""
	}
	return Domain(s.EntityID)
}

// Attribute returns a single attribute value.
func (s *State) Attribute(key string) (any, bool) {
	if s == nil || s.Attributes == nil {
		return nil, false
	}
	v, ok := s.Attributes[key]
	return v, ok
}

// Domain returns the domain portion of an entity id ("sensor" for "sensor.magic").
func Domain(entityID string) string {
	domain, _, _ := strings.Cut(entityID, ".")
	return domain
}

// RegistryEntry is one row of the hub's entity registry.
// Only the fields the runtime needs are decoded.
type RegistryEntry struct {
	EntityID string  `json:"entity_id"`
	UniqueID string  `json:"unique_id"`
	Platform string  `json:"platform"`
	DeviceID *string `json:"device_id"`
	Name     *string `json:"name"`
}

// Logger defines the logging interface used by the Cache.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetricsRecorder receives cache instrumentation. *metrics.Metrics satisfies it.
type MetricsRecorder interface {
	IncEntityUpdate()
	IncRegistryUpdate()
}

type noopMetrics struct{}

func (noopMetrics) IncEntityUpdate()   {}
func (noopMetrics) IncRegistryUpdate() {}
