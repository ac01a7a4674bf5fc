package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every topic the runtime publishes or consumes.
//
// Hierarchy:
//
//	graylogic/hass/status                      runtime online/offline (retained, LWT)
//	graylogic/hass/state/{entity_id}           entity state mirror (retained)
//	graylogic/hass/event/{event_type}          runtime events (registry updates)
//	graylogic/hass/command/{domain}/{service}  inbound service calls
const TopicPrefix = "graylogic/hass"

// Topics provides builders for runtime MQTT topics.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.EntityState("light.kitchen")
//	// Returns: "graylogic/hass/state/light.kitchen"
type Topics struct{}

// Status returns the runtime status topic.
//
// Example: graylogic/hass/status
func (Topics) Status() string {
	return TopicPrefix + "/status"
}

// EntityState returns the mirror topic for one entity.
//
// Example: graylogic/hass/state/sensor.outdoor_temperature
func (Topics) EntityState(entityID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, entityID)
}

// Event returns the topic for a runtime event.
//
// Example: graylogic/hass/event/entity_registry_updated
func (Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, eventType)
}

// Command returns the inbound service call topic.
//
// Example: graylogic/hass/command/light/turn_on
func (Topics) Command(domain, service string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, domain, service)
}

// AllEntityStates matches every entity mirror topic.
//
// Pattern: graylogic/hass/state/+
func (Topics) AllEntityStates() string {
	return TopicPrefix + "/state/+"
}

// AllCommands matches every inbound service call topic.
//
// Pattern: graylogic/hass/command/+/+
func (Topics) AllCommands() string {
	return TopicPrefix + "/command/+/+"
}

// ParseCommand extracts domain and service from a command topic.
func (Topics) ParseCommand(topic string) (domain, service string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefix+"/command/")
	if !found {
		return "", "", false
	}
	domain, service, found = strings.Cut(rest, "/")
	if !found || domain == "" || service == "" || strings.Contains(service, "/") {
		return "", "", false
	}
	return domain, service, true
}
