package hass

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-hass/internal/infrastructure/mqtt"
)

// HandleCommand is the MQTT handler for graylogic/hass/command/{domain}/{service}.
// The payload is the service data as a JSON object; an empty payload means
// no data. It has the signature of mqtt.MessageHandler.
func (r *Runtime) HandleCommand(topic string, payload []byte) error {
	domain, service, ok := mqtt.Topics{}.ParseCommand(topic)
	if !ok {
		return fmt.Errorf("%w: topic %s", ErrInvalidCommand, topic)
	}

	var params map[string]any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &params); err != nil {
			return fmt.Errorf("%w: payload for %s.%s: %w", ErrInvalidCommand, domain, service, err)
		}
	}

	ctx, cancel := context.WithTimeout(r.base(), r.cfg.RequestTimeoutDuration())
	defer cancel()
	ctx = WithRequestID(ctx, uuid.NewString())

	if _, err := r.Call(ctx, domain, service, params); err != nil {
		return fmt.Errorf("command %s.%s: %w", domain, service, err)
	}
	r.logger.Debug("mqtt command dispatched", "domain", domain, "service", service)
	return nil
}
