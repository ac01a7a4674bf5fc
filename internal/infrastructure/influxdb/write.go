package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementEntityState = "entity_state"
	MeasurementServiceCall = "service_call"
)

// WriteEntityState records one entity state change.
//
// Tags: entity_id, domain. Fields: state (string) and, when the state
// parses as a number, value (float).
//
// Example:
//
//	client.WriteEntityState("sensor.outdoor_temperature", "sensor", "21.5", changedAt)
func (c *Client) WriteEntityState(entityID, domain, state string, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(entityStatePoint(entityID, domain, state, at))
}

// WriteServiceCall records one service call routed through the runtime.
//
// Tags: domain, service, transport. Fields: ok (bool).
func (c *Client) WriteServiceCall(domain, service, transport string, ok bool) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(serviceCallPoint(domain, service, transport, ok, time.Now()))
}

// WritePoint writes a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func entityStatePoint(entityID, domain, state string, at time.Time) *write.Point {
	if at.IsZero() {
		at = time.Now()
	}
	fields := map[string]any{"state": state}
	if v, err := strconv.ParseFloat(state, 64); err == nil {
		fields["value"] = v
	}
	return write.NewPoint(
		MeasurementEntityState,
		map[string]string{"entity_id": entityID, "domain": domain},
		fields,
		at,
	)
}

func serviceCallPoint(domain, service, transport string, ok bool, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementServiceCall,
		map[string]string{"domain": domain, "service": service, "transport": transport},
		map[string]any{"ok": ok},
		at,
	)
}
