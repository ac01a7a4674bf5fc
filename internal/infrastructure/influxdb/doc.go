// Package influxdb records entity state history and service call traffic
// in InfluxDB v2.
//
// Writes go through the client library's batched, non-blocking write API.
// Two measurements are produced:
//   - entity_state: one point per state change, tagged by entity_id and
//     domain, with the raw state string and a float value when numeric
//   - service_call: one point per routed call, tagged by domain, service
//     and transport
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // history is optional
//	}
//	defer client.Close()
//
//	client.WriteEntityState("sensor.outdoor_temperature", "sensor", "21.5", time.Now())
//
// All write methods are no-ops on a nil or closed client.
package influxdb
