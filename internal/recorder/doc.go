// Package recorder persists and mirrors entity state.
//
// A Recorder listens to the entity cache's bus and copies each change to
// up to three sinks: a retained MQTT topic per entity, an InfluxDB
// entity_state point, and the SQLite snapshot table. Registry refreshes are
// announced as a non-retained MQTT event.
//
// Restore reads the snapshot table back into the cache at start-up.
package recorder
