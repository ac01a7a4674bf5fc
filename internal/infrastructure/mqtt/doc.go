// Package mqtt provides MQTT connectivity for the hub runtime.
//
// The runtime uses the broker two ways:
//   - it mirrors every entity state to a retained topic, so other
//     Gray Logic services can read hub state without speaking the hub API
//   - it accepts service calls on command topics and forwards them to the
//     call proxy
//
// A Last Will on graylogic/hass/status marks the runtime offline if it
// disappears without a clean disconnect.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.EntityState("light.kitchen")
//	client.PublishRetained(topic, payload)
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) outside local development
//   - Command topics invoke hub services; restrict them with broker ACLs
package mqtt
