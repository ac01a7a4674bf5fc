// Package hass wires the hub runtime together.
//
// A Runtime owns the socket and REST transports, the service catalog, the
// call proxy, the entity state cache and the bootstrap loader, and runs
// them through the lifecycle phases:
//
//   - bootstrap: call proxy scan (when auto_scan_call_proxy is set)
//   - post-config: entity bootstrap, then the entity registry index load
//   - ready: hooks added by the caller
//
// Socket state_changed events are decoded and fed to the cache.
// entity_registry_updated events are debounced by the cache and then
// reload the unique-id index over the socket.
//
// Call wraps the dispatcher with the service-call audit log and history.
// HandleCommand exposes Call to MQTT command topics.
//
// Usage:
//
//	rt := hass.New(hass.Options{Config: cfg.Hass, Metrics: m, Logger: log})
//	defer rt.Close()
//	if err := rt.Start(ctx); err != nil {
//	    return err
//	}
//	return rt.Run(ctx)
package hass
