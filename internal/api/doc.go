// Package api provides the local gateway's HTTP API and WebSocket relay.
//
// It exposes the entity state cache, the hub's service catalog and the call
// proxy to local consumers, and relays entity updates and registry
// notifications to WebSocket subscribers.
//
// Routes (all under /api/v1):
//
//	GET  /health                    liveness plus runtime readiness
//	GET  /status                    JSON status snapshot
//	GET  /metrics                   Prometheus exposition (when configured)
//	GET  /entities[?domain=]        current snapshots
//	GET  /entities/{id}             current, previous and hash
//	GET  /entities/{id}/next        long-poll for the next update
//	GET  /unique/{uid}              resolve a registry unique id
//	GET  /services                  service catalog
//	POST /services/{domain}/{svc}   call a service
//	GET  /calls[?limit=]            audited service calls
//	PUT  /socket/paused             pause or resume the hub socket
//	GET  /ws                        WebSocket relay
//
// WebSocket clients subscribe to channels: "entity.state_changed",
// "entity:<entity_id>" and "entity_registry_updated".
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
