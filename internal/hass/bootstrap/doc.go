// Package bootstrap seeds the entity cache from the hub's full entity list
// at startup.
//
// The fetch is retried while the hub answers with anything other than a
// JSON array (proxies in front of the hub answer 502 with an error
// object during restarts). After MaxAttempts failures startup aborts with
// ErrFetchExhausted rather than running with an empty cache.
package bootstrap
