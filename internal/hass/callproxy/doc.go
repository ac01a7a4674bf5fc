// Package callproxy exposes the hub's services as callable functions.
//
// Scan loads the service catalog and builds a Surface, a two-level map of
// domain → service → ServiceFunc. Each call chooses its transport:
//
//   - socket paused: the call returns (nil, nil) without side effects
//   - REST when mode is "prefer", or mode is "allow" and the socket is down
//   - the socket otherwise, incrementing the service call counter first
//
// REST cannot carry a response, so a REST call to a service whose schema
// marks response.optional logs a warning and proceeds.
//
// Until the first Scan succeeds, Surface, Domain and Call return ErrNotReady.
package callproxy
