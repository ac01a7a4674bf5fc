// Package rest is the hub's REST API client, used as the fallback transport
// for service calls and for bulk entity fetches.
//
// Every request carries the access token as a bearer header. Non-2xx
// responses surface as *StatusError (errors.Is(err, ErrHTTPStatus)),
// except GetAllEntities, which returns them as an error-shaped JSON body
// ({"text": "502 Bad Gateway", ...}) so the bootstrap loader can retry.
package rest
