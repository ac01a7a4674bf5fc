package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// ResponseSpec describes a service's ability to return data.
type ResponseSpec struct {
	// Optional is true when the caller may request a response.
	Optional bool `json:"optional"`
}

// ServiceSchema is one service's description. Fields and Target are kept
// raw; the runtime only inspects Response.
type ServiceSchema struct {
	Name        string                     `json:"name,omitempty"`
	Description string                     `json:"description,omitempty"`
	Fields      map[string]json.RawMessage `json:"fields,omitempty"`
	Target      json.RawMessage            `json:"target,omitempty"`
	Response    *ResponseSpec              `json:"response,omitempty"`
}

// ReturnsResponse reports whether calls should request a response.
func (s ServiceSchema) ReturnsResponse() bool {
	return s.Response != nil && s.Response.Optional
}

// ResponseOnly reports whether the schema declares a response that is not
// optional. Such calls are still sent without return_response.
func (s ServiceSchema) ResponseOnly() bool {
	return s.Response != nil && !s.Response.Optional
}

// Domain is a catalog entry: every service of one domain.
type Domain struct {
	Domain   string                   `json:"domain"`
	Services map[string]ServiceSchema `json:"services"`
}

// ServiceNames returns the domain's service names, sorted.
func (d Domain) ServiceNames() []string {
	names := make([]string, 0, len(d.Services))
	for name := range d.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SocketSender is the subset of the socket client the catalog needs.
type SocketSender interface {
	SendMessage(ctx context.Context, msg any, waitForAck bool) (json.RawMessage, error)
	IsConnected() bool
}

// ServiceFetcher is the subset of the REST client the catalog needs.
type ServiceFetcher interface {
	GetServices(ctx context.Context) (json.RawMessage, error)
}

// Logger defines the logging interface used by the catalog.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Catalog holds the most recently loaded service catalog.
//
// A loaded snapshot is never mutated: Load builds a new slice and swaps it in.
//
// Thread Safety: safe for concurrent use.
type Catalog struct {
	socket SocketSender
	rest   ServiceFetcher
	logger Logger

	mu      sync.RWMutex
	domains []Domain
	loaded  bool
}

// New creates a catalog. Either transport may be nil.
func New(socket SocketSender, rest ServiceFetcher) *Catalog {
	return &Catalog{socket: socket, rest: rest, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (c *Catalog) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// Load fetches the service catalog, over the socket when connected and
// over REST otherwise, and replaces the current snapshot.
//
// Returns:
//   - error: ErrNoTransport, ErrLoadFailed or ErrInvalidPayload (wrapped).
//     The previous snapshot is kept on error.
func (c *Catalog) Load(ctx context.Context) error {
	var (
		raw json.RawMessage
		err error
		via string
	)
	switch {
	case c.socket != nil && c.socket.IsConnected():
		via = "socket"
		raw, err = c.socket.SendMessage(ctx, map[string]any{"type": "get_services"}, true)
	case c.rest != nil:
		via = "rest"
		raw, err = c.rest.GetServices(ctx)
	default:
		return ErrNoTransport
	}
	if err != nil {
		return fmt.Errorf("%w via %s: %w", ErrLoadFailed, via, err)
	}

	domains, err := Parse(raw)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.domains = domains
	c.loaded = true
	c.mu.Unlock()

	c.logger.Debug("service catalog loaded", "via", via, "domains", len(domains))
	return nil
}

// Set replaces the snapshot directly.
func (c *Catalog) Set(domains []Domain) {
	c.mu.Lock()
	c.domains = domains
	c.loaded = true
	c.mu.Unlock()
}

// Services returns the current snapshot, sorted by domain.
// The returned slice must not be modified.
func (c *Catalog) Services() []Domain {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.domains
}

// Loaded reports whether at least one Load has succeeded.
func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Lookup returns the schema for domain.service.
func (c *Catalog) Lookup(domain, service string) (ServiceSchema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.domains {
		if d.Domain != domain {
			continue
		}
		s, ok := d.Services[service]
		return s, ok
	}
	return ServiceSchema{}, false
}

// Parse decodes either catalog shape the hub produces: the socket's
// object keyed by domain, or the REST array of {domain, services}.
// The result is sorted by domain.
func Parse(raw json.RawMessage) ([]Domain, error) {
	var domains []Domain

	var byDomain map[string]map[string]ServiceSchema
	if err := json.Unmarshal(raw, &byDomain); err == nil && byDomain != nil {
		domains = make([]Domain, 0, len(byDomain))
		for name, services := range byDomain {
			domains = append(domains, Domain{Domain: name, Services: services})
		}
	} else if err := json.Unmarshal(raw, &domains); err != nil || domains == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, truncate(raw))
	}

	for i := range domains {
		if domains[i].Services == nil {
			domains[i].Services = map[string]ServiceSchema{}
		}
	}
	sort.Slice(domains, func(i, j int) bool { return domains[i].Domain < domains[j].Domain })
	return domains, nil
}

func truncate(raw []byte) string {
	const limit = 120
	if len(raw) > limit {
		return string(raw[:limit]) + "..."
	}
	return string(raw)
}
