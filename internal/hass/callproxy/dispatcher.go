package callproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/nerrad567/gray-logic-hass/internal/hass/catalog"
	"github.com/nerrad567/gray-logic-hass/internal/infrastructure/config"
)

// ServiceFunc invokes one hub service with params as its service data.
type ServiceFunc func(ctx context.Context, params map[string]any) (json.RawMessage, error)

// Surface is the callable view of one catalog snapshot:
// domain → service → ServiceFunc. It is read-only once built.
type Surface map[string]map[string]ServiceFunc

// Domains returns the surface's domains, sorted.
func (s Surface) Domains() []string {
	out := make([]string, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the function for domain.service.
func (s Surface) Lookup(domain, service string) (ServiceFunc, bool) {
	fn, ok := s[domain][service]
	return fn, ok
}

// Socket is the socket transport as seen by the dispatcher.
type Socket interface {
	SendMessage(ctx context.Context, msg any, waitForAck bool) (json.RawMessage, error)
	IsConnected() bool
	Paused() bool
}

// REST is the REST transport as seen by the dispatcher.
type REST interface {
	CallService(ctx context.Context, service string, data map[string]any) (json.RawMessage, error)
}

// Catalog supplies service catalog snapshots.
type Catalog interface {
	Load(ctx context.Context) error
	Services() []catalog.Domain
}

// CallRecorder counts socket-dispatched calls. *metrics.Metrics satisfies it.
type CallRecorder interface {
	IncServiceCall(domain, service string)
}

// Logger defines the logging interface used by the dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Deps holds the dispatcher's collaborators.
type Deps struct {
	Catalog Catalog
	Socket  Socket
	REST    REST

	// Mode is the CALL_PROXY_ALLOW_REST policy. Empty means allow.
	Mode config.RestMode

	Metrics CallRecorder
	Logger  Logger
}

// callServiceMessage is the socket envelope for a service call.
type callServiceMessage struct {
	Type           string         `json:"type"`
	Domain         string         `json:"domain"`
	Service        string         `json:"service"`
	ServiceData    map[string]any `json:"service_data"`
	ReturnResponse bool           `json:"return_response"`
}

// Dispatcher builds the call surface from the catalog and routes each call
// to the socket or REST transport.
//
// The dispatcher is NotReady until the first successful Scan. Each Scan
// builds a new Surface and swaps it in atomically.
//
// Thread Safety: safe for concurrent use.
type Dispatcher struct {
	deps    Deps
	logger  Logger
	surface atomic.Pointer[Surface]
}

// New creates a dispatcher in the NotReady state.
func New(deps Deps) *Dispatcher {
	if deps.Mode == "" {
		deps.Mode = config.RestAllow
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Dispatcher{deps: deps, logger: logger}
}

// Ready reports whether a scan has completed.
func (d *Dispatcher) Ready() bool {
	return d.surface.Load() != nil
}

// Scan reloads the catalog and replaces the surface. On error the previous
// surface, if any, stays in place.
func (d *Dispatcher) Scan(ctx context.Context) error {
	if err := d.deps.Catalog.Load(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrScanFailed, err)
	}

	domains := d.deps.Catalog.Services()
	surface := make(Surface, len(domains))
	count := 0
	for _, dom := range domains {
		services := make(map[string]ServiceFunc, len(dom.Services))
		for name, schema := range dom.Services {
			services[name] = d.bind(dom.Domain, name, schema.ReturnsResponse())
			if schema.ResponseOnly() {
				d.logger.Debug("service declares a non-optional response, calls will not request it",
					"domain", dom.Domain, "service", name)
			}
			count++
		}
		surface[dom.Domain] = services
	}

	d.surface.Store(&surface)
	d.logger.Info("call proxy scanned", "domains", len(surface), "services", count)
	return nil
}

// bind closes over one (domain, service) pair.
func (d *Dispatcher) bind(domain, service string, returnResponse bool) ServiceFunc {
	return func(ctx context.Context, params map[string]any) (json.RawMessage, error) {
		return d.send(ctx, domain, service, params, returnResponse)
	}
}

// Surface returns the current surface, or ErrNotReady before the first scan.
func (d *Dispatcher) Surface() (Surface, error) {
	s := d.surface.Load()
	if s == nil {
		d.logger.Warn("call proxy accessed before ready", "hint", "wait for the ready lifecycle phase")
		return nil, ErrNotReady
	}
	return *s, nil
}

// Domain returns one domain's services.
func (d *Dispatcher) Domain(domain string) (map[string]ServiceFunc, error) {
	s, err := d.Surface()
	if err != nil {
		return nil, err
	}
	services, ok := s[domain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, domain)
	}
	return services, nil
}

// Call invokes domain.service on the current surface.
//
// Parameters:
//   - ctx: Request context
//   - domain, service: Must exist in the last successful scan
//   - params: Service data, passed through unvalidated
//
// Returns:
//   - json.RawMessage: The transport's response; nil when paused
//   - error: ErrNotReady, ErrUnknownService, or the transport's error unmodified
func (d *Dispatcher) Call(ctx context.Context, domain, service string, params map[string]any) (json.RawMessage, error) {
	s, err := d.Surface()
	if err != nil {
		return nil, err
	}
	fn, ok := s.Lookup(domain, service)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownService, domain, service)
	}
	return fn(ctx, params)
}

func (d *Dispatcher) send(ctx context.Context, domain, service string, params map[string]any, returnResponse bool) (json.RawMessage, error) {
	if d.deps.Socket != nil && d.deps.Socket.Paused() {
		d.logger.Debug("socket paused, dropping service call", "domain", domain, "service", service)
		return nil, nil
	}

	if d.preferREST() {
		if returnResponse {
			d.logger.Warn("services that require a return_response cannot be sent via REST",
				"domain", domain, "service", service)
		}
		if d.deps.REST == nil {
			return nil, ErrRESTUnavailable
		}
		return d.deps.REST.CallService(ctx, domain+"."+service, params)
	}

	if d.deps.Socket == nil {
		return nil, ErrSocketUnavailable
	}
	if d.deps.Metrics != nil {
		d.deps.Metrics.IncServiceCall(domain, service)
	}
	return d.deps.Socket.SendMessage(ctx, callServiceMessage{
		Type:           "call_service",
		Domain:         domain,
		Service:        service,
		ServiceData:    params,
		ReturnResponse: returnResponse,
	}, true)
}

func (d *Dispatcher) preferREST() bool {
	switch d.deps.Mode {
	case config.RestPrefer:
		return true
	case config.RestAllow:
		return d.deps.Socket == nil || !d.deps.Socket.IsConnected()
	default:
		return false
	}
}

// Transport names reported by Transport.
const (
	TransportSocket = "socket"
	TransportREST   = "rest"
	TransportPaused = "paused"
)

// Transport names the route the next call would take right now.
func (d *Dispatcher) Transport() string {
	switch {
	case d.deps.Socket != nil && d.deps.Socket.Paused():
		return TransportPaused
	case d.preferREST():
		return TransportREST
	default:
		return TransportSocket
	}
}
