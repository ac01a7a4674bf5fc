package hass

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-hass/internal/hass/bootstrap"
	"github.com/nerrad567/gray-logic-hass/internal/hass/callproxy"
	"github.com/nerrad567/gray-logic-hass/internal/hass/catalog"
	"github.com/nerrad567/gray-logic-hass/internal/hass/entity"
	"github.com/nerrad567/gray-logic-hass/internal/hass/rest"
	"github.com/nerrad567/gray-logic-hass/internal/hass/socket"
	"github.com/nerrad567/gray-logic-hass/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hass/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hass/internal/lifecycle"
)

// registryPriority runs the registry index load after the entity bootstrap.
const registryPriority = -10

// Logger is the logging interface used by the runtime. *logging.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Metrics is the union of recorders the runtime's components report to.
// *metrics.Metrics satisfies it.
type Metrics interface {
	IncServiceCall(domain, service string)
	IncEntityUpdate()
	IncRegistryUpdate()
	IncBootstrapAttempt()
	SetSocketConnected(connected bool)
}

// CallAuditor stores one row per routed service call.
type CallAuditor interface {
	RecordCall(ctx context.Context, r database.CallRecord) error
}

// CallHistory writes one time-series point per routed service call.
type CallHistory interface {
	WriteServiceCall(domain, service, transport string, ok bool)
}

// Options configures a Runtime. Only Config is required.
type Options struct {
	Config  config.HassConfig
	Metrics Metrics
	Logger  Logger

	Audit   CallAuditor
	History CallHistory

	// HTTPClient and Dialer override the transports' defaults.
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
}

// Runtime composes the hub transports, catalog, call proxy, entity cache,
// bootstrap loader and lifecycle.
//
// Socket state_changed events feed the cache; entity_registry_updated events
// are debounced by the cache and then reload the unique-id index.
//
// Thread Safety: safe for concurrent use after New returns.
type Runtime struct {
	cfg    config.HassConfig
	opts   Options
	logger Logger

	socket     *socket.Client
	rest       *rest.Client
	catalog    *catalog.Catalog
	dispatcher *callproxy.Dispatcher
	cache      *entity.Cache
	loader     *bootstrap.Loader
	lifecycle  *lifecycle.Manager

	baseMu  sync.RWMutex
	baseCtx context.Context

	registryBusy   atomic.Bool
	stopRegistry   func()
	registryLoaded atomic.Bool
}

// New builds the runtime and registers its lifecycle hooks. It does not
// connect.
func New(opts Options) *Runtime {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	r := &Runtime{
		cfg:       cfg,
		opts:      opts,
		logger:    logger,
		lifecycle: lifecycle.New(),
		baseCtx:   context.Background(),
	}

	var (
		connRecorder socket.ConnectionRecorder
		cacheMetrics entity.MetricsRecorder
		callMetrics  callproxy.CallRecorder
		bootMetrics  bootstrap.AttemptRecorder
	)
	if opts.Metrics != nil {
		connRecorder = opts.Metrics
		cacheMetrics = opts.Metrics
		callMetrics = opts.Metrics
		bootMetrics = opts.Metrics
	}

	r.socket = socket.New(socket.Options{
		URL:            cfg.SocketURL(),
		Token:          cfg.Token,
		Mock:           cfg.MockSocket,
		RequestTimeout: cfg.RequestTimeoutDuration(),
		Logger:         logger,
		Metrics:        connRecorder,
		Dialer:         opts.Dialer,
	})
	r.rest = rest.New(rest.Options{
		BaseURL:    cfg.BaseURL,
		Token:      cfg.Token,
		Timeout:    cfg.RequestTimeoutDuration(),
		HTTPClient: opts.HTTPClient,
		Logger:     logger,
	})
	r.catalog = catalog.New(r.socket, r.rest)
	r.catalog.SetLogger(logger)
	r.dispatcher = callproxy.New(callproxy.Deps{
		Catalog: r.catalog,
		Socket:  r.socket,
		REST:    r.rest,
		Mode:    cfg.CallProxyAllowRest,
		Metrics: callMetrics,
		Logger:  logger,
	})
	r.cache = entity.NewCache(entity.Options{
		DebounceInterval: cfg.DebounceInterval(),
		Logger:           logger,
		Metrics:          cacheMetrics,
	})
	r.loader = bootstrap.New(bootstrap.Deps{
		Fetcher:    r.rest,
		Cache:      r.cache,
		Enabled:    cfg.AutoConnectSocket,
		RetryDelay: cfg.RetryDelay(),
		Metrics:    bootMetrics,
		Logger:     logger,
	})
	r.lifecycle.SetLogger(logger)

	r.socket.OnEvent(socket.EventStateChanged, r.handleStateChanged)
	r.socket.OnEvent(socket.EventEntityRegistryUpdated, r.handleRegistryEvent)
	r.stopRegistry = r.cache.OnRegistryUpdate(r.onRegistryUpdated)

	if cfg.AutoScanCallProxy {
		r.lifecycle.OnBootstrap("call_proxy_scan", r.dispatcher.Scan)
	}
	r.lifecycle.OnPostConfig("entity_bootstrap", r.loader.Hook)
	r.lifecycle.OnPostConfigPriority("entity_registry", registryPriority, r.registryHook)

	return r
}

// Socket returns the hub socket client.
func (r *Runtime) Socket() *socket.Client { return r.socket }

// REST returns the hub REST client.
func (r *Runtime) REST() *rest.Client { return r.rest }

// Catalog returns the service catalog.
func (r *Runtime) Catalog() *catalog.Catalog { return r.catalog }

// Dispatcher returns the call proxy.
func (r *Runtime) Dispatcher() *callproxy.Dispatcher { return r.dispatcher }

// Cache returns the entity state cache.
func (r *Runtime) Cache() *entity.Cache { return r.cache }

// Loader returns the bootstrap loader.
func (r *Runtime) Loader() *bootstrap.Loader { return r.loader }

// Lifecycle returns the phase manager so callers can add their own hooks
// before Start.
func (r *Runtime) Lifecycle() *lifecycle.Manager { return r.lifecycle }

// Start connects the socket when auto-connect is on and runs the lifecycle
// phases. A failed initial connect is logged; Run keeps retrying it.
//
// Returns:
//   - error: The first lifecycle hook failure (e.g. bootstrap exhaustion)
func (r *Runtime) Start(ctx context.Context) error {
	r.baseMu.Lock()
	r.baseCtx = ctx
	r.baseMu.Unlock()

	if r.cfg.AutoConnectSocket && !r.cfg.MockSocket {
		if err := r.socket.Connect(ctx); err != nil {
			r.logger.Warn("initial socket connect failed, continuing over REST", "error", err)
		}
	}
	return r.lifecycle.Run(ctx)
}

// Run keeps the socket connected until ctx is cancelled. Without
// auto-connect it just waits.
func (r *Runtime) Run(ctx context.Context) error {
	if !r.cfg.AutoConnectSocket {
		<-ctx.Done()
		return nil
	}
	return r.socket.Run(ctx)
}

// Ready reports whether every lifecycle phase has completed.
func (r *Runtime) Ready() bool {
	return r.lifecycle.Reached(lifecycle.PhaseReady)
}

// Transport names the path the next service call would take.
func (r *Runtime) Transport() string {
	return r.dispatcher.Transport()
}

// Close stops the debounce timer and closes the socket.
func (r *Runtime) Close() error {
	r.stopRegistry()
	r.cache.Close()
	return r.socket.Close()
}

// Call routes a service call through the dispatcher and records it in the
// audit log and call history when configured. The dispatcher's result and
// error are returned unmodified.
func (r *Runtime) Call(ctx context.Context, domain, service string, params map[string]any) (json.RawMessage, error) {
	transport := r.dispatcher.Transport()
	res, err := r.dispatcher.Call(ctx, domain, service, params)

	if r.opts.History != nil {
		r.opts.History.WriteServiceCall(domain, service, transport, err == nil)
	}
	if r.opts.Audit != nil {
		r.audit(ctx, domain, service, transport, params, err)
	}
	return res, err
}

func (r *Runtime) audit(ctx context.Context, domain, service, transport string, params map[string]any, callErr error) {
	rec := database.CallRecord{
		RequestID: RequestID(ctx),
		Domain:    domain,
		Service:   service,
		Transport: transport,
		CalledAt:  time.Now(),
	}
	if rec.RequestID == "" {
		rec.RequestID = uuid.NewString()
	}
	if len(params) > 0 {
		if data, err := json.Marshal(params); err == nil {
			rec.Data = data
		}
	}
	if callErr != nil {
		rec.Error = callErr.Error()
	}

	// The audit row is written even when the caller's ctx was cancelled.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.RequestTimeoutDuration())
	defer cancel()
	if err := r.opts.Audit.RecordCall(auditCtx, rec); err != nil {
		r.logger.Warn("recording service call failed", "domain", domain, "service", service, "error", err)
	}
}

func (r *Runtime) base() context.Context {
	r.baseMu.RLock()
	defer r.baseMu.RUnlock()
	return r.baseCtx
}
