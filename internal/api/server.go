package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-hass/internal/hass/catalog"
	"github.com/nerrad567/gray-logic-hass/internal/hass/entity"
	"github.com/nerrad567/gray-logic-hass/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hass/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hass/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Entities is the read side of the entity state cache. *entity.Cache
// satisfies it.
type Entities interface {
	Current(entityID string) *entity.State
	Previous(entityID string) *entity.State
	Tracked(entityID string) bool
	MasterState() map[string]*entity.State
	Len() int
	ByID(entityID string) entity.Ref
	ByUniqueID(uniqueID string) (entity.Ref, bool)
	NextState(ctx context.Context, entityID string, timeout time.Duration) *entity.State
	Bus() *entity.Bus
	OnRegistryUpdate(fn func()) func()
}

// Runtime routes service calls. *hass.Runtime satisfies it.
type Runtime interface {
	Call(ctx context.Context, domain, service string, params map[string]any) (json.RawMessage, error)
	Ready() bool
	Transport() string
}

// ServiceCatalog lists the hub's services. *catalog.Catalog satisfies it.
type ServiceCatalog interface {
	Services() []catalog.Domain
	Loaded() bool
}

// SocketControl exposes the hub socket's state. *socket.Client satisfies it.
type SocketControl interface {
	IsConnected() bool
	Paused() bool
	SetPaused(paused bool)
}

// CallLog reads the service call audit table. *database.DB satisfies it.
type CallLog interface {
	RecentCalls(ctx context.Context, limit int) ([]database.CallRecord, error)
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Entities Entities
	Runtime  Runtime
	Catalog  ServiceCatalog // optional
	Socket   SocketControl  // optional
	Calls    CallLog        // optional: /calls returns 503 without it
	Metrics  http.Handler   // optional: Prometheus exposition
	Version  string
}

// Server is the local gateway HTTP API.
//
// It manages the HTTP listener, routes, middleware, and the WebSocket
// relay hub. The server is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	entities Entities
	runtime  Runtime
	catalog  ServiceCatalog
	socket   SocketControl
	calls    CallLog
	metrics  http.Handler
	version  string

	startTime time.Time
	server    *http.Server
	listener  net.Listener
	hub       *Hub
	cancel    context.CancelFunc
	relayWG   sync.WaitGroup
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Logger, Entities and Runtime are required
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Entities == nil {
		return nil, fmt.Errorf("entity cache is required")
	}
	if deps.Runtime == nil {
		return nil, fmt.Errorf("runtime is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		entities:  deps.Entities,
		runtime:   deps.Runtime,
		catalog:   deps.Catalog,
		socket:    deps.Socket,
		calls:     deps.Calls,
		metrics:   deps.Metrics,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, attaches the relay to the entity bus and
// launches the HTTP listener in a background goroutine. The listener is
// bound before Start returns so a bad address fails here.
//
// Parameters:
//   - ctx: Parent context for the hub and relay
//
// Returns:
//   - error: If the address cannot be bound
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	go s.hub.Run(srvCtx)
	s.startRelay(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("binding API listener: %w", err)
	}
	s.listener = ln

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}
	s.relayWG.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// startRelay forwards entity updates and registry notifications to
// WebSocket subscribers until ctx is cancelled.
func (s *Server) startRelay(ctx context.Context) {
	sub := s.entities.Bus().SubscribeKind(entity.KindEntity, func(u entity.Update) {
		ev := stateChangedEvent{EntityID: u.EntityID, NewState: u.New, OldState: u.Old}
		s.hub.Broadcast(ChannelStateChanged, ev)
		s.hub.Broadcast(EntityChannel(u.EntityID), ev)
	})
	detach := s.entities.OnRegistryUpdate(func() {
		s.hub.Broadcast(ChannelRegistryUpdated, map[string]any{
			"entity_count": s.entities.Len(),
		})
	})

	s.relayWG.Add(1)
	go func() {
		defer s.relayWG.Done()
		<-ctx.Done()
		sub.Unsubscribe()
		detach()
	}()
}
