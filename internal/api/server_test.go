package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-hass/internal/hass"
	"github.com/nerrad567/gray-logic-hass/internal/hass/callproxy"
	"github.com/nerrad567/gray-logic-hass/internal/hass/catalog"
	"github.com/nerrad567/gray-logic-hass/internal/hass/entity"
	"github.com/nerrad567/gray-logic-hass/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hass/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hass/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-hass/internal/infrastructure/metrics"
)

// =============================================================================
// Test Helpers
// =============================================================================

type call struct {
	domain, service, requestID string
	params                     map[string]any
}

type mockRuntime struct {
	mu     sync.Mutex
	ready  bool
	result json.RawMessage
	err    error
	calls  []call
}

func (m *mockRuntime) Call(ctx context.Context, domain, service string, params map[string]any) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call{domain, service, hass.RequestID(ctx), params})
	return m.result, m.err
}

func (m *mockRuntime) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

func (m *mockRuntime) Transport() string { return callproxy.TransportSocket }

func (m *mockRuntime) setReady(ready bool) {
	m.mu.Lock()
	m.ready = ready
	m.mu.Unlock()
}

func (m *mockRuntime) setResult(res json.RawMessage, err error) {
	m.mu.Lock()
	m.result, m.err = res, err
	m.mu.Unlock()
}

func (m *mockRuntime) recorded() []call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]call(nil), m.calls...)
}

type mockCatalog struct {
	domains []catalog.Domain
	loaded  bool
}

func (m *mockCatalog) Services() []catalog.Domain { return m.domains }
func (m *mockCatalog) Loaded() bool               { return m.loaded }

type mockSocket struct {
	mu                sync.Mutex
	connected, paused bool
}

func (m *mockSocket) IsConnected() bool { return m.connected }

func (m *mockSocket) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

func (m *mockSocket) SetPaused(paused bool) {
	m.mu.Lock()
	m.paused = paused
	m.mu.Unlock()
}

type mockCallLog struct {
	mu        sync.Mutex
	records   []database.CallRecord
	err       error
	lastLimit int
}

func (m *mockCallLog) RecentCalls(_ context.Context, limit int) ([]database.CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	return m.records, m.err
}

func (m *mockCallLog) limit() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastLimit
}

func (m *mockCallLog) fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *mockCallLog) Stats() sql.DBStats { return sql.DBStats{OpenConnections: 1} }

type fixture struct {
	srv     *Server
	cache   *entity.Cache
	runtime *mockRuntime
	ts      *httptest.Server
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()

	cache := entity.NewCache(entity.Options{DebounceInterval: 10 * time.Millisecond})
	t.Cleanup(cache.Close)
	rt := &mockRuntime{ready: true}

	deps := Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:       config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:   logging.Discard(),
		Entities: cache,
		Runtime:  rt,
		Version:  "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv.hub = NewHub(deps.WS, deps.Logger)
	go srv.hub.Run(ctx)
	srv.startRelay(ctx)

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		srv.relayWG.Wait()
	})

	return &fixture{srv: srv, cache: cache, runtime: rt, ts: ts}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, r)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decoding %s: %v", data, err)
	}
	return v
}

// =============================================================================
// Construction and lifecycle
// =============================================================================

func TestNew_RequiresDeps(t *testing.T) {
	cache := entity.NewCache(entity.Options{})
	defer cache.Close()
	rt := &mockRuntime{}

	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Entities: cache, Runtime: rt}},
		{"no entities", Deps{Logger: logging.Discard(), Runtime: rt}},
		{"no runtime", Deps{Logger: logging.Discard(), Entities: cache}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestServer_StartClose(t *testing.T) {
	cache := entity.NewCache(entity.Options{})
	defer cache.Close()

	srv, err := New(Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", Port: 0, Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5}},
		Logger:   logging.Discard(),
		Entities: cache,
		Runtime:  &mockRuntime{ready: true},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if srv.Addr() == "" {
		t.Fatal("Addr() empty after Start")
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/api/v1/health", srv.Addr()))
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestServer_CloseBeforeStart(t *testing.T) {
	srv := &Server{}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// =============================================================================
// Health, status, metrics
// =============================================================================

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodGet, "/api/v1/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decode[map[string]any](t, body)
	if got["status"] != "ok" || got["ready"] != true || got["version"] != "test" {
		t.Errorf("body = %v", got)
	}

	f.runtime.setReady(false)
	_, body = f.do(t, http.MethodGet, "/api/v1/health", "")
	if got := decode[map[string]any](t, body); got["status"] != "starting" {
		t.Errorf("status = %v, want starting", got["status"])
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Socket = &mockSocket{connected: true}
		d.Catalog = &mockCatalog{loaded: true}
		d.Calls = &mockCallLog{}
	})
	f.cache.Seed([]*entity.State{
		{EntityID: "light.a"}, {EntityID: "light.b"}, {EntityID: "sensor.t"},
	})

	resp, body := f.do(t, http.MethodGet, "/api/v1/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	st := decode[SystemStatus](t, body)
	if !st.Hub.Ready || !st.Hub.SocketConnected || !st.Hub.CatalogLoaded || st.Hub.Transport != "socket" {
		t.Errorf("hub = %+v", st.Hub)
	}
	if st.Entities.Tracked != 3 || st.Entities.ByDomain["light"] != 2 {
		t.Errorf("entities = %+v", st.Entities)
	}
	if st.Database == nil || st.Database.OpenConnections != 1 {
		t.Errorf("database = %+v", st.Database)
	}
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.New()
	m.IncEntityUpdate()
	f := newFixture(t, func(d *Deps) { d.Metrics = m.Handler() })

	resp, body := f.do(t, http.MethodGet, "/api/v1/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "graylogic_hass_entity_updates_total 1") {
		t.Error("exposition missing entity update counter")
	}
}

func TestMetricsRoute_NotConfigured(t *testing.T) {
	f := newFixture(t, nil)
	if resp, _ := f.do(t, http.MethodGet, "/api/v1/metrics", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRequestIDHeader(t *testing.T) {
	f := newFixture(t, nil)

	req, _ := http.NewRequest(http.MethodPost, f.ts.URL+"/api/v1/services/light/turn_on", nil)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID = %q, want req-42", got)
	}
	if calls := f.runtime.recorded(); len(calls) != 1 || calls[0].requestID != "req-42" {
		t.Errorf("runtime saw calls %+v, want request id req-42", calls)
	}

	resp, _ = f.do(t, http.MethodGet, "/api/v1/health", "")
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not generated")
	}
}

// =============================================================================
// Entities
// =============================================================================

func TestListEntities(t *testing.T) {
	f := newFixture(t, nil)
	f.cache.Seed([]*entity.State{
		{EntityID: "sensor.t", State: "21"},
		{EntityID: "light.b", State: "off"},
		{EntityID: "light.a", State: "on"},
	})

	_, body := f.do(t, http.MethodGet, "/api/v1/entities", "")
	got := decode[struct {
		Entities []entity.State `json:"entities"`
		Count    int            `json:"count"`
	}](t, body)
	if got.Count != 3 || got.Entities[0].EntityID != "light.a" || got.Entities[2].EntityID != "sensor.t" {
		t.Errorf("entities = %+v", got)
	}

	_, body = f.do(t, http.MethodGet, "/api/v1/entities?domain=light", "")
	got = decode[struct {
		Entities []entity.State `json:"entities"`
		Count    int            `json:"count"`
	}](t, body)
	if got.Count != 2 {
		t.Errorf("domain filter count = %d, want 2", got.Count)
	}
}

func TestGetEntity(t *testing.T) {
	f := newFixture(t, nil)
	f.cache.Receive("light.a",
		&entity.State{EntityID: "light.a", State: "on"},
		&entity.State{EntityID: "light.a", State: "off"})

	resp, body := f.do(t, http.MethodGet, "/api/v1/entities/light.a", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decode[entityResponse](t, body)
	if got.Current == nil || got.Current.State != "on" || got.Previous == nil || got.Previous.State != "off" {
		t.Errorf("entity = %+v", got)
	}
	if got.Hash != entity.Hash("light.a") {
		t.Errorf("hash = %q", got.Hash)
	}

	resp, body = f.do(t, http.MethodGet, "/api/v1/entities/light.missing", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", resp.StatusCode)
	}
	if e := decode[Error](t, body); e.Code != ErrCodeNotFound {
		t.Errorf("error code = %q", e.Code)
	}
}

func TestNextState_Timeout(t *testing.T) {
	f := newFixture(t, nil)
	resp, _ := f.do(t, http.MethodGet, "/api/v1/entities/light.a/next?timeout_ms=20", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
}

func TestNextState_Delivered(t *testing.T) {
	f := newFixture(t, nil)

	type result struct {
		code int
		body []byte
	}
	done := make(chan result, 1)
	go func() {
		resp, err := http.Get(f.ts.URL + "/api/v1/entities/light.a/next?timeout_ms=2000")
		if err != nil {
			done <- result{}
			return
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body) //nolint:errcheck // checked via decode below
		done <- result{resp.StatusCode, data}
	}()

	// Keep publishing until the long-poll subscribes and returns.
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case r := <-done:
			if r.code != http.StatusOK {
				t.Fatalf("status = %d, want 200", r.code)
			}
			if got := decode[entity.State](t, r.body); got.State != "on" {
				t.Errorf("state = %q, want on", got.State)
			}
			return
		case <-tick.C:
			f.cache.Receive("light.a", &entity.State{EntityID: "light.a", State: "on"}, nil)
		case <-timeout:
			t.Fatal("long-poll did not return")
		}
	}
}

func TestNextState_BadTimeout(t *testing.T) {
	f := newFixture(t, nil)
	for _, q := range []string{"abc", "0", "-5"} {
		resp, _ := f.do(t, http.MethodGet, "/api/v1/entities/light.a/next?timeout_ms="+q, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("timeout_ms=%s status = %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestGetByUniqueID(t *testing.T) {
	f := newFixture(t, nil)
	f.cache.Seed([]*entity.State{{EntityID: "light.a", State: "on"}})
	f.cache.SetRegistry([]entity.RegistryEntry{{EntityID: "light.a", UniqueID: "uid-1"}})

	resp, body := f.do(t, http.MethodGet, "/api/v1/unique/uid-1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decode[entityResponse](t, body)
	if got.EntityID != "light.a" || got.UniqueID != "uid-1" || got.Current == nil {
		t.Errorf("entity = %+v", got)
	}

	if resp, _ := f.do(t, http.MethodGet, "/api/v1/unique/nope", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown uid status = %d, want 404", resp.StatusCode)
	}
}

// =============================================================================
// Services
// =============================================================================

func TestListServices(t *testing.T) {
	f := newFixture(t, nil)
	if resp, _ := f.do(t, http.MethodGet, "/api/v1/services", ""); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("no catalog status = %d, want 503", resp.StatusCode)
	}

	f = newFixture(t, func(d *Deps) {
		d.Catalog = &mockCatalog{loaded: true, domains: []catalog.Domain{
			{Domain: "light", Services: map[string]catalog.ServiceSchema{"turn_on": {}}},
		}}
	})
	resp, body := f.do(t, http.MethodGet, "/api/v1/services", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decode[struct {
		Domains []catalog.Domain `json:"domains"`
	}](t, body)
	if len(got.Domains) != 1 || got.Domains[0].Domain != "light" {
		t.Errorf("domains = %+v", got.Domains)
	}
}

func TestCallService(t *testing.T) {
	f := newFixture(t, nil)
	f.runtime.setResult(json.RawMessage(`{"ok":true}`), nil)

	resp, body := f.do(t, http.MethodPost, "/api/v1/services/light/turn_on", `{"entity_id":"light.a","brightness":200}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body = %s", resp.StatusCode, body)
	}
	got := decode[callResponse](t, body)
	if got.Domain != "light" || got.Service != "turn_on" || string(got.Response) != `{"ok":true}` {
		t.Errorf("response = %+v", got)
	}

	calls := f.runtime.recorded()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	c := calls[0]
	if c.params["entity_id"] != "light.a" || c.params["brightness"] != float64(200) {
		t.Errorf("params = %v", c.params)
	}
	if c.requestID == "" {
		t.Error("request id not propagated to runtime")
	}
}

func TestCallService_EmptyBody(t *testing.T) {
	f := newFixture(t, nil)
	resp, _ := f.do(t, http.MethodPost, "/api/v1/services/homeassistant/restart", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if calls := f.runtime.recorded(); len(calls) != 1 || calls[0].params != nil {
		t.Errorf("calls = %+v, want one call with nil params", calls)
	}
}

func TestCallService_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not ready", callproxy.ErrNotReady, http.StatusServiceUnavailable},
		{"unknown", fmt.Errorf("%w: light.nope", callproxy.ErrUnknownService), http.StatusNotFound},
		{"hub failure", errors.New("socket: request timed out"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.runtime.setResult(nil, tt.err)
			resp, _ := f.do(t, http.MethodPost, "/api/v1/services/light/nope", "")
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestCallService_BadBody(t *testing.T) {
	f := newFixture(t, nil)
	resp, _ := f.do(t, http.MethodPost, "/api/v1/services/light/turn_on", `["not","an","object"]`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if len(f.runtime.recorded()) != 0 {
		t.Error("runtime called despite bad body")
	}
}

func TestListCalls(t *testing.T) {
	f := newFixture(t, nil)
	if resp, _ := f.do(t, http.MethodGet, "/api/v1/calls", ""); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("no call log status = %d, want 503", resp.StatusCode)
	}

	log := &mockCallLog{records: []database.CallRecord{
		{ID: 2, Domain: "light", Service: "turn_off"},
		{ID: 1, Domain: "light", Service: "turn_on"},
	}}
	f = newFixture(t, func(d *Deps) { d.Calls = log })

	_, body := f.do(t, http.MethodGet, "/api/v1/calls", "")
	got := decode[struct {
		Calls []database.CallRecord `json:"calls"`
		Count int                   `json:"count"`
	}](t, body)
	if got.Count != 2 || got.Calls[0].ID != 2 {
		t.Errorf("calls = %+v", got)
	}
	if got := log.limit(); got != defaultCallsLimit {
		t.Errorf("limit = %d, want %d", got, defaultCallsLimit)
	}

	f.do(t, http.MethodGet, "/api/v1/calls?limit=100000", "")
	if got := log.limit(); got != maxCallsLimit {
		t.Errorf("limit = %d, want capped %d", got, maxCallsLimit)
	}

	if resp, _ := f.do(t, http.MethodGet, "/api/v1/calls?limit=x", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", resp.StatusCode)
	}

	log.fail(errors.New("database is locked"))
	if resp, _ := f.do(t, http.MethodGet, "/api/v1/calls", ""); resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("store error status = %d, want 500", resp.StatusCode)
	}
}

func TestSetSocketPaused(t *testing.T) {
	sock := &mockSocket{connected: true}
	f := newFixture(t, func(d *Deps) { d.Socket = sock })

	resp, body := f.do(t, http.MethodPut, "/api/v1/socket/paused", `{"paused":true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !sock.Paused() {
		t.Error("socket not paused")
	}
	if got := decode[map[string]any](t, body); got["paused"] != true {
		t.Errorf("body = %v", got)
	}

	if resp, _ := f.do(t, http.MethodPut, "/api/v1/socket/paused", `{}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing field status = %d, want 400", resp.StatusCode)
	}

	f = newFixture(t, nil)
	if resp, _ := f.do(t, http.MethodPut, "/api/v1/socket/paused", `{"paused":false}`); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("no socket status = %d, want 503", resp.StatusCode)
	}
}

// =============================================================================
// WebSocket relay
// =============================================================================

func dialWS(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

func subscribe(t *testing.T, conn *websocket.Conn, channels ...string) {
	t.Helper()
	err := conn.WriteJSON(WSMessage{Type: WSTypeSubscribe, ID: "sub-1", Payload: WSSubscribePayload{Channels: channels}})
	if err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if msg := readWS(t, conn); msg.Type != WSTypeResponse || msg.ID != "sub-1" {
		t.Fatalf("subscribe reply = %+v", msg)
	}
}

func TestWebSocket_RelaysEntityUpdates(t *testing.T) {
	f := newFixture(t, nil)
	conn := dialWS(t, f)
	subscribe(t, conn, EntityChannel("light.a"))

	f.cache.Receive("light.b", &entity.State{EntityID: "light.b", State: "on"}, nil)
	f.cache.Receive("light.a", &entity.State{EntityID: "light.a", State: "on"}, &entity.State{EntityID: "light.a", State: "off"})

	msg := readWS(t, conn)
	if msg.Type != WSTypeEvent || msg.EventType != "entity:light.a" {
		t.Fatalf("event = %+v", msg)
	}
	payload, _ := msg.Payload.(map[string]any) //nolint:errcheck // checked below
	if payload["entity_id"] != "light.a" {
		t.Errorf("payload = %v", msg.Payload)
	}
	newState, _ := payload["new_state"].(map[string]any) //nolint:errcheck // checked below
	if newState["state"] != "on" {
		t.Errorf("new_state = %v", payload["new_state"])
	}
}

func TestWebSocket_StateChangedChannel(t *testing.T) {
	f := newFixture(t, nil)
	conn := dialWS(t, f)
	subscribe(t, conn, ChannelStateChanged)

	f.cache.Receive("sensor.t", &entity.State{EntityID: "sensor.t", State: "20"}, nil)
	f.cache.Receive("sensor.t", nil, &entity.State{EntityID: "sensor.t", State: "20"})

	first := readWS(t, conn)
	second := readWS(t, conn)
	if first.EventType != ChannelStateChanged || second.EventType != ChannelStateChanged {
		t.Fatalf("events = %+v, %+v", first, second)
	}
	removed, _ := second.Payload.(map[string]any) //nolint:errcheck // checked below
	if removed["new_state"] != nil {
		t.Errorf("removal new_state = %v, want null", removed["new_state"])
	}
}

func TestWebSocket_RegistryUpdated(t *testing.T) {
	f := newFixture(t, nil)
	f.cache.Seed([]*entity.State{{EntityID: "light.a"}})
	conn := dialWS(t, f)
	subscribe(t, conn, ChannelRegistryUpdated)

	f.cache.SignalRegistryUpdate()
	f.cache.SignalRegistryUpdate()

	msg := readWS(t, conn)
	if msg.EventType != ChannelRegistryUpdated {
		t.Fatalf("event = %+v", msg)
	}
	payload, _ := msg.Payload.(map[string]any) //nolint:errcheck // checked below
	if payload["entity_count"] != float64(1) {
		t.Errorf("payload = %v", msg.Payload)
	}
}

func TestWebSocket_PingAndUnknown(t *testing.T) {
	f := newFixture(t, nil)
	conn := dialWS(t, f)

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if msg := readWS(t, conn); msg.Type != WSTypePong || msg.ID != "p1" {
		t.Errorf("reply = %+v, want pong", msg)
	}

	if err := conn.WriteJSON(WSMessage{Type: "bogus", ID: "b1"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if msg := readWS(t, conn); msg.Type != WSTypeError {
		t.Errorf("reply = %+v, want error", msg)
	}

	if err := conn.WriteJSON(WSMessage{Type: WSTypeSubscribe, ID: "s1"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if msg := readWS(t, conn); msg.Type != WSTypeError {
		t.Errorf("empty subscribe reply = %+v, want error", msg)
	}
}

func TestHub_ClientCount(t *testing.T) {
	f := newFixture(t, nil)
	conn := dialWS(t, f)
	subscribe(t, conn, ChannelStateChanged)

	if got := f.srv.hub.ClientCount(); got != 1 {
		t.Errorf("ClientCount() = %d, want 1", got)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for f.srv.hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client not unregistered after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
