package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hass/internal/hass/entity"
	"github.com/nerrad567/gray-logic-hass/internal/infrastructure/database"
)

// =============================================================================
// Test Helpers
// =============================================================================

type published struct {
	topic    string
	payload  []byte
	retained bool
}

type mockPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (m *mockPublisher) PublishRetained(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, published{topic, payload, true})
	return m.err
}

func (m *mockPublisher) PublishEvent(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, published{topic, payload, false})
	return m.err
}

type historyPoint struct {
	entityID, domain, state string
	at                      time.Time
}

type mockHistory struct {
	points []historyPoint
}

func (m *mockHistory) WriteEntityState(entityID, domain, state string, at time.Time) {
	m.points = append(m.points, historyPoint{entityID, domain, state, at})
}

type mockStore struct {
	saved     []database.Snapshot
	snapshots []database.Snapshot
	err       error
}

func (m *mockStore) SaveSnapshot(_ context.Context, s database.Snapshot) error {
	m.saved = append(m.saved, s)
	return m.err
}

func (m *mockStore) Snapshots(context.Context) ([]database.Snapshot, error) {
	return m.snapshots, m.err
}

func newCache(t *testing.T) *entity.Cache {
	t.Helper()
	c := entity.NewCache(entity.Options{DebounceInterval: 10 * time.Millisecond})
	t.Cleanup(c.Close)
	return c
}

// =============================================================================
// Recorder
// =============================================================================

func TestRecorder_MirrorsEachUpdateOnce(t *testing.T) {
	cache := newCache(t)
	pub := &mockPublisher{}
	hist := &mockHistory{}
	store := &mockStore{}
	rec := New(Deps{Source: cache, MQTT: pub, History: hist, Store: store})
	defer rec.Close()

	changed := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	old := &entity.State{EntityID: "sensor.temp", State: "20.0"}
	cur := &entity.State{EntityID: "sensor.temp", State: "21.5", LastUpdated: changed}
	cache.Receive("sensor.temp", cur, old)

	rec.Drain(context.Background())

	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages, want 1 (hash notification must be ignored)", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.topic != "graylogic/hass/state/sensor.temp" || !msg.retained {
		t.Errorf("message = %+v", msg)
	}
	var decoded entity.State
	if err := json.Unmarshal(msg.payload, &decoded); err != nil || decoded.State != "21.5" {
		t.Errorf("payload = %s (err %v)", msg.payload, err)
	}

	if len(hist.points) != 1 {
		t.Fatalf("history points = %d, want 1", len(hist.points))
	}
	if p := hist.points[0]; p.domain != "sensor" || p.state != "21.5" || !p.at.Equal(changed) {
		t.Errorf("history point = %+v", p)
	}

	if len(store.saved) != 1 {
		t.Fatalf("snapshots saved = %d, want 1", len(store.saved))
	}
	snap := store.saved[0]
	if snap.EntityID != "sensor.temp" || snap.Domain != "sensor" || snap.Previous == nil {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestRecorder_RemovedEntityClearsRetained(t *testing.T) {
	cache := newCache(t)
	pub := &mockPublisher{}
	hist := &mockHistory{}
	store := &mockStore{}
	rec := New(Deps{Source: cache, MQTT: pub, History: hist, Store: store})
	defer rec.Close()

	cache.Receive("light.gone", nil, &entity.State{EntityID: "light.gone", State: "on"})
	rec.Drain(context.Background())

	if len(pub.msgs) != 1 || len(pub.msgs[0].payload) != 0 {
		t.Errorf("messages = %+v, want one empty retained payload", pub.msgs)
	}
	if len(hist.points) != 0 || len(store.saved) != 0 {
		t.Error("removed entity should not be written to history or snapshots")
	}
}

func TestRecorder_NilSinks(t *testing.T) {
	cache := newCache(t)
	rec := New(Deps{Source: cache})
	defer rec.Close()

	cache.Receive("switch.a", &entity.State{EntityID: "switch.a", State: "on"}, nil)
	rec.Drain(context.Background())
}

func TestRecorder_SinkErrorsDoNotStop(t *testing.T) {
	cache := newCache(t)
	pub := &mockPublisher{err: errors.New("broker down")}
	store := &mockStore{err: errors.New("disk full")}
	rec := New(Deps{Source: cache, MQTT: pub, Store: store})
	defer rec.Close()

	cache.Receive("switch.a", &entity.State{EntityID: "switch.a", State: "on"}, nil)
	cache.Receive("switch.b", &entity.State{EntityID: "switch.b", State: "off"}, nil)
	rec.Drain(context.Background())

	if len(pub.msgs) != 2 || len(store.saved) != 2 {
		t.Errorf("published=%d saved=%d, want 2/2", len(pub.msgs), len(store.saved))
	}
}

func TestRecorder_DropsWhenQueueFull(t *testing.T) {
	cache := newCache(t)
	rec := New(Deps{Source: cache, QueueSize: 1})
	defer rec.Close()

	for i := 0; i < 3; i++ {
		cache.Receive("sensor.x", &entity.State{EntityID: "sensor.x"}, nil)
	}
	if got := rec.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}
}

func TestRecorder_RegistryEvent(t *testing.T) {
	cache := newCache(t)
	pub := &mockPublisher{}
	rec := New(Deps{Source: cache, MQTT: pub})
	defer rec.Close()

	cache.Seed([]*entity.State{{EntityID: "light.a"}, {EntityID: "light.b"}})
	cache.SignalRegistryUpdate()
	time.Sleep(80 * time.Millisecond)
	rec.Drain(context.Background())

	if len(pub.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.topic != "graylogic/hass/event/entity_registry_updated" || msg.retained {
		t.Errorf("message = %+v", msg)
	}
	var ev registryEvent
	if err := json.Unmarshal(msg.payload, &ev); err != nil || ev.EntityCount != 2 {
		t.Errorf("payload = %s (err %v)", msg.payload, err)
	}
}

func TestRecorder_RunStopsAndDetaches(t *testing.T) {
	cache := newCache(t)
	pub := &mockPublisher{}
	rec := New(Deps{Source: cache, MQTT: pub})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	cache.Receive("light.a", &entity.State{EntityID: "light.a", State: "on"}, nil)
	deadline := time.Now().Add(time.Second)
	for {
		pub.mu.Lock()
		n := len(pub.msgs)
		pub.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Run() did not process the update")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	cache.Receive("light.a", &entity.State{EntityID: "light.a", State: "off"}, nil)
	rec.Drain(context.Background())
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.msgs) != 1 {
		t.Errorf("messages after Close = %d, want 1", len(pub.msgs))
	}
}

// =============================================================================
// Restore
// =============================================================================

func TestRestore(t *testing.T) {
	cache := newCache(t)
	store := &mockStore{snapshots: []database.Snapshot{
		{EntityID: "light.a", Current: json.RawMessage(`{"entity_id":"light.a","state":"on"}`)},
		{EntityID: "light.bad", Current: json.RawMessage(`not json`)},
		{EntityID: "light.empty", Current: json.RawMessage(`{}`)},
	}}

	var notified int
	sub := cache.Bus().SubscribeKind(entity.KindEntity, func(entity.Update) { notified++ })
	defer sub.Unsubscribe()

	n, err := Restore(context.Background(), store, cache, nil)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Restore() = %d, want 1", n)
	}
	if s := cache.Current("light.a"); s == nil || s.State != "on" {
		t.Errorf("Current(light.a) = %+v", s)
	}
	if notified != 0 {
		t.Errorf("Restore published %d notifications, want 0", notified)
	}
}

func TestRestore_LoadError(t *testing.T) {
	cache := newCache(t)
	if _, err := Restore(context.Background(), &mockStore{err: errors.New("locked")}, cache, nil); err == nil {
		t.Error("Restore() should fail when snapshots cannot be loaded")
	}
}
