package recorder

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-hass/internal/hass/entity"
	"github.com/nerrad567/gray-logic-hass/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hass/internal/infrastructure/mqtt"
)

// defaultQueueSize bounds updates waiting for the worker.
const defaultQueueSize = 1024

// storeTimeout bounds a single snapshot write.
const storeTimeout = 5 * time.Second

// Source is the part of the entity cache the recorder reads.
type Source interface {
	Bus() *entity.Bus
	OnRegistryUpdate(fn func()) func()
	Len() int
}

// Publisher mirrors state to the broker.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
	PublishEvent(topic string, payload []byte) error
}

// HistoryWriter appends state changes to the time-series store.
type HistoryWriter interface {
	WriteEntityState(entityID, domain, state string, at time.Time)
}

// SnapshotStore persists the last known state pair per entity.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, s database.Snapshot) error
}

// Logger is the logging interface used by the recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Deps holds the sinks. Any sink may be nil.
type Deps struct {
	Source    Source
	MQTT      Publisher
	History   HistoryWriter
	Store     SnapshotStore
	Logger    Logger
	QueueSize int
}

// Recorder copies entity updates into MQTT, InfluxDB and SQLite.
//
// Bus handlers run on the cache's publishing goroutine, so the recorder only
// enqueues there. Run drains the queue. When the queue is full the update
// is dropped and counted.
type Recorder struct {
	deps   Deps
	logger Logger
	topics mqtt.Topics

	queue   chan job
	dropped atomic.Int64

	sub          *entity.Subscription
	stopRegistry func()
	closeOnce    sync.Once
}

type job struct {
	update   entity.Update
	registry bool
	at       time.Time
}

// New subscribes to every entity-keyed notification and registry update.
// Updates queue until Run is called.
func New(deps Deps) *Recorder {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	size := deps.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}

	r := &Recorder{
		deps:   deps,
		logger: logger,
		queue:  make(chan job, size),
	}
	r.sub = deps.Source.Bus().SubscribeKind(entity.KindEntity, func(u entity.Update) {
		r.enqueue(job{update: u, at: time.Now()})
	})
	r.stopRegistry = deps.Source.OnRegistryUpdate(func() {
		r.enqueue(job{registry: true, at: time.Now()})
	})
	return r
}

func (r *Recorder) enqueue(j job) {
	select {
	case r.queue <- j:
	default:
		r.dropped.Add(1)
		r.logger.Warn("recorder queue full, dropping update", "entity_id", j.update.EntityID)
	}
}

// Dropped returns how many updates were discarded on a full queue.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Run processes queued updates until ctx is cancelled, then detaches.
func (r *Recorder) Run(ctx context.Context) error {
	defer r.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-r.queue:
			r.handle(ctx, j)
		}
	}
}

// Drain processes everything currently queued and returns.
func (r *Recorder) Drain(ctx context.Context) {
	for {
		select {
		case j := <-r.queue:
			r.handle(ctx, j)
		default:
			return
		}
	}
}

// Close detaches from the cache. Queued updates are discarded.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		r.sub.Unsubscribe()
		if r.stopRegistry != nil {
			r.stopRegistry()
		}
	})
}

func (r *Recorder) handle(ctx context.Context, j job) {
	if j.registry {
		r.publishRegistry(j.at)
		return
	}
	u := j.update
	r.mirror(u)
	r.history(u, j.at)
	r.snapshot(ctx, u, j.at)
}

// mirror publishes the new state retained. A removed entity clears its
// retained message with an empty payload.
func (r *Recorder) mirror(u entity.Update) {
	if r.deps.MQTT == nil {
		return
	}
	var payload []byte
	if u.New != nil {
		b, err := json.Marshal(u.New)
		if err != nil {
			r.logger.Warn("encoding state for mqtt failed", "entity_id", u.EntityID, "error", err)
			return
		}
		payload = b
	}
	if err := r.deps.MQTT.PublishRetained(r.topics.EntityState(u.EntityID), payload); err != nil {
		r.logger.Debug("mqtt state mirror failed", "entity_id", u.EntityID, "error", err)
	}
}

func (r *Recorder) history(u entity.Update, at time.Time) {
	if r.deps.History == nil || u.New == nil {
		return
	}
	ts := u.New.LastUpdated
	if ts.IsZero() {
		ts = at
	}
	r.deps.History.WriteEntityState(u.EntityID, entity.Domain(u.EntityID), u.New.State, ts)
}

func (r *Recorder) snapshot(ctx context.Context, u entity.Update, at time.Time) {
	if r.deps.Store == nil || u.New == nil {
		return
	}
	current, err := json.Marshal(u.New)
	if err != nil {
		r.logger.Warn("encoding snapshot failed", "entity_id", u.EntityID, "error", err)
		return
	}
	var previous json.RawMessage
	if u.Old != nil {
		if previous, err = json.Marshal(u.Old); err != nil {
			r.logger.Warn("encoding snapshot failed", "entity_id", u.EntityID, "error", err)
			return
		}
	}

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	err = r.deps.Store.SaveSnapshot(storeCtx, database.Snapshot{
		EntityID:  u.EntityID,
		Domain:    entity.Domain(u.EntityID),
		Current:   current,
		Previous:  previous,
		UpdatedAt: at,
	})
	if err != nil {
		r.logger.Warn("saving snapshot failed", "entity_id", u.EntityID, "error", err)
	}
}

type registryEvent struct {
	EventType   string    `json:"event_type"`
	EntityCount int       `json:"entity_count"`
	TimeFired   time.Time `json:"time_fired"`
}

func (r *Recorder) publishRegistry(at time.Time) {
	if r.deps.MQTT == nil {
		return
	}
	payload, err := json.Marshal(registryEvent{
		EventType:   "entity_registry_updated",
		EntityCount: r.deps.Source.Len(),
		TimeFired:   at.UTC(),
	})
	if err != nil {
		return
	}
	if err := r.deps.MQTT.PublishEvent(r.topics.Event("entity_registry_updated"), payload); err != nil {
		r.logger.Debug("mqtt registry event failed", "error", err)
	}
}
