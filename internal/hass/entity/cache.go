package entity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultDebounceInterval is used when Options.DebounceInterval is zero.
const DefaultDebounceInterval = 50 * time.Millisecond

// Options configures a Cache.
type Options struct {
	// DebounceInterval is the quiet window for registry-change notifications.
	DebounceInterval time.Duration

	// Logger receives cache diagnostics. Nil uses a no-op logger.
	Logger Logger

	// Metrics receives update counters. Nil records nothing.
	Metrics MetricsRecorder
}

type registryListener struct {
	id string
	fn func()
}

// Cache holds the current and previous state of every tracked entity.
//
// Receive is the single mutation path for per-entity state. Snapshots
// returned by Current, Previous and MasterState are the stored pointers,
// not copies: callers must not mutate them.
//
// Thread Safety: all methods are safe for concurrent use.
type Cache struct {
	mu       sync.RWMutex
	current  map[string]*State
	previous map[string]*State
	// uniqueIDs aliases unique_id to entity_id. It never holds state.
	uniqueIDs map[string]string

	// emitMu serialises store+publish so subscribers observe updates for an
	// entity in Receive call order. Handlers must not call Receive.
	emitMu sync.Mutex

	bus      *Bus
	debounce *debouncer

	listenersMu sync.RWMutex
	listeners   []registryListener

	logger  Logger
	metrics MetricsRecorder
}

// NewCache creates an empty cache.
func NewCache(opts Options) *Cache {
	interval := opts.DebounceInterval
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}
	c := &Cache{
		current:   make(map[string]*State),
		previous:  make(map[string]*State),
		uniqueIDs: make(map[string]string),
		bus:       NewBus(),
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	if c.metrics == nil {
		c.metrics = noopMetrics{}
	}
	c.debounce = newDebouncer(interval, c.emitRegistryUpdate)
	return c
}

// Bus returns the update bus. Subscribe to ByEntity or ByHash topics.
func (c *Cache) Bus() *Bus {
	return c.bus
}

// Close stops any pending registry notification.
func (c *Cache) Close() {
	c.debounce.Stop()
}

// Receive ingests one state change. newState becomes current and oldState
// becomes previous; the cache does not diff. Two notifications follow, in
// order: one on ByEntity(entityID), then one on ByHash(entityID).
func (c *Cache) Receive(entityID string, newState, oldState *State) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	c.current[entityID] = newState
	c.previous[entityID] = oldState
	c.mu.Unlock()

	c.metrics.IncEntityUpdate()

	u := Update{EntityID: entityID, New: newState, Old: oldState}
	c.bus.Publish(ByEntity(entityID), u)
	c.bus.Publish(ByHash(entityID), u)
}

// Seed stores a bulk snapshot as current state without notifying subscribers.
// Previous snapshots are left untouched.
func (c *Cache) Seed(states []*State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range states {
		if s == nil || s.EntityID == "" {
			continue
		}
		c.current[s.EntityID] = s
	}
	c.logger.Debug("entity cache seeded", "count", len(states), "tracked", len(c.current))
}

// Current returns the stored current snapshot, or nil for an unseen entity.
func (c *Cache) Current(entityID string) *State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current[entityID]
}

// Previous returns the snapshot that was current before the most recent
// update, or nil if the entity has never been updated.
func (c *Cache) Previous(entityID string) *State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.previous[entityID]
}

// Tracked reports whether the entity has been seeded or updated.
func (c *Cache) Tracked(entityID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.current[entityID]
	return ok
}

// MasterState returns every tracked entity. The map is new; its values are
// the same pointers Current returns.
func (c *Cache) MasterState() map[string]*State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]*State, len(c.current))
	for id, s := range c.current {
		out[id] = s
	}
	return out
}

// IDs returns all tracked entity ids, sorted.
func (c *Cache) IDs() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.current))
	for id := range c.current {
		ids = append(ids, id)
	}
	c.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of tracked entities.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.current)
}

// SetRegistry replaces the unique_id index. Entries without a unique id
// are skipped.
func (c *Cache) SetRegistry(entries []RegistryEntry) {
	index := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.UniqueID == "" || e.EntityID == "" {
			continue
		}
		index[e.UniqueID] = e.EntityID
	}

	c.mu.Lock()
	c.uniqueIDs = index
	c.mu.Unlock()

	c.logger.Debug("entity registry index rebuilt", "entries", len(index))
}

// ByID returns a ref for entityID. The ref resolves lazily, so it is valid
// even before the entity is tracked.
func (c *Cache) ByID(entityID string) Ref {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Ref{EntityID: entityID, UniqueID: c.uniqueIDFor(entityID), cache: c}
}

// ByUniqueID resolves a unique id through the registry index.
// Unknown ids return false.
func (c *Cache) ByUniqueID(uniqueID string) (Ref, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entityID, ok := c.uniqueIDs[uniqueID]
	if !ok {
		return Ref{}, false
	}
	return Ref{EntityID: entityID, UniqueID: uniqueID, cache: c}, true
}

// uniqueIDFor must be called with mu held.
func (c *Cache) uniqueIDFor(entityID string) string {
	for uid, id := range c.uniqueIDs {
		if id == entityID {
			return uid
		}
	}
	return ""
}

// NextState waits for the next update to entityID. It returns the new
// snapshot, or nil if timeout elapses or ctx is cancelled first.
// The subscription is removed before returning.
func (c *Cache) NextState(ctx context.Context, entityID string, timeout time.Duration) *State {
	next := make(chan *State, 1)
	sub := c.bus.Subscribe(ByEntity(entityID), func(u Update) {
		select {
		case next <- u.New:
		default:
		}
	})
	defer sub.Unsubscribe()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s := <-next:
		return s
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return nil
	}
}

// SignalRegistryUpdate records a raw registry-change signal. Bursts collapse
// into one entity_registry_updated notification once the debounce window
// passes without a further signal.
func (c *Cache) SignalRegistryUpdate() {
	c.debounce.Trigger()
}

// OnRegistryUpdate registers fn for debounced registry notifications and
// returns a function that removes it.
func (c *Cache) OnRegistryUpdate(fn func()) func() {
	id := uuid.NewString()
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, registryListener{id: id, fn: fn})
	c.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.listenersMu.Lock()
			defer c.listenersMu.Unlock()
			out := c.listeners[:0]
			for _, l := range c.listeners {
				if l.id != id {
					out = append(out, l)
				}
			}
			c.listeners = out
		})
	}
}

func (c *Cache) emitRegistryUpdate() {
	c.listenersMu.RLock()
	fns := make([]func(), 0, len(c.listeners))
	for _, l := range c.listeners {
		fns = append(fns, l.fn)
	}
	c.listenersMu.RUnlock()

	c.metrics.IncRegistryUpdate()
	c.logger.Debug("entity registry updated", "listeners", len(fns))
	for _, fn := range fns {
		fn()
	}
}
