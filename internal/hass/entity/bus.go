package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Kind distinguishes the two ways an entity update can be addressed.
type Kind int

const (
	// KindEntity topics are keyed by the raw entity id.
	KindEntity Kind = iota + 1
	// KindHash topics are keyed by Hash(entity id).
	KindHash
)

func (k Kind) String() string {
	switch k {
	case KindEntity:
		return "entity"
	case KindHash:
		return "hash"
	default:
		return "unknown"
	}
}

// Topic is a publish/subscribe address.
type Topic struct {
	Kind Kind
	Key  string
}

// ByEntity returns the topic for updates to entityID.
func ByEntity(entityID string) Topic {
	return Topic{Kind: KindEntity, Key: entityID}
}

// ByHash returns the hash-keyed topic for updates to entityID.
func ByHash(entityID string) Topic {
	return Topic{Kind: KindHash, Key: Hash(entityID)}
}

// Hash returns the stable content hash of an entity id: lowercase hex SHA-256.
func Hash(entityID string) string {
	sum := sha256.Sum256([]byte(entityID))
	return hex.EncodeToString(sum[:])
}

// Update is delivered to subscribers for each published notification.
// Key is the topic key: the entity id or its hash.
type Update struct {
	Key      string
	EntityID string
	New      *State
	Old      *State
}

// Handler receives updates. Handlers run on the publishing goroutine; a
// blocking handler delays later updates.
type Handler func(Update)

// Subscription is returned by Subscribe; call Unsubscribe to detach.
type Subscription struct {
	ID   string
	once sync.Once
	stop func()
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.stop)
}

type entry struct {
	id string
	fn Handler
}

// Bus is a typed publish/subscribe registry for entity updates.
//
// Thread Safety: all methods are safe for concurrent use. Handlers are
// invoked outside the bus lock, in subscription order.
type Bus struct {
	mu        sync.RWMutex
	topics    map[Topic][]entry
	kinds     map[Kind][]entry
	observers []func(Topic, Update)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		topics: make(map[Topic][]entry),
		kinds:  make(map[Kind][]entry),
	}
}

// Subscribe registers fn for a single topic.
func (b *Bus) Subscribe(topic Topic, fn Handler) *Subscription {
	id := uuid.NewString()
	b.mu.Lock()
	b.topics[topic] = append(b.topics[topic], entry{id: id, fn: fn})
	b.mu.Unlock()

	return &Subscription{ID: id, stop: func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.topics[topic] = remove(b.topics[topic], id)
		if len(b.topics[topic]) == 0 {
			delete(b.topics, topic)
		}
	}}
}

// SubscribeKind registers fn for every topic of the given kind.
func (b *Bus) SubscribeKind(kind Kind, fn Handler) *Subscription {
	id := uuid.NewString()
	b.mu.Lock()
	b.kinds[kind] = append(b.kinds[kind], entry{id: id, fn: fn})
	b.mu.Unlock()

	return &Subscription{ID: id, stop: func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.kinds[kind] = remove(b.kinds[kind], id)
	}}
}

// Observe registers a function called once per Publish, before any handler.
// Observers cannot be removed; they exist for instrumentation and tests.
func (b *Bus) Observe(fn func(Topic, Update)) {
	b.mu.Lock()
	b.observers = append(b.observers, fn)
	b.mu.Unlock()
}

// Publish delivers u to observers, then topic subscribers, then kind subscribers.
func (b *Bus) Publish(topic Topic, u Update) {
	u.Key = topic.Key

	b.mu.RLock()
	observers := slices.Clone(b.observers)
	handlers := make([]Handler, 0, len(b.topics[topic])+len(b.kinds[topic.Kind]))
	for _, e := range b.topics[topic] {
		handlers = append(handlers, e.fn)
	}
	for _, e := range b.kinds[topic.Kind] {
		handlers = append(handlers, e.fn)
	}
	b.mu.RUnlock()

	for _, fn := range observers {
		fn(topic, u)
	}
	for _, fn := range handlers {
		fn(u)
	}
}

// SubscriberCount returns the number of handlers bound to topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

func remove(entries []entry, id string) []entry {
	out := entries[:0]
	for _, e := range entries {
		if e.id != id {
			out = append(out, e)
		}
	}
	return out
}
