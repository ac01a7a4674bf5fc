package entity

import (
	"context"
	"time"
)

// Ref is a lightweight handle to one entity. It holds no state of its own;
// every read resolves through the owning Cache.
type Ref struct {
	EntityID string
	UniqueID string
	cache    *Cache
}

// Valid reports whether the ref is bound to a cache.
func (r Ref) Valid() bool {
	return r.cache != nil && r.EntityID != ""
}

// State returns the entity's current snapshot.
func (r Ref) State() *State {
	if r.cache == nil {
		return nil
	}
	return r.cache.Current(r.EntityID)
}

// Previous returns the entity's previous snapshot.
func (r Ref) Previous() *State {
	if r.cache == nil {
		return nil
	}
	return r.cache.Previous(r.EntityID)
}

// NextState waits for the entity's next update. See Cache.NextState.
func (r Ref) NextState(ctx context.Context, timeout time.Duration) *State {
	if r.cache == nil {
		return nil
	}
	return r.cache.NextState(ctx, r.EntityID, timeout)
}

// OnUpdate subscribes fn to this entity's updates.
func (r Ref) OnUpdate(fn func(newState, oldState *State)) *Subscription {
	if r.cache == nil {
		return nil
	}
	return r.cache.bus.Subscribe(ByEntity(r.EntityID), func(u Update) {
		fn(u.New, u.Old)
	})
}
