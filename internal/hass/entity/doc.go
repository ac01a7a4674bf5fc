// Package entity holds the live entity state cache.
//
// The Cache keeps one current and at most one previous snapshot per entity
// id. All per-entity mutation goes through Cache.Receive, which publishes
// each update twice on the Bus: first keyed by the raw entity id, then by
// Hash(entity id).
//
// Registry-structure changes arrive as raw signals and are debounced into
// a single entity_registry_updated notification per quiet window.
//
// # Usage
//
//	cache := entity.NewCache(entity.Options{DebounceInterval: 50 * time.Millisecond})
//	sub := cache.Bus().Subscribe(entity.ByEntity("light.kitchen"), func(u entity.Update) {
//	    log.Println(u.New.State)
//	})
//	defer sub.Unsubscribe()
//
//	next := cache.NextState(ctx, "light.kitchen", 5*time.Second)
package entity
