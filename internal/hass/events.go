package hass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/gray-logic-hass/internal/hass/entity"
	"github.com/nerrad567/gray-logic-hass/internal/hass/socket"
)

// registryListType is the socket command returning the entity registry.
const registryListType = "config/entity_registry/list"

// handleStateChanged feeds a state_changed event into the cache.
func (r *Runtime) handleStateChanged(ev socket.Event) {
	id, newState, oldState, err := decodeStateChanged(ev.Data)
	if err != nil {
		r.logger.Warn("dropping state_changed event", "error", err)
		return
	}
	r.cache.Receive(id, newState, oldState)
}

func (r *Runtime) handleRegistryEvent(socket.Event) {
	r.cache.SignalRegistryUpdate()
}

// onRegistryUpdated runs after the cache's debounce window. It reloads the
// unique-id index in the background; overlapping refreshes are skipped.
func (r *Runtime) onRegistryUpdated() {
	if !r.registryBusy.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer r.registryBusy.Store(false)
		ctx, cancel := context.WithTimeout(r.base(), r.cfg.RequestTimeoutDuration())
		defer cancel()
		if err := r.RefreshRegistry(ctx); err != nil {
			r.logger.Warn("entity registry refresh failed", "error", err)
		}
	}()
}

// registryHook loads the unique-id index once at start-up. Failure is not
// fatal: lookups by unique id miss until the next registry event.
func (r *Runtime) registryHook(ctx context.Context) error {
	if !r.socket.IsConnected() {
		r.logger.Debug("socket not connected, skipping entity registry load")
		return nil
	}
	if err := r.RefreshRegistry(ctx); err != nil {
		r.logger.Warn("entity registry load failed", "error", err)
	}
	return nil
}

// RefreshRegistry fetches the entity registry over the socket and rebuilds
// the cache's unique-id index.
func (r *Runtime) RefreshRegistry(ctx context.Context) error {
	raw, err := r.socket.SendMessage(ctx, map[string]any{"type": registryListType}, true)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRegistryUnavailable, err)
	}
	if len(raw) == 0 {
		// Mock socket.
		return nil
	}

	var entries []entity.RegistryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("%w: decoding registry: %w", ErrRegistryUnavailable, err)
	}
	r.cache.SetRegistry(entries)
	r.registryLoaded.Store(true)
	r.logger.Debug("entity registry loaded", "entries", len(entries))
	return nil
}

// RegistryLoaded reports whether the unique-id index has been loaded at
// least once.
func (r *Runtime) RegistryLoaded() bool {
	return r.registryLoaded.Load()
}

func decodeStateChanged(data json.RawMessage) (string, *entity.State, *entity.State, error) {
	var payload socket.StateChangedData
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", nil, nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if payload.EntityID == "" {
		return "", nil, nil, fmt.Errorf("%w: missing entity_id", ErrInvalidEvent)
	}
	newState, err := decodeState(payload.NewState)
	if err != nil {
		return "", nil, nil, err
	}
	oldState, err := decodeState(payload.OldState)
	if err != nil {
		return "", nil, nil, err
	}
	return payload.EntityID, newState, oldState, nil
}

// decodeState returns nil for an absent or null state.
func decodeState(raw json.RawMessage) (*entity.State, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var s entity.State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	return &s, nil
}
