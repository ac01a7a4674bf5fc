package api

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-hass/internal/hass/entity"
)

const (
	defaultNextStateTimeout = 30 * time.Second
	maxNextStateTimeout     = 60 * time.Second
)

// entityResponse is one entity's current and previous snapshot.
type entityResponse struct {
	EntityID string        `json:"entity_id"`
	UniqueID string        `json:"unique_id,omitempty"`
	Hash     string        `json:"hash"`
	Current  *entity.State `json:"current"`
	Previous *entity.State `json:"previous"`
}

// handleListEntities returns every tracked entity's current snapshot,
// sorted by id. ?domain= filters by domain.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Query().Get("domain")

	master := s.entities.MasterState()
	states := make([]*entity.State, 0, len(master))
	for id, st := range master {
		if domain != "" && entity.Domain(id) != domain {
			continue
		}
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].EntityID < states[j].EntityID })

	writeJSON(w, http.StatusOK, map[string]any{
		"entities": states,
		"count":    len(states),
	})
}

// handleGetEntity returns one tracked entity.
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.entities.Tracked(id) {
		writeNotFound(w, "entity not tracked: "+id)
		return
	}

	ref := s.entities.ByID(id)
	writeJSON(w, http.StatusOK, entityResponse{
		EntityID: id,
		UniqueID: ref.UniqueID,
		Hash:     entity.Hash(id),
		Current:  s.entities.Current(id),
		Previous: s.entities.Previous(id),
	})
}

// handleNextState long-polls for the entity's next update. It answers
// 204 when timeout_ms elapses first.
func (s *Server) handleNextState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	timeout := defaultNextStateTimeout
	if raw := r.URL.Query().Get("timeout_ms"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			writeBadRequest(w, "timeout_ms must be a positive integer")
			return
		}
		timeout = time.Duration(ms) * time.Millisecond
	}
	if timeout > maxNextStateTimeout {
		timeout = maxNextStateTimeout
	}

	next := s.entities.NextState(r.Context(), id, timeout)
	if next == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

// handleGetByUniqueID resolves a registry unique id to its entity.
func (s *Server) handleGetByUniqueID(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	ref, ok := s.entities.ByUniqueID(uid)
	if !ok {
		writeNotFound(w, "unknown unique id: "+uid)
		return
	}

	writeJSON(w, http.StatusOK, entityResponse{
		EntityID: ref.EntityID,
		UniqueID: ref.UniqueID,
		Hash:     entity.Hash(ref.EntityID),
		Current:  ref.State(),
		Previous: ref.Previous(),
	})
}
