package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-hass/internal/hass/callproxy"
)

const (
	defaultCallsLimit = 50
	maxCallsLimit     = 500
)

// callResponse is returned by a successful service call.
type callResponse struct {
	Domain   string          `json:"domain"`
	Service  string          `json:"service"`
	Response json.RawMessage `json:"response,omitempty"`
}

// handleListServices returns the hub's service catalog.
func (s *Server) handleListServices(w http.ResponseWriter, _ *http.Request) {
	if s.catalog == nil || !s.catalog.Loaded() {
		writeUnavailable(w, "service catalog not loaded")
		return
	}
	domains := s.catalog.Services()
	writeJSON(w, http.StatusOK, map[string]any{
		"domains": domains,
		"count":   len(domains),
	})
}

// handleCallService routes POST /services/{domain}/{service} through the
// call proxy. The optional JSON body becomes the service data.
func (s *Server) handleCallService(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	service := chi.URLParam(r, "service")

	var params map[string]any
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "body must be a JSON object")
		return
	}

	res, err := s.runtime.Call(r.Context(), domain, service, params)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, callResponse{Domain: domain, Service: service, Response: res})
	case errors.Is(err, callproxy.ErrNotReady):
		writeUnavailable(w, "service surface not ready")
	case errors.Is(err, callproxy.ErrUnknownService):
		writeNotFound(w, "unknown service: "+domain+"."+service)
	default:
		s.logger.Warn("service call failed", "domain", domain, "service", service, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, err.Error())
	}
}

// handleListCalls returns the newest audited service calls.
func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	if s.calls == nil {
		writeUnavailable(w, "call audit log not configured")
		return
	}

	limit := defaultCallsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxCallsLimit)
	}

	calls, err := s.calls.RecentCalls(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing service calls failed", "error", err)
		writeInternalError(w, "failed to list service calls")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"calls": calls,
		"count": len(calls),
	})
}

// handleSetSocketPaused pauses or resumes the socket. While paused, service
// calls are accepted and dropped.
func (s *Server) handleSetSocketPaused(w http.ResponseWriter, r *http.Request) {
	if s.socket == nil {
		writeUnavailable(w, "socket not configured")
		return
	}

	var req struct {
		Paused *bool `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Paused == nil {
		writeBadRequest(w, `body must be {"paused": true|false}`)
		return
	}

	s.socket.SetPaused(*req.Paused)
	s.logger.Info("socket pause changed", "paused", *req.Paused)
	writeJSON(w, http.StatusOK, map[string]any{
		"paused":    s.socket.Paused(),
		"transport": s.runtime.Transport(),
	})
}
