package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		if s.metrics != nil {
			r.Handle("/metrics", s.metrics)
		}

		r.Route("/entities", func(r chi.Router) {
			r.Get("/", s.handleListEntities)
			r.Get("/{id}", s.handleGetEntity)
			r.Get("/{id}/next", s.handleNextState)
		})
		r.Get("/unique/{uid}", s.handleGetByUniqueID)

		r.Route("/services", func(r chi.Router) {
			r.Get("/", s.handleListServices)
			r.Post("/{domain}/{service}", s.handleCallService)
		})
		r.Get("/calls", s.handleListCalls)

		r.Put("/socket/paused", s.handleSetSocketPaused)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns liveness plus whether the runtime reached ready.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "starting"
	if s.runtime.Ready() {
		status = "ok"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"ready":   s.runtime.Ready(),
		"version": s.version,
	})
}
