package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-hass/internal/hass/entity"
)

// SystemStatus is the response body of GET /status.
type SystemStatus struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	Hub           HubMetrics       `json:"hub"`
	Entities      EntityMetrics    `json:"entities"`
	WebSocket     WSMetrics        `json:"websocket"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// HubMetrics describes the link to the hub.
type HubMetrics struct {
	Ready           bool   `json:"ready"`
	Transport       string `json:"transport"`
	SocketConnected bool   `json:"socket_connected"`
	SocketPaused    bool   `json:"socket_paused"`
	CatalogLoaded   bool   `json:"catalog_loaded"`
}

// EntityMetrics summarises the entity cache.
type EntityMetrics struct {
	Tracked  int            `json:"tracked"`
	ByDomain map[string]int `json:"by_domain"`
}

// WSMetrics contains relay statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// DatabaseMetrics contains SQLite connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleStatus returns a JSON status snapshot of the gateway.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	status := SystemStatus{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Hub: HubMetrics{
			Ready:     s.runtime.Ready(),
			Transport: s.runtime.Transport(),
		},
		Entities: EntityMetrics{
			ByDomain: make(map[string]int),
		},
	}

	if s.socket != nil {
		status.Hub.SocketConnected = s.socket.IsConnected()
		status.Hub.SocketPaused = s.socket.Paused()
	}
	if s.catalog != nil {
		status.Hub.CatalogLoaded = s.catalog.Loaded()
	}

	master := s.entities.MasterState()
	status.Entities.Tracked = len(master)
	for id := range master {
		status.Entities.ByDomain[entity.Domain(id)]++
	}

	if s.hub != nil {
		status.WebSocket.ConnectedClients = s.hub.ClientCount()
	}

	if s.calls != nil {
		dbStats := s.calls.Stats()
		status.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, status)
}
