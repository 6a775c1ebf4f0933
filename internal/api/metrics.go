package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-karotz/internal/bridges/karotz"
)

// SystemMetrics is the response of GET /system.
type SystemMetrics struct {
	Timestamp     string                   `json:"timestamp"`
	Version       string                   `json:"version"`
	UptimeSeconds int64                    `json:"uptime_seconds"`
	Runtime       RuntimeMetrics           `json:"runtime"`
	WebSocket     WSMetrics                `json:"websocket"`
	Devices       DeviceMetrics            `json:"devices"`
	Bridge        *karotz.BridgeStatistics `json:"bridge,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// DeviceMetrics counts rabbits by availability.
type DeviceMetrics struct {
	Total       int `json:"total"`
	Available   int `json:"available"`
	Unreachable int `json:"unreachable"`
	Sleeping    int `json:"sleeping"`
}

// handleSystem returns process and bridge statistics.
func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{ConnectedClients: s.hub.ClientCount()},
	}

	for _, d := range s.devices.List() {
		m.Devices.Total++
		st := d.State()
		if !st.Available {
			m.Devices.Unreachable++
			continue
		}
		m.Devices.Available++
		if st.Sleeping {
			m.Devices.Sleeping++
		}
	}

	if s.stats != nil {
		st := s.stats.Stats()
		m.Bridge = &st
	}

	writeJSON(w, http.StatusOK, m)
}
