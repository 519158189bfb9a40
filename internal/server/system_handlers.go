package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/aristath/quantfusion/internal/api"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string  `json:"status"`
	Service       string  `json:"service"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	Goroutines    int     `json:"goroutines"`
}

// SystemHandlers serves process level endpoints.
type SystemHandlers struct {
	startedAt time.Time
	stats     func() (float64, float64)
	log       zerolog.Logger
}

// NewSystemHandlers creates system handlers
func NewSystemHandlers(log zerolog.Logger) *SystemHandlers {
	h := &SystemHandlers{
		startedAt: time.Now(),
		log:       log.With().Str("handler", "system").Logger(),
	}
	h.stats = h.getSystemStats
	return h
}

// HandleHealth handles GET /health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.stats()

	api.Respond(w, r, http.StatusOK, HealthResponse{
		Status:        "healthy",
		Service:       "quantfusion",
		Version:       Version,
		UptimeSeconds: api.Round(time.Since(h.startedAt).Seconds()),
		CPUPercent:    api.Round(cpuPercent),
		MemoryPercent: api.Round(memPercent),
		Goroutines:    runtime.NumGoroutine(),
	})
}

// getSystemStats calculates CPU and RAM usage percentages
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	// Get CPU percentage (average across all CPUs, over 100ms for faster response)
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	// Get memory statistics (instant, no blocking)
	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
