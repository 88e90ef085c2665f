package api

import (
	"net/http"

	"github.com/storymint/mint-pipeline/internal/store"
)

// HealthResponse reports the datastore connector's state, including a
// live latency probe.
type HealthResponse struct {
	Success   bool    `json:"success"`
	Status    string  `json:"status"`
	Connected bool    `json:"connected"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
	LastError string  `json:"last_error,omitempty"`
}

// HealthHandler returns the health check handler.
func HealthHandler(connector *store.Connector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Success: true, Status: "healthy"}

		latency, err := connector.MeasureLatency(r.Context())
		if err != nil {
			resp.Status = "degraded"
		} else {
			resp.LatencyMs = float64(latency.Microseconds()) / 1000
		}
		resp.Connected = connector.Connected()
		if lastErr := connector.LastError(); lastErr != nil {
			resp.LastError = lastErr.Error()
		}

		status := http.StatusOK
		if !resp.Connected {
			status = http.StatusServiceUnavailable
		}
		respondJSON(w, status, resp)
	}
}
