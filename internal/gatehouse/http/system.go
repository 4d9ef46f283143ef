package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/gatehouse/store"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/aussiebroadwan/gatehouse/pkg/ratelimit"
)

// HealthResponse is the body returned by the health probes.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`

	// Checks is present on /readyz only.
	Checks map[string]string `json:"checks,omitempty"`
}

// LivezHandler is the liveness probe. It answers 200 whenever the process
// is up; dependency health belongs to /readyz.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ReadyzHandler is the readiness probe: 200 when the backing store
// answers, 503 otherwise.
func ReadyzHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"database": "ok"}
		status := "ok"
		statusCode := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks["database"] = "error: " + err.Error()
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, statusCode, HealthResponse{
			Status: status,
			Checks: checks,
		})
	}
}

// MetricsHandler reports the limiter's running counters.
func MetricsHandler(limiter *ratelimit.Limiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if limiter == nil {
			httpx.WriteJSON(w, http.StatusOK, ratelimit.Report{})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, limiter.Metrics().Snapshot())
	}
}
