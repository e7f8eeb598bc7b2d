package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/dbarchiver/internal/cron"
	"github.com/flemzord/dbarchiver/internal/metrics"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime  int64            `json:"uptime_seconds"`
	Metrics metrics.Snapshot `json:"metrics"`
	Jobs    []cron.JobStatus `json:"jobs"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime: int64(time.Since(g.startedAt).Seconds()),
			Jobs:   []cron.JobStatus{},
		}
		if g.metrics != nil {
			resp.Metrics = g.metrics.Snapshot()
		}
		if g.jobs != nil {
			resp.Jobs = g.jobs.Jobs()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
