package gateway

import (
	"net/http"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status string   `json:"status"` // "ok" or "degraded"
	Jobs   int      `json:"jobs"`
	Failed []string `json:"failed,omitempty"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 200 when every job's last run succeeded (or has not run yet) and
// 503 when at least one last run failed.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok"}

		if g.jobs != nil {
			statuses := g.jobs.Jobs()
			resp.Jobs = len(statuses)
			for _, st := range statuses {
				if st.LastError != "" {
					resp.Failed = append(resp.Failed, st.Name)
				}
			}
		}

		code := http.StatusOK
		if len(resp.Failed) > 0 {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}
