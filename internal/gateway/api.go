package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/dbarchiver/internal/cron"
	"github.com/flemzord/dbarchiver/internal/provider"
)

// handleListJobs returns the status of every scheduled job.
func (g *Gateway) handleListJobs() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.jobs == nil {
			writeError(w, http.StatusServiceUnavailable, "job runner not available")
			return
		}
		writeJSON(w, http.StatusOK, g.jobs.Jobs())
	}
}

// handleRunJob triggers a run of the named job outside its schedule.
func (g *Gateway) handleRunJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.jobs == nil {
			writeError(w, http.StatusServiceUnavailable, "job runner not available")
			return
		}

		name := chi.URLParam(r, "name")
		err := g.jobs.Trigger(name)
		switch {
		case err == nil:
			g.logger.Info("gateway: job triggered", "job", name, "remote_addr", r.RemoteAddr)
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "job": name})
		case errors.Is(err, cron.ErrUnknownJob):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, cron.ErrJobRunning):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, cron.ErrNotRunning):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
	}
}

type providerJSON struct {
	Name         string   `json:"name"`
	Aliases      []string `json:"aliases,omitempty"`
	Description  string   `json:"description,omitempty"`
	Capabilities string   `json:"capabilities"`
}

// handleListProviders lists the providers compiled into the binary.
func (g *Gateway) handleListProviders() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		infos := provider.List()
		out := make([]providerJSON, 0, len(infos))
		for _, info := range infos {
			out = append(out, providerJSON{
				Name:         info.Name,
				Aliases:      info.Aliases,
				Description:  info.Description,
				Capabilities: info.Capabilities().String(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleReloadConfig triggers a hot-reload of the configuration.
func (g *Gateway) handleReloadConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.reloader == nil {
			writeError(w, http.StatusServiceUnavailable, "reload not available")
			return
		}
		if err := g.reloader.Reload(r.Context()); err != nil {
			g.logger.Error("gateway: config reload failed", "error", err)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
	}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
