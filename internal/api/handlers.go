package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/obskey/internal/dispatch"
)

const maxExecutionsLimit = 1000

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
	for _, p := range s.dispatcher.Plugins() {
		if p.Kind == dispatch.KindHotkey {
			resp.HotkeyPlugins++
		} else {
			resp.Background++
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, PluginsResponse{Plugins: s.dispatcher.Plugins()})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	ctx, cancel := context.WithTimeout(r.Context(), s.config.TriggerTimeout)
	defer cancel()

	exec, err := s.dispatcher.Trigger(ctx, name)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, TriggerResponse{Execution: exec})
	case errors.Is(err, dispatch.ErrUnknownPlugin):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dispatch.ErrNotTriggerable):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, dispatch.ErrNotRunning):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case exec.ID != "":
		// The plugin ran and failed.
		respondJSON(w, http.StatusBadGateway, TriggerResponse{Execution: exec, Error: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, "timed out waiting for the dispatch loop")
	default:
		s.logger.Error("trigger failed", "plugin", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusServiceUnavailable, "execution journal disabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxExecutionsLimit {
			s.writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 1000")
			return
		}
		limit = n
	}

	execs, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read executions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read executions")
		return
	}
	respondJSON(w, http.StatusOK, ExecutionsResponse{Executions: execs})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.writeError(w, http.StatusServiceUnavailable, "events disabled")
		return
	}

	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "since must be a non-negative integer")
			return
		}
		since = n
	}
	respondJSON(w, http.StatusOK, EventsResponse{Events: s.events.Since(since)})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.dispatcher.Plugins()))
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
