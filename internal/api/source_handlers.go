package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/ingestion-orchestrator/internal/executor"
	"github.com/JakeFAU/ingestion-orchestrator/internal/scheduler"
)

func (s *Server) listSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sources": s.engine.Sources()})
}

func (s *Server) getSource(w http.ResponseWriter, r *http.Request) {
	src, err := s.engine.Source(chi.URLParam(r, "source_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "source not found")
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (s *Server) pauseSource(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "source_id")
	if err := s.engine.PauseSource(sourceID); err != nil {
		writeError(w, http.StatusNotFound, "source not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"source_id": sourceID, "status": "paused"})
}

func (s *Server) resumeSource(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "source_id")
	if err := s.engine.ResumeSource(sourceID); err != nil {
		if errors.Is(err, scheduler.ErrUnknownSource) {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"source_id": sourceID, "status": "active"})
}

// runSource triggers one run immediately, outside the source's schedule.
func (s *Server) runSource(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "source_id")
	run, err := s.engine.RunNow(r.Context(), sourceID)
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrUnknownSource):
			writeError(w, http.StatusNotFound, "source not found")
		case errors.Is(err, executor.ErrRunInProgress):
			writeError(w, http.StatusConflict, "source already has an active run")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	runs, err := s.runs.ListRecentRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID, err := strconv.ParseInt(chi.URLParam(r, "run_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}
