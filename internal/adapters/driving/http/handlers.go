package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/keystone-labs/propsync-core/internal/core/domain"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse represents a simple status response
type StatusResponse struct {
	Status string `json:"status"`
}

// VersionResponse represents the API version response
type VersionResponse struct {
	Version string `json:"version"`
}

// Health endpoints

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	if s.lock != nil {
		if err := s.lock.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "lock backend unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

// Sync endpoints

// handleTriggerSync runs a full sync synchronously and returns the finished
// run. A failed run still returns 200 with the run body: the run record
// carries its own status and error for the operator.
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	entityType, ok := s.entityFromPath(w, r)
	if !ok {
		return
	}

	run, err := s.reconciler.RunFullSync(r.Context(), entityType, domain.TriggerManual)
	s.writeRunResult(w, run, err)
}

// updateRequest optionally narrows an update-phase re-run to specific keys.
type updateRequest struct {
	Keys []string `json:"keys"`
}

func (s *Server) handleTriggerPhase(w http.ResponseWriter, r *http.Request) {
	entityType, ok := s.entityFromPath(w, r)
	if !ok {
		return
	}

	var run *domain.SyncRun
	var err error
	switch phase := r.PathValue("phase"); phase {
	case "additions":
		run, err = s.reconciler.RunAdditionsOnly(r.Context(), entityType)
	case "updates":
		var req updateRequest
		if r.Body != nil && r.ContentLength != 0 {
			if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}
		run, err = s.reconciler.RunUpdatesOnly(r.Context(), entityType, req.Keys)
	case "deletions":
		run, err = s.reconciler.RunDeletionsOnly(r.Context(), entityType)
	default:
		writeError(w, http.StatusBadRequest, "unknown phase: "+phase)
		return
	}
	s.writeRunResult(w, run, err)
}

func (s *Server) writeRunResult(w http.ResponseWriter, run *domain.SyncRun, err error) {
	switch {
	case errors.Is(err, domain.ErrRunInProgress):
		writeError(w, http.StatusConflict, "a run is already in progress for this entity type")
	case err != nil && run == nil:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, run)
	}
}

// Observability endpoints

func (s *Server) handleEntityHealth(w http.ResponseWriter, r *http.Request) {
	entityType, ok := s.entityFromPath(w, r)
	if !ok {
		return
	}

	state, err := s.health.CurrentHealth(r.Context(), entityType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute health")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	entityType, ok := s.entityFromPath(w, r)
	if !ok {
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, 100)
	}

	runs, err := s.health.RunHistory(r.Context(), entityType, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*domain.SyncRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// entityFromPath parses the {entity} path segment, writing a 404 for
// entity types the engine does not reconcile.
func (s *Server) entityFromPath(w http.ResponseWriter, r *http.Request) (domain.EntityType, bool) {
	entityType, err := domain.ParseEntityType(r.PathValue("entity"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown entity type")
		return "", false
	}
	return entityType, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
