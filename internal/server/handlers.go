package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/artifact"
	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/orchestrator"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"runs":   s.registry.Count(),
	})
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	cocktailName := strings.ToUpper(strings.TrimSpace(req.Cocktail))
	if _, ok := s.coord.Catalog().Get(cocktailName); !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown cocktail %q", req.Cocktail))
		return
	}

	runID := s.coord.NewAPIRunID(cocktailName)

	// Prepare blocks until the run directory and the initial status.json
	// exist, so a status poll immediately after this response is well-formed.
	run, err := s.coord.Prepare(runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("prepare run: %v", err))
		return
	}

	ctx, cancel := context.WithCancelCause(s.baseCtx)
	rs := &RunState{
		RunID:     runID,
		Cancel:    cancel,
		StartedAt: time.Now().UTC(),
	}
	if err := s.registry.Register(runID, rs); err != nil {
		cancel(nil)
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	go func() {
		defer cancel(nil)
		err := s.coord.Execute(ctx, run, orchestrator.RunRequest{
			Query:    req.Query,
			Cocktail: cocktailName,
		})
		rs.SetResult(err)
		if err != nil {
			s.logger.Printf("run %s failed: %v", runID, err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(StartRunResponse{RunID: runID, Status: "accepted"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	raw, ok := s.readArtifact(w, runID, orchestrator.ArtifactStatus)
	if !ok {
		return
	}

	// Merge the registry's view over the on-disk status so pollers see
	// server-side liveness without waiting for the next status write.
	var status map[string]any
	if err := json.Unmarshal(raw, &status); err != nil {
		writeError(w, http.StatusInternalServerError, "status artifact does not parse")
		return
	}
	if rs, found := s.registry.Get(runID); found {
		done, errMsg := rs.Snapshot()
		status["running"] = !done
		status["started_at"] = rs.StartedAt.Format(time.RFC3339)
		if errMsg != "" {
			status["error"] = errMsg
		}
		// Once a poller has seen the terminal result the registry entry has
		// served its purpose; evict it so the map stays bounded.
		if done {
			s.registry.Remove(runID)
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	files, err := s.coord.Store().List(runID)
	if err != nil {
		s.writeStoreError(w, runID, err)
		return
	}
	writeJSON(w, http.StatusOK, ArtifactListResponse{RunID: runID, Files: files})
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	name := r.PathValue("name")
	raw, ok := s.readArtifact(w, runID, name)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	rs, ok := s.registry.Get(runID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("run %s not found", runID))
		return
	}
	rs.Cancel(fmt.Errorf("cancelled via HTTP API"))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// readArtifact loads one artifact, mapping store errors to HTTP statuses.
// Returns false after writing an error response.
func (s *Server) readArtifact(w http.ResponseWriter, runID, name string) ([]byte, bool) {
	raw, err := s.coord.Store().ReadRaw(runID, name)
	if err != nil {
		s.writeStoreError(w, runID, err)
		return nil, false
	}
	return raw, true
}

func (s *Server) writeStoreError(w http.ResponseWriter, runID string, err error) {
	var bad *artifact.BadRunIDError
	if errors.As(err, &bad) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid run id %q", runID))
		return
	}
	if artifact.IsNotFound(err) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
