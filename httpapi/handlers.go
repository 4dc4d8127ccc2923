package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/HarborLabs/playbook/autosave"
	"github.com/HarborLabs/playbook/engine"
	"github.com/HarborLabs/playbook/events"
	"github.com/HarborLabs/playbook/persistence"
	"github.com/HarborLabs/playbook/snapshotstore"
	"github.com/HarborLabs/playbook/types"
	"github.com/HarborLabs/playbook/version"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeEngineError maps engine errors to HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrOutOfRange),
		errors.Is(err, engine.ErrStepNotReachable),
		errors.Is(err, engine.ErrBranchNotFound):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, engine.ErrEmptySkipReason):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, engine.ErrExecutionFinished):
		writeError(w, http.StatusGone, err)
	case errors.Is(err, engine.ErrSchemaViolation):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

var errExecutionNotFound = errors.New("execution not found")

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.GetVersion(),
	})
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, _ *http.Request) {
	ids, err := s.repo.ListWorkflows()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"workflows": ids})
}

func (s *Server) handleCreateExecution(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkflowID string `json:"workflow_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	def, err := s.repo.LoadWorkflow(req.WorkflowID)
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	sess, err := s.openSession(def.ID, func(bus *events.Bus, saver *autosave.Saver) (*engine.Engine, error) {
		return engine.New(def,
			engine.WithEventBus(bus),
			engine.WithPersister(saver),
			engine.WithComponents(s.components),
		)
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	sess.eng.Start()
	writeJSON(w, http.StatusCreated, sess.eng.Snapshot())
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if sess, ok := s.lookupSession(id); ok {
		writeJSON(w, http.StatusOK, sess.eng.Snapshot())
		return
	}

	// Not live: fall back to the snapshot store.
	snap, err := s.store.Load(r.Context(), id)
	if errors.Is(err, snapshotstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, errExecutionNotFound)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleResumeExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.lookupSession(id); ok {
		writeError(w, http.StatusConflict, errors.New("execution already live"))
		return
	}

	// The request body is optional; clients that track the snapshot
	// version they last rendered send it to detect a stale view.
	var req struct {
		LastSeenVersion int64 `json:"last_seen_version"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	sess, err := s.resumeSession(r.Context(), id, req.LastSeenVersion)
	switch {
	case errors.Is(err, snapshotstore.ErrNotFound):
		writeError(w, http.StatusNotFound, errExecutionNotFound)
	case errors.Is(err, autosave.ErrStaleSnapshot):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, persistence.ErrWorkflowNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		writeJSON(w, http.StatusOK, sess.eng.Snapshot())
	}
}

func (s *Server) handleExitExecution(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, errExecutionNotFound)
		return
	}

	if err := sess.eng.Exit(r.Context()); err != nil {
		writeEngineError(w, err)
		return
	}
	snap := sess.eng.Snapshot()
	s.closeSession(r.Context(), snap.ExecutionID)
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, errExecutionNotFound)
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := sess.eng.HandleUserMessage(req.Text); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.eng.Snapshot())
}

func (s *Server) handleButton(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, errExecutionNotFound)
		return
	}

	var req struct {
		Label string `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := sess.eng.SelectButton(req.Label); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.eng.Snapshot())
}

func (s *Server) handleComponent(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, errExecutionNotFound)
		return
	}

	var req struct {
		Values map[string]types.Value `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := sess.eng.SubmitComponentValue(req.Values); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.eng.Snapshot())
}

func (s *Server) handleGoTo(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, errExecutionNotFound)
		return
	}

	var req struct {
		Index int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := sess.eng.GoTo(req.Index); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.eng.Snapshot())
}

// stepOrdinal parses the {ordinal} path segment.
func stepOrdinal(r *http.Request) (int, error) {
	return strconv.Atoi(r.PathValue("ordinal"))
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, errExecutionNotFound)
		return
	}
	ordinal, err := stepOrdinal(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := sess.eng.Complete(ordinal); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.eng.Snapshot())
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, errExecutionNotFound)
		return
	}
	ordinal, err := stepOrdinal(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := sess.eng.Skip(ordinal, req.Reason); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.eng.Snapshot())
}

func (s *Server) handleSnooze(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, errExecutionNotFound)
		return
	}
	ordinal, err := stepOrdinal(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req struct {
		Until time.Time `json:"until"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := sess.eng.Snooze(ordinal, req.Until); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.eng.Snapshot())
}

// handleProgress summarizes step dispositions for the metrics panel.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, errExecutionNotFound)
		return
	}

	snap := sess.eng.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"execution_id": snap.ExecutionID,
		"workflow_id":  snap.WorkflowID,
		"status":       snap.Status,
		"progress":     sess.eng.Progress(),
		"completed":    len(snap.Completed),
		"skipped":      len(snap.Skipped),
		"snoozed":      len(snap.Snoozed),
	})
}

func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, errExecutionNotFound)
		return
	}
	ordinal, err := stepOrdinal(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"artifacts": sess.eng.Artifacts(ordinal),
	})
}
