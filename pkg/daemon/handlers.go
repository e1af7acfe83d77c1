package daemon

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"loom/pkg/protocol"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("daemon: encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, protocol.ErrorResponse{Error: err.Error()})
}

// errStatus maps typed domain errors onto HTTP status codes.
func errStatus(err error) int {
	var (
		notFound     *protocol.AssignmentNotFoundError
		beadNotFound *protocol.BeadNotFoundError
		notOpen      *protocol.BeadNotOpenError
		unknownSeg   *protocol.SegmentUnknownError
		provision    *protocol.WorkspaceProvisionError
		stateChanged *protocol.AssignmentStateChangedError
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &beadNotFound), errors.As(err, &unknownSeg):
		return http.StatusNotFound
	case errors.As(err, &notOpen), errors.As(err, &stateChanged):
		return http.StatusConflict
	case errors.As(err, &provision):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	var req protocol.PairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sessionID, token, err := s.sec.Pair(req.PairingToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.PairResponse{SessionToken: token, SessionID: sessionID})
}

func (s *Server) handleSegmentsList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.segments.List())
}

func (s *Server) handleSegmentsCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Root string `json:"root"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	seg, err := s.segments.Create(req.Name, req.Root)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, seg)
}

func (s *Server) handleAncillariesList(w http.ResponseWriter, _ *http.Request) {
	sessions := s.manager.Registry().List()
	out := make([]protocol.AncillaryInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Info())
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAncillaryStart resumes the ancillary's assignment (restarting the
// agent if needed).
func (s *Server) handleAncillaryStart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, ok, err := s.manager.Store().GetByAncillary(id)
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, &protocol.AssignmentNotFoundError{Ref: id})
		return
	}
	var req struct {
		Instruction string `json:"instruction"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if err := s.manager.Resume(r.Context(), a.ID, req.Instruction); err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

// handleAncillaryStop aborts the ancillary's assignment without closing
// the bead.
func (s *Server) handleAncillaryStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, ok, err := s.manager.Store().GetByAncillary(id)
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, &protocol.AssignmentNotFoundError{Ref: id})
		return
	}
	deleted, err := s.manager.Abort(r.Context(), a.ID, false)
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	if deleted {
		s.metrics.ActiveAssignments.Dec()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleAssignmentsList(w http.ResponseWriter, _ *http.Request) {
	list, err := s.manager.Store().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []protocol.Assignment{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAssignmentsCreate(w http.ResponseWriter, r *http.Request) {
	var req protocol.AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a, err := s.manager.Assign(r.Context(), req)
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	s.metrics.ActiveAssignments.Inc()
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleAssignmentGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, ok, err := s.manager.Store().Get(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, &protocol.AssignmentNotFoundError{Ref: id})
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleAssignmentComplete finishes an assignment. Query parameters:
// keep_open=true leaves the bead open; abort=true aborts instead of
// completing.
func (s *Server) handleAssignmentComplete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q := r.URL.Query()

	var (
		deleted bool
		err     error
	)
	if q.Get("abort") == "true" {
		deleted, err = s.manager.Abort(r.Context(), id, q.Get("close") == "true")
	} else {
		deleted, err = s.manager.Complete(r.Context(), id, protocol.CompleteOptions{
			KeepOpen: q.Get("keep_open") == "true",
			Summary:  q.Get("summary"),
		})
	}
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	// Idempotent repeats do not move the gauge.
	if deleted {
		s.metrics.ActiveAssignments.Dec()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "done"})
}

func (s *Server) handleWorkspacesList(w http.ResponseWriter, r *http.Request) {
	segment := r.PathValue("segment")
	if _, err := s.segments.Get(segment); err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	names, err := s.workspaces.List(segment)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}
