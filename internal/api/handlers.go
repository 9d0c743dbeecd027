package api

import (
	"net/http"
	"strings"

	"github.com/sprite-ai/agstage/internal/model"
	"github.com/sprite-ai/agstage/internal/preview"
	"github.com/sprite-ai/agstage/internal/review"
)

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.hub.Clients(),
	})
}

// --- Proposals ---

type proposalRequest struct {
	Target  string `json:"target"`
	Content string `json:"content"`
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	var req proposalRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Target) == "" {
		s.writeError(w, http.StatusBadRequest, "target is required")
		return
	}

	p := model.ChangeProposal{TargetPath: s.resolve(req.Target), Content: req.Content}
	var (
		snap   review.Snapshot
		runErr error
	)
	if err := s.submit(r.Context(), func() { snap, runErr = s.ctrl.Begin(p) }); err != nil {
		s.writeReviewError(w, err, nil)
		return
	}
	if runErr != nil {
		s.writeReviewError(w, runErr, &snap)
		return
	}
	s.writeJSON(w, http.StatusCreated, snap)
}

// --- Session ---

type sessionResponse struct {
	Session review.Snapshot  `json:"session"`
	Preview *preview.Preview `json:"preview,omitempty"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	var (
		snap    review.Snapshot
		ok      bool
		pending bool
	)
	if err := s.submit(r.Context(), func() {
		snap, ok = s.ctrl.Active()
		pending = s.ctrl.Pending()
	}); err != nil {
		s.writeReviewError(w, err, nil)
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "no review session")
		return
	}

	resp := sessionResponse{Session: snap}
	if pending {
		resp.Preview = s.hub.Current()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// --- Decisions ---

type decisionRequest struct {
	Decision string `json:"decision"`
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	d, err := model.ParseDecision(req.Decision)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := s.decide(r, d)
	if err != nil {
		s.writeReviewError(w, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// decide fires d on the decision bus for the pending session.
func (s *Server) decide(r *http.Request, d model.Decision) (review.Snapshot, error) {
	var (
		snap   review.Snapshot
		runErr error
	)
	err := s.submit(r.Context(), func() {
		if !s.ctrl.Pending() {
			runErr = errNothingPending
			return
		}
		s.bus.Fire(d)
		snap, _ = s.ctrl.Active()
	})
	if err != nil {
		return snap, err
	}
	return snap, runErr
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := readJSON(r, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "cancelled over HTTP"
	}

	var (
		snap review.Snapshot
		ok   bool
	)
	if err := s.submit(r.Context(), func() { snap, ok = s.ctrl.Cancel(req.Reason) }); err != nil {
		s.writeReviewError(w, err, nil)
		return
	}
	if !ok {
		s.writeReviewError(w, errNothingPending, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// --- Retained artifacts ---

func (s *Server) handleRetained(w http.ResponseWriter, r *http.Request) {
	var snaps []review.Snapshot
	if err := s.submit(r.Context(), func() { snaps = s.ctrl.Retained() }); err != nil {
		s.writeReviewError(w, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var runErr error
	if err := s.submit(r.Context(), func() { runErr = s.ctrl.Purge(id) }); err != nil {
		s.writeReviewError(w, err, nil)
		return
	}
	if runErr != nil {
		s.writeReviewError(w, runErr, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
