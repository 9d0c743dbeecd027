// Package api serves reviews over HTTP and WebSocket. Proposals arrive by
// POST, previews are broadcast to connected browsers, and decisions come
// back over either channel. Every controller call runs on the review loop.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sprite-ai/agstage/internal/decision"
	"github.com/sprite-ai/agstage/internal/logging"
	"github.com/sprite-ai/agstage/internal/loop"
	"github.com/sprite-ai/agstage/internal/model"
	"github.com/sprite-ai/agstage/internal/review"
)

var errNothingPending = errors.New("no proposal is awaiting a decision")

// Options wires a Server to the review loop.
type Options struct {
	Addr       string
	Loop       *loop.Loop
	Controller *review.Controller
	Bus        *decision.Bus
	Hub        *Hub
	// Resolve turns a proposal's target into the host path. Nil keeps it.
	Resolve func(string) string
	Logger  *logging.Logger
}

// Server is the agstage HTTP API server.
type Server struct {
	addr    string
	mux     *http.ServeMux
	server  *http.Server
	loop    *loop.Loop
	ctrl    *review.Controller
	bus     *decision.Bus
	hub     *Hub
	resolve func(string) string
	log     *logging.Logger
}

// New creates a new API server.
func New(o Options) *Server {
	log := o.Logger
	if log == nil {
		log = logging.NopLogger()
	}
	resolve := o.Resolve
	if resolve == nil {
		resolve = func(p string) string { return p }
	}
	s := &Server{
		addr:    o.Addr,
		loop:    o.Loop,
		ctrl:    o.Controller,
		bus:     o.Bus,
		hub:     o.Hub,
		resolve: resolve,
		log:     log.WithComponent("api"),
	}
	s.mux = http.NewServeMux()
	s.registerRoutes()
	s.server = &http.Server{
		Addr:         o.Addr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/proposals", s.handlePropose)
	s.mux.HandleFunc("GET /api/session", s.handleSession)
	s.mux.HandleFunc("POST /api/decision", s.handleDecision)
	s.mux.HandleFunc("POST /api/cancel", s.handleCancel)
	s.mux.HandleFunc("GET /api/retained", s.handleRetained)
	s.mux.HandleFunc("DELETE /api/retained/{id}", s.handlePurge)
	s.mux.HandleFunc("GET /api/ws", s.handleWebSocket)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("API server listening", "addr", s.addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving %s: %w", s.addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.CloseAll()
		return s.server.Shutdown(shutdownCtx)
	}
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// submit runs fn on the review loop.
func (s *Server) submit(ctx context.Context, fn func()) error {
	return s.loop.Do(ctx, fn)
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.log.Warn("json encode failed", "error", err.Error())
	}
}

type errorResponse struct {
	Error   string           `json:"error"`
	Code    string           `json:"code,omitempty"`
	Session *review.Snapshot `json:"session,omitempty"`
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// writeReviewError maps a failure to a status code and a coded body.
func (s *Server) writeReviewError(w http.ResponseWriter, err error, snap *review.Snapshot) {
	status, code := statusFor(err)
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Code: code, Session: snap})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, loop.ErrStopped):
		return http.StatusServiceUnavailable, "loop_stopped"
	case errors.Is(err, errNothingPending):
		return http.StatusConflict, "nothing_pending"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "cancelled"
	}

	var re *review.Error
	if !errors.As(err, &re) {
		return http.StatusInternalServerError, ""
	}
	switch re.Kind {
	case model.KindNotFound:
		return http.StatusNotFound, re.Code()
	case model.KindDocumentNotText:
		return http.StatusUnsupportedMediaType, re.Code()
	case model.KindInvalidDecision:
		return http.StatusBadRequest, re.Code()
	case model.KindDiffUnavailable, model.KindHostUnavailable:
		return http.StatusServiceUnavailable, re.Code()
	default:
		return http.StatusInternalServerError, re.Code()
	}
}

// readJSON decodes a JSON request body into v.
func readJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("empty request body")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}
