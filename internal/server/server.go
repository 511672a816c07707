// Package server exposes the solve service over HTTP: session creation,
// inspection, feedback, interrupts and a live telemetry stream.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rand/pips/internal/pips"
)

// Server routes HTTP requests to the solve service.
type Server struct {
	svc    *pips.Service
	opts   pips.Options
	logger *slog.Logger
}

// New creates the HTTP server around a solve service. opts are the
// solve defaults applied to every request; per-request fields override
// them.
func New(svc *pips.Service, opts pips.Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, opts: opts, logger: logger}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/solve", s.handleSolve)
		r.Get("/sessions", s.handleListSessions)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Get("/events", s.handleEvents)
			r.Post("/feedback", s.handleFeedback)
			r.Post("/interrupt", s.handleInterrupt)
		})
	})
	return r
}

// solveRequest is the POST /api/solve payload. The image travels as
// base64 since the transport is JSON.
type solveRequest struct {
	Text          string `json:"text"`
	ImageB64      string `json:"image_b64,omitempty"`
	ImageMIME     string `json:"image_mime,omitempty"`
	Interactive   bool   `json:"interactive,omitempty"`
	CustomRules   string `json:"custom_rules,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`
}

type solveResponse struct {
	SessionID string             `json:"session_id"`
	Status    pips.SessionStatus `json:"status"`
}

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	var req solveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	input := pips.RawInput{Text: req.Text, ImageMIME: req.ImageMIME}
	if req.ImageB64 != "" {
		img, err := base64.StdEncoding.DecodeString(req.ImageB64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid image encoding: %w", err))
			return
		}
		input.Image = img
	}

	opts := s.opts
	opts.Interactive = req.Interactive
	if req.CustomRules != "" {
		opts.CustomRules = req.CustomRules
	}
	if req.MaxIterations > 0 {
		opts.MaxIterations = req.MaxIterations
	}

	// The session outlives this request; it is bounded by the solve
	// loop's own budgets, not the connection.
	sess, err := s.svc.StartSolve(context.WithoutCancel(r.Context()), input, opts)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, solveResponse{SessionID: sess.ID, Status: sess.Status()})
}

type sessionResponse struct {
	ID         string                `json:"id"`
	Status     pips.SessionStatus    `json:"status"`
	Decision   pips.ModeDecision     `json:"mode_decision"`
	Iterations []pips.Iteration      `json:"iterations"`
	Pending    *pips.FeedbackRequest `json:"pending_feedback,omitempty"`
	Result     *pips.Result          `json:"result,omitempty"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, sessionResponse{
		ID:         sess.ID,
		Status:     sess.Status(),
		Decision:   sess.Decision(),
		Iterations: sess.Iterations(),
		Pending:    sess.PendingFeedback(),
		Result:     sess.Result(),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.List())
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var resp pips.FeedbackResponse
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	if err := s.svc.SubmitFeedback(chi.URLParam(r, "id"), resp); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.RequestInterrupt(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "interrupt requested"})
}

// handleEvents streams session telemetry as server-sent events: first a
// snapshot of everything so far, then live events until the session
// finishes or the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Subscribe before replaying the snapshot so no event is lost in
	// between; duplicates at the seam are possible and harmless for an
	// append-only stream keyed by timestamp.
	live, cancel := sess.Subscribe()
	defer cancel()

	for _, e := range sess.Events() {
		if err := writeSSE(w, e); err != nil {
			return
		}
	}
	flusher.Flush()

	for {
		select {
		case e, open := <-live:
			if !open {
				return
			}
			if err := writeSSE(w, e); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, e pips.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pips.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, pips.ErrNotAwaitingFeedback), errors.Is(err, pips.ErrSessionFinished):
		return http.StatusConflict
	case errors.Is(err, pips.ErrEmptyInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
