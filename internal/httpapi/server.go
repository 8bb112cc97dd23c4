// ABOUTME: HTTP server exposing the call dedup engine to transport and UI bridges.
// ABOUTME: JSON endpoints for call/cancel ingest, lifecycle callbacks, and ops queries.

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/callguard/internal/auth"
	"github.com/2389/callguard/internal/callstate"
	"github.com/2389/callguard/internal/dedupe"
	"github.com/2389/callguard/internal/push"
)

// Server is the ingest and ops HTTP surface.
type Server struct {
	engine   *dedupe.Engine
	handler  *push.Handler
	verifier auth.TokenVerifier
	logger   *slog.Logger
	http     *http.Server
}

// New creates the HTTP server listening on addr.
func New(addr string, engine *dedupe.Engine, handler *push.Handler, verifier auth.TokenVerifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:   engine,
		handler:  handler,
		verifier: verifier,
		logger:   logger.With("component", "httpapi"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /v1/call", s.requireAuth(s.handleCall))
	mux.HandleFunc("POST /v1/cancel", s.requireAuth(s.handleCancel))
	mux.HandleFunc("GET /v1/calls/active", s.requireAuth(s.handleActiveCalls))
	mux.HandleFunc("GET /v1/calls/{id}", s.requireAuth(s.handleCallStatus))
	mux.HandleFunc("DELETE /v1/calls/{id}", s.requireAuth(s.handleClearCall))
	mux.HandleFunc("POST /v1/calls/{id}/{event}", s.requireAuth(s.handleLifecycleEvent))
	mux.HandleFunc("POST /v1/reset", s.requireAuth(s.handleReset))

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe runs the server until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http api listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler returns the underlying HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// requireAuth wraps a handler with bearer-token verification.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		deviceID, err := s.verifier.Verify(token)
		if err != nil {
			s.logger.Warn("rejected request", "path", r.URL.Path, "error", err)
			s.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		r.Header.Set("X-Device-ID", deviceID)
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// callResponse is returned from the call ingest endpoint.
type callResponse struct {
	Processed bool             `json:"processed"`
	Status    callstate.Status `json:"status,omitempty"`
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	intent, err := push.DecodeIntent(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	processed := s.handler.HandleIncomingCall(r.Context(), intent)
	resp := callResponse{Processed: processed}
	if status, ok := s.engine.GetCallStatus(intent.CallID); ok {
		resp.Status = status
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// cancelRequest is the body of the cancel ingest endpoint.
type cancelRequest struct {
	RoomID string `json:"roomId"`
	CallID string `json:"callId,omitempty"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req cancelRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.RoomID == "" {
		s.writeError(w, http.StatusBadRequest, "missing roomId")
		return
	}

	s.handler.HandleCancel(r.Context(), req.RoomID, req.CallID)
	s.writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// callEntry is the wire form of a processed call in ops responses.
type callEntry struct {
	CallID     string           `json:"callId"`
	RoomID     string           `json:"roomId"`
	ReceivedAt time.Time        `json:"receivedAt"`
	Status     callstate.Status `json:"status"`
}

func (s *Server) handleActiveCalls(w http.ResponseWriter, r *http.Request) {
	active := s.engine.GetActiveCalls()
	entries := make([]callEntry, 0, len(active))
	for _, call := range active {
		entries = append(entries, callEntry{
			CallID:     call.CallID,
			RoomID:     call.RoomID,
			ReceivedAt: call.ReceivedAt,
			Status:     call.Status,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"calls": entries})
}

func (s *Server) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("id")
	status, ok := s.engine.GetCallStatus(callID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "call not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"callId": callID, "status": status})
}

func (s *Server) handleClearCall(w http.ResponseWriter, r *http.Request) {
	s.engine.ClearCall(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// handleLifecycleEvent routes call UI callbacks: shown, accepted,
// declined, timeout. Unknown events are rejected; unknown call IDs are
// benign no-ops, mirroring the engine's late-callback semantics.
func (s *Server) handleLifecycleEvent(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("id")

	switch r.PathValue("event") {
	case "shown":
		s.handler.OnCallShown(callID)
	case "accepted":
		s.handler.OnCallAccepted(callID)
	case "declined":
		s.handler.OnCallDeclined(callID)
	case "timeout":
		s.handler.OnCallTimeout(callID)
	default:
		s.writeError(w, http.StatusBadRequest, "unknown lifecycle event")
		return
	}

	resp := map[string]any{"callId": callID}
	if status, ok := s.engine.GetCallStatus(callID); ok {
		resp["status"] = status
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ClearAll(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, "reset persisted with errors")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

// readBody reads a bounded request body; call payloads are small.
func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	return data, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("writing response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
