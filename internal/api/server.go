// Package api provides the HTTP server and handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/EOSC-Data-Commons/req-packager/internal/assemble"
	"github.com/EOSC-Data-Commons/req-packager/internal/browse"
	"github.com/EOSC-Data-Commons/req-packager/internal/logging"
	"github.com/EOSC-Data-Commons/req-packager/internal/metrics"
	"github.com/EOSC-Data-Commons/req-packager/internal/models"
	"github.com/EOSC-Data-Commons/req-packager/internal/provider"
)

// maxBodySize bounds a package request body.
const maxBodySize = 1 << 20

// Server is the HTTP server.
type Server struct {
	browser    *browse.Browser
	assembler  *assemble.Assembler
	tools      provider.ToolRegistry
	dispatcher provider.Dispatcher

	providerTimeout time.Duration
}

// NewServer creates a Server. providerTimeout bounds every provider call a
// handler makes directly.
func NewServer(b *browse.Browser, a *assemble.Assembler, tools provider.ToolRegistry, d provider.Dispatcher, providerTimeout time.Duration) *Server {
	return &Server{
		browser:         b,
		assembler:       a,
		tools:           tools,
		dispatcher:      d,
		providerTimeout: providerTimeout,
	}
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/datasets/browse", s.handleBrowse)
	mux.HandleFunc("POST /api/v1/packages", s.handleAssemble)
	mux.HandleFunc("GET /api/v1/tools", s.handleTools)
	mux.HandleFunc("GET /api/v1/requests", s.handleRequests)

	// metrics must sit inside logging so it observes the pattern the mux
	// sets on the request.
	return logging.Middleware(metrics.Middleware(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	tools, err := provider.Call(r.Context(), s.providerTimeout, "tool_registry", "list_tools",
		func(ctx context.Context) ([]models.VirtualResearchEnv, error) {
			return s.tools.ListTools(ctx)
		})
	if err != nil {
		s.sendError(w, http.StatusServiceUnavailable, "tool registry unavailable", "", err)
		return
	}
	s.sendJSON(w, http.StatusOK, HealthResponse{Status: "ok", Tools: len(tools)})
}

// ─── Browse (SSE) ───────────────────────────────────────────────────────────

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	repo := r.URL.Query().Get("repo")
	dataset := r.URL.Query().Get("dataset")
	if repo == "" || dataset == "" {
		s.sendError(w, http.StatusBadRequest, "repo and dataset are required", "", nil)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming not supported", "", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// The session stops once the client disconnects and r.Context() is
	// cancelled; keep draining so the producer can exit.
	log := logging.WithContext(r.Context())
	writable := true
	for ev := range s.browser.Begin(r.Context(), repo, dataset) {
		if !writable {
			continue
		}
		data, err := json.Marshal(ev)
		if err != nil {
			log.Error("encode browse event", zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
			log.Debug("browse client write failed", zap.Error(err))
			writable = false
			continue
		}
		flusher.Flush()
	}
}

// ─── Assembly ───────────────────────────────────────────────────────────────

func (s *Server) handleAssemble(w http.ResponseWriter, r *http.Request) {
	var req PackageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body", "", err)
		return
	}
	if req.VreID == "" {
		s.sendError(w, http.StatusBadRequest, "vre_id is required", "", nil)
		return
	}

	entry, err := s.assembler.Assemble(r.Context(), req.VreID, req.FileEntries)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, PackageResponse{VreEntry: entry})
}

// ─── Tools & requests ───────────────────────────────────────────────────────

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	tools, err := provider.Call(r.Context(), s.providerTimeout, "tool_registry", "list_tools",
		func(ctx context.Context) ([]models.VirtualResearchEnv, error) {
			return s.tools.ListTools(ctx)
		})
	if err != nil {
		s.sendError(w, http.StatusBadGateway, "unable to list tools", models.CodeToolResolutionFailed, err)
		return
	}

	resp := ToolsResponse{Tools: make([]models.ToolDescriptor, 0, len(tools))}
	for _, t := range tools {
		resp.Tools = append(resp.Tools, models.Describe(t))
	}
	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		s.sendError(w, http.StatusBadRequest, "user is required", "", nil)
		return
	}

	reqs, err := provider.Call(r.Context(), s.providerTimeout, "dispatcher", "check_user_requests",
		func(ctx context.Context) ([]models.RequestStatus, error) {
			return s.dispatcher.CheckUserRequests(ctx, user)
		})
	if err != nil {
		s.sendError(w, http.StatusBadGateway, "unable to check requests", models.CodeDispatcherUnavailable, err)
		return
	}
	if reqs == nil {
		reqs = []models.RequestStatus{}
	}
	s.sendJSON(w, http.StatusOK, RequestsResponse{Requests: reqs})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// StatusFor maps a domain error to an HTTP status.
func StatusFor(err error) int {
	switch models.CodeOf(err) {
	case models.CodeValidationFailed:
		return http.StatusUnprocessableEntity
	case models.CodeUnsupportedVreVariant:
		return http.StatusNotImplemented
	case models.CodeToolResolutionFailed:
		if errors.Is(err, provider.ErrNotFound) {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	case models.CodeDispatcherUnavailable, models.CodeProviderUnavailable:
		return http.StatusBadGateway
	}
	if errors.Is(err, provider.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) sendDomainError(w http.ResponseWriter, err error) {
	var e *models.Error
	if errors.As(err, &e) {
		s.sendError(w, StatusFor(err), e.Message, e.Code, e.Err)
		return
	}
	s.sendError(w, StatusFor(err), "internal error", "", err)
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string, code models.ErrorCode, cause error) {
	resp := ErrorResponse{Error: message, Code: code}
	if cause != nil {
		resp.Details = cause.Error()
	}
	s.sendJSON(w, status, resp)
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("write response", zap.Error(err))
	}
}
