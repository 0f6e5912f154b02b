// SPDX-License-Identifier: MIT

// Package api assembles the HTTP surface: the websocket session
// endpoint, the synchronous tool endpoints, health, and metrics.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/vrlearn/adaptd/internal/audit"
	"github.com/vrlearn/adaptd/internal/auth"
	"github.com/vrlearn/adaptd/internal/config"
	"github.com/vrlearn/adaptd/internal/model"
	"github.com/vrlearn/adaptd/internal/session"
	"github.com/vrlearn/adaptd/internal/tools"
	"github.com/vrlearn/adaptd/internal/version"
)

const (
	maxToolBody = 1 << 20 // 1 MiB, matches the websocket frame cap

	perIPRequests = 600
	perIPWindow   = time.Minute

	// Shared budget across every tool endpoint.
	toolRatePerSecond = 50
	toolBurst         = 100
)

// Deps are the collaborators the server routes to.
type Deps struct {
	Config   config.Snapshot
	Sessions *session.Manager
	Tools    *tools.Service
	Socket   http.Handler // websocket upgrade handler
	Audit    *audit.Logger
}

// Server is the assembled HTTP API.
type Server struct {
	deps    Deps
	guard   *auth.Guard
	limiter *rate.Limiter
	router  chi.Router
}

// New wires the router. The token guard is built from the configured
// api_token and auth_token_ttl.
func New(d Deps) *Server {
	if d.Audit == nil {
		d.Audit = audit.NewLogger()
	}
	s := &Server{
		deps:    d,
		guard:   auth.NewGuard(d.Config.APIToken, d.Config.AuthTokenTTL, nil),
		limiter: rate.NewLimiter(toolRatePerSecond, toolBurst),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler, traced when tracing is enabled.
func (s *Server) Handler() http.Handler {
	if !s.deps.Config.TracingEnabled {
		return s.router
	}
	return otelhttp.NewHandler(s.router, s.deps.Config.ServerName,
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/healthz" && r.URL.Path != "/metrics"
		}),
	)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(requestID)
	r.Use(accessLog)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(requireAuth(s.guard, s.deps.Audit, true))
		r.Handle("/ws", s.deps.Socket)
	})

	r.Route("/v1/tools", func(r chi.Router) {
		r.Use(requireAuth(s.guard, s.deps.Audit, false))
		r.Use(perIPLimit(perIPRequests, perIPWindow))
		r.Use(toolLimit(s.limiter))
		r.Get("/", s.handleToolList)
		r.Post("/{tool}", s.handleToolInvoke)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"version":         version.Version,
		"active_sessions": s.deps.Sessions.ActiveSessions(),
	})
}

func (s *Server) handleToolList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.deps.Tools.Tools()})
}

func (s *Server) handleToolInvoke(w http.ResponseWriter, r *http.Request) {
	tool := chi.URLParam(r, "tool")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxToolBody+1))
	if err != nil {
		writeWireError(w, model.CodeProcessingError, "read request body")
		return
	}
	if len(body) > maxToolBody {
		writeWireError(w, model.CodeInvalidAction, "request body too large")
		return
	}

	resp := s.deps.Tools.Invoke(r.Context(), tool, body)
	writeJSON(w, statusFor(resp), resp)
}

// statusFor maps a tool response onto an HTTP status.
func statusFor(resp tools.Response) int {
	if resp.Status != "error" {
		return http.StatusOK
	}
	return httpStatus(resp.Code)
}

func httpStatus(code string) int {
	switch code {
	case model.CodeInvalidAction, model.CodeMissingLearnerID, model.CodeMissingBlock:
		return http.StatusBadRequest
	case model.CodeUnauthorized:
		return http.StatusUnauthorized
	case model.CodeNoSession:
		return http.StatusNotFound
	case model.CodeBusy:
		return http.StatusTooManyRequests
	case model.CodeServerShutdown:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeWireError(w http.ResponseWriter, code, message string) {
	writeJSON(w, httpStatus(code), map[string]string{
		"status":  "error",
		"code":    code,
		"message": message,
	})
}
