// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/aidev/internal/app"
	"github.com/jeranaias/aidev/internal/logging"
	"github.com/jeranaias/aidev/internal/metrics"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is used when the config leaves the listen address empty.
	DefaultAddr = "127.0.0.1:8787"

	// MaxRequestBodySize bounds JSON bodies (CSV imports included).
	MaxRequestBodySize = 4 * 1024 * 1024

	// Version is the server version.
	Version = "0.1.0"
)

// ============================================================================
// SERVER
// ============================================================================

// Server exposes the application over HTTP.
type Server struct {
	app     *app.App
	addr    string
	limiter *RateLimiter
	proxies *ProxyList
	mux     *http.ServeMux
	handler http.Handler
	started time.Time
}

// New builds the route table and middleware chain for a.
func New(a *app.App) *Server {
	cfg := a.Config.Server
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	s := &Server{
		app:     a,
		addr:    addr,
		limiter: NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		proxies: NewProxyList(cfg.TrustedProxies),
		mux:     http.NewServeMux(),
		started: time.Now(),
	}
	s.setupRoutes()

	s.handler = Chain(
		RecoveryMiddleware(),
		SecurityHeadersMiddleware(),
		logging.Middleware,
		metrics.Middleware,
		CORSMiddleware(NewCORSConfig(cfg.AllowedOrigins, cfg.UserHeader)),
		RateLimitMiddleware(s.limiter, s.proxies),
		MaintenanceMiddleware(s),
	)(s.mux)
	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string { return s.addr }

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves until ctx is cancelled, then shuts down gracefully within the
// configured timeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go s.limiter.Cleanup(cleanupCtx, time.Minute)

	errCh := make(chan error, 1)
	go func() {
		logging.Info("http server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.app.Config.Server.ShutdownTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	logging.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Maintenance implements Gate.
func (s *Server) Maintenance(ctx context.Context) (bool, error) {
	return s.app.Admin.Maintenance(ctx)
}

// IsAdminRequest implements Gate: the configured user header must name an
// existing administrator.
func (s *Server) IsAdminRequest(r *http.Request) bool {
	header := s.app.Config.Server.UserHeader
	if header == "" {
		return false
	}
	name := r.Header.Get(header)
	if name == "" {
		return false
	}
	ok, err := s.app.Users.IsAdmin(r.Context(), name)
	if err != nil {
		logging.WithContext(r.Context()).Warn("admin lookup failed", zap.Error(err))
		return false
	}
	return ok
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	// Projects
	s.mux.HandleFunc("GET /api/projects", s.handleListProjects)
	s.mux.HandleFunc("POST /api/projects", s.handleCreateProject)
	s.mux.HandleFunc("GET /api/projects/current", s.handleCurrentProject)
	s.mux.HandleFunc("PUT /api/projects/current", s.handleSetCurrent)
	s.mux.HandleFunc("GET /api/projects/{id}", s.handleGetProject)
	s.mux.HandleFunc("DELETE /api/projects/{id}", s.handleDeleteProject)

	// Files
	s.mux.HandleFunc("GET /api/projects/{id}/tree", s.handleTree)
	s.mux.HandleFunc("GET /api/projects/{id}/files", s.handleReadFile)
	s.mux.HandleFunc("PUT /api/projects/{id}/files", s.handleWriteFile)
	s.mux.HandleFunc("DELETE /api/projects/{id}/files", s.handleDeleteFile)
	s.mux.HandleFunc("POST /api/projects/{id}/directories", s.handleMkdir)

	// Chat
	s.mux.HandleFunc("GET /api/projects/{id}/chat", s.handleChatHistory)
	s.mux.HandleFunc("POST /api/projects/{id}/chat", s.handleChatSend)
	s.mux.HandleFunc("DELETE /api/projects/{id}/chat", s.handleChatClear)
	s.mux.HandleFunc("GET /api/projects/{id}/chat/export", s.handleChatExport)

	// Users
	s.mux.HandleFunc("GET /api/users", s.handleListUsers)
	s.mux.HandleFunc("POST /api/users", s.handleCreateUser)
	s.mux.HandleFunc("GET /api/users/export", s.handleExportUsers)
	s.mux.HandleFunc("POST /api/users/import", s.handleImportUsers)
	s.mux.HandleFunc("GET /api/users/current", s.handleCurrentUser)
	s.mux.HandleFunc("POST /api/users/current/settings", s.handleSaveProfile)
	s.mux.HandleFunc("DELETE /api/users/{id}", s.handleDeleteUser)
	s.mux.HandleFunc("POST /api/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/logout", s.handleLogout)

	// Settings and admin
	s.mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	s.mux.HandleFunc("PUT /api/settings", s.handlePutSettings)
	s.mux.HandleFunc("PUT /api/admin/maintenance", s.handleSetMaintenance)
	s.mux.HandleFunc("POST /api/admin/reset", s.handleHardReset)
	s.mux.HandleFunc("GET /api/admin/stats", s.handleAdminStats)
	s.mux.HandleFunc("GET /api/provider/status", s.handleProviderStatus)

	// Previews and service endpoints
	s.mux.Handle("GET /preview/{handle}", s.app.Previews)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", metrics.Handler())
}

// ============================================================================
// HEALTH
// ============================================================================

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Backend  string `json:"backend"`
	Projects int    `json:"projects"`
	Previews int    `json:"previews"`
	Uptime   string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Version:  Version,
		Backend:  s.app.Config.Storage.Backend,
		Projects: len(s.app.Projects.List()),
		Previews: s.app.Previews.Live(),
		Uptime:   time.Since(s.started).Round(time.Second).String(),
	})
}

// ============================================================================
// HELPERS
// ============================================================================

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Warn("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// decodeBody reads a bounded JSON body into v and answers 400/413 itself
// on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", MaxRequestBodySize))
			return false
		}
		logging.WithContext(r.Context()).Debug("invalid request body", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// internalError logs err and answers a generic 500.
func internalError(w http.ResponseWriter, r *http.Request, err error) {
	logging.WithContext(r.Context()).Error("request failed",
		zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "request processing failed")
}
