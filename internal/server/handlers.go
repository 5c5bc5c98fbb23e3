// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/jeranaias/aidev/internal/config"
	"github.com/jeranaias/aidev/internal/preview"
	"github.com/jeranaias/aidev/internal/project"
	"github.com/jeranaias/aidev/internal/provider"
	"github.com/jeranaias/aidev/internal/users"
	"github.com/jeranaias/aidev/internal/util"
)

// ============================================================================
// PROJECTS
// ============================================================================

// ProjectSummary is one row of GET /api/projects.
type ProjectSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Files      int    `json:"files"`
	PreviewURL string `json:"previewUrl,omitempty"`
	Current    bool   `json:"current"`
}

// ProjectView is a full project with its preview location.
type ProjectView struct {
	*project.Project
	PreviewURL string `json:"previewUrl,omitempty"`
}

func viewOf(p *project.Project) ProjectView {
	return ProjectView{Project: p, PreviewURL: preview.URL(p.PreviewHandle)}
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	current := s.app.Projects.CurrentID()
	list := s.app.Projects.List()
	out := make([]ProjectSummary, 0, len(list))
	for _, p := range list {
		out = append(out, ProjectSummary{
			ID:         p.ID,
			Name:       p.Name,
			Files:      p.FileCount(),
			PreviewURL: preview.URL(p.PreviewHandle),
			Current:    p.ID == current,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	id, err := s.app.Projects.CreateProject(r.Context(), body.Name)
	if errors.Is(err, project.ErrEmptyName) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}
	p, _ := s.app.Projects.Project(id)
	writeJSON(w, http.StatusCreated, viewOf(p))
}

func (s *Server) handleCurrentProject(w http.ResponseWriter, r *http.Request) {
	p, ok := s.app.Projects.CurrentProject()
	if !ok {
		writeError(w, http.StatusNotFound, "no current project")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p))
}

func (s *Server) handleSetCurrent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	err := s.app.Projects.SetCurrent(r.Context(), body.ID)
	if errors.Is(err, project.ErrProjectNotFound) {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}
	p, _ := s.app.Projects.Project(body.ID)
	writeJSON(w, http.StatusOK, viewOf(p))
}

// lookupProject resolves the {id} path value or answers 404.
func (s *Server) lookupProject(w http.ResponseWriter, r *http.Request) (*project.Project, bool) {
	p, ok := s.app.Projects.Project(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "project not found")
		return nil, false
	}
	return p, true
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupProject(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p))
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeleteProject(r.Context(), r.PathValue("id")); err != nil {
		internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// FILES
// ============================================================================

// handleTree returns the project tree, or the subtree at ?path=.
func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	tree, ok := s.app.Projects.Tree(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	if path := r.URL.Query().Get("path"); path != "" {
		clean, err := util.CleanProjectPath(path)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if tree = project.Find(tree, clean); tree == nil {
			writeError(w, http.StatusNotFound, "path not found")
			return
		}
	}
	writeJSON(w, http.StatusOK, tree)
}

// handleReadFile returns one entry as JSON, or its raw content when
// ?download=1 is set.
func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupProject(w, r)
	if !ok {
		return
	}
	path, err := util.CleanProjectPath(r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f, ok := p.Files[path]
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	if r.URL.Query().Get("download") != "" && !f.IsDir() {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(util.BaseName(path), `"`, "")+`"`)
		_, _ = io.WriteString(w, f.Content)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	s.fileOperation(w, r, project.Update(body.Path, body.Content))
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	s.fileOperation(w, r, project.Delete(r.URL.Query().Get("path")))
}

func (s *Server) fileOperation(w http.ResponseWriter, r *http.Request, op project.Operation) {
	if _, ok := s.lookupProject(w, r); !ok {
		return
	}
	p, err := s.app.Projects.ExecuteFileOperation(r.Context(), r.PathValue("id"), op)
	if err != nil {
		s.fileError(w, r, err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p))
}

func (s *Server) handleMkdir(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if _, ok := s.lookupProject(w, r); !ok {
		return
	}
	p, err := s.app.Projects.CreateDirectory(r.Context(), r.PathValue("id"), body.Path)
	if err != nil {
		s.fileError(w, r, err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(p))
}

func (s *Server) fileError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, project.ErrInvalidPath):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, project.ErrPathConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		internalError(w, r, err)
	}
}

// ============================================================================
// USERS
// ============================================================================

// UserView is a user without credentials.
type UserView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
}

func userView(u users.User) UserView {
	return UserView{ID: u.ID, Username: u.Username, Admin: u.IsAdmin()}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := s.app.Users.List(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	out := make([]UserView, 0, len(list))
	for _, u := range list {
		out = append(out, userView(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if !decodeBody(w, r, &body) {
		return
	}
	u, err := s.app.Users.Create(r.Context(), body.Username, body.Password)
	switch {
	case errors.Is(err, users.ErrMissingCredentials):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, users.ErrUsernameTaken):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		internalError(w, r, err)
	default:
		writeJSON(w, http.StatusCreated, userView(u))
	}
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	err := s.app.Users.Delete(r.Context(), r.PathValue("id"))
	if errors.Is(err, users.ErrAdminProtected) {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportUsers(w http.ResponseWriter, r *http.Request) {
	content, err := s.app.Users.ExportCSV(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="users.csv"`)
	_, _ = io.WriteString(w, content)
}

func (s *Server) handleImportUsers(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "import too large")
		return
	}
	n, err := s.app.Users.ImportCSV(r.Context(), string(data))
	if errors.Is(err, users.ErrInvalidCSV) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": n})
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	u, ok, err := s.app.Users.Current(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, users.ErrNotLoggedIn.Error())
		return
	}
	writeJSON(w, http.StatusOK, userView(u))
}

func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	u, err := s.app.Users.SaveSettings(r.Context())
	if errors.Is(err, users.ErrNotLoggedIn) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userView(u))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if !decodeBody(w, r, &body) {
		return
	}
	u, err := s.app.Users.Login(r.Context(), body.Username, body.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userView(u))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Users.Logout(r.Context()); err != nil {
		internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// SETTINGS AND ADMIN
// ============================================================================

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.app.Settings.Load(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings.Redacted())
}

// handlePutSettings replaces every setting. Masked API keys echoed back from
// GET keep their stored value.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	current, err := s.app.Settings.Load(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	next := current
	if !decodeBody(w, r, &next) {
		return
	}
	if strings.HasPrefix(next.GeminiAPIKey, "****") {
		next.GeminiAPIKey = current.GeminiAPIKey
	}
	if strings.HasPrefix(next.OpenAIAPIKey, "****") {
		next.OpenAIAPIKey = current.OpenAIAPIKey
	}

	err = s.app.Settings.Save(r.Context(), next)
	var verrs config.ValidateErrors
	if errors.As(err, &verrs) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, next.Redacted())
}

func (s *Server) handleSetMaintenance(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.app.Admin.SetMaintenance(r.Context(), body.Enabled); err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": body.Enabled})
}

func (s *Server) handleHardReset(w http.ResponseWriter, r *http.Request) {
	report, err := s.app.Admin.HardReset(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.app.Admin.Stats(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleProviderStatus probes the provider the settings select.
func (s *Server) handleProviderStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.app.ProviderStatus(r.Context())
	switch {
	case errors.Is(err, provider.ErrMissingAPIKey), errors.Is(err, provider.ErrUnknownProvider):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
