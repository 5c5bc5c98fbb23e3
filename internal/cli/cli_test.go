// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/aidev/internal/chat"
	"github.com/jeranaias/aidev/internal/config"
	"github.com/jeranaias/aidev/internal/project"
	"github.com/jeranaias/aidev/internal/provider"
	"github.com/jeranaias/aidev/internal/users"
)

type cannedProvider struct {
	reply string
}

func (p *cannedProvider) Name() string           { return "canned" }
func (p *cannedProvider) Model() string          { return "canned-model" }
func (p *cannedProvider) FailureMessage() string { return "canned failure" }

func (p *cannedProvider) Stream(_ context.Context, _ provider.Request, onDelta func(string)) (string, error) {
	onDelta(p.reply)
	return p.reply, nil
}

type cliEnv struct {
	dir  string
	prov *cannedProvider
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	return &cliEnv{dir: t.TempDir(), prov: &cannedProvider{reply: "Hello there"}}
}

func (e *cliEnv) configFile() string { return filepath.Join(e.dir, "config.toml") }

// run executes one CLI invocation against the env's file backend.
func (e *cliEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	opts := &Options{
		In:  strings.NewReader(stdin),
		Out: &out,
		Err: &errOut,
		Providers: func(config.Settings) (provider.Provider, error) {
			return e.prov, nil
		},
	}
	root := NewRootCmd(opts)
	root.SetArgs(append([]string{
		"--config", e.configFile(),
		"--backend", "file",
		"--data", filepath.Join(e.dir, "data.json"),
	}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, "", args...)
	require.NoError(t, err, "aidev %s", strings.Join(args, " "))
	return out
}

// runJSON runs with --json and decodes the envelope's data into v.
func (e *cliEnv) runJSON(t *testing.T, v any, args ...string) {
	t.Helper()
	out := e.mustRun(t, append([]string{"--json"}, args...)...)
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &env), out)
	require.True(t, env.Success)
	if v != nil {
		require.NoError(t, json.Unmarshal(env.Data, v))
	}
}

func (e *cliEnv) createProject(t *testing.T, name string) string {
	t.Helper()
	var created map[string]string
	e.runJSON(t, &created, "project", "create", name)
	require.NotEmpty(t, created["id"])
	return created["id"]
}

func TestProjectCommands(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun(t, "project", "list")
	assert.Contains(t, out, "No projects yet")

	first := env.createProject(t, "Bakery")
	second := env.createProject(t, "Florist")

	var list []project.Project
	env.runJSON(t, &list, "project", "list")
	require.Len(t, list, 2)

	out = env.mustRun(t, "project", "list")
	assert.Contains(t, out, "* Florist")

	env.mustRun(t, "project", "use", first)
	var shown project.Project
	env.runJSON(t, &shown, "project", "show")
	assert.Equal(t, "Bakery", shown.Name)

	env.mustRun(t, "project", "delete", second)
	env.runJSON(t, &list, "project", "list")
	require.Len(t, list, 1)

	_, err := env.run(t, "", "project", "delete", second)
	assert.ErrorIs(t, err, project.ErrProjectNotFound)

	_, err = env.run(t, "", "project", "create", "   ")
	assert.ErrorIs(t, err, project.ErrEmptyName)
}

func TestFileCommands(t *testing.T) {
	env := newCLIEnv(t)
	env.createProject(t, "Site")

	env.mustRun(t, "file", "write", "index.html", "<html><head></head><body>hi</body></html>")
	_, err := env.run(t, "body { color: red; }", "file", "write", "css/site.css")
	require.NoError(t, err)

	out := env.mustRun(t, "file", "cat", "css/site.css")
	assert.Equal(t, "body { color: red; }\n", out)

	env.mustRun(t, "mkdir", "assets/img")
	out = env.mustRun(t, "tree")
	assert.Contains(t, out, "assets/")
	assert.Contains(t, out, "└── ")
	assert.Contains(t, out, "site.css")
	assert.Contains(t, out, "5 entries")

	out = env.mustRun(t, "tree", "assets")
	assert.Contains(t, out, "img/")
	assert.NotContains(t, out, "site.css")
	assert.Contains(t, out, "1 entries")
	_, err = env.run(t, "", "tree", "missing")
	assert.Error(t, err)

	previewFile := filepath.Join(env.dir, "preview.html")
	env.mustRun(t, "preview", "--out", previewFile)
	doc, err := os.ReadFile(previewFile)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "color: red")
	assert.Contains(t, string(doc), "<body>hi")

	out = env.mustRun(t, "file", "write", "--diff", "notes.txt", "one\ntwo\n")
	assert.Contains(t, out, "notes.txt: New file +2")
	out = env.mustRun(t, "file", "write", "--diff", "notes.txt", "one\nthree\n")
	assert.Contains(t, out, "notes.txt: Modified +1 -1")
	assert.Contains(t, out, "-two\n+three\n")

	env.mustRun(t, "file", "rm", "css")
	_, err = env.run(t, "", "file", "cat", "css/site.css")
	assert.Error(t, err)

	_, err = env.run(t, "", "file", "write", "../escape.txt", "x")
	assert.ErrorIs(t, err, project.ErrInvalidPath)
}

func TestFileCommands_NoProject(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "", "file", "write", "a.txt", "x")
	assert.ErrorIs(t, err, ErrNoProject)
}

func TestPreview_NoHTML(t *testing.T) {
	env := newCLIEnv(t)
	env.createProject(t, "Site")
	env.mustRun(t, "file", "write", "notes.txt", "plain")
	_, err := env.run(t, "", "preview")
	assert.Error(t, err)
}

func TestChatCommands(t *testing.T) {
	env := newCLIEnv(t)
	id := env.createProject(t, "Site")

	out := env.mustRun(t, "chat", "say", "hello")
	assert.Contains(t, out, "Hello there")

	_, err := env.run(t, "what colors?", "chat")
	require.NoError(t, err)

	var history []chat.Message
	env.runJSON(t, &history, "chat", "history", "-p", id)
	// Welcome message plus two exchanges.
	require.Len(t, history, 5)
	assert.Equal(t, "say hello", history[1].Content)
	assert.Equal(t, "what colors?", history[3].Content)

	var cleared []chat.Message
	env.runJSON(t, &cleared, "chat", "clear")
	require.Len(t, cleared, 1)
	assert.Equal(t, chat.ClearedText, cleared[0].Content)

	_, err = env.run(t, "   ", "chat")
	assert.ErrorIs(t, err, chat.ErrEmptyMessage)
}

func TestChat_ToolCallsWriteFiles(t *testing.T) {
	env := newCLIEnv(t)
	env.createProject(t, "Site")
	env.prov.reply = `{"tool_calls": [{"id": "c1", "type": "function", "function": {"name": "create_file", ` +
		`"arguments": {"path": "index.html", "content": "<html><body>made</body></html>"}}}], "content": ""}`

	var ex exchangeView
	env.runJSON(t, &ex, "chat", "build", "a", "page")
	assert.False(t, ex.Failed)
	assert.Equal(t, "canned", ex.Provider)
	require.Len(t, ex.Results, 1)
	assert.True(t, ex.Results[0].Success)
	assert.True(t, strings.HasPrefix(ex.PreviewURL, "/preview/"))

	out := env.mustRun(t, "file", "cat", "index.html")
	assert.Contains(t, out, "made")
}

func TestUsersCommands(t *testing.T) {
	env := newCLIEnv(t)

	var list []userView
	env.runJSON(t, &list, "users", "list")
	require.Len(t, list, 1)
	assert.True(t, list[0].Admin)

	env.mustRun(t, "users", "add", "alice", "secret")
	_, err := env.run(t, "", "users", "add", "alice", "other")
	assert.ErrorIs(t, err, users.ErrUsernameTaken)

	_, err = env.run(t, "", "users", "login", "alice", "wrong")
	assert.ErrorIs(t, err, users.ErrInvalidCredentials)
	out := env.mustRun(t, "users", "login", "alice", "secret")
	assert.Contains(t, out, "Logged in as alice")

	out = env.mustRun(t, "users", "list")
	assert.Contains(t, out, "* alice")
	env.mustRun(t, "users", "logout")

	csvFile := filepath.Join(env.dir, "users.csv")
	env.mustRun(t, "users", "export", "--out", csvFile)
	env.mustRun(t, "users", "rm", "alice")
	env.runJSON(t, &list, "users", "list")
	require.Len(t, list, 1)

	var imported map[string]int
	env.runJSON(t, &imported, "users", "import", csvFile)
	assert.Equal(t, 2, imported["imported"])

	_, err = env.run(t, "", "users", "rm", users.AdminUsername)
	assert.ErrorIs(t, err, users.ErrAdminProtected)

	_, err = env.run(t, "not,a,user,table", "users", "import")
	assert.ErrorIs(t, err, users.ErrInvalidCSV)
}

func TestSettingsCommands(t *testing.T) {
	env := newCLIEnv(t)

	env.mustRun(t, "settings", "set", config.KeyTemperature, "0.5")
	env.mustRun(t, "settings", "set", config.KeyGeminiAPIKey, "abcdef123456")

	var s config.Settings
	env.runJSON(t, &s, "settings", "show")
	assert.Equal(t, "0.5", s.Temperature)
	assert.Equal(t, "****3456", s.GeminiAPIKey)

	env.runJSON(t, &s, "settings", "show", "--reveal")
	assert.Equal(t, "abcdef123456", s.GeminiAPIKey)

	var st provider.Status
	env.runJSON(t, &st, "settings", "check")
	assert.Equal(t, "canned", st.Provider)
	assert.False(t, st.Checked)
	out := env.mustRun(t, "settings", "check")
	assert.Contains(t, out, "no status check")

	_, err := env.run(t, "", "settings", "set", config.KeyTemperature, "9")
	assert.Error(t, err)
	_, err = env.run(t, "", "settings", "set", "no-such-key", "x")
	assert.ErrorIs(t, err, config.ErrUnknownSetting)
}

func TestAdminCommands(t *testing.T) {
	env := newCLIEnv(t)
	env.createProject(t, "Site")
	env.mustRun(t, "file", "write", "index.html", "<html></html>")

	var state map[string]bool
	env.runJSON(t, &state, "admin", "maintenance", "on")
	assert.True(t, state["enabled"])
	env.runJSON(t, &state, "admin", "maintenance")
	assert.True(t, state["enabled"])

	_, err := env.run(t, "", "admin", "maintenance", "sideways")
	assert.Error(t, err)

	var stats struct {
		Projects    int  `json:"projects"`
		Files       int  `json:"files"`
		Users       int  `json:"users"`
		Maintenance bool `json:"maintenance"`
	}
	env.runJSON(t, &stats, "admin", "stats")
	assert.Equal(t, 1, stats.Projects)
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, 1, stats.Users)
	assert.True(t, stats.Maintenance)

	_, err = env.run(t, "", "admin", "reset")
	assert.Error(t, err)

	env.mustRun(t, "admin", "reset", "--yes")
	env.runJSON(t, &stats, "admin", "stats")
	assert.Equal(t, 0, stats.Projects)
	assert.False(t, stats.Maintenance)
}

func TestConfigCommands(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun(t, "config", "path")
	assert.Equal(t, env.configFile()+"\n", out)

	env.mustRun(t, "config", "set", "server.addr", "127.0.0.1:9999")
	data, err := os.ReadFile(env.configFile())
	require.NoError(t, err)
	assert.Contains(t, string(data), "127.0.0.1:9999")

	out = env.mustRun(t, "config", "show")
	assert.Contains(t, out, "127.0.0.1:9999")

	_, err = env.run(t, "", "config", "set", "server.nope", "x")
	assert.Error(t, err)
}

func TestRenderTree(t *testing.T) {
	p := &project.Project{
		Name: "Site",
		Files: map[string]project.File{
			"index.html":    {Path: "index.html"},
			"css":           {Path: "css", Kind: project.KindDirectory},
			"css/site.css":  {Path: "css/site.css"},
			"js/app.min.js": {Path: "js/app.min.js"},
		},
	}
	out := RenderTree(project.BuildTree(p), 80)
	want := strings.Join([]string{
		"Site",
		"├── css/",
		"│   └── site.css",
		"├── js/",
		"│   └── app.min.js",
		"└── index.html",
		"",
	}, "\n")
	assert.Equal(t, want, out)
}

func TestJSONErrorEnvelope(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONErrorResponse("aidev tree", ErrNoProject).Print(&buf))

	var resp JSONResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Contains(t, *resp.Error, "no project selected")
}

func TestChatExport(t *testing.T) {
	env := newCLIEnv(t)
	env.createProject(t, "Bakery")
	env.mustRun(t, "chat", "hello")

	out := env.mustRun(t, "chat", "export")
	assert.Contains(t, out, "# Bakery chat")
	assert.Contains(t, out, "Hello there")

	dest := filepath.Join(env.dir, "chat.html")
	env.mustRun(t, "chat", "export", "--format", "html", "--out", dest)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<title>Bakery chat</title>")

	_, err = env.run(t, "", "chat", "export", "--format", "pdf")
	assert.Error(t, err)
}
