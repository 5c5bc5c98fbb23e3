// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package project

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/aidev/internal/preview"
	"github.com/jeranaias/aidev/internal/storage"
)

const basicHTML = "<html><head></head><body></body></html>"

func newTestStore(t *testing.T, opts ...Option) (*Store, *preview.Registry) {
	t.Helper()
	reg := preview.NewRegistry()
	return NewStore(reg, opts...), reg
}

func previewHTML(t *testing.T, reg *preview.Registry, p *Project) string {
	t.Helper()
	require.NotEmpty(t, p.PreviewHandle, "expected a live preview")
	doc, ok := reg.Lookup(p.PreviewHandle)
	require.True(t, ok, "preview handle %s is not live", p.PreviewHandle)
	return doc.HTML
}

func mustProject(t *testing.T, s *Store) string {
	t.Helper()
	id, err := s.CreateProject(context.Background(), "Demo")
	require.NoError(t, err)
	return id
}

func TestCreateProject(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	id, err := s.CreateProject(ctx, "Demo")
	require.NoError(t, err)

	p, ok := s.Project(id)
	require.True(t, ok)
	assert.Equal(t, "Demo", p.Name)
	assert.Empty(t, p.Files)
	assert.False(t, p.HasPreview())
	assert.Equal(t, id, s.CurrentID())

	_, err = s.CreateProject(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestScenarioA_IndexOnlyPreview(t *testing.T) {
	ctx := context.Background()
	s, reg := newTestStore(t)
	id := mustProject(t, s)

	p, err := s.ExecuteFileOperation(ctx, id, Create("index.html", basicHTML))
	require.NoError(t, err)
	assert.Equal(t, basicHTML, previewHTML(t, reg, p))
}

func TestScenarioB_StylesheetInlined(t *testing.T) {
	ctx := context.Background()
	s, reg := newTestStore(t)
	id := mustProject(t, s)

	_, err := s.ExecuteFileOperation(ctx, id, Create("index.html", basicHTML))
	require.NoError(t, err)
	p, err := s.ExecuteFileOperation(ctx, id, Create("styles.css", "body{color:red}"))
	require.NoError(t, err)

	doc := previewHTML(t, reg, p)
	assert.Contains(t, doc, "<style>/* styles.css */\nbody{color:red}\n</style>\n</head>")
	assert.Equal(t, "<html><head><style>/* styles.css */\nbody{color:red}\n</style>\n</head><body></body></html>", doc)
}

func TestScenarioC_AncestorsSynthesized(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	id := mustProject(t, s)

	p, err := s.ExecuteFileOperation(ctx, id, Create("a/b/c.txt", "hi"))
	require.NoError(t, err)

	require.Len(t, p.Files, 3)
	assert.Equal(t, KindDirectory, p.Files["a"].Kind)
	assert.Equal(t, KindDirectory, p.Files["a/b"].Kind)
	assert.Equal(t, KindFile, p.Files["a/b/c.txt"].Kind)
	assert.Equal(t, "hi", p.Files["a/b/c.txt"].Content)
	assert.Empty(t, p.Files["a"].Content)
}

func TestScenarioD_DeletePrunesEmptyAncestors(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	id := mustProject(t, s)

	_, err := s.ExecuteFileOperation(ctx, id, Create("a/b/c.txt", "hi"))
	require.NoError(t, err)
	p, err := s.ExecuteFileOperation(ctx, id, Delete("a/b/c.txt"))
	require.NoError(t, err)

	assert.NotContains(t, p.Files, "a/b/c.txt")
	assert.NotContains(t, p.Files, "a/b")
	assert.NotContains(t, p.Files, "a")
	assert.Empty(t, p.Files)
}

func TestDeleteKeepsNonEmptyAncestor(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	id := mustProject(t, s)

	for _, path := range []string{"a/b/c.txt", "a/keep.txt"} {
		_, err := s.ExecuteFileOperation(ctx, id, Create(path, "x"))
		require.NoError(t, err)
	}
	p, err := s.ExecuteFileOperation(ctx, id, Delete("a/b/c.txt"))
	require.NoError(t, err)

	assert.NotContains(t, p.Files, "a/b")
	assert.Contains(t, p.Files, "a")
	assert.Contains(t, p.Files, "a/keep.txt")
}

func TestDeleteDirectoryRemovesDescendants(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	id := mustProject(t, s)

	for _, path := range []string{"src/a.js", "src/lib/b.js", "readme.md"} {
		_, err := s.ExecuteFileOperation(ctx, id, Create(path, "x"))
		require.NoError(t, err)
	}
	p, err := s.ExecuteFileOperation(ctx, id, Delete("src"))
	require.NoError(t, err)

	assert.Equal(t, []string{"readme.md"}, p.Paths())
}

func TestDeleteMissingPathIsNoop(t *testing.T) {
	ctx := context.Background()
	s, reg := newTestStore(t)
	id := mustProject(t, s)

	before, err := s.ExecuteFileOperation(ctx, id, Create("index.html", basicHTML))
	require.NoError(t, err)
	after, err := s.ExecuteFileOperation(ctx, id, Delete("nope.txt"))
	require.NoError(t, err)

	assert.Equal(t, before.Paths(), after.Paths())
	// The preview is still rechecked, so a fresh handle replaces the old one.
	assert.NotEqual(t, before.PreviewHandle, after.PreviewHandle)
	assert.Equal(t, basicHTML, previewHTML(t, reg, after))
	assert.Equal(t, 1, reg.Live())
}

func TestScenarioE_LastHTMLDeletedReleasesPreview(t *testing.T) {
	ctx := context.Background()
	s, reg := newTestStore(t)
	id := mustProject(t, s)

	p, err := s.ExecuteFileOperation(ctx, id, Create("index.html", basicHTML))
	require.NoError(t, err)
	handle := p.PreviewHandle
	require.NotEmpty(t, handle)

	p, err = s.ExecuteFileOperation(ctx, id, Delete("index.html"))
	require.NoError(t, err)

	assert.False(t, p.HasPreview())
	_, live := reg.Lookup(handle)
	assert.False(t, live)
	assert.Zero(t, reg.Live())
}

func TestScenarioF_UniqueIDs(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id, err := s.CreateProject(ctx, "p")
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestCreateProject_RegeneratesCollidingID(t *testing.T) {
	ctx := context.Background()
	ids := []string{"same", "same", "other"}
	next := 0
	s, _ := newTestStore(t, WithIDGenerator(func() string {
		id := ids[next]
		next++
		return id
	}))

	first, err := s.CreateProject(ctx, "one")
	require.NoError(t, err)
	second, err := s.CreateProject(ctx, "two")
	require.NoError(t, err)
	assert.Equal(t, "same", first)
	assert.Equal(t, "other", second)
}

func TestLastWriteWins(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	id := mustProject(t, s)

	ops := []Operation{
		Create("x/y/z.txt", "one"),
		Update("x/y/z.txt", "two"),
		Create("x/y/z.txt", "three"),
	}
	var p *Project
	var err error
	for _, op := range ops {
		p, err = s.ExecuteFileOperation(ctx, id, op)
		require.NoError(t, err)
	}

	assert.Equal(t, "three", p.Files["x/y/z.txt"].Content)
	assert.Equal(t, KindFile, p.Files["x/y/z.txt"].Kind)
	assert.Equal(t, KindDirectory, p.Files["x"].Kind)
	assert.Equal(t, KindDirectory, p.Files["x/y"].Kind)
}

func TestUnknownProjectIsSilentNoop(t *testing.T) {
	ctx := context.Background()
	s, reg := newTestStore(t)

	p, err := s.ExecuteFileOperation(ctx, "missing", Create("index.html", basicHTML))
	assert.NoError(t, err)
	assert.Nil(t, p)

	p, err = s.CreateDirectory(ctx, "missing", "a")
	assert.NoError(t, err)
	assert.Nil(t, p)

	assert.NoError(t, s.DeleteProject(ctx, "missing"))
	assert.Zero(t, reg.Live())
}

func TestUnknownProjectWinsOverInvalidPath(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	p, err := s.ExecuteFileOperation(ctx, "missing", Create("../escape", "x"))
	assert.NoError(t, err)
	assert.Nil(t, p)

	p, err = s.CreateDirectory(ctx, "missing", "")
	assert.NoError(t, err)
	assert.Nil(t, p)

	id := mustProject(t, s)
	_, err = s.ExecuteFileOperation(ctx, id, Create("../escape", "x"))
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestPathValidation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	id := mustProject(t, s)

	_, err := s.ExecuteFileOperation(ctx, id, Create("../etc/passwd", "x"))
	assert.ErrorIs(t, err, ErrInvalidPath)
	_, err = s.ExecuteFileOperation(ctx, id, Create("  ", "x"))
	assert.ErrorIs(t, err, ErrInvalidPath)

	p, err := s.ExecuteFileOperation(ctx, id, Create("./src//app.js", "x"))
	require.NoError(t, err)
	assert.Equal(t, []string{"src", "src/app.js"}, p.Paths())
}

func TestPathConflict(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	id := mustProject(t, s)

	_, err := s.ExecuteFileOperation(ctx, id, Create("notes", "plain file"))
	require.NoError(t, err)

	_, err = s.ExecuteFileOperation(ctx, id, Create("notes/today.txt", "x"))
	assert.ErrorIs(t, err, ErrPathConflict)
	_, err = s.CreateDirectory(ctx, id, "notes/archive")
	assert.ErrorIs(t, err, ErrPathConflict)

	_, err = s.ExecuteFileOperation(ctx, id, Create("src/app.js", "x"))
	require.NoError(t, err)
	_, err = s.ExecuteFileOperation(ctx, id, Create("src", "x"))
	assert.ErrorIs(t, err, ErrPathConflict)

	p, ok := s.Project(id)
	require.True(t, ok)
	assert.Equal(t, []string{"notes", "src", "src/app.js"}, p.Paths())
}

func TestCreateDirectoryIdempotent(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	id := mustProject(t, s)

	once, err := s.CreateDirectory(ctx, id, "assets/img")
	require.NoError(t, err)
	twice, err := s.CreateDirectory(ctx, id, "assets/img")
	require.NoError(t, err)

	assert.Equal(t, once.Files, twice.Files)
	assert.Equal(t, []string{"assets", "assets/img"}, twice.Paths())
	assert.True(t, twice.Files["assets/img"].IsDir())
}

func TestPreviewInlinesCurrentScriptsAndStyles(t *testing.T) {
	ctx := context.Background()
	s, reg := newTestStore(t)
	id := mustProject(t, s)

	ops := []Operation{
		Create("index.html", basicHTML),
		Create("js/app.js", "console.log(1)"),
		Create("css/site.css", "h1{}"),
		Update("js/app.js", "console.log(2)"),
	}
	var p *Project
	var err error
	for _, op := range ops {
		p, err = s.ExecuteFileOperation(ctx, id, op)
		require.NoError(t, err)
	}

	doc := previewHTML(t, reg, p)
	assert.Contains(t, doc, "<script>/* js/app.js */\nconsole.log(2)\n</script>\n</body>")
	assert.NotContains(t, doc, "console.log(1)")
	assert.Contains(t, doc, "<style>/* css/site.css */\nh1{}\n</style>\n</head>")
	assert.Equal(t, 1, reg.Live())
}

func TestPreviewPresentIffHTMLExists(t *testing.T) {
	ctx := context.Background()
	s, reg := newTestStore(t)
	id := mustProject(t, s)

	steps := []struct {
		op      Operation
		preview bool
	}{
		{Create("style.css", "a{}"), false},
		{Create("pages/about.html", "<p>about</p>"), true},
		{Create("index.html", basicHTML), true},
		{Delete("index.html"), true},
		{Delete("pages/about.html"), false},
		{Create("app.js", "x()"), false},
	}
	for i, step := range steps {
		p, err := s.ExecuteFileOperation(ctx, id, step.op)
		require.NoError(t, err)
		assert.Equal(t, step.preview, p.HasPreview(), "step %d (%s %s)", i, step.op.Kind, step.op.Path)
		if step.preview {
			assert.Equal(t, 1, reg.Live())
		} else {
			assert.Zero(t, reg.Live())
		}
	}
}

func TestDeleteProjectReleasesPreview(t *testing.T) {
	ctx := context.Background()
	s, reg := newTestStore(t)
	id := mustProject(t, s)

	p, err := s.ExecuteFileOperation(ctx, id, Create("index.html", basicHTML))
	require.NoError(t, err)
	require.Equal(t, 1, reg.Live())

	require.NoError(t, s.DeleteProject(ctx, id))

	_, ok := s.Project(id)
	assert.False(t, ok)
	assert.Empty(t, s.CurrentID())
	_, live := reg.Lookup(p.PreviewHandle)
	assert.False(t, live)
	assert.Zero(t, reg.Live())
}

func TestDeleteOtherProjectKeepsCurrent(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	first, err := s.CreateProject(ctx, "first")
	require.NoError(t, err)
	second, err := s.CreateProject(ctx, "second")
	require.NoError(t, err)

	require.NoError(t, s.DeleteProject(ctx, first))
	assert.Equal(t, second, s.CurrentID())
}

func TestSetCurrent(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	first, err := s.CreateProject(ctx, "first")
	require.NoError(t, err)
	_, err = s.CreateProject(ctx, "second")
	require.NoError(t, err)

	require.NoError(t, s.SetCurrent(ctx, first))
	cur, ok := s.CurrentProject()
	require.True(t, ok)
	assert.Equal(t, "first", cur.Name)

	assert.ErrorIs(t, s.SetCurrent(ctx, "missing"), ErrProjectNotFound)
	assert.Equal(t, first, s.CurrentID())
}

func TestListOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := s.CreateProject(ctx, name)
		require.NoError(t, err)
	}

	var names []string
	for _, p := range s.List() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func TestReturnedProjectsAreCopies(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	id := mustProject(t, s)

	p, err := s.ExecuteFileOperation(ctx, id, Create("a.txt", "x"))
	require.NoError(t, err)
	p.Files["b.txt"] = File{Path: "b.txt"}

	again, _ := s.Project(id)
	assert.NotContains(t, again.Files, "b.txt")
}

func TestTimestampsFromClock(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 3, 4, 5, 6, 7, 891234567, time.FixedZone("X", 3600))
	s, _ := newTestStore(t, WithClock(func() time.Time { return at }))
	id := mustProject(t, s)

	p, err := s.ExecuteFileOperation(ctx, id, Create("d/f.txt", "x"))
	require.NoError(t, err)

	want := at.UTC().Truncate(time.Millisecond)
	assert.True(t, want.Equal(p.Files["d/f.txt"].LastModified))
	assert.True(t, want.Equal(p.Files["d"].LastModified))
	assert.Equal(t, time.UTC, p.Files["d"].LastModified.Location())
}

func TestConcurrentOperations(t *testing.T) {
	ctx := context.Background()
	s, reg := newTestStore(t)
	id := mustProject(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.ExecuteFileOperation(ctx, id, Create("index.html", basicHTML))
			assert.NoError(t, err)
			_, err = s.ExecuteFileOperation(ctx, id, Create("style.css", "a{}"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, reg.Live())
}

// =============================================================================
// PERSISTENCE
// =============================================================================

type failingPersistence struct{ err error }

func (f failingPersistence) Load(context.Context) (Snapshot, error) { return Snapshot{}, f.err }
func (f failingPersistence) Save(context.Context, Snapshot) error  { return f.err }

func TestPersistenceFailureIsReturned(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	s, _ := newTestStore(t, WithPersistence(failingPersistence{err: boom}))

	id, err := s.CreateProject(ctx, "Demo")
	require.ErrorIs(t, err, boom)

	// The mutation itself stays applied in memory.
	_, ok := s.Project(id)
	assert.True(t, ok)

	assert.ErrorIs(t, s.Load(ctx), boom)
}

func TestStoreReloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()

	s, _ := newTestStore(t, WithPersistence(NewKVPersistence(kv)))
	id := mustProject(t, s)
	for _, op := range []Operation{
		Create("index.html", basicHTML),
		Create("css/a.css", "p{}"),
		Create("docs/readme.md", "# hi"),
	} {
		_, err := s.ExecuteFileOperation(ctx, id, op)
		require.NoError(t, err)
	}
	_, err := s.CreateDirectory(ctx, id, "empty/dir")
	require.NoError(t, err)
	before, _ := s.Project(id)

	reloaded, reg := newTestStore(t, WithPersistence(NewKVPersistence(kv)))
	require.NoError(t, reloaded.Load(ctx))

	after, ok := reloaded.Project(id)
	require.True(t, ok)
	assert.Equal(t, id, reloaded.CurrentID())
	assert.Equal(t, before.Name, after.Name)
	require.Equal(t, before.Paths(), after.Paths())
	for path, f := range before.Files {
		g := after.Files[path]
		assert.Equal(t, f.Path, g.Path)
		assert.Equal(t, f.Content, g.Content)
		assert.Equal(t, f.Kind, g.Kind)
		assert.True(t, f.LastModified.Equal(g.LastModified), "timestamp for %s", path)
	}

	// The stored preview location is stale; a fresh one is published.
	assert.NotEqual(t, before.PreviewHandle, after.PreviewHandle)
	assert.Contains(t, previewHTML(t, reg, after), "/* css/a.css */")
}

func TestLoadDropsUnknownCurrent(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	require.NoError(t, kv.Set(ctx, ProjectsKey, `{}`))
	require.NoError(t, kv.Set(ctx, CurrentKey, "ghost"))

	s, _ := newTestStore(t, WithPersistence(NewKVPersistence(kv)))
	require.NoError(t, s.Load(ctx))
	assert.Empty(t, s.CurrentID())
}

func TestLoadReleasesPreviousPreviews(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	s, reg := newTestStore(t, WithPersistence(NewKVPersistence(kv)))
	id := mustProject(t, s)
	_, err := s.ExecuteFileOperation(ctx, id, Create("index.html", basicHTML))
	require.NoError(t, err)
	require.Equal(t, 1, reg.Live())

	require.NoError(t, s.Load(ctx))
	assert.Equal(t, 1, reg.Live())
}
