// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package project

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/aidev/internal/logging"
	"github.com/jeranaias/aidev/internal/metrics"
	"github.com/jeranaias/aidev/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyName is returned by CreateProject for a blank name.
	ErrEmptyName = errors.New("project name is required")

	// ErrProjectNotFound is returned by SetCurrent for an unknown id.
	ErrProjectNotFound = errors.New("project not found")

	// ErrPathConflict is returned when a write would nest an entry under a
	// file or replace a directory that still has children.
	ErrPathConflict = errors.New("path conflicts with an existing entry")

	// ErrInvalidPath is returned for paths that are empty or escape the root.
	ErrInvalidPath = util.ErrInvalidPath
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Publisher turns a synthesized document into a browsable handle. Handles
// must never be reused; Release reports whether the handle was live.
type Publisher interface {
	Publish(html string) string
	Release(handle string) bool
}

// Snapshot is the durable form of the whole project collection.
type Snapshot struct {
	Projects  map[string]*Project
	CurrentID string
}

// Persistence mirrors the collection onto a durable substrate. Save always
// receives the entire collection.
type Persistence interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// =============================================================================
// STORE
// =============================================================================

// Store owns every project, the current-project pointer and each project's
// preview handle. It is safe for concurrent use; one mutex serializes all
// operations so each call is atomic to its callers.
type Store struct {
	mu       sync.Mutex
	projects map[string]*Project
	current  string

	pub     Publisher
	persist Persistence
	clock   func() time.Time
	newID   func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithIDGenerator overrides project id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithPersistence attaches a durable mirror. Without one the store is
// purely in-memory.
func WithPersistence(p Persistence) Option {
	return func(s *Store) { s.persist = p }
}

// NewStore creates an empty store publishing previews through pub.
func NewStore(pub Publisher, opts ...Option) *Store {
	s := &Store{
		projects: make(map[string]*Project),
		pub:      pub,
		clock:    time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// now returns timestamps in the precision the persisted ISO form keeps, so
// a save and reload round-trips to the same instant.
func (s *Store) now() time.Time {
	return s.clock().UTC().Truncate(time.Millisecond)
}

// Load replaces the in-memory collection with the persisted one. Stored
// preview references belong to a dead session and are regenerated.
func (s *Store) Load(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	snap, err := s.persist.Load(ctx)
	if err != nil {
		return fmt.Errorf("load projects: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.projects {
		s.releasePreview(p)
	}
	s.projects = make(map[string]*Project, len(snap.Projects))
	for id, p := range snap.Projects {
		if p == nil {
			continue
		}
		p = p.Clone()
		p.ID = id
		p.PreviewHandle = ""
		s.syncPreview(p)
		s.projects[id] = p
	}
	s.current = ""
	if _, ok := s.projects[snap.CurrentID]; ok {
		s.current = snap.CurrentID
	}

	logging.Debug("projects loaded", logging.Int("count", len(s.projects)))
	return nil
}

// CreateProject registers an empty project and makes it current.
func (s *Store) CreateProject(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	for s.projects[id] != nil {
		id = s.newID()
	}
	s.projects[id] = &Project{ID: id, Name: name, Files: make(map[string]File)}
	s.current = id

	logging.Info("project created", logging.String("id", id), logging.String("name", name))
	return id, s.save(ctx)
}

// ExecuteFileOperation applies op to the project's file table and then
// resynchronizes its preview. An unknown project id is a silent no-op and
// returns a nil project. Only validation and persistence failures are
// returned as errors.
func (s *Store) ExecuteFileOperation(ctx context.Context, id string, op Operation) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, nil
	}
	path, err := util.CleanProjectPath(op.Path)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", op.Kind, op.Path, err)
	}

	switch op.Kind {
	case OpCreate, OpUpdate:
		if err := s.write(p, path, op.Content); err != nil {
			return nil, fmt.Errorf("%s %q: %w", op.Kind, path, err)
		}
	case OpDelete:
		remove(p, path)
	default:
		return nil, fmt.Errorf("unsupported operation %s", op.Kind)
	}
	metrics.RecordFileOperation(op.Kind.String())

	s.syncPreview(p)
	return p.Clone(), s.save(ctx)
}

// CreateDirectory ensures path and each of its ancestors exist as directory
// entries. Existing directories are left untouched, so repeated calls are
// idempotent.
func (s *Store) CreateDirectory(ctx context.Context, id, path string) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, nil
	}
	clean, err := util.CleanProjectPath(path)
	if err != nil {
		return nil, fmt.Errorf("mkdir %q: %w", path, err)
	}

	dirs := append(util.Ancestors(clean), clean)
	for _, d := range dirs {
		if f, exists := p.Files[d]; exists && !f.IsDir() {
			return nil, fmt.Errorf("mkdir %q: %w", clean, ErrPathConflict)
		}
	}
	now := s.now()
	changed := false
	for _, d := range dirs {
		if _, exists := p.Files[d]; !exists {
			p.Files[d] = File{Path: d, LastModified: now, Kind: KindDirectory}
			changed = true
		}
	}
	metrics.RecordFileOperation("mkdir")

	if !changed {
		return p.Clone(), nil
	}
	return p.Clone(), s.save(ctx)
}

// write stores a File at path with its ancestors synthesized as directories.
func (s *Store) write(p *Project, path, content string) error {
	ancestors := util.Ancestors(path)
	for _, a := range ancestors {
		if f, ok := p.Files[a]; ok && !f.IsDir() {
			return ErrPathConflict
		}
	}
	if f, ok := p.Files[path]; ok && f.IsDir() && hasDescendants(p, path) {
		return ErrPathConflict
	}

	now := s.now()
	for _, a := range ancestors {
		if _, ok := p.Files[a]; !ok {
			p.Files[a] = File{Path: a, LastModified: now, Kind: KindDirectory}
		}
	}
	p.Files[path] = File{Path: path, Content: content, LastModified: now, Kind: KindFile}
	return nil
}

// remove deletes path, anything nested beneath it, and every ancestor
// directory the removal leaves empty. A missing path changes nothing.
func remove(p *Project, path string) {
	delete(p.Files, path)
	prefix := path + "/"
	for k := range p.Files {
		if strings.HasPrefix(k, prefix) {
			delete(p.Files, k)
		}
	}

	ancestors := util.Ancestors(path)
	for i := len(ancestors) - 1; i >= 0; i-- {
		if hasDescendants(p, ancestors[i]) {
			return
		}
		delete(p.Files, ancestors[i])
	}
}

func hasDescendants(p *Project, dir string) bool {
	prefix := dir + "/"
	for k := range p.Files {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

// syncPreview replaces the project's preview with one built from the
// current file table, or clears it when no HTML file remains. The old
// handle is always released before a new one is installed.
func (s *Store) syncPreview(p *Project) {
	doc, ok := Synthesize(p.Files)
	s.releasePreview(p)
	if !ok || s.pub == nil {
		return
	}
	p.PreviewHandle = s.pub.Publish(doc)
}

func (s *Store) releasePreview(p *Project) {
	if p.PreviewHandle == "" {
		return
	}
	if s.pub != nil {
		s.pub.Release(p.PreviewHandle)
	}
	p.PreviewHandle = ""
}

// =============================================================================
// LOOKUPS
// =============================================================================

// Project returns a copy of the project with the given id.
func (s *Store) Project(id string) (*Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// CurrentProject returns a copy of the current project, if one is set.
func (s *Store) CurrentProject() (*Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[s.current]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// CurrentID returns the current project id or "".
func (s *Store) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetCurrent switches the current project.
func (s *Store) SetCurrent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	if s.current == id {
		return nil
	}
	s.current = id
	return s.save(ctx)
}

// DeleteProject removes a project and releases its preview. Deleting the
// current project clears the current pointer. Unknown ids are ignored.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return nil
	}
	s.releasePreview(p)
	delete(s.projects, id)
	if s.current == id {
		s.current = ""
	}

	logging.Info("project deleted", logging.String("id", id))
	return s.save(ctx)
}

// List returns copies of every project ordered by name, then id.
func (s *Store) List() []*Project {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Tree derives the directory tree of a project.
func (s *Store) Tree(id string) (*Node, bool) {
	p, ok := s.Project(id)
	if !ok {
		return nil, false
	}
	return BuildTree(p), true
}

// save writes the whole collection. The caller holds s.mu. A failed save
// leaves the in-memory mutation in place.
func (s *Store) save(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	snap := Snapshot{Projects: make(map[string]*Project, len(s.projects)), CurrentID: s.current}
	for id, p := range s.projects {
		snap.Projects[id] = p.Clone()
	}
	if err := s.persist.Save(ctx, snap); err != nil {
		logging.Error("persist projects failed", logging.Err(err))
		return fmt.Errorf("persist projects: %w", err)
	}
	return nil
}
