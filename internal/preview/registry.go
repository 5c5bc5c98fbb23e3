// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package preview issues and serves the synthesized HTML documents that
// make up project previews.
//
// A handle is an opaque string, unique for the life of the process and
// never reused. Releasing a handle makes its document unreachable; the
// registry keeps a live count so leaked handles are observable.
package preview

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"github.com/jeranaias/aidev/internal/metrics"
)

// PathPrefix is where documents are served.
const PathPrefix = "/preview/"

// Document is a published preview.
type Document struct {
	Handle    string
	HTML      string
	ETag      string
	CreatedAt time.Time
}

// Registry holds the live preview documents. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	docs     map[string]*Document
	released int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{docs: make(map[string]*Document)}
}

// Publish stores html under a fresh handle and returns the handle.
func (r *Registry) Publish(html string) string {
	doc := &Document{
		Handle:    "pv-" + uuid.NewString(),
		HTML:      html,
		ETag:      ETag(html),
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	r.docs[doc.Handle] = doc
	live := len(r.docs)
	r.mu.Unlock()

	metrics.SetPreviewHandles(live)
	return doc.Handle
}

// Release drops the document behind handle. Releasing an unknown or
// already-released handle is a no-op that reports false.
func (r *Registry) Release(handle string) bool {
	r.mu.Lock()
	_, ok := r.docs[handle]
	if ok {
		delete(r.docs, handle)
		r.released++
	}
	live := len(r.docs)
	r.mu.Unlock()

	metrics.SetPreviewHandles(live)
	return ok
}

// Lookup returns the live document for handle.
func (r *Registry) Lookup(handle string) (Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[handle]
	if !ok {
		return Document{}, false
	}
	return *doc, true
}

// Live is the number of handles issued and not yet released.
func (r *Registry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

// Released is the number of successful Release calls.
func (r *Registry) Released() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.released
}

// URL is the served location of handle, relative to the server root.
func URL(handle string) string {
	if handle == "" {
		return ""
	}
	return PathPrefix + handle
}

// ETag is the strong validator for a document body.
func ETag(html string) string {
	return fmt.Sprintf("%q", fmt.Sprintf("%016x", xxh3.HashString(html)))
}

// ServeHTTP serves GET /preview/{handle}. Released handles answer 404.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handle := req.PathValue("handle")
	if handle == "" {
		handle = strings.TrimPrefix(req.URL.Path, PathPrefix)
	}

	doc, ok := r.Lookup(handle)
	if !ok {
		http.Error(w, "preview not found", http.StatusNotFound)
		return
	}

	w.Header().Set("ETag", doc.ETag)
	w.Header().Set("Cache-Control", "no-cache")
	if match := req.Header.Get("If-None-Match"); match != "" && match == doc.ETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if req.Method != http.MethodHead {
		_, _ = w.Write([]byte(doc.HTML))
	}
}
