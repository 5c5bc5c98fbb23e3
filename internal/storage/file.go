// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/jeranaias/aidev/internal/logging"
	"github.com/jeranaias/aidev/internal/util"
)

// DefaultFileName is the data file used when only a directory is configured.
const DefaultFileName = "aidev-state.json"

// File keeps the whole substrate as one JSON object on disk. Every write
// rewrites the file atomically, so two processes sharing the file get
// last-write-wins semantics, the same as two browser tabs sharing storage.
type File struct {
	path string

	mu      sync.RWMutex
	data    map[string]string
	written []byte // last bytes this process wrote, to ignore our own events
	closed  bool

	watcher *fsnotify.Watcher
}

// OpenFile loads path, creating an empty substrate when the file is absent.
func OpenFile(path string) (*File, error) {
	f := &File{path: path, data: make(map[string]string)}
	if err := f.reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Path returns the data file location.
func (f *File) Path() string { return f.path }

func (f *File) reload() error {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", f.path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	data := make(map[string]string)
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("decode %s: %w", f.path, err)
	}
	f.data = data
	return nil
}

// flush must be called with mu held for writing.
func (f *File) flush() error {
	raw, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode substrate: %w", err)
	}
	if err := util.AtomicWriteFile(f.path, raw, 0o600); err != nil {
		return err
	}
	f.written = raw
	return nil
}

func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return "", false, ErrClosed
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	prev, had := f.data[key]
	f.data[key] = value
	if err := f.flush(); err != nil {
		if had {
			f.data[key] = prev
		} else {
			delete(f.data, key)
		}
		return err
	}
	return nil
}

func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	prev, had := f.data[key]
	if !had {
		return nil
	}
	delete(f.data, key)
	if err := f.flush(); err != nil {
		f.data[key] = prev
		return err
	}
	return nil
}

func (f *File) Keys(_ context.Context) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, ErrClosed
	}
	return sortedKeys(f.data), nil
}

// Watch reloads the substrate whenever another process replaces the data
// file and invokes onChange afterwards. It returns once the watcher is
// installed; events are processed until ctx is done or Close is called.
func (f *File) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Atomic renames replace the inode, so the directory is watched instead
	// of the file itself.
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		w.Close()
		return fmt.Errorf("create data directory: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	f.mu.Lock()
	if f.watcher != nil {
		f.watcher.Close()
	}
	f.watcher = w
	f.mu.Unlock()

	target, _ := filepath.Abs(f.path)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				name, _ := filepath.Abs(event.Name)
				if name != target || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				if f.externalChange() && onChange != nil {
					onChange()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logging.Warn("substrate watcher error", zap.String("path", f.path), zap.Error(err))
			}
		}
	}()
	return nil
}

// externalChange reloads the data file and reports whether its content
// differs from what this process last wrote.
func (f *File) externalChange() bool {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || bytes.Equal(raw, f.written) {
		return false
	}
	if err := f.reload(); err != nil {
		logging.Warn("substrate reload failed", zap.String("path", f.path), zap.Error(err))
		return false
	}
	f.written = raw
	logging.Info("substrate reloaded after external write", zap.String("path", f.path))
	return true
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.watcher != nil {
		err := f.watcher.Close()
		f.watcher = nil
		return err
	}
	return nil
}
