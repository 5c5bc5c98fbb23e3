// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/jeranaias/aidev/internal/logging"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

// Backends lists every supported backend name.
var Backends = []string{BackendMemory, BackendFile, BackendSQLite, BackendPostgres, BackendS3}

// Options selects and configures a substrate backend.
type Options struct {
	Backend string
	// Path is the data file (file) or database file (sqlite). A directory
	// is accepted for both and gets a default file name.
	Path string
	// DSN is the Postgres connection URL.
	DSN string
	S3  S3Config
}

// Open constructs the configured backend and wraps it with metrics.
func Open(ctx context.Context, opts Options) (KV, error) {
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend == "" {
		backend = BackendFile
	}

	var (
		kv  KV
		err error
	)
	switch backend {
	case BackendMemory:
		kv = NewMemory()
	case BackendFile:
		kv, err = OpenFile(resolvePath(opts.Path, DefaultFileName))
	case BackendSQLite:
		kv, err = OpenSQLite(ctx, resolvePath(opts.Path, "aidev.db"))
	case BackendPostgres:
		kv, err = OpenPostgres(ctx, opts.DSN)
	case BackendS3:
		kv, err = OpenS3(ctx, opts.S3)
	default:
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownBackend, opts.Backend, strings.Join(Backends, ", "))
	}
	if err != nil {
		return nil, err
	}

	logging.Info("storage opened", zap.String("backend", backend))
	return Instrument(kv, backend), nil
}

// resolvePath appends name when p looks like a directory.
func resolvePath(p, name string) string {
	if p == "" {
		return name
	}
	if strings.HasSuffix(p, "/") || filepath.Ext(p) == "" {
		return filepath.Join(p, name)
	}
	return p
}

// AsFile returns the file backend behind kv, unwrapping instrumentation.
func AsFile(kv KV) (*File, bool) {
	for {
		switch v := kv.(type) {
		case *File:
			return v, true
		case interface{ Unwrap() KV }:
			kv = v.Unwrap()
		default:
			return nil, false
		}
	}
}
