// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/aidev/internal/metrics"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrClosed is returned by every operation on a closed substrate.
	ErrClosed = errors.New("storage: substrate closed")

	// ErrUnknownBackend is returned by Open for an unrecognized backend name.
	ErrUnknownBackend = errors.New("storage: unknown backend")
)

// =============================================================================
// SUBSTRATE
// =============================================================================

// KV is a string key-value store with no transactions. Every write is
// last-write-wins; concurrent writers on a shared backend are not detected.
type KV interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists every stored key in lexicographic order.
	Keys(ctx context.Context) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// KeysWithPrefix filters kv.Keys by prefix.
func KeysWithPrefix(ctx context.Context, kv KV, prefix string) ([]string, error) {
	keys, err := kv.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := keys[:0]
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// INSTRUMENTATION
// =============================================================================

// instrumented records latency and outcome of every call in Prometheus.
type instrumented struct {
	inner   KV
	backend string
}

// Instrument wraps kv so that each call is recorded under the backend label.
func Instrument(kv KV, backend string) KV {
	return &instrumented{inner: kv, backend: backend}
}

func (i *instrumented) Get(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	v, ok, err := i.inner.Get(ctx, key)
	metrics.RecordKVOperation(i.backend, "get", time.Since(start), err)
	return v, ok, err
}

func (i *instrumented) Set(ctx context.Context, key, value string) error {
	start := time.Now()
	err := i.inner.Set(ctx, key, value)
	metrics.RecordKVOperation(i.backend, "set", time.Since(start), err)
	return err
}

func (i *instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := i.inner.Delete(ctx, key)
	metrics.RecordKVOperation(i.backend, "delete", time.Since(start), err)
	return err
}

func (i *instrumented) Keys(ctx context.Context) ([]string, error) {
	start := time.Now()
	keys, err := i.inner.Keys(ctx)
	metrics.RecordKVOperation(i.backend, "keys", time.Since(start), err)
	return keys, err
}

func (i *instrumented) Close() error { return i.inner.Close() }

// Unwrap exposes the wrapped substrate, e.g. to reach File.Watch.
func (i *instrumented) Unwrap() KV { return i.inner }
