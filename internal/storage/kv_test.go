// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CONFORMANCE
// =============================================================================

// exerciseKV runs the behaviour every backend must share.
func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "ai-dev-projects", `{"a":1}`))
	require.NoError(t, kv.Set(ctx, "chat-messages-2", "[]"))
	require.NoError(t, kv.Set(ctx, "chat-messages-1", "[]"))

	v, ok, err := kv.Get(ctx, "ai-dev-projects")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"a":1}`, v)

	require.NoError(t, kv.Set(ctx, "ai-dev-projects", `{"a":2}`))
	v, _, err = kv.Get(ctx, "ai-dev-projects")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, v, "last write wins")

	keys, err := kv.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ai-dev-projects", "chat-messages-1", "chat-messages-2"}, keys)

	chats, err := KeysWithPrefix(ctx, kv, "chat-messages-")
	require.NoError(t, err)
	assert.Equal(t, []string{"chat-messages-1", "chat-messages-2"}, chats)

	require.NoError(t, kv.Delete(ctx, "chat-messages-1"))
	require.NoError(t, kv.Delete(ctx, "never-existed"))
	_, ok, err = kv.Get(ctx, "chat-messages-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Close())
}

func TestMemory(t *testing.T) {
	exerciseKV(t, NewMemory())
}

func TestMemory_Closed(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())
	_, _, err := m.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Set(context.Background(), "k", "v"), ErrClosed)
}

func TestFile(t *testing.T) {
	f, err := OpenFile(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	exerciseKV(t, f)
}

func TestFile_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	f, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Set(ctx, "ai-dev-current-project", "p1"))
	require.NoError(t, f.Close())

	reopened, err := OpenFile(path)
	require.NoError(t, err)
	v, ok, err := reopened.Get(ctx, "ai-dev-current-project")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "p1", v)
}

func TestFile_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := OpenFile(path)
	assert.Error(t, err)
}

func TestFile_WatchReloadsExternalWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f, err := OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.Set(ctx, "k", "mine"))

	var mu sync.Mutex
	changes := 0
	require.NoError(t, f.Watch(ctx, func() {
		mu.Lock()
		changes++
		mu.Unlock()
	}))

	// Another process writes the file.
	other, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, other.Set(ctx, "k", "theirs"))

	require.Eventually(t, func() bool {
		v, _, _ := f.Get(ctx, "k")
		return v == "theirs"
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.GreaterOrEqual(t, changes, 1)
	mu.Unlock()
}

func TestSQLite(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	exerciseKV(t, s)
}

func TestSQLite_Closed(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "double close is harmless")
	_, err = s.Keys(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("AIDEV_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AIDEV_TEST_POSTGRES_DSN not set")
	}
	s, err := OpenPostgres(context.Background(), dsn)
	require.NoError(t, err)
	ctx := context.Background()
	for _, k := range []string{"ai-dev-projects", "chat-messages-1", "chat-messages-2"} {
		require.NoError(t, s.Delete(ctx, k))
	}
	exerciseKV(t, s)
}

// =============================================================================
// S3
// =============================================================================

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	pageLen int
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte), pageLen: 2}
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(raw))}, nil
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	raw, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.objects[aws.ToString(in.Key)] = raw
	f.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	delete(f.objects, aws.ToString(in.Key))
	f.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

// ListObjectsV2 pages through keys pageLen at a time using the index as token.
func (f *fakeObjects) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var all []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			all = append(all, k)
		}
	}
	sort.Strings(all)

	start := 0
	if in.ContinuationToken != nil {
		for i, k := range all {
			if k == *in.ContinuationToken {
				start = i
				break
			}
		}
	}
	end := start + f.pageLen
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if end < len(all) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(all[end])
	} else {
		end = len(all)
	}
	for _, k := range all[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func TestS3(t *testing.T) {
	exerciseKV(t, newS3(newFakeObjects(), "bucket", "aidev"))
}

func TestS3_PrefixIsolation(t *testing.T) {
	objects := newFakeObjects()
	objects.objects["other/key"] = []byte("x")

	s := newS3(objects, "bucket", "aidev/")
	require.NoError(t, s.Set(context.Background(), "k", "v"))

	keys, err := s.Keys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)
	assert.Contains(t, objects.objects, "aidev/k")
}

func TestOpenS3_RequiresBucket(t *testing.T) {
	_, err := OpenS3(context.Background(), S3Config{})
	assert.Error(t, err)
}

// =============================================================================
// OPEN
// =============================================================================

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, backend := range []string{BackendMemory, BackendFile, BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			kv, err := Open(ctx, Options{Backend: backend, Path: filepath.Join(dir, backend)})
			require.NoError(t, err)
			require.NoError(t, kv.Set(ctx, "k", "v"))
			require.NoError(t, kv.Close())
		})
	}

	_, err := Open(ctx, Options{Backend: "redis"})
	assert.True(t, errors.Is(err, ErrUnknownBackend))
}

func TestAsFile(t *testing.T) {
	kv, err := Open(context.Background(), Options{Backend: BackendFile, Path: t.TempDir()})
	require.NoError(t, err)
	defer kv.Close()

	f, ok := AsFile(kv)
	require.True(t, ok)
	assert.Equal(t, DefaultFileName, filepath.Base(f.Path()))

	_, ok = AsFile(NewMemory())
	assert.False(t, ok)
}
