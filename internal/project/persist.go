// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package project

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jeranaias/aidev/internal/preview"
	"github.com/jeranaias/aidev/internal/storage"
)

// Keys of the persisted layout.
const (
	ProjectsKey = "ai-dev-projects"
	CurrentKey  = "ai-dev-current-project"
)

// TimeLayout is the ISO-8601 form timestamps are persisted in.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

type storedFile struct {
	Path         string `json:"path"`
	Content      string `json:"content"`
	LastModified string `json:"lastModified"`
	Type         string `json:"type"`
}

type storedProject struct {
	Name       string                `json:"name"`
	Files      map[string]storedFile `json:"files"`
	PreviewURL string                `json:"previewUrl,omitempty"`
}

// KVPersistence stores the collection under ProjectsKey and the current
// pointer under CurrentKey.
type KVPersistence struct {
	kv storage.KV
}

// NewKVPersistence binds the collection to kv.
func NewKVPersistence(kv storage.KV) *KVPersistence {
	return &KVPersistence{kv: kv}
}

func (k *KVPersistence) Load(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Projects: make(map[string]*Project)}

	raw, ok, err := k.kv.Get(ctx, ProjectsKey)
	if err != nil {
		return snap, err
	}
	if ok && raw != "" {
		projects, err := DecodeProjects(raw)
		if err != nil {
			return snap, err
		}
		snap.Projects = projects
	}

	current, _, err := k.kv.Get(ctx, CurrentKey)
	if err != nil {
		return snap, err
	}
	snap.CurrentID = current
	return snap, nil
}

func (k *KVPersistence) Save(ctx context.Context, snap Snapshot) error {
	raw, err := EncodeProjects(snap.Projects)
	if err != nil {
		return err
	}
	if err := k.kv.Set(ctx, ProjectsKey, raw); err != nil {
		return err
	}
	if snap.CurrentID == "" {
		return k.kv.Delete(ctx, CurrentKey)
	}
	return k.kv.Set(ctx, CurrentKey, snap.CurrentID)
}

// EncodeProjects renders the collection in its persisted JSON form.
func EncodeProjects(projects map[string]*Project) (string, error) {
	out := make(map[string]storedProject, len(projects))
	for id, p := range projects {
		sp := storedProject{
			Name:       p.Name,
			Files:      make(map[string]storedFile, len(p.Files)),
			PreviewURL: preview.URL(p.PreviewHandle),
		}
		for path, f := range p.Files {
			sp.Files[path] = storedFile{
				Path:         f.Path,
				Content:      f.Content,
				LastModified: f.LastModified.UTC().Format(TimeLayout),
				Type:         f.Kind.String(),
			}
		}
		out[id] = sp
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode projects: %w", err)
	}
	return string(b), nil
}

// DecodeProjects parses the persisted JSON form and rehydrates timestamps.
// Stored preview URLs are dropped.
func DecodeProjects(raw string) (map[string]*Project, error) {
	var in map[string]storedProject
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil, fmt.Errorf("decode projects: %w", err)
	}

	out := make(map[string]*Project, len(in))
	for id, sp := range in {
		p := &Project{ID: id, Name: sp.Name, Files: make(map[string]File, len(sp.Files))}
		for key, sf := range sp.Files {
			kind, err := ParseKind(sf.Type)
			if err != nil {
				return nil, fmt.Errorf("decode projects: %s/%s: %w", id, key, err)
			}
			var ts time.Time
			if sf.LastModified != "" {
				ts, err = time.Parse(time.RFC3339Nano, sf.LastModified)
				if err != nil {
					return nil, fmt.Errorf("decode projects: %s/%s: %w", id, key, err)
				}
			}
			path := sf.Path
			if path == "" {
				path = key
			}
			p.Files[key] = File{Path: path, Content: sf.Content, LastModified: ts.UTC(), Kind: kind}
		}
		out[id] = p
	}
	return out, nil
}
