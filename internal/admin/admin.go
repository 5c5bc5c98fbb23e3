// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package admin implements maintenance mode, the hard reset and usage
// statistics.
package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeranaias/aidev/internal/chat"
	"github.com/jeranaias/aidev/internal/config"
	"github.com/jeranaias/aidev/internal/logging"
	"github.com/jeranaias/aidev/internal/project"
	"github.com/jeranaias/aidev/internal/storage"
	"github.com/jeranaias/aidev/internal/users"
)

// Stats summarizes stored data.
type Stats struct {
	Projects    int  `json:"projects"`
	Users       int  `json:"users"`
	Files       int  `json:"files"`
	Directories int  `json:"directories"`
	Chats       int  `json:"chats"`
	Maintenance bool `json:"maintenance"`
}

// ResetReport lists the keys a hard reset removed.
type ResetReport struct {
	Deleted []string `json:"deleted"`
}

// Service groups the administrative operations.
type Service struct {
	kv       storage.KV
	settings *config.SettingsStore
	users    *users.Store
	projects *project.Store
}

// New creates the admin service.
func New(kv storage.KV, settings *config.SettingsStore, users *users.Store, projects *project.Store) *Service {
	return &Service{kv: kv, settings: settings, users: users, projects: projects}
}

// Maintenance reports whether maintenance mode is on.
func (s *Service) Maintenance(ctx context.Context) (bool, error) {
	return s.settings.Maintenance(ctx)
}

// SetMaintenance turns maintenance mode on or off.
func (s *Service) SetMaintenance(ctx context.Context, on bool) error {
	if err := s.settings.SetMaintenance(ctx, on); err != nil {
		return err
	}
	logging.Info("maintenance mode changed", logging.String("enabled", fmt.Sprint(on)))
	return nil
}

// preserved reports whether a hard reset keeps key.
func preserved(key string) bool {
	return strings.Contains(key, "admin") || key == users.Key
}

// HardReset deletes every key except the user table and keys containing
// "admin", reduces the users to the administrator, turns maintenance off and
// reloads the project store from the emptied substrate.
func (s *Service) HardReset(ctx context.Context) (ResetReport, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return ResetReport{}, fmt.Errorf("list keys: %w", err)
	}

	var report ResetReport
	for _, k := range keys {
		if preserved(k) {
			continue
		}
		if err := s.kv.Delete(ctx, k); err != nil {
			return report, fmt.Errorf("delete %s: %w", k, err)
		}
		report.Deleted = append(report.Deleted, k)
	}

	if err := s.users.ResetToAdmin(ctx); err != nil {
		return report, err
	}
	if err := s.settings.SetMaintenance(ctx, false); err != nil {
		return report, err
	}
	if err := s.projects.Load(ctx); err != nil {
		return report, fmt.Errorf("reload projects: %w", err)
	}

	logging.Warn("hard reset complete", logging.Int("deleted", len(report.Deleted)))
	return report, nil
}

// Stats counts projects, file entries, users and stored chats.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	for _, p := range s.projects.List() {
		st.Projects++
		for _, f := range p.Files {
			if f.IsDir() {
				st.Directories++
			} else {
				st.Files++
			}
		}
	}

	n, err := s.users.Count(ctx)
	if err != nil {
		return st, err
	}
	st.Users = n

	chats, err := storage.KeysWithPrefix(ctx, s.kv, chat.KeyPrefix)
	if err != nil {
		return st, fmt.Errorf("list chats: %w", err)
	}
	st.Chats = len(chats)

	st.Maintenance, err = s.settings.Maintenance(ctx)
	return st, err
}
