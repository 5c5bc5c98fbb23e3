// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package users keeps the local user table. Each user carries a snapshot
// of provider settings that is applied on login. Passwords are stored and
// compared as plain text; the table is a convenience for switching
// configurations on a shared machine, not an access control layer.
package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jeranaias/aidev/internal/config"
	"github.com/jeranaias/aidev/internal/logging"
	"github.com/jeranaias/aidev/internal/storage"
)

// Key is the storage key of the user table.
const Key = "users-csv"

// The seeded administrator.
const (
	AdminID       = "admin-001"
	AdminUsername = "admin"
	AdminPassword = "admin123"
)

var (
	ErrMissingCredentials = errors.New("username and password are required")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrNotLoggedIn        = errors.New("no user is logged in")
	ErrAdminProtected     = errors.New("cannot delete admin user")
)

// User is one row of the table. Settings holds JSON-encoded
// config.Settings.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Password string `json:"password"`
	Settings string `json:"settings"`
}

// ParsedSettings decodes the settings snapshot.
func (u User) ParsedSettings() (config.Settings, error) {
	var s config.Settings
	if u.Settings == "" {
		return s, nil
	}
	if err := json.Unmarshal([]byte(u.Settings), &s); err != nil {
		return s, fmt.Errorf("user %s settings: %w", u.Username, err)
	}
	return s, nil
}

// IsAdmin reports whether u is the administrator.
func (u User) IsAdmin() bool { return u.Username == AdminUsername }

// adminSettings is the profile seeded with the administrator.
func adminSettings() config.Settings {
	return config.Settings{
		Provider:      config.ProviderGemini,
		LocalEndpoint: "http://localhost:1234",
		LocalModel:    "local-model",
		Temperature:   "0.7",
		MaxTokens:     "2048",
		SystemPrompt:  "You are a helpful AI development assistant.",
	}
}

func encodeSettings(s config.Settings) string {
	b, err := json.Marshal(s)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// DefaultAdmin returns the seeded administrator record.
func DefaultAdmin() User {
	return User{
		ID:       AdminID,
		Username: AdminUsername,
		Password: AdminPassword,
		Settings: encodeSettings(adminSettings()),
	}
}

// Store reads and writes the user table. One mutex serializes
// read-modify-write cycles within the process.
type Store struct {
	mu       sync.Mutex
	kv       storage.KV
	settings *config.SettingsStore
}

// NewStore creates a user store. settings is where login applies profiles.
func NewStore(kv storage.KV, settings *config.SettingsStore) *Store {
	return &Store{kv: kv, settings: settings}
}

// load reads the table. An unreadable table is treated as empty.
func (s *Store) load(ctx context.Context) ([]User, error) {
	raw, ok, err := s.kv.Get(ctx, Key)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var users []User
	if err := json.Unmarshal([]byte(raw), &users); err != nil {
		logging.Warn("user table unreadable, starting empty", logging.Err(err))
		return nil, nil
	}
	return users, nil
}

func (s *Store) save(ctx context.Context, users []User) error {
	if users == nil {
		users = []User{}
	}
	b, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("encode users: %w", err)
	}
	if err := s.kv.Set(ctx, Key, string(b)); err != nil {
		return fmt.Errorf("save users: %w", err)
	}
	return nil
}

func find(users []User, username string) int {
	for i, u := range users {
		if u.Username == username {
			return i
		}
	}
	return -1
}

// EnsureAdmin seeds the administrator when no user is named admin.
func (s *Store) EnsureAdmin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load(ctx)
	if err != nil {
		return err
	}
	if find(users, AdminUsername) >= 0 {
		return nil
	}
	logging.Info("default admin user created", logging.String("username", AdminUsername))
	return s.save(ctx, append(users, DefaultAdmin()))
}

// List returns every user in table order.
func (s *Store) List(ctx context.Context) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Get returns the user with the given username.
func (s *Store) Get(ctx context.Context, username string) (User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users, err := s.load(ctx)
	if err != nil {
		return User{}, false, err
	}
	if i := find(users, username); i >= 0 {
		return users[i], true, nil
	}
	return User{}, false, nil
}

// Create adds a user whose profile is a snapshot of the current settings.
func (s *Store) Create(ctx context.Context, username, password string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return User{}, ErrMissingCredentials
	}

	current, err := s.settings.Load(ctx)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load(ctx)
	if err != nil {
		return User{}, err
	}
	if find(users, username) >= 0 {
		return User{}, fmt.Errorf("%w: %s", ErrUsernameTaken, username)
	}

	u := User{ID: uuid.NewString(), Username: username, Password: password, Settings: encodeSettings(current)}
	if err := s.save(ctx, append(users, u)); err != nil {
		return User{}, err
	}
	logging.Info("user created", logging.String("username", username))
	return u, nil
}

// Delete removes a user by id. Deleting the logged-in user logs out.
// Unknown ids are ignored; the administrator cannot be deleted.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load(ctx)
	if err != nil {
		return err
	}

	kept := users[:0]
	var removed *User
	for _, u := range users {
		if u.ID == id {
			if u.IsAdmin() {
				return ErrAdminProtected
			}
			u := u
			removed = &u
			continue
		}
		kept = append(kept, u)
	}
	if removed == nil {
		return nil
	}
	if err := s.save(ctx, kept); err != nil {
		return err
	}

	current, err := s.settings.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if current == removed.Username {
		return s.settings.SetCurrentUser(ctx, "")
	}
	return nil
}

// Login checks credentials, records the user as current and applies their
// settings profile.
func (s *Store) Login(ctx context.Context, username, password string) (User, error) {
	u, ok, err := s.Get(ctx, username)
	if err != nil {
		return User{}, err
	}
	if !ok || u.Password != password {
		return User{}, ErrInvalidCredentials
	}

	profile, err := u.ParsedSettings()
	if err != nil {
		logging.Warn("user profile unreadable, keeping current settings", logging.String("username", username), logging.Err(err))
	} else if err := s.settings.Apply(ctx, profile); err != nil {
		return User{}, err
	}
	if err := s.settings.SetCurrentUser(ctx, u.Username); err != nil {
		return User{}, err
	}
	logging.Info("user logged in", logging.String("username", username))
	return u, nil
}

// Logout forgets the current user. Settings stay as they are.
func (s *Store) Logout(ctx context.Context) error {
	return s.settings.SetCurrentUser(ctx, "")
}

// Current returns the logged-in user.
func (s *Store) Current(ctx context.Context) (User, bool, error) {
	name, err := s.settings.CurrentUser(ctx)
	if err != nil || name == "" {
		return User{}, false, err
	}
	return s.Get(ctx, name)
}

// SaveSettings snapshots the current settings into the logged-in user's
// profile.
func (s *Store) SaveSettings(ctx context.Context) (User, error) {
	name, err := s.settings.CurrentUser(ctx)
	if err != nil {
		return User{}, err
	}
	if name == "" {
		return User{}, ErrNotLoggedIn
	}
	current, err := s.settings.Load(ctx)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load(ctx)
	if err != nil {
		return User{}, err
	}
	i := find(users, name)
	if i < 0 {
		return User{}, ErrNotLoggedIn
	}
	users[i].Settings = encodeSettings(current)
	if err := s.save(ctx, users); err != nil {
		return User{}, err
	}
	return users[i], nil
}

// IsAdmin reports whether username names an existing administrator.
func (s *Store) IsAdmin(ctx context.Context, username string) (bool, error) {
	if username != AdminUsername {
		return false, nil
	}
	_, ok, err := s.Get(ctx, username)
	return ok, err
}

// ResetToAdmin drops every user except the administrator, seeding it when
// it is missing.
func (s *Store) ResetToAdmin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load(ctx)
	if err != nil {
		return err
	}
	admin := DefaultAdmin()
	if i := find(users, AdminUsername); i >= 0 {
		admin = users[i]
	}
	return s.save(ctx, []User{admin})
}

// Count returns the number of users.
func (s *Store) Count(ctx context.Context) (int, error) {
	users, err := s.List(ctx)
	return len(users), err
}
