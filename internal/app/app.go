// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app assembles the stores and services shared by the CLI and the
// HTTP server.
package app

import (
	"context"
	"fmt"

	"github.com/jeranaias/aidev/internal/admin"
	"github.com/jeranaias/aidev/internal/chat"
	"github.com/jeranaias/aidev/internal/config"
	"github.com/jeranaias/aidev/internal/logging"
	"github.com/jeranaias/aidev/internal/preview"
	"github.com/jeranaias/aidev/internal/project"
	"github.com/jeranaias/aidev/internal/provider"
	"github.com/jeranaias/aidev/internal/storage"
	"github.com/jeranaias/aidev/internal/tools"
	"github.com/jeranaias/aidev/internal/users"
)

// App holds one process's wired components.
type App struct {
	Config   *config.Config
	KV       storage.KV
	Previews *preview.Registry
	Projects *project.Store
	Settings *config.SettingsStore
	Users    *users.Store
	Executor *tools.Executor
	Chat     *chat.Pipeline
	Admin    *admin.Service

	providers chat.ProviderFactory
}

// Option adjusts construction. Tests use it to inject a substrate or a
// provider factory.
type Option func(*options)

type options struct {
	kv        storage.KV
	providers chat.ProviderFactory
}

// WithKV uses kv instead of opening the configured backend.
func WithKV(kv storage.KV) Option {
	return func(o *options) { o.kv = kv }
}

// WithProviderFactory replaces the provider selection.
func WithProviderFactory(f chat.ProviderFactory) Option {
	return func(o *options) { o.providers = f }
}

// New opens the substrate named by cfg, restores persisted projects and
// seeds the admin account.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	kv := o.kv
	if kv == nil {
		var err error
		kv, err = storage.Open(ctx, cfg.StorageOptions())
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
	}

	previews := preview.NewRegistry()
	projects := project.NewStore(previews, project.WithPersistence(project.NewKVPersistence(kv)))
	if err := projects.Load(ctx); err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("load projects: %w", err)
	}

	settings := config.NewSettingsStore(kv, cfg.DefaultSettings())
	accounts := users.NewStore(kv, settings)
	if err := accounts.EnsureAdmin(ctx); err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("seed admin: %w", err)
	}

	providers := o.providers
	if providers == nil {
		pc := cfg.Provider
		providers = func(s config.Settings) (provider.Provider, error) {
			return provider.New(s, pc)
		}
	}

	executor := tools.NewExecutor(projects, nil)
	pipeline := chat.NewPipeline(chat.NewHistory(kv), settings, providers, executor, projects,
		chat.WithHistoryContext(cfg.Provider.HistoryContext))

	logging.Debug("app assembled",
		logging.String("backend", cfg.Storage.Backend),
		logging.Int("projects", len(projects.List())),
	)

	return &App{
		Config:   cfg,
		KV:       kv,
		Previews: previews,
		Projects: projects,
		Settings: settings,
		Users:    accounts,
		Executor: executor,
		Chat:     pipeline,
		Admin:    admin.New(kv, settings, accounts, projects),

		providers: providers,
	}, nil
}

// ProviderStatus builds the provider the current settings select and checks
// its endpoint.
func (a *App) ProviderStatus(ctx context.Context) (provider.Status, error) {
	s, err := a.Settings.Load(ctx)
	if err != nil {
		return provider.Status{}, err
	}
	p, err := a.providers(s)
	if err != nil {
		return provider.Status{}, err
	}
	return provider.CheckStatus(ctx, p), nil
}

// DeleteProject removes a project together with its chat history.
func (a *App) DeleteProject(ctx context.Context, id string) error {
	if err := a.Projects.DeleteProject(ctx, id); err != nil {
		return err
	}
	return a.Chat.History().Delete(ctx, id)
}

// Close releases the substrate.
func (a *App) Close() error {
	return a.KV.Close()
}
