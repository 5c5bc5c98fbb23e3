// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeranaias/aidev/internal/config"
	"github.com/jeranaias/aidev/internal/logging"
	"github.com/jeranaias/aidev/internal/server"
	"github.com/jeranaias/aidev/internal/storage"
)

func newServeCmd(opts *Options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and project previews",
		Long: `Serve the JSON API, the streaming chat endpoint and the preview
documents. The config file is watched and log level changes apply without
a restart. With the file backend, edits made by other processes are picked
up as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := opts.open(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr != "" {
				a.Config.Server.Addr = addr
			}

			if path, err := opts.configPath(); err == nil {
				go func() {
					err := config.Watch(ctx, path, config.DefaultWatchDebounce, func(cfg *config.Config) {
						logging.SetLevel(cfg.Logging.Level)
						config.SetGlobal(cfg)
					})
					if err != nil {
						logging.Warn("config watch stopped", logging.Err(err))
					}
				}()
			}

			if f, ok := storage.AsFile(a.KV); ok {
				err := f.Watch(ctx, func() {
					if err := a.Projects.Load(ctx); err != nil {
						logging.Warn("reload projects failed", logging.Err(err))
					}
				})
				if err != nil {
					logging.Warn("data file watch disabled", logging.Err(err))
				}
			}

			srv := server.New(a)
			logging.Info("aidev serving",
				logging.String("addr", srv.Addr()),
				logging.String("backend", a.Config.Storage.Backend),
				logging.String("version", Version))
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, "+server.DefaultAddr+")")
	return cmd
}
