// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jeranaias/aidev/internal/app"
	"github.com/jeranaias/aidev/internal/config"
)

// =============================================================================
// RUNTIME SETTINGS
// =============================================================================

func newSettingsCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show and change the provider settings",
	}

	var reveal bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the provider settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				s, err := a.Settings.Load(ctx)
				if err != nil {
					return err
				}
				if !reveal {
					s = s.Redacted()
				}
				return opts.emit(cmd, s, func(w io.Writer) {
					for _, key := range config.SettingKeys() {
						v, _ := s.Get(key)
						if v == "" {
							v = RenderConditional(DimStyle, "(unset)")
						}
						fmt.Fprintln(w, RenderLabel(key)+v)
					}
				})
			})
		},
	}
	show.Flags().BoolVar(&reveal, "reveal", false, "print API keys unmasked")
	cmd.AddCommand(show)

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting",
		Long: "Change one setting. Keys: " + fmt.Sprint(config.SettingKeys()) + `.
The whole settings set is validated before the value is stored.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Settings.Set(ctx, args[0], args[1]); err != nil {
					return err
				}
				return opts.success(cmd, map[string]string{"key": args[0]}, "Set %s", args[0])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Check that the selected provider answers",
		Long: `Build the provider the settings select and probe it. For ollama this
checks that the server runs and lists its installed models.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				st, err := a.ProviderStatus(ctx)
				if err != nil {
					return err
				}
				return opts.emit(cmd, st, func(w io.Writer) {
					fmt.Fprintln(w, RenderLabel("Provider")+st.Provider)
					fmt.Fprintln(w, RenderLabel("Model")+st.Model)
					if !st.Checked {
						fmt.Fprintln(w, RenderConditional(DimStyle, "no status check for this provider"))
						return
					}
					fmt.Fprintln(w, RenderLabel("Endpoint")+st.Endpoint)
					if !st.Reachable {
						fmt.Fprintln(w, RenderConditional(ErrorStyle, "✗ not reachable: "+st.Error))
						return
					}
					fmt.Fprintln(w, RenderConditional(SuccessStyle, "✓ reachable"))
					if st.ModelInstalled {
						fmt.Fprintln(w, RenderConditional(SuccessStyle, "✓ model installed"))
					} else {
						fmt.Fprintln(w, RenderConditional(WarningStyle, "! model not installed"))
					}
					for _, m := range st.Models {
						fmt.Fprintln(w, "  "+m)
					}
				})
			})
		},
	})

	return cmd
}

// =============================================================================
// ADMINISTRATION
// =============================================================================

func newAdminCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Maintenance mode, hard reset and statistics",
	}

	cmd.AddCommand(&cobra.Command{
		Use:       "maintenance [on|off]",
		Short:     "Show or change maintenance mode",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if len(args) == 1 {
					if err := a.Admin.SetMaintenance(ctx, args[0] == "on"); err != nil {
						return err
					}
				}
				on, err := a.Admin.Maintenance(ctx)
				if err != nil {
					return err
				}
				state := "off"
				if on {
					state = "on"
				}
				return opts.success(cmd, map[string]bool{"enabled": on}, "Maintenance mode is %s", state)
			})
		},
	})

	var yes bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Delete all projects, chats and settings, keeping only the admin user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("hard reset deletes all data; pass --yes to confirm")
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				report, err := a.Admin.HardReset(ctx)
				if err != nil {
					return err
				}
				return opts.success(cmd, report, "Reset complete, %d keys deleted", len(report.Deleted))
			})
		},
	}
	reset.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the reset")
	cmd.AddCommand(reset)

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Count projects, files, users and chats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				st, err := a.Admin.Stats(ctx)
				if err != nil {
					return err
				}
				return opts.emit(cmd, st, func(w io.Writer) {
					fmt.Fprintln(w, RenderConditional(TitleStyle, "Statistics"))
					fmt.Fprintln(w, RenderLabel("Projects")+fmt.Sprint(st.Projects))
					fmt.Fprintln(w, RenderLabel("Files")+fmt.Sprint(st.Files))
					fmt.Fprintln(w, RenderLabel("Directories")+fmt.Sprint(st.Directories))
					fmt.Fprintln(w, RenderLabel("Users")+fmt.Sprint(st.Users))
					fmt.Fprintln(w, RenderLabel("Chats")+fmt.Sprint(st.Chats))
					fmt.Fprintln(w, RenderLabel("Maintenance")+fmt.Sprint(st.Maintenance))
				})
			})
		},
	})

	return cmd
}

// =============================================================================
// STATIC CONFIG FILE
// =============================================================================

func newConfigCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit the config file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if opts.JSON {
				return NewJSONResponse(cmd.CommandPath(), json.RawMessage(cfg.String())).Print(opts.Out)
			}
			fmt.Fprintln(opts.Out, cfg.String())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := opts.configPath()
			if err != nil {
				return err
			}
			return opts.emit(cmd, map[string]string{"path": path}, func(w io.Writer) {
				fmt.Fprintln(w, path)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change a config value and save the file",
		Long:  "Change a config value by its dotted key, e.g. server.addr or logging.level, and save the file.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := opts.configPath()
			if err != nil {
				return err
			}
			cfg, err := config.LoadFromPath(path)
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.SaveTOML(cfg, path); err != nil {
				return err
			}
			return opts.success(cmd, map[string]string{"key": args[0], "path": path}, "Set %s in %s", args[0], path)
		},
	})

	return cmd
}
