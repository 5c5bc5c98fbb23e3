// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/aidev/internal/app"
	"github.com/jeranaias/aidev/internal/users"
	"github.com/jeranaias/aidev/internal/util"
)

type userView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
}

func viewUser(u users.User) userView {
	return userView{ID: u.ID, Username: u.Username, Admin: u.IsAdmin()}
}

func newUsersCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "users",
		Aliases: []string{"user"},
		Short:   "Manage local users and their settings profiles",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				list, err := a.Users.List(ctx)
				if err != nil {
					return err
				}
				current, _, err := a.Users.Current(ctx)
				if err != nil {
					return err
				}
				views := make([]userView, 0, len(list))
				for _, u := range list {
					views = append(views, viewUser(u))
				}
				return opts.emit(cmd, views, func(w io.Writer) {
					for _, u := range list {
						marker := "  "
						if u.Username == current.Username {
							marker = RenderConditional(SuccessStyle, "* ")
						}
						role := ""
						if u.IsAdmin() {
							role = RenderConditional(WarningStyle, "admin")
						}
						fmt.Fprintf(w, "%s%s  %s  %s\n", marker, util.PadRight(u.Username, 20),
							RenderConditional(DimStyle, u.ID), role)
					}
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <username> <password>",
		Short: "Create a user with the current settings as its profile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				u, err := a.Users.Create(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return opts.success(cmd, viewUser(u), "Created user %s", u.Username)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "rm <username>",
		Aliases: []string{"delete"},
		Short:   "Delete a user",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				u, ok, err := a.Users.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no such user: %s", args[0])
				}
				if err := a.Users.Delete(ctx, u.ID); err != nil {
					return err
				}
				return opts.success(cmd, viewUser(u), "Deleted user %s", u.Username)
			})
		},
	})

	var out string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write the user table as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				csv, err := a.Users.ExportCSV(ctx)
				if err != nil {
					return err
				}
				if out != "" {
					if err := util.AtomicWriteFile(out, []byte(csv), 0o600); err != nil {
						return err
					}
					return opts.success(cmd, map[string]string{"path": out}, "Exported users to %s", out)
				}
				return opts.emit(cmd, map[string]string{"csv": csv}, func(w io.Writer) {
					fmt.Fprint(w, csv)
				})
			})
		},
	}
	export.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	cmd.AddCommand(export)

	cmd.AddCommand(&cobra.Command{
		Use:   "import [file]",
		Short: "Replace the user table from CSV",
		Long:  "Replace the user table from a CSV file, or from stdin when no file is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if len(args) == 1 && args[0] != "-" {
				data, err = os.ReadFile(args[0])
			} else {
				data, err = io.ReadAll(opts.In)
			}
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.Users.ImportCSV(ctx, string(data))
				if err != nil {
					return err
				}
				return opts.success(cmd, map[string]int{"imported": n}, "Imported %d users", n)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "login <username> <password>",
		Short: "Log in and apply the user's settings profile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				u, err := a.Users.Login(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return opts.success(cmd, viewUser(u), "Logged in as %s", u.Username)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "logout",
		Short: "Log out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Users.Logout(ctx); err != nil {
					return err
				}
				return opts.success(cmd, nil, "Logged out")
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "save",
		Short: "Store the current settings in the logged-in user's profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				u, err := a.Users.SaveSettings(ctx)
				if err != nil {
					return err
				}
				return opts.success(cmd, viewUser(u), "Saved settings for %s", u.Username)
			})
		},
	})

	return cmd
}
