// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/aidev/internal/app"
	"github.com/jeranaias/aidev/internal/chat"
	"github.com/jeranaias/aidev/internal/config"
	"github.com/jeranaias/aidev/internal/logging"
	"github.com/jeranaias/aidev/internal/project"
)

// Version information, set by main at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// ErrNoProject is returned when a command needs a project and none is
// selected or current.
var ErrNoProject = errors.New("no project selected; run `aidev project create <name>` or pass --project")

// Options carries the global flags and the streams commands write to.
type Options struct {
	ConfigPath string
	DataPath   string
	Backend    string
	JSON       bool

	In  io.Reader
	Out io.Writer
	Err io.Writer

	// Providers replaces provider selection. Tests set it.
	Providers chat.ProviderFactory
}

// NewRootCmd builds the command tree.
func NewRootCmd(opts *Options) *cobra.Command {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}

	root := &cobra.Command{
		Use:   "aidev",
		Short: "AI-assisted website builder",
		Long: `aidev keeps a collection of small web projects, lets an AI assistant
create and edit their files through tool calls, and serves a live preview
of each project's main HTML document.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.SetIn(opts.In)
	root.SetOut(opts.Out)
	root.SetErr(opts.Err)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.ConfigPath, "config", "", "config file (default ~/.aidev/config.toml)")
	pf.StringVar(&opts.DataPath, "data", "", "data file or directory for the file and sqlite backends")
	pf.StringVar(&opts.Backend, "backend", "", "storage backend: memory, file, sqlite, postgres, s3")
	pf.BoolVar(&opts.JSON, "json", false, "output in JSON format")

	root.AddGroup(
		&cobra.Group{ID: "build", Title: "Building:"},
		&cobra.Group{ID: "manage", Title: "Management:"},
	)

	for _, c := range []*cobra.Command{
		newProjectCmd(opts),
		newFileCmd(opts),
		newMkdirCmd(opts),
		newTreeCmd(opts),
		newPreviewCmd(opts),
		newChatCmd(opts),
	} {
		c.GroupID = "build"
		root.AddCommand(c)
	}
	for _, c := range []*cobra.Command{
		newServeCmd(opts),
		newUsersCmd(opts),
		newSettingsCmd(opts),
		newAdminCmd(opts),
		newConfigCmd(opts),
	} {
		c.GroupID = "manage"
		root.AddCommand(c)
	}
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	opts := &Options{}
	root := NewRootCmd(opts)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	_ = logging.Sync()
	if err == nil {
		return 0
	}
	if opts.JSON {
		_ = NewJSONErrorResponse(root.Name(), err).Print(opts.Out)
	} else {
		fmt.Fprintln(opts.Err, RenderConditional(ErrorStyle, "Error:"), err)
	}
	return 1
}

// =============================================================================
// SHARED PLUMBING
// =============================================================================

// configPath is the file the config is read from.
func (o *Options) configPath() (string, error) {
	if o.ConfigPath != "" {
		return o.ConfigPath, nil
	}
	return config.ConfigPath()
}

// loadConfig reads the config file and applies the global flags.
func (o *Options) loadConfig() (*config.Config, error) {
	path, err := o.configPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	if o.DataPath != "" {
		cfg.Storage.Path = o.DataPath
	}
	if o.Backend != "" {
		cfg.Storage.Backend = o.Backend
	}
	config.SetGlobal(cfg)
	return cfg, nil
}

// open loads the config and assembles the app. One-shot commands log at
// warn or above so their output stays readable.
func (o *Options) open(ctx context.Context, verbose bool) (*app.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	lc := logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, OutputPath: cfg.Logging.OutputPath}
	if lc.OutputPath == "" {
		lc.OutputPath = "stderr"
	}
	if !verbose && lc.Level != "debug" {
		lc.Level = "warn"
	}
	if err := logging.Init(lc); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	var appOpts []app.Option
	if o.Providers != nil {
		appOpts = append(appOpts, app.WithProviderFactory(o.Providers))
	}
	return app.New(ctx, cfg, appOpts...)
}

// withApp opens the app for one command and closes it afterwards.
func (o *Options) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := o.open(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// emit prints data as a JSON envelope under --json, otherwise calls human.
func (o *Options) emit(cmd *cobra.Command, data any, human func(w io.Writer)) error {
	if o.JSON {
		return NewJSONResponse(cmd.CommandPath(), data).Print(o.Out)
	}
	human(o.Out)
	return nil
}

// success prints a one-line confirmation.
func (o *Options) success(cmd *cobra.Command, data any, format string, args ...any) error {
	return o.emit(cmd, data, func(w io.Writer) {
		fmt.Fprintln(w, RenderConditional(SuccessStyle, "✓"), fmt.Sprintf(format, args...))
	})
}

// resolveProject returns the project named by id, or the current project
// when id is empty.
func resolveProject(a *app.App, id string) (*project.Project, error) {
	if id == "" {
		id = a.Projects.CurrentID()
	}
	if id == "" {
		return nil, ErrNoProject
	}
	p, ok := a.Projects.Project(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", project.ErrProjectNotFound, id)
	}
	return p, nil
}
