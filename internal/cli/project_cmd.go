// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/aidev/internal/app"
	"github.com/jeranaias/aidev/internal/diff"
	"github.com/jeranaias/aidev/internal/preview"
	"github.com/jeranaias/aidev/internal/project"
	"github.com/jeranaias/aidev/internal/util"
)

// =============================================================================
// PROJECT
// =============================================================================

func newProjectCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"projects"},
		Short:   "Create, list, select and delete projects",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a project and make it current",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args, " ")
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				id, err := a.Projects.CreateProject(ctx, name)
				if err != nil {
					return err
				}
				return opts.success(cmd, map[string]string{"id": id, "name": name},
					"Created project %s (%s)", name, id)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				list := a.Projects.List()
				current := a.Projects.CurrentID()
				return opts.emit(cmd, list, func(w io.Writer) {
					printProjectList(w, list, current)
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show [id]",
		Short: "Show a project's files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := resolveProject(a, firstArg(args))
				if err != nil {
					return err
				}
				return opts.emit(cmd, p, func(w io.Writer) { printProject(w, p) })
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "use <id>",
		Short: "Make a project current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Projects.SetCurrent(ctx, args[0]); err != nil {
					return err
				}
				return opts.success(cmd, map[string]string{"id": args[0]}, "Current project set to %s", args[0])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a project and its chat history",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if _, ok := a.Projects.Project(args[0]); !ok {
					return fmt.Errorf("%w: %s", project.ErrProjectNotFound, args[0])
				}
				if err := a.DeleteProject(ctx, args[0]); err != nil {
					return err
				}
				return opts.success(cmd, map[string]string{"id": args[0]}, "Deleted project %s", args[0])
			})
		},
	})

	return cmd
}

func printProjectList(w io.Writer, list []*project.Project, current string) {
	if len(list) == 0 {
		fmt.Fprintln(w, RenderConditional(DimStyle, "No projects yet. Create one with `aidev project create <name>`."))
		return
	}
	nameWidth := 24
	for _, p := range list {
		marker := "  "
		if p.ID == current {
			marker = RenderConditional(SuccessStyle, "* ")
		}
		fmt.Fprintf(w, "%s%s  %s  %s\n",
			marker,
			util.PadRight(util.TruncateWidth(p.Name, nameWidth), nameWidth),
			RenderConditional(DimStyle, p.ID),
			RenderConditional(DimStyle, fmt.Sprintf("%d files", p.FileCount())))
	}
}

func printProject(w io.Writer, p *project.Project) {
	fmt.Fprintln(w, RenderConditional(TitleStyle, p.Name))
	fmt.Fprintln(w, RenderLabel("ID")+p.ID)
	fmt.Fprintln(w, RenderLabel("Files")+fmt.Sprint(p.FileCount()))
	if p.HasPreview() {
		fmt.Fprintln(w, RenderLabel("Preview")+preview.URL(p.PreviewHandle))
	}
	fmt.Fprintln(w, RenderSeparator(40))
	for _, path := range p.Paths() {
		f := p.Files[path]
		if f.IsDir() {
			fmt.Fprintln(w, RenderConditional(DirStyle, path+"/"))
			continue
		}
		fmt.Fprintf(w, "%s  %s\n", path, RenderConditional(DimStyle, fmt.Sprintf("%d bytes", len(f.Content))))
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// =============================================================================
// FILES
// =============================================================================

func newFileCmd(opts *Options) *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:     "file",
		Aliases: []string{"files"},
		Short:   "Write, print and remove project files",
	}
	cmd.PersistentFlags().StringVarP(&projectID, "project", "p", "", "project id (default: current project)")

	var from string
	var showDiff bool
	write := &cobra.Command{
		Use:   "write <path> [content]",
		Short: "Create or replace a file",
		Long: `Create or replace a file. Content comes from the second argument,
from --from <file>, or from stdin when neither is given.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(opts, args, from)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := resolveProject(a, projectID)
				if err != nil {
					return err
				}
				var before string
				if clean, err := util.CleanProjectPath(args[0]); err == nil {
					before = p.Files[clean].Content
				}
				updated, err := a.Projects.ExecuteFileOperation(ctx, p.ID, project.Update(args[0], content))
				if err != nil {
					return err
				}
				res := fileResult(updated, args[0])
				if !showDiff {
					return opts.success(cmd, res, "Wrote %s (%d bytes)", args[0], len(content))
				}
				d := diff.Compute(res.Path, before, content)
				res.Diff = d.Unified()
				return opts.emit(cmd, res, func(w io.Writer) {
					fmt.Fprintln(w, RenderConditional(SuccessStyle, "✓"), res.Path+": "+d.Summary())
					fmt.Fprint(w, HighlightFile("change.diff", res.Diff))
				})
			})
		},
	}
	write.Flags().StringVar(&from, "from", "", "read content from this local file")
	write.Flags().BoolVar(&showDiff, "diff", false, "print a unified diff of the change")
	cmd.AddCommand(write)

	var plain bool
	cat := &cobra.Command{
		Use:   "cat <path>",
		Short: "Print a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := resolveProject(a, projectID)
				if err != nil {
					return err
				}
				path, err := util.CleanProjectPath(args[0])
				if err != nil {
					return err
				}
				f, ok := p.Files[path]
				if !ok || f.IsDir() {
					return fmt.Errorf("no such file: %s", path)
				}
				return opts.emit(cmd, f, func(w io.Writer) {
					if !plain && IsStdoutTTY() {
						fmt.Fprint(w, HighlightFile(path, f.Content))
					} else {
						fmt.Fprint(w, f.Content)
					}
					if !strings.HasSuffix(f.Content, "\n") {
						fmt.Fprintln(w)
					}
				})
			})
		},
	}
	cat.Flags().BoolVar(&plain, "plain", false, "disable syntax highlighting")
	cmd.AddCommand(cat)

	cmd.AddCommand(&cobra.Command{
		Use:     "rm <path>",
		Aliases: []string{"delete"},
		Short:   "Remove a file or directory and everything under it",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := resolveProject(a, projectID)
				if err != nil {
					return err
				}
				updated, err := a.Projects.ExecuteFileOperation(ctx, p.ID, project.Delete(args[0]))
				if err != nil {
					return err
				}
				return opts.success(cmd, fileResult(updated, args[0]), "Removed %s", args[0])
			})
		},
	})

	return cmd
}

func newMkdirCmd(opts *Options) *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a directory and its parents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := resolveProject(a, projectID)
				if err != nil {
					return err
				}
				updated, err := a.Projects.CreateDirectory(ctx, p.ID, args[0])
				if err != nil {
					return err
				}
				return opts.success(cmd, fileResult(updated, args[0]), "Created directory %s", args[0])
			})
		},
	}
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "project id (default: current project)")
	return cmd
}

// readContent picks the file body from the argument, --from or stdin.
func readContent(opts *Options, args []string, from string) (string, error) {
	switch {
	case len(args) == 2:
		return args[1], nil
	case from != "":
		data, err := os.ReadFile(from)
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		data, err := io.ReadAll(opts.In)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
}

type fileOpResult struct {
	Project    string `json:"project"`
	Path       string `json:"path"`
	PreviewURL string `json:"previewUrl,omitempty"`
	Diff       string `json:"diff,omitempty"`
}

func fileResult(p *project.Project, path string) fileOpResult {
	if clean, err := util.CleanProjectPath(path); err == nil {
		path = clean
	}
	if p == nil {
		return fileOpResult{Path: path}
	}
	return fileOpResult{Project: p.ID, Path: path, PreviewURL: preview.URL(p.PreviewHandle)}
}

// =============================================================================
// TREE AND PREVIEW
// =============================================================================

func newTreeCmd(opts *Options) *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "tree [path]",
		Short: "Print a project's directory tree",
		Long:  "Print a project's directory tree, or the subtree rooted at path.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := resolveProject(a, projectID)
				if err != nil {
					return err
				}
				root := project.BuildTree(p)
				if len(args) == 1 {
					path, err := util.CleanProjectPath(args[0])
					if err != nil {
						return err
					}
					if root = project.Find(root, path); root == nil {
						return fmt.Errorf("%s: no such file or directory", path)
					}
				}
				return opts.emit(cmd, root, func(w io.Writer) {
					fmt.Fprint(w, RenderTree(root, GetTerminalWidth()))
					fmt.Fprintln(w, RenderConditional(DimStyle, fmt.Sprintf("%d entries", project.CountNodes(root)-1)))
				})
			})
		},
	}
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "project id (default: current project)")
	return cmd
}

// RenderTree draws n with box connectors, truncating names to width.
func RenderTree(n *project.Node, width int) string {
	var b strings.Builder
	b.WriteString(RenderConditional(TitleStyle, n.Name))
	b.WriteString("\n")
	renderChildren(&b, n, "", width)
	return b.String()
}

func renderChildren(b *strings.Builder, n *project.Node, prefix string, width int) {
	for i, child := range n.Children {
		last := i == len(n.Children)-1
		connector, indent := "├── ", "│   "
		if last {
			connector, indent = "└── ", "    "
		}
		name := child.Name
		avail := width - util.StringWidth(prefix) - 4
		if avail > 0 {
			name = util.TruncateWidth(name, avail)
		}
		if child.IsDir() {
			name = RenderConditional(DirStyle, name+"/")
		}
		b.WriteString(RenderConditional(SeparatorStyle, prefix+connector))
		b.WriteString(name)
		b.WriteString("\n")
		if child.IsDir() {
			renderChildren(b, child, prefix+indent, width)
		}
	}
}

func newPreviewCmd(opts *Options) *cobra.Command {
	var projectID, out string
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print or save a project's preview document",
		Long: `Synthesize the preview document: the main HTML file with every CSS file
inlined before </head> and every JS file before </body>.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := resolveProject(a, projectID)
				if err != nil {
					return err
				}
				doc, ok := project.Synthesize(p.Files)
				if !ok {
					return errors.New("project has no HTML file to preview")
				}
				if out == "" {
					return opts.emit(cmd, map[string]string{"html": doc}, func(w io.Writer) {
						fmt.Fprintln(w, doc)
					})
				}
				if err := util.AtomicWriteFile(out, []byte(doc), 0o644); err != nil {
					return err
				}
				return opts.success(cmd, map[string]string{"path": out, "etag": preview.ETag(doc)},
					"Wrote preview to %s", out)
			})
		},
	}
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "project id (default: current project)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the document to this file")
	return cmd
}
