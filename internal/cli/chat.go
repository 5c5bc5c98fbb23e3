// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Chat with the assistant from the terminal.
//
// With a message argument the command runs one exchange and prints the
// reply. Without one it reads the message from piped stdin, or opens an
// interactive session with line editing and input history when stdin is
// a terminal.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/aidev/internal/app"
	"github.com/jeranaias/aidev/internal/chat"
	"github.com/jeranaias/aidev/internal/config"
	"github.com/jeranaias/aidev/internal/export"
	"github.com/jeranaias/aidev/internal/preview"
	"github.com/jeranaias/aidev/internal/tools"
	"github.com/jeranaias/aidev/internal/util"
)

func newChatCmd(opts *Options) *cobra.Command {
	var projectID string
	var brief chat.Brief

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the assistant about a project",
		Long: `Send a message to the assistant. File operations in the reply are
applied to the project and its preview is regenerated.

Without a message argument, the message is read from stdin when it is
piped, and an interactive session starts when stdin is a terminal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := resolveProject(a, projectID)
				if err != nil {
					return err
				}
				var b *chat.Brief
				if brief != (chat.Brief{}) {
					b = &brief
				}

				if len(args) > 0 {
					return runExchange(ctx, cmd, opts, a, p.ID, strings.Join(args, " "), b)
				}
				if !IsTTY() || opts.In != os.Stdin {
					data, err := io.ReadAll(opts.In)
					if err != nil {
						return fmt.Errorf("read stdin: %w", err)
					}
					return runExchange(ctx, cmd, opts, a, p.ID, string(data), b)
				}
				if opts.JSON {
					return &TTYRequiredError{Operation: "chat with --json"}
				}
				return runREPL(ctx, cmd, opts, a, p.ID, b)
			})
		},
	}
	cmd.PersistentFlags().StringVarP(&projectID, "project", "p", "", "project id (default: current project)")
	cmd.Flags().StringVar(&brief.BusinessType, "business-type", "", "kind of business the site is for")
	cmd.Flags().StringVar(&brief.WebsiteName, "site-name", "", "name of the website")
	cmd.Flags().StringVar(&brief.Description, "description", "", "what the site should contain")
	cmd.Flags().StringVar(&brief.PreferredColors, "colors", "", "preferred color scheme")

	cmd.AddCommand(&cobra.Command{
		Use:   "history",
		Short: "Print a project's chat history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := resolveProject(a, projectID)
				if err != nil {
					return err
				}
				msgs, err := a.Chat.History().Load(ctx, p.ID)
				if err != nil {
					return err
				}
				return opts.emit(cmd, msgs, func(w io.Writer) {
					for _, m := range msgs {
						printMessage(w, m)
					}
				})
			})
		},
	})

	var format, out string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export a project's chat as markdown, html or json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := export.ForFormat(format, nil)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := resolveProject(a, projectID)
				if err != nil {
					return err
				}
				msgs, err := a.Chat.History().Load(ctx, p.ID)
				if err != nil {
					return err
				}
				t := &export.Transcript{ProjectID: p.ID, Project: p.Name, Files: p.Paths(), Messages: msgs, ExportedAt: time.Now()}
				data, err := exp.Export(t)
				if err != nil {
					return err
				}
				if out == "" {
					_, err := opts.Out.Write(data)
					return err
				}
				dest := out
				if dest == "." {
					dest = export.FileName(t, exp)
				}
				if err := util.AtomicWriteFile(dest, data, 0o644); err != nil {
					return err
				}
				return opts.success(cmd, map[string]string{"path": dest}, "Exported chat to %s", dest)
			})
		},
	}
	exportCmd.Flags().StringVarP(&format, "format", "f", "markdown", "markdown, html or json")
	exportCmd.Flags().StringVarP(&out, "out", "o", "", `write to this file ("." picks a name)`)
	cmd.AddCommand(exportCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Reset a project's chat history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := resolveProject(a, projectID)
				if err != nil {
					return err
				}
				msgs, err := a.Chat.History().Clear(ctx, p.ID)
				if err != nil {
					return err
				}
				return opts.success(cmd, msgs, "Chat cleared for %s", p.Name)
			})
		},
	})

	return cmd
}

// exchangeView is the --json form of one exchange.
type exchangeView struct {
	Project    string       `json:"project"`
	Provider   string       `json:"provider"`
	Failed     bool         `json:"failed"`
	Message    chat.Message `json:"message"`
	Results    []toolView   `json:"results,omitempty"`
	PreviewURL string       `json:"previewUrl,omitempty"`
}

type toolView struct {
	Name    string `json:"name"`
	Output  string `json:"output"`
	Success bool   `json:"success"`
}

func toolViews(in []tools.Result) []toolView {
	out := make([]toolView, 0, len(in))
	for _, r := range in {
		out = append(out, toolView{Name: r.Name, Output: r.Output, Success: r.Success})
	}
	return out
}

func runExchange(ctx context.Context, cmd *cobra.Command, opts *Options, a *app.App, projectID, text string, brief *chat.Brief) error {
	progress := !opts.JSON && IsStdoutTTY()
	var onPartial func(string)
	if progress {
		onPartial = func(acc string) {
			fmt.Fprintf(opts.Err, "\r%s", RenderConditional(DimStyle, fmt.Sprintf("Thinking... %d chars", len(acc))))
		}
	}

	ex, err := a.Chat.Send(ctx, chat.Request{ProjectID: projectID, Text: text, Brief: brief}, onPartial)
	if progress {
		fmt.Fprint(opts.Err, "\r\033[K")
	}
	if ex == nil {
		return err
	}

	var previewURL string
	if p, ok := a.Projects.Project(projectID); ok {
		previewURL = preview.URL(p.PreviewHandle)
	}
	view := exchangeView{
		Project:    projectID,
		Provider:   ex.Provider,
		Failed:     ex.Failed,
		Message:    ex.Assistant,
		Results:    toolViews(ex.Results),
		PreviewURL: previewURL,
	}
	if emitErr := opts.emit(cmd, view, func(w io.Writer) { printExchange(w, ex, previewURL) }); emitErr != nil {
		return emitErr
	}
	return err
}

func printExchange(w io.Writer, ex *chat.Exchange, previewURL string) {
	content := ex.Assistant.Content
	switch {
	case ex.Failed:
		fmt.Fprintln(w, RenderConditional(ErrorStyle, content))
	case IsStdoutTTY():
		fmt.Fprint(w, renderMarkdown(content))
	default:
		fmt.Fprintln(w, content)
	}
	for _, r := range ex.Results {
		mark := RenderConditional(SuccessStyle, "✓")
		if !r.Success {
			mark = RenderConditional(ErrorStyle, "✗")
		}
		fmt.Fprintf(w, "%s %s\n", mark, r.Output)
	}
	if len(ex.Results) > 0 && previewURL != "" {
		fmt.Fprintln(w, RenderLabel("Preview")+previewURL)
	}
}

func printMessage(w io.Writer, m chat.Message) {
	style := TitleStyle
	if m.Role == chat.RoleUser {
		style = PromptStyle
	}
	fmt.Fprintf(w, "%s %s\n%s\n\n",
		RenderConditional(style, m.Role.DisplayName()),
		RenderConditional(DimStyle, m.Timestamp.Local().Format("2006-01-02 15:04")),
		m.Content)
}

// =============================================================================
// INTERACTIVE SESSION
// =============================================================================

// lineReader wraps liner with a persisted input history.
type lineReader struct {
	line        *liner.State
	historyFile string
}

func newLineReader() *lineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	r := &lineReader{line: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(r.historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return r
}

func (r *lineReader) prompt(p string) (string, error) {
	input, err := r.line.Prompt(p)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

func (r *lineReader) close() {
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0o700); err == nil {
		if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			_, _ = r.line.WriteHistory(f)
			f.Close()
		}
	}
	r.line.Close()
}

const replHelp = `Commands:
  /clear    reset the chat history
  /history  print the chat history
  /exit     leave the session
  /help     show this help

Ctrl+C while the assistant is replying cancels the reply.`

func runREPL(ctx context.Context, cmd *cobra.Command, opts *Options, a *app.App, projectID string, brief *chat.Brief) error {
	p, _ := a.Projects.Project(projectID)
	name := projectID
	if p != nil {
		name = p.Name
	}
	fmt.Fprintln(opts.Out, RenderConditional(TitleStyle, "aidev chat")+" "+RenderConditional(DimStyle, name))
	fmt.Fprintln(opts.Out, RenderConditional(DimStyle, "Type /help for commands."))

	reader := newLineReader()
	defer reader.close()

	for {
		input, err := reader.prompt("aidev> ")
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D, or a closed terminal.
			fmt.Fprintln(opts.Out)
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if !replCommand(ctx, opts, a, projectID, input) {
				return nil
			}
			continue
		}

		sendCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		err = runExchange(sendCtx, cmd, opts, a, projectID, input, brief)
		stop()
		switch {
		case errors.Is(err, context.Canceled) && ctx.Err() == nil:
			fmt.Fprintln(opts.Err, RenderConditional(WarningStyle, "[Cancelled]"))
		case err != nil:
			fmt.Fprintln(opts.Err, RenderConditional(ErrorStyle, "Error:"), err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// The brief only accompanies the first message of the session.
		brief = nil
	}
}

// replCommand handles a slash command and reports whether the session
// continues.
func replCommand(ctx context.Context, opts *Options, a *app.App, projectID, input string) bool {
	switch strings.Fields(input)[0] {
	case "/exit", "/quit", "/q":
		return false
	case "/help", "/?":
		fmt.Fprintln(opts.Out, replHelp)
	case "/clear":
		if _, err := a.Chat.History().Clear(ctx, projectID); err != nil {
			fmt.Fprintln(opts.Err, RenderConditional(ErrorStyle, "Error:"), err)
			break
		}
		fmt.Fprintln(opts.Out, RenderConditional(SuccessStyle, "✓"), chat.ClearedText)
	case "/history":
		msgs, err := a.Chat.History().Load(ctx, projectID)
		if err != nil {
			fmt.Fprintln(opts.Err, RenderConditional(ErrorStyle, "Error:"), err)
			break
		}
		for _, m := range msgs {
			printMessage(opts.Out, m)
		}
	default:
		fmt.Fprintln(opts.Err, RenderConditional(WarningStyle, "Unknown command: "+input))
	}
	return true
}
