// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jeranaias/aidev/internal/logging"
	"github.com/jeranaias/aidev/internal/metrics"
	"github.com/jeranaias/aidev/internal/project"
)

// DefaultProjectName names the project created when the model writes a file
// and nothing is open.
const DefaultProjectName = "AI Generated Project"

// ErrNoProject is reported by tools that need an open project.
var ErrNoProject = errors.New("no current project")

// Projects is the part of the project store the executor drives.
type Projects interface {
	CurrentID() string
	CreateProject(ctx context.Context, name string) (string, error)
	ExecuteFileOperation(ctx context.Context, id string, op project.Operation) (*project.Project, error)
	CreateDirectory(ctx context.Context, id, path string) (*project.Project, error)
}

// =============================================================================
// RESULTS
// =============================================================================

// Result is the outcome of one tool call. Output is the line shown to the
// user; failures are reported there and never abort the exchange.
type Result struct {
	CallID   string
	Name     string
	Output   string
	Success  bool
	Duration time.Duration
}

// ExecutionRecord is one entry of the executor's history.
type ExecutionRecord struct {
	ProjectID string
	Result    Result
	Timestamp time.Time
}

// ExecutionStats summarizes the history.
type ExecutionStats struct {
	TotalExecutions int
	Successful      int
	Failed          int
}

// =============================================================================
// EXECUTOR
// =============================================================================

// Executor applies tool calls to the project store.
type Executor struct {
	projects Projects
	registry *Registry

	mu      sync.Mutex
	history []ExecutionRecord
}

// NewExecutor binds the executor to a store and tool registry.
func NewExecutor(projects Projects, registry *Registry) *Executor {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Executor{projects: projects, registry: registry}
}

// Registry returns the tool registry.
func (e *Executor) Registry() *Registry { return e.registry }

// Execute runs one tool call against the current project.
func (e *Executor) Execute(ctx context.Context, call ToolCall) Result {
	var target string
	return e.run(ctx, &target, call)
}

// ExecuteAll runs calls in order against projectID. An empty projectID
// means the current project, created on demand. A create_project call
// retargets the calls after it. Calls not yet started when ctx is
// cancelled are skipped; calls already applied stay applied.
func (e *Executor) ExecuteAll(ctx context.Context, projectID string, calls []ToolCall) []Result {
	target := projectID
	results := make([]Result, 0, len(calls))
	for _, call := range calls {
		if ctx.Err() != nil {
			break
		}
		results = append(results, e.run(ctx, &target, call))
	}
	return results
}

func (e *Executor) run(ctx context.Context, target *string, call ToolCall) Result {
	start := time.Now()
	name := call.Function.Name

	var (
		output string
		err    error
	)
	if e.registry.Get(name) == nil {
		output, err = "Unknown tool: "+name, errUnknown
	} else {
		output, err = e.dispatch(ctx, target, name, call.Function.Arguments)
		if err != nil && !errors.Is(err, errMissingData) {
			output = fmt.Sprintf("Error executing %s: %v", name, err)
		}
	}

	result := Result{
		CallID:   call.ID,
		Name:     name,
		Output:   output,
		Success:  err == nil,
		Duration: time.Since(start),
	}
	metrics.RecordToolCall(name, result.Success)
	if err != nil {
		logging.Warn("tool call failed", logging.String("tool", name), logging.Err(err))
	} else {
		logging.Debug("tool call", logging.String("tool", name),
			logging.String("project", *target), logging.Duration("duration", result.Duration))
	}

	e.record(*target, result)
	return result
}

var (
	errUnknown     = errors.New("unknown tool")
	errMissingData = errors.New("missing data")
)

func (e *Executor) dispatch(ctx context.Context, target *string, name string, args Arguments) (string, error) {
	switch name {
	case CreateFile, UpdateFile:
		var a FileArgs
		if err := args.Decode(&a); err != nil {
			return "", err
		}
		verb, op := "create", project.Create(a.Path, "")
		if name == UpdateFile {
			verb, op = "update", project.Update(a.Path, "")
		}
		if a.Path == "" || a.Content == nil {
			return fmt.Sprintf("Failed to %s file: missing data", verb), errMissingData
		}
		op.Content = *a.Content

		id, err := e.targetProject(ctx, target, true)
		if err != nil {
			return "", err
		}
		if _, err := e.projects.ExecuteFileOperation(ctx, id, op); err != nil {
			return "", err
		}
		if name == UpdateFile {
			return "Updated file: " + a.Path, nil
		}
		return "Created file: " + a.Path, nil

	case DeleteFile:
		var a PathArgs
		if err := args.Decode(&a); err != nil {
			return "", err
		}
		if a.Path == "" {
			return "Failed to delete file: missing data", errMissingData
		}
		id, err := e.targetProject(ctx, target, false)
		if err != nil {
			return "", err
		}
		if _, err := e.projects.ExecuteFileOperation(ctx, id, project.Delete(a.Path)); err != nil {
			return "", err
		}
		return "Deleted file: " + a.Path, nil

	case CreateDirectory:
		var a PathArgs
		if err := args.Decode(&a); err != nil {
			return "", err
		}
		if a.Path == "" {
			return "Failed to create directory: missing data", errMissingData
		}
		id, err := e.targetProject(ctx, target, true)
		if err != nil {
			return "", err
		}
		if _, err := e.projects.CreateDirectory(ctx, id, a.Path); err != nil {
			return "", err
		}
		return "Created directory: " + a.Path, nil

	case CreateProject:
		var a ProjectArgs
		if err := args.Decode(&a); err != nil {
			return "", err
		}
		if a.Name == "" {
			return "Failed to create project: missing data", errMissingData
		}
		id, err := e.projects.CreateProject(ctx, a.Name)
		if err != nil {
			return "", err
		}
		*target = id
		return fmt.Sprintf("Created project: %s (ID: %s)", a.Name, id), nil
	}
	return "Unknown tool: " + name, errUnknown
}

// targetProject resolves *target, falling back to the current project and
// then to a new DefaultProjectName project when create is set. The resolved
// id is kept in *target for the calls that follow.
func (e *Executor) targetProject(ctx context.Context, target *string, create bool) (string, error) {
	if *target != "" {
		return *target, nil
	}
	if id := e.projects.CurrentID(); id != "" {
		*target = id
		return id, nil
	}
	if !create {
		return "", ErrNoProject
	}
	id, err := e.projects.CreateProject(ctx, DefaultProjectName)
	if err != nil {
		return "", err
	}
	logging.Info("created project for tool call", logging.String("id", id))
	*target = id
	return id, nil
}

// =============================================================================
// HISTORY
// =============================================================================

func (e *Executor) record(projectID string, r Result) {
	e.mu.Lock()
	defer e.mu.Unlock()

	const maxHistorySize = 1000
	if len(e.history) >= maxHistorySize {
		e.history = e.history[len(e.history)-maxHistorySize+1:]
	}
	e.history = append(e.history, ExecutionRecord{
		ProjectID: projectID,
		Result:    r,
		Timestamp: time.Now(),
	})
}

// History returns a copy of the execution history.
func (e *Executor) History() []ExecutionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ExecutionRecord(nil), e.history...)
}

// Stats returns statistics about the execution history.
func (e *Executor) Stats() ExecutionStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := ExecutionStats{TotalExecutions: len(e.history)}
	for _, rec := range e.history {
		if rec.Result.Success {
			stats.Successful++
		} else {
			stats.Failed++
		}
	}
	return stats
}
