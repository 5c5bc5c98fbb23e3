// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"encoding/json"
	"sort"
)

// Tool names the assistant may call.
const (
	CreateFile      = "create_file"
	UpdateFile      = "update_file"
	DeleteFile      = "delete_file"
	CreateDirectory = "create_directory"
	CreateProject   = "create_project"
)

// ProjectTypes are the values accepted for create_project's type.
var ProjectTypes = []string{"website", "react-app", "landing-page"}

// =============================================================================
// TOOL DEFINITION
// =============================================================================

// Tool describes one callable tool for the system prompt.
type Tool struct {
	// Name is the identifier the model must use.
	Name string

	// Description is shown to the model.
	Description string

	// Schema defines the tool's parameters
	Schema Schema
}

// Schema defines a tool's parameters.
type Schema struct {
	Parameters []Parameter
}

// Parameter defines a single tool parameter.
type Parameter struct {
	Name        string
	Type        string
	Required    bool
	Description string
	// Enum contains allowed values for string parameters.
	Enum []string
}

// Required lists the names of required parameters in declaration order.
func (s Schema) Required() []string {
	var out []string
	for _, p := range s.Parameters {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

type propertyJSON struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
}

// PropertiesJSON renders the parameters as an indented JSON-schema
// properties object.
func (s Schema) PropertiesJSON() string {
	props := make(map[string]propertyJSON, len(s.Parameters))
	for _, p := range s.Parameters {
		props[p.Name] = propertyJSON{Type: p.Type, Description: p.Description, Enum: p.Enum}
	}
	b, _ := json.MarshalIndent(props, "", "  ")
	return string(b)
}

// =============================================================================
// BUILT-IN TOOLS
// =============================================================================

var (
	CreateFileTool = &Tool{
		Name:        CreateFile,
		Description: "Create a new file with specified content",
		Schema: Schema{Parameters: []Parameter{
			{Name: "path", Type: "string", Required: true, Description: "The file path (e.g., src/App.js, index.html)"},
			{Name: "content", Type: "string", Required: true, Description: "The content of the file"},
		}},
	}

	UpdateFileTool = &Tool{
		Name:        UpdateFile,
		Description: "Update an existing file with new content",
		Schema: Schema{Parameters: []Parameter{
			{Name: "path", Type: "string", Required: true, Description: "The file path to update"},
			{Name: "content", Type: "string", Required: true, Description: "The new content of the file"},
		}},
	}

	DeleteFileTool = &Tool{
		Name:        DeleteFile,
		Description: "Delete a file",
		Schema: Schema{Parameters: []Parameter{
			{Name: "path", Type: "string", Required: true, Description: "The file path to delete"},
		}},
	}

	CreateDirectoryTool = &Tool{
		Name:        CreateDirectory,
		Description: "Create a directory and any missing parent directories",
		Schema: Schema{Parameters: []Parameter{
			{Name: "path", Type: "string", Required: true, Description: "The directory path (e.g., src/components)"},
		}},
	}

	CreateProjectTool = &Tool{
		Name:        CreateProject,
		Description: "Create a new project with a specific name",
		Schema: Schema{Parameters: []Parameter{
			{Name: "name", Type: "string", Required: true, Description: "The name of the project"},
			{Name: "type", Type: "string", Required: true, Description: "The type of project (website, react-app, etc.)", Enum: ProjectTypes},
		}},
	}
)

// =============================================================================
// TOOL REGISTRY
// =============================================================================

// Registry holds the available tools.
type Registry struct {
	tools map[string]*Tool
	order []string
}

// NewRegistry creates a registry with the built-in tools.
func NewRegistry() *Registry {
	r := &Registry{tools: make(map[string]*Tool)}
	r.RegisterBuiltins()
	return r
}

// RegisterBuiltins registers all built-in tools.
func (r *Registry) RegisterBuiltins() {
	r.Register(CreateFileTool)
	r.Register(UpdateFileTool)
	r.Register(DeleteFileTool)
	r.Register(CreateDirectoryTool)
	r.Register(CreateProjectTool)
}

// Register adds a tool, replacing any tool of the same name.
func (r *Registry) Register(tool *Tool) {
	if _, exists := r.tools[tool.Name]; !exists {
		r.order = append(r.order, tool.Name)
	}
	r.tools[tool.Name] = tool
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// All returns the tools in registration order.
func (r *Registry) All() []*Tool {
	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}
