// Package tools holds the tool registry offered to models and the built-in
// tools: clock, web search, web fetch, todos and calendar events.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/user/llmchat/internal/provider"
)

type Param struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Tool is one callable capability. Execute may return a string, which is
// passed to the model verbatim, or any other value, which is JSON encoded.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]Param
	Execute     func(ctx context.Context, args map[string]any) (any, error)
}

type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds t, replacing any tool with the same name.
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Names lists registered tools in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Definitions returns provider tool definitions for the enabled names that
// are registered, in the order given. Unknown names are skipped.
func (r *Registry) Definitions(enabled []string) []provider.ToolDef {
	defs := make([]provider.ToolDef, 0, len(enabled))
	seen := make(map[string]struct{}, len(enabled))
	for _, name := range enabled {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		defs = append(defs, provider.ToolDef{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  jsonSchema(t.Parameters),
		})
	}
	return defs
}

// Execute runs the named tool with JSON-encoded arguments and always returns
// a string. Unknown tools, failures and panics become {"error": "..."}.
func (r *Registry) Execute(ctx context.Context, name string, argsJSON string) (result string) {
	t, ok := r.tools[name]
	if !ok {
		return errorResult(fmt.Sprintf("Unknown tool: %s", name))
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("tool panicked", "tool", name, "panic", rec)
			result = errorResult(fmt.Sprint(rec))
		}
	}()

	out, err := t.Execute(ctx, parseArgs(argsJSON))
	if err != nil {
		return errorResult(err.Error())
	}
	if s, ok := out.(string); ok {
		return s
	}
	return toJSON(out)
}

func parseArgs(raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

func jsonSchema(params map[string]Param) map[string]any {
	properties := make(map[string]any, len(params))
	required := make([]string, 0)
	for key, p := range params {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		properties[key] = prop
		if p.Required {
			required = append(required, key)
		}
	}
	sort.Strings(required)
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func errorResult(msg string) string {
	return toJSON(map[string]string{"error": msg})
}

func toJSON(v any) string {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(buf)
}
