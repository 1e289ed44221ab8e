package planloop

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/martinemde/issueplanner/modelwire"
)

// ToolExecutor is the function signature for tool execution. It performs one
// synchronous call against an external collaborator and reports failures as
// a returned error, never by panicking past the registry boundary.
type ToolExecutor func(ctx context.Context, arguments json.RawMessage) (string, error)

// ToolSpec is the immutable description of one callable research operation:
// its name, input schema, and human-readable description. Created once at
// process start and shared read-only by the loop.
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
}

// RegisteredTool pairs a tool spec with its executor.
type RegisteredTool struct {
	Spec    ToolSpec
	Execute ToolExecutor
}

// ToolOutcome is the value-level result of one invocation. Collaborator
// failures are carried in Content with IsError set, so a failing call
// degrades the run instead of aborting it.
type ToolOutcome struct {
	Content string
	IsError bool
}

// ToolRegistry manages tool registration, lookup, and invocation.
type ToolRegistry struct {
	tools map[string]*RegisteredTool
	order []string
	mu    sync.RWMutex
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]*RegisteredTool),
	}
}

// Register adds or replaces a tool in the registry.
func (r *ToolRegistry) Register(tool RegisteredTool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Spec.Name]; !exists {
		r.order = append(r.order, tool.Spec.Name)
	}
	r.tools[tool.Spec.Name] = &tool
}

// Resolve returns a registered tool by name.
func (r *ToolRegistry) Resolve(name string) (*RegisteredTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Definitions returns all tool definitions in registration order, in the
// shape offered to the model on every consultation.
func (r *ToolRegistry) Definitions() []modelwire.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]modelwire.ToolDefinition, 0, len(r.tools))
	for _, name := range r.order {
		tool := r.tools[name]
		defs = append(defs, modelwire.ToolDefinition{
			Name:        tool.Spec.Name,
			Description: tool.Spec.Description,
			Parameters:  tool.Spec.Parameters,
		})
	}
	return defs
}

// Names returns the names of all registered tools in registration order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Invoke executes one tool call and captures every failure mode, executor
// error or panic alike, as a ToolOutcome value. Nothing raises past this
// boundary.
func (r *ToolRegistry) Invoke(ctx context.Context, tool *RegisteredTool, arguments json.RawMessage) (outcome ToolOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			outcome = ToolOutcome{
				Content: fmt.Sprintf("tool error (%s): panic: %v", tool.Spec.Name, rec),
				IsError: true,
			}
		}
	}()

	content, err := tool.Execute(ctx, arguments)
	if err != nil {
		return ToolOutcome{
			Content: fmt.Sprintf("tool error (%s): %v", tool.Spec.Name, err),
			IsError: true,
		}
	}
	return ToolOutcome{Content: content}
}

// ParseToolArguments unmarshals tool call arguments into a map for
// validation and access.
func ParseToolArguments(raw json.RawMessage) (map[string]interface{}, error) {
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	return args, nil
}

// GetStringArg extracts a string argument from parsed tool arguments.
func GetStringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetIntArg extracts an integer argument from parsed tool arguments.
func GetIntArg(args map[string]interface{}, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// GetStringSliceArg extracts a string-slice argument from parsed tool
// arguments. A bare string is accepted as a one-element slice.
func GetStringSliceArg(args map[string]interface{}, key string) ([]string, bool) {
	v, ok := args[key]
	if !ok {
		return nil, false
	}
	switch vv := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case string:
		return []string{vv}, true
	default:
		return nil, false
	}
}
