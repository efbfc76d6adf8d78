package agent

import "context"

// Tool is a capability the model can invoke during a conversation.
type Tool interface {
	// Name returns the tool's identifier.
	Name() string

	// Description returns a human-readable description for the model.
	Description() string

	// InputSchema returns the JSON Schema for the tool's input.
	InputSchema() string

	// Execute runs the tool with the given JSON input and returns its output.
	Execute(ctx context.Context, input string) (string, error)
}

// ToolRegistry holds the tools available to a runner. It is constructed
// explicitly and injected; registration is an ordinary method call, never
// an import-time side effect.
type ToolRegistry struct {
	order []string
	tools map[string]Tool
}

// NewToolRegistry creates an empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering the same name twice replaces the
// earlier tool but keeps its position.
func (r *ToolRegistry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns model-ready tool definitions in registration order.
func (r *ToolRegistry) Definitions() []ToolDef {
	defs := make([]ToolDef, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, ToolDef{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return defs
}

// ToolDef is a serializable tool definition for the system prompt.
type ToolDef struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema string `json:"inputSchema"`
}
