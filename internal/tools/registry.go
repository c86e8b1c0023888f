package tools

import (
	"context"
	"fmt"
	"sync"
)

// MaxToolNameLength bounds tool identifiers, following the teacher's
// tool_registry.go constants.
const MaxToolNameLength = 256

// MaxInputFieldCount bounds how many keys an Input map may carry, a
// cheap guard against pathological payloads ahead of per-field
// validation.
const MaxInputFieldCount = 256

// Registry is a concurrency-safe map of tool name to Tool.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool. It rejects names longer than
// MaxToolNameLength.
func (r *Registry) Register(t Tool) error {
	name := normalizeToolName(t.Name())
	if len(name) == 0 {
		return fmt.Errorf("tools: tool name must not be empty")
	}
	if len(name) > MaxToolNameLength {
		return fmt.Errorf("tools: tool name exceeds %d characters", MaxToolNameLength)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = t
	return nil
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, normalizeToolName(name))
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[normalizeToolName(name)]
	return t, ok
}

// Names lists every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for n := range r.tools {
		out = append(out, n)
	}
	return out
}

// Execute validates input against the named tool's schema, then runs it.
// A missing tool reports an error the caller should capture into the
// task's tool-results map, not propagate, per §4.6.
func (r *Registry) Execute(ctx context.Context, name string, input Input) (Result, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("tools: unknown tool %q", name)
	}
	if len(input) > MaxInputFieldCount {
		return nil, fmt.Errorf("tools: input field count exceeds %d", MaxInputFieldCount)
	}
	validated, err := Validate(t.Schema(), input)
	if err != nil {
		return nil, err
	}
	return t.Execute(ctx, validated)
}
