// Package agentcore implements C6: the Agent value that composes a
// prompt from role, goal, context, memory recall, and tool results, then
// dispatches it to a provider, whole or streamed.
package agentcore

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/crewkit/engine/internal/providers"
	"github.com/crewkit/engine/internal/sanitize"
	"github.com/crewkit/engine/internal/tools"
	"github.com/crewkit/engine/internal/usage"
)

const (
	maxRoleLength        = 255
	maxGoalLength        = 1000
	maxTaskDescLength    = 10_000
	defaultMemorySearchLimit = 5
	defaultMaxContextLength  = 2000
)

// PromptConfig carries the recognized options from agent.config that
// govern prompt assembly, per §4.6.
type PromptConfig struct {
	IncludeMemory     bool
	IncludeTools      bool
	MaxContextLength  int
	MemorySearchLimit int
}

// DefaultPromptConfig matches the specification's defaults: memory and
// tools both included, context capped at 2000 characters, memory search
// limited to 5 hits.
func DefaultPromptConfig() PromptConfig {
	return PromptConfig{
		IncludeMemory:     true,
		IncludeTools:      true,
		MaxContextLength:  defaultMaxContextLength,
		MemorySearchLimit: defaultMemorySearchLimit,
	}
}

// Config is the full set of recognized Agent options.
type Config struct {
	Provider providers.Options
	Prompt   PromptConfig
}

// DefaultConfig matches the specification's provider defaults
// ({temperature:0.7, max_tokens:1000}) plus DefaultPromptConfig.
func DefaultConfig() Config {
	return Config{Provider: providers.DefaultOptions(), Prompt: DefaultPromptConfig()}
}

// ErrAgentNotInCrew is not returned by this package. The crew scheduler
// returns its own crew.ErrAgentNotInCrew, which does not wrap this value.
var ErrAgentNotInCrew = errors.New("agent not in crew")

// Agent is a named role bound to a provider, a memory handle, and an
// optional tool set. Role and goal are validated and sanitized at
// construction, per §3's invariant that they never contain dangerous
// patterns.
type Agent struct {
	Role     string
	Goal     string
	Provider providers.Provider
	Memory   MemoryBackend
	Tools    map[string]tools.Tool
	Context  map[string]any
	Config   Config

	usage *usage.Tracker
}

// New constructs an Agent, sanitizing and length-checking role and goal.
func New(role, goal string, provider providers.Provider, mem MemoryBackend, opts ...Option) (*Agent, error) {
	cleanRole, err := sanitize.Sanitize(role, maxRoleLength)
	if err != nil {
		return nil, fmt.Errorf("agent: role: %w", err)
	}
	if cleanRole == "" {
		return nil, fmt.Errorf("agent: role must not be empty")
	}
	if len([]rune(role)) > maxRoleLength {
		return nil, fmt.Errorf("agent: role exceeds %d characters", maxRoleLength)
	}

	cleanGoal, err := sanitize.Sanitize(goal, maxGoalLength)
	if err != nil {
		return nil, fmt.Errorf("agent: goal: %w", err)
	}
	if cleanGoal == "" {
		return nil, fmt.Errorf("agent: goal must not be empty")
	}
	if len([]rune(goal)) > maxGoalLength {
		return nil, fmt.Errorf("agent: goal exceeds %d characters", maxGoalLength)
	}

	a := &Agent{
		Role:     cleanRole,
		Goal:     cleanGoal,
		Provider: provider,
		Memory:   mem,
		Tools:    make(map[string]tools.Tool),
		Context:  make(map[string]any),
		Config:   DefaultConfig(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Option customizes an Agent at construction.
type Option func(*Agent)

// WithTool registers a tool under its own name.
func WithTool(t tools.Tool) Option {
	return func(a *Agent) { a.Tools[t.Name()] = t }
}

// WithContext seeds the agent's base context.
func WithContext(ctx map[string]any) Option {
	return func(a *Agent) {
		for k, v := range ctx {
			a.Context[k] = v
		}
	}
}

// WithConfig overrides the default Config.
func WithConfig(cfg Config) Option {
	return func(a *Agent) { a.Config = cfg }
}

// Task is one unit of work handed to an Agent.
type Task struct {
	Description string
	AgentRole   string
	ToolInputs  map[string]tools.Input
	Context     map[string]any
}

// memoryEncode renders a memory record through the same JSON value
// algebra the memory package itself uses for StoreValue.
func memoryEncode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// NewTask constructs a Task, sanitizing and length-checking description.
func NewTask(description string) (*Task, error) {
	cleaned, err := sanitize.Sanitize(description, maxTaskDescLength)
	if err != nil {
		return nil, fmt.Errorf("task: description: %w", err)
	}
	if cleaned == "" {
		return nil, fmt.Errorf("task: description must not be empty")
	}
	if len([]rune(description)) > maxTaskDescLength {
		return nil, fmt.Errorf("task: description exceeds %d characters", maxTaskDescLength)
	}
	return &Task{Description: cleaned, Context: make(map[string]any)}, nil
}
