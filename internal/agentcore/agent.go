package agentcore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/crewkit/engine/internal/memory"
	"github.com/crewkit/engine/internal/providers"
	"github.com/crewkit/engine/internal/streaming"
	"github.com/crewkit/engine/internal/tools"
	"github.com/crewkit/engine/internal/usage"
	"github.com/crewkit/engine/pkg/models"
)

// WithUsageTracker attaches a usage.Tracker so every provider call this
// agent makes is recorded into C5.
func WithUsageTracker(u *usage.Tracker) Option {
	return func(a *Agent) { a.usage = u }
}

// resolveContext merges task.Context over a.Context, task keys winning.
func (a *Agent) resolveContext(task *Task) map[string]any {
	merged := make(map[string]any, len(a.Context)+len(task.Context))
	for k, v := range a.Context {
		merged[k] = v
	}
	for k, v := range task.Context {
		merged[k] = v
	}
	return merged
}

// recallMemory runs the full-text memory search described in §4.6 step
// 2, returning a summary string suitable for appending to the context
// under "memory".
func (a *Agent) recallMemory(ctx context.Context, task *Task) (string, error) {
	if a.Memory == nil {
		return "", nil
	}
	limit := a.Config.Prompt.MemorySearchLimit
	if limit <= 0 {
		limit = defaultMemorySearchLimit
	}
	results, err := a.Memory.Search(ctx, task.Description, limit)
	if err != nil {
		return "", fmt.Errorf("agent: memory recall: %w", err)
	}
	if len(results) == 0 {
		return "", nil
	}
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(r.Data)
	}
	return sb.String(), nil
}

// runTools executes every tool referenced in task.ToolInputs, capturing
// failures into the result map as {status:"error", message} instead of
// propagating them, per §4.6.
func (a *Agent) runTools(ctx context.Context, task *Task) map[string]any {
	out := make(map[string]any, len(task.ToolInputs))
	for name, input := range task.ToolInputs {
		t, ok := a.Tools[name]
		if !ok {
			out[name] = map[string]any{"status": "error", "message": fmt.Sprintf("tool %q not registered on agent", name)}
			continue
		}
		validated, err := tools.Validate(t.Schema(), input)
		if err != nil {
			out[name] = map[string]any{"status": "error", "message": err.Error()}
			continue
		}
		result, err := t.Execute(ctx, validated)
		if err != nil {
			out[name] = map[string]any{"status": "error", "message": err.Error()}
			continue
		}
		out[name] = result
	}
	return out
}

// summarizeContext renders merged into a deterministic, human-readable
// block for the prompt.
func summarizeContext(merged map[string]any) string {
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %v\n", k, merged[k])
	}
	return sb.String()
}

// buildPrompt concatenates role, goal, context summary, and the task
// description, truncating the context section first when the combined
// prompt exceeds maxLen, per §4.6 step 4.
func buildPrompt(role, goal, contextSummary, description string, maxLen int) string {
	fixed := fmt.Sprintf("Role: %s\nGoal: %s\n\nTask: %s\n", role, goal, description)
	if maxLen <= 0 {
		maxLen = defaultMaxContextLength
	}
	budget := maxLen - len([]rune(fixed)) - len("Context:\n")
	if budget < 0 {
		budget = 0
	}
	trimmed := contextSummary
	if len([]rune(trimmed)) > budget {
		trimmed = string([]rune(trimmed)[:budget])
	}
	if trimmed == "" {
		return fixed
	}
	return fmt.Sprintf("Role: %s\nGoal: %s\n\nContext:\n%s\nTask: %s\n", role, goal, trimmed, description)
}

// persist writes {prompt, response, agent-role, task.description} into
// memory under a generated key, per §4.6 step 6.
func (a *Agent) persist(ctx context.Context, prompt, response string, task *Task) error {
	if a.Memory == nil {
		return nil
	}
	record := map[string]any{
		"prompt":      prompt,
		"response":    response,
		"agent_role":  a.Role,
		"description": task.Description,
	}
	data, err := memoryEncode(record)
	if err != nil {
		return fmt.Errorf("agent: encode memory record: %w", err)
	}
	key := memory.KeyPrefix("agent_memory", a.Role, time.Now().UTC())
	return a.Memory.Store(ctx, key, data, nil, nil)
}

// trackUsage records provider usage into C5, if a tracker is attached
// and the provider reported any token counts.
func (a *Agent) trackUsage(ctx context.Context, providerName, model string, u *providers.Usage) {
	if a.usage == nil || u == nil {
		return
	}
	_ = a.usage.Track(ctx, providerName, model, u.PromptTokens, u.CompletionTokens, nil, nil)
}

func (a *Agent) effectiveModel(opts providers.Options) string {
	if opts.Model != "" {
		return opts.Model
	}
	return a.Provider.DefaultModel()
}

// Handle runs the full execution algorithm and returns a completed
// Response.
func (a *Agent) Handle(ctx context.Context, task *Task) (*models.Response, error) {
	start := time.Now()

	merged := a.resolveContext(task)
	if a.Config.Prompt.IncludeMemory {
		summary, err := a.recallMemory(ctx, task)
		if err != nil {
			return nil, err
		}
		if summary != "" {
			merged["memory"] = summary
		}
	}

	var toolResults map[string]any
	if len(task.ToolInputs) > 0 {
		toolResults = a.runTools(ctx, task)
		if a.Config.Prompt.IncludeTools {
			merged["tools"] = toolResults
		}
	}

	prompt := buildPrompt(a.Role, a.Goal, summarizeContext(merged), task.Description, a.Config.Prompt.MaxContextLength)

	opts := a.Config.Provider
	content, u, err := a.Provider.Generate(ctx, providers.ModeChat, prompt, opts)
	if err != nil {
		return nil, fmt.Errorf("agent %q: provider generate: %w", a.Role, err)
	}
	a.trackUsage(ctx, a.Provider.Name(), a.effectiveModel(opts), u)

	if err := a.persist(ctx, prompt, content, task); err != nil {
		return nil, err
	}

	return &models.Response{
		Content:       content,
		AgentRole:     a.Role,
		ToolResults:   toolResults,
		ExecutionTime: time.Since(start).Seconds(),
	}, nil
}

// Finalize is returned by Stream: it records the prompt/response pair
// into memory. It records no token usage into C5. Callers invoke it
// once, with the envelope's final content, immediately after draining
// (directly or via Envelope.ToResponse).
type Finalize func(ctx context.Context, content string)

// Stream runs steps 1-4 of the execution algorithm, then dispatches to
// the provider's streaming entry point, returning a reifiable
// streaming.Envelope and a Finalize callback that performs step 6 once
// the stream is drained. The streaming path does not track usage.
func (a *Agent) Stream(ctx context.Context, task *Task, callback streaming.Callback) (*streaming.Envelope, Finalize, error) {
	merged := a.resolveContext(task)
	if a.Config.Prompt.IncludeMemory {
		summary, err := a.recallMemory(ctx, task)
		if err != nil {
			return nil, nil, err
		}
		if summary != "" {
			merged["memory"] = summary
		}
	}

	var toolResults map[string]any
	if len(task.ToolInputs) > 0 {
		toolResults = a.runTools(ctx, task)
		if a.Config.Prompt.IncludeTools {
			merged["tools"] = toolResults
		}
	}

	prompt := buildPrompt(a.Role, a.Goal, summarizeContext(merged), task.Description, a.Config.Prompt.MaxContextLength)

	opts := a.Config.Provider
	stream, err := a.Provider.StreamGenerate(ctx, providers.ModeChat, prompt, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("agent %q: provider stream: %w", a.Role, err)
	}

	env := streaming.New(adaptStream(stream), a.Role, callback)
	env.SetToolResults(toolResults)

	// providers.Stream carries no usage field (unlike Generate's return),
	// so the streaming path cannot record token usage into C5 generically
	// the way Handle does; only memory persistence happens here.
	finalize := func(fctx context.Context, content string) {
		_ = a.persist(fctx, prompt, content, task)
	}
	return env, finalize, nil
}

// adaptStream bridges a providers.Stream to streaming.Source.
func adaptStream(s providers.Stream) streaming.Source {
	return streaming.ChunkFunc(func() (streaming.Chunk, bool, error) {
		chunk, ok, err := s.Next()
		if err != nil || !ok {
			_ = s.Close()
			return streaming.Chunk{}, false, err
		}
		return streaming.Chunk{Content: chunk.Content, Done: chunk.Done}, true, nil
	})
}
