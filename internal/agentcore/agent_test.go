package agentcore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewkit/engine/internal/memory"
	"github.com/crewkit/engine/internal/providers/providertest"
	"github.com/crewkit/engine/internal/streaming"
)

type fakeMemory struct {
	mu            sync.Mutex
	searchResults []memory.SearchResult
	stored        []string
}

func (f *fakeMemory) Search(ctx context.Context, query string, limit int) ([]memory.SearchResult, error) {
	return f.searchResults, nil
}

func (f *fakeMemory) Store(ctx context.Context, key, data string, metadata map[string]string, expiresAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, key)
	return nil
}

func TestAgent_HandleHappyPath(t *testing.T) {
	mem := &fakeMemory{}
	provider := providertest.NewEcho("mock", "R")
	agent, err := New("Writer", "Blog", provider, mem)
	require.NoError(t, err)

	task, err := NewTask("T")
	require.NoError(t, err)

	resp, err := agent.Handle(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, "R", resp.Content)
	assert.Equal(t, "Writer", resp.AgentRole)
	require.Len(t, mem.stored, 1)
	assert.Contains(t, mem.stored[0], "agent_memory_Writer_")
}

func TestAgent_RejectsOverlongRole(t *testing.T) {
	mem := &fakeMemory{}
	provider := providertest.NewEcho("mock", "R")
	longRole := make([]byte, maxRoleLength+1)
	for i := range longRole {
		longRole[i] = 'a'
	}
	_, err := New(string(longRole), "Blog", provider, mem)
	require.Error(t, err)
}

func TestAgent_RejectsDangerousRole(t *testing.T) {
	mem := &fakeMemory{}
	provider := providertest.NewEcho("mock", "R")
	_, err := New("<script>alert(1)</script>", "Blog", provider, mem)
	require.Error(t, err)
}

func TestAgent_IncludesMemoryRecallInContext(t *testing.T) {
	mem := &fakeMemory{searchResults: []memory.SearchResult{{Key: "k", Data: "past fact"}}}
	var seenPrompt string
	provider := &providertest.Mock{
		NameValue: "mock",
		Model:     "mock-model",
		Respond: func(prompt string) string {
			seenPrompt = prompt
			return "R"
		},
	}
	agent, err := New("Writer", "Blog", provider, mem)
	require.NoError(t, err)
	task, err := NewTask("T")
	require.NoError(t, err)

	_, err = agent.Handle(context.Background(), task)
	require.NoError(t, err)
	assert.Contains(t, seenPrompt, "past fact")
}

func TestAgent_TaskContextOverridesAgentContext(t *testing.T) {
	mem := &fakeMemory{}
	var seenPrompt string
	provider := &providertest.Mock{
		NameValue: "mock",
		Respond: func(prompt string) string {
			seenPrompt = prompt
			return "R"
		},
	}
	agent, err := New("Writer", "Blog", provider, mem, WithContext(map[string]any{"tone": "formal"}))
	require.NoError(t, err)
	task, err := NewTask("T")
	require.NoError(t, err)
	task.Context["tone"] = "casual"

	_, err = agent.Handle(context.Background(), task)
	require.NoError(t, err)
	assert.Contains(t, seenPrompt, "casual")
	assert.NotContains(t, seenPrompt, "formal")
}

func TestAgent_StreamConcatenatesChunksAndFinalizes(t *testing.T) {
	mem := &fakeMemory{}
	provider := providertest.NewEcho("mock", "hello world")
	agent, err := New("Writer", "Blog", provider, mem)
	require.NoError(t, err)
	task, err := NewTask("T")
	require.NoError(t, err)

	var chunks []string
	env, finalize, err := agent.Stream(context.Background(), task, func(c streaming.Chunk, contentSoFar string) {
		chunks = append(chunks, c.Content)
	})
	require.NoError(t, err)
	resp, err := env.ToResponse()
	require.NoError(t, err)
	finalize(context.Background(), resp.Content)
	assert.Equal(t, "hello world", resp.Content)
	assert.NotEmpty(t, chunks)
	require.Len(t, mem.stored, 1)
}
