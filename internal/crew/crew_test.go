package crew

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewkit/engine/internal/agentcore"
	"github.com/crewkit/engine/internal/providers"
	"github.com/crewkit/engine/internal/providers/providertest"
)

func mustAgent(t *testing.T, role string, provider providers.Provider) *agentcore.Agent {
	t.Helper()
	a, err := agentcore.New(role, "goal", provider, nil)
	require.NoError(t, err)
	return a
}

func mustTask(t *testing.T, desc string) *agentcore.Task {
	t.Helper()
	task, err := agentcore.NewTask(desc)
	require.NoError(t, err)
	return task
}

func TestCrew_SequentialPropagatesPreviousResponse(t *testing.T) {
	writer := providertest.NewEcho("writer", "draft")
	editor := &providertest.Mock{
		NameValue: "editor",
		Respond: func(prompt string) string {
			if !strings.Contains(prompt, "draft") || !strings.Contains(prompt, "Writer") {
				return "missing propagation"
			}
			return "edited"
		},
	}

	c := New()
	c.AddAgent("Writer", mustAgent(t, "Writer", writer))
	c.AddAgent("Editor", mustAgent(t, "Editor", editor))
	c.AddTask(mustTask(t, "write a post"), "Writer")
	c.AddTask(mustTask(t, "edit the post"), "Editor")

	result, err := c.Execute(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.Results, 2)
	assert.Equal(t, "draft", result.Results[0].Response.Content)
	assert.Equal(t, "edited", result.Results[1].Response.Content)
}

func TestCrew_UnknownAgentRoleFails(t *testing.T) {
	c := New()
	c.AddAgent("Writer", mustAgent(t, "Writer", providertest.NewEcho("writer", "draft")))
	c.AddTask(mustTask(t, "do it"), "Ghost")

	result, err := c.Execute(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "agent not in crew")
}

func TestCrew_ParallelPreservesOrderingWithFailingTask(t *testing.T) {
	var mu sync.Mutex
	c := New()
	c.Config.ExecutionMode = Parallel

	for i := 0; i < 5; i++ {
		idx := i
		provider := &providertest.Mock{
			NameValue: fmt.Sprintf("agent-%d", idx),
			Respond: func(prompt string) string {
				mu.Lock()
				defer mu.Unlock()
				return fmt.Sprintf("result-%d", idx)
			},
		}
		if idx == 2 {
			provider.GenerateErr = assertErr{}
		}
		role := fmt.Sprintf("Agent%d", idx)
		c.AddAgent(role, mustAgent(t, role, provider))
		c.AddTask(mustTask(t, fmt.Sprintf("task %d", idx)), role)
	}

	result, err := c.Execute(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)

	for _, r := range result.Results {
		assert.Equal(t, fmt.Sprintf("result-%d", r.TaskIndex), r.Response.Content)
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "task 2 failed" }

func TestCrew_StreamEmitsChunksForTaskZero(t *testing.T) {
	c := New()
	c.AddAgent("Writer", mustAgent(t, "Writer", providertest.NewEcho("writer", "hello")))
	c.AddAgent("Editor", mustAgent(t, "Editor", providertest.NewEcho("editor", "done")))
	c.AddTask(mustTask(t, "write"), "Writer")
	c.AddTask(mustTask(t, "edit"), "Editor")

	var events int
	result, err := c.Stream(context.Background(), func(e StreamEvent) {
		events++
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.GreaterOrEqual(t, events, 3) // 1 chunk + 1 complete for task 0, + 1 complete for task 1
}
