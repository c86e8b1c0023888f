package queue

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewkit/engine/internal/agentcore"
	"github.com/crewkit/engine/internal/condition"
	"github.com/crewkit/engine/internal/crew"
	"github.com/crewkit/engine/internal/flow"
	"github.com/crewkit/engine/internal/memory"
	"github.com/crewkit/engine/internal/providers"
	"github.com/crewkit/engine/internal/providers/providertest"
	"github.com/crewkit/engine/internal/storage"
	"github.com/crewkit/engine/internal/tools"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.Open(context.Background(), storage.DefaultSQLiteConfig(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db, storage.DriverSQLite)
}

func newTestMemory(t *testing.T) *memory.Store {
	t.Helper()
	db, err := storage.Open(context.Background(), storage.DefaultSQLiteConfig(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return memory.New(db, storage.DriverSQLite, nil)
}

func TestStore_EnqueueClaimCompleteRoundTrip(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Enqueue(context.Background(), KindCrew, CrewDescriptor{})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := s.Claim(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, StatusRunning, job.Status)

	none, err := s.Claim(context.Background())
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, s.Complete(context.Background(), id, `{"ok":true}`))
	got, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
	assert.Equal(t, `{"ok":true}`, got.Result)
}

func TestStore_FailRecordsError(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Enqueue(context.Background(), KindFlow, FlowDescriptor{})
	require.NoError(t, err)
	job, err := s.Claim(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, s.Fail(context.Background(), id, "boom"))
	got, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
}

func buildWhitelist(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.NewHTTPTool()))
	return reg
}

func TestWorker_RehydratesAndExecutesCrew(t *testing.T) {
	store := newTestStore(t)
	providerReg := providers.NewRegistry()
	echo := providertest.NewEcho("writer", "draft")
	providerReg.Register(echo)

	agent, err := agentcore.New("Writer", "write posts", echo, nil)
	require.NoError(t, err)
	task, err := agentcore.NewTask("write something")
	require.NoError(t, err)

	c := crew.New()
	c.AddAgent("Writer", agent)
	c.AddTask(task, "Writer")

	jobID, err := store.EnqueueCrew(context.Background(), c, func(*agentcore.Agent) []string { return nil })
	require.NoError(t, err)

	mem := newTestMemory(t)
	worker := NewWorker(store, providerReg, mem, buildWhitelist(t), nil)

	ok, err := worker.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
	assert.Contains(t, got.Result, "draft")
}

func TestWorker_UnwhitelistedToolFailsJob(t *testing.T) {
	store := newTestStore(t)
	providerReg := providers.NewRegistry()
	echo := providertest.NewEcho("writer", "draft")
	providerReg.Register(echo)

	desc := CrewDescriptor{
		Agents: map[string]AgentDescriptor{
			"Writer": {Role: "Writer", Goal: "write", ProviderName: "writer", Config: agentcore.DefaultConfig(), Tools: []string{"forbidden-tool"}},
		},
		Tasks:     []TaskDescriptor{{Description: "do it"}},
		TaskRoles: []string{"Writer"},
	}
	jobID, err := store.Enqueue(context.Background(), KindCrew, desc)
	require.NoError(t, err)

	worker := NewWorker(store, providerReg, nil, buildWhitelist(t), nil)
	ok, err := worker.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.True(t, strings.Contains(got.Error, "not allowed"))
}

func TestWorker_RehydratesFlowWithGateAndCustomHandler(t *testing.T) {
	store := newTestStore(t)
	providerReg := providers.NewRegistry()

	f := flow.New()
	ran := false
	f.AddStep(flow.Step{
		Name: "only-step",
		Type: flow.StepCustom,
		Conditions: []condition.Condition{
			condition.NewSimple("go", condition.OpEQ, true),
		},
		Handler: func(ctx context.Context, flowContext map[string]any) (any, error) {
			ran = true
			return "done", nil
		},
	})

	handlerNameOf := func(step flow.Step) string { return "only-handler" }
	jobID, err := store.EnqueueFlow(context.Background(), f, func(*agentcore.Agent) []string { return nil }, handlerNameOf)
	require.NoError(t, err)

	handlers := HandlerRegistry{
		"only-handler": func(ctx context.Context, flowContext map[string]any) (any, error) {
			ran = true
			return "done", nil
		},
	}
	worker := NewWorker(store, providerReg, nil, buildWhitelist(t), handlers)

	// the rehydrated flow's context starts empty, so the "go" gate (never
	// set) evaluates false and the step is skipped without running
	ok, err := worker.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, ran)

	got, err := store.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
}

func TestScheduledFlow_ComputesNextRunAndTickEnqueues(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sf, err := NewScheduledFlow("nightly", "@every 1m", FlowDescriptor{}, now)
	require.NoError(t, err)
	require.NotNil(t, sf.NextRun)
	assert.True(t, sf.NextRun.After(now))

	sched := NewCronScheduler(store)
	sched.Add(sf)
	sched.tick(context.Background(), sf.NextRun.Add(time.Second))

	job, err := store.Claim(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, KindFlow, job.Kind)
}

func TestDescribeCondition_RejectsUnknownImplementation(t *testing.T) {
	_, err := DescribeCondition(unknownCondition{})
	require.Error(t, err)
}

type unknownCondition struct{}

func (unknownCondition) Evaluate(ctx map[string]any) (bool, error) { return true, nil }
