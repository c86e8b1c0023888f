// Package crew implements C7: sequential and parallel task scheduling
// across a fixed role→Agent mapping, threading inter-task context in
// sequential mode and preserving result ordering by task index in
// parallel mode.
package crew

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/crewkit/engine/internal/agentcore"
	"github.com/crewkit/engine/internal/streaming"
	"github.com/crewkit/engine/pkg/models"
)

var tracer = otel.Tracer("github.com/crewkit/engine/internal/crew")

// ExecutionMode selects the scheduling strategy.
type ExecutionMode string

const (
	Sequential ExecutionMode = "sequential"
	Parallel   ExecutionMode = "parallel"
)

// ErrAgentNotInCrew is raised when a task names (or defaults to) a role
// with no matching Agent in the crew.
var ErrAgentNotInCrew = errors.New("crew: agent not in crew")

// ErrTimedOut is raised when execution exceeds Config.Timeout; the
// CrewResult returned alongside it still carries whatever results
// completed before the deadline.
var ErrTimedOut = errors.New("crew: timed out")

// Config carries the recognized Crew options, per §3.
type Config struct {
	ExecutionMode    ExecutionMode
	MaxRetries       int
	Timeout          time.Duration
	MaxParallelTasks int
}

// DefaultConfig matches the specification's defaults: sequential mode,
// 3 retries, a 60s timeout, and a 5-task parallel fan-out bound.
func DefaultConfig() Config {
	return Config{
		ExecutionMode:    Sequential,
		MaxRetries:       3,
		Timeout:          60 * time.Second,
		MaxParallelTasks: 5,
	}
}

// Crew is an ordered sequence of tasks run against a fixed role→Agent
// mapping. Tasks execute in insertion order; the first-inserted role is
// the default agent for any task that does not name one.
type Crew struct {
	Tasks       []*agentcore.Task
	Agents      map[string]*agentcore.Agent
	agentOrder  []string // insertion order of Agents, for the "first agent" default
	TaskRoles   []string // TaskRoles[i] is the agent role for Tasks[i], "" meaning "default"
	Config      Config
}

// New constructs an empty Crew with DefaultConfig.
func New() *Crew {
	return &Crew{Agents: make(map[string]*agentcore.Agent), Config: DefaultConfig()}
}

// AddAgent registers an agent under role, recording insertion order.
func (c *Crew) AddAgent(role string, agent *agentcore.Agent) {
	if _, exists := c.Agents[role]; !exists {
		c.agentOrder = append(c.agentOrder, role)
	}
	c.Agents[role] = agent
}

// AddTask appends a task, optionally pinned to agentRole ("" defers to
// the crew's default agent at execution time).
func (c *Crew) AddTask(task *agentcore.Task, agentRole string) {
	c.Tasks = append(c.Tasks, task)
	c.TaskRoles = append(c.TaskRoles, agentRole)
}

func (c *Crew) resolveAgent(role string) (*agentcore.Agent, error) {
	if role == "" {
		if len(c.agentOrder) == 0 {
			return nil, fmt.Errorf("%w: crew has no agents", ErrAgentNotInCrew)
		}
		return c.Agents[c.agentOrder[0]], nil
	}
	agent, ok := c.Agents[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAgentNotInCrew, role)
	}
	return agent, nil
}

// Execute runs every task per Config.ExecutionMode and returns the
// aggregate CrewResult.
func (c *Crew) Execute(ctx context.Context) (*models.CrewResult, error) {
	ctx, span := tracer.Start(ctx, "crew.Execute", trace.WithAttributes(
		attribute.String("crew.execution_mode", string(c.Config.ExecutionMode)),
		attribute.Int("crew.task_count", len(c.Tasks)),
	))
	defer span.End()

	start := time.Now()

	timeout := c.Config.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		results []models.TaskResult
		err     error
	)
	switch c.Config.ExecutionMode {
	case Parallel:
		results, err = c.executeParallel(runCtx)
	default:
		results, err = c.executeSequential(runCtx)
	}

	elapsed := time.Since(start).Seconds()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &models.CrewResult{
			Results:       results,
			ExecutionTime: elapsed,
			Success:       false,
			Error:         err.Error(),
		}, nil
	}
	return &models.CrewResult{Results: results, ExecutionTime: elapsed, Success: true}, nil
}

func (c *Crew) executeSequential(ctx context.Context) ([]models.TaskResult, error) {
	results := make([]models.TaskResult, 0, len(c.Tasks))
	for i, task := range c.Tasks {
		role := c.TaskRoles[i]
		agent, err := c.resolveAgent(role)
		if err != nil {
			return results, err
		}

		taskCtx, taskSpan := tracer.Start(ctx, "crew.task", trace.WithAttributes(
			attribute.Int("crew.task_index", i),
			attribute.String("crew.agent_role", role),
		))
		taskStart := time.Now()
		resp, err := agent.Handle(taskCtx, task)
		if err != nil {
			taskSpan.RecordError(err)
			taskSpan.SetStatus(codes.Error, err.Error())
			taskSpan.End()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return results, fmt.Errorf("%w: %v", ErrTimedOut, err)
			}
			return results, err
		}
		taskSpan.End()

		results = append(results, models.TaskResult{
			TaskIndex:     i,
			Agent:         agent.Role,
			Response:      resp,
			ExecutionTime: time.Since(taskStart).Seconds(),
		})

		if i+1 < len(c.Tasks) {
			next := c.Tasks[i+1]
			if next.Context == nil {
				next.Context = make(map[string]any)
			}
			next.Context["previous_response"] = resp.Content
			next.Context["previous_agent"] = agent.Role
		}
	}
	return results, nil
}

type indexedResult struct {
	index  int
	result models.TaskResult
	err    error
}

func (c *Crew) executeParallel(ctx context.Context) ([]models.TaskResult, error) {
	maxParallel := c.Config.MaxParallelTasks
	if maxParallel <= 0 {
		maxParallel = DefaultConfig().MaxParallelTasks
	}
	sem := make(chan struct{}, maxParallel)

	out := make(chan indexedResult, len(c.Tasks))
	for i, task := range c.Tasks {
		i, task := i, task
		role := c.TaskRoles[i]
		agent, err := c.resolveAgent(role)
		if err != nil {
			out <- indexedResult{index: i, err: err}
			continue
		}

		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			taskCtx, taskSpan := tracer.Start(ctx, "crew.task", trace.WithAttributes(
				attribute.Int("crew.task_index", i),
				attribute.String("crew.agent_role", role),
			))
			defer taskSpan.End()
			taskStart := time.Now()
			resp, err := agent.Handle(taskCtx, task)
			if err != nil {
				taskSpan.RecordError(err)
				taskSpan.SetStatus(codes.Error, err.Error())
				out <- indexedResult{index: i, err: err}
				return
			}
			out <- indexedResult{index: i, result: models.TaskResult{
				TaskIndex:     i,
				Agent:         agent.Role,
				Response:      resp,
				ExecutionTime: time.Since(taskStart).Seconds(),
			}}
		}()
	}

	collected := make([]indexedResult, len(c.Tasks))
	received := 0
	var firstErr error
	for received < len(c.Tasks) {
		r := <-out
		collected[r.index] = r
		received++
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
	}

	var results []models.TaskResult
	for _, r := range collected {
		if r.err == nil {
			results = append(results, r.result)
		}
	}
	if firstErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return results, fmt.Errorf("%w: %v", ErrTimedOut, firstErr)
		}
		return results, firstErr
	}
	return results, nil
}

// StreamEvent is one event of a Crew's streaming execution: either a
// chunk of task 0's output or a completed task's result.
type StreamEvent struct {
	TaskIndex  int
	Chunk      string
	IsStreaming bool
	IsComplete bool
	Response   *models.Response
}

// Stream runs task 0 via the agent's streaming entry point, re-yielding
// its chunks, then runs the remaining tasks via Handle, each yielding a
// single completion event. Cross-task context propagation matches
// Execute's sequential mode.
func (c *Crew) Stream(ctx context.Context, emit func(StreamEvent)) (*models.CrewResult, error) {
	start := time.Now()
	results := make([]models.TaskResult, 0, len(c.Tasks))

	for i, task := range c.Tasks {
		role := c.TaskRoles[i]
		agent, err := c.resolveAgent(role)
		if err != nil {
			return &models.CrewResult{Results: results, ExecutionTime: time.Since(start).Seconds(), Success: false, Error: err.Error()}, nil
		}

		taskStart := time.Now()
		var resp *models.Response

		if i == 0 {
			env, finalize, err := agent.Stream(ctx, task, func(chunk streaming.Chunk, contentSoFar string) {
				emit(StreamEvent{TaskIndex: 0, Chunk: chunk.Content, IsStreaming: true})
			})
			if err != nil {
				return &models.CrewResult{Results: results, ExecutionTime: time.Since(start).Seconds(), Success: false, Error: err.Error()}, nil
			}
			resp, err = env.ToResponse()
			if err != nil {
				return &models.CrewResult{Results: results, ExecutionTime: time.Since(start).Seconds(), Success: false, Error: err.Error()}, nil
			}
			finalize(ctx, resp.Content)
			emit(StreamEvent{TaskIndex: 0, IsComplete: true, Response: resp})
		} else {
			resp, err = agent.Handle(ctx, task)
			if err != nil {
				return &models.CrewResult{Results: results, ExecutionTime: time.Since(start).Seconds(), Success: false, Error: err.Error()}, nil
			}
			emit(StreamEvent{TaskIndex: i, IsComplete: true, Response: resp})
		}

		results = append(results, models.TaskResult{
			TaskIndex: i, Agent: agent.Role, Response: resp, ExecutionTime: time.Since(taskStart).Seconds(),
		})

		if i+1 < len(c.Tasks) {
			next := c.Tasks[i+1]
			if next.Context == nil {
				next.Context = make(map[string]any)
			}
			next.Context["previous_response"] = resp.Content
			next.Context["previous_agent"] = agent.Role
		}
	}

	return &models.CrewResult{Results: results, ExecutionTime: time.Since(start).Seconds(), Success: true}, nil
}
