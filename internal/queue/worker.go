package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crewkit/engine/internal/agentcore"
	"github.com/crewkit/engine/internal/crew"
	"github.com/crewkit/engine/internal/flow"
	"github.com/crewkit/engine/internal/memory"
	"github.com/crewkit/engine/internal/providers"
	"github.com/crewkit/engine/internal/tools"
)

// ErrToolNotAllowed is raised when a job descriptor names a tool
// identifier outside the fixed rehydration whitelist.
var ErrToolNotAllowed = errors.New("queue: tool not allowed at rehydration")

// Event names the four lifecycle events a Worker emits.
type Event string

const (
	EventCrewExecuted        Event = "CrewExecuted"
	EventFlowExecuted        Event = "FlowExecuted"
	EventCrewExecutionFailed Event = "CrewExecutionFailed"
	EventFlowExecutionFailed Event = "FlowExecutionFailed"
)

// EventFunc receives a job id and the event name it corresponds to.
type EventFunc func(event Event, jobID string)

// Worker dequeues jobs, rehydrates their descriptor under the tool
// whitelist, runs the crew or flow, and records the outcome.
type Worker struct {
	Store     *Store
	Providers *providers.Registry
	Memory    agentcore.MemoryBackend
	// Tools is the fixed whitelist of rehydratable built-in tools. A tool
	// identifier named in a descriptor but absent here fails the job with
	// ErrToolNotAllowed rather than being silently skipped.
	Tools *tools.Registry
	// Handlers resolves a Custom step's HandlerName back to a live
	// flow.CustomHandler. No closure ever crosses the queue boundary.
	Handlers HandlerRegistry
	Logger   *slog.Logger
	OnEvent  EventFunc

	PollInterval time.Duration
}

// NewWorker constructs a Worker with the teacher's 1s poll-interval
// default.
func NewWorker(store *Store, providerReg *providers.Registry, mem agentcore.MemoryBackend, toolWhitelist *tools.Registry, handlers HandlerRegistry) *Worker {
	return &Worker{
		Store:        store,
		Providers:    providerReg,
		Memory:       mem,
		Tools:        toolWhitelist,
		Handlers:     handlers,
		Logger:       slog.Default(),
		PollInterval: time.Second,
	}
}

func (w *Worker) emit(event Event, jobID string) {
	if w.OnEvent != nil {
		w.OnEvent(event, jobID)
	}
}

// Run polls the store until ctx is cancelled, processing one claimed job
// per iteration and sleeping PollInterval between empty polls.
func (w *Worker) Run(ctx context.Context) error {
	interval := w.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, err := w.Store.Claim(ctx)
		if err != nil {
			w.Logger.Error("queue: claim failed", "error", err)
		} else if job != nil {
			w.process(ctx, job)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// ProcessOne claims and runs a single job, if one is queued. It reports
// whether a job was found.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	job, err := w.Store.Claim(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.process(ctx, job)
	return true, nil
}

func (w *Worker) process(ctx context.Context, job *Job) {
	switch job.Kind {
	case KindCrew:
		w.runCrew(ctx, job)
	case KindFlow:
		w.runFlow(ctx, job)
	default:
		_ = w.Store.Fail(ctx, job.ID, fmt.Sprintf("queue: unknown job kind %q", job.Kind))
	}
}

func (w *Worker) runCrew(ctx context.Context, job *Job) {
	var desc CrewDescriptor
	if err := json.Unmarshal(job.Descriptor, &desc); err != nil {
		w.fail(ctx, job.ID, KindCrew, fmt.Errorf("queue: unmarshal crew descriptor: %w", err))
		return
	}
	c, err := w.rehydrateCrew(desc)
	if err != nil {
		w.fail(ctx, job.ID, KindCrew, err)
		return
	}
	result, err := c.Execute(ctx)
	if err != nil {
		w.fail(ctx, job.ID, KindCrew, err)
		return
	}
	w.complete(ctx, job.ID, KindCrew, result)
}

func (w *Worker) runFlow(ctx context.Context, job *Job) {
	var desc FlowDescriptor
	if err := json.Unmarshal(job.Descriptor, &desc); err != nil {
		w.fail(ctx, job.ID, KindFlow, fmt.Errorf("queue: unmarshal flow descriptor: %w", err))
		return
	}
	f, err := w.rehydrateFlow(desc)
	if err != nil {
		w.fail(ctx, job.ID, KindFlow, err)
		return
	}
	result, err := f.Run(ctx)
	if err != nil {
		w.fail(ctx, job.ID, KindFlow, err)
		return
	}
	w.complete(ctx, job.ID, KindFlow, result)
}

func (w *Worker) fail(ctx context.Context, jobID string, kind Kind, err error) {
	if dbErr := w.Store.Fail(ctx, jobID, err.Error()); dbErr != nil {
		w.Logger.Error("queue: record failure failed", "job_id", jobID, "error", dbErr)
	}
	if kind == KindCrew {
		w.emit(EventCrewExecutionFailed, jobID)
	} else {
		w.emit(EventFlowExecutionFailed, jobID)
	}
	w.persistResult(ctx, jobID, kind, "failed", err.Error())
}

func (w *Worker) complete(ctx context.Context, jobID string, kind Kind, result any) {
	body, err := json.Marshal(result)
	if err != nil {
		w.fail(ctx, jobID, kind, fmt.Errorf("queue: marshal result: %w", err))
		return
	}
	if dbErr := w.Store.Complete(ctx, jobID, string(body)); dbErr != nil {
		w.Logger.Error("queue: record completion failed", "job_id", jobID, "error", dbErr)
	}
	if kind == KindCrew {
		w.emit(EventCrewExecuted, jobID)
	} else {
		w.emit(EventFlowExecuted, jobID)
	}
	w.persistResult(ctx, jobID, kind, "succeeded", string(body))
}

// persistResult mirrors the finished job into C4 memory under a
// timestamped crew_result/flow_result key, so a result is browsable
// through the memory store even after its queue row is pruned.
func (w *Worker) persistResult(ctx context.Context, jobID string, kind Kind, status, body string) {
	if w.Memory == nil {
		return
	}
	tag := "crew_result"
	if kind == KindFlow {
		tag = "flow_result"
	}
	key := memory.KeyPrefix(tag, jobID, time.Now().UTC())
	payload, err := json.Marshal(map[string]string{"job_id": jobID, "status": status, "body": body})
	if err != nil {
		w.Logger.Error("queue: encode result record failed", "job_id", jobID, "error", err)
		return
	}
	if err := w.Memory.Store(ctx, key, string(payload), nil, nil); err != nil {
		w.Logger.Error("queue: persist result to memory failed", "job_id", jobID, "error", err)
	}
}

func (w *Worker) rehydrateCrew(desc CrewDescriptor) (*crew.Crew, error) {
	c := crew.New()
	c.Config = desc.Config
	for role, ad := range desc.Agents {
		agent, err := w.rehydrateAgent(ad)
		if err != nil {
			return nil, fmt.Errorf("queue: rehydrate agent %q: %w", role, err)
		}
		c.AddAgent(role, agent)
	}
	for i, td := range desc.Tasks {
		role := ""
		if i < len(desc.TaskRoles) {
			role = desc.TaskRoles[i]
		}
		task, err := w.rehydrateTask(td)
		if err != nil {
			return nil, fmt.Errorf("queue: rehydrate task %d: %w", i, err)
		}
		c.AddTask(task, role)
	}
	return c, nil
}

func (w *Worker) rehydrateAgent(ad AgentDescriptor) (*agentcore.Agent, error) {
	provider, err := w.Providers.Resolve(ad.ProviderName)
	if err != nil {
		return nil, err
	}
	opts := []agentcore.Option{agentcore.WithConfig(ad.Config)}
	if len(ad.Context) > 0 {
		opts = append(opts, agentcore.WithContext(ad.Context))
	}
	for _, toolID := range ad.Tools {
		t, ok := w.Tools.Get(toolID)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrToolNotAllowed, toolID)
		}
		opts = append(opts, agentcore.WithTool(t))
	}
	// New re-sanitizes role/goal unconditionally, per the rehydration
	// security invariant: no descriptor field is trusted as already clean.
	return agentcore.New(ad.Role, ad.Goal, provider, w.Memory, opts...)
}

func (w *Worker) rehydrateTask(td TaskDescriptor) (*agentcore.Task, error) {
	task, err := agentcore.NewTask(td.Description)
	if err != nil {
		return nil, err
	}
	task.AgentRole = td.AgentRole
	for k, v := range td.Context {
		task.Context[k] = v
	}
	if len(td.ToolInputs) > 0 {
		task.ToolInputs = make(map[string]tools.Input, len(td.ToolInputs))
		for name, in := range td.ToolInputs {
			if _, ok := w.Tools.Get(name); !ok {
				return nil, fmt.Errorf("%w: %q", ErrToolNotAllowed, name)
			}
			task.ToolInputs[name] = tools.Input(in)
		}
	}
	return task, nil
}

func (w *Worker) rehydrateFlow(desc FlowDescriptor) (*flow.Flow, error) {
	f := flow.New()
	f.Config = desc.Config
	for i, sd := range desc.Steps {
		step, err := w.rehydrateStep(sd)
		if err != nil {
			return nil, fmt.Errorf("queue: rehydrate step %d (%q): %w", i, sd.Name, err)
		}
		f.AddStep(step)
	}
	return f, nil
}

func (w *Worker) rehydrateStep(sd StepDescriptor) (flow.Step, error) {
	step := flow.Step{Name: sd.Name, Type: sd.Type, DelaySeconds: sd.DelaySeconds, Config: sd.Config}

	for _, cd := range sd.Conditions {
		cond, err := cd.Rehydrate()
		if err != nil {
			return flow.Step{}, err
		}
		step.Conditions = append(step.Conditions, cond)
	}

	switch sd.Type {
	case flow.StepCrew:
		if sd.Crew == nil {
			return flow.Step{}, fmt.Errorf("crew step descriptor has no crew")
		}
		c, err := w.rehydrateCrew(*sd.Crew)
		if err != nil {
			return flow.Step{}, err
		}
		step.Crew = c
	case flow.StepCondition:
		if sd.Cond == nil {
			return flow.Step{}, fmt.Errorf("condition step descriptor has no condition")
		}
		cond, err := sd.Cond.Rehydrate()
		if err != nil {
			return flow.Step{}, err
		}
		step.Cond = cond
	case flow.StepCustom:
		handler, ok := w.Handlers[sd.HandlerName]
		if !ok {
			return flow.Step{}, fmt.Errorf("%w: no handler registered for %q", flow.ErrStepHandlerMissing, sd.HandlerName)
		}
		step.Handler = handler
	}
	return step, nil
}
