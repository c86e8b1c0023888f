// Package flow implements C8: an ordered step machine with per-step
// gating conditions, event hooks, continue-on-error semantics, and
// context propagation visible to every subsequent step.
package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/crewkit/engine/internal/condition"
	"github.com/crewkit/engine/internal/crew"
	"github.com/crewkit/engine/pkg/models"
)

var tracer = otel.Tracer("github.com/crewkit/engine/internal/flow")

// StepType names which variant a Step carries.
type StepType string

const (
	StepCrew      StepType = "crew"
	StepCondition StepType = "condition"
	StepDelay     StepType = "delay"
	StepCustom    StepType = "custom"
)

// CustomHandler runs a Custom step against the flow's current context.
type CustomHandler func(ctx context.Context, flowContext map[string]any) (any, error)

// StepConfig carries the recognized per-step options.
type StepConfig struct {
	ContinueOnError bool
}

// Step is one tagged entry of a Flow. Exactly one of Crew, Cond,
// DelaySeconds, or Handler is set, selected by Type.
type Step struct {
	Name          string
	Type          StepType
	Crew          *crew.Crew
	Cond          condition.Condition
	DelaySeconds  float64
	Handler       CustomHandler
	Conditions    []condition.Condition // gating conditions
	Config        StepConfig
}

// ErrStepHandlerMissing is raised when a Custom step carries no handler.
var ErrStepHandlerMissing = errors.New("flow: step handler missing")

// ErrTimedOut is raised when a flow run exceeds Config.Timeout.
var ErrTimedOut = errors.New("flow: timed out")

// Handlers maps recognized event names to zero or more registered
// callbacks. Recognized names: "step_completed", "step_failed".
type Handlers struct {
	StepCompleted []func(result models.StepResult)
	StepFailed    []func(result models.StepResult)
}

// Config carries the recognized Flow options.
type Config struct {
	MaxSteps        int
	Timeout         time.Duration
	ContinueOnError bool
	Name            string
}

// DefaultConfig matches the specification's defaults: 50 steps, a 600s
// timeout, and errors not continued past by default.
func DefaultConfig() Config {
	return Config{MaxSteps: 50, Timeout: 600 * time.Second}
}

// Flow is an ordered sequence of steps sharing a context map.
type Flow struct {
	Steps    []Step
	Context  map[string]any
	Handlers Handlers
	Config   Config
}

// New constructs an empty Flow with DefaultConfig.
func New() *Flow {
	return &Flow{Context: make(map[string]any), Config: DefaultConfig()}
}

// AddStep appends step to the flow.
func (f *Flow) AddStep(step Step) {
	f.Steps = append(f.Steps, step)
}

// OnStepCompleted registers a "step_completed" event handler.
func (f *Flow) OnStepCompleted(fn func(result models.StepResult)) {
	f.Handlers.StepCompleted = append(f.Handlers.StepCompleted, fn)
}

// OnStepFailed registers a "step_failed" event handler.
func (f *Flow) OnStepFailed(fn func(result models.StepResult)) {
	f.Handlers.StepFailed = append(f.Handlers.StepFailed, fn)
}

// Run executes every step in order, honoring gating conditions,
// continue-on-error, and the flow's overall timeout.
func (f *Flow) Run(ctx context.Context) (*models.FlowResult, error) {
	ctx, span := tracer.Start(ctx, "flow.Run", trace.WithAttributes(
		attribute.Int("flow.step_count", len(f.Steps)),
	))
	defer span.End()

	start := time.Now()

	timeout := f.Config.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	maxSteps := f.Config.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultConfig().MaxSteps
	}
	if len(f.Steps) > maxSteps {
		return nil, fmt.Errorf("flow: step count %d exceeds max_steps %d", len(f.Steps), maxSteps)
	}

	var results []models.StepResult
	for i, step := range f.Steps {
		if runCtx.Err() != nil {
			return &models.FlowResult{Results: results, ExecutionTime: time.Since(start).Seconds(), Success: false, Error: ErrTimedOut.Error()}, nil
		}

		gated, err := f.evaluateGates(step)
		if err != nil {
			return &models.FlowResult{Results: results, ExecutionTime: time.Since(start).Seconds(), Success: false, Error: err.Error()}, nil
		}
		if !gated {
			continue
		}

		stepCtx, stepSpan := tracer.Start(runCtx, "flow.step", trace.WithAttributes(
			attribute.Int("flow.step_index", i),
			attribute.String("flow.step_name", step.Name),
			attribute.String("flow.step_type", string(step.Type)),
		))
		stepStart := time.Now()
		result, err := f.dispatch(stepCtx, step)
		elapsed := time.Since(stepStart).Seconds()

		if err != nil {
			stepSpan.RecordError(err)
			stepSpan.SetStatus(codes.Error, err.Error())
			stepSpan.End()

			sr := models.StepResult{
				StepIndex: i, StepName: step.Name, StepType: string(step.Type),
				Result: nil, ExecutionTime: elapsed, Success: false, Error: err.Error(),
			}
			results = append(results, sr)
			f.fireStepFailed(sr)

			continueOnError := step.Config.ContinueOnError || f.Config.ContinueOnError
			if continueOnError {
				continue
			}
			return &models.FlowResult{
				Results: results, ExecutionTime: time.Since(start).Seconds(), Success: false, Error: err.Error(),
			}, nil
		}
		stepSpan.End()

		sr := models.StepResult{
			StepIndex: i, StepName: step.Name, StepType: string(step.Type),
			Result: result, ExecutionTime: elapsed, Success: true,
		}
		results = append(results, sr)
		f.Context[step.Name] = result
		f.fireStepCompleted(sr)
	}

	return &models.FlowResult{Results: results, ExecutionTime: time.Since(start).Seconds(), Success: true}, nil
}

func (f *Flow) evaluateGates(step Step) (bool, error) {
	ok, err := condition.EvaluateAll(step.Conditions, f.Context)
	if err != nil {
		return false, fmt.Errorf("flow: step %q gate: %w", step.Name, err)
	}
	return ok, nil
}

func (f *Flow) dispatch(ctx context.Context, step Step) (any, error) {
	switch step.Type {
	case StepCrew:
		if step.Crew == nil {
			return nil, fmt.Errorf("flow: step %q: crew step has no crew", step.Name)
		}
		result, err := step.Crew.Execute(ctx)
		if err != nil {
			return nil, err
		}
		if !result.Success {
			return result, fmt.Errorf("%s", result.Error)
		}
		return result, nil

	case StepCondition:
		if step.Cond == nil {
			return nil, fmt.Errorf("flow: step %q: condition step has no condition", step.Name)
		}
		return step.Cond.Evaluate(f.Context)

	case StepDelay:
		select {
		case <-time.After(time.Duration(step.DelaySeconds * float64(time.Second))):
			return true, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}

	case StepCustom:
		if step.Handler == nil {
			return nil, fmt.Errorf("%w: step %q", ErrStepHandlerMissing, step.Name)
		}
		return step.Handler(ctx, f.Context)

	default:
		return nil, fmt.Errorf("flow: step %q: unknown step type %q", step.Name, step.Type)
	}
}

func (f *Flow) fireStepCompleted(r models.StepResult) {
	for _, fn := range f.Handlers.StepCompleted {
		fn(r)
	}
}

func (f *Flow) fireStepFailed(r models.StepResult) {
	for _, fn := range f.Handlers.StepFailed {
		fn(r)
	}
}
