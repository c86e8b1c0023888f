// Package queue implements C11: the deferred-execution bridge. A crew or
// flow is serialized to a canonical descriptor, enqueued as a durable job
// row, and later dequeued and rehydrated by a worker under a fixed tool
// whitelist — no closures cross the queue boundary, and every rehydrated
// field is re-run through the sanitizer.
package queue

import (
	"fmt"

	"github.com/crewkit/engine/internal/agentcore"
	"github.com/crewkit/engine/internal/condition"
	"github.com/crewkit/engine/internal/crew"
	"github.com/crewkit/engine/internal/flow"
)

// AgentDescriptor is the canonical record of an Agent, enough to
// reconstruct it without the original *Agent value or its closures.
// Tags carry both json (queue wire format) and yaml (config.CronConfig
// scheduled-flow definitions) encodings, since the same descriptor shape
// serves both.
type AgentDescriptor struct {
	Role         string           `json:"role" yaml:"role"`
	Goal         string           `json:"goal" yaml:"goal"`
	ProviderName string           `json:"provider_name" yaml:"provider_name"`
	Context      map[string]any   `json:"context,omitempty" yaml:"context,omitempty"`
	Config       agentcore.Config `json:"config" yaml:"config"`
	Tools        []string         `json:"tools,omitempty" yaml:"tools,omitempty"` // whitelisted built-in tool identifiers
}

// TaskDescriptor is the canonical record of a Task.
type TaskDescriptor struct {
	Description string                    `json:"description" yaml:"description"`
	AgentRole   string                    `json:"agent_role" yaml:"agent_role"`
	ToolInputs  map[string]map[string]any `json:"tool_inputs,omitempty" yaml:"tool_inputs,omitempty"`
	Context     map[string]any            `json:"context,omitempty" yaml:"context,omitempty"`
}

// ConditionKind names which ConditionDescriptor variant is populated.
type ConditionKind string

const (
	ConditionSimple     ConditionKind = "simple"
	ConditionExpression ConditionKind = "expression"
)

// ConditionDescriptor is the canonical record of a gating condition.
type ConditionDescriptor struct {
	Kind     ConditionKind `json:"kind" yaml:"kind"`
	Variable string        `json:"variable,omitempty" yaml:"variable,omitempty"`
	Operator string        `json:"operator,omitempty" yaml:"operator,omitempty"`
	Literal  any           `json:"literal,omitempty" yaml:"literal,omitempty"`
	Source   string        `json:"source,omitempty" yaml:"source,omitempty"` // expression form
}

// CrewDescriptor is the canonical record of a Crew.
type CrewDescriptor struct {
	Agents    map[string]AgentDescriptor `json:"agents" yaml:"agents"`
	Tasks     []TaskDescriptor           `json:"tasks" yaml:"tasks"`
	TaskRoles []string                   `json:"task_roles" yaml:"task_roles"`
	Config    crew.Config                `json:"config" yaml:"config"`
}

// StepDescriptor is the canonical record of a Flow step. Exactly one of
// Crew, Cond, or HandlerName is populated, selected by Type.
type StepDescriptor struct {
	Name         string                `json:"name" yaml:"name"`
	Type         flow.StepType         `json:"type" yaml:"type"`
	Crew         *CrewDescriptor       `json:"crew,omitempty" yaml:"crew,omitempty"`
	Cond         *ConditionDescriptor  `json:"cond,omitempty" yaml:"cond,omitempty"`
	DelaySeconds float64               `json:"delay_seconds,omitempty" yaml:"delay_seconds,omitempty"`
	HandlerName  string                `json:"handler_name,omitempty" yaml:"handler_name,omitempty"` // looked up in a process-local registry; no closures cross the queue
	Conditions   []ConditionDescriptor `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Config       flow.StepConfig       `json:"config" yaml:"config"`
}

// FlowDescriptor is the canonical record of a Flow.
type FlowDescriptor struct {
	Steps  []StepDescriptor `json:"steps" yaml:"steps"`
	Config flow.Config      `json:"config" yaml:"config"`
}

// DescribeCrew builds a CrewDescriptor from a live Crew. toolsOf reports
// the built-in tool identifiers bound to agent, in the order they should
// be rehydrated.
func DescribeCrew(c *crew.Crew, toolsOf func(agent *agentcore.Agent) []string) CrewDescriptor {
	agents := make(map[string]AgentDescriptor, len(c.Agents))
	for role, a := range c.Agents {
		agents[role] = describeAgent(a, toolsOf(a))
	}
	tasks := make([]TaskDescriptor, len(c.Tasks))
	for i, t := range c.Tasks {
		tasks[i] = describeTask(t)
	}
	return CrewDescriptor{Agents: agents, Tasks: tasks, TaskRoles: append([]string(nil), c.TaskRoles...), Config: c.Config}
}

func describeAgent(a *agentcore.Agent, toolIDs []string) AgentDescriptor {
	return AgentDescriptor{
		Role:         a.Role,
		Goal:         a.Goal,
		ProviderName: a.Provider.Name(),
		Context:      a.Context,
		Config:       a.Config,
		Tools:        toolIDs,
	}
}

func describeTask(t *agentcore.Task) TaskDescriptor {
	inputs := make(map[string]map[string]any, len(t.ToolInputs))
	for name, in := range t.ToolInputs {
		inputs[name] = map[string]any(in)
	}
	return TaskDescriptor{Description: t.Description, AgentRole: t.AgentRole, ToolInputs: inputs, Context: t.Context}
}

// DescribeCondition converts a condition.Condition into its descriptor
// form. Unknown implementations fail, since a custom Condition type is,
// like a closure, unrepresentable across the queue boundary.
func DescribeCondition(c condition.Condition) (ConditionDescriptor, error) {
	switch v := c.(type) {
	case condition.Simple:
		return ConditionDescriptor{Kind: ConditionSimple, Variable: v.Variable, Operator: string(v.Operator), Literal: v.Literal}, nil
	case *condition.Expression:
		return ConditionDescriptor{Kind: ConditionExpression, Source: v.Source}, nil
	default:
		return ConditionDescriptor{}, fmt.Errorf("queue: condition type %T has no canonical descriptor form", c)
	}
}

// Rehydrate reconstructs a condition.Condition from its descriptor.
func (d ConditionDescriptor) Rehydrate() (condition.Condition, error) {
	switch d.Kind {
	case ConditionSimple:
		return condition.NewSimple(d.Variable, condition.Operator(d.Operator), d.Literal), nil
	case ConditionExpression:
		expr, err := condition.NewExpression(d.Source)
		if err != nil {
			return nil, err
		}
		return expr, nil
	default:
		return nil, fmt.Errorf("queue: unknown condition descriptor kind %q", d.Kind)
	}
}

// HandlerRegistry is the process-local map from a Custom step's
// HandlerName to its handler, looked up by name at rehydration instead of
// serializing the func value itself.
type HandlerRegistry map[string]flow.CustomHandler

// DescribeFlow builds a FlowDescriptor from a live Flow. handlerNameOf
// returns, for a Custom step, the registered name its handler was
// installed under; it is not called for steps of other types.
func DescribeFlow(f *flow.Flow, toolsOf func(agent *agentcore.Agent) []string, handlerNameOf func(step flow.Step) string) (FlowDescriptor, error) {
	steps := make([]StepDescriptor, len(f.Steps))
	for i, step := range f.Steps {
		sd, err := describeStep(step, toolsOf, handlerNameOf)
		if err != nil {
			return FlowDescriptor{}, fmt.Errorf("queue: step %q: %w", step.Name, err)
		}
		steps[i] = sd
	}
	return FlowDescriptor{Steps: steps, Config: f.Config}, nil
}

func describeStep(step flow.Step, toolsOf func(agent *agentcore.Agent) []string, handlerNameOf func(step flow.Step) string) (StepDescriptor, error) {
	sd := StepDescriptor{Name: step.Name, Type: step.Type, DelaySeconds: step.DelaySeconds, Config: step.Config}

	for _, gate := range step.Conditions {
		cd, err := DescribeCondition(gate)
		if err != nil {
			return StepDescriptor{}, err
		}
		sd.Conditions = append(sd.Conditions, cd)
	}

	switch step.Type {
	case flow.StepCrew:
		if step.Crew == nil {
			return StepDescriptor{}, fmt.Errorf("crew step has no crew")
		}
		crewDesc := DescribeCrew(step.Crew, toolsOf)
		sd.Crew = &crewDesc
	case flow.StepCondition:
		if step.Cond == nil {
			return StepDescriptor{}, fmt.Errorf("condition step has no condition")
		}
		cd, err := DescribeCondition(step.Cond)
		if err != nil {
			return StepDescriptor{}, err
		}
		sd.Cond = &cd
	case flow.StepCustom:
		name := handlerNameOf(step)
		if name == "" {
			return StepDescriptor{}, fmt.Errorf("custom step has no registered handler name")
		}
		sd.HandlerName = name
	}
	return sd, nil
}
