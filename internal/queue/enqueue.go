package queue

import (
	"context"

	"github.com/crewkit/engine/internal/agentcore"
	"github.com/crewkit/engine/internal/crew"
	"github.com/crewkit/engine/internal/flow"
)

// EnqueueCrew serializes c to its canonical descriptor and enqueues it,
// returning the generated job id.
func (s *Store) EnqueueCrew(ctx context.Context, c *crew.Crew, toolsOf func(agent *agentcore.Agent) []string) (string, error) {
	desc := DescribeCrew(c, toolsOf)
	return s.Enqueue(ctx, KindCrew, desc)
}

// EnqueueFlow serializes f to its canonical descriptor and enqueues it,
// returning the generated job id.
func (s *Store) EnqueueFlow(ctx context.Context, f *flow.Flow, toolsOf func(agent *agentcore.Agent) []string, handlerNameOf func(step flow.Step) string) (string, error) {
	desc, err := DescribeFlow(f, toolsOf, handlerNameOf)
	if err != nil {
		return "", err
	}
	return s.Enqueue(ctx, KindFlow, desc)
}
