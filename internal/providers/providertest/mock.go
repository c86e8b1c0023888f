// Package providertest supplies a scriptable Provider implementation
// shared by agent/crew/flow tests, so those packages never hit a real
// backend.
package providertest

import (
	"context"
	"fmt"

	"github.com/crewkit/engine/internal/providers"
	"github.com/crewkit/engine/internal/streaming"
)

// Mock is a providers.Provider whose response is computed by the Respond
// function from the prompt; with no Respond set, Generate returns an
// error. A non-nil GenerateErr is returned instead of any response.
type Mock struct {
	NameValue  string
	Model      string
	Respond    func(prompt string) string
	Usage      providers.Usage
	GenerateErr error
}

// NewEcho builds a Mock that returns a fixed string regardless of
// prompt, with a faked usage of (prompt_tokens=1, completion_tokens=2),
// matching the specification's scenario 1 mock shape.
func NewEcho(name, response string) *Mock {
	return &Mock{
		NameValue: name,
		Model:     name + "-model",
		Respond:   func(string) string { return response },
		Usage:     providers.Usage{PromptTokens: 1, CompletionTokens: 2},
	}
}

func (m *Mock) Name() string                  { return m.NameValue }
func (m *Mock) DefaultModel() string          { return m.Model }
func (m *Mock) SupportedModes() []providers.Mode { return []providers.Mode{providers.ModeChat} }
func (m *Mock) IsModeSupported(mode providers.Mode) bool { return mode == providers.ModeChat }

func (m *Mock) Generate(ctx context.Context, mode providers.Mode, prompt string, opts providers.Options) (string, *providers.Usage, error) {
	if m.GenerateErr != nil {
		return "", nil, m.GenerateErr
	}
	if m.Respond == nil {
		return "", nil, fmt.Errorf("mock %s: no responder configured", m.NameValue)
	}
	u := m.Usage
	return m.Respond(prompt), &u, nil
}

func (m *Mock) StreamGenerate(ctx context.Context, mode providers.Mode, prompt string, opts providers.Options) (providers.Stream, error) {
	content, _, err := m.Generate(ctx, mode, prompt, opts)
	if err != nil {
		return nil, err
	}
	return &sliceStream{source: streaming.FromSlice([]string{content})}, nil
}

type sliceStream struct {
	source streaming.Source
}

func (s *sliceStream) Next() (providers.StreamChunk, bool, error) {
	c, ok, err := s.source.Next()
	return providers.StreamChunk{Content: c.Content, Done: c.Done}, ok, err
}

func (s *sliceStream) Close() error { return nil }
