package providers

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// AnthropicProvider implements the Anthropic-chat dialect over
// github.com/anthropics/anthropic-sdk-go, including its ssestream
// package for the streaming algorithm.
type AnthropicProvider struct {
	Base
	client       anthropic.Client
	defaultModel string
}

// NewAnthropic constructs the Anthropic dialect. rps <= 0 disables
// per-provider request pacing.
func NewAnthropic(apiKey, defaultModel string, rps float64) *AnthropicProvider {
	if defaultModel == "" {
		defaultModel = "claude-3-5-sonnet-20241022"
	}
	return &AnthropicProvider{
		Base:         NewBase("anthropic", 3, rps),
		client:       anthropic.NewClient(option.WithAPIKey(apiKey)),
		defaultModel: defaultModel,
	}
}

func (p *AnthropicProvider) DefaultModel() string      { return p.defaultModel }
func (p *AnthropicProvider) SupportedModes() []Mode    { return []Mode{ModeChat} }
func (p *AnthropicProvider) IsModeSupported(m Mode) bool { return m == ModeChat }

func (p *AnthropicProvider) model(opts Options) string {
	if opts.Model != "" {
		return opts.Model
	}
	return p.defaultModel
}

func (p *AnthropicProvider) params(prompt string, opts Options) anthropic.MessageNewParams {
	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	return anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model(opts)),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
}

func (p *AnthropicProvider) Generate(ctx context.Context, mode Mode, prompt string, opts Options) (string, *Usage, error) {
	if mode != ModeChat {
		return "", nil, fmt.Errorf("anthropic: %w: %s", ErrModeNotSupported, mode)
	}

	var (
		content string
		usage   *Usage
	)
	err := p.Retry(ctx, IsRetryable, func(ctx context.Context) error {
		msg, err := p.client.Messages.New(ctx, p.params(prompt, opts))
		if err != nil {
			return err
		}
		if len(msg.Content) == 0 {
			return fmt.Errorf("anthropic: empty content")
		}
		content = msg.Content[0].Text
		usage = &Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
		}
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return content, usage, nil
}

// anthropicStream adapts ssestream events to providers.Stream by
// surfacing each text delta as one chunk.
type anthropicStream struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

func (s *anthropicStream) Next() (StreamChunk, bool, error) {
	if !s.stream.Next() {
		if err := s.stream.Err(); err != nil {
			return StreamChunk{}, false, err
		}
		return StreamChunk{}, false, nil
	}
	event := s.stream.Current()
	if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
		if text := delta.Delta.Text; text != "" {
			return StreamChunk{Content: text}, true, nil
		}
	}
	return StreamChunk{Content: ""}, true, nil
}

func (s *anthropicStream) Close() error { return s.stream.Close() }

func (p *AnthropicProvider) StreamGenerate(ctx context.Context, mode Mode, prompt string, opts Options) (Stream, error) {
	if mode != ModeChat {
		return nil, fmt.Errorf("anthropic: %w: %s", ErrModeNotSupported, mode)
	}
	stream := p.client.Messages.NewStreaming(ctx, p.params(prompt, opts))
	return &anthropicStream{stream: stream}, nil
}
