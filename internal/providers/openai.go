package providers

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements the OpenAI-chat, OpenAI-completion, and
// OpenAI-embedding dialects over github.com/sashabaranov/go-openai. Grok
// and DeepSeek are the same wire shape pointed at a different base URL
// (see NewGrok/NewDeepSeek below), exactly as the teacher's own Grok and
// DeepSeek providers reuse its OpenAI client.
type OpenAIProvider struct {
	Base
	client       *openai.Client
	defaultModel string
	systemPrompt string // fixed system message; used by the Grok alias
}

// NewOpenAI constructs the canonical OpenAI dialect. rps <= 0 disables
// per-provider request pacing.
func NewOpenAI(apiKey, defaultModel string, rps float64) *OpenAIProvider {
	if defaultModel == "" {
		defaultModel = "gpt-4o"
	}
	return &OpenAIProvider{
		Base:         NewBase("openai", 3, rps),
		client:       openai.NewClient(apiKey),
		defaultModel: defaultModel,
	}
}

// NewOpenAICompatible builds an OpenAI-chat-shaped provider against a
// different base URL and registry name, optionally with a fixed system
// message. The registry uses it for any driver name it does not
// recognise whose entry sets a base URL (e.g. an Azure or "Copilot proxy"
// endpoint), and it is also how Grok and DeepSeek are constructed below.
// rps <= 0 disables per-provider request pacing.
func NewOpenAICompatible(name, apiKey, baseURL, defaultModel, systemPrompt string, rps float64) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAIProvider{
		Base:         NewBase(name, 3, rps),
		client:       openai.NewClientWithConfig(cfg),
		defaultModel: defaultModel,
		systemPrompt: systemPrompt,
	}
}

// NewGrok builds the Grok dialect: OpenAI-chat-shaped against
// api.x.ai with a fixed system message, per spec §6.
func NewGrok(apiKey, defaultModel string, rps float64) *OpenAIProvider {
	if defaultModel == "" {
		defaultModel = "grok-beta"
	}
	return NewOpenAICompatible("grok", apiKey, "https://api.x.ai/v1", defaultModel, "You are Grok, a helpful assistant.", rps)
}

// NewDeepSeek builds the DeepSeek dialect: OpenAI-chat-shaped against
// api.deepseek.com, per spec §6.
func NewDeepSeek(apiKey, defaultModel string, rps float64) *OpenAIProvider {
	if defaultModel == "" {
		defaultModel = "deepseek-chat"
	}
	return NewOpenAICompatible("deepseek", apiKey, "https://api.deepseek.com/v1", defaultModel, "", rps)
}

func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }

func (p *OpenAIProvider) SupportedModes() []Mode {
	return []Mode{ModeChat, ModeCompletion, ModeEmbedding}
}

func (p *OpenAIProvider) IsModeSupported(m Mode) bool {
	for _, sm := range p.SupportedModes() {
		if sm == m {
			return true
		}
	}
	return false
}

func (p *OpenAIProvider) model(opts Options) string {
	if opts.Model != "" {
		return opts.Model
	}
	return p.defaultModel
}

func (p *OpenAIProvider) messages(prompt string) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if p.systemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.systemPrompt})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
	return msgs
}

func (p *OpenAIProvider) Generate(ctx context.Context, mode Mode, prompt string, opts Options) (string, *Usage, error) {
	if !p.IsModeSupported(mode) {
		return "", nil, fmt.Errorf("openai: %w: %s", ErrModeNotSupported, mode)
	}

	var (
		content string
		usage   *Usage
	)
	err := p.Retry(ctx, IsRetryable, func(ctx context.Context) error {
		switch mode {
		case ModeChat:
			resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:       p.model(opts),
				Messages:    p.messages(prompt),
				MaxTokens:   opts.MaxTokens,
				Temperature: float32(opts.Temperature),
			})
			if err != nil {
				return err
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("openai: empty choices")
			}
			content = resp.Choices[0].Message.Content
			usage = &Usage{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens}
			return nil
		case ModeCompletion:
			resp, err := p.client.CreateCompletion(ctx, openai.CompletionRequest{
				Model:       p.model(opts),
				Prompt:      prompt,
				MaxTokens:   opts.MaxTokens,
				Temperature: float32(opts.Temperature),
			})
			if err != nil {
				return err
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("openai: empty choices")
			}
			content = resp.Choices[0].Text
			usage = &Usage{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens}
			return nil
		case ModeEmbedding:
			resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Model: openai.EmbeddingModel(p.model(opts)),
				Input: []string{prompt},
			})
			if err != nil {
				return err
			}
			if len(resp.Data) == 0 {
				return fmt.Errorf("openai: empty embedding data")
			}
			content = embeddingToJSON(resp.Data[0].Embedding)
			usage = &Usage{PromptTokens: resp.Usage.PromptTokens}
			return nil
		}
		return ErrModeNotSupported
	})
	if err != nil {
		return "", nil, err
	}
	return content, usage, nil
}

// chatStream adapts the go-openai streaming client to providers.Stream.
type chatStream struct {
	sc *openai.ChatCompletionStream
}

func (s *chatStream) Next() (StreamChunk, bool, error) {
	resp, err := s.sc.Recv()
	if err == io.EOF {
		return StreamChunk{}, false, nil
	}
	if err != nil {
		return StreamChunk{}, false, err
	}
	if len(resp.Choices) == 0 {
		return StreamChunk{Content: ""}, true, nil
	}
	return StreamChunk{Content: resp.Choices[0].Delta.Content}, true, nil
}

func (s *chatStream) Close() error { s.sc.Close(); return nil }

// wholeResponseStream is the single-chunk fallback for modes/providers
// without native streaming.
type wholeResponseStream struct {
	content string
	done    bool
}

func (s *wholeResponseStream) Next() (StreamChunk, bool, error) {
	if s.done {
		return StreamChunk{}, false, nil
	}
	s.done = true
	return StreamChunk{Content: s.content}, true, nil
}

func (s *wholeResponseStream) Close() error { return nil }

func (p *OpenAIProvider) StreamGenerate(ctx context.Context, mode Mode, prompt string, opts Options) (Stream, error) {
	if mode != ModeChat {
		content, _, err := p.Generate(ctx, mode, prompt, opts)
		if err != nil {
			return nil, err
		}
		return &wholeResponseStream{content: content}, nil
	}

	sc, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       p.model(opts),
		Messages:    p.messages(prompt),
		MaxTokens:   opts.MaxTokens,
		Temperature: float32(opts.Temperature),
		Stream:      true,
	})
	if err != nil {
		return nil, err
	}
	return &chatStream{sc: sc}, nil
}
