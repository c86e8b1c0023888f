package providers

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider implements the Gemini dialect over
// google.golang.org/genai.
type GeminiProvider struct {
	Base
	client       *genai.Client
	defaultModel string
}

// NewGemini constructs the Gemini dialect. rps <= 0 disables per-provider
// request pacing.
func NewGemini(ctx context.Context, apiKey, defaultModel string, rps float64) (*GeminiProvider, error) {
	if defaultModel == "" {
		defaultModel = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &GeminiProvider{
		Base:         NewBase("gemini", 3, rps),
		client:       client,
		defaultModel: defaultModel,
	}, nil
}

func (p *GeminiProvider) DefaultModel() string        { return p.defaultModel }
func (p *GeminiProvider) SupportedModes() []Mode       { return []Mode{ModeChat} }
func (p *GeminiProvider) IsModeSupported(m Mode) bool  { return m == ModeChat }

func (p *GeminiProvider) model(opts Options) string {
	if opts.Model != "" {
		return opts.Model
	}
	return p.defaultModel
}

func (p *GeminiProvider) contents(prompt string) []*genai.Content {
	return []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
}

func (p *GeminiProvider) genConfig(opts Options) *genai.GenerateContentConfig {
	temp := float32(opts.Temperature)
	maxTokens := int32(opts.MaxTokens)
	return &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: maxTokens,
	}
}

func (p *GeminiProvider) Generate(ctx context.Context, mode Mode, prompt string, opts Options) (string, *Usage, error) {
	if mode != ModeChat {
		return "", nil, fmt.Errorf("gemini: %w: %s", ErrModeNotSupported, mode)
	}

	var (
		content string
		usage   *Usage
	)
	err := p.Retry(ctx, IsRetryable, func(ctx context.Context) error {
		resp, err := p.client.Models.GenerateContent(ctx, p.model(opts), p.contents(prompt), p.genConfig(opts))
		if err != nil {
			return err
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			return fmt.Errorf("gemini: empty candidates")
		}
		content = resp.Candidates[0].Content.Parts[0].Text
		if resp.UsageMetadata != nil {
			usage = &Usage{
				PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
				CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			}
		}
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return content, usage, nil
}

// geminiStream adapts the genai iterator sequence to providers.Stream by
// buffering it eagerly into a slice of chunks; genai's Go SDK exposes
// streaming as an iter.Seq2 rather than a pull handle, so the adapter
// drains it on construction and replays it through Next.
type geminiStream struct {
	chunks []string
	i      int
}

func (s *geminiStream) Next() (StreamChunk, bool, error) {
	if s.i >= len(s.chunks) {
		return StreamChunk{}, false, nil
	}
	c := s.chunks[s.i]
	s.i++
	return StreamChunk{Content: c}, true, nil
}

func (s *geminiStream) Close() error { return nil }

func (p *GeminiProvider) StreamGenerate(ctx context.Context, mode Mode, prompt string, opts Options) (Stream, error) {
	if mode != ModeChat {
		return nil, fmt.Errorf("gemini: %w: %s", ErrModeNotSupported, mode)
	}
	var chunks []string
	var streamErr error
	for resp, err := range p.client.Models.GenerateContentStream(ctx, p.model(opts), p.contents(prompt), p.genConfig(opts)) {
		if err != nil {
			streamErr = err
			break
		}
		if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
			for _, part := range resp.Candidates[0].Content.Parts {
				if part.Text != "" {
					chunks = append(chunks, part.Text)
				}
			}
		}
	}
	if streamErr != nil {
		return nil, streamErr
	}
	return &geminiStream{chunks: chunks}, nil
}
