package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// BedrockProvider implements the Bedrock dialect (expansion, §4.1):
// Anthropic Messages-shaped requests invoked through AWS Bedrock's
// runtime InvokeModel API, grounded on the teacher's own Bedrock
// provider and its aws-sdk-go-v2/bedrockruntime dependency.
type BedrockProvider struct {
	Base
	client       *bedrockruntime.Client
	defaultModel string
}

// NewBedrock constructs the Bedrock dialect using the default AWS config
// chain (environment, shared config, IAM role). rps <= 0 disables
// per-provider request pacing.
func NewBedrock(ctx context.Context, region, defaultModel string, rps float64) (*BedrockProvider, error) {
	if defaultModel == "" {
		defaultModel = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: load aws config: %w", err)
	}
	return &BedrockProvider{
		Base:         NewBase("bedrock", 3, rps),
		client:       bedrockruntime.NewFromConfig(cfg),
		defaultModel: defaultModel,
	}, nil
}

func (p *BedrockProvider) DefaultModel() string        { return p.defaultModel }
func (p *BedrockProvider) SupportedModes() []Mode       { return []Mode{ModeChat} }
func (p *BedrockProvider) IsModeSupported(m Mode) bool  { return m == ModeChat }

type bedrockAnthropicRequest struct {
	AnthropicVersion string                   `json:"anthropic_version"`
	MaxTokens        int                      `json:"max_tokens"`
	Messages         []bedrockAnthropicMessage `json:"messages"`
	Temperature      float64                  `json:"temperature,omitempty"`
}

type bedrockAnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockAnthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *BedrockProvider) model(opts Options) string {
	if opts.Model != "" {
		return opts.Model
	}
	return p.defaultModel
}

func (p *BedrockProvider) Generate(ctx context.Context, mode Mode, prompt string, opts Options) (string, *Usage, error) {
	if mode != ModeChat {
		return "", nil, fmt.Errorf("bedrock: %w: %s", ErrModeNotSupported, mode)
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	body, err := json.Marshal(bedrockAnthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		Temperature:      opts.Temperature,
		Messages:         []bedrockAnthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", nil, fmt.Errorf("bedrock: encode request: %w", err)
	}

	var (
		content string
		usage   *Usage
	)
	err = p.Retry(ctx, IsRetryable, func(ctx context.Context) error {
		out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(p.model(opts)),
			ContentType: aws.String("application/json"),
			Body:        body,
		})
		if err != nil {
			return err
		}
		var parsed bedrockAnthropicResponse
		if err := json.Unmarshal(out.Body, &parsed); err != nil {
			return fmt.Errorf("bedrock: decode response: %w", err)
		}
		if len(parsed.Content) == 0 {
			return fmt.Errorf("bedrock: empty content")
		}
		content = parsed.Content[0].Text
		usage = &Usage{PromptTokens: parsed.Usage.InputTokens, CompletionTokens: parsed.Usage.OutputTokens}
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return content, usage, nil
}

// StreamGenerate falls back to a single whole-response chunk; Bedrock's
// response-stream API is a distinct call shape the kernel does not need,
// since no scenario in the specification exercises Bedrock streaming
// specifically (only the eight §6 dialects are required to stream).
func (p *BedrockProvider) StreamGenerate(ctx context.Context, mode Mode, prompt string, opts Options) (Stream, error) {
	content, _, err := p.Generate(ctx, mode, prompt, opts)
	if err != nil {
		return nil, err
	}
	return &wholeResponseStream{content: content}, nil
}
