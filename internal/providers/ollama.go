package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaProvider implements the Ollama dialect over raw net/http, per
// spec §6's exact wire shape. Ollama has no dedicated Go SDK in the pack
// (go-openai/genai/anthropic-sdk-go do not speak its dialect), matching
// how the teacher's own Ollama provider talks to the daemon directly.
type OllamaProvider struct {
	Base
	httpClient   *http.Client
	host         string
	defaultModel string
}

// NewOllama constructs the Ollama dialect against host (e.g.
// "http://localhost:11434"). rps <= 0 disables per-provider request
// pacing.
func NewOllama(host, defaultModel string, rps float64) *OllamaProvider {
	if defaultModel == "" {
		defaultModel = "llama3"
	}
	return &OllamaProvider{
		Base:         NewBase("ollama", 3, rps),
		httpClient:   &http.Client{Timeout: DefaultTimeoutSeconds * time.Second},
		host:         host,
		defaultModel: defaultModel,
	}
}

func (p *OllamaProvider) DefaultModel() string        { return p.defaultModel }
func (p *OllamaProvider) SupportedModes() []Mode       { return []Mode{ModeChat} }
func (p *OllamaProvider) IsModeSupported(m Mode) bool  { return m == ModeChat }

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaResponse struct {
	Response       string `json:"response"`
	Done           bool   `json:"done"`
	PromptEvalCnt  int    `json:"prompt_eval_count"`
	EvalCount      int    `json:"eval_count"`
}

func (p *OllamaProvider) model(opts Options) string {
	if opts.Model != "" {
		return opts.Model
	}
	return p.defaultModel
}

func (p *OllamaProvider) buildBody(prompt string, opts Options, stream bool) ([]byte, error) {
	req := ollamaRequest{
		Model:  p.model(opts),
		Prompt: prompt,
		Stream: stream,
		Options: ollamaOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
		},
	}
	return json.Marshal(req)
}

func (p *OllamaProvider) Generate(ctx context.Context, mode Mode, prompt string, opts Options) (string, *Usage, error) {
	if mode != ModeChat {
		return "", nil, fmt.Errorf("ollama: %w: %s", ErrModeNotSupported, mode)
	}

	body, err := p.buildBody(prompt, opts, false)
	if err != nil {
		return "", nil, fmt.Errorf("ollama: encode request: %w", err)
	}

	var (
		content string
		usage   *Usage
	)
	err = p.Retry(ctx, IsRetryable, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/api/generate", bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := p.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return NewRequestFailedError("ollama", resp.StatusCode, string(respBody))
		}

		var parsed ollamaResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("ollama: decode response: %w", err)
		}
		content = parsed.Response
		usage = &Usage{PromptTokens: parsed.PromptEvalCnt, CompletionTokens: parsed.EvalCount}
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return content, usage, nil
}

// ollamaStream reads newline-delimited JSON objects off the HTTP body,
// terminating on the dialect's own `"done":true` marker.
type ollamaStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func (s *ollamaStream) Next() (StreamChunk, bool, error) {
	if s.done {
		return StreamChunk{}, false, nil
	}
	if !s.scanner.Scan() {
		s.done = true
		return StreamChunk{}, false, s.scanner.Err()
	}
	line := s.scanner.Bytes()
	if len(line) == 0 {
		return StreamChunk{Content: ""}, true, nil
	}
	var parsed ollamaResponse
	if err := json.Unmarshal(line, &parsed); err != nil {
		return StreamChunk{}, false, fmt.Errorf("ollama: decode stream line: %w", err)
	}
	if parsed.Done {
		s.done = true
	}
	return StreamChunk{Content: parsed.Response, Done: parsed.Done}, true, nil
}

func (s *ollamaStream) Close() error { return s.body.Close() }

func (p *OllamaProvider) StreamGenerate(ctx context.Context, mode Mode, prompt string, opts Options) (Stream, error) {
	if mode != ModeChat {
		return nil, fmt.Errorf("ollama: %w: %s", ErrModeNotSupported, mode)
	}
	body, err := p.buildBody(prompt, opts, true)
	if err != nil {
		return nil, fmt.Errorf("ollama: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, NewRequestFailedError("ollama", resp.StatusCode, string(respBody))
	}
	return &ollamaStream{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}
