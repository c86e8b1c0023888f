// Package providers implements C1: the registry of backend dialects and
// the uniform generate/stream contract exposed to the Agent layer.
package providers

import (
	"context"
)

// Mode is one of the three request shapes a provider may support.
type Mode string

const (
	ModeChat       Mode = "chat"
	ModeCompletion Mode = "completion"
	ModeEmbedding  Mode = "embedding"
)

// Options carries the per-call generation parameters from agent.config.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     int // seconds; 0 means DefaultTimeoutSeconds
}

// DefaultOptions matches the specification's {temperature:0.7,
// max_tokens:1000} default.
func DefaultOptions() Options {
	return Options{Temperature: 0.7, MaxTokens: 1000}
}

// DefaultTimeoutSeconds is the per-request timeout when Options.Timeout
// is unset.
const DefaultTimeoutSeconds = 60

// Usage is the token accounting extracted from a provider response.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Total returns PromptTokens + CompletionTokens.
func (u Usage) Total() int { return u.PromptTokens + u.CompletionTokens }

// ChunkCallback is invoked with each streamed chunk as it arrives.
type ChunkCallback func(chunk string)

// StreamChunk is one line of a provider's streaming response.
type StreamChunk struct {
	Content string
	Done    bool
}

// Stream is a pull-based sequence of StreamChunks. Next returns
// (StreamChunk{}, false, nil) once the stream is exhausted and must
// release any underlying HTTP connection at that point or on Close.
type Stream interface {
	Next() (StreamChunk, bool, error)
	Close() error
}

// Provider is the capability set every backend dialect implements.
type Provider interface {
	// Name returns the registry driver name, e.g. "openai", "anthropic".
	Name() string
	// DefaultModel returns the model used when Options.Model is empty.
	DefaultModel() string
	// SupportedModes reports which of {chat, completion, embedding} this
	// provider implements.
	SupportedModes() []Mode
	// IsModeSupported is the authoritative membership check for
	// SupportedModes.
	IsModeSupported(m Mode) bool
	// Generate performs a single non-streaming request and returns the
	// extracted text (or, in embedding mode, a JSON-encoded vector) plus
	// usage if the backend reported any.
	Generate(ctx context.Context, mode Mode, prompt string, opts Options) (string, *Usage, error)
	// StreamGenerate performs a streaming request. Providers with no
	// native streaming support fall back to a single-chunk stream
	// equal to the whole response.
	StreamGenerate(ctx context.Context, mode Mode, prompt string, opts Options) (Stream, error)
}
