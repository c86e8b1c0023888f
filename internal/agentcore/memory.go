package agentcore

import (
	"context"
	"time"

	"github.com/crewkit/engine/internal/memory"
)

// MemoryBackend is the subset of memory.Store the agent consults: a
// full-text search for context recall, and a durable write for the
// prompt/response pair recorded after each handle/stream call.
type MemoryBackend interface {
	Search(ctx context.Context, query string, limit int) ([]memory.SearchResult, error)
	Store(ctx context.Context, key, data string, metadata map[string]string, expiresAt *time.Time) error
}
