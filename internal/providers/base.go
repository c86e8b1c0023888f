package providers

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/crewkit/engine/internal/backoff"
)

// nonRetryableMessages flags dialects whose errors are not a
// RequestFailedError (anthropic, openai, gemini and bedrock return their
// SDK's own error types; only ollama builds a RequestFailedError), so
// classification falls back to matching the error text the same way the
// teacher's per-dialect isRetryableError does for auth/validation
// failures.
var nonRetryableMessages = []string{
	"invalid api key", "invalid_api_key", "unauthorized", "forbidden",
	"authentication", "validation failed", "validation error",
	"bad request", "not found",
}

// Base supplies the retry-with-backoff helper and optional rate limiter
// shared by every dialect, following the teacher's BaseProvider shape.
type Base struct {
	name       string
	maxRetries int
	policy     backoff.Policy
	limiter    *rate.Limiter // nil disables pacing
}

// NewBase constructs a Base. rps <= 0 disables the rate limiter.
func NewBase(name string, maxRetries int, rps float64) Base {
	b := Base{name: name, maxRetries: maxRetries, policy: backoff.DefaultPolicy()}
	if rps > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return b
}

// Name returns the provider's registry driver name.
func (b Base) Name() string { return b.name }

// IsRetryable classifies transport errors as retryable, matching the
// teacher's dialect-specific predicates: context cancellation, context
// deadline expiry and 4xx responses (bad API key, malformed request,
// not-found model) never retry, except 429 (rate limit), which does.
// Errors that are not a RequestFailedError never retry when their text
// contains one of nonRetryableMessages. Anything else — network errors,
// 5xx — is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var reqErr *RequestFailedError
	if errors.As(err, &reqErr) {
		if reqErr.Status == 429 {
			return true
		}
		return reqErr.Status < 400 || reqErr.Status >= 500
	}

	msg := strings.ToLower(err.Error())
	for _, needle := range nonRetryableMessages {
		if strings.Contains(msg, needle) {
			return false
		}
	}
	return true
}

// Retry runs op up to maxRetries+1 times, waiting on the rate limiter
// first (if configured) and backing off between attempts while
// isRetryable(err) holds.
func (b Base) Retry(ctx context.Context, isRetryable func(error) bool, op func(ctx context.Context) error) error {
	start := time.Now()
	defer observeLatency(b.name, start)

	var lastErr error
	for attempt := 1; attempt <= b.maxRetries+1; attempt++ {
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == b.maxRetries+1 {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.policy.Compute(attempt)):
		}
	}
	return lastErr
}
