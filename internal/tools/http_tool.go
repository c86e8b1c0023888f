package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPTool performs an HTTP request and returns status, body, and
// headers, per §4.3.
type HTTPTool struct {
	client *http.Client
}

// NewHTTPTool constructs an HTTPTool with a bounded default timeout.
func NewHTTPTool() *HTTPTool {
	return &HTTPTool{client: &http.Client{Timeout: 30 * time.Second}}
}

func (t *HTTPTool) Name() string        { return "http" }
func (t *HTTPTool) Description() string { return "Performs an HTTP request and returns status, body, and headers." }

func (t *HTTPTool) Schema() Schema {
	return Schema{
		"url":     {Required: true, Type: TypeString, MaxLength: 2048},
		"method":  {Required: false, Type: TypeString, MaxLength: 16},
		"headers": {Required: false, Type: TypeArray},
		"body":    {Required: false, Type: TypeString, MaxLength: 1 << 20},
	}
}

func (t *HTTPTool) Execute(ctx context.Context, input Input) (Result, error) {
	url, _ := input["url"].(string)
	method, _ := input["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)
	body, _ := input["body"].(string)

	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("http tool: build request: %w", err)
	}

	if rawHeaders, ok := input["headers"].([]any); ok {
		for _, h := range rawHeaders {
			pair, ok := h.(map[string]any)
			if !ok {
				continue
			}
			k, _ := pair["name"].(string)
			v, _ := pair["value"].(string)
			if k != "" {
				req.Header.Set(k, v)
			}
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http tool: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http tool: read response: %w", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return Result{
		"status":  resp.StatusCode,
		"body":    string(respBody),
		"headers": headers,
	}, nil
}
