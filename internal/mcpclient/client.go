package mcpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crewkit/engine/internal/backoff"
	"github.com/crewkit/engine/pkg/models"
)

// ClientCapabilities is the capability set this client advertises on
// initialize, matching the teacher's handshake.
var ClientCapabilities = map[string]any{
	"tools":     map[string]any{},
	"resources": map[string]any{},
	"prompts":   map[string]any{},
	"samples":   map[string]any{},
}

// Client manages a set of configured MCP servers: JSON-RPC dispatch,
// capability caching, and the initialize handshake.
type Client struct {
	httpClient *http.Client
	cache      *capabilityCache
	nextID     int64

	mu                sync.RWMutex
	servers           map[string]models.MCPServerConfig
	serverCapabilities map[string]map[string]any
}

// NewClient constructs a Client with no servers configured.
func NewClient() *Client {
	return &Client{
		httpClient:         &http.Client{},
		cache:              newCapabilityCache(),
		servers:            make(map[string]models.MCPServerConfig),
		serverCapabilities: make(map[string]map[string]any),
	}
}

// AddServer registers a server configuration.
func (c *Client) AddServer(cfg models.MCPServerConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers[cfg.ID] = cfg
}

func (c *Client) server(id string) (models.MCPServerConfig, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.servers[id]
	if !ok {
		return models.MCPServerConfig{}, fmt.Errorf("%w: %s", ErrServerNotFound, id)
	}
	return cfg, nil
}

// Execute performs a JSON-RPC call against serverID with a
// monotonically-increasing request id, retrying transport failures up to
// retryAttempts times (default 3) with a fixed inter-attempt delay
// (default 1000ms), bounded by the server's configured timeout. RPC
// error responses (as opposed to transport failures) are never retried.
func (c *Client) Execute(ctx context.Context, serverID, method string, params any) (*models.MCPResponse, error) {
	cfg, err := c.server(serverID)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	retryAttempts := 3
	policy := backoff.Fixed(1000 * time.Millisecond)

	id := atomic.AddInt64(&c.nextID, 1)
	req := models.MCPRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}

	var lastErr error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		resp, err := c.doRequest(callCtx, cfg, req)
		if err == nil {
			if resp.Error != nil {
				return resp, &ExecutionError{Code: resp.Error.Code, Message: resp.Error.Message}
			}
			return resp, nil
		}
		if execErr, ok := err.(*ExecutionError); ok {
			return nil, execErr
		}
		lastErr = err
		if attempt == retryAttempts {
			break
		}
		select {
		case <-callCtx.Done():
			return nil, callCtx.Err()
		case <-time.After(policy.Compute(attempt)):
		}
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrConnection, serverID, lastErr)
}

func (c *Client) doRequest(ctx context.Context, cfg models.MCPServerConfig, req models.MCPRequest) (*models.MCPResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("mcp: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("mcp: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		httpReq.Header.Set(k, v)
	}
	if cfg.AuthToken != "" {
		scheme := cfg.AuthScheme
		if scheme == "" {
			scheme = "Bearer"
		}
		httpReq.Header.Set("Authorization", scheme+" "+cfg.AuthToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mcp: http status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed models.MCPResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("mcp: decode response: %w", err)
	}
	return &parsed, nil
}

// Initialize performs the initialize handshake and records the server's
// returned capabilities.
func (c *Client) Initialize(ctx context.Context, serverID string) error {
	resp, err := c.Execute(ctx, serverID, MethodInitialize, map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    ClientCapabilities,
		"clientInfo":      map[string]any{"name": "crewengine", "version": "1.0.0"},
	})
	if err != nil {
		return err
	}
	result, _ := resp.Result.(map[string]any)
	caps, _ := result["capabilities"].(map[string]any)

	c.mu.Lock()
	c.serverCapabilities[serverID] = caps
	c.mu.Unlock()
	return nil
}

// SupportsCapability consults the server's recorded capability map from
// Initialize.
func (c *Client) SupportsCapability(serverID, capability string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	caps, ok := c.serverCapabilities[serverID]
	if !ok {
		return false
	}
	_, has := caps[capability]
	return has
}

// listCached performs method, caching the result under capability's TTL
// unless a live cache entry already exists.
func (c *Client) listCached(ctx context.Context, serverID, method string, cap Capability) (any, error) {
	if v, ok := c.cache.get(serverID, cap); ok {
		return v, nil
	}
	resp, err := c.Execute(ctx, serverID, method, nil)
	if err != nil {
		return nil, err
	}
	c.cache.set(serverID, cap, resp.Result, TTLs[cap])
	return resp.Result, nil
}

// ListTools returns (possibly cached) tools/list results.
func (c *Client) ListTools(ctx context.Context, serverID string) (any, error) {
	return c.listCached(ctx, serverID, MethodToolsList, CapabilityTools)
}

// ListResources returns (possibly cached) resources/list results.
func (c *Client) ListResources(ctx context.Context, serverID string) (any, error) {
	return c.listCached(ctx, serverID, MethodResourcesList, CapabilityResources)
}

// ListPrompts returns (possibly cached) prompts/list results.
func (c *Client) ListPrompts(ctx context.Context, serverID string) (any, error) {
	return c.listCached(ctx, serverID, MethodPromptsList, CapabilityPrompts)
}

// ListSamples returns (possibly cached) samples/list results.
func (c *Client) ListSamples(ctx context.Context, serverID string) (any, error) {
	return c.listCached(ctx, serverID, MethodSamplesList, CapabilitySamples)
}

// Health performs (or returns a cached) ping health probe.
func (c *Client) Health(ctx context.Context, serverID string) (bool, error) {
	if v, ok := c.cache.get(serverID, CapabilityHealth); ok {
		healthy, _ := v.(bool)
		return healthy, nil
	}
	_, err := c.Execute(ctx, serverID, MethodPing, nil)
	healthy := err == nil
	c.cache.set(serverID, CapabilityHealth, healthy, TTLs[CapabilityHealth])
	return healthy, err
}

// RefreshCache clears every cached capability for a server.
func (c *Client) RefreshCache(serverID string) {
	c.cache.refresh(serverID)
}

// CallTool invokes tools/call with the given name and arguments.
func (c *Client) CallTool(ctx context.Context, serverID, name string, arguments map[string]any) (*models.MCPResponse, error) {
	return c.Execute(ctx, serverID, MethodToolsCall, map[string]any{
		"name":      name,
		"arguments": arguments,
	})
}
