// Package models holds the value records shared across the orchestration
// kernel: provider responses, crew/flow results, and the durable record
// shapes for memory and token-usage storage.
package models

import "time"

// Response is the result of a single agent/provider call.
type Response struct {
	Content       string            `json:"content"`
	AgentRole     string            `json:"agent_role"`
	ToolResults   map[string]any    `json:"tool_results,omitempty"`
	ExecutionTime float64           `json:"execution_time"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// TaskResult is one entry of a CrewResult.
type TaskResult struct {
	TaskIndex     int       `json:"task_index"`
	Agent         string    `json:"agent"`
	Response      *Response `json:"response"`
	ExecutionTime float64   `json:"execution_time"`
}

// CrewResult is the outcome of a Crew.Execute run.
type CrewResult struct {
	Results       []TaskResult `json:"results"`
	ExecutionTime float64      `json:"execution_time"`
	Success       bool         `json:"success"`
	Error         string       `json:"error,omitempty"`
}

// StepResult is one entry of a FlowResult.
type StepResult struct {
	StepIndex     int     `json:"step_index"`
	StepName      string  `json:"step_name"`
	StepType      string  `json:"step_type"`
	Result        any     `json:"result"`
	ExecutionTime float64 `json:"execution_time"`
	Success       bool    `json:"success"`
	Error         string  `json:"error,omitempty"`
}

// FlowResult is the outcome of a Flow.Run call.
type FlowResult struct {
	Results       []StepResult `json:"results"`
	ExecutionTime float64      `json:"execution_time"`
	Success       bool         `json:"success"`
	Error         string       `json:"error,omitempty"`
}

// MemoryRecord is a durable keyed memory entry. ExpiresAt is nil when the
// record never expires.
type MemoryRecord struct {
	Key       string            `json:"key"`
	Data      string            `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Expired reports whether the record is semantically absent at t.
func (r *MemoryRecord) Expired(t time.Time) bool {
	return r.ExpiresAt != nil && r.ExpiresAt.Before(t)
}

// MemoryStats summarizes the memory store's current contents.
type MemoryStats struct {
	TotalRecords   int `json:"total_records"`
	ExpiredRecords int `json:"expired_records"`
}

// TokenUsageRecord is one append-only row of provider token accounting.
type TokenUsageRecord struct {
	ID               int64             `json:"id"`
	Provider         string            `json:"provider"`
	Model            string            `json:"model"`
	PromptTokens     int               `json:"prompt_tokens"`
	CompletionTokens int               `json:"completion_tokens"`
	TotalTokens      int               `json:"total_tokens"`
	Cost             *float64          `json:"cost,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// UsageSummary is the aggregate returned by Tracker.GetSummary.
type UsageSummary struct {
	MonthlyTokens        int64   `json:"monthly_tokens"`
	MonthlyRequests      int64   `json:"monthly_requests"`
	AvgTokensPerRequest  float64 `json:"avg_tokens_per_request"`
}

// UsageStatRow is one grouped row returned by Tracker.GetStats.
type UsageStatRow struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	Requests     int64   `json:"requests"`
	TotalTokens  int64   `json:"total_tokens"`
	TotalCost    float64 `json:"total_cost"`
}

// MCPServerConfig describes one configured MCP server.
type MCPServerConfig struct {
	ID         string            `yaml:"id" json:"id"`
	Name       string            `yaml:"name" json:"name"`
	URL        string            `yaml:"url" json:"url"`
	AuthToken  string            `yaml:"auth_token" json:"auth_token,omitempty"`
	AuthScheme string            `yaml:"auth_scheme" json:"auth_scheme,omitempty"`
	Timeout    time.Duration     `yaml:"timeout" json:"timeout"`
	Enabled    bool              `yaml:"enabled" json:"enabled"`
	Headers    map[string]string `yaml:"headers" json:"headers,omitempty"`
}

// MCPRequest is a JSON-RPC 2.0 request envelope.
type MCPRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// MCPError is a JSON-RPC 2.0 error object.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// MCPResponse is a JSON-RPC 2.0 response envelope.
type MCPResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int64     `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *MCPError `json:"error,omitempty"`
}

// MCPTool is a discovered tool capability descriptor.
type MCPTool struct {
	ServerID    string         `json:"server_id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// MCPResource is a discovered resource capability descriptor.
type MCPResource struct {
	ServerID    string `json:"server_id"`
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mime_type,omitempty"`
}
