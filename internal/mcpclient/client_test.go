package mcpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewkit/engine/pkg/models"
)

func TestExecute_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.MCPResponse{JSONRPC: "2.0", ID: 1, Result: map[string]any{"ok": true}})
	}))
	defer srv.Close()

	c := NewClient()
	c.AddServer(models.MCPServerConfig{ID: "s", URL: srv.URL, Timeout: 5 * time.Second, Enabled: true})

	resp, err := c.Execute(context.Background(), "s", MethodPing, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.NotNil(t, resp.Result)
}

func TestExecute_ThreeTransportFailuresRaiseConnectionError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient()
	c.AddServer(models.MCPServerConfig{ID: "s", URL: srv.URL, Timeout: 5 * time.Second, Enabled: true})

	_, err := c.Execute(context.Background(), "s", MethodPing, nil)
	require.ErrorIs(t, err, ErrConnection)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestExecute_RPCErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.MCPResponse{
			JSONRPC: "2.0", ID: 1, Error: &models.MCPError{Code: -32601, Message: "method not found"},
		})
	}))
	defer srv.Close()

	c := NewClient()
	c.AddServer(models.MCPServerConfig{ID: "s", URL: srv.URL, Timeout: 5 * time.Second, Enabled: true})

	_, err := c.Execute(context.Background(), "s", "bogus", nil)
	require.Error(t, err)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestInitialize_RecordsServerCapabilities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.MCPRequest
		json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, MethodInitialize, req.Method)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.MCPResponse{
			JSONRPC: "2.0", ID: req.ID,
			Result: map[string]any{"capabilities": map[string]any{"tools": map[string]any{}}},
		})
	}))
	defer srv.Close()

	c := NewClient()
	c.AddServer(models.MCPServerConfig{ID: "s", URL: srv.URL, Timeout: 5 * time.Second, Enabled: true})
	require.NoError(t, c.Initialize(context.Background(), "s"))
	assert.True(t, c.SupportsCapability("s", "tools"))
	assert.False(t, c.SupportsCapability("s", "resources"))
}

func TestListTools_CachesResult(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.MCPResponse{JSONRPC: "2.0", ID: 1, Result: []any{"tool-a"}})
	}))
	defer srv.Close()

	c := NewClient()
	c.AddServer(models.MCPServerConfig{ID: "s", URL: srv.URL, Timeout: 5 * time.Second, Enabled: true})

	_, err := c.ListTools(context.Background(), "s")
	require.NoError(t, err)
	_, err = c.ListTools(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	c.RefreshCache("s")
	_, err = c.ListTools(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestExecute_UnknownServerFails(t *testing.T) {
	c := NewClient()
	_, err := c.Execute(context.Background(), "missing", MethodPing, nil)
	require.ErrorIs(t, err, ErrServerNotFound)
}

func TestSchemaValidator_RejectsMismatchedArguments(t *testing.T) {
	v := NewSchemaValidator()
	schema := map[string]any{
		"type":     "object",
		"required": []any{"path"},
		"properties": map[string]any{
			"path": map[string]any{"type": "string"},
		},
	}
	require.NoError(t, v.Validate(schema, map[string]any{"path": "/tmp/x"}))
	require.Error(t, v.Validate(schema, map[string]any{}))
}
