package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTool_ExecuteGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bar", r.Header.Get("X-Foo"))
		w.Header().Set("X-Reply", "yes")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	tool := NewHTTPTool()
	out, err := tool.Execute(context.Background(), Input{
		"url": srv.URL,
		"headers": []any{
			map[string]any{"name": "X-Foo", "value": "bar"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, out["status"])
	assert.Equal(t, "hello", out["body"])
	headers := out["headers"].(map[string]string)
	assert.Equal(t, "yes", headers["X-Reply"])
}

func TestHTTPTool_DefaultsToGet(t *testing.T) {
	var seenMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenMethod = r.Method
	}))
	defer srv.Close()

	tool := NewHTTPTool()
	_, err := tool.Execute(context.Background(), Input{"url": srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, seenMethod)
}
