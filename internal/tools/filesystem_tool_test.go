package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystemTool_WriteReadRoundTrip(t *testing.T) {
	tool := NewFilesystemTool(t.TempDir())

	_, err := tool.Execute(context.Background(), Input{
		"path": "notes/a.txt", "operation": "write", "content": "hello",
	})
	require.NoError(t, err)

	out, err := tool.Execute(context.Background(), Input{
		"path": "notes/a.txt", "operation": "read",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", out["content"])
}

func TestFilesystemTool_AppendAccumulates(t *testing.T) {
	tool := NewFilesystemTool(t.TempDir())

	_, err := tool.Execute(context.Background(), Input{"path": "x.txt", "operation": "write", "content": "a"})
	require.NoError(t, err)
	_, err = tool.Execute(context.Background(), Input{"path": "x.txt", "operation": "append", "content": "b"})
	require.NoError(t, err)

	out, err := tool.Execute(context.Background(), Input{"path": "x.txt", "operation": "read"})
	require.NoError(t, err)
	assert.Equal(t, "ab", out["content"])
}

func TestFilesystemTool_ExistsAndDelete(t *testing.T) {
	tool := NewFilesystemTool(t.TempDir())

	_, err := tool.Execute(context.Background(), Input{"path": "y.txt", "operation": "write", "content": "z"})
	require.NoError(t, err)

	out, err := tool.Execute(context.Background(), Input{"path": "y.txt", "operation": "exists"})
	require.NoError(t, err)
	assert.Equal(t, true, out["exists"])

	_, err = tool.Execute(context.Background(), Input{"path": "y.txt", "operation": "delete"})
	require.NoError(t, err)

	out, err = tool.Execute(context.Background(), Input{"path": "y.txt", "operation": "exists"})
	require.NoError(t, err)
	assert.Equal(t, false, out["exists"])
}

func TestFilesystemTool_RejectsPathEscape(t *testing.T) {
	tool := NewFilesystemTool(t.TempDir())
	_, err := tool.Execute(context.Background(), Input{
		"path": "../../etc/passwd", "operation": "read",
	})
	require.Error(t, err)
}

func TestFilesystemTool_ListDirectory(t *testing.T) {
	tool := NewFilesystemTool(t.TempDir())
	_, err := tool.Execute(context.Background(), Input{"path": "a.txt", "operation": "write", "content": "1"})
	require.NoError(t, err)
	_, err = tool.Execute(context.Background(), Input{"path": "b.txt", "operation": "write", "content": "2"})
	require.NoError(t, err)

	out, err := tool.Execute(context.Background(), Input{"path": "/", "operation": "list"})
	require.NoError(t, err)
	entries := out["entries"].([]string)
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, entries)
}
