package streaming

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToResponse_ConcatenatesChunks(t *testing.T) {
	env := New(FromSlice([]string{"a", "b", "c"}), "writer", nil)
	resp, err := env.ToResponse()
	require.NoError(t, err)
	assert.Equal(t, "abc", resp.Content)
	assert.True(t, env.IsComplete())
	assert.Equal(t, 3, env.Stats().ContentLength)
}

func TestCallback_InvokedOncePerChunk(t *testing.T) {
	var calls int
	env := New(FromSlice([]string{"a", "b", "c"}), "writer", func(Chunk, string) { calls++ })
	_, err := env.ToResponse()
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestToResponse_TruncatesOnSourceError(t *testing.T) {
	boom := errors.New("boom")
	i := 0
	src := ChunkFunc(func() (Chunk, bool, error) {
		if i == 0 {
			i++
			return Chunk{Content: "partial"}, true, nil
		}
		return Chunk{}, false, boom
	})
	env := New(src, "writer", nil)
	resp, err := env.ToResponse()
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "partial", resp.Content)
}

func TestOnBuffer_FiresAtThreshold(t *testing.T) {
	var hookCalls int
	env := New(FromSlice([]string{"12345", "67890", "x"}), "writer", nil)
	env.SetBufferSize(10)
	env.OnBuffer(func(string) { hookCalls++ })
	_, err := env.ToResponse()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, hookCalls, 1)
}

func TestNext_ReturnsFalseAfterComplete(t *testing.T) {
	env := New(FromSlice([]string{"a"}), "writer", nil)
	_, ok, err := env.Next()
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = env.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = env.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}
