package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewkit/engine/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.Open(context.Background(), storage.DefaultSQLiteConfig(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, storage.DriverSQLite, nil)
}

func TestStoreRecall_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, "k1", "v1", nil, nil))
	data, ok, err := s.Recall(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", data)
}

func TestRecall_UnseenKeyReturnsFalse(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.Recall(context.Background(), "never-stored")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_IsUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Store(ctx, "k", "first", nil, nil))
	require.NoError(t, s.Store(ctx, "k", "second", nil, nil))
	data, ok, err := s.Recall(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", data)
}

func TestRecall_ExpiredRecordIsAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.Store(ctx, "expired", "v", nil, &past))
	_, ok, err := s.Recall(ctx, "expired")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestForget_InvalidatesCacheAndDurableStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Store(ctx, "k", "v", nil, nil))
	require.NoError(t, s.Forget(ctx, "k"))
	_, ok, err := s.Recall(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClear_ThenRecallReturnsNullForAnyPriorKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Store(ctx, k, "v", nil, nil))
	}
	require.NoError(t, s.Clear(ctx))
	for _, k := range []string{"a", "b", "c"} {
		_, ok, err := s.Recall(ctx, k)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestSearch_MatchesKeyAndData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Store(ctx, "agent_memory_writer_1", "the blog draft", nil, nil))
	require.NoError(t, s.Store(ctx, "other", "unrelated", nil, nil))

	byKey, err := s.Search(ctx, "writer", 10)
	require.NoError(t, err)
	require.Len(t, byKey, 1)
	assert.Equal(t, "agent_memory_writer_1", byKey[0].Key)

	byData, err := s.Search(ctx, "blog draft", 10)
	require.NoError(t, err)
	require.Len(t, byData, 1)
}

func TestSearch_ExcludesExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, s.Store(ctx, "expired-key", "findme", nil, &past))
	results, err := s.Search(ctx, "findme", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCleanup_DeletesExpiredAndReturnsCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, s.Store(ctx, "e1", "v", nil, &past))
	require.NoError(t, s.Store(ctx, "e2", "v", nil, &past))
	require.NoError(t, s.Store(ctx, "live", "v", nil, nil))

	n, err := s.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok, err := s.Recall(ctx, "live")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStoreValueRecallValue_RoundTripsValueAlgebra(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	in := map[string]any{
		"str":  "hello",
		"num":  float64(42),
		"bool": true,
		"list": []any{"a", "b"},
		"null": nil,
	}
	require.NoError(t, s.StoreValue(ctx, "value-key", in, nil, nil))

	var out map[string]any
	ok, err := s.RecallValue(ctx, "value-key", &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in["str"], out["str"])
	assert.Equal(t, in["num"], out["num"])
	assert.Equal(t, in["bool"], out["bool"])
}

func TestGetStats_CountsTotalAndExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, s.Store(ctx, "e1", "v", nil, &past))
	require.NoError(t, s.Store(ctx, "live", "v", nil, nil))

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalRecords)
	assert.Equal(t, 1, stats.ExpiredRecords)
}
